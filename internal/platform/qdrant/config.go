package qdrant

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/taskbridge-backend/internal/platform/envutil"
)

type ConfigErrorCode string

const (
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
	ConfigErrorInvalidPort       ConfigErrorCode = "invalid_port"
	ConfigErrorInvalidVectorSize ConfigErrorCode = "invalid_vector_size"
	ConfigErrorInvalidTimeout    ConfigErrorCode = "invalid_timeout"
)

// ConfigError reports an unusable vector store configuration.
type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	switch e.Code {
	case ConfigErrorMissingCollection:
		return "qdrant config: collection name is required"
	case ConfigErrorInvalidPort:
		return fmt.Sprintf("qdrant config: invalid port %q", e.Value)
	case ConfigErrorInvalidVectorSize:
		return fmt.Sprintf("qdrant config: invalid vector size %q", e.Value)
	case ConfigErrorInvalidTimeout:
		return fmt.Sprintf("qdrant config: invalid timeout %q", e.Value)
	default:
		return fmt.Sprintf("qdrant config: invalid value %q", e.Value)
	}
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// Config describes how to reach a Qdrant instance and which collection
// the store operates on.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Timeout    time.Duration
	Collection string
	VectorSize int
	MaxRetries int
}

// BaseURL renders the scheme://host:port prefix requests are issued against.
func (c Config) BaseURL() string {
	scheme := "http"
	if c.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// ResolveConfigFromEnv builds a Config from QDRANT_* environment variables,
// falling back to local development defaults.
func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		Host:       envutil.Str("QDRANT_HOST", "localhost"),
		Port:       6333,
		APIKey:     strings.TrimSpace(os.Getenv("QDRANT_API_KEY")),
		UseTLS:     envutil.Bool("QDRANT_HTTPS", false),
		Timeout:    envutil.Dur("QDRANT_TIMEOUT", 30*time.Second),
		Collection: envutil.Str("QDRANT_COLLECTION_NAME", "task_manager"),
		VectorSize: 768,
		MaxRetries: envutil.Int("QDRANT_MAX_RETRIES", 3),
	}
	if raw := strings.TrimSpace(os.Getenv("QDRANT_PORT")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidPort, Value: raw, Cause: err}
		}
		cfg.Port = parsed
	}
	if raw := strings.TrimSpace(os.Getenv("QDRANT_VECTOR_SIZE")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidVectorSize, Value: raw, Cause: err}
		}
		cfg.VectorSize = parsed
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateConfig rejects configurations the store cannot operate with.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Collection) == "" {
		return &ConfigError{Code: ConfigErrorMissingCollection}
	}
	if cfg.Port <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidPort, Value: strconv.Itoa(cfg.Port)}
	}
	if cfg.VectorSize <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorSize, Value: strconv.Itoa(cfg.VectorSize)}
	}
	if cfg.Timeout < 0 {
		return &ConfigError{Code: ConfigErrorInvalidTimeout, Value: cfg.Timeout.String()}
	}
	return nil
}
