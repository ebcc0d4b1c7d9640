package qdrant

import (
	"testing"
	"time"
)

func clearQdrantEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_API_KEY", "QDRANT_HTTPS",
		"QDRANT_TIMEOUT", "QDRANT_COLLECTION_NAME", "QDRANT_VECTOR_SIZE",
		"QDRANT_MAX_RETRIES",
	} {
		t.Setenv(name, "")
	}
}

func TestResolveConfigFromEnvDefaults(t *testing.T) {
	clearQdrantEnv(t)

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Host != "localhost" {
		t.Fatalf("Host: want=%q got=%q", "localhost", cfg.Host)
	}
	if cfg.Port != 6333 {
		t.Fatalf("Port: want=%d got=%d", 6333, cfg.Port)
	}
	if cfg.Collection != "task_manager" {
		t.Fatalf("Collection: want=%q got=%q", "task_manager", cfg.Collection)
	}
	if cfg.VectorSize != 768 {
		t.Fatalf("VectorSize: want=%d got=%d", 768, cfg.VectorSize)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("Timeout: want=%s got=%s", 30*time.Second, cfg.Timeout)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("MaxRetries: want=%d got=%d", 3, cfg.MaxRetries)
	}
	if cfg.UseTLS {
		t.Fatalf("UseTLS: want=false")
	}
	if cfg.BaseURL() != "http://localhost:6333" {
		t.Fatalf("BaseURL: want=%q got=%q", "http://localhost:6333", cfg.BaseURL())
	}
}

func TestResolveConfigFromEnvOverrides(t *testing.T) {
	clearQdrantEnv(t)
	t.Setenv("QDRANT_HOST", "qdrant.internal")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("QDRANT_API_KEY", "secret")
	t.Setenv("QDRANT_HTTPS", "true")
	t.Setenv("QDRANT_TIMEOUT", "5s")
	t.Setenv("QDRANT_COLLECTION_NAME", "assistant")
	t.Setenv("QDRANT_VECTOR_SIZE", "1024")
	t.Setenv("QDRANT_MAX_RETRIES", "1")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Host != "qdrant.internal" || cfg.Port != 7000 {
		t.Fatalf("host/port: got=%q:%d", cfg.Host, cfg.Port)
	}
	if cfg.APIKey != "secret" {
		t.Fatalf("APIKey: got=%q", cfg.APIKey)
	}
	if !cfg.UseTLS {
		t.Fatalf("UseTLS: want=true")
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("Timeout: want=5s got=%s", cfg.Timeout)
	}
	if cfg.Collection != "assistant" {
		t.Fatalf("Collection: got=%q", cfg.Collection)
	}
	if cfg.VectorSize != 1024 {
		t.Fatalf("VectorSize: got=%d", cfg.VectorSize)
	}
	if cfg.MaxRetries != 1 {
		t.Fatalf("MaxRetries: got=%d", cfg.MaxRetries)
	}
	if cfg.BaseURL() != "https://qdrant.internal:7000" {
		t.Fatalf("BaseURL: got=%q", cfg.BaseURL())
	}
}

func TestResolveConfigFromEnvInvalidPort(t *testing.T) {
	clearQdrantEnv(t)
	t.Setenv("QDRANT_PORT", "not-a-port")

	_, err := ResolveConfigFromEnv()
	if err == nil {
		t.Fatalf("ResolveConfigFromEnv: expected error, got nil")
	}
	cfgErr, ok := err.(*ConfigError)
	if !ok {
		t.Fatalf("expected *ConfigError, got=%T", err)
	}
	if cfgErr.Code != ConfigErrorInvalidPort {
		t.Fatalf("code: want=%q got=%q", ConfigErrorInvalidPort, cfgErr.Code)
	}
}

func TestResolveConfigFromEnvInvalidVectorSize(t *testing.T) {
	clearQdrantEnv(t)
	t.Setenv("QDRANT_VECTOR_SIZE", "0")

	_, err := ResolveConfigFromEnv()
	if err == nil {
		t.Fatalf("ResolveConfigFromEnv: expected error, got nil")
	}
	cfgErr, ok := err.(*ConfigError)
	if !ok {
		t.Fatalf("expected *ConfigError, got=%T", err)
	}
	if cfgErr.Code != ConfigErrorInvalidVectorSize {
		t.Fatalf("code: want=%q got=%q", ConfigErrorInvalidVectorSize, cfgErr.Code)
	}
}

func TestValidateConfigMissingCollection(t *testing.T) {
	err := ValidateConfig(Config{Collection: "  ", Port: 6333, VectorSize: 768})
	if err == nil {
		t.Fatalf("ValidateConfig: expected error, got nil")
	}
	cfgErr, ok := err.(*ConfigError)
	if !ok {
		t.Fatalf("expected *ConfigError, got=%T", err)
	}
	if cfgErr.Code != ConfigErrorMissingCollection {
		t.Fatalf("code: want=%q got=%q", ConfigErrorMissingCollection, cfgErr.Code)
	}
}
