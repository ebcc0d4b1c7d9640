package app

import (
	"github.com/yungbote/taskbridge-backend/internal/platform/envutil"
)

// Config aggregates the app-level knobs. Per-client settings (qdrant,
// ollama, openai, embedding) resolve inside their own packages.
type Config struct {
	Port        string
	LogMode     string
	ServiceName string
	Environment string
	Version     string

	UseOpenAI bool
	FastModel string

	ScopeCacheBySession bool
	LLMCacheContextKey  string
}

func LoadConfig() Config {
	return Config{
		Port:        envutil.Str("PORT", "8080"),
		LogMode:     envutil.Str("LOG_MODE", "development"),
		ServiceName: envutil.Str("SERVICE_NAME", "taskbridge"),
		Environment: envutil.Str("ENVIRONMENT", "development"),
		Version:     envutil.Str("SERVICE_VERSION", "dev"),

		UseOpenAI: envutil.Bool("USE_OPENAI", false),
		FastModel: envutil.Str("OLLAMA_FAST_LLM_MODEL", "llama3.2:1b"),

		ScopeCacheBySession: envutil.Bool("CHAT_CACHE_SCOPE_SESSION", false),
		LLMCacheContextKey:  envutil.Str("LLM_CACHE_CONTEXT_KEY", ""),
	}
}
