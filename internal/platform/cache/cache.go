package cache

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

// Cache is a TTL'd key-value store used for session mirrors and response
// caching. Implementations must be safe for concurrent use. A zero TTL
// means no expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// FromEnv returns a redis-backed cache when REDIS_ADDR is set and
// reachable, and falls back to the in-process store otherwise.
func FromEnv(log *logger.Logger) Cache {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return NewMemory()
	}
	c, err := NewRedis(log)
	if err != nil {
		if log != nil {
			log.Warn("redis cache unavailable, using in-process cache", "error", err)
		}
		return NewMemory()
	}
	return c
}
