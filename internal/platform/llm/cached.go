package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/taskbridge-backend/internal/platform/cache"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

const completionCacheTTL = 10 * time.Minute

type cachedClient struct {
	log        *logger.Logger
	inner      Client
	store      cache.Cache
	ttl        time.Duration
	contextKey string
}

// WithCache caches non-streaming completions keyed by a digest of the
// prompt and options, TTL 10 minutes. contextKey, when non-empty, is
// folded into every key so operators can partition the cache between
// deployments sharing one backing store. Streaming calls and embeddings
// pass through untouched; the embedding layer keeps its own cache.
func WithCache(log *logger.Logger, inner Client, store cache.Cache, contextKey string) Client {
	if store == nil {
		return inner
	}
	return &cachedClient{
		log:        log.With("component", "llm_cache"),
		inner:      inner,
		store:      store,
		ttl:        completionCacheTTL,
		contextKey: strings.TrimSpace(contextKey),
	}
}

func (c *cachedClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	key := c.completionKey(prompt, opts)
	if raw, ok, err := c.store.Get(ctx, key); err == nil && ok {
		return string(raw), nil
	} else if err != nil {
		c.log.Debug("completion cache read failed", "error", err)
	}

	text, err := c.inner.Complete(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	if err := c.store.Set(ctx, key, []byte(text), c.ttl); err != nil {
		c.log.Debug("completion cache write failed", "error", err)
	}
	return text, nil
}

func (c *cachedClient) CompleteStream(ctx context.Context, prompt string, opts Options, onChunk func(chunk string) error) (string, error) {
	return c.inner.CompleteStream(ctx, prompt, opts, onChunk)
}

func (c *cachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.inner.Embed(ctx, text)
}

func (c *cachedClient) completionKey(prompt string, opts Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%.4f\x00%d\x00%s", opts.Model, opts.System, opts.Temperature, opts.MaxTokens, prompt)
	if c.contextKey != "" {
		fmt.Fprintf(h, "\x00%s", c.contextKey)
	}
	return "llm:completion:" + hex.EncodeToString(h.Sum(nil))
}
