package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/yungbote/taskbridge-backend/internal/pkg/errs"
	"github.com/yungbote/taskbridge-backend/internal/platform/envutil"
	"github.com/yungbote/taskbridge-backend/internal/platform/llm"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

// Service turns document text into fixed-size vectors. Single-item Embed
// fails on an invalid backend vector; EmbedBatch degrades per item with a
// zero vector so bulk indexing keeps moving.
type Service interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

type Config struct {
	Dimension int
	CacheTTL  time.Duration
	BatchSize int
	MaxChars  int
}

func ResolveConfigFromEnv() Config {
	return Config{
		Dimension: envutil.Int("QDRANT_VECTOR_SIZE", 768),
		CacheTTL:  envutil.Dur("EMBEDDING_CACHE_TTL", time.Hour),
		BatchSize: envutil.Int("EMBEDDING_BATCH_SIZE", 10),
		MaxChars:  envutil.Int("EMBEDDING_MAX_CHARS", 32000),
	}
}

type cacheEntry struct {
	vector    []float32
	expiresAt time.Time
}

type service struct {
	log    *logger.Logger
	client llm.Client
	cfg    Config

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

func New(log *logger.Logger, client llm.Client, cfg Config) (Service, error) {
	if log == nil {
		return nil, errors.New("embedding: logger is required")
	}
	if client == nil {
		return nil, errors.New("embedding: llm client is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding: invalid dimension %d", cfg.Dimension)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 32000
	}
	return &service{
		log:    log.With("component", "embedding"),
		client: client,
		cfg:    cfg,
		cache:  make(map[string]cacheEntry),
	}, nil
}

func (s *service) Dimension() int { return s.cfg.Dimension }

func (s *service) Embed(ctx context.Context, text string) ([]float32, error) {
	const op = "embedding.Embed"

	prepared := s.preprocess(text)
	if prepared == "" {
		return nil, errs.E(errs.KindEmbeddingInvalid, op, "input is empty", nil)
	}
	key := cacheKey(prepared)
	if vec, ok := s.cached(key); ok {
		return vec, nil
	}

	vec, err := s.client.Embed(ctx, prepared)
	if err != nil {
		return nil, errs.E(errs.KindUpstream, op, "embedding backend call failed", err)
	}
	if err := s.validate(vec); err != nil {
		return nil, errs.E(errs.KindEmbeddingInvalid, op, err.Error(), nil)
	}
	s.store(key, vec)
	return vec, nil
}

// EmbedBatch processes texts in fixed-size batches, consulting the cache
// per item. A failed item becomes a zero vector and a warning instead of
// failing the whole batch.
func (s *service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			vec, err := s.Embed(ctx, texts[i])
			if err != nil {
				s.log.Warn("batch embedding item failed, using zero vector",
					"index", i,
					"error", err.Error(),
				)
				vec = make([]float32, s.cfg.Dimension)
			}
			out[i] = vec
		}
	}
	return out, nil
}

// preprocess applies, in order: trim, whitespace collapse, canonical
// composition (NFC), control character removal and a rune-safe truncation.
func (s *service) preprocess(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = norm.NFC.String(text)
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	if utf8.RuneCountInString(text) > s.cfg.MaxChars {
		runes := []rune(text)
		text = string(runes[:s.cfg.MaxChars])
	}
	return text
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func (s *service) validate(vec []float32) error {
	if len(vec) != s.cfg.Dimension {
		return fmt.Errorf("expected %d dimensions, got %d", s.cfg.Dimension, len(vec))
	}
	allZero := true
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("vector contains non-finite values")
		}
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		return fmt.Errorf("vector is all zeros")
	}
	return nil
}

func cacheKey(prepared string) string {
	sum := sha256.Sum256([]byte(prepared))
	return hex.EncodeToString(sum[:])
}

func (s *service) cached(key string) ([]float32, bool) {
	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.vector, true
}

// store writes the entry and schedules its eviction; the timer re-checks
// the deadline so a refreshed entry survives the older timer.
func (s *service) store(key string, vec []float32) {
	expiresAt := time.Now().Add(s.cfg.CacheTTL)
	s.mu.Lock()
	s.cache[key] = cacheEntry{vector: vec, expiresAt: expiresAt}
	s.mu.Unlock()

	time.AfterFunc(s.cfg.CacheTTL+time.Second, func() {
		s.mu.Lock()
		if entry, ok := s.cache[key]; ok && time.Now().After(entry.expiresAt) {
			delete(s.cache, key)
		}
		s.mu.Unlock()
	})
}
