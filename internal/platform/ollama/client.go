package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/taskbridge-backend/internal/pkg/httpx"
	"github.com/yungbote/taskbridge-backend/internal/platform/envutil"
	"github.com/yungbote/taskbridge-backend/internal/platform/llm"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

const maxErrorBodyBytes = 1024

// Config describes the local Ollama endpoint and its default models.
type Config struct {
	BaseURL           string
	Model             string
	EmbedModel        string
	CompletionTimeout time.Duration
	EmbedTimeout      time.Duration
	CompletionRetries int
	EmbedRetries      int
}

func ResolveConfigFromEnv() Config {
	return Config{
		BaseURL:           strings.TrimRight(envutil.Str("OLLAMA_API_URL", "http://localhost:11434"), "/"),
		Model:             envutil.Str("OLLAMA_LLM_MODEL", "llama3.2"),
		EmbedModel:        envutil.Str("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
		CompletionTimeout: envutil.Dur("OLLAMA_COMPLETION_TIMEOUT", 120*time.Second),
		EmbedTimeout:      envutil.Dur("OLLAMA_EMBED_TIMEOUT", 30*time.Second),
		CompletionRetries: envutil.Int("OLLAMA_COMPLETION_RETRIES", 2),
		EmbedRetries:      envutil.Int("OLLAMA_EMBED_RETRIES", 3),
	}
}

type client struct {
	log              *logger.Logger
	cfg              Config
	completionClient *http.Client
	embedClient      *http.Client
	retryBackoff     time.Duration
}

// New builds the local llm.Client backend speaking Ollama's generate and
// embeddings wire.
func New(log *logger.Logger, cfg Config) (llm.Client, error) {
	if log == nil {
		return nil, errors.New("ollama: logger is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("ollama: base URL is required")
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 120 * time.Second
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 30 * time.Second
	}
	return &client{
		log:              log.With("component", "ollama"),
		cfg:              cfg,
		completionClient: &http.Client{Timeout: cfg.CompletionTimeout},
		embedClient:      &http.Client{Timeout: cfg.EmbedTimeout},
		retryBackoff:     1 * time.Second,
	}, nil
}

type ollamaHTTPError struct {
	StatusCode int
	Body       string
}

func (e *ollamaHTTPError) Error() string {
	return fmt.Sprintf("ollama http error: status=%d body=%s", e.StatusCode, e.Body)
}

// HTTPStatusCode implements httpx.HTTPStatusCoder so 400/404 stay
// non-retryable while 429/5xx back off.
func (e *ollamaHTTPError) HTTPStatusCode() int { return e.StatusCode }

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	System  string         `json:"system,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (c *client) generateBody(prompt string, opts llm.Options, stream bool) generateRequest {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = c.cfg.Model
	}
	options := map[string]any{"temperature": opts.Temperature}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	return generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  stream,
		System:  strings.TrimSpace(opts.System),
		Options: options,
	}
}

func (c *client) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	var out generateChunk
	if err := c.do(ctx, c.completionClient, c.cfg.CompletionRetries, "/api/generate", c.generateBody(prompt, opts, false), &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama generate: %s", out.Error)
	}
	return out.Response, nil
}

// CompleteStream reads Ollama's NDJSON stream and forwards every non-empty
// response fragment. The stream is not retried; callers fall back to
// Complete when resumption matters.
func (c *client) CompleteStream(ctx context.Context, prompt string, opts llm.Options, onChunk func(chunk string) error) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	body := c.generateBody(prompt, opts, true)
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return "", fmt.Errorf("ollama encode stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/generate", buf)
	if err != nil {
		return "", fmt.Errorf("ollama build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.completionClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &ollamaHTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return full.String(), fmt.Errorf("ollama stream: %s", chunk.Error)
		}
		if chunk.Response != "" {
			full.WriteString(chunk.Response)
			if onChunk != nil {
				if err := onChunk(chunk.Response); err != nil {
					return full.String(), err
				}
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("ollama stream read: %w", err)
	}
	return full.String(), nil
}

func (c *client) Embed(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model":  c.cfg.EmbedModel,
		"prompt": text,
	}
	var out struct {
		Embedding []float32 `json:"embedding"`
		Error     string    `json:"error"`
	}
	if err := c.do(ctx, c.embedClient, c.cfg.EmbedRetries, "/api/embeddings", body, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama embeddings: %s", out.Error)
	}
	return out.Embedding, nil
}

func (c *client) do(ctx context.Context, httpClient *http.Client, maxRetries int, path string, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := c.retryBackoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, raw, err := c.doOnce(ctx, httpClient, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("ollama decode response: %w", uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("Ollama request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, httpClient *http.Client, path string, body any) (*http.Response, []byte, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, nil, fmt.Errorf("ollama encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, buf)
	if err != nil {
		return nil, nil, fmt.Errorf("ollama build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("ollama read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil, &ollamaHTTPError{StatusCode: resp.StatusCode, Body: truncateBody(raw)}
	}
	return resp, raw, nil
}

func truncateBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBodyBytes {
		return s[:maxErrorBodyBytes] + "..."
	}
	return s
}
