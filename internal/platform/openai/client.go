package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/taskbridge-backend/internal/pkg/httpx"
	"github.com/yungbote/taskbridge-backend/internal/platform/envutil"
	"github.com/yungbote/taskbridge-backend/internal/platform/llm"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

const maxErrorBodyBytes = 2048

// Config describes the hosted backend. EmbedDimensions is forwarded to the
// embeddings API so hosted vectors line up with the collection's size.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	EmbedModel        string
	EmbedDimensions   int
	CompletionTimeout time.Duration
	EmbedTimeout      time.Duration
	CompletionRetries int
	EmbedRetries      int
}

func ResolveConfigFromEnv() (Config, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return Config{}, fmt.Errorf("missing OPENAI_API_KEY")
	}
	return Config{
		APIKey:            apiKey,
		BaseURL:           strings.TrimRight(envutil.Str("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		Model:             envutil.Str("OPENAI_MODEL", "gpt-4o-mini"),
		EmbedModel:        envutil.Str("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbedDimensions:   envutil.Int("OPENAI_EMBED_DIMENSIONS", 768),
		CompletionTimeout: envutil.Dur("OPENAI_COMPLETION_TIMEOUT", 120*time.Second),
		EmbedTimeout:      envutil.Dur("OPENAI_EMBED_TIMEOUT", 30*time.Second),
		CompletionRetries: envutil.Int("OPENAI_COMPLETION_RETRIES", 2),
		EmbedRetries:      envutil.Int("OPENAI_EMBED_RETRIES", 3),
	}, nil
}

type client struct {
	log              *logger.Logger
	cfg              Config
	completionClient *http.Client
	embedClient      *http.Client
	retryBackoff     time.Duration
}

// New builds the hosted llm.Client backend speaking the chat completions
// and embeddings wire.
func New(log *logger.Logger, cfg Config) (llm.Client, error) {
	if log == nil {
		return nil, errors.New("openai: logger is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = 120 * time.Second
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 30 * time.Second
	}
	return &client{
		log:              log.With("component", "openai"),
		cfg:              cfg,
		completionClient: &http.Client{Timeout: cfg.CompletionTimeout},
		embedClient:      &http.Client{Timeout: cfg.EmbedTimeout},
		retryBackoff:     1 * time.Second,
	}, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http error: status=%d body=%s", e.StatusCode, e.Body)
}

// HTTPStatusCode implements httpx.HTTPStatusCoder so 400/404 stay
// non-retryable while 429/5xx back off.
func (e *openAIHTTPError) HTTPStatusCode() int { return e.StatusCode }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

func (c *client) chatBody(prompt string, opts llm.Options, stream bool) chatRequest {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = c.cfg.Model
	}
	messages := make([]chatMessage, 0, 2)
	if system := strings.TrimSpace(opts.System); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})
	return chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
}

func (c *client) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.do(ctx, c.completionClient, c.cfg.CompletionRetries, "/v1/chat/completions", c.chatBody(prompt, opts, false), &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion: no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

// CompleteStream reads the SSE stream and forwards content deltas until
// the [DONE] sentinel. The stream itself is not retried.
func (c *client) CompleteStream(ctx context.Context, prompt string, opts llm.Options, onChunk func(chunk string) error) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	body := c.chatBody(prompt, opts, true)
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return "", fmt.Errorf("openai encode stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", buf)
	if err != nil {
		return "", fmt.Errorf("openai build stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.completionClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &openAIHTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var full strings.Builder
	err = streamSSE(resp.Body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if chunk.Error != nil {
			return fmt.Errorf("openai stream: %s", chunk.Error.Message)
		}
		for _, choice := range chunk.Choices {
			delta := choice.Delta.Content
			if delta == "" {
				continue
			}
			full.WriteString(delta)
			if onChunk != nil {
				if err := onChunk(delta); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return full.String(), err
	}
	return full.String(), nil
}

func (c *client) Embed(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model": c.cfg.EmbedModel,
		"input": []string{text},
	}
	if c.cfg.EmbedDimensions > 0 {
		body["dimensions"] = c.cfg.EmbedDimensions
	}
	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.do(ctx, c.embedClient, c.cfg.EmbedRetries, "/v1/embeddings", body, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty data in response")
	}
	return out.Data[0].Embedding, nil
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
				return fmt.Errorf("openai decode response: %w", uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
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
		return nil, nil, fmt.Errorf("openai encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, buf)
	if err != nil {
		return nil, nil, fmt.Errorf("openai build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("openai read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil, &openAIHTTPError{StatusCode: resp.StatusCode, Body: truncateBody(raw)}
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
