package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/taskbridge-backend/internal/platform/llm"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

func TestClientCompleteRequestShape(t *testing.T) {
	var captured chatRequest
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path: want=%q got=%q", "/v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("authorization: got=%q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "You have 4 projects."}},
			},
		}), nil
	})

	text, err := c.Complete(context.Background(), "how many projects?", llm.Options{
		System:      "You are a task assistant.",
		Temperature: 0.7,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "You have 4 projects." {
		t.Fatalf("text: got=%q", text)
	}

	if captured.Model != "gpt-4o-mini" {
		t.Fatalf("model default: want=%q got=%q", "gpt-4o-mini", captured.Model)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("messages: want=2 got=%d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" {
		t.Fatalf("message roles: got=%q,%q", captured.Messages[0].Role, captured.Messages[1].Role)
	}
	if captured.Messages[1].Content != "how many projects?" {
		t.Fatalf("user content: got=%q", captured.Messages[1].Content)
	}
	if captured.Temperature != 0.7 {
		t.Fatalf("temperature: want=0.7 got=%v", captured.Temperature)
	}
	if captured.MaxTokens != 512 {
		t.Fatalf("max_tokens: want=512 got=%d", captured.MaxTokens)
	}
	if captured.Stream {
		t.Fatalf("stream: want=false")
	}
}

func TestClientCompleteWithoutSystemSendsSingleMessage(t *testing.T) {
	var captured chatRequest
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		}), nil
	})

	if _, err := c.Complete(context.Background(), "hello", llm.Options{Model: "gpt-4o", Temperature: 0.3}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if captured.Model != "gpt-4o" {
		t.Fatalf("model override: got=%q", captured.Model)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" {
		t.Fatalf("messages: got=%+v", captured.Messages)
	}
}

func TestClientCompleteStreamSSE(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		``,
		`: keep-alive comment`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if !body.Stream {
			t.Fatalf("stream flag: want=true")
		}
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Fatalf("accept header: got=%q", got)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader(stream)),
		}, nil
	})

	var chunks []string
	full, err := c.CompleteStream(context.Background(), "hi", llm.Options{Temperature: 0.7}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}
	if full != "Hello" {
		t.Fatalf("full text: want=%q got=%q", "Hello", full)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks: want=2 got=%d (%v)", len(chunks), chunks)
	}
}

func TestClientCompleteStreamErrorEvent(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"error":{"message":"rate limit reached"}}`,
		``,
	}, "\n")
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader(stream)),
		}, nil
	})

	_, err := c.CompleteStream(context.Background(), "hi", llm.Options{}, nil)
	if err == nil || !strings.Contains(err.Error(), "rate limit reached") {
		t.Fatalf("error: got=%v", err)
	}
}

func TestClientEmbedRequestShape(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("path: want=%q got=%q", "/v1/embeddings", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"data": []map[string]any{
				{"embedding": []float64{0.5, 0.25}},
			},
		}), nil
	})

	vec, err := c.Embed(context.Background(), "Task Database Optimization is in progress")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("vector length: want=2 got=%d", len(vec))
	}
	if captured["model"] != "text-embedding-3-small" {
		t.Fatalf("embed model: got=%v", captured["model"])
	}
	input, ok := captured["input"].([]any)
	if !ok || len(input) != 1 {
		t.Fatalf("input: got=%v", captured["input"])
	}
	if captured["dimensions"] != float64(768) {
		t.Fatalf("dimensions: want=768 got=%v", captured["dimensions"])
	}
}

func TestClientDoesNotRetryBadRequest(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(t, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"message": "invalid request"},
		}), nil
	})

	_, err := c.Complete(context.Background(), "hi", llm.Options{})
	if err == nil {
		t.Fatalf("Complete: expected error, got nil")
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
	var httpErr *openAIHTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected openAIHTTPError, got=%T", err)
	}
	if httpErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", httpErr.StatusCode)
	}
}

func TestClientRetriesRateLimit(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(t, http.StatusTooManyRequests, map[string]any{
				"error": map[string]any{"message": "rate limit"},
			}), nil
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		}), nil
	})

	if _, err := c.Complete(context.Background(), "hi", llm.Options{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}

func TestResolveConfigFromEnvRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := ResolveConfigFromEnv(); err == nil {
		t.Fatalf("ResolveConfigFromEnv: expected error without API key")
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.BaseURL != "https://api.openai.com" {
		t.Fatalf("BaseURL default: got=%q", cfg.BaseURL)
	}
	if cfg.EmbedDimensions != 768 {
		t.Fatalf("EmbedDimensions default: got=%d", cfg.EmbedDimensions)
	}
}

func newTestClient(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *client {
	t.Helper()
	httpClient := &http.Client{Transport: roundTripFunc(roundTrip)}
	return &client{
		log: newTestLogger(t),
		cfg: Config{
			APIKey:            "test-key",
			BaseURL:           "http://openai.local",
			Model:             "gpt-4o-mini",
			EmbedModel:        "text-embedding-3-small",
			EmbedDimensions:   768,
			CompletionRetries: 2,
			EmbedRetries:      3,
		},
		completionClient: httpClient,
		embedClient:      httpClient,
		retryBackoff:     time.Millisecond,
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
