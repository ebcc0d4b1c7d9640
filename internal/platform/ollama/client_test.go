package ollama

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
	var captured map[string]any
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/api/generate" {
			t.Fatalf("path: want=%q got=%q", "/api/generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{"response": "there are 3 teams", "done": true}), nil
	})

	text, err := c.Complete(context.Background(), "how many teams exist?", llm.Options{
		System:      "You are a task assistant.",
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "there are 3 teams" {
		t.Fatalf("text: got=%q", text)
	}

	if captured["model"] != "llama3.2" {
		t.Fatalf("model default: want=%q got=%v", "llama3.2", captured["model"])
	}
	if captured["prompt"] != "how many teams exist?" {
		t.Fatalf("prompt: got=%v", captured["prompt"])
	}
	if captured["stream"] != false {
		t.Fatalf("stream: want=false got=%v", captured["stream"])
	}
	if captured["system"] != "You are a task assistant." {
		t.Fatalf("system: got=%v", captured["system"])
	}
	options, ok := captured["options"].(map[string]any)
	if !ok {
		t.Fatalf("options type: got=%T", captured["options"])
	}
	if options["temperature"] != 0.7 {
		t.Fatalf("temperature: want=0.7 got=%v", options["temperature"])
	}
	if options["num_predict"] != float64(256) {
		t.Fatalf("num_predict: want=256 got=%v", options["num_predict"])
	}
}

func TestClientCompleteModelOverride(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{"response": "{}", "done": true}), nil
	})

	if _, err := c.Complete(context.Background(), "extract", llm.Options{Model: "llama3.2:1b", Temperature: 0.1}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if captured["model"] != "llama3.2:1b" {
		t.Fatalf("model override: want=%q got=%v", "llama3.2:1b", captured["model"])
	}
	options := captured["options"].(map[string]any)
	if _, exists := options["num_predict"]; exists {
		t.Fatalf("num_predict should be omitted when MaxTokens is zero")
	}
}

func TestClientCompleteStreamNDJSON(t *testing.T) {
	stream := strings.Join([]string{
		`{"response":"Wel","done":false}`,
		`{"response":"come","done":false}`,
		``,
		`{"response":"!","done":true}`,
	}, "\n")
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["stream"] != true {
			t.Fatalf("stream flag: want=true got=%v", body["stream"])
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
	if full != "Welcome!" {
		t.Fatalf("full text: want=%q got=%q", "Welcome!", full)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks: want=3 got=%d (%v)", len(chunks), chunks)
	}
}

func TestClientCompleteStreamChunkCallbackError(t *testing.T) {
	stream := `{"response":"a","done":false}` + "\n" + `{"response":"b","done":true}` + "\n"
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader(stream)),
		}, nil
	})

	wantErr := errors.New("client went away")
	partial, err := c.CompleteStream(context.Background(), "hi", llm.Options{}, func(chunk string) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("error: want=%v got=%v", wantErr, err)
	}
	if partial != "a" {
		t.Fatalf("partial: want=%q got=%q", "a", partial)
	}
}

func TestClientCompleteStreamError(t *testing.T) {
	stream := `{"response":"a","done":false}` + "\n" + `{"error":"model overloaded"}` + "\n"
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader(stream)),
		}, nil
	})

	_, err := c.CompleteStream(context.Background(), "hi", llm.Options{}, nil)
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("error: got=%v", err)
	}
}

func TestClientEmbedRequestShape(t *testing.T) {
	var captured map[string]any
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/api/embeddings" {
			t.Fatalf("path: want=%q got=%q", "/api/embeddings", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{"embedding": []float64{0.1, 0.2, 0.3}}), nil
	})

	vec, err := c.Embed(context.Background(), "User Amira Hassan works on the backend team")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("vector length: want=3 got=%d", len(vec))
	}
	if captured["model"] != "nomic-embed-text" {
		t.Fatalf("embed model: want=%q got=%v", "nomic-embed-text", captured["model"])
	}
	if captured["prompt"] != "User Amira Hassan works on the backend team" {
		t.Fatalf("prompt: got=%v", captured["prompt"])
	}
}

func TestClientDoesNotRetryModelNotFound(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(t, http.StatusNotFound, map[string]any{"error": "model 'missing' not found"}), nil
	})

	_, err := c.Embed(context.Background(), "text")
	if err == nil {
		t.Fatalf("Embed: expected error, got nil")
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
	var httpErr *ollamaHTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected ollamaHTTPError, got=%T", err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("status: want=404 got=%d", httpErr.StatusCode)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(t, http.StatusInternalServerError, map[string]any{"error": "loading model"}), nil
		}
		return jsonResponse(t, http.StatusOK, map[string]any{"embedding": []float64{1}}), nil
	})

	if _, err := c.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}

func newTestClient(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *client {
	t.Helper()
	httpClient := &http.Client{Transport: roundTripFunc(roundTrip)}
	return &client{
		log: newTestLogger(t),
		cfg: Config{
			BaseURL:           "http://ollama.local:11434",
			Model:             "llama3.2",
			EmbedModel:        "nomic-embed-text",
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
