package llm

import "context"

// Options tunes a single completion call. Model falls back to the
// backend's configured default when empty. Temperature is sent as given,
// so call sites set it explicitly. MaxTokens 0 leaves the backend limit.
type Options struct {
	Model       string
	System      string
	Temperature float64
	MaxTokens   int
}

// Client is the language-model surface the pipeline builds on. Complete
// and CompleteStream run chat-style generation; Embed produces the
// document embedding used for retrieval.
type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
	CompleteStream(ctx context.Context, prompt string, opts Options, onChunk func(chunk string) error) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Select picks the hosted backend when useHosted is set and the hosted
// client exists, and the local backend otherwise.
func Select(useHosted bool, hosted, local Client) Client {
	if useHosted && hosted != nil {
		return hosted
	}
	return local
}
