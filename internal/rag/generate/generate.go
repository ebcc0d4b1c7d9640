package generate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/platform/llm"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

const (
	defaultTemperature    = 0.7
	statisticsTemperature = 0.3
	streamMaxTokens       = 500

	// groundingThreshold is the minimum token-overlap ratio between the
	// answer and the retrieved documents for the answer to count as
	// grounded.
	groundingThreshold = 0.30

	groundedBonus = 0.2

	historyTurns = 2
)

// instructions keyed by intent classification type.
var instructions = map[string]string{
	"requirements": "Explain what information is required, listing each required and optional field on its own line.",
	"statistics":   "Report the numbers from the context exactly. Do not estimate or round.",
	"status":       "Summarize current status and call out anything overdue or urgent first.",
	"list":         "Enumerate the matching items as a concise list, one per line, with their key attributes.",
	"analysis":     "Compare the items in the context and point out patterns, risks and gaps.",
	"help":         "Describe what the assistant can do, grouped by entity type, with one example each.",
}

const defaultInstruction = "Answer based on context. Be concise."

// Generator renders grounded answers from processed context and scores
// how well they are supported.
type Generator interface {
	Generate(ctx context.Context, query, contextBlock string, history []types.ChatTurn, intentType string) (string, error)
	GenerateStream(ctx context.Context, query, contextBlock string, history []types.ChatTurn, intentType string, onChunk func(string) error) (string, error)
	CheckGrounding(answer string, docs []types.RetrievedDoc) bool
	Confidence(docs []types.RetrievedDoc, grounded bool) float64
	RenderError(ctx context.Context, query string, cause error, extracted map[string]string) string
}

type generator struct {
	log    *logger.Logger
	client llm.Client
}

func New(baseLog *logger.Logger, client llm.Client) (Generator, error) {
	if baseLog == nil {
		return nil, errors.New("generate: logger is required")
	}
	if client == nil {
		return nil, errors.New("generate: llm client is required")
	}
	return &generator{
		log:    baseLog.With("service", "Generator"),
		client: client,
	}, nil
}

func (g *generator) Generate(ctx context.Context, query, contextBlock string, history []types.ChatTurn, intentType string) (string, error) {
	answer, err := g.client.Complete(ctx, buildPrompt(query, contextBlock, history, intentType), llm.Options{
		Temperature: temperatureFor(intentType),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

func (g *generator) GenerateStream(ctx context.Context, query, contextBlock string, history []types.ChatTurn, intentType string, onChunk func(string) error) (string, error) {
	answer, err := g.client.CompleteStream(ctx, buildPrompt(query, contextBlock, history, intentType), llm.Options{
		Temperature: temperatureFor(intentType),
		MaxTokens:   streamMaxTokens,
	}, onChunk)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// CheckGrounding reports whether enough of the answer's tokens appear in
// the retrieved documents. The ratio must strictly exceed the threshold.
func (g *generator) CheckGrounding(answer string, docs []types.RetrievedDoc) bool {
	answerTokens := strings.Fields(strings.ToLower(answer))
	if len(answerTokens) == 0 || len(docs) == 0 {
		return false
	}

	docTokens := map[string]bool{}
	for _, doc := range docs {
		for _, tok := range strings.Fields(strings.ToLower(doc.Text)) {
			docTokens[tok] = true
		}
	}

	overlap := 0
	for _, tok := range answerTokens {
		if docTokens[tok] {
			overlap++
		}
	}
	return float64(overlap)/float64(len(answerTokens)) > groundingThreshold
}

// Confidence blends mean retrieval score with a grounding bonus, capped
// at 1. No documents means no confidence.
func (g *generator) Confidence(docs []types.RetrievedDoc, grounded bool) float64 {
	if len(docs) == 0 {
		return 0
	}
	var sum float64
	for _, doc := range docs {
		sum += doc.Score
	}
	confidence := sum / float64(len(docs))
	if grounded {
		confidence += groundedBonus
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// RenderError produces the user-facing failure message for an action.
// Extracted arguments are echoed verbatim in a bracketed suffix so a
// follow-up turn can continue the flow. The model call is best effort; a
// plain fallback covers its failure.
func (g *generator) RenderError(ctx context.Context, query string, cause error, extracted map[string]string) string {
	suffix := extractedSuffix(extracted)

	prompt := fmt.Sprintf(
		"A task-management action failed.\nUser request: %s\nFailure: %s\n"+
			"Write one or two friendly sentences explaining what went wrong and what the user should try next. Do not mention internal errors.",
		query, cause.Error(),
	)
	msg, err := g.client.Complete(ctx, prompt, llm.Options{Temperature: 0.3, MaxTokens: 120})
	if err != nil {
		g.log.Debug("error rendering fell back to template", "error", err.Error())
		msg = "I couldn't complete that action. Please rephrase or provide the missing details."
	}
	return strings.TrimSpace(msg) + suffix
}

func extractedSuffix(extracted map[string]string) string {
	if len(extracted) == 0 {
		return ""
	}
	keys := make([]string, 0, len(extracted))
	for k := range extracted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, extracted[k]))
	}
	return " [Extracted so far: " + strings.Join(parts, ", ") + "]"
}

func temperatureFor(intentType string) float64 {
	if intentType == "statistics" {
		return statisticsTemperature
	}
	return defaultTemperature
}

func buildPrompt(query, contextBlock string, history []types.ChatTurn, intentType string) string {
	instruction, ok := instructions[intentType]
	if !ok {
		instruction = defaultInstruction
	}

	var b strings.Builder
	b.WriteString("You are a task-management assistant. Answer using only the provided context.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- If the context does not contain the answer, say so instead of guessing.\n")
	b.WriteString("- Cite sources with their bracketed numbers, like [1].\n")
	fmt.Fprintf(&b, "- %s\n\n", instruction)

	if contextBlock != "" {
		b.WriteString("Context:\n")
		b.WriteString(contextBlock)
		b.WriteString("\n")
	}

	recent := recentDialogue(history, historyTurns)
	if len(recent) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, turn := range recent {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s\nAnswer:", query)
	return b.String()
}

// recentDialogue keeps the last n non-summary turns.
func recentDialogue(history []types.ChatTurn, n int) []types.ChatTurn {
	out := make([]types.ChatTurn, 0, n)
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		if history[i].Role == types.TurnSummary {
			continue
		}
		out = append(out, history[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
