package domain

import "time"

const (
	TurnUser      = "user"
	TurnAssistant = "assistant"
	TurnSummary   = "summary"
)

// ChatTurn is one entry of a session history. A summary turn, when
// present, is always the first entry.
type ChatTurn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// RetrievedDoc is a vector or lexical search hit. Score semantics depend
// on the producer (cosine, BM25, RRF) and must not be compared across
// producers except through rank fusion.
type RetrievedDoc struct {
	ID         uint32         `json:"id"`
	Score      float64        `json:"score"`
	Text       string         `json:"text"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Source is a citation surfaced to the client.
type Source struct {
	EntityType string  `json:"entityType"`
	EntityID   string  `json:"entityId"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Citation   string  `json:"citation"`
}

// Classification is the typed result of query understanding.
type Classification struct {
	Type     string   `json:"type"`
	Entities []string `json:"entities"`
	Intent   string   `json:"intent"`
}

// FunctionCall names a CRUD operation extracted from the model output.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ChatMetadata struct {
	ProcessingMs        int64          `json:"processingMs"`
	StepsExecuted       []string       `json:"stepsExecuted"`
	RetrievedDocuments  int            `json:"retrievedDocuments"`
	QueryClassification string         `json:"queryClassification"`
	FromCache           bool           `json:"fromCache"`
	FunctionCalls       []FunctionCall `json:"functionCalls,omitempty"`
}

type ChatResponse struct {
	Answer     string       `json:"answer"`
	Sources    []Source     `json:"sources"`
	Confidence float64      `json:"confidence"`
	SessionID  string       `json:"sessionId"`
	Metadata   ChatMetadata `json:"metadata"`
}
