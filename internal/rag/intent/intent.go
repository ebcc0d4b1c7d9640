package intent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/platform/llm"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
	"github.com/yungbote/taskbridge-backend/internal/rag/llmjson"
)

// Quick intent kinds. QuickNone means the query needs full classification.
const (
	QuickGreeting = "greeting"
	QuickGoodbye  = "goodbye"
	QuickThank    = "thank"
	QuickNone     = "none"
)

// Classification types.
const (
	TypeCreate       = "create"
	TypeUpdate       = "update"
	TypeDelete       = "delete"
	TypeQuestion     = "question"
	TypeSearch       = "search"
	TypeList         = "list"
	TypeStatistics   = "statistics"
	TypeHelp         = "help"
	TypeRequirements = "requirements"
)

const (
	quickIntentMaxLen   = 50
	reformulateMinLen   = 15
	maxReformulations   = 4
	classifyTemperature = 0.1
)

// FilterSpec is the store-agnostic retrieval filter the classifier
// produces. EntityTypes of length one is an exact match; more than one
// requires OR semantics. Metadata keys address the document's nested
// metadata map.
type FilterSpec struct {
	EntityTypes []string
	Metadata    map[string]any
}

func (f FilterSpec) Empty() bool {
	return len(f.EntityTypes) == 0 && len(f.Metadata) == 0
}

// Classifier is the query-understanding surface: quick intents, typed
// classification, query reformulation and filter extraction.
type Classifier interface {
	QuickIntent(ctx context.Context, query string) string
	TemplateResponse(kind string) string
	Classify(ctx context.Context, query string, history []types.ChatTurn) types.Classification
	Reformulate(ctx context.Context, query string, history []types.ChatTurn) []string
	ExtractFilters(classification types.Classification, query string) FilterSpec
}

type classifier struct {
	log       *logger.Logger
	client    llm.Client
	fastModel string
}

// New builds the classifier. fastModel, when set, overrides the backend's
// default model for the small constrained calls.
func New(baseLog *logger.Logger, client llm.Client, fastModel string) (Classifier, error) {
	if baseLog == nil {
		return nil, errors.New("intent: logger is required")
	}
	if client == nil {
		return nil, errors.New("intent: llm client is required")
	}
	return &classifier{
		log:       baseLog.With("service", "IntentClassifier"),
		client:    client,
		fastModel: strings.TrimSpace(fastModel),
	}, nil
}

// QuickIntent detects greeting/goodbye/thank without a full classification
// pass. Regexes run first; only short queries without CRUD verbs get the
// constrained model call, and its failure is silent.
func (c *classifier) QuickIntent(ctx context.Context, query string) string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return QuickNone
	}

	rt := currentPatterns(c.log)
	for _, rule := range rt.rules {
		for _, re := range rule.patterns {
			if re.MatchString(trimmed) {
				return rule.name
			}
		}
	}

	if len(trimmed) >= quickIntentMaxLen || containsCrudVerb(trimmed, rt.crudVerbs) {
		return QuickNone
	}

	prompt := fmt.Sprintf(
		"Classify this message with exactly one word: greeting, goodbye, thank, or none.\nMessage: %q\nAnswer:",
		trimmed,
	)
	raw, err := c.client.Complete(ctx, prompt, llm.Options{
		Model:       c.fastModel,
		Temperature: 0,
		MaxTokens:   5,
	})
	if err != nil {
		c.log.Debug("quick intent model call failed", "error", err.Error())
		return QuickNone
	}
	switch word := firstWord(llmjson.StripFences(raw)); word {
	case QuickGreeting, QuickGoodbye, QuickThank:
		return word
	default:
		return QuickNone
	}
}

// TemplateResponse draws a canned reply for a detected quick intent.
func (c *classifier) TemplateResponse(kind string) string {
	rt := currentPatterns(c.log)
	for _, rule := range rt.rules {
		if rule.name == kind && len(rule.responses) > 0 {
			return rule.responses[rand.Intn(len(rule.responses))]
		}
	}
	return "Hello! How can I help you with your tasks today?"
}

var classificationTypes = map[string]bool{
	TypeCreate: true, TypeUpdate: true, TypeDelete: true,
	TypeQuestion: true, TypeSearch: true, TypeList: true,
	TypeStatistics: true, TypeHelp: true, TypeRequirements: true,
}

// Classify produces the typed classification. Any parse or transport
// failure degrades to a plain question with no entities.
func (c *classifier) Classify(ctx context.Context, query string, history []types.ChatTurn) types.Classification {
	fallback := types.Classification{Type: TypeQuestion, Entities: []string{}, Intent: DeriveIntent(TypeQuestion, nil)}

	var b strings.Builder
	b.WriteString("You classify queries for a task-management assistant.\n")
	b.WriteString("Respond with JSON only: {\"type\": \"...\", \"entities\": [...]}\n")
	b.WriteString("type is one of: create, update, delete, question, search, list, statistics, help, requirements.\n")
	b.WriteString("entities is a subset of: user, task, team, project.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Commands that change data are create, update or delete. \"Assign X to Y\" and \"mark X as done\" are update.\n")
	b.WriteString("- Questions about existing data are question. \"When was X created\" is question, not create.\n")
	b.WriteString("- Include \"user\" in entities whenever a personal name appears in the query.\n")
	writeHistoryBlock(&b, history)
	fmt.Fprintf(&b, "Query: %s\n", query)

	raw, err := c.client.Complete(ctx, b.String(), llm.Options{
		Model:       c.fastModel,
		Temperature: classifyTemperature,
		MaxTokens:   120,
	})
	if err != nil {
		c.log.Warn("classification call failed", "error", err.Error())
		return fallback
	}

	obj, err := llmjson.FirstObject(raw)
	if err != nil {
		c.log.Warn("classification output unparsable", "error", err.Error())
		return fallback
	}

	ctype := strings.ToLower(llmjson.StringField(obj, "type"))
	if !classificationTypes[ctype] {
		return fallback
	}

	entities := make([]string, 0, 4)
	seen := map[string]bool{}
	for _, raw := range llmjson.StringSliceField(obj, "entities") {
		kind, ok := types.ParseEntityKind(raw)
		if !ok || seen[string(kind)] {
			continue
		}
		switch kind {
		case types.KindUser, types.KindTask, types.KindTeam, types.KindProject:
			seen[string(kind)] = true
			entities = append(entities, string(kind))
		}
	}

	return types.Classification{Type: ctype, Entities: entities, Intent: DeriveIntent(ctype, entities)}
}

// DeriveIntent is the pure mapping from (type, entities) to the intent
// label downstream components branch on.
func DeriveIntent(ctype string, entities []string) string {
	primary := ""
	if len(entities) > 0 {
		primary = entities[0]
	}
	switch ctype {
	case TypeCreate, TypeUpdate, TypeDelete:
		if primary == "" {
			return "general"
		}
		return primary + "_management"
	case TypeQuestion, TypeSearch, TypeList, TypeStatistics:
		if primary == "" {
			return "general"
		}
		return primary + "_info"
	default:
		return "general"
	}
}

// Reformulate returns the original query plus up to four focused search
// variants. Short queries skip the model entirely.
func (c *classifier) Reformulate(ctx context.Context, query string, history []types.ChatTurn) []string {
	query = strings.TrimSpace(query)
	if len(query) < reformulateMinLen {
		return []string{query}
	}

	var b strings.Builder
	b.WriteString("Rewrite this task-manager query into up to 4 short search phrases.\n")
	b.WriteString("Each phrase is 2-5 words, keeps entity names exactly as written, and may expand abbreviations.\n")
	b.WriteString("Respond with JSON only: {\"queries\": [\"...\"]}\n")
	writeHistoryBlock(&b, history)
	fmt.Fprintf(&b, "Query: %s\n", query)

	raw, err := c.client.Complete(ctx, b.String(), llm.Options{
		Model:       c.fastModel,
		Temperature: 0.3,
		MaxTokens:   120,
	})
	if err != nil {
		c.log.Debug("reformulation call failed", "error", err.Error())
		return []string{query}
	}

	obj, err := llmjson.FirstObject(raw)
	if err != nil {
		return []string{query}
	}

	out := []string{query}
	seen := map[string]bool{strings.ToLower(query): true}
	for _, variant := range llmjson.StringSliceField(obj, "queries") {
		lowered := strings.ToLower(variant)
		if seen[lowered] {
			continue
		}
		seen[lowered] = true
		out = append(out, variant)
		if len(out) > maxReformulations {
			break
		}
	}
	return out
}

// ExtractFilters maps the classification and a lexical scan of the query
// to a retrieval filter.
func (c *classifier) ExtractFilters(classification types.Classification, query string) FilterSpec {
	spec := FilterSpec{Metadata: map[string]any{}}

	switch classification.Type {
	case TypeStatistics:
		spec.Metadata["type"] = string(types.KindStatistics)
	case TypeHelp, TypeRequirements:
		spec.Metadata["type"] = string(types.KindSystemInfo)
	default:
		if len(classification.Entities) > 0 {
			spec.EntityTypes = append(spec.EntityTypes, classification.Entities...)
		}
	}

	lowered := strings.ToLower(query)
	if strings.Contains(lowered, "overdue") {
		spec.Metadata["is_overdue"] = true
	}
	if strings.Contains(lowered, "urgent") {
		spec.Metadata["is_urgent"] = true
	}
	if status, ok := statusFromQuery(lowered); ok {
		spec.Metadata["task_status"] = string(status)
	}
	return spec
}

func statusFromQuery(lowered string) (types.TaskStatus, bool) {
	switch {
	case strings.Contains(lowered, "in progress") || strings.Contains(lowered, "in_progress"):
		return types.StatusInProgress, true
	case strings.Contains(lowered, "todo") || strings.Contains(lowered, "to do") || strings.Contains(lowered, "to-do"):
		return types.StatusTodo, true
	case strings.Contains(lowered, "done") || strings.Contains(lowered, "completed") || strings.Contains(lowered, "finished"):
		return types.StatusDone, true
	default:
		return "", false
	}
}

// firstWord returns the lowercase first whitespace-delimited token of s,
// trimmed of surrounding punctuation.
func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(fields[0], ".,:;!?\"'`"))
}

func containsCrudVerb(query string, verbs []string) bool {
	lowered := strings.ToLower(query)
	for _, verb := range verbs {
		if containsWord(lowered, verb) {
			return true
		}
	}
	return false
}

// containsWord matches verb on word boundaries so "add" does not fire on
// "address".
func containsWord(lowered, word string) bool {
	idx := 0
	for {
		i := strings.Index(lowered[idx:], word)
		if i == -1 {
			return false
		}
		start := idx + i
		end := start + len(word)
		leftOK := start == 0 || !isWordByte(lowered[start-1])
		rightOK := end == len(lowered) || !isWordByte(lowered[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}

// writeHistoryBlock renders recent history for coreference. The summary
// turn, when present, becomes a context preamble instead of a dialogue
// line.
func writeHistoryBlock(b *strings.Builder, history []types.ChatTurn) {
	if len(history) == 0 {
		return
	}
	if history[0].Role == types.TurnSummary {
		fmt.Fprintf(b, "Conversation context: %s\n", history[0].Content)
		history = history[1:]
	}
	if len(history) > 4 {
		history = history[len(history)-4:]
	}
	if len(history) == 0 {
		return
	}
	b.WriteString("Recent conversation:\n")
	for _, turn := range history {
		fmt.Fprintf(b, "%s: %s\n", turn.Role, turn.Content)
	}
}
