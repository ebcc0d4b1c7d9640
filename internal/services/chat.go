package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/pkg/errs"
	"github.com/yungbote/taskbridge-backend/internal/platform/cache"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
	"github.com/yungbote/taskbridge-backend/internal/rag/action"
	"github.com/yungbote/taskbridge-backend/internal/rag/conversation"
	"github.com/yungbote/taskbridge-backend/internal/rag/generate"
	"github.com/yungbote/taskbridge-backend/internal/rag/intent"
	"github.com/yungbote/taskbridge-backend/internal/rag/rank"
	"github.com/yungbote/taskbridge-backend/internal/rag/search"
)

const (
	responseCacheTTL = 5 * time.Minute

	// shortcutScoreFloor is the vector score a top hit must exceed for the
	// shortcut path to answer without the full pipeline.
	shortcutScoreFloor = 0.80

	shortcutSources = 5

	reformulateLongQuery = 50
)

// Pipeline step names reported in response metadata.
const (
	stepQuickIntent        = "quick_intent"
	stepClassification     = "classification"
	stepReformulation      = "query_reformulation"
	stepHybridSearch       = "hybrid_search"
	stepShortcut           = "shortcut_exact_match"
	stepContextCompression = "context_compression"
	stepAnswerGeneration   = "answer_generation"
	stepActionExecution    = "action_execution"
)

// shortcutPatterns are the simple list queries eligible for the direct
// vector-search path.
var shortcutPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(get|show|find|list)\s+(me\s+)?(all\s+)?(overdue|urgent|done|to.?do|in.?progress)\b`),
	regexp.MustCompile(`(?i)^(get|show|find|list)\s+(me\s+)?(all\s+)?(tasks?|users?|teams?|projects?)\b`),
}

type ChatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

// ChatStreamEvent is one typed event of the streaming pipeline.
type ChatStreamEvent struct {
	Type      string              `json:"type"`
	SessionID string              `json:"sessionId,omitempty"`
	Message   string              `json:"message,omitempty"`
	Sources   []types.Source      `json:"sources,omitempty"`
	Content   string              `json:"content,omitempty"`
	Response  *types.ChatResponse `json:"response,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// ChatService orchestrates one conversational turn end to end: cache,
// quick intents, classification, retrieval or action execution, answer
// generation and history upkeep.
type ChatService interface {
	Process(ctx context.Context, req ChatRequest) (*types.ChatResponse, error)
	ProcessStream(ctx context.Context, req ChatRequest, emit func(ChatStreamEvent) error) error
}

// ChatConfig carries the orchestrator's tunables.
type ChatConfig struct {
	// ScopeCacheBySession includes the session id in the response cache
	// key, trading hit rate for per-session isolation.
	ScopeCacheBySession bool
}

type ChatDeps struct {
	Classifier intent.Classifier
	Searcher   search.Searcher
	Processor  rank.Processor
	Generator  generate.Generator
	Executor   action.Executor
	Sessions   conversation.Store
	Cache      cache.Cache
}

type chatService struct {
	log *logger.Logger
	cfg ChatConfig
	ChatDeps
}

func NewChatService(baseLog *logger.Logger, cfg ChatConfig, deps ChatDeps) (ChatService, error) {
	if baseLog == nil {
		return nil, errors.New("chat: logger is required")
	}
	if deps.Classifier == nil || deps.Searcher == nil || deps.Processor == nil ||
		deps.Generator == nil || deps.Executor == nil || deps.Sessions == nil || deps.Cache == nil {
		return nil, errors.New("chat: all dependencies are required")
	}
	return &chatService{
		log:      baseLog.With("service", "ChatService"),
		cfg:      cfg,
		ChatDeps: deps,
	}, nil
}

func (s *chatService) Process(ctx context.Context, req ChatRequest) (*types.ChatResponse, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errs.E(errs.KindValidation, "ChatService.Process", "query is required", nil)
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.Sessions.NewSessionID()
	}

	if resp := s.cachedResponse(ctx, query, sessionID, start); resp != nil {
		return resp, nil
	}

	if kind := s.Classifier.QuickIntent(ctx, query); kind != intent.QuickNone {
		answer := s.Classifier.TemplateResponse(kind)
		s.appendTurns(ctx, sessionID, query, answer)
		return &types.ChatResponse{
			Answer:     answer,
			Sources:    []types.Source{},
			Confidence: 1.0,
			SessionID:  sessionID,
			Metadata: types.ChatMetadata{
				ProcessingMs:        time.Since(start).Milliseconds(),
				StepsExecuted:       []string{stepQuickIntent},
				QueryClassification: kind,
			},
		}, nil
	}

	history := s.Sessions.Get(ctx, sessionID)
	classification := s.Classifier.Classify(ctx, query, history)
	filters := s.Classifier.ExtractFilters(classification, query)
	steps := []string{stepClassification}

	var resp *types.ChatResponse
	mutating := classification.Type == intent.TypeCreate ||
		classification.Type == intent.TypeUpdate ||
		classification.Type == intent.TypeDelete
	if mutating {
		resp = s.runAction(ctx, query, classification, sessionID, filters, steps)
	} else {
		resp = s.runRetrieval(ctx, query, classification, sessionID, filters, history, steps)
	}

	resp.SessionID = sessionID
	if resp.Metadata.QueryClassification == "" {
		resp.Metadata.QueryClassification = classification.Type
	}
	resp.Metadata.ProcessingMs = time.Since(start).Milliseconds()

	// Mutating turns are never cached: replaying them must re-execute.
	if !mutating {
		s.cacheResponse(ctx, query, sessionID, resp)
	}
	return resp, nil
}

func (s *chatService) runAction(ctx context.Context, query string, classification types.Classification, sessionID string, filters intent.FilterSpec, steps []string) *types.ChatResponse {
	docs, err := s.Searcher.HybridSearch(ctx, []string{query}, filters)
	if err != nil {
		s.log.Warn("action context search failed", "error", err.Error())
		docs = nil
	}
	steps = append(steps, stepHybridSearch)

	res, err := s.Executor.Execute(ctx, query, classification, sessionID, docs, filters)
	if err != nil {
		return s.friendlyFailure(ctx, query, err, steps)
	}
	steps = append(steps, stepActionExecution)

	s.appendTurns(ctx, sessionID, query, res.Answer)

	confidence := 1.0
	if len(res.FunctionCalls) == 0 {
		confidence = 0
	}
	sources := res.Sources
	if sources == nil {
		sources = []types.Source{}
	}
	return &types.ChatResponse{
		Answer:     res.Answer,
		Sources:    sources,
		Confidence: confidence,
		Metadata: types.ChatMetadata{
			StepsExecuted:      steps,
			RetrievedDocuments: len(docs),
			FunctionCalls:      res.FunctionCalls,
		},
	}
}

func (s *chatService) runRetrieval(ctx context.Context, query string, classification types.Classification, sessionID string, filters intent.FilterSpec, history []types.ChatTurn, steps []string) *types.ChatResponse {
	if resp := s.tryShortcut(ctx, query, classification, sessionID, filters); resp != nil {
		return resp
	}

	queries := []string{query}
	if classification.Type == intent.TypeQuestion || classification.Type == intent.TypeSearch ||
		len(query) > reformulateLongQuery || len(history) > 0 {
		queries = s.Classifier.Reformulate(ctx, query, history)
		steps = append(steps, stepReformulation)
	}

	docs, err := s.Searcher.HybridSearch(ctx, queries, filters)
	if err != nil {
		return s.friendlyFailure(ctx, query, err, steps)
	}
	steps = append(steps, stepHybridSearch)

	processed := s.Processor.Process(docs, query)
	steps = append(steps, stepContextCompression)

	answer, err := s.Generator.Generate(ctx, query, processed.Context, history, classification.Type)
	if err != nil {
		return s.friendlyFailure(ctx, query, err, steps)
	}
	steps = append(steps, stepAnswerGeneration)

	grounded := s.Generator.CheckGrounding(answer, processed.Compressed)
	confidence := s.Generator.Confidence(processed.Compressed, grounded)

	s.appendTurns(ctx, sessionID, query, answer)

	return &types.ChatResponse{
		Answer:     answer,
		Sources:    processed.Sources,
		Confidence: confidence,
		Metadata: types.ChatMetadata{
			StepsExecuted:      steps,
			RetrievedDocuments: len(docs),
		},
	}
}

// tryShortcut answers simple list queries straight from a single vector
// search when the top hit is unambiguous. Returns nil when the shortcut
// does not apply.
func (s *chatService) tryShortcut(ctx context.Context, query string, classification types.Classification, sessionID string, filters intent.FilterSpec) *types.ChatResponse {
	if len(filters.EntityTypes) == 0 || !matchesShortcut(query) {
		return nil
	}

	docs, err := s.Searcher.VectorSearch(ctx, query, filters)
	if err != nil || len(docs) == 0 || docs[0].Score <= shortcutScoreFloor {
		return nil
	}
	if len(docs) > shortcutSources {
		docs = docs[:shortcutSources]
	}

	processed := s.Processor.Process(docs, query)
	answer, err := s.Generator.Generate(ctx, query, processed.Context, nil, classification.Type)
	if err != nil {
		return nil
	}

	grounded := s.Generator.CheckGrounding(answer, processed.Compressed)
	confidence := s.Generator.Confidence(processed.Compressed, grounded)

	s.appendTurns(ctx, sessionID, query, answer)

	return &types.ChatResponse{
		Answer:     answer,
		Sources:    processed.Sources,
		Confidence: confidence,
		Metadata: types.ChatMetadata{
			StepsExecuted:      []string{stepShortcut},
			RetrievedDocuments: len(docs),
		},
	}
}

func (s *chatService) ProcessStream(ctx context.Context, req ChatRequest, emit func(ChatStreamEvent) error) error {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return emit(ChatStreamEvent{Type: "error", Error: "query is required"})
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.Sessions.NewSessionID()
	}

	if err := emit(ChatStreamEvent{Type: "start", SessionID: sessionID}); err != nil {
		return err
	}

	if resp := s.cachedResponse(ctx, query, sessionID, start); resp != nil {
		return emit(ChatStreamEvent{Type: "complete", Response: resp})
	}

	if kind := s.Classifier.QuickIntent(ctx, query); kind != intent.QuickNone {
		answer := s.Classifier.TemplateResponse(kind)
		s.appendTurns(ctx, sessionID, query, answer)
		return emit(ChatStreamEvent{Type: "complete", Response: &types.ChatResponse{
			Answer:     answer,
			Sources:    []types.Source{},
			Confidence: 1.0,
			SessionID:  sessionID,
			Metadata: types.ChatMetadata{
				ProcessingMs:        time.Since(start).Milliseconds(),
				StepsExecuted:       []string{stepQuickIntent},
				QueryClassification: kind,
			},
		}})
	}

	history := s.Sessions.Get(ctx, sessionID)
	classification := s.Classifier.Classify(ctx, query, history)
	filters := s.Classifier.ExtractFilters(classification, query)
	steps := []string{stepClassification}

	if classification.Type == intent.TypeCreate || classification.Type == intent.TypeUpdate || classification.Type == intent.TypeDelete {
		if err := emit(ChatStreamEvent{Type: "status", Message: "Executing action..."}); err != nil {
			return err
		}
		resp := s.runAction(ctx, query, classification, sessionID, filters, steps)
		resp.SessionID = sessionID
		resp.Metadata.QueryClassification = classification.Type
		resp.Metadata.ProcessingMs = time.Since(start).Milliseconds()
		return emit(ChatStreamEvent{Type: "complete", Response: resp})
	}

	if err := emit(ChatStreamEvent{Type: "status", Message: "Searching..."}); err != nil {
		return err
	}

	queries := []string{query}
	if classification.Type == intent.TypeQuestion || classification.Type == intent.TypeSearch ||
		len(query) > reformulateLongQuery || len(history) > 0 {
		queries = s.Classifier.Reformulate(ctx, query, history)
		steps = append(steps, stepReformulation)
	}

	docs, err := s.Searcher.HybridSearch(ctx, queries, filters)
	if err != nil {
		resp := s.friendlyFailure(ctx, query, err, steps)
		resp.SessionID = sessionID
		return emit(ChatStreamEvent{Type: "complete", Response: resp})
	}
	steps = append(steps, stepHybridSearch)

	processed := s.Processor.Process(docs, query)
	steps = append(steps, stepContextCompression)

	if err := emit(ChatStreamEvent{Type: "sources", Sources: processed.Sources}); err != nil {
		return err
	}

	answer, err := s.Generator.GenerateStream(ctx, query, processed.Context, history, classification.Type, func(chunk string) error {
		return emit(ChatStreamEvent{Type: "chunk", Content: chunk})
	})
	if err != nil {
		resp := s.friendlyFailure(ctx, query, err, steps)
		resp.SessionID = sessionID
		return emit(ChatStreamEvent{Type: "complete", Response: resp})
	}
	steps = append(steps, stepAnswerGeneration)

	grounded := s.Generator.CheckGrounding(answer, processed.Compressed)
	confidence := s.Generator.Confidence(processed.Compressed, grounded)

	s.appendTurns(ctx, sessionID, query, answer)

	resp := &types.ChatResponse{
		Answer:     answer,
		Sources:    processed.Sources,
		Confidence: confidence,
		SessionID:  sessionID,
		Metadata: types.ChatMetadata{
			ProcessingMs:        time.Since(start).Milliseconds(),
			StepsExecuted:       steps,
			RetrievedDocuments:  len(docs),
			QueryClassification: classification.Type,
		},
	}
	s.cacheResponse(ctx, query, sessionID, resp)
	return emit(ChatStreamEvent{Type: "complete", Response: resp})
}

// friendlyFailure converts an internal error into a 200-style answer.
// Upstream and timeout failures get a generated explanation; the rest use
// fixed templates.
func (s *chatService) friendlyFailure(ctx context.Context, query string, cause error, steps []string) *types.ChatResponse {
	s.log.Error("chat turn failed", "error", cause.Error())

	var answer string
	switch errs.KindOf(cause) {
	case errs.KindUpstream, errs.KindTimeout:
		answer = s.Generator.RenderError(ctx, query, cause, nil)
	case errs.KindNotFound:
		answer = "I couldn't find what you were looking for. Try a different name or list the entities first."
	case errs.KindValidation:
		answer = "Some details in that request look invalid. Please check them and try again."
	case errs.KindConflict:
		answer = "That change conflicts with existing data, so I didn't apply it."
	default:
		answer = "Something went wrong while handling that. Please try again."
	}
	return &types.ChatResponse{
		Answer:     answer,
		Sources:    []types.Source{},
		Confidence: 0,
		Metadata:   types.ChatMetadata{StepsExecuted: steps},
	}
}

func (s *chatService) appendTurns(ctx context.Context, sessionID, query, answer string) {
	if err := s.Sessions.Append(ctx, sessionID, types.TurnUser, query); err != nil {
		s.log.Warn("history append failed", "role", types.TurnUser, "error", err.Error())
	}
	if err := s.Sessions.Append(ctx, sessionID, types.TurnAssistant, answer); err != nil {
		s.log.Warn("history append failed", "role", types.TurnAssistant, "error", err.Error())
	}
}

func (s *chatService) cacheKey(query, sessionID string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(query))), " ")
	if s.cfg.ScopeCacheBySession {
		normalized += "|" + sessionID
	}
	sum := sha256.Sum256([]byte(normalized))
	return "chat:response:" + hex.EncodeToString(sum[:])
}

// cachedResponse returns the cached answer for the query, rewritten with
// the caller's session id and a fresh timing, or nil on miss.
func (s *chatService) cachedResponse(ctx context.Context, query, sessionID string, start time.Time) *types.ChatResponse {
	data, ok, err := s.Cache.Get(ctx, s.cacheKey(query, sessionID))
	if err != nil || !ok {
		return nil
	}
	var resp types.ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil
	}
	resp.SessionID = sessionID
	resp.Metadata.FromCache = true
	resp.Metadata.ProcessingMs = time.Since(start).Milliseconds()
	return &resp
}

func (s *chatService) cacheResponse(ctx context.Context, query, sessionID string, resp *types.ChatResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.Cache.Set(ctx, s.cacheKey(query, sessionID), data, responseCacheTTL); err != nil {
		s.log.Warn("response cache write failed", "error", err.Error())
	}
}

func matchesShortcut(query string) bool {
	for _, re := range shortcutPatterns {
		if re.MatchString(query) {
			return true
		}
	}
	return false
}
