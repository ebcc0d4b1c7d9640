package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/platform/cache"
	"github.com/yungbote/taskbridge-backend/internal/platform/llm"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

const (
	// MaxMessages bounds the non-summary turns a session keeps.
	MaxMessages = 10
	// SummarizeThreshold is the history length that triggers folding old
	// turns into a summary.
	SummarizeThreshold = 8
	// KeepRecent is how many trailing turns survive a summarisation.
	KeepRecent = 3

	minTurnsToSummarize = 3
	summaryMaxTokens    = 300
	summaryTemperature  = 0.3

	sessionTTL = 30 * time.Minute
)

// Store holds session histories in process memory, mirrored to the cache
// backend so a restart inside the TTL window keeps context. Appends on
// one session are serialised; sessions are independent.
type Store interface {
	Get(ctx context.Context, sessionID string) []types.ChatTurn
	Append(ctx context.Context, sessionID, role, content string) error
	NewSessionID() string
}

type session struct {
	mu    sync.Mutex
	turns []types.ChatTurn
}

type store struct {
	log    *logger.Logger
	client llm.Client
	mirror cache.Cache

	mu       sync.Mutex
	sessions map[string]*session
}

func New(baseLog *logger.Logger, client llm.Client, mirror cache.Cache) (Store, error) {
	if baseLog == nil {
		return nil, errors.New("conversation: logger is required")
	}
	if client == nil {
		return nil, errors.New("conversation: llm client is required")
	}
	return &store{
		log:      baseLog.With("service", "ConversationStore"),
		client:   client,
		mirror:   mirror,
		sessions: make(map[string]*session),
	}, nil
}

func (s *store) NewSessionID() string { return uuid.NewString() }

func (s *store) Get(ctx context.Context, sessionID string) []types.ChatTurn {
	sess := s.lookup(ctx, sessionID)
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]types.ChatTurn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Append adds a turn, summarises when the history is long enough,
// truncates to the bound and mirrors the result to the cache.
func (s *store) Append(ctx context.Context, sessionID, role, content string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("conversation: session id is required")
	}
	sess := s.obtain(ctx, sessionID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.turns = append(sess.turns, types.ChatTurn{Role: role, Content: content, At: time.Now().UTC()})

	if len(sess.turns) > SummarizeThreshold {
		s.summarize(ctx, sessionID, sess)
	}
	sess.turns = truncate(sess.turns, MaxMessages)

	s.mirrorSession(ctx, sessionID, sess.turns)
	return nil
}

// summarize folds everything but the trailing KeepRecent turns into one
// summary turn. The prior summary, when present, feeds the prompt and is
// replaced. On LLM failure the caller's truncation handles the bound.
func (s *store) summarize(ctx context.Context, sessionID string, sess *session) {
	var prior string
	body := sess.turns
	if len(body) > 0 && body[0].Role == types.TurnSummary {
		prior = body[0].Content
		body = body[1:]
	}
	if len(body) <= KeepRecent {
		return
	}
	old := body[:len(body)-KeepRecent]
	if len(old) < minTurnsToSummarize {
		return
	}

	var b strings.Builder
	b.WriteString("Summarize this task-manager conversation in under 300 tokens. Keep entity names, ids and decisions.\n")
	if prior != "" {
		fmt.Fprintf(&b, "\nPrevious summary:\n%s\n", prior)
	}
	b.WriteString("\nConversation:\n")
	for _, turn := range old {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}

	summary, err := s.client.Complete(ctx, b.String(), llm.Options{
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		s.log.Warn("summarisation failed, falling back to truncation", "session_id", sessionID, "error", err.Error())
		return
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return
	}

	recent := body[len(body)-KeepRecent:]
	turns := make([]types.ChatTurn, 0, KeepRecent+1)
	turns = append(turns, types.ChatTurn{Role: types.TurnSummary, Content: summary, At: time.Now().UTC()})
	turns = append(turns, recent...)
	sess.turns = turns
}

// truncate drops the oldest non-summary turns past the bound, keeping a
// leading summary in place.
func truncate(turns []types.ChatTurn, max int) []types.ChatTurn {
	if len(turns) == 0 {
		return turns
	}
	if turns[0].Role == types.TurnSummary {
		rest := turns[1:]
		if len(rest) > max {
			rest = rest[len(rest)-max:]
		}
		return append([]types.ChatTurn{turns[0]}, rest...)
	}
	if len(turns) > max {
		return turns[len(turns)-max:]
	}
	return turns
}

func (s *store) obtain(ctx context.Context, sessionID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess
	}
	sess := &session{}
	if turns := s.fromMirror(ctx, sessionID); len(turns) > 0 {
		sess.turns = turns
	}
	s.sessions[sessionID] = sess
	return sess
}

// lookup is like obtain but does not create a session for unknown ids.
func (s *store) lookup(ctx context.Context, sessionID string) *session {
	s.mu.Lock()
	if sess, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		return sess
	}
	s.mu.Unlock()

	turns := s.fromMirror(ctx, sessionID)
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess
	}
	sess := &session{turns: turns}
	s.sessions[sessionID] = sess
	return sess
}

func (s *store) mirrorSession(ctx context.Context, sessionID string, turns []types.ChatTurn) {
	if s.mirror == nil {
		return
	}
	raw, err := json.Marshal(turns)
	if err != nil {
		s.log.Warn("failed to marshal session for mirror", "session_id", sessionID, "error", err.Error())
		return
	}
	if err := s.mirror.Set(ctx, mirrorKey(sessionID), raw, sessionTTL); err != nil {
		s.log.Debug("session mirror write failed", "session_id", sessionID, "error", err.Error())
	}
}

func (s *store) fromMirror(ctx context.Context, sessionID string) []types.ChatTurn {
	if s.mirror == nil {
		return nil
	}
	raw, ok, err := s.mirror.Get(ctx, mirrorKey(sessionID))
	if err != nil || !ok {
		return nil
	}
	var turns []types.ChatTurn
	if err := json.Unmarshal(raw, &turns); err != nil {
		s.log.Debug("session mirror entry is corrupt, ignoring", "session_id", sessionID, "error", err.Error())
		return nil
	}
	return turns
}

func mirrorKey(sessionID string) string { return "chat:session:" + sessionID }
