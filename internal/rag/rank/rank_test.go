package rank

import (
	"strings"
	"testing"

	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

func newTestProcessor(t *testing.T, maxTokens int) Processor {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	p, err := NewWithBudget(log, maxTokens)
	if err != nil {
		t.Fatalf("NewWithBudget: %v", err)
	}
	return p
}

func doc(id uint32, score float64, text string) types.RetrievedDoc {
	return types.RetrievedDoc{ID: id, Score: score, Text: text, EntityType: "task", EntityID: "e"}
}

func TestProcessReranksByScore(t *testing.T) {
	p := newTestProcessor(t, DefaultMaxTokens)
	docs := []types.RetrievedDoc{
		doc(1, 0.2, "low"),
		doc(2, 0.9, "high"),
		doc(3, 0.5, "mid"),
	}
	res := p.Process(docs, "q")
	if res.Reranked[0].ID != 2 || res.Reranked[1].ID != 3 || res.Reranked[2].ID != 1 {
		t.Fatalf("rerank order: %+v", res.Reranked)
	}
	if len(res.Diverse) != 3 {
		t.Fatalf("fewer than five docs must pass through, got %d", len(res.Diverse))
	}
}

func TestProcessCapsRerankedAtTen(t *testing.T) {
	p := newTestProcessor(t, DefaultMaxTokens)
	docs := make([]types.RetrievedDoc, 0, 14)
	for i := 0; i < 14; i++ {
		docs = append(docs, doc(uint32(i+1), float64(i), "text"))
	}
	res := p.Process(docs, "q")
	if len(res.Reranked) != 10 {
		t.Fatalf("reranked: want=10 got=%d", len(res.Reranked))
	}
}

func TestDiversifySeedsWithTopDocAndPicksFive(t *testing.T) {
	p := newTestProcessor(t, DefaultMaxTokens)
	docs := []types.RetrievedDoc{
		doc(1, 0.95, "database migration plan for postgres cluster"),
		doc(2, 0.94, "database migration plan for postgres cluster"),
		doc(3, 0.93, "database migration plan for postgres cluster"),
		doc(4, 0.60, "frontend redesign of the settings page"),
		doc(5, 0.55, "quarterly hiring report for the infra team"),
		doc(6, 0.50, "incident review writeup for the outage"),
	}
	res := p.Process(docs, "q")

	if len(res.Diverse) != 5 {
		t.Fatalf("diverse: want=5 got=%d", len(res.Diverse))
	}
	if res.Diverse[0].ID != res.Reranked[0].ID {
		t.Fatalf("top doc must seed diversity: got %d", res.Diverse[0].ID)
	}
	// Near-duplicates of the seed should not crowd out distinct docs.
	distinct := map[uint32]bool{}
	for _, d := range res.Diverse {
		distinct[d.ID] = true
	}
	if !distinct[4] || !distinct[5] {
		t.Fatalf("dissimilar docs dropped: %v", distinct)
	}
}

func TestCompressionHonoursBudget(t *testing.T) {
	// Budget of 10 tokens is 40 characters.
	p := newTestProcessor(t, 10)
	docs := []types.RetrievedDoc{
		doc(1, 0.9, strings.Repeat("a", 30)),
		doc(2, 0.8, strings.Repeat("b", 30)),
		doc(3, 0.7, strings.Repeat("c", 5)),
	}
	res := p.Process(docs, "q")
	if len(res.Compressed) != 1 || res.Compressed[0].ID != 1 {
		t.Fatalf("compressed: %+v", res.Compressed)
	}
}

func TestCompressionZeroBudgetIsEmpty(t *testing.T) {
	p := newTestProcessor(t, 0)
	res := p.Process([]types.RetrievedDoc{doc(1, 0.9, "text")}, "q")
	if len(res.Compressed) != 0 {
		t.Fatalf("compressed: want empty got=%+v", res.Compressed)
	}
	if res.Context != "" || len(res.Sources) != 0 {
		t.Fatalf("derived output must be empty too")
	}
}

func TestSourcesAndContextShape(t *testing.T) {
	p := newTestProcessor(t, DefaultMaxTokens)
	long := strings.Repeat("x", 250)
	docs := []types.RetrievedDoc{
		doc(1, 0.9, "Task Fix Login. Status: To Do."),
		{ID: 2, Score: 0.8, Text: long, EntityType: "user", EntityID: "u-1"},
	}
	res := p.Process(docs, "q")

	if len(res.Sources) != 2 {
		t.Fatalf("sources: want=2 got=%d", len(res.Sources))
	}
	if res.Sources[0].Citation != "[1]" || res.Sources[1].Citation != "[2]" {
		t.Fatalf("citations: %+v", res.Sources)
	}
	if len(res.Sources[1].Text) != 203 || !strings.HasSuffix(res.Sources[1].Text, "...") {
		t.Fatalf("snippet not truncated: len=%d", len(res.Sources[1].Text))
	}
	if !strings.HasPrefix(res.Context, "[1] TASK: Task Fix Login.") {
		t.Fatalf("context prefix: %q", res.Context[:40])
	}
	if !strings.Contains(res.Context, "[2] USER: ") {
		t.Fatalf("second entry missing: %q", res.Context)
	}
}

func TestProcessEmptyInput(t *testing.T) {
	p := newTestProcessor(t, DefaultMaxTokens)
	res := p.Process(nil, "q")
	if len(res.Reranked) != 0 || len(res.Compressed) != 0 || res.Context != "" {
		t.Fatalf("empty input must stay empty: %+v", res)
	}
}
