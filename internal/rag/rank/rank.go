package rank

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

const (
	rerankLimit  = 10
	diverseLimit = 5

	// mmrLambda weighs relevance against redundancy when diversifying.
	mmrLambda = 0.85

	// DefaultMaxTokens is the context token budget. Compression keeps the
	// prefix of documents whose cumulative text length fits 4 characters
	// per token.
	DefaultMaxTokens = 3000

	charsPerToken = 4

	snippetLen = 200
)

// Result carries every stage of context processing. Compressed is the
// slice the generator should see; Sources and Context are derived from it.
type Result struct {
	Reranked   []types.RetrievedDoc
	Diverse    []types.RetrievedDoc
	Compressed []types.RetrievedDoc
	Sources    []types.Source
	Context    string
}

// Processor turns raw retrieval hits into a generation-ready context
// block with citations.
type Processor interface {
	Process(docs []types.RetrievedDoc, query string) Result
}

type processor struct {
	log       *logger.Logger
	maxTokens int
}

// New builds the processor. maxTokens <= 0 falls back to the default
// budget; use NewWithBudget to force an exact budget in tests.
func New(baseLog *logger.Logger) (Processor, error) {
	return NewWithBudget(baseLog, DefaultMaxTokens)
}

func NewWithBudget(baseLog *logger.Logger, maxTokens int) (Processor, error) {
	if baseLog == nil {
		return nil, errors.New("rank: logger is required")
	}
	return &processor{
		log:       baseLog.With("service", "ContextProcessor"),
		maxTokens: maxTokens,
	}, nil
}

func (p *processor) Process(docs []types.RetrievedDoc, query string) Result {
	reranked := rerank(docs)
	diverse := diversify(reranked)
	compressed := compress(diverse, p.maxTokens)

	res := Result{
		Reranked:   reranked,
		Diverse:    diverse,
		Compressed: compressed,
		Sources:    buildSources(compressed),
		Context:    buildContext(compressed),
	}
	p.log.Debug("context processed",
		"candidates", len(docs),
		"kept", len(compressed),
		"context_chars", len(res.Context))
	return res
}

func rerank(docs []types.RetrievedDoc) []types.RetrievedDoc {
	out := make([]types.RetrievedDoc, len(docs))
	copy(out, docs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > rerankLimit {
		out = out[:rerankLimit]
	}
	return out
}

// diversify applies maximal marginal relevance over the reranked list.
// Fewer than diverseLimit candidates pass through unchanged; the top
// document always seeds the selection.
func diversify(reranked []types.RetrievedDoc) []types.RetrievedDoc {
	if len(reranked) < diverseLimit {
		return reranked
	}

	tokens := make([]map[string]bool, len(reranked))
	for i, doc := range reranked {
		tokens[i] = tokenSet(doc.Text)
	}

	picked := []int{0}
	used := map[int]bool{0: true}
	for len(picked) < diverseLimit {
		best, bestScore := -1, 0.0
		for i := range reranked {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, j := range picked {
				if sim := jaccard(tokens[i], tokens[j]); sim > maxSim {
					maxSim = sim
				}
			}
			score := mmrLambda*reranked[i].Score - (1-mmrLambda)*maxSim
			if best == -1 || score > bestScore {
				best, bestScore = i, score
			}
		}
		if best == -1 {
			break
		}
		picked = append(picked, best)
		used[best] = true
	}

	out := make([]types.RetrievedDoc, 0, len(picked))
	for _, i := range picked {
		out = append(out, reranked[i])
	}
	return out
}

func compress(docs []types.RetrievedDoc, maxTokens int) []types.RetrievedDoc {
	budget := maxTokens * charsPerToken
	if budget <= 0 {
		return []types.RetrievedDoc{}
	}
	out := make([]types.RetrievedDoc, 0, len(docs))
	var total int
	for _, doc := range docs {
		total += len(doc.Text)
		if total > budget {
			break
		}
		out = append(out, doc)
	}
	return out
}

func buildSources(docs []types.RetrievedDoc) []types.Source {
	out := make([]types.Source, 0, len(docs))
	for i, doc := range docs {
		text := doc.Text
		if len(text) > snippetLen {
			text = text[:snippetLen] + "..."
		}
		out = append(out, types.Source{
			EntityType: doc.EntityType,
			EntityID:   doc.EntityID,
			Text:       text,
			Score:      doc.Score,
			Citation:   fmt.Sprintf("[%d]", i+1),
		})
	}
	return out
}

func buildContext(docs []types.RetrievedDoc) string {
	var b strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&b, "[%d] %s: %s\n\n", i+1, strings.ToUpper(doc.EntityType), doc.Text)
	}
	return b.String()
}

func tokenSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, f := range strings.Fields(strings.ToLower(text)) {
		set[f] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for tok := range small {
		if large[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
