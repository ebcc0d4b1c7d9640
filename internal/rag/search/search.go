package search

import (
	"context"
	"errors"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/pkg/errs"
	"github.com/yungbote/taskbridge-backend/internal/platform/embedding"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
	"github.com/yungbote/taskbridge-backend/internal/platform/qdrant"
	"github.com/yungbote/taskbridge-backend/internal/rag/intent"
)

const (
	maxResults       = 10
	scrollCandidates = 60

	// RRFK is the rank-fusion constant. 60 is the value from the original
	// RRF paper and keeps low ranks from dominating.
	RRFK = 60

	bm25K1 = 1.2
	bm25B  = 0.75

	minTokenLen = 3
)

// Searcher runs dense, sparse and fused retrieval against the vector
// collection.
type Searcher interface {
	VectorSearch(ctx context.Context, query string, filter intent.FilterSpec) ([]types.RetrievedDoc, error)
	BM25Search(ctx context.Context, query string, filter intent.FilterSpec) ([]types.RetrievedDoc, error)
	HybridSearch(ctx context.Context, queries []string, filter intent.FilterSpec) ([]types.RetrievedDoc, error)
}

type searcher struct {
	log      *logger.Logger
	embedder embedding.Service
	store    qdrant.Store
}

func New(baseLog *logger.Logger, embedder embedding.Service, store qdrant.Store) (Searcher, error) {
	if baseLog == nil {
		return nil, errors.New("search: logger is required")
	}
	if embedder == nil {
		return nil, errors.New("search: embedding service is required")
	}
	if store == nil {
		return nil, errors.New("search: vector store is required")
	}
	return &searcher{
		log:      baseLog.With("service", "Searcher"),
		embedder: embedder,
		store:    store,
	}, nil
}

// ToStoreFilter renders a FilterSpec in the vector store's filter shape.
// A single entity type is a hard AND condition; several become a Should
// group so any of them matches.
func ToStoreFilter(spec intent.FilterSpec) *qdrant.Filter {
	if spec.Empty() {
		return nil
	}
	filter := &qdrant.Filter{}
	switch len(spec.EntityTypes) {
	case 0:
	case 1:
		filter.Must = append(filter.Must, qdrant.Match{Field: "entity_type", Value: spec.EntityTypes[0]})
	default:
		for _, et := range spec.EntityTypes {
			filter.Should = append(filter.Should, qdrant.Match{Field: "entity_type", Value: et})
		}
	}

	keys := make([]string, 0, len(spec.Metadata))
	for k := range spec.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		filter.Must = append(filter.Must, qdrant.Match{Field: "metadata." + k, Value: spec.Metadata[k]})
	}
	if filter.Empty() {
		return nil
	}
	return filter
}

func (s *searcher) VectorSearch(ctx context.Context, query string, filter intent.FilterSpec) ([]types.RetrievedDoc, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.store.Search(ctx, vector, maxResults, ToStoreFilter(filter))
	if err != nil {
		return nil, errs.E(errs.KindUpstream, "search.VectorSearch", "vector store search", err)
	}

	docs := make([]types.RetrievedDoc, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, docFromPayload(hit.ID, hit.Score, hit.Payload))
	}
	return docs, nil
}

// BM25Search scores scrolled candidates with a simplified BM25: global
// substring term frequency, character-length normalisation, no IDF. The
// approximation holds up because candidate sets are small and pre-filtered.
func (s *searcher) BM25Search(ctx context.Context, query string, filter intent.FilterSpec) ([]types.RetrievedDoc, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return []types.RetrievedDoc{}, nil
	}

	candidates, err := s.store.Scroll(ctx, scrollCandidates, ToStoreFilter(filter))
	if err != nil {
		return nil, errs.E(errs.KindUpstream, "search.BM25Search", "vector store scroll", err)
	}
	if len(candidates) == 0 {
		return []types.RetrievedDoc{}, nil
	}

	texts := make([]string, len(candidates))
	var totalLen int
	for i, c := range candidates {
		texts[i] = strings.ToLower(payloadText(c.Payload))
		totalLen += len(texts[i])
	}
	avgdl := float64(totalLen) / float64(len(candidates))
	if avgdl == 0 {
		return []types.RetrievedDoc{}, nil
	}

	scored := make([]types.RetrievedDoc, 0, len(candidates))
	for i, c := range candidates {
		score := bm25Score(texts[i], terms, avgdl)
		if score <= 0 {
			continue
		}
		scored = append(scored, docFromPayload(c.ID, score, c.Payload))
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}
	return scored, nil
}

func bm25Score(text string, terms []string, avgdl float64) float64 {
	dl := float64(len(text))
	var sum float64
	for _, term := range terms {
		tf := float64(strings.Count(text, term))
		if tf == 0 {
			continue
		}
		sum += tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*dl/avgdl))
	}
	return sum / float64(len(terms))
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= minTokenLen {
			out = append(out, f)
		}
	}
	return out
}

// RRF fuses ranked lists with reciprocal-rank scoring: each appearance at
// rank r contributes 1/(k + r + 1). Documents are keyed by point id and
// the first-seen payload wins.
func RRF(lists [][]types.RetrievedDoc, k int) []types.RetrievedDoc {
	scores := make(map[uint32]float64)
	byID := make(map[uint32]types.RetrievedDoc)
	order := make([]uint32, 0)

	for _, list := range lists {
		for rank, doc := range list {
			if _, seen := byID[doc.ID]; !seen {
				byID[doc.ID] = doc
				order = append(order, doc.ID)
			}
			scores[doc.ID] += 1.0 / float64(k+rank+1)
		}
	}

	out := make([]types.RetrievedDoc, 0, len(order))
	for _, id := range order {
		doc := byID[id]
		doc.Score = scores[id]
		out = append(out, doc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// HybridSearch fans out one goroutine pair per query (dense and sparse in
// parallel), fuses each pair with RRF, then fuses the per-query lists
// globally. A failed branch degrades to its sibling's results instead of
// failing the search.
func (s *searcher) HybridSearch(ctx context.Context, queries []string, filter intent.FilterSpec) ([]types.RetrievedDoc, error) {
	if len(queries) == 0 {
		return []types.RetrievedDoc{}, nil
	}

	perQuery := make([][]types.RetrievedDoc, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, query := range queries {
		g.Go(func() error {
			var dense, sparse []types.RetrievedDoc
			var denseErr, sparseErr error

			inner, ictx := errgroup.WithContext(gctx)
			inner.Go(func() error {
				dense, denseErr = s.VectorSearch(ictx, query, filter)
				return nil
			})
			inner.Go(func() error {
				sparse, sparseErr = s.BM25Search(ictx, query, filter)
				return nil
			})
			_ = inner.Wait()

			if denseErr != nil {
				s.log.Warn("vector branch failed, degrading to sparse", "query", query, "error", denseErr.Error())
			}
			if sparseErr != nil {
				s.log.Warn("sparse branch failed, degrading to dense", "query", query, "error", sparseErr.Error())
			}
			if denseErr != nil && sparseErr != nil {
				return denseErr
			}

			perQuery[i] = RRF([][]types.RetrievedDoc{dense, sparse}, RRFK)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return RRF(perQuery, RRFK), nil
}

func docFromPayload(id uint32, score float64, payload map[string]any) types.RetrievedDoc {
	doc := types.RetrievedDoc{ID: id, Score: score}
	if payload == nil {
		return doc
	}
	doc.Text = payloadText(payload)
	if v, ok := payload["entity_type"].(string); ok {
		doc.EntityType = v
	}
	if v, ok := payload["entity_id"].(string); ok {
		doc.EntityID = v
	}
	if v, ok := payload["metadata"].(map[string]any); ok {
		doc.Metadata = v
	}
	return doc
}

func payloadText(payload map[string]any) string {
	if v, ok := payload["text"].(string); ok {
		return v
	}
	return ""
}
