package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/taskbridge-backend/internal/platform/qdrant"
)

// instrumentedVectorStore wraps every store operation in a span so slow
// or failing Qdrant calls show up in traces without touching the client.
type instrumentedVectorStore struct {
	inner  qdrant.Store
	tracer trace.Tracer
}

func instrumentVectorStore(inner qdrant.Store) qdrant.Store {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{
		inner:  inner,
		tracer: otel.Tracer("taskbridge/vectorstore"),
	}
}

func (s *instrumentedVectorStore) observe(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "qdrant."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (s *instrumentedVectorStore) CreateCollection(ctx context.Context) error {
	ctx, done := s.observe(ctx, "create_collection")
	err := s.inner.CreateCollection(ctx)
	done(err)
	return err
}

func (s *instrumentedVectorStore) EnsurePayloadIndices(ctx context.Context) error {
	ctx, done := s.observe(ctx, "ensure_payload_indices")
	err := s.inner.EnsurePayloadIndices(ctx)
	done(err)
	return err
}

func (s *instrumentedVectorStore) Upsert(ctx context.Context, points []qdrant.Point) error {
	ctx, done := s.observe(ctx, "upsert", attribute.Int("points", len(points)))
	err := s.inner.Upsert(ctx, points)
	done(err)
	return err
}

func (s *instrumentedVectorStore) Search(ctx context.Context, vector []float32, limit int, filter *qdrant.Filter) ([]qdrant.ScoredPoint, error) {
	ctx, done := s.observe(ctx, "search", attribute.Int("limit", limit))
	out, err := s.inner.Search(ctx, vector, limit, filter)
	done(err)
	return out, err
}

func (s *instrumentedVectorStore) Scroll(ctx context.Context, limit int, filter *qdrant.Filter) ([]qdrant.ScrolledPoint, error) {
	ctx, done := s.observe(ctx, "scroll", attribute.Int("limit", limit))
	out, err := s.inner.Scroll(ctx, limit, filter)
	done(err)
	return out, err
}

func (s *instrumentedVectorStore) Delete(ctx context.Context, ids []uint32) error {
	ctx, done := s.observe(ctx, "delete", attribute.Int("points", len(ids)))
	err := s.inner.Delete(ctx, ids)
	done(err)
	return err
}

func (s *instrumentedVectorStore) DeleteCollection(ctx context.Context) error {
	ctx, done := s.observe(ctx, "delete_collection")
	err := s.inner.DeleteCollection(ctx)
	done(err)
	return err
}

func (s *instrumentedVectorStore) GetCollectionInfo(ctx context.Context) (*qdrant.CollectionInfo, error) {
	ctx, done := s.observe(ctx, "collection_info")
	out, err := s.inner.GetCollectionInfo(ctx)
	done(err)
	return out, err
}
