package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/taskbridge-backend/internal/platform/qdrant"
)

type recordingStore struct {
	calls []string
	fail  bool
}

func (s *recordingStore) err() error {
	if s.fail {
		return errors.New("qdrant down")
	}
	return nil
}

func (s *recordingStore) CreateCollection(ctx context.Context) error {
	s.calls = append(s.calls, "create_collection")
	return s.err()
}

func (s *recordingStore) EnsurePayloadIndices(ctx context.Context) error {
	s.calls = append(s.calls, "ensure_payload_indices")
	return s.err()
}

func (s *recordingStore) Upsert(ctx context.Context, points []qdrant.Point) error {
	s.calls = append(s.calls, "upsert")
	return s.err()
}

func (s *recordingStore) Search(ctx context.Context, vector []float32, limit int, filter *qdrant.Filter) ([]qdrant.ScoredPoint, error) {
	s.calls = append(s.calls, "search")
	return nil, s.err()
}

func (s *recordingStore) Scroll(ctx context.Context, limit int, filter *qdrant.Filter) ([]qdrant.ScrolledPoint, error) {
	s.calls = append(s.calls, "scroll")
	return nil, s.err()
}

func (s *recordingStore) Delete(ctx context.Context, ids []uint32) error {
	s.calls = append(s.calls, "delete")
	return s.err()
}

func (s *recordingStore) DeleteCollection(ctx context.Context) error {
	s.calls = append(s.calls, "delete_collection")
	return s.err()
}

func (s *recordingStore) GetCollectionInfo(ctx context.Context) (*qdrant.CollectionInfo, error) {
	s.calls = append(s.calls, "collection_info")
	return nil, s.err()
}

func TestInstrumentedStorePassesThrough(t *testing.T) {
	inner := &recordingStore{}
	store := instrumentVectorStore(inner)
	ctx := context.Background()

	if err := store.CreateCollection(ctx); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if err := store.Upsert(ctx, []qdrant.Point{{ID: 1}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := store.Search(ctx, []float32{0.1}, 5, nil); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if err := store.Delete(ctx, []uint32{1}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	want := []string{"create_collection", "upsert", "search", "delete"}
	if len(inner.calls) != len(want) {
		t.Fatalf("calls: want=%d got=%d (%v)", len(want), len(inner.calls), inner.calls)
	}
	for i, op := range want {
		if inner.calls[i] != op {
			t.Fatalf("calls[%d]: want=%s got=%s", i, op, inner.calls[i])
		}
	}
}

func TestInstrumentedStorePropagatesErrors(t *testing.T) {
	inner := &recordingStore{fail: true}
	store := instrumentVectorStore(inner)

	if err := store.Upsert(context.Background(), nil); err == nil {
		t.Fatalf("Upsert: expected error")
	}
	if _, err := store.GetCollectionInfo(context.Background()); err == nil {
		t.Fatalf("GetCollectionInfo: expected error")
	}
}

func TestInstrumentNilStore(t *testing.T) {
	if got := instrumentVectorStore(nil); got != nil {
		t.Fatalf("nil store: want=nil got=%v", got)
	}
}
