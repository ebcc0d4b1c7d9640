package repos

import (
	"context"
	"testing"

	"github.com/yungbote/taskbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/taskbridge-backend/internal/domain"
)

func TestStaleIndexRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewStaleIndexRepo(db, testutil.Logger(t))
	ctx := context.Background()

	first, err := repo.Record(ctx, tx, &types.StaleIndexEntry{
		EntityKind: string(types.KindTask),
		EntityID:   "11111111-1111-1111-1111-111111111111",
		Operation:  "index",
		Reason:     "qdrant unreachable",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if first.Attempts != 1 {
		t.Fatalf("Record: want attempts=1, got %d", first.Attempts)
	}

	second, err := repo.Record(ctx, tx, &types.StaleIndexEntry{
		EntityKind: string(types.KindTask),
		EntityID:   "11111111-1111-1111-1111-111111111111",
		Operation:  "index",
		Reason:     "qdrant timeout",
	})
	if err != nil {
		t.Fatalf("Record (repeat): %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("Record (repeat): expected same entry, got %s and %s", first.ID, second.ID)
	}
	if second.Attempts != 2 {
		t.Fatalf("Record (repeat): want attempts=2, got %d", second.Attempts)
	}

	unresolved, err := repo.ListUnresolved(ctx, tx, 10)
	if err != nil {
		t.Fatalf("ListUnresolved: %v", err)
	}
	if len(unresolved) != 1 {
		t.Fatalf("ListUnresolved: want 1 entry, got %d", len(unresolved))
	}
	if unresolved[0].Reason != "qdrant timeout" {
		t.Fatalf("ListUnresolved: reason not updated, got %q", unresolved[0].Reason)
	}

	if err := repo.MarkResolved(ctx, tx, first.ID); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	count, err := repo.CountUnresolved(ctx, tx)
	if err != nil {
		t.Fatalf("CountUnresolved: %v", err)
	}
	if count != 0 {
		t.Fatalf("CountUnresolved: want 0, got %d", count)
	}
}
