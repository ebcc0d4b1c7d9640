package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

type StaleIndexRepo interface {
	Record(ctx context.Context, tx *gorm.DB, entry *types.StaleIndexEntry) (*types.StaleIndexEntry, error)
	ListUnresolved(ctx context.Context, tx *gorm.DB, limit int) ([]*types.StaleIndexEntry, error)
	MarkResolved(ctx context.Context, tx *gorm.DB, entryID uuid.UUID) error
	CountUnresolved(ctx context.Context, tx *gorm.DB) (int64, error)
}

type staleIndexRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStaleIndexRepo(db *gorm.DB, baseLog *logger.Logger) StaleIndexRepo {
	repoLog := baseLog.With("repo", "StaleIndexRepo")
	return &staleIndexRepo{db: db, log: repoLog}
}

// Record inserts a fresh entry, or bumps the attempt counter when an
// unresolved entry for the same entity and operation already exists.
func (sr *staleIndexRepo) Record(ctx context.Context, tx *gorm.DB, entry *types.StaleIndexEntry) (*types.StaleIndexEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var existing types.StaleIndexEntry
	if err := transaction.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ? AND operation = ? AND resolved_at IS NULL",
			entry.EntityKind, entry.EntityID, entry.Operation).
		Limit(1).
		Find(&existing).Error; err != nil {
		return nil, err
	}

	if existing.ID != uuid.Nil {
		updates := map[string]any{
			"attempts": gorm.Expr("attempts + 1"),
			"reason":   entry.Reason,
		}
		if len(entry.Details) > 0 {
			updates["details"] = entry.Details
		}
		if err := transaction.WithContext(ctx).
			Model(&types.StaleIndexEntry{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error; err != nil {
			return nil, err
		}
		existing.Attempts++
		existing.Reason = entry.Reason
		return &existing, nil
	}

	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (sr *staleIndexRepo) ListUnresolved(ctx context.Context, tx *gorm.DB, limit int) ([]*types.StaleIndexEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	query := transaction.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var results []*types.StaleIndexEntry
	if err := query.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (sr *staleIndexRepo) MarkResolved(ctx context.Context, tx *gorm.DB, entryID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}
	now := time.Now().UTC()
	return transaction.WithContext(ctx).
		Model(&types.StaleIndexEntry{}).
		Where("id = ?", entryID).
		Update("resolved_at", now).Error
}

func (sr *staleIndexRepo) CountUnresolved(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.StaleIndexEntry{}).
		Where("resolved_at IS NULL").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
