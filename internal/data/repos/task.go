package repos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

type TaskRepo interface {
	Create(ctx context.Context, tx *gorm.DB, task *types.Task) (*types.Task, error)
	GetByID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*types.Task, error)
	GetWithRelations(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*types.Task, error)
	List(ctx context.Context, tx *gorm.DB, offset, limit int, search string) ([]*types.Task, int64, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Task, error)
	Update(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) error
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
	CountByStatus(ctx context.Context, tx *gorm.DB) (map[string]int64, error)
	CountOverdue(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	repoLog := baseLog.With("repo", "TaskRepo")
	return &taskRepo{db: db, log: repoLog}
}

func (tr *taskRepo) Create(ctx context.Context, tx *gorm.DB, task *types.Task) (*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	if err := transaction.WithContext(ctx).Create(task).Error; err != nil {
		return nil, err
	}

	return task, nil
}

func (tr *taskRepo) GetByID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var result types.Task
	if err := transaction.WithContext(ctx).
		Where("id = ?", taskID).
		Limit(1).
		Find(&result).Error; err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

// GetWithRelations walks assignee, assignee team and team project so a
// task document can name the people and project around it.
func (tr *taskRepo) GetWithRelations(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var result types.Task
	if err := transaction.WithContext(ctx).
		Preload("Assignee").
		Preload("Assignee.Team").
		Preload("Assignee.Team.Project").
		Where("id = ?", taskID).
		Limit(1).
		Find(&result).Error; err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

func (tr *taskRepo) List(ctx context.Context, tx *gorm.DB, offset, limit int, search string) ([]*types.Task, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	query := transaction.WithContext(ctx).Model(&types.Task{})
	if s := strings.TrimSpace(search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(title) LIKE ?", pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []*types.Task
	if err := query.
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (tr *taskRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var results []*types.Task
	if err := transaction.WithContext(ctx).
		Preload("Assignee").
		Preload("Assignee.Team").
		Preload("Assignee.Team.Project").
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (tr *taskRepo) Update(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, updates map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Task{}).
		Where("id = ?", taskID).
		Updates(updates).Error
}

func (tr *taskRepo) Delete(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", taskID).
		Delete(&types.Task{}).Error
}

func (tr *taskRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Task{}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (tr *taskRepo) CountByStatus(ctx context.Context, tx *gorm.DB) (map[string]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	type statusRow struct {
		Status string
		Count  int64
	}
	var rows []statusRow
	if err := transaction.WithContext(ctx).
		Model(&types.Task{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (tr *taskRepo) CountOverdue(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Task{}).
		Where("deadline IS NOT NULL AND deadline < ? AND status <> ?", now, string(types.StatusDone)).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
