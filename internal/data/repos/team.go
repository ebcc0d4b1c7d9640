package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

type TeamRepo interface {
	Create(ctx context.Context, tx *gorm.DB, team *types.Team) (*types.Team, error)
	GetByID(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) (*types.Team, error)
	GetWithRelations(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) (*types.Team, error)
	List(ctx context.Context, tx *gorm.DB, offset, limit int, search string) ([]*types.Team, int64, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Team, error)
	Update(ctx context.Context, tx *gorm.DB, teamID uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) error
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
}

type teamRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTeamRepo(db *gorm.DB, baseLog *logger.Logger) TeamRepo {
	repoLog := baseLog.With("repo", "TeamRepo")
	return &teamRepo{db: db, log: repoLog}
}

func (tr *teamRepo) Create(ctx context.Context, tx *gorm.DB, team *types.Team) (*types.Team, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	if err := transaction.WithContext(ctx).Create(team).Error; err != nil {
		return nil, err
	}

	return team, nil
}

func (tr *teamRepo) GetByID(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) (*types.Team, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var result types.Team
	if err := transaction.WithContext(ctx).
		Where("id = ?", teamID).
		Limit(1).
		Find(&result).Error; err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

func (tr *teamRepo) GetWithRelations(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) (*types.Team, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var result types.Team
	if err := transaction.WithContext(ctx).
		Preload("Owner").
		Preload("Project").
		Preload("Members").
		Where("id = ?", teamID).
		Limit(1).
		Find(&result).Error; err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

func (tr *teamRepo) List(ctx context.Context, tx *gorm.DB, offset, limit int, search string) ([]*types.Team, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	query := transaction.WithContext(ctx).Model(&types.Team{})
	if s := strings.TrimSpace(search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(name) LIKE ?", pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []*types.Team
	if err := query.
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (tr *teamRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]*types.Team, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var results []*types.Team
	if err := transaction.WithContext(ctx).
		Preload("Owner").
		Preload("Project").
		Preload("Members").
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (tr *teamRepo) Update(ctx context.Context, tx *gorm.DB, teamID uuid.UUID, updates map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Team{}).
		Where("id = ?", teamID).
		Updates(updates).Error
}

func (tr *teamRepo) Delete(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}
	return transaction.WithContext(ctx).
		Where("id = ?", teamID).
		Delete(&types.Team{}).Error
}

func (tr *teamRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Team{}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
