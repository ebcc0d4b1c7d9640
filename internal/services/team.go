package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/taskbridge-backend/internal/data/repos"
	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/pkg/errs"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

type (
	CreateTeamInput = types.CreateTeamInput
	UpdateTeamInput = types.UpdateTeamInput
)

type TeamService interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateTeamInput) (*types.Team, error)
	GetByID(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) (*types.Team, error)
	List(ctx context.Context, tx *gorm.DB, page, pageSize int, search string) (*types.Page[*types.Team], error)
	Update(ctx context.Context, tx *gorm.DB, teamID uuid.UUID, input UpdateTeamInput) (*types.Team, error)
	Delete(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) error
}

type teamService struct {
	db          *gorm.DB
	log         *logger.Logger
	teamRepo    repos.TeamRepo
	userRepo    repos.UserRepo
	projectRepo repos.ProjectRepo
}

func NewTeamService(db *gorm.DB, baseLog *logger.Logger, teamRepo repos.TeamRepo, userRepo repos.UserRepo, projectRepo repos.ProjectRepo) TeamService {
	serviceLog := baseLog.With("service", "TeamService")
	return &teamService{db: db, log: serviceLog, teamRepo: teamRepo, userRepo: userRepo, projectRepo: projectRepo}
}

func (ts *teamService) Create(ctx context.Context, tx *gorm.DB, input CreateTeamInput) (*types.Team, error) {
	const op = "TeamService.Create"

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errs.E(errs.KindValidation, op, "name is required", nil)
	}
	if input.OwnerID == uuid.Nil {
		return nil, errs.E(errs.KindValidation, op, "owner_id is required", nil)
	}

	owner, err := ts.userRepo.GetByID(ctx, tx, input.OwnerID)
	if err != nil {
		ts.log.Error("Create failed", "error", err)
		return nil, errs.E(errs.KindInternal, op, "load owner", err)
	}
	if owner == nil {
		return nil, errs.E(errs.KindNotFound, op, "owner not found", nil)
	}

	if input.ProjectID != nil {
		project, err := ts.projectRepo.GetByID(ctx, tx, *input.ProjectID)
		if err != nil {
			return nil, errs.E(errs.KindInternal, op, "load project", err)
		}
		if project == nil {
			return nil, errs.E(errs.KindNotFound, op, "project not found", nil)
		}
	}

	team := &types.Team{
		Name:      name,
		OwnerID:   input.OwnerID,
		ProjectID: input.ProjectID,
	}
	created, err := ts.teamRepo.Create(ctx, tx, team)
	if err != nil {
		ts.log.Error("Create failed", "error", err)
		return nil, errs.E(errs.KindInternal, op, "create team", err)
	}

	ts.log.Info("Create", "team_id", created.ID)
	return created, nil
}

func (ts *teamService) GetByID(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) (*types.Team, error) {
	const op = "TeamService.GetByID"

	team, err := ts.teamRepo.GetByID(ctx, tx, teamID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "load team", err)
	}
	if team == nil {
		return nil, errs.E(errs.KindNotFound, op, "team not found", nil)
	}
	return team, nil
}

func (ts *teamService) List(ctx context.Context, tx *gorm.DB, page, pageSize int, search string) (*types.Page[*types.Team], error) {
	const op = "TeamService.List"

	page, pageSize, offset := normalizePage(page, pageSize)
	rows, total, err := ts.teamRepo.List(ctx, tx, offset, pageSize, search)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "list teams", err)
	}
	result := types.NewPage(rows, total, page, pageSize)
	return &result, nil
}

func (ts *teamService) Update(ctx context.Context, tx *gorm.DB, teamID uuid.UUID, input UpdateTeamInput) (*types.Team, error) {
	const op = "TeamService.Update"

	existing, err := ts.teamRepo.GetByID(ctx, tx, teamID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "load team", err)
	}
	if existing == nil {
		return nil, errs.E(errs.KindNotFound, op, "team not found", nil)
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errs.E(errs.KindValidation, op, "name cannot be empty", nil)
		}
		updates["name"] = name
	}
	if input.OwnerID != nil {
		owner, err := ts.userRepo.GetByID(ctx, tx, *input.OwnerID)
		if err != nil {
			return nil, errs.E(errs.KindInternal, op, "load owner", err)
		}
		if owner == nil {
			return nil, errs.E(errs.KindNotFound, op, "owner not found", nil)
		}
		updates["owner_id"] = *input.OwnerID
	}
	if input.ProjectID != nil {
		project, err := ts.projectRepo.GetByID(ctx, tx, *input.ProjectID)
		if err != nil {
			return nil, errs.E(errs.KindInternal, op, "load project", err)
		}
		if project == nil {
			return nil, errs.E(errs.KindNotFound, op, "project not found", nil)
		}
		updates["project_id"] = *input.ProjectID
	}

	if len(updates) == 0 {
		return existing, nil
	}

	if err := ts.teamRepo.Update(ctx, tx, teamID, updates); err != nil {
		ts.log.Error("Update failed", "error", err)
		return nil, errs.E(errs.KindInternal, op, "update team", err)
	}

	updated, err := ts.teamRepo.GetByID(ctx, tx, teamID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "reload team", err)
	}
	ts.log.Info("Update", "team_id", teamID)
	return updated, nil
}

func (ts *teamService) Delete(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) error {
	const op = "TeamService.Delete"

	existing, err := ts.teamRepo.GetByID(ctx, tx, teamID)
	if err != nil {
		return errs.E(errs.KindInternal, op, "load team", err)
	}
	if existing == nil {
		return errs.E(errs.KindNotFound, op, "team not found", nil)
	}

	if err := ts.teamRepo.Delete(ctx, tx, teamID); err != nil {
		ts.log.Error("Delete failed", "error", err)
		return errs.E(errs.KindInternal, op, "delete team", err)
	}

	ts.log.Info("Delete", "team_id", teamID)
	return nil
}
