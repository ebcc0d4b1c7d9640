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
	CreateProjectInput = types.CreateProjectInput
	UpdateProjectInput = types.UpdateProjectInput
)

type ProjectService interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateProjectInput) (*types.Project, error)
	GetByID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (*types.Project, error)
	List(ctx context.Context, tx *gorm.DB, page, pageSize int, search string) (*types.Page[*types.Project], error)
	Update(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, input UpdateProjectInput) (*types.Project, error)
	Delete(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error
}

type projectService struct {
	db          *gorm.DB
	log         *logger.Logger
	projectRepo repos.ProjectRepo
}

func NewProjectService(db *gorm.DB, baseLog *logger.Logger, projectRepo repos.ProjectRepo) ProjectService {
	serviceLog := baseLog.With("service", "ProjectService")
	return &projectService{db: db, log: serviceLog, projectRepo: projectRepo}
}

func (ps *projectService) Create(ctx context.Context, tx *gorm.DB, input CreateProjectInput) (*types.Project, error) {
	const op = "ProjectService.Create"

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errs.E(errs.KindValidation, op, "name is required", nil)
	}

	project := &types.Project{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
	}
	created, err := ps.projectRepo.Create(ctx, tx, project)
	if err != nil {
		ps.log.Error("Create failed", "error", err)
		return nil, errs.E(errs.KindInternal, op, "create project", err)
	}

	ps.log.Info("Create", "project_id", created.ID)
	return created, nil
}

func (ps *projectService) GetByID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (*types.Project, error) {
	const op = "ProjectService.GetByID"

	project, err := ps.projectRepo.GetByID(ctx, tx, projectID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "load project", err)
	}
	if project == nil {
		return nil, errs.E(errs.KindNotFound, op, "project not found", nil)
	}
	return project, nil
}

func (ps *projectService) List(ctx context.Context, tx *gorm.DB, page, pageSize int, search string) (*types.Page[*types.Project], error) {
	const op = "ProjectService.List"

	page, pageSize, offset := normalizePage(page, pageSize)
	rows, total, err := ps.projectRepo.List(ctx, tx, offset, pageSize, search)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "list projects", err)
	}
	result := types.NewPage(rows, total, page, pageSize)
	return &result, nil
}

func (ps *projectService) Update(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, input UpdateProjectInput) (*types.Project, error) {
	const op = "ProjectService.Update"

	existing, err := ps.projectRepo.GetByID(ctx, tx, projectID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "load project", err)
	}
	if existing == nil {
		return nil, errs.E(errs.KindNotFound, op, "project not found", nil)
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errs.E(errs.KindValidation, op, "name cannot be empty", nil)
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}

	if len(updates) == 0 {
		return existing, nil
	}

	if err := ps.projectRepo.Update(ctx, tx, projectID, updates); err != nil {
		ps.log.Error("Update failed", "error", err)
		return nil, errs.E(errs.KindInternal, op, "update project", err)
	}

	updated, err := ps.projectRepo.GetByID(ctx, tx, projectID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "reload project", err)
	}
	ps.log.Info("Update", "project_id", projectID)
	return updated, nil
}

func (ps *projectService) Delete(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error {
	const op = "ProjectService.Delete"

	existing, err := ps.projectRepo.GetByID(ctx, tx, projectID)
	if err != nil {
		return errs.E(errs.KindInternal, op, "load project", err)
	}
	if existing == nil {
		return errs.E(errs.KindNotFound, op, "project not found", nil)
	}

	if err := ps.projectRepo.Delete(ctx, tx, projectID); err != nil {
		ps.log.Error("Delete failed", "error", err)
		return errs.E(errs.KindInternal, op, "delete project", err)
	}

	ps.log.Info("Delete", "project_id", projectID)
	return nil
}
