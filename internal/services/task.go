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
	CreateTaskInput = types.CreateTaskInput
	UpdateTaskInput = types.UpdateTaskInput
)

type TaskService interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateTaskInput) (*types.Task, error)
	GetByID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*types.Task, error)
	List(ctx context.Context, tx *gorm.DB, page, pageSize int, search string) (*types.Page[*types.Task], error)
	Update(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, input UpdateTaskInput) (*types.Task, error)
	Delete(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) error
}

type taskService struct {
	db       *gorm.DB
	log      *logger.Logger
	taskRepo repos.TaskRepo
	userRepo repos.UserRepo
}

func NewTaskService(db *gorm.DB, baseLog *logger.Logger, taskRepo repos.TaskRepo, userRepo repos.UserRepo) TaskService {
	serviceLog := baseLog.With("service", "TaskService")
	return &taskService{db: db, log: serviceLog, taskRepo: taskRepo, userRepo: userRepo}
}

func (ts *taskService) Create(ctx context.Context, tx *gorm.DB, input CreateTaskInput) (*types.Task, error) {
	const op = "TaskService.Create"

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errs.E(errs.KindValidation, op, "title is required", nil)
	}

	status := types.StatusTodo
	if strings.TrimSpace(input.Status) != "" {
		normalized, ok := types.NormalizeTaskStatus(input.Status)
		if !ok {
			return nil, errs.E(errs.KindValidation, op, "status must be todo, in_progress or done", nil)
		}
		status = normalized
	}

	if input.AssignedTo != nil {
		assignee, err := ts.userRepo.GetByID(ctx, tx, *input.AssignedTo)
		if err != nil {
			ts.log.Error("Create failed", "error", err)
			return nil, errs.E(errs.KindInternal, op, "load assignee", err)
		}
		if assignee == nil {
			return nil, errs.E(errs.KindNotFound, op, "assignee not found", nil)
		}
	}

	task := &types.Task{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      status,
		AssignedTo:  input.AssignedTo,
		Deadline:    input.Deadline,
	}
	created, err := ts.taskRepo.Create(ctx, tx, task)
	if err != nil {
		ts.log.Error("Create failed", "error", err)
		return nil, errs.E(errs.KindInternal, op, "create task", err)
	}

	ts.log.Info("Create", "task_id", created.ID)
	return created, nil
}

func (ts *taskService) GetByID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*types.Task, error) {
	const op = "TaskService.GetByID"

	task, err := ts.taskRepo.GetByID(ctx, tx, taskID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "load task", err)
	}
	if task == nil {
		return nil, errs.E(errs.KindNotFound, op, "task not found", nil)
	}
	return task, nil
}

func (ts *taskService) List(ctx context.Context, tx *gorm.DB, page, pageSize int, search string) (*types.Page[*types.Task], error) {
	const op = "TaskService.List"

	page, pageSize, offset := normalizePage(page, pageSize)
	rows, total, err := ts.taskRepo.List(ctx, tx, offset, pageSize, search)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "list tasks", err)
	}
	result := types.NewPage(rows, total, page, pageSize)
	return &result, nil
}

func (ts *taskService) Update(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, input UpdateTaskInput) (*types.Task, error) {
	const op = "TaskService.Update"

	existing, err := ts.taskRepo.GetByID(ctx, tx, taskID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "load task", err)
	}
	if existing == nil {
		return nil, errs.E(errs.KindNotFound, op, "task not found", nil)
	}

	updates := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errs.E(errs.KindValidation, op, "title cannot be empty", nil)
		}
		updates["title"] = title
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		normalized, ok := types.NormalizeTaskStatus(*input.Status)
		if !ok {
			return nil, errs.E(errs.KindValidation, op, "status must be todo, in_progress or done", nil)
		}
		updates["status"] = string(normalized)
	}
	if input.AssignedTo != nil {
		assignee, err := ts.userRepo.GetByID(ctx, tx, *input.AssignedTo)
		if err != nil {
			return nil, errs.E(errs.KindInternal, op, "load assignee", err)
		}
		if assignee == nil {
			return nil, errs.E(errs.KindNotFound, op, "assignee not found", nil)
		}
		updates["assigned_to"] = *input.AssignedTo
	}
	if input.Deadline != nil {
		updates["deadline"] = *input.Deadline
	}

	if len(updates) == 0 {
		return existing, nil
	}

	if err := ts.taskRepo.Update(ctx, tx, taskID, updates); err != nil {
		ts.log.Error("Update failed", "error", err)
		return nil, errs.E(errs.KindInternal, op, "update task", err)
	}

	updated, err := ts.taskRepo.GetByID(ctx, tx, taskID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "reload task", err)
	}
	ts.log.Info("Update", "task_id", taskID)
	return updated, nil
}

func (ts *taskService) Delete(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) error {
	const op = "TaskService.Delete"

	existing, err := ts.taskRepo.GetByID(ctx, tx, taskID)
	if err != nil {
		return errs.E(errs.KindInternal, op, "load task", err)
	}
	if existing == nil {
		return errs.E(errs.KindNotFound, op, "task not found", nil)
	}

	if err := ts.taskRepo.Delete(ctx, tx, taskID); err != nil {
		ts.log.Error("Delete failed", "error", err)
		return errs.E(errs.KindInternal, op, "delete task", err)
	}

	ts.log.Info("Delete", "task_id", taskID)
	return nil
}
