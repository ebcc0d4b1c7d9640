package services

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/taskbridge-backend/internal/data/repos"
	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/pkg/errs"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

// Input DTOs are defined in the domain package; the aliases keep the
// service-level names callers bind against.
type (
	CreateUserInput = types.CreateUserInput
	UpdateUserInput = types.UpdateUserInput
)

type UserService interface {
	Create(ctx context.Context, tx *gorm.DB, input CreateUserInput) (*types.User, error)
	GetByID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.User, error)
	List(ctx context.Context, tx *gorm.DB, page, pageSize int, search string) (*types.Page[*types.User], error)
	Update(ctx context.Context, tx *gorm.DB, userID uuid.UUID, input UpdateUserInput) (*types.User, error)
	Delete(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type userService struct {
	db       *gorm.DB
	log      *logger.Logger
	userRepo repos.UserRepo
	teamRepo repos.TeamRepo
}

func NewUserService(db *gorm.DB, baseLog *logger.Logger, userRepo repos.UserRepo, teamRepo repos.TeamRepo) UserService {
	serviceLog := baseLog.With("service", "UserService")
	return &userService{db: db, log: serviceLog, userRepo: userRepo, teamRepo: teamRepo}
}

func (us *userService) Create(ctx context.Context, tx *gorm.DB, input CreateUserInput) (*types.User, error) {
	const op = "UserService.Create"

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errs.E(errs.KindValidation, op, "name is required", nil)
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errs.E(errs.KindValidation, op, "email is invalid", nil)
	}
	if len(input.Password) < minPasswordLen {
		return nil, errs.E(errs.KindValidation, op, "password must be at least 6 characters", nil)
	}
	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = types.RoleMember
	}
	if !types.ValidRole(role) {
		return nil, errs.E(errs.KindValidation, op, "role must be admin or member", nil)
	}

	exists, err := us.userRepo.EmailExists(ctx, tx, email, nil)
	if err != nil {
		us.log.Error("Create failed", "error", err)
		return nil, errs.E(errs.KindInternal, op, "check email uniqueness", err)
	}
	if exists {
		return nil, errs.E(errs.KindConflict, op, "email already in use", nil)
	}

	if input.TeamID != nil {
		team, err := us.teamRepo.GetByID(ctx, tx, *input.TeamID)
		if err != nil {
			us.log.Error("Create failed", "error", err)
			return nil, errs.E(errs.KindInternal, op, "load team", err)
		}
		if team == nil {
			return nil, errs.E(errs.KindNotFound, op, "team not found", nil)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "hash password", err)
	}

	user := &types.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		TeamID:       input.TeamID,
	}
	created, err := us.userRepo.Create(ctx, tx, user)
	if err != nil {
		us.log.Error("Create failed", "error", err)
		return nil, errs.E(errs.KindInternal, op, "create user", err)
	}

	us.log.Info("Create", "user_id", created.ID)
	return created, nil
}

func (us *userService) GetByID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.User, error) {
	const op = "UserService.GetByID"

	user, err := us.userRepo.GetByID(ctx, tx, userID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "load user", err)
	}
	if user == nil {
		return nil, errs.E(errs.KindNotFound, op, "user not found", nil)
	}
	return user, nil
}

func (us *userService) List(ctx context.Context, tx *gorm.DB, page, pageSize int, search string) (*types.Page[*types.User], error) {
	const op = "UserService.List"

	page, pageSize, offset := normalizePage(page, pageSize)
	rows, total, err := us.userRepo.List(ctx, tx, offset, pageSize, search)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "list users", err)
	}
	result := types.NewPage(rows, total, page, pageSize)
	return &result, nil
}

func (us *userService) Update(ctx context.Context, tx *gorm.DB, userID uuid.UUID, input UpdateUserInput) (*types.User, error) {
	const op = "UserService.Update"

	existing, err := us.userRepo.GetByID(ctx, tx, userID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "load user", err)
	}
	if existing == nil {
		return nil, errs.E(errs.KindNotFound, op, "user not found", nil)
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errs.E(errs.KindValidation, op, "name cannot be empty", nil)
		}
		updates["name"] = name
	}
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, errs.E(errs.KindValidation, op, "email is invalid", nil)
		}
		exists, err := us.userRepo.EmailExists(ctx, tx, email, &userID)
		if err != nil {
			return nil, errs.E(errs.KindInternal, op, "check email uniqueness", err)
		}
		if exists {
			return nil, errs.E(errs.KindConflict, op, "email already in use", nil)
		}
		updates["email"] = email
	}
	if input.Password != nil {
		if len(*input.Password) < minPasswordLen {
			return nil, errs.E(errs.KindValidation, op, "password must be at least 6 characters", nil)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, errs.E(errs.KindInternal, op, "hash password", err)
		}
		updates["password_hash"] = string(hash)
	}
	if input.Role != nil {
		if !types.ValidRole(*input.Role) {
			return nil, errs.E(errs.KindValidation, op, "role must be admin or member", nil)
		}
		updates["role"] = *input.Role
	}
	if input.TeamID != nil {
		team, err := us.teamRepo.GetByID(ctx, tx, *input.TeamID)
		if err != nil {
			return nil, errs.E(errs.KindInternal, op, "load team", err)
		}
		if team == nil {
			return nil, errs.E(errs.KindNotFound, op, "team not found", nil)
		}
		updates["team_id"] = *input.TeamID
	}

	if len(updates) == 0 {
		return existing, nil
	}

	if err := us.userRepo.Update(ctx, tx, userID, updates); err != nil {
		us.log.Error("Update failed", "error", err)
		return nil, errs.E(errs.KindInternal, op, "update user", err)
	}

	updated, err := us.userRepo.GetByID(ctx, tx, userID)
	if err != nil {
		return nil, errs.E(errs.KindInternal, op, "reload user", err)
	}
	us.log.Info("Update", "user_id", userID)
	return updated, nil
}

func (us *userService) Delete(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	const op = "UserService.Delete"

	existing, err := us.userRepo.GetByID(ctx, tx, userID)
	if err != nil {
		return errs.E(errs.KindInternal, op, "load user", err)
	}
	if existing == nil {
		return errs.E(errs.KindNotFound, op, "user not found", nil)
	}

	if err := us.userRepo.Delete(ctx, tx, userID); err != nil {
		us.log.Error("Delete failed", "error", err)
		return errs.E(errs.KindInternal, op, "delete user", err)
	}

	us.log.Info("Delete", "user_id", userID)
	return nil
}
