package domain

import (
	"time"

	"github.com/google/uuid"
)

// Create/Update inputs are the write DTOs shared by the HTTP handlers,
// the entity services and the action executor. They live here so callers
// below the service layer can construct them without depending on it.

type CreateUserInput struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     string     `json:"role"`
	TeamID   *uuid.UUID `json:"team_id"`
}

type UpdateUserInput struct {
	Name     *string    `json:"name"`
	Email    *string    `json:"email"`
	Password *string    `json:"password"`
	Role     *string    `json:"role"`
	TeamID   *uuid.UUID `json:"team_id"`
}

type CreateTeamInput struct {
	Name      string     `json:"name"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	ProjectID *uuid.UUID `json:"project_id"`
}

type UpdateTeamInput struct {
	Name      *string    `json:"name"`
	OwnerID   *uuid.UUID `json:"owner_id"`
	ProjectID *uuid.UUID `json:"project_id"`
}

type CreateProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type UpdateProjectInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type CreateTaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	AssignedTo  *uuid.UUID `json:"assigned_to"`
	Deadline    *time.Time `json:"deadline"`
}

type UpdateTaskInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	AssignedTo  *uuid.UUID `json:"assigned_to"`
	Deadline    *time.Time `json:"deadline"`
}
