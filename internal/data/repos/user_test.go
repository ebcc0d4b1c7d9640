package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/taskbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/taskbridge-backend/internal/domain"
)

func TestUserRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewUserRepo(db, testutil.Logger(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, tx, &types.User{
		Name:         "Youssef Mohamed",
		Email:        "youssef@example.com",
		PasswordHash: "hash",
		Role:         types.RoleMember,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatalf("Create: expected generated id")
	}

	got, err := repo.GetByID(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Email != created.Email {
		t.Fatalf("GetByID: unexpected result: %+v", got)
	}

	missing, err := repo.GetByID(ctx, tx, uuid.New())
	if err != nil {
		t.Fatalf("GetByID (missing): %v", err)
	}
	if missing != nil {
		t.Fatalf("GetByID (missing): expected nil, got %+v", missing)
	}

	exists, err := repo.EmailExists(ctx, tx, "YOUSSEF@example.com", nil)
	if err != nil {
		t.Fatalf("EmailExists: %v", err)
	}
	if !exists {
		t.Fatalf("EmailExists: expected true for case-insensitive match")
	}

	exists, err = repo.EmailExists(ctx, tx, created.Email, &created.ID)
	if err != nil {
		t.Fatalf("EmailExists (exclude self): %v", err)
	}
	if exists {
		t.Fatalf("EmailExists (exclude self): expected false")
	}

	if _, err := repo.Create(ctx, tx, &types.User{
		Name:         "Sara Ali",
		Email:        "sara@example.com",
		PasswordHash: "hash",
		Role:         types.RoleAdmin,
	}); err != nil {
		t.Fatalf("Create second: %v", err)
	}

	rows, total, err := repo.List(ctx, tx, 0, 10, "youssef")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ID != created.ID {
		t.Fatalf("List: want only youssef, got total=%d rows=%d", total, len(rows))
	}

	rows, total, err = repo.List(ctx, tx, 1, 1, "")
	if err != nil {
		t.Fatalf("List (page 2): %v", err)
	}
	if total != 2 || len(rows) != 1 {
		t.Fatalf("List (page 2): want total=2 rows=1, got total=%d rows=%d", total, len(rows))
	}

	if err := repo.Update(ctx, tx, created.ID, map[string]any{"name": "Youssef M."}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = repo.GetByID(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if got.Name != "Youssef M." {
		t.Fatalf("Update: name not applied, got %q", got.Name)
	}

	if err := repo.Delete(ctx, tx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	count, err := repo.Count(ctx, tx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("Count after delete: want 1, got %d", count)
	}
}

func TestUserRepoRelations(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	users := NewUserRepo(db, testutil.Logger(t))
	teams := NewTeamRepo(db, testutil.Logger(t))
	projects := NewProjectRepo(db, testutil.Logger(t))
	tasks := NewTaskRepo(db, testutil.Logger(t))
	ctx := context.Background()

	owner, err := users.Create(ctx, tx, &types.User{
		Name:         "Owner",
		Email:        "owner-rel@example.com",
		PasswordHash: "hash",
		Role:         types.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("Create owner: %v", err)
	}

	project, err := projects.Create(ctx, tx, &types.Project{Name: "Infra", Description: "Infrastructure work"})
	if err != nil {
		t.Fatalf("Create project: %v", err)
	}

	team, err := teams.Create(ctx, tx, &types.Team{
		Name:      "Backend Team",
		OwnerID:   owner.ID,
		ProjectID: &project.ID,
	})
	if err != nil {
		t.Fatalf("Create team: %v", err)
	}

	if err := users.Update(ctx, tx, owner.ID, map[string]any{"team_id": team.ID}); err != nil {
		t.Fatalf("attach owner to team: %v", err)
	}

	if _, err := tasks.Create(ctx, tx, &types.Task{
		Title:      "Database Optimization",
		Status:     types.StatusInProgress,
		AssignedTo: &owner.ID,
	}); err != nil {
		t.Fatalf("Create task: %v", err)
	}

	got, err := users.GetWithRelations(ctx, tx, owner.ID)
	if err != nil {
		t.Fatalf("GetWithRelations: %v", err)
	}
	if got.Team == nil || got.Team.Name != "Backend Team" {
		t.Fatalf("GetWithRelations: team not loaded: %+v", got.Team)
	}
	if got.Team.Project == nil || got.Team.Project.Name != "Infra" {
		t.Fatalf("GetWithRelations: team project not loaded: %+v", got.Team.Project)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Title != "Database Optimization" {
		t.Fatalf("GetWithRelations: tasks not loaded: %+v", got.Tasks)
	}
}
