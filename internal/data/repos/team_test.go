package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/taskbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/taskbridge-backend/internal/domain"
)

func TestTeamRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	users := NewUserRepo(db, testutil.Logger(t))
	teams := NewTeamRepo(db, testutil.Logger(t))
	projects := NewProjectRepo(db, testutil.Logger(t))
	ctx := context.Background()

	owner, err := users.Create(ctx, tx, &types.User{
		Name:         "Team Owner",
		Email:        "team-owner@example.com",
		PasswordHash: "hash",
		Role:         types.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("Create owner: %v", err)
	}

	project, err := projects.Create(ctx, tx, &types.Project{Name: "Infra"})
	if err != nil {
		t.Fatalf("Create project: %v", err)
	}

	created, err := teams.Create(ctx, tx, &types.Team{
		Name:      "Backend Team",
		OwnerID:   owner.ID,
		ProjectID: &project.ID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == uuid.Nil {
		t.Fatalf("Create: expected generated id")
	}

	member, err := users.Create(ctx, tx, &types.User{
		Name:         "Member One",
		Email:        "member-one@example.com",
		PasswordHash: "hash",
		Role:         types.RoleMember,
		TeamID:       &created.ID,
	})
	if err != nil {
		t.Fatalf("Create member: %v", err)
	}

	got, err := teams.GetWithRelations(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("GetWithRelations: %v", err)
	}
	if got.Owner == nil || got.Owner.ID != owner.ID {
		t.Fatalf("GetWithRelations: owner not loaded: %+v", got.Owner)
	}
	if got.Project == nil || got.Project.Name != "Infra" {
		t.Fatalf("GetWithRelations: project not loaded: %+v", got.Project)
	}
	if len(got.Members) != 1 || got.Members[0].ID != member.ID {
		t.Fatalf("GetWithRelations: members not loaded: %+v", got.Members)
	}

	rows, total, err := teams.List(ctx, tx, 0, 10, "backend")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ID != created.ID {
		t.Fatalf("List: want the backend team, got total=%d rows=%d", total, len(rows))
	}

	if err := teams.Update(ctx, tx, created.ID, map[string]any{"name": "Platform Team"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = teams.GetByID(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Platform Team" {
		t.Fatalf("Update: name not applied, got %q", got.Name)
	}

	if err := teams.Delete(ctx, tx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	count, err := teams.Count(ctx, tx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("Count after delete: want 0, got %d", count)
	}
}
