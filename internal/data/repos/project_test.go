package repos

import (
	"context"
	"testing"

	"github.com/yungbote/taskbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/taskbridge-backend/internal/domain"
)

func TestProjectRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	users := NewUserRepo(db, testutil.Logger(t))
	teams := NewTeamRepo(db, testutil.Logger(t))
	projects := NewProjectRepo(db, testutil.Logger(t))
	ctx := context.Background()

	created, err := projects.Create(ctx, tx, &types.Project{
		Name:        "Infra",
		Description: "Infrastructure and platform work",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	owner, err := users.Create(ctx, tx, &types.User{
		Name:         "Project Owner",
		Email:        "project-owner@example.com",
		PasswordHash: "hash",
		Role:         types.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("Create owner: %v", err)
	}

	team, err := teams.Create(ctx, tx, &types.Team{
		Name:      "Backend Team",
		OwnerID:   owner.ID,
		ProjectID: &created.ID,
	})
	if err != nil {
		t.Fatalf("Create team: %v", err)
	}

	if err := users.Update(ctx, tx, owner.ID, map[string]any{"team_id": team.ID}); err != nil {
		t.Fatalf("attach owner to team: %v", err)
	}

	got, err := projects.GetWithRelations(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("GetWithRelations: %v", err)
	}
	if len(got.Teams) != 1 || got.Teams[0].ID != team.ID {
		t.Fatalf("GetWithRelations: teams not loaded: %+v", got.Teams)
	}
	if len(got.Teams[0].Members) != 1 {
		t.Fatalf("GetWithRelations: team members not loaded: %+v", got.Teams[0].Members)
	}

	rows, total, err := projects.List(ctx, tx, 0, 10, "infra")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("List: want one project, got total=%d rows=%d", total, len(rows))
	}

	if err := projects.Update(ctx, tx, created.ID, map[string]any{"description": "Rewritten"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = projects.GetByID(ctx, tx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Description != "Rewritten" {
		t.Fatalf("Update: description not applied, got %q", got.Description)
	}

	if err := projects.Delete(ctx, tx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	count, err := projects.Count(ctx, tx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("Count after delete: want 0, got %d", count)
	}
}
