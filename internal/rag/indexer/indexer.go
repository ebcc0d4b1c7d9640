package indexer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/taskbridge-backend/internal/data/repos"
	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/pkg/errs"
	"github.com/yungbote/taskbridge-backend/internal/platform/embedding"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
	"github.com/yungbote/taskbridge-backend/internal/platform/qdrant"
	"github.com/yungbote/taskbridge-backend/internal/rag/document"
)

// Stats summarizes one full re-sync of the vector collection.
type Stats struct {
	UsersIndexed    int      `json:"usersIndexed"`
	TeamsIndexed    int      `json:"teamsIndexed"`
	ProjectsIndexed int      `json:"projectsIndexed"`
	TasksIndexed    int      `json:"tasksIndexed"`
	DurationMs      int64    `json:"durationMs"`
	Errors          []string `json:"errors"`
}

// SweepStats summarizes one pass over recorded stale-index entries.
type SweepStats struct {
	Swept    int `json:"swept"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}

// Service keeps the vector collection in step with the relational store.
// Per-entity methods serve the online write path; IndexAll is the bulk
// re-sync; SweepStale retries writes that failed post-commit.
type Service interface {
	IndexUser(ctx context.Context, userID uuid.UUID) error
	IndexTeam(ctx context.Context, teamID uuid.UUID) error
	IndexProject(ctx context.Context, projectID uuid.UUID) error
	IndexTask(ctx context.Context, taskID uuid.UUID) error
	Index(ctx context.Context, kind types.EntityKind, id uuid.UUID) error
	Reindex(ctx context.Context, kind types.EntityKind, id uuid.UUID) error
	Delete(ctx context.Context, kind types.EntityKind, id string) error
	IndexAll(ctx context.Context) (*Stats, error)
	IndexSystemInfo(ctx context.Context) error
	IndexStatistics(ctx context.Context) error
	SweepStale(ctx context.Context, limit int) (*SweepStats, error)
}

type service struct {
	log      *logger.Logger
	repos    *repos.Repos
	embedder embedding.Service
	store    qdrant.Store
}

func New(baseLog *logger.Logger, reposet *repos.Repos, embedder embedding.Service, store qdrant.Store) (Service, error) {
	if baseLog == nil {
		return nil, errors.New("indexer: logger is required")
	}
	if reposet == nil {
		return nil, errors.New("indexer: repos are required")
	}
	if embedder == nil {
		return nil, errors.New("indexer: embedding service is required")
	}
	if store == nil {
		return nil, errors.New("indexer: vector store is required")
	}
	return &service{
		log:      baseLog.With("service", "Indexer"),
		repos:    reposet,
		embedder: embedder,
		store:    store,
	}, nil
}

// PointID derives the deterministic 32-bit point id for an entity. The
// same (kind, id) pair always maps to the same point, which is what keeps
// re-indexing an upsert instead of a duplicate.
func PointID(kind types.EntityKind, id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(string(kind) + "-" + id))
	return h.Sum32()
}

func (s *service) IndexUser(ctx context.Context, userID uuid.UUID) error {
	user, err := s.repos.User.GetWithRelations(ctx, nil, userID)
	if err != nil {
		return errs.E(errs.KindUpstream, "indexer.IndexUser", "load user", err)
	}
	if user == nil {
		s.log.Warn("user not found, skipping index", "user_id", userID)
		return nil
	}
	return s.upsert(ctx, types.KindUser, user.ID.String(), document.FromUser(user, time.Now().UTC()))
}

func (s *service) IndexTeam(ctx context.Context, teamID uuid.UUID) error {
	team, err := s.repos.Team.GetWithRelations(ctx, nil, teamID)
	if err != nil {
		return errs.E(errs.KindUpstream, "indexer.IndexTeam", "load team", err)
	}
	if team == nil {
		s.log.Warn("team not found, skipping index", "team_id", teamID)
		return nil
	}
	return s.upsert(ctx, types.KindTeam, team.ID.String(), document.FromTeam(team, time.Now().UTC()))
}

func (s *service) IndexProject(ctx context.Context, projectID uuid.UUID) error {
	project, err := s.repos.Project.GetWithRelations(ctx, nil, projectID)
	if err != nil {
		return errs.E(errs.KindUpstream, "indexer.IndexProject", "load project", err)
	}
	if project == nil {
		s.log.Warn("project not found, skipping index", "project_id", projectID)
		return nil
	}
	return s.upsert(ctx, types.KindProject, project.ID.String(), document.FromProject(project, time.Now().UTC()))
}

func (s *service) IndexTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.repos.Task.GetWithRelations(ctx, nil, taskID)
	if err != nil {
		return errs.E(errs.KindUpstream, "indexer.IndexTask", "load task", err)
	}
	if task == nil {
		s.log.Warn("task not found, skipping index", "task_id", taskID)
		return nil
	}
	return s.upsert(ctx, types.KindTask, task.ID.String(), document.FromTask(task, time.Now().UTC()))
}

func (s *service) Index(ctx context.Context, kind types.EntityKind, id uuid.UUID) error {
	switch kind {
	case types.KindUser:
		return s.IndexUser(ctx, id)
	case types.KindTeam:
		return s.IndexTeam(ctx, id)
	case types.KindProject:
		return s.IndexProject(ctx, id)
	case types.KindTask:
		return s.IndexTask(ctx, id)
	default:
		return errs.E(errs.KindValidation, "indexer.Index", fmt.Sprintf("unknown entity kind %q", kind), nil)
	}
}

// Reindex deletes the prior document then indexes the current entity
// state. A missing prior document and a missing entity are both safe.
func (s *service) Reindex(ctx context.Context, kind types.EntityKind, id uuid.UUID) error {
	if err := s.Delete(ctx, kind, id.String()); err != nil {
		return err
	}
	return s.Index(ctx, kind, id)
}

func (s *service) Delete(ctx context.Context, kind types.EntityKind, id string) error {
	if err := s.store.Delete(ctx, []uint32{PointID(kind, id)}); err != nil {
		return errs.E(errs.KindUpstream, "indexer.Delete", "delete point", err)
	}
	return nil
}

// IndexAll re-syncs every relational entity plus the two synthetic
// documents. Per-entity failures are collected into the stats record so
// one bad row does not abort the run.
func (s *service) IndexAll(ctx context.Context) (*Stats, error) {
	started := time.Now()
	stats := &Stats{Errors: []string{}}

	users, err := s.repos.User.ListAll(ctx, nil)
	if err != nil {
		return nil, errs.E(errs.KindUpstream, "indexer.IndexAll", "list users", err)
	}
	for _, user := range users {
		if err := s.IndexUser(ctx, user.ID); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("user %s: %v", user.ID, err))
			continue
		}
		stats.UsersIndexed++
	}

	teams, err := s.repos.Team.ListAll(ctx, nil)
	if err != nil {
		return nil, errs.E(errs.KindUpstream, "indexer.IndexAll", "list teams", err)
	}
	for _, team := range teams {
		if err := s.IndexTeam(ctx, team.ID); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("team %s: %v", team.ID, err))
			continue
		}
		stats.TeamsIndexed++
	}

	projects, err := s.repos.Project.ListAll(ctx, nil)
	if err != nil {
		return nil, errs.E(errs.KindUpstream, "indexer.IndexAll", "list projects", err)
	}
	for _, project := range projects {
		if err := s.IndexProject(ctx, project.ID); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("project %s: %v", project.ID, err))
			continue
		}
		stats.ProjectsIndexed++
	}

	tasks, err := s.repos.Task.ListAll(ctx, nil)
	if err != nil {
		return nil, errs.E(errs.KindUpstream, "indexer.IndexAll", "list tasks", err)
	}
	for _, task := range tasks {
		if err := s.IndexTask(ctx, task.ID); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("task %s: %v", task.ID, err))
			continue
		}
		stats.TasksIndexed++
	}

	if err := s.IndexSystemInfo(ctx); err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("system_info: %v", err))
	}
	if err := s.IndexStatistics(ctx); err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("statistics: %v", err))
	}

	stats.DurationMs = time.Since(started).Milliseconds()
	s.log.Info("IndexAll finished",
		"users", stats.UsersIndexed,
		"teams", stats.TeamsIndexed,
		"projects", stats.ProjectsIndexed,
		"tasks", stats.TasksIndexed,
		"errors", len(stats.Errors),
		"duration_ms", stats.DurationMs,
	)
	return stats, nil
}

func (s *service) IndexSystemInfo(ctx context.Context) error {
	doc := document.SystemInfo(time.Now().UTC())
	return s.upsert(ctx, types.KindSystemInfo, string(types.KindSystemInfo), doc)
}

func (s *service) IndexStatistics(ctx context.Context) error {
	snapshot, err := s.statsSnapshot(ctx)
	if err != nil {
		return err
	}
	doc := document.Statistics(snapshot, time.Now().UTC())
	return s.upsert(ctx, types.KindStatistics, string(types.KindStatistics), doc)
}

func (s *service) statsSnapshot(ctx context.Context) (document.StatsSnapshot, error) {
	const op = "indexer.statsSnapshot"
	var snapshot document.StatsSnapshot
	var err error

	if snapshot.Users, err = s.repos.User.Count(ctx, nil); err != nil {
		return snapshot, errs.E(errs.KindUpstream, op, "count users", err)
	}
	if snapshot.Teams, err = s.repos.Team.Count(ctx, nil); err != nil {
		return snapshot, errs.E(errs.KindUpstream, op, "count teams", err)
	}
	if snapshot.Projects, err = s.repos.Project.Count(ctx, nil); err != nil {
		return snapshot, errs.E(errs.KindUpstream, op, "count projects", err)
	}
	if snapshot.Tasks, err = s.repos.Task.Count(ctx, nil); err != nil {
		return snapshot, errs.E(errs.KindUpstream, op, "count tasks", err)
	}
	if snapshot.TasksByStatus, err = s.repos.Task.CountByStatus(ctx, nil); err != nil {
		return snapshot, errs.E(errs.KindUpstream, op, "count tasks by status", err)
	}
	if snapshot.OverdueTasks, err = s.repos.Task.CountOverdue(ctx, nil, time.Now().UTC()); err != nil {
		return snapshot, errs.E(errs.KindUpstream, op, "count overdue tasks", err)
	}
	return snapshot, nil
}

// SweepStale retries every unresolved stale-index entry, marking the ones
// that repair cleanly. Entries that fail again stay recorded for the next
// sweep.
func (s *service) SweepStale(ctx context.Context, limit int) (*SweepStats, error) {
	entries, err := s.repos.StaleIndex.ListUnresolved(ctx, nil, limit)
	if err != nil {
		return nil, errs.E(errs.KindUpstream, "indexer.SweepStale", "list stale entries", err)
	}

	stats := &SweepStats{}
	for _, entry := range entries {
		stats.Swept++
		if err := s.repair(ctx, entry); err != nil {
			stats.Failed++
			s.log.Warn("stale index repair failed",
				"entity_kind", entry.EntityKind,
				"entity_id", entry.EntityID,
				"operation", entry.Operation,
				"error", err.Error(),
			)
			continue
		}
		if err := s.repos.StaleIndex.MarkResolved(ctx, nil, entry.ID); err != nil {
			s.log.Warn("failed to mark stale entry resolved", "entry_id", entry.ID, "error", err.Error())
			continue
		}
		stats.Repaired++
	}
	return stats, nil
}

func (s *service) repair(ctx context.Context, entry *types.StaleIndexEntry) error {
	kind, ok := types.ParseEntityKind(entry.EntityKind)
	if !ok {
		return errs.E(errs.KindValidation, "indexer.repair", fmt.Sprintf("unknown entity kind %q", entry.EntityKind), nil)
	}
	if entry.Operation == "delete" {
		return s.Delete(ctx, kind, entry.EntityID)
	}
	id, err := uuid.Parse(entry.EntityID)
	if err != nil {
		return errs.E(errs.KindValidation, "indexer.repair", "entity id is not a uuid", err)
	}
	return s.Reindex(ctx, kind, id)
}

func (s *service) upsert(ctx context.Context, kind types.EntityKind, entityID string, doc document.Document) error {
	const op = "indexer.upsert"

	vector, err := s.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"entity_type":   string(kind),
		"entity_id":     entityID,
		"text":          doc.Text,
		"metadata":      doc.Metadata,
		"relationships": doc.Relationships,
		"point_id":      string(kind) + "-" + entityID,
		"indexed_at":    time.Now().UTC().Format(time.RFC3339),
	}
	if !doc.CreatedAt.IsZero() {
		payload["created_at"] = doc.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !doc.UpdatedAt.IsZero() {
		payload["updated_at"] = doc.UpdatedAt.UTC().Format(time.RFC3339)
	}

	point := qdrant.Point{ID: PointID(kind, entityID), Vector: vector, Payload: payload}
	if err := s.store.Upsert(ctx, []qdrant.Point{point}); err != nil {
		return errs.E(errs.KindUpstream, op, "upsert point", err)
	}
	return nil
}
