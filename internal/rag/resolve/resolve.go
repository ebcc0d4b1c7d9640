package resolve

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

// listPageSize bounds the candidate scan for name matching.
const listPageSize = 1000

// The lookup interfaces carve out the read slice of each entity service.
// The concrete services satisfy them; declaring them here keeps this
// package below the service layer.
type UserLookup interface {
	GetByID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.User, error)
	List(ctx context.Context, tx *gorm.DB, page, pageSize int, search string) (*types.Page[*types.User], error)
}

type TeamLookup interface {
	GetByID(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) (*types.Team, error)
	List(ctx context.Context, tx *gorm.DB, page, pageSize int, search string) (*types.Page[*types.Team], error)
}

type ProjectLookup interface {
	GetByID(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) (*types.Project, error)
	List(ctx context.Context, tx *gorm.DB, page, pageSize int, search string) (*types.Page[*types.Project], error)
}

type TaskLookup interface {
	GetByID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*types.Task, error)
	List(ctx context.Context, tx *gorm.DB, page, pageSize int, search string) (*types.Page[*types.Task], error)
}

// Resolver maps user-supplied entity references (a UUID or a display
// name) to entity ids. A failed lookup resolves to the empty string;
// upstream errors are treated the same way so a flaky read never turns
// into a hard action failure.
type Resolver interface {
	ResolveUser(ctx context.Context, nameOrID string) string
	ResolveTask(ctx context.Context, nameOrID string) string
	ResolveTeam(ctx context.Context, nameOrID string) string
	ResolveProject(ctx context.Context, nameOrID string) string
	ResolveByType(ctx context.Context, kind types.EntityKind, nameOrID string) string
	ResolveMultiple(ctx context.Context, refs map[string]string) map[string]string
}

type resolver struct {
	log      *logger.Logger
	users    UserLookup
	teams    TeamLookup
	projects ProjectLookup
	tasks    TaskLookup
}

func New(
	baseLog *logger.Logger,
	users UserLookup,
	teams TeamLookup,
	projects ProjectLookup,
	tasks TaskLookup,
) (Resolver, error) {
	if baseLog == nil {
		return nil, errors.New("resolve: logger is required")
	}
	if users == nil || teams == nil || projects == nil || tasks == nil {
		return nil, errors.New("resolve: all entity services are required")
	}
	return &resolver{
		log:      baseLog.With("service", "EntityResolver"),
		users:    users,
		teams:    teams,
		projects: projects,
		tasks:    tasks,
	}, nil
}

// ResolveUser matches users fuzzily: exact name, then name prefix, then
// name substring, then the local part of the email address.
func (r *resolver) ResolveUser(ctx context.Context, nameOrID string) string {
	nameOrID = strings.TrimSpace(nameOrID)
	if nameOrID == "" {
		return ""
	}
	if id, ok := parseID(nameOrID); ok {
		if _, err := r.users.GetByID(ctx, nil, id); err != nil {
			return ""
		}
		return id.String()
	}

	page, err := r.users.List(ctx, nil, 1, listPageSize, "")
	if err != nil {
		r.log.Warn("user resolution list failed", "error", err.Error())
		return ""
	}

	needle := strings.ToLower(nameOrID)
	var prefix, substring, emailMatch string
	for _, u := range page.Data {
		name := strings.ToLower(u.Name)
		if name == needle {
			return u.ID.String()
		}
		if prefix == "" && strings.HasPrefix(name, needle) {
			prefix = u.ID.String()
		}
		if substring == "" && strings.Contains(name, needle) {
			substring = u.ID.String()
		}
		if emailMatch == "" {
			local := strings.ToLower(u.Email)
			if at := strings.IndexByte(local, '@'); at >= 0 {
				local = local[:at]
			}
			if strings.Contains(local, needle) {
				emailMatch = u.ID.String()
			}
		}
	}
	for _, id := range []string{prefix, substring, emailMatch} {
		if id != "" {
			return id
		}
	}
	return ""
}

func (r *resolver) ResolveTask(ctx context.Context, nameOrID string) string {
	return resolveStrict(ctx, r.log, nameOrID,
		func(ctx context.Context, id uuid.UUID) error {
			_, err := r.tasks.GetByID(ctx, nil, id)
			return err
		},
		func(ctx context.Context) ([]named, error) {
			page, err := r.tasks.List(ctx, nil, 1, listPageSize, "")
			if err != nil {
				return nil, err
			}
			out := make([]named, 0, len(page.Data))
			for _, t := range page.Data {
				out = append(out, named{id: t.ID, name: t.Title})
			}
			return out, nil
		})
}

func (r *resolver) ResolveTeam(ctx context.Context, nameOrID string) string {
	return resolveStrict(ctx, r.log, nameOrID,
		func(ctx context.Context, id uuid.UUID) error {
			_, err := r.teams.GetByID(ctx, nil, id)
			return err
		},
		func(ctx context.Context) ([]named, error) {
			page, err := r.teams.List(ctx, nil, 1, listPageSize, "")
			if err != nil {
				return nil, err
			}
			out := make([]named, 0, len(page.Data))
			for _, t := range page.Data {
				out = append(out, named{id: t.ID, name: t.Name})
			}
			return out, nil
		})
}

func (r *resolver) ResolveProject(ctx context.Context, nameOrID string) string {
	return resolveStrict(ctx, r.log, nameOrID,
		func(ctx context.Context, id uuid.UUID) error {
			_, err := r.projects.GetByID(ctx, nil, id)
			return err
		},
		func(ctx context.Context) ([]named, error) {
			page, err := r.projects.List(ctx, nil, 1, listPageSize, "")
			if err != nil {
				return nil, err
			}
			out := make([]named, 0, len(page.Data))
			for _, p := range page.Data {
				out = append(out, named{id: p.ID, name: p.Name})
			}
			return out, nil
		})
}

func (r *resolver) ResolveByType(ctx context.Context, kind types.EntityKind, nameOrID string) string {
	switch kind {
	case types.KindUser:
		return r.ResolveUser(ctx, nameOrID)
	case types.KindTask:
		return r.ResolveTask(ctx, nameOrID)
	case types.KindTeam:
		return r.ResolveTeam(ctx, nameOrID)
	case types.KindProject:
		return r.ResolveProject(ctx, nameOrID)
	default:
		return ""
	}
}

// ResolveMultiple resolves a batch of "kind:reference" keyed refs in
// parallel. The result maps each input key to its resolved id, empty when
// unresolved. Keys use the "<kind>:<reference>" form so the same
// reference can resolve against different kinds in one call.
func (r *resolver) ResolveMultiple(ctx context.Context, refs map[string]string) map[string]string {
	out := make(map[string]string, len(refs))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for key, ref := range refs {
		kindName, _, found := strings.Cut(key, ":")
		if !found {
			kindName = key
		}
		kind, ok := types.ParseEntityKind(kindName)
		if !ok {
			mu.Lock()
			out[key] = ""
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			id := r.ResolveByType(gctx, kind, ref)
			mu.Lock()
			out[key] = id
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

type named struct {
	id   uuid.UUID
	name string
}

// resolveStrict handles the non-user kinds: a UUID becomes an existence
// check, anything else must match a name exactly (case-insensitive).
func resolveStrict(
	ctx context.Context,
	log *logger.Logger,
	nameOrID string,
	exists func(context.Context, uuid.UUID) error,
	list func(context.Context) ([]named, error),
) string {
	nameOrID = strings.TrimSpace(nameOrID)
	if nameOrID == "" {
		return ""
	}
	if id, ok := parseID(nameOrID); ok {
		if err := exists(ctx, id); err != nil {
			return ""
		}
		return id.String()
	}

	candidates, err := list(ctx)
	if err != nil {
		log.Warn("entity resolution list failed", "error", err.Error())
		return ""
	}
	needle := strings.ToLower(nameOrID)
	for _, c := range candidates {
		if strings.ToLower(c.name) == needle {
			return c.id.String()
		}
	}
	return ""
}

func parseID(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
