package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/taskbridge-backend/internal/data/repos"
	types "github.com/yungbote/taskbridge-backend/internal/domain"
	"github.com/yungbote/taskbridge-backend/internal/pkg/errs"
	"github.com/yungbote/taskbridge-backend/internal/platform/llm"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
	"github.com/yungbote/taskbridge-backend/internal/rag/conversation"
	"github.com/yungbote/taskbridge-backend/internal/rag/generate"
	"github.com/yungbote/taskbridge-backend/internal/rag/indexer"
	"github.com/yungbote/taskbridge-backend/internal/rag/intent"
	"github.com/yungbote/taskbridge-backend/internal/rag/llmjson"
	"github.com/yungbote/taskbridge-backend/internal/rag/resolve"
	"github.com/yungbote/taskbridge-backend/internal/rag/search"
)

const (
	contextDocsPerKind  = 5
	extractHistoryTurns = 4
	extractionMaxTokens = 250
	extractionTemp      = 0.1
)

// Result is the executor's contribution to a chat response.
type Result struct {
	Answer        string
	Sources       []types.Source
	FunctionCalls []types.FunctionCall
}

// Executor turns a write-intent query into a CRUD call against the
// entity services, then brings the vector index up to date.
type Executor interface {
	Execute(ctx context.Context, query string, classification types.Classification, sessionID string, docs []types.RetrievedDoc, filters intent.FilterSpec) (*Result, error)
}

// The writer interfaces carve out the mutating slice of each entity
// service. The concrete services satisfy them; declaring them here keeps
// this package below the service layer.
type UserWriter interface {
	Create(ctx context.Context, tx *gorm.DB, input types.CreateUserInput) (*types.User, error)
	Update(ctx context.Context, tx *gorm.DB, userID uuid.UUID, input types.UpdateUserInput) (*types.User, error)
	Delete(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type TeamWriter interface {
	Create(ctx context.Context, tx *gorm.DB, input types.CreateTeamInput) (*types.Team, error)
	Update(ctx context.Context, tx *gorm.DB, teamID uuid.UUID, input types.UpdateTeamInput) (*types.Team, error)
	Delete(ctx context.Context, tx *gorm.DB, teamID uuid.UUID) error
}

type ProjectWriter interface {
	Create(ctx context.Context, tx *gorm.DB, input types.CreateProjectInput) (*types.Project, error)
	Update(ctx context.Context, tx *gorm.DB, projectID uuid.UUID, input types.UpdateProjectInput) (*types.Project, error)
	Delete(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error
}

type TaskWriter interface {
	Create(ctx context.Context, tx *gorm.DB, input types.CreateTaskInput) (*types.Task, error)
	Update(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, input types.UpdateTaskInput) (*types.Task, error)
	Delete(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) error
}

// Deps bundles the executor's collaborators.
type Deps struct {
	Client    llm.Client
	FastModel string
	Searcher  search.Searcher
	Resolver  resolve.Resolver
	Users     UserWriter
	Teams     TeamWriter
	Projects  ProjectWriter
	Tasks     TaskWriter
	Indexer   indexer.Service
	Generator generate.Generator
	Sessions  conversation.Store
	StaleRepo repos.StaleIndexRepo
}

type executor struct {
	log *logger.Logger
	Deps
}

func New(baseLog *logger.Logger, deps Deps) (Executor, error) {
	if baseLog == nil {
		return nil, errors.New("action: logger is required")
	}
	if deps.Client == nil || deps.Searcher == nil || deps.Resolver == nil ||
		deps.Users == nil || deps.Teams == nil || deps.Projects == nil || deps.Tasks == nil ||
		deps.Indexer == nil || deps.Generator == nil || deps.Sessions == nil || deps.StaleRepo == nil {
		return nil, errors.New("action: all dependencies are required")
	}
	return &executor{log: baseLog.With("service", "ActionExecutor"), Deps: deps}, nil
}

type paramSpec struct {
	name     string
	required bool
	desc     string
}

// functionTable fixes the recognised functions and their signatures.
var functionTable = map[string][]paramSpec{
	"create_task": {
		{"title", true, "task title"},
		{"description", false, "task description"},
		{"assignedTo", false, "user the task is assigned to, name or id"},
		{"status", false, "todo, in_progress or done"},
		{"deadline", false, "deadline date, YYYY-MM-DD"},
	},
	"update_task": {
		{"taskId", true, "task to update, title or id"},
		{"title", false, "new title"},
		{"description", false, "new description"},
		{"status", false, "todo, in_progress or done"},
		{"assignedTo", false, "user to assign, name or id"},
		{"deadline", false, "new deadline, YYYY-MM-DD"},
	},
	"delete_task": {
		{"taskId", true, "task to delete, title or id"},
	},
	"create_user": {
		{"name", true, "full name"},
		{"email", true, "email address"},
		{"password", true, "initial password"},
		{"role", false, "admin or member"},
		{"teamId", false, "team to join, name or id"},
	},
	"update_user": {
		{"userId", true, "user to update, name or id"},
		{"name", false, "new name"},
		{"email", false, "new email"},
		{"password", false, "new password"},
		{"role", false, "admin or member"},
		{"teamId", false, "team to join, name or id"},
	},
	"delete_user": {
		{"userId", true, "user to delete, name or id"},
	},
	"create_team": {
		{"name", true, "team name"},
		{"projectId", true, "project the team works on, name or id"},
		{"ownerId", true, "team owner, name or id"},
	},
	"update_team": {
		{"teamId", true, "team to update, name or id"},
		{"name", false, "new name"},
		{"projectId", false, "new project, name or id"},
		{"ownerId", false, "new owner, name or id"},
	},
	"delete_team": {
		{"teamId", true, "team to delete, name or id"},
	},
	"create_project": {
		{"name", true, "project name"},
		{"description", false, "project description"},
	},
	"update_project": {
		{"projectId", true, "project to update, name or id"},
		{"name", false, "new name"},
		{"description", false, "new description"},
	},
	"delete_project": {
		{"projectId", true, "project to delete, name or id"},
	},
}

// idParams maps ID-bearing parameter names to the entity kind they
// resolve against.
var idParams = map[string]types.EntityKind{
	"taskId":     types.KindTask,
	"userId":     types.KindUser,
	"assignedTo": types.KindUser,
	"teamId":     types.KindTeam,
	"ownerId":    types.KindUser,
	"projectId":  types.KindProject,
}

func (e *executor) Execute(ctx context.Context, query string, classification types.Classification, sessionID string, docs []types.RetrievedDoc, filters intent.FilterSpec) (*Result, error) {
	kind := entityForIntent(classification)
	functionName := classification.Type + "_" + string(kind)
	params, ok := functionTable[functionName]
	if !ok {
		return e.fail(ctx, query, fmt.Errorf("unsupported action %q", functionName), nil), nil
	}

	if len(docs) == 0 {
		docs = e.retrieveContext(ctx, query, classification.Type, kind)
	}

	call, extracted, err := e.extractParameters(ctx, query, functionName, params, docs, sessionID)
	if err != nil {
		return e.fail(ctx, query, err, extracted), nil
	}

	if missing := missingRequired(params, call.Arguments); missing != "" {
		return e.fail(ctx, query, fmt.Errorf("missing required field %q", missing), extracted), nil
	}

	if err := e.resolveIDs(ctx, call); err != nil {
		return e.fail(ctx, query, err, extracted), nil
	}

	answer, err := e.dispatch(ctx, functionName, call)
	if err != nil {
		return e.fail(ctx, query, err, extracted), nil
	}

	return &Result{Answer: answer, FunctionCalls: []types.FunctionCall{*call}}, nil
}

// retrieveContext fetches reference material when the orchestrator passed
// none. Create and update always pull the target kind plus users so
// assignment names can resolve.
func (e *executor) retrieveContext(ctx context.Context, query, actionType string, kind types.EntityKind) []types.RetrievedDoc {
	forced := []types.EntityKind{kind}
	if (actionType == intent.TypeCreate || actionType == intent.TypeUpdate) && kind != types.KindUser {
		forced = append(forced, types.KindUser)
	}

	perKind := make([][]types.RetrievedDoc, len(forced))
	g, gctx := errgroup.WithContext(ctx)
	for i, fk := range forced {
		g.Go(func() error {
			found, err := e.Searcher.VectorSearch(gctx, query, intent.FilterSpec{EntityTypes: []string{string(fk)}})
			if err != nil {
				e.log.Warn("context retrieval failed", "kind", string(fk), "error", err.Error())
				return nil
			}
			if len(found) > contextDocsPerKind {
				found = found[:contextDocsPerKind]
			}
			perKind[i] = found
			return nil
		})
	}
	_ = g.Wait()

	var out []types.RetrievedDoc
	for _, found := range perKind {
		out = append(out, found...)
	}
	return out
}

// extractParameters renders the function signature, reference docs and
// recent history into a prompt and parses the model's function call.
// The extracted map is returned even on failure so errors can echo it.
func (e *executor) extractParameters(ctx context.Context, query, functionName string, params []paramSpec, docs []types.RetrievedDoc, sessionID string) (*types.FunctionCall, map[string]string, error) {
	var b strings.Builder
	b.WriteString("Extract the arguments for a task-manager function call.\n")
	fmt.Fprintf(&b, "Function: %s\n", functionName)
	b.WriteString("Parameters:\n")
	for _, p := range params {
		req := "optional"
		if p.required {
			req = "required"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", p.name, req, p.desc)
	}

	if len(docs) > 0 {
		b.WriteString("\nKnown entities:\n")
		for _, doc := range docs {
			b.WriteString(renderDoc(doc))
		}
	}

	history := e.Sessions.Get(ctx, sessionID)
	if len(history) > 0 {
		if len(history) > extractHistoryTurns {
			history = history[len(history)-extractHistoryTurns:]
		}
		b.WriteString("\nRecent conversation:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
	}

	fmt.Fprintf(&b, "\nRequest: %s\n", query)
	fmt.Fprintf(&b, "Respond with JSON only: {\"name\": %q, \"arguments\": {...}}. Omit arguments the request does not supply.\n", functionName)

	raw, err := e.Client.Complete(ctx, b.String(), llm.Options{
		Model:       e.FastModel,
		Temperature: extractionTemp,
		MaxTokens:   extractionMaxTokens,
	})
	if err != nil {
		return nil, nil, errs.E(errs.KindUpstream, "action.extractParameters", "parameter extraction call", err)
	}

	obj, err := llmjson.FirstObject(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("could not understand the request details")
	}

	call := &types.FunctionCall{Name: functionName, Arguments: map[string]any{}}
	args, _ := obj["arguments"].(map[string]any)
	known := map[string]bool{}
	for _, p := range params {
		known[p.name] = true
	}
	extracted := map[string]string{}
	for k, v := range args {
		if !known[k] {
			continue
		}
		s := strings.TrimSpace(fmt.Sprintf("%v", v))
		if s == "" || s == "<nil>" || strings.EqualFold(s, "null") {
			continue
		}
		call.Arguments[k] = s
		extracted[k] = s
	}

	if status, ok := call.Arguments["status"].(string); ok {
		if normalized, valid := types.NormalizeTaskStatus(status); valid {
			call.Arguments["status"] = string(normalized)
			extracted["status"] = string(normalized)
		} else {
			delete(call.Arguments, "status")
			delete(extracted, "status")
		}
	}

	return call, extracted, nil
}

// resolveIDs swaps name references for ids on every ID-bearing argument.
// An unresolvable reference names the entity in the returned error.
func (e *executor) resolveIDs(ctx context.Context, call *types.FunctionCall) error {
	for name, kind := range idParams {
		raw, ok := call.Arguments[name].(string)
		if !ok || raw == "" {
			continue
		}
		id := e.Resolver.ResolveByType(ctx, kind, raw)
		if id == "" {
			return fmt.Errorf("could not find a %s matching %q", string(kind), raw)
		}
		call.Arguments[name] = id
	}
	return nil
}

func (e *executor) dispatch(ctx context.Context, functionName string, call *types.FunctionCall) (string, error) {
	args := call.Arguments
	switch functionName {
	case "create_task":
		task, err := e.Tasks.Create(ctx, nil, types.CreateTaskInput{
			Title:       argString(args, "title"),
			Description: argString(args, "description"),
			Status:      argString(args, "status"),
			AssignedTo:  argUUID(args, "assignedTo"),
			Deadline:    argTime(args, "deadline"),
		})
		if err != nil {
			return "", err
		}
		e.postCommit(ctx, types.KindTask, task.ID, intent.TypeCreate)
		return fmt.Sprintf("Task %q created successfully.", task.Title), nil

	case "update_task":
		id := *argUUID(args, "taskId")
		task, err := e.Tasks.Update(ctx, nil, id, types.UpdateTaskInput{
			Title:       argStringPtr(args, "title"),
			Description: argStringPtr(args, "description"),
			Status:      argStringPtr(args, "status"),
			AssignedTo:  argUUID(args, "assignedTo"),
			Deadline:    argTime(args, "deadline"),
		})
		if err != nil {
			return "", err
		}
		e.postCommit(ctx, types.KindTask, task.ID, intent.TypeUpdate)
		return fmt.Sprintf("Task %q updated successfully.", task.Title), nil

	case "delete_task":
		id := *argUUID(args, "taskId")
		if err := e.Tasks.Delete(ctx, nil, id); err != nil {
			return "", err
		}
		e.postDelete(ctx, types.KindTask, id)
		return "Task deleted successfully.", nil

	case "create_user":
		user, err := e.Users.Create(ctx, nil, types.CreateUserInput{
			Name:     argString(args, "name"),
			Email:    argString(args, "email"),
			Password: argString(args, "password"),
			Role:     argString(args, "role"),
			TeamID:   argUUID(args, "teamId"),
		})
		if err != nil {
			return "", err
		}
		e.postCommit(ctx, types.KindUser, user.ID, intent.TypeCreate)
		return fmt.Sprintf("User %q created successfully.", user.Name), nil

	case "update_user":
		id := *argUUID(args, "userId")
		user, err := e.Users.Update(ctx, nil, id, types.UpdateUserInput{
			Name:     argStringPtr(args, "name"),
			Email:    argStringPtr(args, "email"),
			Password: argStringPtr(args, "password"),
			Role:     argStringPtr(args, "role"),
			TeamID:   argUUID(args, "teamId"),
		})
		if err != nil {
			return "", err
		}
		e.postCommit(ctx, types.KindUser, user.ID, intent.TypeUpdate)
		return fmt.Sprintf("User %q updated successfully.", user.Name), nil

	case "delete_user":
		id := *argUUID(args, "userId")
		if err := e.Users.Delete(ctx, nil, id); err != nil {
			return "", err
		}
		e.postDelete(ctx, types.KindUser, id)
		return "User deleted successfully.", nil

	case "create_team":
		team, err := e.Teams.Create(ctx, nil, types.CreateTeamInput{
			Name:      argString(args, "name"),
			OwnerID:   derefUUID(argUUID(args, "ownerId")),
			ProjectID: argUUID(args, "projectId"),
		})
		if err != nil {
			return "", err
		}
		e.postCommit(ctx, types.KindTeam, team.ID, intent.TypeCreate)
		return fmt.Sprintf("Team %q created successfully.", team.Name), nil

	case "update_team":
		id := *argUUID(args, "teamId")
		team, err := e.Teams.Update(ctx, nil, id, types.UpdateTeamInput{
			Name:      argStringPtr(args, "name"),
			OwnerID:   argUUID(args, "ownerId"),
			ProjectID: argUUID(args, "projectId"),
		})
		if err != nil {
			return "", err
		}
		e.postCommit(ctx, types.KindTeam, team.ID, intent.TypeUpdate)
		return fmt.Sprintf("Team %q updated successfully.", team.Name), nil

	case "delete_team":
		id := *argUUID(args, "teamId")
		if err := e.Teams.Delete(ctx, nil, id); err != nil {
			return "", err
		}
		e.postDelete(ctx, types.KindTeam, id)
		return "Team deleted successfully.", nil

	case "create_project":
		project, err := e.Projects.Create(ctx, nil, types.CreateProjectInput{
			Name:        argString(args, "name"),
			Description: argString(args, "description"),
		})
		if err != nil {
			return "", err
		}
		e.postCommit(ctx, types.KindProject, project.ID, intent.TypeCreate)
		return fmt.Sprintf("Project %q created successfully.", project.Name), nil

	case "update_project":
		id := *argUUID(args, "projectId")
		project, err := e.Projects.Update(ctx, nil, id, types.UpdateProjectInput{
			Name:        argStringPtr(args, "name"),
			Description: argStringPtr(args, "description"),
		})
		if err != nil {
			return "", err
		}
		e.postCommit(ctx, types.KindProject, project.ID, intent.TypeUpdate)
		return fmt.Sprintf("Project %q updated successfully.", project.Name), nil

	case "delete_project":
		id := *argUUID(args, "projectId")
		if err := e.Projects.Delete(ctx, nil, id); err != nil {
			return "", err
		}
		e.postDelete(ctx, types.KindProject, id)
		return "Project deleted successfully.", nil
	}
	return "", fmt.Errorf("unsupported action %q", functionName)
}

// postCommit brings the index in line after a successful write. Failure
// never propagates; it is logged and recorded for the stale sweeper.
func (e *executor) postCommit(ctx context.Context, kind types.EntityKind, id uuid.UUID, actionType string) {
	var err error
	if actionType == intent.TypeCreate {
		err = e.Indexer.Index(ctx, kind, id)
	} else {
		err = e.Indexer.Reindex(ctx, kind, id)
	}
	if err != nil {
		e.recordStale(ctx, kind, id.String(), actionType, err)
	}
}

func (e *executor) postDelete(ctx context.Context, kind types.EntityKind, id uuid.UUID) {
	if err := e.Indexer.Delete(ctx, kind, id.String()); err != nil {
		e.recordStale(ctx, kind, id.String(), intent.TypeDelete, err)
	}
}

func (e *executor) recordStale(ctx context.Context, kind types.EntityKind, id, operation string, cause error) {
	e.log.Error("post-commit index update failed", "kind", string(kind), "id", id, "operation", operation, "error", cause.Error())
	details := datatypes.JSON(fmt.Sprintf(`{"error":%q}`, cause.Error()))
	if _, err := e.StaleRepo.Record(ctx, nil, &types.StaleIndexEntry{
		EntityKind: string(kind),
		EntityID:   id,
		Operation:  operation,
		Reason:     cause.Error(),
		Details:    details,
	}); err != nil {
		e.log.Error("stale index entry not recorded", "kind", string(kind), "id", id, "error", err.Error())
	}
}

// fail renders the user-facing error and still returns a Result so the
// chat flow stays a 200 with a helpful answer.
func (e *executor) fail(ctx context.Context, query string, cause error, extracted map[string]string) *Result {
	e.log.Warn("action failed", "error", cause.Error())
	return &Result{Answer: e.Generator.RenderError(ctx, query, cause, extracted)}
}

// entityForIntent picks the single entity an action targets, preferring
// the derived intent and falling back to the classification entities.
func entityForIntent(classification types.Classification) types.EntityKind {
	name := classification.Intent
	name = strings.TrimSuffix(name, "_management")
	name = strings.TrimSuffix(name, "_info")
	if kind, ok := types.ParseEntityKind(name); ok {
		switch kind {
		case types.KindUser, types.KindTask, types.KindTeam, types.KindProject:
			return kind
		}
	}
	if len(classification.Entities) > 0 {
		if kind, ok := types.ParseEntityKind(classification.Entities[0]); ok {
			return kind
		}
	}
	return types.KindTask
}

func missingRequired(params []paramSpec, args map[string]any) string {
	for _, p := range params {
		if !p.required {
			continue
		}
		if v, ok := args[p.name].(string); !ok || v == "" {
			return p.name
		}
	}
	return ""
}

// renderDoc exposes the fields the extraction prompt needs as id=/name=
// pairs so the model can copy exact values.
func renderDoc(doc types.RetrievedDoc) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s: id=%s", doc.EntityType, doc.EntityID)
	keys := make([]string, 0, len(doc.Metadata))
	for k := range doc.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch k {
		case "user_name", "team_name", "project_name", "task_title", "task_status", "user_email", "assignee_name":
			fmt.Fprintf(&b, " %s=%v", strings.TrimPrefix(k, "user_"), doc.Metadata[k])
		}
	}
	b.WriteString("\n")
	return b.String()
}

func argString(args map[string]any, name string) string {
	v, _ := args[name].(string)
	return v
}

func argStringPtr(args map[string]any, name string) *string {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return nil
	}
	return &v
}

func argUUID(args map[string]any, name string) *uuid.UUID {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil
	}
	return &id
}

func derefUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// argTime accepts a date or RFC3339 timestamp; anything else is dropped.
func argTime(args map[string]any, name string) *time.Time {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}
