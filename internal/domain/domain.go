package domain

import "strings"

// EntityKind names the four relational kinds plus the two synthetic
// document kinds kept in the vector index.
type EntityKind string

const (
	KindUser    EntityKind = "user"
	KindTeam    EntityKind = "team"
	KindProject EntityKind = "project"
	KindTask    EntityKind = "task"

	KindSystemInfo EntityKind = "system_info"
	KindStatistics EntityKind = "statistics"
)

// RelationalKinds are the kinds backed by a table and eligible for
// indexing, resolution, and CRUD dispatch.
func RelationalKinds() []EntityKind {
	return []EntityKind{KindUser, KindTeam, KindProject, KindTask}
}

func ParseEntityKind(raw string) (EntityKind, bool) {
	switch EntityKind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindUser:
		return KindUser, true
	case KindTeam:
		return KindTeam, true
	case KindProject:
		return KindProject, true
	case KindTask:
		return KindTask, true
	case KindSystemInfo:
		return KindSystemInfo, true
	case KindStatistics:
		return KindStatistics, true
	default:
		return "", false
	}
}

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleMember
}

// TaskStatus is the canonical status enum. NormalizeTaskStatus accepts the
// loose spellings users type.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

func NormalizeTaskStatus(raw string) (TaskStatus, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	cleaned = strings.ReplaceAll(cleaned, "-", "_")
	switch cleaned {
	case "todo", "to_do":
		return StatusTodo, true
	case "in_progress", "inprogress":
		return StatusInProgress, true
	case "done", "completed":
		return StatusDone, true
	default:
		return "", false
	}
}

// Human renders the status the way answers and indexed text spell it.
func (s TaskStatus) Human() string {
	switch s {
	case StatusTodo:
		return "To Do"
	case StatusInProgress:
		return "In Progress"
	case StatusDone:
		return "Done"
	default:
		return string(s)
	}
}
