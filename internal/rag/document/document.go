package document

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	types "github.com/yungbote/taskbridge-backend/internal/domain"
)

// maxListed caps how many related names a sentence spells out before
// collapsing the rest into a "plus K more" tail.
const maxListed = 5

// Document is the indexable rendering of one entity: searchable prose,
// filterable metadata and the relationship ids payload indices cover.
type Document struct {
	Text          string
	Metadata      map[string]any
	Relationships map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var secretPattern = regexp.MustCompile(`(?i)\b(password|token|api[-_]?key|secret)\b\s*[:=]?\s*\S+`)

// sanitize replaces credential-looking values so they never reach the
// vector store or a prompt.
func sanitize(text string) string {
	return secretPattern.ReplaceAllString(text, "$1 [REDACTED]")
}

// FromUser renders a user with their team, project and an assigned-task
// breakdown by status.
func FromUser(user *types.User, now time.Time) Document {
	if user == nil {
		return Document{}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "User %s (%s) has role %s.", user.Name, user.Email, user.Role)

	relationships := map[string]any{}
	if user.Team != nil {
		fmt.Fprintf(&b, " Member of team %s.", user.Team.Name)
		if user.Team.Project != nil {
			fmt.Fprintf(&b, " The team works on project %s.", user.Team.Project.Name)
		}
	}
	if user.TeamID != nil {
		relationships["team_id"] = user.TeamID.String()
	}

	if len(user.Tasks) == 0 {
		b.WriteString(" Has no assigned tasks.")
	} else {
		byStatus := map[types.TaskStatus]int{}
		titles := make([]string, 0, len(user.Tasks))
		for _, task := range user.Tasks {
			byStatus[task.Status]++
			titles = append(titles, task.Title)
		}
		fmt.Fprintf(&b, " Has %d assigned %s: %s.", len(user.Tasks), pluralize("task", len(user.Tasks)), statusBreakdown(byStatus))
		fmt.Fprintf(&b, " Tasks: %s.", listWithOverflow(titles, "task"))
	}

	metadata := map[string]any{
		"id":          user.ID.String(),
		"type":        string(types.KindUser),
		"user_name":   user.Name,
		"user_email":  user.Email,
		"user_role":   user.Role,
		"tasks_count": len(user.Tasks),
	}
	if user.TeamID != nil {
		metadata["team_id"] = user.TeamID.String()
	}
	if user.Team != nil {
		metadata["team_name"] = user.Team.Name
	}

	return Document{
		Text:          sanitize(b.String()),
		Metadata:      metadata,
		Relationships: relationships,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

// FromTeam renders a team with its owner, project and member roster.
func FromTeam(team *types.Team, now time.Time) Document {
	if team == nil {
		return Document{}
	}

	var b strings.Builder
	if team.Owner != nil {
		fmt.Fprintf(&b, "Team %s is led by %s.", team.Name, team.Owner.Name)
	} else {
		fmt.Fprintf(&b, "Team %s.", team.Name)
	}

	relationships := map[string]any{}
	if team.Project != nil {
		fmt.Fprintf(&b, " The team works on project %s.", team.Project.Name)
	}
	if team.ProjectID != nil {
		relationships["project_id"] = team.ProjectID.String()
	}

	if len(team.Members) == 0 {
		b.WriteString(" Has no members yet.")
	} else {
		names := make([]string, 0, len(team.Members))
		for _, member := range team.Members {
			names = append(names, member.Name)
		}
		fmt.Fprintf(&b, " Has %d %s: %s.", len(team.Members), pluralize("member", len(team.Members)), listWithOverflow(names, "member"))
	}

	metadata := map[string]any{
		"id":            team.ID.String(),
		"type":          string(types.KindTeam),
		"team_name":     team.Name,
		"owner_id":      team.OwnerID.String(),
		"members_count": len(team.Members),
	}
	if team.Owner != nil {
		metadata["owner_name"] = team.Owner.Name
	}
	if team.ProjectID != nil {
		metadata["project_id"] = team.ProjectID.String()
	}
	if team.Project != nil {
		metadata["project_name"] = team.Project.Name
	}

	return Document{
		Text:          sanitize(b.String()),
		Metadata:      metadata,
		Relationships: relationships,
		CreatedAt:     team.CreatedAt,
		UpdatedAt:     team.UpdatedAt,
	}
}

// FromProject renders a project with its teams and total headcount.
func FromProject(project *types.Project, now time.Time) Document {
	if project == nil {
		return Document{}
	}

	var b strings.Builder
	if strings.TrimSpace(project.Description) != "" {
		fmt.Fprintf(&b, "Project %s: %s.", project.Name, strings.TrimRight(project.Description, "."))
	} else {
		fmt.Fprintf(&b, "Project %s.", project.Name)
	}

	members := 0
	if len(project.Teams) == 0 {
		b.WriteString(" Has no teams assigned yet.")
	} else {
		names := make([]string, 0, len(project.Teams))
		for _, team := range project.Teams {
			names = append(names, team.Name)
			members += len(team.Members)
		}
		fmt.Fprintf(&b, " Has %d %s: %s.", len(project.Teams), pluralize("team", len(project.Teams)), listWithOverflow(names, "team"))
		if members > 0 {
			fmt.Fprintf(&b, " %d %s across all teams.", members, pluralize("member", members))
		}
	}

	metadata := map[string]any{
		"id":            project.ID.String(),
		"type":          string(types.KindProject),
		"project_name":  project.Name,
		"description":   project.Description,
		"teams_count":   len(project.Teams),
		"total_members": members,
	}

	return Document{
		Text:          sanitize(b.String()),
		Metadata:      metadata,
		Relationships: map[string]any{},
		CreatedAt:     project.CreatedAt,
		UpdatedAt:     project.UpdatedAt,
	}
}

// FromTask renders a task with status, deadline urgency and the assignee
// chain up to the project.
func FromTask(task *types.Task, now time.Time) Document {
	if task == nil {
		return Document{}
	}

	var b strings.Builder
	if strings.TrimSpace(task.Description) != "" {
		fmt.Fprintf(&b, "Task %s: %s.", task.Title, strings.TrimRight(task.Description, "."))
	} else {
		fmt.Fprintf(&b, "Task %s.", task.Title)
	}
	fmt.Fprintf(&b, " Status: %s.", task.Status.Human())

	metadata := map[string]any{
		"id":          task.ID.String(),
		"type":        string(types.KindTask),
		"task_title":  task.Title,
		"task_status": string(task.Status),
		"is_overdue":  false,
		"is_urgent":   false,
	}

	if task.Deadline != nil {
		days := daysUntil(now, *task.Deadline)
		b.WriteString(" " + deadlinePhrase(days) + ".")
		metadata["deadline"] = task.Deadline.UTC().Format(time.RFC3339)
		metadata["days_until_deadline"] = days
		if days < 0 && task.Status != types.StatusDone {
			metadata["is_overdue"] = true
		}
		if days >= 0 && days <= 3 && task.Status != types.StatusDone {
			metadata["is_urgent"] = true
		}
	}

	relationships := map[string]any{}
	if task.AssignedTo != nil && task.Assignee != nil {
		fmt.Fprintf(&b, " Assigned to %s", task.Assignee.Name)
		if task.Assignee.Team != nil {
			fmt.Fprintf(&b, " on team %s", task.Assignee.Team.Name)
			if task.Assignee.Team.Project != nil {
				fmt.Fprintf(&b, " working on project %s", task.Assignee.Team.Project.Name)
			}
		}
		b.WriteString(".")

		relationships["assigned_to"] = task.AssignedTo.String()
		metadata["assigned_to"] = task.AssignedTo.String()
		metadata["assignee_name"] = task.Assignee.Name
		if task.Assignee.TeamID != nil {
			relationships["team_id"] = task.Assignee.TeamID.String()
		}
		if task.Assignee.Team != nil {
			metadata["team_name"] = task.Assignee.Team.Name
			if task.Assignee.Team.ProjectID != nil {
				relationships["project_id"] = task.Assignee.Team.ProjectID.String()
			}
			if task.Assignee.Team.Project != nil {
				metadata["project_name"] = task.Assignee.Team.Project.Name
			}
		}
	} else {
		b.WriteString(" Currently unassigned.")
	}

	return Document{
		Text:          sanitize(b.String()),
		Metadata:      metadata,
		Relationships: relationships,
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
	}
}

// SystemInfo is the synthetic capabilities document answering "what can
// you do" style queries.
func SystemInfo(now time.Time) Document {
	text := strings.Join([]string{
		"Task manager assistant.",
		"It manages users, teams, projects and tasks.",
		"Users have a name, email and role (admin or member) and can belong to a team.",
		"Teams have an owner, members and can work on a project.",
		"Tasks have a title, description, status (To Do, In Progress, Done), an optional deadline and an optional assignee.",
		"You can create, update and delete users, tasks, teams and projects.",
		"You can ask questions about the data, search it, list entities and request statistics such as task counts by status or overdue work.",
	}, " ")

	return Document{
		Text: text,
		Metadata: map[string]any{
			"id":   string(types.KindSystemInfo),
			"type": string(types.KindSystemInfo),
			"name": "System capabilities",
		},
		Relationships: map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// StatsSnapshot carries the live counts the statistics document renders.
type StatsSnapshot struct {
	Users         int64
	Teams         int64
	Projects      int64
	Tasks         int64
	TasksByStatus map[string]int64
	OverdueTasks  int64
}

// Statistics is the synthetic live-counts document answering statistics
// queries directly from retrieval.
func Statistics(snapshot StatsSnapshot, now time.Time) Document {
	var b strings.Builder
	fmt.Fprintf(&b, "System statistics: %d users, %d teams, %d projects and %d tasks.",
		snapshot.Users, snapshot.Teams, snapshot.Projects, snapshot.Tasks)

	if len(snapshot.TasksByStatus) > 0 {
		parts := make([]string, 0, len(snapshot.TasksByStatus))
		for _, status := range []types.TaskStatus{types.StatusTodo, types.StatusInProgress, types.StatusDone} {
			if count, ok := snapshot.TasksByStatus[string(status)]; ok {
				parts = append(parts, fmt.Sprintf("%d %s", count, status.Human()))
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, " Task status breakdown: %s.", strings.Join(parts, ", "))
		}
	}
	fmt.Fprintf(&b, " %d %s overdue.", snapshot.OverdueTasks, pluralize("task", int(snapshot.OverdueTasks)))

	metadata := map[string]any{
		"id":            string(types.KindStatistics),
		"type":          string(types.KindStatistics),
		"name":          "System statistics",
		"user_count":    snapshot.Users,
		"team_count":    snapshot.Teams,
		"project_count": snapshot.Projects,
		"task_count":    snapshot.Tasks,
		"overdue_tasks": snapshot.OverdueTasks,
	}
	for status, count := range snapshot.TasksByStatus {
		metadata["tasks_"+status] = count
	}

	return Document{
		Text:          b.String(),
		Metadata:      metadata,
		Relationships: map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// daysUntil counts whole calendar days between now and the deadline,
// negative when the deadline has passed.
func daysUntil(now, deadline time.Time) int {
	nowDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	deadlineDate := time.Date(deadline.Year(), deadline.Month(), deadline.Day(), 0, 0, 0, 0, time.UTC)
	return int(deadlineDate.Sub(nowDate).Hours() / 24)
}

func deadlinePhrase(days int) string {
	switch {
	case days < 0:
		return fmt.Sprintf("Overdue by %d %s", -days, pluralize("day", -days))
	case days == 0:
		return "Due today"
	case days <= 3:
		return fmt.Sprintf("Due in %d %s (urgent)", days, pluralize("day", days))
	default:
		return fmt.Sprintf("Due in %d days", days)
	}
}

func listWithOverflow(names []string, label string) string {
	if len(names) <= maxListed {
		return strings.Join(names, ", ")
	}
	rest := len(names) - maxListed
	return fmt.Sprintf("%s, plus %d more (%d total %s)",
		strings.Join(names[:maxListed], ", "), rest, len(names), pluralize(label, len(names)))
}

func statusBreakdown(byStatus map[types.TaskStatus]int) string {
	statuses := make([]types.TaskStatus, 0, len(byStatus))
	for status := range byStatus {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	parts := make([]string, 0, len(statuses))
	for _, status := range statuses {
		parts = append(parts, fmt.Sprintf("%d %s", byStatus[status], status.Human()))
	}
	return strings.Join(parts, ", ")
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
