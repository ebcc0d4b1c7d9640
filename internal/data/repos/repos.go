package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

// Repos bundles every repository so app wiring can hand one value to
// the service layer.
type Repos struct {
	User       UserRepo
	Team       TeamRepo
	Project    ProjectRepo
	Task       TaskRepo
	StaleIndex StaleIndexRepo
}

func New(db *gorm.DB, baseLog *logger.Logger) *Repos {
	return &Repos{
		User:       NewUserRepo(db, baseLog),
		Team:       NewTeamRepo(db, baseLog),
		Project:    NewProjectRepo(db, baseLog),
		Task:       NewTaskRepo(db, baseLog),
		StaleIndex: NewStaleIndexRepo(db, baseLog),
	}
}
