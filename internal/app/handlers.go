package app

import (
	"github.com/yungbote/taskbridge-backend/internal/data/repos"
	"github.com/yungbote/taskbridge-backend/internal/http/handlers"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *handlers.HealthHandler
	Chat     *handlers.ChatHandler
	Users    *handlers.UserHandler
	Teams    *handlers.TeamHandler
	Projects *handlers.ProjectHandler
	Tasks    *handlers.TaskHandler
	Admin    *handlers.AdminHandler
}

func wireHandlers(log *logger.Logger, services Services, reposet *repos.Repos) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   handlers.NewHealthHandler(),
		Chat:     handlers.NewChatHandler(log, services.Chat),
		Users:    handlers.NewUserHandler(log, services.Users, services.Indexer, reposet.StaleIndex),
		Teams:    handlers.NewTeamHandler(log, services.Teams, services.Indexer, reposet.StaleIndex),
		Projects: handlers.NewProjectHandler(log, services.Projects, services.Indexer, reposet.StaleIndex),
		Tasks:    handlers.NewTaskHandler(log, services.Tasks, services.Indexer, reposet.StaleIndex),
		Admin:    handlers.NewAdminHandler(log, services.Indexer, services.Store),
	}
}
