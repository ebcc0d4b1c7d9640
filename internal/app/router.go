package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
	"github.com/yungbote/taskbridge-backend/internal/server"
)

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		Log:            log,
		ServiceName:    cfg.ServiceName,
		HealthHandler:  handlers.Health,
		ChatHandler:    handlers.Chat,
		UserHandler:    handlers.Users,
		TeamHandler:    handlers.Teams,
		ProjectHandler: handlers.Projects,
		TaskHandler:    handlers.Tasks,
		AdminHandler:   handlers.Admin,
	})
}
