package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/taskbridge-backend/internal/http/handlers"
	"github.com/yungbote/taskbridge-backend/internal/middleware"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	HealthHandler  *handlers.HealthHandler
	ChatHandler    *handlers.ChatHandler
	UserHandler    *handlers.UserHandler
	TeamHandler    *handlers.TeamHandler
	ProjectHandler *handlers.ProjectHandler
	TaskHandler    *handlers.TaskHandler
	AdminHandler   *handlers.AdminHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "taskbridge"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.AttachTraceContext())
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(middleware.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	tm := r.Group("/task-manager")
	{
		if cfg.ChatHandler != nil {
			tm.POST("/chat", cfg.ChatHandler.Chat)
			tm.GET("/chat-stream", cfg.ChatHandler.ChatStream)
		}

		if cfg.UserHandler != nil {
			tm.GET("/users", cfg.UserHandler.List)
			tm.GET("/users/:id", cfg.UserHandler.Get)
			tm.POST("/users", cfg.UserHandler.Create)
			tm.PATCH("/users/:id", cfg.UserHandler.Update)
			tm.DELETE("/users/:id", cfg.UserHandler.Delete)
		}

		if cfg.TeamHandler != nil {
			tm.GET("/teams", cfg.TeamHandler.List)
			tm.GET("/teams/:id", cfg.TeamHandler.Get)
			tm.POST("/teams", cfg.TeamHandler.Create)
			tm.PATCH("/teams/:id", cfg.TeamHandler.Update)
			tm.DELETE("/teams/:id", cfg.TeamHandler.Delete)
		}

		if cfg.ProjectHandler != nil {
			tm.GET("/projects", cfg.ProjectHandler.List)
			tm.GET("/projects/:id", cfg.ProjectHandler.Get)
			tm.POST("/projects", cfg.ProjectHandler.Create)
			tm.PATCH("/projects/:id", cfg.ProjectHandler.Update)
			tm.DELETE("/projects/:id", cfg.ProjectHandler.Delete)
		}

		if cfg.TaskHandler != nil {
			tm.GET("/tasks", cfg.TaskHandler.List)
			tm.GET("/tasks/:id", cfg.TaskHandler.Get)
			tm.POST("/tasks", cfg.TaskHandler.Create)
			tm.PATCH("/tasks/:id", cfg.TaskHandler.Update)
			tm.DELETE("/tasks/:id", cfg.TaskHandler.Delete)
		}

		if cfg.AdminHandler != nil {
			tm.POST("/index/all", cfg.AdminHandler.IndexAll)
			tm.GET("/index/info", cfg.AdminHandler.IndexInfo)
			tm.POST("/index/stale/sweep", cfg.AdminHandler.SweepStale)
		}
	}

	return r
}
