package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/taskbridge-backend/internal/data/repos"
	"github.com/yungbote/taskbridge-backend/internal/db"
	"github.com/yungbote/taskbridge-backend/internal/observability"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

const bootstrapTimeout = 30 * time.Second

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    *repos.Repos
	Services Services

	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	cfg := LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet)
	if err != nil {
		log.Sync()
		return nil, err
	}

	bootstrapVectorStore(log, serviceset)

	handlerset := wireHandlers(log, serviceset, reposet)
	router := wireRouter(log, cfg, handlerset)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		otelShutdown: otelShutdown,
	}, nil
}

// bootstrapVectorStore creates the collection and its payload indices.
// A failure here leaves the server serving; the admin index endpoints
// can retry once Qdrant is reachable.
func bootstrapVectorStore(log *logger.Logger, services Services) {
	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()
	if err := services.Store.CreateCollection(ctx); err != nil {
		log.Warn("vector collection bootstrap failed", "error", err.Error())
		return
	}
	if err := services.Store.EnsurePayloadIndices(ctx); err != nil {
		log.Warn("payload index bootstrap failed", "error", err.Error())
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err.Error())
		}
		cancel()
	}
	if a.Services.Cache != nil {
		if err := a.Services.Cache.Close(); err != nil {
			a.Log.Warn("cache close failed", "error", err.Error())
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
