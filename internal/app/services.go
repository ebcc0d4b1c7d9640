package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/taskbridge-backend/internal/data/repos"
	"github.com/yungbote/taskbridge-backend/internal/platform/cache"
	"github.com/yungbote/taskbridge-backend/internal/platform/embedding"
	"github.com/yungbote/taskbridge-backend/internal/platform/llm"
	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
	"github.com/yungbote/taskbridge-backend/internal/platform/ollama"
	"github.com/yungbote/taskbridge-backend/internal/platform/openai"
	"github.com/yungbote/taskbridge-backend/internal/platform/qdrant"
	"github.com/yungbote/taskbridge-backend/internal/rag/action"
	"github.com/yungbote/taskbridge-backend/internal/rag/conversation"
	"github.com/yungbote/taskbridge-backend/internal/rag/generate"
	"github.com/yungbote/taskbridge-backend/internal/rag/indexer"
	"github.com/yungbote/taskbridge-backend/internal/rag/intent"
	"github.com/yungbote/taskbridge-backend/internal/rag/rank"
	"github.com/yungbote/taskbridge-backend/internal/rag/resolve"
	"github.com/yungbote/taskbridge-backend/internal/rag/search"
	"github.com/yungbote/taskbridge-backend/internal/services"
)

type Services struct {
	Users    services.UserService
	Teams    services.TeamService
	Projects services.ProjectService
	Tasks    services.TaskService
	Chat     services.ChatService

	Indexer  indexer.Service
	Searcher search.Searcher
	Sessions conversation.Store

	LLM      llm.Client
	Embedder embedding.Service
	Store    qdrant.Store
	Cache    cache.Cache
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet *repos.Repos) (Services, error) {
	log.Info("Wiring services...")

	// One cache backend shared by session mirrors, the response cache and
	// the completion cache.
	cacheStore := cache.FromEnv(log)

	local, err := ollama.New(log, ollama.ResolveConfigFromEnv())
	if err != nil {
		return Services{}, fmt.Errorf("init ollama: %w", err)
	}
	var hosted llm.Client
	if cfg.UseOpenAI {
		ocfg, cfgErr := openai.ResolveConfigFromEnv()
		if cfgErr != nil {
			return Services{}, fmt.Errorf("openai config: %w", cfgErr)
		}
		if hosted, err = openai.New(log, ocfg); err != nil {
			return Services{}, fmt.Errorf("init openai: %w", err)
		}
	}
	client := llm.WithCache(log, llm.Select(cfg.UseOpenAI, hosted, local), cacheStore, cfg.LLMCacheContextKey)

	embedder, err := embedding.New(log, client, embedding.ResolveConfigFromEnv())
	if err != nil {
		return Services{}, fmt.Errorf("init embedding: %w", err)
	}

	qcfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		return Services{}, fmt.Errorf("qdrant config: %w", err)
	}
	rawStore, err := qdrant.New(log, qcfg)
	if err != nil {
		return Services{}, fmt.Errorf("init qdrant: %w", err)
	}
	store := instrumentVectorStore(rawStore)

	userService := services.NewUserService(db, log, reposet.User, reposet.Team)
	teamService := services.NewTeamService(db, log, reposet.Team, reposet.User, reposet.Project)
	projectService := services.NewProjectService(db, log, reposet.Project)
	taskService := services.NewTaskService(db, log, reposet.Task, reposet.User)

	idx, err := indexer.New(log, reposet, embedder, store)
	if err != nil {
		return Services{}, fmt.Errorf("init indexer: %w", err)
	}
	searcher, err := search.New(log, embedder, store)
	if err != nil {
		return Services{}, fmt.Errorf("init searcher: %w", err)
	}
	classifier, err := intent.New(log, client, cfg.FastModel)
	if err != nil {
		return Services{}, fmt.Errorf("init classifier: %w", err)
	}
	processor, err := rank.New(log)
	if err != nil {
		return Services{}, fmt.Errorf("init context processor: %w", err)
	}
	resolver, err := resolve.New(log, userService, teamService, projectService, taskService)
	if err != nil {
		return Services{}, fmt.Errorf("init resolver: %w", err)
	}
	generator, err := generate.New(log, client)
	if err != nil {
		return Services{}, fmt.Errorf("init generator: %w", err)
	}
	sessions, err := conversation.New(log, client, cacheStore)
	if err != nil {
		return Services{}, fmt.Errorf("init conversation store: %w", err)
	}
	executor, err := action.New(log, action.Deps{
		Client:    client,
		FastModel: cfg.FastModel,
		Searcher:  searcher,
		Resolver:  resolver,
		Users:     userService,
		Teams:     teamService,
		Projects:  projectService,
		Tasks:     taskService,
		Indexer:   idx,
		Generator: generator,
		Sessions:  sessions,
		StaleRepo: reposet.StaleIndex,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init action executor: %w", err)
	}
	chatService, err := services.NewChatService(log,
		services.ChatConfig{ScopeCacheBySession: cfg.ScopeCacheBySession},
		services.ChatDeps{
			Classifier: classifier,
			Searcher:   searcher,
			Processor:  processor,
			Generator:  generator,
			Executor:   executor,
			Sessions:   sessions,
			Cache:      cacheStore,
		})
	if err != nil {
		return Services{}, fmt.Errorf("init chat service: %w", err)
	}

	return Services{
		Users:    userService,
		Teams:    teamService,
		Projects: projectService,
		Tasks:    taskService,
		Chat:     chatService,

		Indexer:  idx,
		Searcher: searcher,
		Sessions: sessions,

		LLM:      client,
		Embedder: embedder,
		Store:    store,
		Cache:    cacheStore,
	}, nil
}
