package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"aide/internal/adapters"
	"aide/internal/approval"
	"aide/internal/cache"
	"aide/internal/classifier"
	"aide/internal/config"
	"aide/internal/db"
	"aide/internal/engine"
	"aide/internal/llm"
	"aide/internal/router"
	"aide/internal/vault"
)

// app wires the full pipeline from loaded configuration. Commands build
// one, use it, and Close it.
type app struct {
	cfg        *config.Config
	database   *db.DB
	store      *vault.Store
	events     *db.EventRepository
	tasks      *db.TaskRepository
	gateway    *approval.Gateway
	engine     *engine.Engine
	router     *router.Router
	classifier *classifier.Classifier
}

func newApp() (*app, error) {
	cfg := loadedCfg
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	database, err := db.Open(db.Options{
		Path:           cfg.Database.Path,
		BusyTimeout:    cfg.Database.BusyTimeout(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, err
	}

	store, err := vault.NewStore(cfg.Vault.Path)
	if err != nil {
		database.Close()
		return nil, err
	}

	anthropic := llm.NewAnthropicClient(
		llm.WithEndpoint(cfg.LLM.BaseURL),
		llm.WithModel(cfg.LLM.Model),
		llm.WithAPIKeyEnv(cfg.LLM.APIKeyEnv),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
	)
	// Without a key the remote path is disabled outright and the local
	// rule table carries classification.
	var remote llm.Client
	if os.Getenv(cfg.LLM.APIKeyEnv) != "" {
		remote = anthropic
	}

	events := db.NewEventRepository(database)
	tasks := db.NewTaskRepository(database)

	eng := engine.NewEngine(
		tasks, events, store,
		engine.NewLLMStepExecutor(anthropic, cfg.Engine.CompletionToken),
		cfg.Engine,
	)

	gateway := approval.NewGateway(
		db.NewApprovalRepository(database), events, store,
		adapters.NewOutboxWatcher(filepath.Join(cfg.Global.DataDir, "outbox")),
		adapters.NewLoopWatcher(eng),
	)

	queryCache := cache.New(cfg.Cache.Dir, cfg.Cache.TTL())

	return &app{
		cfg:      cfg,
		database: database,
		store:    store,
		events:   events,
		tasks:    tasks,
		gateway:  gateway,
		engine:   eng,
		router: router.NewRouter(gateway, events, queryCache, cfg.Classifier.ConfidenceThreshold,
			adapters.NewLLMReadAdapter(remote)),
		classifier: classifier.New(classifier.Options{
			Client:        remote,
			RemoteTimeout: cfg.Classifier.RemoteTimeout(),
			HistoryTurns:  cfg.Classifier.HistoryTurns,
		}),
	}, nil
}

func (a *app) Close() {
	if a.database != nil {
		a.database.Close()
	}
}
