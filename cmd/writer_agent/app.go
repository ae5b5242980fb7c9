package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/content-writer/internal/config"
	"github.com/jonathan/content-writer/internal/db"
	"github.com/jonathan/content-writer/internal/db/memstore"
	"github.com/jonathan/content-writer/internal/events"
	"github.com/jonathan/content-writer/internal/events/redis"
	"github.com/jonathan/content-writer/internal/generator"
	"github.com/jonathan/content-writer/internal/generator/dify"
	"github.com/jonathan/content-writer/internal/llm"
	"github.com/jonathan/content-writer/internal/logging"
	"github.com/jonathan/content-writer/internal/pipeline"
	"github.com/jonathan/content-writer/internal/pipeline/stages"
	"github.com/jonathan/content-writer/internal/summarize"
)

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     db.Store
	publisher events.Publisher
	orch      *pipeline.Orchestrator
	closers   []func()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newApp loads the configuration and connects the store, the generator and
// the event publishers.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, logging.Format(cfg.Log.Format))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	gen, err := a.newGenerator(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.publisher = a.newPublisher(ctx)
	a.closers = append(a.closers, func() { _ = a.publisher.Close() })

	a.orch = pipeline.New(a.store, gen, pipeline.Options{
		Logger:    logger,
		Publisher: a.publisher,
		Stage: stages.Options{
			SeedPlaceholder:  cfg.SeedPlaceholder,
			MaxHeadingsChars: cfg.MaxHeadingsChars,
		},
		Limits: summarize.Limits{
			MaxSummaryChars:        cfg.Context.MaxSummaryChars,
			MaxTopics:              cfg.Context.MaxTopics,
			MaxPreviousSections:    cfg.Context.MaxPreviousSections,
			MaxUpcomingSections:    cfg.Context.MaxUpcomingSections,
			UpcomingKnowledgeChars: cfg.Context.UpcomingKnowledgeChars,
		},
		CallTimeout:       time.Duration(cfg.Generator.TimeoutSeconds) * time.Second,
		MaxBackgroundRuns: cfg.MaxBackgroundRuns,
		Streaming:         cfg.Generator.Stream,
	})
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.Store == config.StoreMemory {
		a.logger.Warn("using in-memory store, projects are lost on exit")
		a.store = memstore.New()
		return nil
	}

	database, err := db.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	a.store = database
	a.closers = append(a.closers, database.Close)
	return nil
}

func (a *app) newGenerator(ctx context.Context) (generator.Generator, error) {
	switch a.cfg.Generator.Provider {
	case config.ProviderGemini:
		llmCfg := llm.DefaultConfig()
		for tier, model := range a.cfg.GeminiModels {
			llmCfg = llmCfg.WithModel(llm.ModelTier(tier), model)
		}
		client, err := llm.NewGeminiClient(ctx, llmCfg, a.cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return llm.NewGenerator(client, llmCfg, a.cfg.Generator.Workflows, a.logger), nil
	default:
		return dify.New(dify.Config{
			BaseURL: a.cfg.Generator.BaseURL,
			Keys:    a.cfg.Generator.Workflows,
			User:    a.cfg.Generator.User,
			Logger:  a.logger,
		}), nil
	}
}

// newPublisher always logs progress and also publishes to Redis when a URL
// is configured. An unreachable Redis is logged, not fatal.
func (a *app) newPublisher(ctx context.Context) events.Publisher {
	fanout := events.Fanout{events.NewLogPublisher(a.logger)}
	if a.cfg.Redis.URL == "" {
		return fanout
	}

	pub, err := redis.New(redis.Config{
		URL:      a.cfg.Redis.URL,
		Channel:  a.cfg.Redis.Channel,
		Encoding: a.cfg.Redis.Encoding,
	})
	if err != nil {
		a.logger.Warn("redis publisher disabled", zap.Error(err))
		return fanout
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pub.Ping(pingCtx); err != nil {
		a.logger.Warn("redis not reachable, progress events will be retried per publish", zap.Error(err))
	}
	return append(fanout, pub)
}

// Close releases everything newApp opened, last opened first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
