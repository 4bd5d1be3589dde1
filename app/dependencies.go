package app

import (
	"context"
	"fmt"
	"time"

	"github.com/model-relay/model-relay/config"
	"github.com/model-relay/model-relay/repositories"
	"github.com/model-relay/model-relay/repositories/memory"
	"github.com/model-relay/model-relay/repositories/postgres"
	"github.com/model-relay/model-relay/services/dispatch"
	"github.com/model-relay/model-relay/services/providers"
	"github.com/model-relay/model-relay/services/providers/gemini"
	"github.com/model-relay/model-relay/services/providers/openrouter"
	"github.com/model-relay/model-relay/services/usage"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil when usage tracking runs in memory
	Logger *zap.Logger

	// Usage tracking
	UsageRepo repositories.UsageRepository
	Usage     *usage.Service

	// Providers and dispatch
	Registry   *providers.Registry
	Dispatcher *dispatch.Dispatcher
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deps.initUsage(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize usage tracking: %w", err)
	}

	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initDispatcher(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initStorage initializes the usage log store: PostgreSQL when a database
// is configured, otherwise in memory.
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	if cfg.Database == nil {
		d.UsageRepo = memory.NewUsageRepository()
		d.Logger.Info("no database configured, usage tracking runs in memory")
		return nil
	}

	db, err := postgres.NewDB(*cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.DB = db
	d.UsageRepo = postgres.NewUsageRepository(db, d.Logger)
	return nil
}

// initUsage starts the asynchronous usage service
func (d *Dependencies) initUsage(cfg *config.Config) error {
	service := usage.NewService(d.UsageRepo, d.Logger, usage.Config{
		BufferSize:    cfg.Usage.BufferSize,
		WorkerCount:   cfg.Usage.WorkerCount,
		Retention:     cfg.Usage.Retention,
		PruneInterval: cfg.Usage.PruneInterval,
	})

	if err := service.Start(); err != nil {
		return err
	}

	d.Usage = service
	return nil
}

// initProviders builds the fallback ladder and the reserved secondary
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry := providers.NewRegistry()

	if len(cfg.OpenRouter.Ladder) > 0 {
		client := openrouter.NewClient(openrouter.Config{
			APIKey:  cfg.OpenRouter.APIKey,
			BaseURL: cfg.OpenRouter.BaseURL,
			Referer: cfg.OpenRouter.Referer,
			Title:   cfg.OpenRouter.Title,
		}, d.Logger)

		for _, entry := range cfg.OpenRouter.Ladder {
			caps := make(providers.CapabilitySet, 0, len(entry.Capabilities))
			for _, raw := range entry.Capabilities {
				c, ok := providers.ParseCapability(raw)
				if !ok {
					return fmt.Errorf("ladder model %s: unknown capability %q", entry.Model, raw)
				}
				caps = append(caps, c)
			}

			provider := client.Provider(providers.Descriptor{
				ID:               entry.Model,
				Capabilities:     caps,
				NeedsTranslation: entry.NeedsTranslation,
			})
			if err := registry.Register(provider); err != nil {
				return fmt.Errorf("failed to register %s: %w", entry.Model, err)
			}
			d.Logger.Info("registered provider",
				zap.String("model", entry.Model),
				zap.Strings("capabilities", caps.Strings()))
		}
	}

	if cfg.Gemini.APIKey != "" {
		secondary := gemini.New(gemini.Config{
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
		}, d.Logger)

		if err := registry.SetSecondary(secondary); err != nil {
			return fmt.Errorf("failed to set secondary provider: %w", err)
		}
		d.Logger.Info("registered secondary provider",
			zap.String("model", cfg.Gemini.Model))
	}

	if registry.Count() == 0 && registry.Secondary() == nil {
		return fmt.Errorf("no providers configured")
	}

	d.Registry = registry
	return nil
}

// initDispatcher wires the dispatcher over the registry and usage service
func (d *Dependencies) initDispatcher(cfg *config.Config) {
	d.Dispatcher = dispatch.NewDispatcher(
		d.Registry,
		d.Usage,
		d.Logger,
		dispatch.Config{
			TextTimeout:    cfg.Dispatch.TextTimeout,
			MediaTimeout:   cfg.Dispatch.MediaTimeout,
			RateLimitDelay: cfg.Dispatch.RateLimitDelay,
			BatchWorkers:   cfg.Dispatch.BatchWorkers,
		},
		dispatch.TranslationConfig{
			Model:       cfg.Translation.Model,
			Language:    cfg.Translation.Language,
			Temperature: cfg.Translation.Temperature,
		},
	)
}

// Shutdown drains the usage service and closes the database connection
func (d *Dependencies) Shutdown(timeout time.Duration) error {
	var firstErr error

	if d.Usage != nil {
		if err := d.Usage.Stop(timeout); err != nil {
			d.Logger.Error("usage service shutdown failed", zap.Error(err))
			firstErr = err
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("database close failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
