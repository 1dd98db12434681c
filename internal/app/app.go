package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/handlers"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/services/extractor"
	"github.com/ternarybob/scriba/internal/services/llm"
	"github.com/ternarybob/scriba/internal/services/pdf"
	"github.com/ternarybob/scriba/internal/services/scheduler"
	"github.com/ternarybob/scriba/internal/services/wizard"
	"github.com/ternarybob/scriba/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Core services
	Gateway          interfaces.LLMGateway
	Renderer         interfaces.PDFRenderer
	Extractor        interfaces.DocumentExtractor
	Orchestrator     *wizard.Orchestrator
	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	APIHandler  *handlers.APIHandler
	ToolHandler *handlers.ToolHandler
	WSHandler   *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.startScheduler(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Bool("llm_enabled", cfg.LLM.Enabled).
		Bool("cover_letter_enabled", cfg.Wizard.EnableCoverLetter).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Bool("in_memory", a.Config.Storage.Badger.InMemory).
		Msg("Storage layer initialized")

	return nil
}

// initServices wires the gateway, renderer, extractor, and orchestrator
func (a *App) initServices() error {
	gateway, err := llm.NewGatewayFromConfig(a.Config, a.StorageManager.KeyValueStorage(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create llm gateway: %w", err)
	}
	a.Gateway = gateway

	a.Renderer = pdf.NewRenderer(&a.Config.PDF, a.Logger)
	a.Extractor = extractor.NewService(a.Logger)

	a.Orchestrator = wizard.NewOrchestrator(
		a.Config,
		a.StorageManager,
		a.Gateway,
		a.Renderer,
		a.Extractor,
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(a.Logger)

	a.Logger.Debug().
		Bool("gateway_available", a.Gateway.Available()).
		Msg("Services initialized")

	return nil
}

// initHandlers creates the HTTP handler layer
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.ToolHandler = handlers.NewToolHandler(
		a.Config,
		a.StorageManager,
		a.Orchestrator,
		a.Renderer,
		a.Extractor,
		a.Logger,
	)
	a.WSHandler = handlers.NewWebSocketHandler(a.StorageManager, a.Logger)
}

// startScheduler registers and starts the session GC job
func (a *App) startScheduler() error {
	sessions := a.StorageManager.SessionStorage()
	err := a.SchedulerService.RegisterJob("session-cleanup", a.Config.Wizard.CleanupSchedule, func() error {
		removed, err := sessions.CleanupExpired(context.Background())
		if err != nil {
			return err
		}
		if removed > 0 {
			a.Logger.Info().Int("removed", removed).Msg("Expired sessions cleaned up")
		}
		return nil
	})
	if err != nil {
		return err
	}
	return a.SchedulerService.Start()
}

// Close shuts down services in reverse initialization order
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage manager")
		} else {
			a.Logger.Info().Msg("Storage manager closed")
		}
	}

	return nil
}
