package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/common"
	"github.com/ternarybob/ecrop/internal/handlers"
	"github.com/ternarybob/ecrop/internal/metrics"
	"github.com/ternarybob/ecrop/internal/services/audit"
	"github.com/ternarybob/ecrop/internal/services/browser"
	"github.com/ternarybob/ecrop/internal/services/dataset"
	"github.com/ternarybob/ecrop/internal/services/ecrop"
	"github.com/ternarybob/ecrop/internal/services/license"
	"github.com/ternarybob/ecrop/internal/services/report"
	"github.com/ternarybob/ecrop/internal/storage"
	"github.com/ternarybob/ecrop/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	RunStorage *badger.RunStorage

	// Services
	Launcher       *browser.Launcher
	AuditSink      *audit.FileSink
	LicenseChecker *license.Checker
	DatasetLoader  *dataset.Loader
	ReportService  *report.Service
	Runner         *ecrop.Runner

	// Handlers
	APIHandler  *handlers.APIHandler
	PageHandler *handlers.PageHandler
	RunHandler  *handlers.RunHandler
	RunsHandler *handlers.RunsHandler
	WSHandler   *handlers.WebSocketHandler
}

// New wires storage and services. runnerOpts are appended to the runner options,
// letting callers such as the CLI add their own log listeners.
func New(cfg *common.Config, logger arbor.ILogger, runnerOpts ...ecrop.RunnerOption) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Created early so the runner can stream to it
	app.WSHandler = handlers.NewWebSocketHandler(logger)

	if err := app.initServices(runnerOpts); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info().
		Str("portal", cfg.Portal.URL).
		Bool("headless", cfg.Browser.Headless).
		Bool("license_enabled", cfg.License.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initDatabase() error {
	runs, err := storage.NewRunStorage(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.RunStorage = runs
	return nil
}

func (a *App) initServices(runnerOpts []ecrop.RunnerOption) error {
	sink, err := audit.NewFileSink(a.Config.Audit, a.Logger)
	if err != nil {
		return err
	}
	a.AuditSink = sink

	a.Launcher = browser.NewLauncher(a.Config, a.Logger)
	a.LicenseChecker = license.NewChecker(a.Config.License, a.Logger)
	a.DatasetLoader = dataset.NewLoader(a.Logger)
	a.ReportService = report.NewService(a.Logger)

	opts := append([]ecrop.RunnerOption{
		ecrop.WithLogListener(a.WSHandler.BroadcastLog),
		ecrop.WithScanObserver(a.WSHandler.BroadcastScan),
	}, runnerOpts...)
	a.Runner = ecrop.NewRunner(a.Config, a.Launcher, a.AuditSink, a.RunStorage, a.Logger, opts...)
	a.WSHandler.SetRunner(a.Runner)

	a.Logger.Debug().Strs("audit_files", a.AuditSink.Paths()).Msg("Services initialized")
	return nil
}

// InitHandlers builds the HTTP handlers; only the web server needs them
func (a *App) InitHandlers(pagesDir string) error {
	pages, err := handlers.NewPageHandler(a.Logger, pagesDir)
	if err != nil {
		return err
	}
	a.PageHandler = pages
	a.APIHandler = handlers.NewAPIHandler(a.Runner, a.Logger)
	a.RunHandler = handlers.NewRunHandler(a.Runner, a.LicenseChecker, a.DatasetLoader, pages, a.Config.Uploads, a.Logger)
	a.RunsHandler = handlers.NewRunsHandler(a.RunStorage, a.ReportService, a.Logger)
	return nil
}

// Close stops the log hub and releases storage. A run in progress keeps its own
// browser until it returns.
func (a *App) Close() error {
	if a.WSHandler != nil {
		a.WSHandler.Close()
	}
	if a.RunStorage != nil {
		if err := a.RunStorage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}
	return nil
}
