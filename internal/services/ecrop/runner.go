package ecrop

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ecrop/internal/common"
	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/metrics"
	"github.com/ternarybob/ecrop/internal/models"
)

// ErrRunInProgress is returned when a run is requested while another one holds the browser
var ErrRunInProgress = errors.New("a run is already in progress")

// RunRequest is everything a run needs besides configuration
type RunRequest struct {
	Credentials
	Dataset     *models.Dataset
	DatasetFile string
}

// Runner owns one browser session per run: it launches the driver, navigates to
// the village, processes every Khata and always quits the browser exactly once.
// Only one run may be active per process.
type Runner struct {
	config   *common.Config
	launcher interfaces.DriverLauncher
	audit    interfaces.AuditSink
	storage  interfaces.RunStorage
	logger   arbor.ILogger
	timeouts Timeouts

	listeners []models.WorkflowLogListener
	observer  ScanObserver
	active    atomic.Bool
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithLogListener streams every Workflow Log entry of every run to listener
func WithLogListener(listener models.WorkflowLogListener) RunnerOption {
	return func(r *Runner) {
		r.listeners = append(r.listeners, listener)
	}
}

// WithScanObserver forwards row scan events of every run
func WithScanObserver(observer ScanObserver) RunnerOption {
	return func(r *Runner) {
		r.observer = observer
	}
}

// WithTimeouts overrides the timeouts resolved from config
func WithTimeouts(timeouts Timeouts) RunnerOption {
	return func(r *Runner) {
		r.timeouts = timeouts
	}
}

// NewRunner creates a runner. storage may be nil, in which case runs are not kept.
func NewRunner(config *common.Config, launcher interfaces.DriverLauncher, audit interfaces.AuditSink, storage interfaces.RunStorage, logger arbor.ILogger, opts ...RunnerOption) *Runner {
	r := &Runner{
		config:   config,
		launcher: launcher,
		audit:    audit,
		storage:  storage,
		logger:   logger,
		timeouts: TimeoutsFromConfig(config),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Busy reports whether a run currently holds the browser
func (r *Runner) Busy() bool {
	return r.active.Load()
}

// Run executes one workflow synchronously. Failures inside the workflow are
// reported through the returned report; the error is only set when the run could
// not start at all.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*models.RunReport, error) {
	if req.Dataset == nil {
		return nil, fmt.Errorf("dataset is required")
	}
	if !r.active.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.active.Store(false)

	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()

	report := &models.RunReport{
		ID:          uuid.New().String(),
		VillageCode: req.VillageCode,
		DatasetFile: req.DatasetFile,
		Username:    req.Username,
		Status:      models.RunStatusRunning,
		StartedAt:   time.Now(),
	}
	logger := r.logger.WithCorrelationId(report.ID)
	logger.Info().
		Str("village", req.VillageCode).
		Str("dataset", req.DatasetFile).
		Int("khatas", len(req.Dataset.Khatas())).
		Msg("Run started")

	log := models.NewWorkflowLog()
	unsubscribe := log.Subscribe(r.mirror(logger))
	defer unsubscribe()

	r.save(report, logger)
	defer r.finish(report, log, logger)

	driver, err := r.launcher.Launch(ctx)
	if err != nil {
		log.Error("Failed to launch browser: %v", err)
		report.Status = models.RunStatusFailed
		report.FatalError = err.Error()
		return report, nil
	}

	var quitOnce sync.Once
	quit := func() {
		quitOnce.Do(func() {
			if err := driver.Quit(); err != nil {
				logger.Warn().Err(err).Msg("Browser quit returned an error")
			}
			log.Info("Browser closed.")
		})
	}
	defer quit()

	if err := r.execute(ctx, driver, req, log, logger, report); err != nil {
		log.Error("Fatal error during navigation or update: %v", err)
		report.Status = models.RunStatusFailed
		report.FatalError = err.Error()
		r.captureScreenshot(driver, log, logger, report)
		r.capturePortalMessages(driver, log, logger)
		return report, nil
	}

	report.Status = models.RunStatusCompleted
	return report, nil
}

func (r *Runner) execute(ctx context.Context, driver interfaces.BrowserDriver, req RunRequest, log *models.WorkflowLog, logger arbor.ILogger, report *models.RunReport) error {
	navigator := NewNavigator(driver, log, r.timeouts, r.config.Portal.URL, r.config.Portal.MenuLinkText)
	if err := navigator.Open(ctx, req.Credentials); err != nil {
		return err
	}

	resolver := NewResolver(req.Dataset, r.audit, logger)
	transaction := NewTransaction(driver, log, r.timeouts, r.config.Portal.OwnerOption)
	var scanOpts []ScannerOption
	if r.observer != nil {
		scanOpts = append(scanOpts, WithObserver(r.observer))
	}
	scanner := NewScanner(driver, resolver, transaction, log, logger, r.timeouts, r.config.Scan.MaxRepeatedUpdates, scanOpts...)
	orchestrator := NewOrchestrator(driver, scanner, r.audit, log, logger, r.timeouts)

	results, err := orchestrator.ProcessAll(ctx, req.Dataset.Khatas())
	report.Khatas = results
	if err != nil {
		return err
	}

	log.Info("All Khatas processed.")
	return nil
}

// captureScreenshot is best effort; its failure is logged and never propagated
func (r *Runner) captureScreenshot(driver interfaces.BrowserDriver, log *models.WorkflowLog, logger arbor.ILogger, report *models.RunReport) {
	path := filepath.Join(r.config.Audit.Dir, r.config.Audit.ScreenshotFile)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	// The run context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), r.timeouts.Transition)
	defer cancel()

	if err := driver.Screenshot(ctx, path); err != nil {
		log.Warn("Failed to save screenshot.")
		logger.Warn().Err(err).Str("path", path).Msg("Screenshot failed")
		return
	}
	report.ScreenshotPath = path
	log.Info("Screenshot saved: %s", path)
}

// capturePortalMessages logs any alert the portal was showing when the run failed
func (r *Runner) capturePortalMessages(driver interfaces.BrowserDriver, log *models.WorkflowLog, logger arbor.ILogger) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeouts.Transition)
	defer cancel()

	html, err := driver.PageHTML(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not read page for portal messages")
		return
	}
	messages, err := PortalMessages(html)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not parse page for portal messages")
		return
	}
	for _, message := range messages {
		log.Warn("Portal message: %s", message)
	}
}

func (r *Runner) finish(report *models.RunReport, log *models.WorkflowLog, logger arbor.ILogger) {
	report.FinishedAt = time.Now()
	report.Log = log.Entries()
	r.save(report, logger)

	metrics.RunsTotal.WithLabelValues(report.Status).Inc()
	metrics.RunDuration.Observe(report.Duration().Seconds())

	logger.Info().
		Str("status", report.Status).
		Int("khatas", len(report.Khatas)).
		Int("updated", report.TotalUpdated()).
		Int("skipped_khatas", report.SkippedKhatas()).
		Str("duration", report.Duration().Round(time.Millisecond).String()).
		Msg("Run finished")
}

func (r *Runner) save(report *models.RunReport, logger arbor.ILogger) {
	if r.storage == nil {
		return
	}
	if err := r.storage.SaveRun(context.Background(), report); err != nil {
		logger.Warn().Err(err).Msg("Failed to store run")
	}
}

// mirror copies Workflow Log entries to the operational log and the listeners
func (r *Runner) mirror(logger arbor.ILogger) models.WorkflowLogListener {
	return func(entry models.WorkflowLogEntry) {
		switch entry.Level {
		case "error":
			logger.Error().Msg(entry.Message)
		case "warn":
			logger.Warn().Msg(entry.Message)
		default:
			logger.Info().Msg(entry.Message)
		}
		for _, listener := range r.listeners {
			listener(entry)
		}
	}
}
