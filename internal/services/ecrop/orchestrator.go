package ecrop

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/metrics"
	"github.com/ternarybob/ecrop/internal/models"
)

// Skipped Khata reasons written to the audit trail
const (
	SkipNoRowsFound     = "No survey rows found"
	SkipNoEligibleRows  = "No eligible rows"
	SkipSearchFailed    = "Search failed"
	SkipDiscoveryFailed = "Row discovery failed"
)

// Orchestrator searches each Khata and scans its rows. Khata level failures are
// logged and the next Khata is processed; only fatal session errors stop it.
type Orchestrator struct {
	driver   interfaces.BrowserDriver
	scanner  *Scanner
	audit    interfaces.AuditSink
	log      *models.WorkflowLog
	logger   arbor.ILogger
	timeouts Timeouts
}

func NewOrchestrator(driver interfaces.BrowserDriver, scanner *Scanner, audit interfaces.AuditSink, log *models.WorkflowLog, logger arbor.ILogger, timeouts Timeouts) *Orchestrator {
	return &Orchestrator{
		driver:   driver,
		scanner:  scanner,
		audit:    audit,
		log:      log,
		logger:   logger,
		timeouts: timeouts,
	}
}

// ProcessAll handles khatas in order, duplicates included. On a fatal error it
// returns the results gathered so far together with the error.
func (o *Orchestrator) ProcessAll(ctx context.Context, khatas []string) ([]models.KhataResult, error) {
	results := make([]models.KhataResult, 0, len(khatas))
	for _, khata := range khatas {
		result, err := o.ProcessKhata(ctx, khata)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// ProcessKhata searches one Khata and runs the row scan to exhaustion
func (o *Orchestrator) ProcessKhata(ctx context.Context, khata string) (models.KhataResult, error) {
	result := models.KhataResult{KhataID: khata}
	o.log.Info("Starting Khata: %s", khata)
	o.logger.Info().Str("khata", khata).Msg("Processing Khata")

	if err := o.search(ctx, khata); err != nil {
		if isSessionLoss(err) || ctx.Err() != nil {
			return result, fatal(fmt.Sprintf("search khata %s", khata), err)
		}
		o.log.Error("Error entering Khata %s: %v", khata, err)
		o.logger.Warn().Err(err).Str("khata", khata).Msg("Khata search failed")
		result.SearchFailed = true
		o.recordSkipped(&result, SkipSearchFailed)
		metrics.KhatasProcessed.WithLabelValues("search_failed").Inc()
		return result, nil
	}

	scan, err := o.scanner.Scan(ctx, khata)
	result.RowsSeen = scan.RowsSeen
	result.Updated = scan.Updated
	result.Skipped = scan.Skipped
	result.Failed = scan.Failed
	result.Diverged = scan.Diverged
	if err != nil {
		return result, err
	}

	if result.Updated == 0 {
		reason := SkipNoEligibleRows
		switch {
		case scan.DiscoveryErr != nil && scan.RowsSeen == 0:
			reason = SkipDiscoveryFailed
		case scan.RowsSeen == 0:
			reason = SkipNoRowsFound
		}
		o.log.Warn("Khata %s had no eligible rows for update (%s).", khata, reason)
		o.recordSkipped(&result, reason)
		metrics.KhatasProcessed.WithLabelValues("skipped").Inc()
	} else {
		o.log.Info("Khata %s: %d rows updated.", khata, result.Updated)
		metrics.KhatasProcessed.WithLabelValues("updated").Inc()
	}

	o.logger.Info().
		Str("khata", khata).
		Int("rows_seen", result.RowsSeen).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("Khata processed")

	return result, nil
}

// search enters the Khata id, clicks search and soft-checks that rows appeared
func (o *Orchestrator) search(ctx context.Context, khata string) error {
	if err := o.driver.WaitClickable(ctx, khataSearchField, o.timeouts.Navigation); err != nil {
		return fmt.Errorf("%w: search field: %w", ErrDiscoveryTimeout, err)
	}
	if err := o.driver.SetValue(ctx, khataSearchField, khata); err != nil {
		return fmt.Errorf("enter khata: %w", err)
	}
	if err := o.driver.WaitClickable(ctx, khataSearchButton, o.timeouts.Transition); err != nil {
		return fmt.Errorf("%w: search button: %w", ErrDiscoveryTimeout, err)
	}
	if err := o.driver.Click(ctx, khataSearchButton); err != nil {
		return fmt.Errorf("click search: %w", err)
	}
	o.log.Info("Khata %s entered and searched.", khata)

	if err := o.driver.WaitPresent(ctx, anySurveyRow, o.timeouts.SearchResult); err != nil {
		if isSessionLoss(err) {
			return err
		}
		o.log.Warn("No survey rows visible after search: %v", err)
		return nil
	}
	o.log.Info("Survey rows detected after search")
	return nil
}

func (o *Orchestrator) recordSkipped(result *models.KhataResult, reason string) {
	result.SkipReason = reason
	if err := o.audit.RecordSkippedKhata(result.KhataID, reason); err != nil {
		o.logger.Warn().Err(err).Str("khata", result.KhataID).Msg("Failed to write skipped Khata record")
	}
}
