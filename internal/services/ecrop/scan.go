package ecrop

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/metrics"
	"github.com/ternarybob/ecrop/internal/models"
)

// ScanState is a state of the row scan loop
type ScanState int

const (
	StateScanning ScanState = iota
	StateTransacting
	StateRestarting
	StateExhausted
)

func (s ScanState) String() string {
	switch s {
	case StateScanning:
		return "Scanning"
	case StateTransacting:
		return "Transacting"
	case StateRestarting:
		return "Restarting"
	case StateExhausted:
		return "Exhausted"
	default:
		return fmt.Sprintf("ScanState(%d)", int(s))
	}
}

// RowFields are the raw values read from a survey row
type RowFields struct {
	Available string
	Claimed   string
	Mobile    string
}

// ScanEvent is emitted on every state entered. Fields is only filled for
// Transacting, after the row was read.
type ScanEvent struct {
	Khata  string
	State  ScanState
	Row    int
	Fields RowFields
}

// ScanObserver receives scan events synchronously
type ScanObserver func(event ScanEvent)

// ScanResult is the per-Khata summary of a completed scan
type ScanResult struct {
	Khata    string
	RowsSeen int // successful discoveries, restarts included
	Updated  int
	Skipped  int
	Failed   int
	Diverged bool
	// DiscoveryErr is set when a non-fatal discovery error ended the scan
	DiscoveryErr error
}

type discovery int

const (
	rowFound discovery = iota
	rowAbsent
	rowError
)

// rowFingerprint identifies a row position by the extents it showed when updated.
// The mobile is left out since a replacement changes it on the first pass.
type rowFingerprint struct {
	row       int
	available string
	claimed   string
}

// rowAttempt is what transact observed before committing
type rowAttempt struct {
	fields RowFields
	// pendingBefore is the number of listed rows just before the commit, -1 if unknown
	pendingBefore int
}

// Scanner walks the survey rows of the searched Khata by position. An update
// restarts the walk at row 0 since it may shift every later row; any other outcome
// advances to the next index. The walk ends at the first index with no row.
//
// A row that keeps its values after being updated would be retried forever. With
// maxRepeatedUpdates > 0 the scan counts the listed rows around every commit. An
// update that shrinks the list is progress and clears the repeat counters, so rows
// with identical values are all updated. A row position updated that many times
// without the list shrinking is logged as diverged and skipped from then on. When
// the rows cannot be counted, each update counts as a repeat.
type Scanner struct {
	driver             interfaces.BrowserDriver
	resolver           *Resolver
	transaction        *Transaction
	log                *models.WorkflowLog
	logger             arbor.ILogger
	timeouts           Timeouts
	maxRepeatedUpdates int
	observer           ScanObserver
}

// ScannerOption configures a Scanner
type ScannerOption func(*Scanner)

// WithObserver registers a hook called on every state transition
func WithObserver(observer ScanObserver) ScannerOption {
	return func(s *Scanner) {
		s.observer = observer
	}
}

func NewScanner(
	driver interfaces.BrowserDriver,
	resolver *Resolver,
	transaction *Transaction,
	log *models.WorkflowLog,
	logger arbor.ILogger,
	timeouts Timeouts,
	maxRepeatedUpdates int,
	opts ...ScannerOption,
) *Scanner {
	s := &Scanner{
		driver:             driver,
		resolver:           resolver,
		transaction:        transaction,
		log:                log,
		logger:             logger,
		timeouts:           timeouts,
		maxRepeatedUpdates: maxRepeatedUpdates,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs the loop from Scanning(0) to Exhausted for the Khata currently shown.
// The returned error is non-nil only for fatal session errors, including ctx
// cancellation; the partial result is returned alongside it.
func (s *Scanner) Scan(ctx context.Context, khata string) (ScanResult, error) {
	result := ScanResult{Khata: khata}
	updatesByRow := make(map[rowFingerprint]int)
	diverged := make(map[rowFingerprint]bool)

	state, row := StateScanning, 0
	for {
		if err := ctx.Err(); err != nil {
			return result, fatal("row scan", err)
		}

		switch state {
		case StateScanning:
			s.emit(ScanEvent{Khata: khata, State: StateScanning, Row: row})
			found, err := s.tryFind(ctx, row)
			switch found {
			case rowAbsent:
				state = StateExhausted
			case rowError:
				if isSessionLoss(err) || ctx.Err() != nil {
					return result, fatal(fmt.Sprintf("discover row %d", row), err)
				}
				result.DiscoveryErr = err
				s.log.Error("Row %d: discovery failed: %v", row, err)
				state = StateExhausted
			case rowFound:
				result.RowsSeen++
				if err := s.driver.ScrollIntoView(ctx, claimedExtentField(row)); err != nil {
					if isSessionLoss(err) {
						return result, fatal(fmt.Sprintf("scroll row %d", row), err)
					}
					s.logger.Debug().Err(err).Int("row", row).Msg("Scroll into view failed")
				}
				state = StateTransacting
			}

		case StateTransacting:
			attempt, outcome := s.transact(ctx, khata, row, diverged)
			if outcome.Err != nil && isSessionLoss(outcome.Err) {
				return result, fatal(fmt.Sprintf("row %d", row), outcome.Err)
			}
			metrics.RowOutcomes.WithLabelValues(outcome.Kind.String()).Inc()

			switch outcome.Kind {
			case OutcomeUpdated:
				result.Updated++
				if s.maxRepeatedUpdates <= 0 {
					s.log.Info("Modal triggered on row %d, restarting row scan...", row)
					state = StateRestarting
					continue
				}
				progressed, err := s.progressed(ctx, attempt.pendingBefore)
				if err != nil && isSessionLoss(err) {
					return result, fatal(fmt.Sprintf("count rows after row %d", row), err)
				}
				fp := rowFingerprint{row: row, available: attempt.fields.Available, claimed: attempt.fields.Claimed}
				if progressed {
					clear(updatesByRow)
				} else {
					updatesByRow[fp]++
				}
				if updatesByRow[fp] >= s.maxRepeatedUpdates {
					diverged[fp] = true
					result.Diverged = true
					metrics.ScanDivergences.Inc()
					s.log.Warn("Row %d of Khata %s still pending after %d updates, moving on", row, khata, updatesByRow[fp])
					s.logger.Warn().Str("khata", khata).Int("row", row).Int("updates", updatesByRow[fp]).Msg("Row scan diverged")
					row++
					state = StateScanning
					continue
				}
				s.log.Info("Modal triggered on row %d, restarting row scan...", row)
				state = StateRestarting
			case OutcomeSkipped:
				result.Skipped++
				row++
				state = StateScanning
			default:
				result.Failed++
				row++
				state = StateScanning
			}

		case StateRestarting:
			s.emit(ScanEvent{Khata: khata, State: StateRestarting, Row: row})
			row = 0
			state = StateScanning

		case StateExhausted:
			s.emit(ScanEvent{Khata: khata, State: StateExhausted, Row: row})
			s.log.Info("Finished updating rows for Khata %s", khata)
			return result, nil
		}
	}
}

// tryFind checks whether a survey row exists at index row
func (s *Scanner) tryFind(ctx context.Context, row int) (discovery, error) {
	err := s.driver.WaitPresent(ctx, claimedExtentField(row), s.timeouts.RowDiscovery)
	switch {
	case err == nil:
		return rowFound, nil
	case errors.Is(err, interfaces.ErrElementNotFound):
		return rowAbsent, nil
	default:
		return rowError, fmt.Errorf("%w: row %d: %w", ErrDiscoveryTimeout, row, err)
	}
}

// transact validates the row, resolves its mobile and commits the update
func (s *Scanner) transact(ctx context.Context, khata string, row int, diverged map[rowFingerprint]bool) (rowAttempt, Outcome) {
	attempt := rowAttempt{pendingBefore: -1}
	fields := &attempt.fields
	event := func() {
		s.emit(ScanEvent{Khata: khata, State: StateTransacting, Row: row, Fields: *fields})
	}

	available, err := s.driver.Value(ctx, availableExtentField(row), s.timeouts.FieldRead)
	if err != nil {
		event()
		s.log.Error("Row %d: Failed to read available extent: %v", row, err)
		return attempt, failed(ReasonAvailableUnreadable, fmt.Errorf("%w: %w", ErrParse, err))
	}
	fields.Available = available

	claimed, err := s.driver.Value(ctx, claimedExtentField(row), s.timeouts.FieldRead)
	if err != nil {
		event()
		s.log.Error("Row %d: Failed to read anubhavadar extent: %v", row, err)
		return attempt, failed(ReasonClaimedUnreadable, fmt.Errorf("%w: %w", ErrParse, err))
	}
	fields.Claimed = claimed

	eligibility := Classify(available, claimed)
	if !eligibility.Eligible {
		event()
		s.logIneligible(row, eligibility.Outcome)
		return attempt, eligibility.Outcome
	}

	if diverged[rowFingerprint{row: row, available: available, claimed: claimed}] {
		event()
		s.log.Warn("Row %d: Skipped (still pending after repeated updates)", row)
		return attempt, skipped("still pending after repeated updates", fmt.Errorf("%w: row %d did not leave the pending list", ErrTransaction, row))
	}
	s.log.Info("Row %d: Available extent = %s, Anubhavadar extent = %s", row, FormatExtent(eligibility.AvailableExtent), FormatExtent(eligibility.ClaimedExtent))

	current, err := s.driver.Value(ctx, mobileField(row), s.timeouts.FieldRead)
	if err != nil {
		event()
		s.log.Error("Row %d error: read mobile: %v", row, err)
		return attempt, failed("read mobile", fmt.Errorf("%w: read mobile: %w", ErrTransaction, err))
	}
	fields.Mobile = current
	event()

	decision := s.resolver.Resolve(khata, row, current)
	switch decision.Action {
	case Reject:
		metrics.InvalidMobiles.Inc()
		s.log.Error("Row %d: Invalid mobile in dataset for Khata %s, skipping Owner Update", row, khata)
		return attempt, failed("invalid mobile", fmt.Errorf("%w: khata %s row %d: %q", ErrMobileRejected, khata, row, decision.Mobile))
	case UseReplacement:
		metrics.MobileReplacements.Inc()
	case KeepExisting:
		s.log.Info("Row %d: Mobile already present (%s)", row, decision.Mobile)
	}

	if s.maxRepeatedUpdates > 0 {
		if n, err := s.pendingRows(ctx); err == nil {
			attempt.pendingBefore = n
		} else if isSessionLoss(err) {
			return attempt, failed("count rows", err)
		} else {
			s.logger.Debug().Err(err).Int("row", row).Msg("Counting survey rows failed")
		}
	}

	return attempt, s.transaction.Commit(ctx, row, decision, eligibility.ClaimedExtent)
}

// pendingRows counts the survey rows currently listed
func (s *Scanner) pendingRows(ctx context.Context) (int, error) {
	var n int
	if err := s.driver.RunScript(ctx, pendingRowsScript, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// progressed reports whether the list shrank below before after an update
func (s *Scanner) progressed(ctx context.Context, before int) (bool, error) {
	if before < 0 {
		return false, nil
	}
	after, err := s.pendingRows(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Counting survey rows failed")
		return false, err
	}
	return after < before, nil
}

func (s *Scanner) logIneligible(row int, outcome Outcome) {
	switch {
	case outcome.Kind == OutcomeFailed:
		s.log.Error("Row %d: %s", row, outcome.Reason)
	case outcome.Reason == ReasonAvailableZero:
		s.log.Info("Row %d: Skipped (available extent is 0.0)", row)
	default:
		s.log.Info("Row %d: Extent is zero, skipping Owner flow", row)
	}
}

func (s *Scanner) emit(event ScanEvent) {
	if s.observer != nil {
		s.observer(event)
	}
}
