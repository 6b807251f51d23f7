package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/models"
)

const interruptedError = "run interrupted by service shutdown"

// RunStorage implements interfaces.RunStorage for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.RunStorage = (*RunStorage)(nil)

func NewRunStorage(db *BadgerDB, logger arbor.ILogger) *RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRun inserts or replaces a run snapshot
func (s *RunStorage) SaveRun(ctx context.Context, report *models.RunReport) error {
	if report.ID == "" {
		return errors.New("run id is required")
	}
	if err := s.db.Store().Upsert(report.ID, report); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.RunReport, error) {
	var report models.RunReport
	err := s.db.Store().Get(id, &report)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &report, nil
}

// ListRuns returns the most recent runs first; limit <= 0 returns all of them
func (s *RunStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunReport, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.RunReport
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.RunReport, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

// MarkInterrupted fails every run still recorded as running. A process that
// stops mid-run leaves such records behind; runs are never resumed.
func (s *RunStorage) MarkInterrupted(ctx context.Context) (int, error) {
	var runs []models.RunReport
	if err := s.db.Store().Find(&runs, badgerhold.Where("Status").Eq(models.RunStatusRunning)); err != nil {
		return 0, fmt.Errorf("failed to find running runs: %w", err)
	}

	for i := range runs {
		runs[i].Status = models.RunStatusFailed
		runs[i].FatalError = interruptedError
		runs[i].FinishedAt = time.Now()
		if err := s.SaveRun(ctx, &runs[i]); err != nil {
			return i, err
		}
		s.logger.Warn().Str("run_id", runs[i].ID).Msg("Marked interrupted run as failed")
	}
	return len(runs), nil
}

func (s *RunStorage) Close() error {
	return s.db.Close()
}
