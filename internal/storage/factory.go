package storage

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/common"
	"github.com/ternarybob/ecrop/internal/storage/badger"
)

// NewRunStorage opens the Badger run history and fails any run a previous
// process left running
func NewRunStorage(logger arbor.ILogger, config *common.Config) (*badger.RunStorage, error) {
	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}

	runs := badger.NewRunStorage(db, logger)
	if count, err := runs.MarkInterrupted(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Failed to mark interrupted runs")
	} else if count > 0 {
		logger.Info().Int("count", count).Msg("Interrupted runs marked as failed")
	}
	return runs, nil
}
