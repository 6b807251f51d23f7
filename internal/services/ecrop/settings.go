package ecrop

import (
	"context"
	"time"

	"github.com/ternarybob/ecrop/internal/common"
)

// Timeouts are the bounded waits of the workflow. Existence checks use the short
// RowDiscovery and FieldRead values, state transitions the longer Transition.
type Timeouts struct {
	RowDiscovery  time.Duration
	FieldRead     time.Duration
	Transition    time.Duration
	SearchResult  time.Duration
	Navigation    time.Duration
	Settle        time.Duration
	LoginSettle   time.Duration
	VillageSettle time.Duration
}

// DefaultTimeouts mirror the defaults of the configuration file
func DefaultTimeouts() Timeouts {
	return Timeouts{
		RowDiscovery:  3 * time.Second,
		FieldRead:     5 * time.Second,
		Transition:    10 * time.Second,
		SearchResult:  10 * time.Second,
		Navigation:    20 * time.Second,
		Settle:        1500 * time.Millisecond,
		LoginSettle:   10 * time.Second,
		VillageSettle: 5 * time.Second,
	}
}

// TimeoutsFromConfig resolves the duration strings of the config, falling back to defaults
func TimeoutsFromConfig(config *common.Config) Timeouts {
	d := DefaultTimeouts()
	return Timeouts{
		RowDiscovery:  common.ParseDurationOr(config.Timeouts.RowDiscovery, d.RowDiscovery),
		FieldRead:     common.ParseDurationOr(config.Timeouts.FieldRead, d.FieldRead),
		Transition:    common.ParseDurationOr(config.Timeouts.Transition, d.Transition),
		SearchResult:  common.ParseDurationOr(config.Timeouts.SearchResult, d.SearchResult),
		Navigation:    common.ParseDurationOr(config.Timeouts.Navigation, d.Navigation),
		Settle:        common.ParseDurationOr(config.Timeouts.Settle, d.Settle),
		LoginSettle:   common.ParseDurationOr(config.Portal.LoginSettle, d.LoginSettle),
		VillageSettle: common.ParseDurationOr(config.Portal.VillageSettle, d.VillageSettle),
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
