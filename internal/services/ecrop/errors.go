package ecrop

import (
	"errors"
	"fmt"

	"github.com/ternarybob/ecrop/internal/interfaces"
)

// Error kinds of the workflow. Only ErrFatalSession aborts a run; every other kind
// is row or Khata local and the workflow moves on.
var (
	// ErrParse marks an unreadable numeric field on a survey row
	ErrParse = errors.New("unreadable numeric field")

	// ErrIneligible marks a row whose available or claimed extent is zero
	ErrIneligible = errors.New("row not eligible")

	// ErrMobileRejected marks a row with a malformed mobile and no valid replacement
	ErrMobileRejected = errors.New("mobile rejected")

	// ErrTransaction marks a failed step of the owner update sequence
	ErrTransaction = errors.New("owner update failed")

	// ErrDiscoveryTimeout marks a row index or search that produced no element in time
	ErrDiscoveryTimeout = errors.New("discovery timed out")

	// ErrFatalSession marks a login, navigation or browser session failure
	ErrFatalSession = errors.New("fatal session error")
)

// fatal wraps err as ErrFatalSession while keeping the cause reachable by errors.Is
func fatal(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrFatalSession, step, err)
}

// isSessionLoss reports whether err means the browser can no longer be driven
func isSessionLoss(err error) bool {
	return errors.Is(err, interfaces.ErrSessionLost) || errors.Is(err, ErrFatalSession)
}
