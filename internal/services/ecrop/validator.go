package ecrop

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field Validator reasons
const (
	ReasonAvailableUnreadable = "unreadable available extent"
	ReasonAvailableZero       = "available extent is zero"
	ReasonClaimedUnreadable   = "unreadable claimed extent"
	ReasonClaimedZero         = "claimed extent is zero"
)

// Eligibility is the Field Validator verdict for one row. When Eligible is false,
// Outcome holds the Skipped or Failed result to record.
type Eligibility struct {
	Eligible        bool
	AvailableExtent float64
	ClaimedExtent   float64
	Outcome         Outcome
}

// Classify decides whether a row may be transacted from the raw available and
// claimed (anubhavadar) extent values. It has no side effects.
func Classify(availableRaw, claimedRaw string) Eligibility {
	available, err := parseExtent(availableRaw)
	if err != nil {
		return Eligibility{Outcome: failed(ReasonAvailableUnreadable, fmt.Errorf("%w: available extent %q", ErrParse, availableRaw))}
	}
	if available == 0.0 {
		return Eligibility{AvailableExtent: available, Outcome: skipped(ReasonAvailableZero, ErrIneligible)}
	}

	claimed, err := parseExtent(claimedRaw)
	if err != nil {
		return Eligibility{AvailableExtent: available, Outcome: failed(ReasonClaimedUnreadable, fmt.Errorf("%w: claimed extent %q", ErrParse, claimedRaw))}
	}
	if claimed <= 0.0 {
		return Eligibility{AvailableExtent: available, ClaimedExtent: claimed, Outcome: skipped(ReasonClaimedZero, ErrIneligible)}
	}

	return Eligibility{Eligible: true, AvailableExtent: available, ClaimedExtent: claimed}
}

func parseExtent(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return v, nil
}

// FormatExtent renders an extent the way it is typed into the occupant extent
// field: shortest decimal form, always with a fractional part ("2.0", "0.25").
func FormatExtent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
