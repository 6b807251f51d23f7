package ecrop

import (
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ecrop/internal/interfaces"
	"github.com/ternarybob/ecrop/internal/models"
)

// MobileAction is what to do with a row's mobile field
type MobileAction int

const (
	KeepExisting MobileAction = iota
	UseReplacement
	Reject
)

func (a MobileAction) String() string {
	switch a {
	case KeepExisting:
		return "keep"
	case UseReplacement:
		return "replace"
	default:
		return "reject"
	}
}

// MobileDecision carries the action and the mobile it applies to. For Reject,
// Mobile is the dataset candidate that failed validation (possibly empty).
type MobileDecision struct {
	Action MobileAction
	Mobile string
}

// Resolver decides the mobile to submit for an eligible row and records
// replacements and rejections in the audit sink. It never touches the UI.
type Resolver struct {
	dataset *models.Dataset
	audit   interfaces.AuditSink
	logger  arbor.ILogger
}

func NewResolver(dataset *models.Dataset, audit interfaces.AuditSink, logger arbor.ILogger) *Resolver {
	return &Resolver{dataset: dataset, audit: audit, logger: logger}
}

// Resolve returns the decision for row of khata given the on-screen mobile value
func (r *Resolver) Resolve(khata string, row int, current string) MobileDecision {
	current = strings.TrimSpace(current)
	if !needsReplacement(current) {
		return MobileDecision{Action: KeepExisting, Mobile: current}
	}

	candidate, _ := r.dataset.MobileFor(khata)
	if !IsValidMobile(candidate) {
		if err := r.audit.RecordInvalidMobile(khata, row, candidate); err != nil {
			r.logger.Warn().Err(err).Str("khata", khata).Int("row", row).Msg("Failed to write invalid mobile record")
		}
		return MobileDecision{Action: Reject, Mobile: candidate}
	}

	if err := r.audit.RecordReplacement(khata, row, candidate); err != nil {
		r.logger.Warn().Err(err).Str("khata", khata).Int("row", row).Msg("Failed to write mobile replacement record")
	}
	return MobileDecision{Action: UseReplacement, Mobile: candidate}
}

func needsReplacement(current string) bool {
	switch current {
	case "", "0", "0000000000":
		return true
	}
	return len(current) != 10
}

// IsValidMobile reports whether mobile is ten ASCII digits starting with 6, 7, 8 or 9
func IsValidMobile(mobile string) bool {
	if len(mobile) != 10 {
		return false
	}
	for i := 0; i < len(mobile); i++ {
		if mobile[i] < '0' || mobile[i] > '9' {
			return false
		}
	}
	return strings.IndexByte("6789", mobile[0]) >= 0
}
