package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/ecrop/internal/models"
)

// AuditSink receives the append-only diagnostic records of a run
type AuditSink interface {
	// RecordReplacement notes a dataset mobile written over a malformed on-screen value
	RecordReplacement(khata string, row int, mobile string) error

	// RecordInvalidMobile notes a row rejected because no valid replacement exists
	RecordInvalidMobile(khata string, row int, mobile string) error

	// RecordSkippedKhata notes a Khata that finished without any update
	RecordSkippedKhata(khata string, reason string) error
}

// ErrRunNotFound is returned by RunStorage when no run has the requested id
var ErrRunNotFound = errors.New("run not found")

// RunStorage persists run history
type RunStorage interface {
	SaveRun(ctx context.Context, report *models.RunReport) error
	GetRun(ctx context.Context, id string) (*models.RunReport, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunReport, error)
	Close() error
}

// LicenseChecker gates whether a run may start for a village
type LicenseChecker interface {
	Check(ctx context.Context, villageCode, key string) error
}

// DatasetLoader reads the uploaded spreadsheet
type DatasetLoader interface {
	Load(path string) (*models.Dataset, error)
}

// ReportService renders stored runs as documents
type ReportService interface {
	// RenderMarkdown produces the markdown summary of a run
	RenderMarkdown(report *models.RunReport) string

	// RenderPDF produces a PDF of a run
	RenderPDF(report *models.RunReport) ([]byte, error)
}
