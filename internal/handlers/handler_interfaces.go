package handlers

import (
	"context"

	"github.com/ternarybob/ecrop/internal/models"
	"github.com/ternarybob/ecrop/internal/services/ecrop"
)

// WorkflowRunner executes one Owner Update run at a time
type WorkflowRunner interface {
	Run(ctx context.Context, req ecrop.RunRequest) (*models.RunReport, error)
	Busy() bool
}

// BusyChecker reports whether a run is active
type BusyChecker interface {
	Busy() bool
}
