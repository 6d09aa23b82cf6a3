package analyses

import (
	"context"
	"time"
)

// Repo defines persistence operations for analyses.
type Repo interface {
	Create(ctx context.Context, analysis Analysis) error
	GetByID(ctx context.Context, analysisID string) (Analysis, error)
	// UpdateStatus moves an analysis to status. Moving to processing records
	// startedAt.
	UpdateStatus(ctx context.Context, analysisID, status string, at time.Time) error
	Complete(ctx context.Context, analysisID string, result Result, completedAt time.Time) error
	// Fail records a terminal failed or canceled status with its message.
	Fail(ctx context.Context, analysisID, status, message string, completedAt time.Time) error
	ListRecent(ctx context.Context, limit int) ([]Analysis, error)
}
