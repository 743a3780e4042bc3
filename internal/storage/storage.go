// Package storage persists analysis runs and their outputs.
package storage

import (
	"context"

	"github.com/savegress/fraudlens/pkg/models"
)

// RunStore is the interface for run persistence backends
type RunStore interface {
	// CreateRun inserts a new run record
	CreateRun(ctx context.Context, run *models.AnalysisRun) error

	// UpdateRun overwrites the mutable fields of a run record
	UpdateRun(ctx context.Context, run *models.AnalysisRun) error

	// GetRun returns a run by id
	GetRun(ctx context.Context, id string) (*models.AnalysisRun, error)

	// ListRuns returns all runs, newest first
	ListRuns(ctx context.Context) ([]models.AnalysisRun, error)

	// SaveResults stores the outputs of a completed run, replacing any
	// previously stored outputs for the same run
	SaveResults(ctx context.Context, runID string, features []models.CustomerFeatures, scores []models.RiskScore, flagged []models.FlaggedTransaction) error

	// GetFeatures returns the stored customer features of a run ordered
	// by customer id
	GetFeatures(ctx context.Context, runID string) ([]models.CustomerFeatures, error)

	// GetRiskScores returns the stored risk scores of a run ordered by
	// descending normalized score, optionally restricted to one band and
	// truncated to limit rows (limit <= 0 returns all)
	GetRiskScores(ctx context.Context, runID string, band models.RiskBand, limit int) ([]models.RiskScore, error)

	// GetFlagged returns the stored flagged transactions of a run ordered
	// by descending suspicion score, optionally restricted to scores at or
	// above minScore and truncated to limit rows (limit <= 0 returns all)
	GetFlagged(ctx context.Context, runID string, minScore float64, limit int) ([]models.FlaggedTransaction, error)

	// DeleteRun removes a run and all of its stored outputs
	DeleteRun(ctx context.Context, id string) error

	// Close closes the storage
	Close() error
}

// Errors
var (
	ErrRunNotFound = &Error{Code: "RUN_NOT_FOUND", Message: "Run not found"}
)

// Error represents a storage error
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
