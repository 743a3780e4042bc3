// Package pipeline orchestrates analysis runs: loading a ledger, cleaning
// it, engineering customer features, scoring risk, flagging transactions and
// persisting the results. Stages execute sequentially; cancellation is
// honored at stage boundaries only.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/savegress/fraudlens/internal/config"
	"github.com/savegress/fraudlens/internal/features"
	"github.com/savegress/fraudlens/internal/flagging"
	"github.com/savegress/fraudlens/internal/ingest"
	"github.com/savegress/fraudlens/internal/progress"
	"github.com/savegress/fraudlens/internal/reporting"
	"github.com/savegress/fraudlens/internal/risk"
	"github.com/savegress/fraudlens/internal/storage"
	"github.com/savegress/fraudlens/pkg/models"
)

// Errors
var (
	ErrRunNotFound   = &Error{Code: "RUN_NOT_FOUND", Message: "Run not found"}
	ErrRunNotActive  = &Error{Code: "RUN_NOT_ACTIVE", Message: "Run is not running"}
	ErrRunActive     = &Error{Code: "RUN_ACTIVE", Message: "Run is still running"}
	ErrSourceMissing = &Error{Code: "SOURCE_MISSING", Message: "Source file is required"}
)

// Error represents a pipeline error
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Runner drives analysis runs through the pipeline stages and tracks their
// lifecycle. Runs are kept in memory and mirrored to storage on every
// checkpoint, so the stored record never trails a run by more than one stage.
type Runner struct {
	config    *config.Config
	store     storage.RunStore
	hub       *progress.Hub
	generator *reporting.Generator
	runs      map[string]*models.AnalysisRun
	cancels   map[string]context.CancelFunc
	mu        sync.RWMutex
}

// NewRunner creates a new pipeline runner
func NewRunner(cfg *config.Config, store storage.RunStore, hub *progress.Hub, generator *reporting.Generator) *Runner {
	return &Runner{
		config:    cfg,
		store:     store,
		hub:       hub,
		generator: generator,
		runs:      make(map[string]*models.AnalysisRun),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Start registers a new analysis run for the given ledger file and executes
// it asynchronously. The analysis is detached from the caller's context; use
// Cancel or Stop to interrupt it.
func (r *Runner) Start(ctx context.Context, source string) (*models.AnalysisRun, error) {
	if source == "" {
		return nil, ErrSourceMissing
	}

	run := &models.AnalysisRun{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    models.RunStatusPending,
		StartedAt: time.Now().UTC(),
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.runs[run.ID] = run
	r.cancels[run.ID] = cancel
	snapshot := *run
	r.mu.Unlock()

	go r.execute(runCtx, run)

	return &snapshot, nil
}

// GetRun returns a run by id, preferring the live in-memory copy over the
// stored one.
func (r *Runner) GetRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	r.mu.RLock()
	run, ok := r.runs[id]
	var snapshot models.AnalysisRun
	if ok {
		snapshot = *run
	}
	r.mu.RUnlock()
	if ok {
		return &snapshot, nil
	}

	stored, err := r.store.GetRun(ctx, id)
	if err != nil {
		if err == storage.ErrRunNotFound {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return stored, nil
}

// ListRuns returns all runs, newest first.
func (r *Runner) ListRuns(ctx context.Context) ([]models.AnalysisRun, error) {
	return r.store.ListRuns(ctx)
}

// Cancel requests cancellation of a running analysis. The run stops at the
// next stage boundary; results of later stages are never persisted.
func (r *Runner) Cancel(ctx context.Context, id string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
		return nil
	}

	if _, err := r.GetRun(ctx, id); err != nil {
		return err
	}
	return ErrRunNotActive
}

// Delete removes a finished run and its stored outputs. Running analyses
// must be cancelled first.
func (r *Runner) Delete(ctx context.Context, id string) error {
	r.mu.RLock()
	_, active := r.cancels[id]
	r.mu.RUnlock()
	if active {
		return ErrRunActive
	}

	if err := r.store.DeleteRun(ctx, id); err != nil {
		if err == storage.ErrRunNotFound {
			return ErrRunNotFound
		}
		return err
	}

	r.mu.Lock()
	delete(r.runs, id)
	r.mu.Unlock()
	return nil
}

// ActiveRuns returns the number of analyses currently executing.
func (r *Runner) ActiveRuns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cancels)
}

// Stop cancels every in-flight run.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.cancels))
	for _, cancel := range r.cancels {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (r *Runner) execute(ctx context.Context, run *models.AnalysisRun) {
	defer r.release(run.ID)

	snap := r.advance(run, "analysis started", func(rn *models.AnalysisRun) {
		rn.Status = models.RunStatusRunning
		rn.Stage = "load"
	})
	log.Printf("Run %s: analyzing %s", run.ID, snap.Source)

	// Stage 1: load and validate the ledger.
	records, err := ingest.NewLoader().Load(snap.Source)
	if err != nil {
		r.fail(run, err)
		return
	}
	validation := ingest.Validate(records)
	for _, issue := range validation.Issues {
		log.Printf("Run %s: ledger issue: %s", run.ID, issue)
	}
	if !validation.Valid {
		r.fail(run, fmt.Errorf("ledger %s unusable: %s", snap.Source, strings.Join(validation.Issues, "; ")))
		return
	}
	r.advance(run, fmt.Sprintf("loaded %d rows", validation.TotalRows), func(rn *models.AnalysisRun) {
		rn.TotalTransactions = validation.TotalRows
		rn.Progress = 10
	})

	if ctx.Err() != nil {
		r.cancelled(run)
		return
	}

	// Stage 2: clean.
	txns, cleaning := ingest.NewCleaner().Clean(records)
	r.advance(run, fmt.Sprintf("cleaned %d of %d rows", cleaning.RowsOut, cleaning.RowsIn), func(rn *models.AnalysisRun) {
		rn.CleanedTransactions = len(txns)
		rn.Stage = "clean"
		rn.Progress = 25
	})

	if ctx.Err() != nil {
		r.cancelled(run)
		return
	}

	// Stage 3: engineer per-customer features.
	aggregator := features.NewAggregatorWithWorkers(r.config.Analysis.Workers)
	feats := aggregator.Aggregate(txns, features.HighValueThreshold(txns))
	r.advance(run, fmt.Sprintf("engineered features for %d customers", len(feats)), func(rn *models.AnalysisRun) {
		rn.Stage = "features"
		rn.Progress = 40
	})

	if ctx.Err() != nil {
		r.cancelled(run)
		return
	}

	// Stage 4: score customer risk.
	scores := risk.NewScorer().Score(feats)
	r.advance(run, fmt.Sprintf("scored %d customers", len(scores)), func(rn *models.AnalysisRun) {
		rn.CustomersScored = len(scores)
		rn.Stage = "score"
		rn.Progress = 60
	})

	if ctx.Err() != nil {
		r.cancelled(run)
		return
	}

	// Stage 5: flag suspicious transactions.
	flagger := flagging.NewFlaggerWithThreshold(r.config.Analysis.ZScoreThreshold)
	flagged := flagger.Flag(txns, scores, flagging.ComputeBatchStats(txns))
	r.advance(run, fmt.Sprintf("flagged %d suspicious transactions", len(flagged)), func(rn *models.AnalysisRun) {
		rn.FlaggedCount = len(flagged)
		rn.Stage = "flag"
		rn.Progress = 75
	})

	if ctx.Err() != nil {
		r.cancelled(run)
		return
	}

	// Stage 6: persist results and build the report.
	if err := r.store.SaveResults(ctx, run.ID, feats, scores, flagged); err != nil {
		if ctx.Err() != nil {
			r.cancelled(run)
			return
		}
		r.fail(run, fmt.Errorf("persisting results: %w", err))
		return
	}
	report := r.generator.BuildReport(run.ID, txns, scores, flagged)
	if r.config.Reporting.Enabled {
		if err := r.generator.ExportAll(run.ID, report, flagged, scores); err != nil {
			r.fail(run, fmt.Errorf("exporting report: %w", err))
			return
		}
	}
	r.advance(run, "persisted results and report", func(rn *models.AnalysisRun) {
		rn.Stage = "persist"
		rn.Progress = 90
	})

	snap = r.complete(run)
	log.Printf("Run %s: complete: %d rows in, %d cleaned, %d customers scored, %d flagged",
		run.ID, snap.TotalTransactions, snap.CleanedTransactions, snap.CustomersScored, snap.FlaggedCount)
}

// advance applies the mutation, mirrors the run to storage and broadcasts
// the progress event. The store is written before the in-memory copy becomes
// visible, so a reader never sees a run state that is not yet stored. Mirror
// writes use a fresh context so terminal states land even after the run
// context is cancelled.
func (r *Runner) advance(run *models.AnalysisRun, message string, fn func(*models.AnalysisRun)) models.AnalysisRun {
	r.mu.RLock()
	next := *run
	r.mu.RUnlock()
	fn(&next)

	if err := r.store.UpdateRun(context.Background(), &next); err != nil {
		log.Printf("Run %s: updating stored run: %v", next.ID, err)
	}

	r.mu.Lock()
	*run = next
	r.mu.Unlock()

	r.hub.BroadcastRunUpdate(progress.Event{
		RunID:    next.ID,
		Stage:    next.Stage,
		Message:  message,
		Progress: next.Progress,
		Status:   next.Status,
	})
	return next
}

func (r *Runner) complete(run *models.AnalysisRun) models.AnalysisRun {
	now := time.Now().UTC()
	return r.advance(run, "analysis complete", func(rn *models.AnalysisRun) {
		rn.Status = models.RunStatusCompleted
		rn.Stage = "complete"
		rn.Progress = 100
		rn.CompletedAt = &now
	})
}

func (r *Runner) fail(run *models.AnalysisRun, err error) {
	now := time.Now().UTC()
	snap := r.advance(run, err.Error(), func(rn *models.AnalysisRun) {
		rn.Status = models.RunStatusFailed
		rn.Error = err.Error()
		rn.CompletedAt = &now
	})
	log.Printf("Run %s: failed at stage %q: %v", run.ID, snap.Stage, err)
}

func (r *Runner) cancelled(run *models.AnalysisRun) {
	now := time.Now().UTC()
	snap := r.advance(run, "analysis cancelled", func(rn *models.AnalysisRun) {
		rn.Status = models.RunStatusCancelled
		rn.CompletedAt = &now
	})
	log.Printf("Run %s: cancelled at stage %q", run.ID, snap.Stage)
}

// release drops the run's cancel function once execution ends.
func (r *Runner) release(id string) {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	delete(r.cancels, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}
