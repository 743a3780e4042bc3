package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/savegress/fraudlens/pkg/models"
)

// SQLiteStore is a SQLite-based embedded store for analysis runs
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite store at the given path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		progress INTEGER NOT NULL DEFAULT 0,
		total_transactions INTEGER NOT NULL DEFAULT 0,
		cleaned_transactions INTEGER NOT NULL DEFAULT 0,
		customers_scored INTEGER NOT NULL DEFAULT 0,
		flagged_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS customer_features (
		run_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (run_id, customer_id)
	);

	CREATE TABLE IF NOT EXISTS risk_scores (
		run_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		risk_score REAL NOT NULL,
		risk_score_normalized REAL NOT NULL,
		risk_band TEXT NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (run_id, customer_id)
	);

	CREATE INDEX IF NOT EXISTS idx_risk_scores_normalized ON risk_scores(run_id, risk_score_normalized);

	CREATE TABLE IF NOT EXISTS flagged_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		type TEXT NOT NULL,
		amount REAL NOT NULL,
		name_orig TEXT NOT NULL,
		name_dest TEXT NOT NULL,
		hour INTEGER NOT NULL,
		day INTEGER NOT NULL,
		time_period TEXT NOT NULL,
		suspicion_score REAL NOT NULL,
		suspicion_reasons TEXT NOT NULL,
		risk_band TEXT,
		risk_score_normalized REAL
	);

	CREATE INDEX IF NOT EXISTS idx_flagged_run ON flagged_transactions(run_id, suspicion_score);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateRun inserts a new run record
func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, status, stage, progress,
			total_transactions, cleaned_transactions, customers_scored,
			flagged_count, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Source, string(run.Status), run.Stage, run.Progress,
		run.TotalTransactions, run.CleanedTransactions, run.CustomersScored,
		run.FlaggedCount, run.Error, run.StartedAt.Unix(), completedAtValue(run))
	return err
}

// UpdateRun overwrites the mutable fields of a run record
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, stage = ?, progress = ?,
			total_transactions = ?, cleaned_transactions = ?,
			customers_scored = ?, flagged_count = ?, error = ?,
			completed_at = ?
		WHERE id = ?
	`, string(run.Status), run.Stage, run.Progress,
		run.TotalTransactions, run.CleanedTransactions,
		run.CustomersScored, run.FlaggedCount, run.Error,
		completedAtValue(run), run.ID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun returns a run by id
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, status, stage, progress, total_transactions,
			cleaned_transactions, customers_scored, flagged_count, error,
			started_at, completed_at
		FROM runs WHERE id = ?
	`, id)

	var run models.AnalysisRun
	var status string
	var startedAt int64
	var completedAt sql.NullInt64
	err := row.Scan(&run.ID, &run.Source, &status, &run.Stage, &run.Progress,
		&run.TotalTransactions, &run.CleanedTransactions, &run.CustomersScored,
		&run.FlaggedCount, &run.Error, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	run.StartedAt = time.Unix(startedAt, 0)
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		run.CompletedAt = &t
	}
	return &run, nil
}

// ListRuns returns all runs, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]models.AnalysisRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, status, stage, progress, total_transactions,
			cleaned_transactions, customers_scored, flagged_count, error,
			started_at, completed_at
		FROM runs ORDER BY started_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []models.AnalysisRun{}
	for rows.Next() {
		var run models.AnalysisRun
		var status string
		var startedAt int64
		var completedAt sql.NullInt64
		if err := rows.Scan(&run.ID, &run.Source, &status, &run.Stage, &run.Progress,
			&run.TotalTransactions, &run.CleanedTransactions, &run.CustomersScored,
			&run.FlaggedCount, &run.Error, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		run.Status = models.RunStatus(status)
		run.StartedAt = time.Unix(startedAt, 0)
		if completedAt.Valid {
			t := time.Unix(completedAt.Int64, 0)
			run.CompletedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveResults stores the outputs of a completed run inside one transaction
func (s *SQLiteStore) SaveResults(ctx context.Context, runID string, features []models.CustomerFeatures, scores []models.RiskScore, flagged []models.FlaggedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"customer_features", "risk_scores", "flagged_transactions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
			return err
		}
	}

	featStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO customer_features (run_id, customer_id, payload) VALUES (?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer featStmt.Close()

	for _, cf := range features {
		payload, err := json.Marshal(cf)
		if err != nil {
			return err
		}
		if _, err := featStmt.ExecContext(ctx, runID, cf.CustomerID, string(payload)); err != nil {
			return err
		}
	}

	scoreStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO risk_scores (run_id, customer_id, risk_score,
			risk_score_normalized, risk_band, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer scoreStmt.Close()

	for _, rs := range scores {
		payload, err := json.Marshal(rs)
		if err != nil {
			return err
		}
		if _, err := scoreStmt.ExecContext(ctx, runID, rs.CustomerID, rs.RiskScore,
			rs.RiskScoreNormalized, string(rs.RiskBand), string(payload)); err != nil {
			return err
		}
	}

	flagStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flagged_transactions (run_id, step, type, amount,
			name_orig, name_dest, hour, day, time_period,
			suspicion_score, suspicion_reasons, risk_band, risk_score_normalized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer flagStmt.Close()

	for _, ft := range flagged {
		var band interface{}
		if ft.RiskBand != "" {
			band = string(ft.RiskBand)
		}
		var normalized interface{}
		if ft.RiskScoreNormalized != nil {
			normalized = *ft.RiskScoreNormalized
		}
		if _, err := flagStmt.ExecContext(ctx, runID, ft.Step, string(ft.Type), ft.Amount,
			ft.NameOrig, ft.NameDest, ft.Hour, ft.Day, string(ft.TimePeriod),
			ft.SuspicionScore, ft.SuspicionReasons, band, normalized); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetFeatures returns the stored customer features of a run
func (s *SQLiteStore) GetFeatures(ctx context.Context, runID string) ([]models.CustomerFeatures, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM customer_features WHERE run_id = ? ORDER BY customer_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	features := []models.CustomerFeatures{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var cf models.CustomerFeatures
		if err := json.Unmarshal([]byte(payload), &cf); err != nil {
			return nil, err
		}
		features = append(features, cf)
	}
	return features, rows.Err()
}

// GetRiskScores returns the stored risk scores of a run, optionally
// restricted to one band and truncated to limit rows
func (s *SQLiteStore) GetRiskScores(ctx context.Context, runID string, band models.RiskBand, limit int) ([]models.RiskScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT payload FROM risk_scores WHERE run_id = ?"
	args := []interface{}{runID}
	if band != "" {
		query += " AND risk_band = ?"
		args = append(args, string(band))
	}
	query += " ORDER BY risk_score_normalized DESC, customer_id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := []models.RiskScore{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rs models.RiskScore
		if err := json.Unmarshal([]byte(payload), &rs); err != nil {
			return nil, err
		}
		scores = append(scores, rs)
	}
	return scores, rows.Err()
}

// GetFlagged returns the stored flagged transactions of a run, optionally
// restricted to scores at or above minScore and truncated to limit rows
func (s *SQLiteStore) GetFlagged(ctx context.Context, runID string, minScore float64, limit int) ([]models.FlaggedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT step, type, amount, name_orig, name_dest, hour, day,
		time_period, suspicion_score, suspicion_reasons,
		risk_band, risk_score_normalized
	FROM flagged_transactions WHERE run_id = ?`
	args := []interface{}{runID}
	if minScore > 0 {
		query += " AND suspicion_score >= ?"
		args = append(args, minScore)
	}
	query += " ORDER BY suspicion_score DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flagged := []models.FlaggedTransaction{}
	for rows.Next() {
		var ft models.FlaggedTransaction
		var typ, period string
		var band sql.NullString
		var normalized sql.NullFloat64
		if err := rows.Scan(&ft.Step, &typ, &ft.Amount, &ft.NameOrig, &ft.NameDest,
			&ft.Hour, &ft.Day, &period, &ft.SuspicionScore, &ft.SuspicionReasons,
			&band, &normalized); err != nil {
			return nil, err
		}
		ft.Type = models.TransactionType(typ)
		ft.TimePeriod = models.TimePeriod(period)
		ft.IsSuspicious = true
		if band.Valid {
			ft.RiskBand = models.RiskBand(band.String)
		}
		if normalized.Valid {
			v := normalized.Float64
			ft.RiskScoreNormalized = &v
		}
		flagged = append(flagged, ft)
	}
	return flagged, rows.Err()
}

// DeleteRun removes a run and all of its stored outputs
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}

	for _, table := range []string{"customer_features", "risk_scores", "flagged_transactions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Close closes the storage
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func completedAtValue(run *models.AnalysisRun) interface{} {
	if run.CompletedAt == nil {
		return nil
	}
	return run.CompletedAt.Unix()
}
