package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"dev/bravebird/pageload-verifier/pkg/models"

	_ "github.com/go-sql-driver/mysql"
)

// Schema creates the tables used by DB
//
//go:embed schema.sql
var Schema string

// DB represents the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate creates missing tables
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(Schema) {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func schemaStatements(schema string) []string {
	var stmts []string
	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// ==================== Verification Runs ====================

const runColumns = `id, temporal_workflow_id, temporal_run_id, page_url, expected_message, status,
		       load_status, message_observed, verdict, exit_code, error_message, duration_ms,
		       created_at, started_at, completed_at`

// CreateVerificationRun creates a new verification run
func (db *DB) CreateVerificationRun(ctx context.Context, run *models.VerificationRun) error {
	query := `
		INSERT INTO verification_runs (id, temporal_workflow_id, temporal_run_id, page_url, expected_message, status, error_message, created_at, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := db.conn.ExecContext(ctx, query,
		run.ID,
		run.TemporalWorkflowID,
		run.TemporalRunID,
		run.PageURL,
		run.ExpectedMessage,
		run.Status,
		run.ErrorMessage,
		run.CreatedAt,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// MarkVerificationRunStarted stores the Temporal IDs of a run and marks it running
func (db *DB) MarkVerificationRunStarted(ctx context.Context, id, workflowID, runID string) error {
	query := `
		UPDATE verification_runs
		SET temporal_workflow_id = ?, temporal_run_id = ?, status = ?, started_at = ?
		WHERE id = ?
	`

	if _, err := db.conn.ExecContext(ctx, query, workflowID, runID, models.StatusRunning, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark run started: %w", err)
	}
	return nil
}

// GetVerificationRun retrieves a verification run by ID
func (db *DB) GetVerificationRun(ctx context.Context, id string) (*models.VerificationRun, error) {
	query := `SELECT ` + runColumns + `
		FROM verification_runs
		WHERE id = ?
	`

	run, err := scanRun(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListVerificationRuns retrieves recent runs, optionally filtered by status
func (db *DB) ListVerificationRuns(ctx context.Context, status models.RunStatus, limit int) ([]models.VerificationRun, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + runColumns + ` FROM verification_runs`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.VerificationRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// UpdateVerificationRunStatus updates the status of a verification run
func (db *DB) UpdateVerificationRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	query := `
		UPDATE verification_runs
		SET status = ?, error_message = ?,
		    completed_at = CASE WHEN ? IN ('success', 'failed', 'canceled') THEN NOW() ELSE completed_at END
		WHERE id = ?
	`

	if _, err := db.conn.ExecContext(ctx, query, status, errorMsg, status, id); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// CompleteVerificationRun stores the outcome of a run together with its console output
func (db *DB) CompleteVerificationRun(ctx context.Context, id string, result models.VerificationResult) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE verification_runs
		SET status = ?, load_status = ?, message_observed = ?, verdict = ?, exit_code = ?,
		    error_message = ?, duration_ms = ?, completed_at = NOW()
		WHERE id = ?
	`,
		result.Status,
		result.LoadStatus,
		result.MessageObserved,
		result.Verdict,
		result.ExitCode,
		result.ErrorMessage,
		result.Duration,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM console_messages WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear console messages: %w", err)
	}

	if len(result.ConsoleMessages) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO console_messages (run_id, seq, message) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i, msg := range result.ConsoleMessages {
			if _, err := stmt.ExecContext(ctx, id, i, msg); err != nil {
				return fmt.Errorf("failed to insert console message: %w", err)
			}
		}
	}

	return tx.Commit()
}

// GetConsoleMessages retrieves the console output of a run in arrival order
func (db *DB) GetConsoleMessages(ctx context.Context, runID string) ([]models.ConsoleMessage, error) {
	query := `
		SELECT run_id, seq, message
		FROM console_messages
		WHERE run_id = ?
		ORDER BY seq
	`

	rows, err := db.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get console messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ConsoleMessage
	for rows.Next() {
		var m models.ConsoleMessage
		if err := rows.Scan(&m.RunID, &m.Sequence, &m.Message); err != nil {
			return nil, fmt.Errorf("failed to scan console message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.VerificationRun, error) {
	var run models.VerificationRun
	var exitCode sql.NullInt64

	err := row.Scan(
		&run.ID,
		&run.TemporalWorkflowID,
		&run.TemporalRunID,
		&run.PageURL,
		&run.ExpectedMessage,
		&run.Status,
		&run.LoadStatus,
		&run.MessageObserved,
		&run.Verdict,
		&exitCode,
		&run.ErrorMessage,
		&run.Duration,
		&run.CreatedAt,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	return &run, nil
}
