package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for download history
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("history store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// CreateDownloadRun inserts a new DownloadRun and sets its ID
func (s *Store) CreateDownloadRun(run *DownloadRun) error {
	const query = `
		INSERT INTO download_runs (
			url, output_path, start_time, end_time, attempts, bytes,
			last_mirror, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		run.URL, run.OutputPath, run.StartTime, run.EndTime,
		run.Attempts, run.Bytes, run.LastMirror, run.Status, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert download run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// UpdateDownloadRun updates an existing DownloadRun by ID
func (s *Store) UpdateDownloadRun(run *DownloadRun) error {
	const query = `
		UPDATE download_runs SET
			url = ?, output_path = ?, start_time = ?, end_time = ?,
			attempts = ?, bytes = ?, last_mirror = ?, status = ?, error_message = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		run.URL, run.OutputPath, run.StartTime, run.EndTime,
		run.Attempts, run.Bytes, run.LastMirror, run.Status, run.ErrorMessage,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update download run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("download run not found: %d", run.ID)
	}

	return nil
}

// GetDownloadRun retrieves a DownloadRun by ID
func (s *Store) GetDownloadRun(id int64) (*DownloadRun, error) {
	const query = `
		SELECT id, url, output_path, start_time, end_time, attempts, bytes,
		       last_mirror, status, error_message
		FROM download_runs WHERE id = ?
	`

	run := &DownloadRun{}
	err := s.db.QueryRow(query, id).Scan(
		&run.ID, &run.URL, &run.OutputPath, &run.StartTime, &run.EndTime,
		&run.Attempts, &run.Bytes, &run.LastMirror, &run.Status, &run.ErrorMessage,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("download run not found: %d", id)
		}
		return nil, fmt.Errorf("failed to query download run: %w", err)
	}

	return run, nil
}

// ListDownloadRuns retrieves DownloadRuns, newest first
func (s *Store) ListDownloadRuns(limit int) ([]DownloadRun, error) {
	query := `
		SELECT id, url, output_path, start_time, end_time, attempts, bytes,
		       last_mirror, status, error_message
		FROM download_runs ORDER BY start_time DESC
	`
	var args []interface{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query download runs: %w", err)
	}
	defer rows.Close()

	var runs []DownloadRun
	for rows.Next() {
		run := DownloadRun{}
		err := rows.Scan(
			&run.ID, &run.URL, &run.OutputPath, &run.StartTime, &run.EndTime,
			&run.Attempts, &run.Bytes, &run.LastMirror, &run.Status, &run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating download runs: %w", err)
	}

	return runs, nil
}

// AddDownloadAttempt inserts a per-attempt record for a run
func (s *Store) AddDownloadAttempt(att *DownloadAttempt) error {
	const query = `
		INSERT INTO download_attempts (run_id, number, mirror, outcome, detail, end_time)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		att.RunID, att.Number, att.Mirror, att.Outcome, att.Detail, att.EndTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert download attempt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	att.ID = id
	return nil
}

// ListDownloadAttempts retrieves the attempts of a run in order
func (s *Store) ListDownloadAttempts(runID int64) ([]DownloadAttempt, error) {
	const query = `
		SELECT id, run_id, number, mirror, outcome, detail, end_time
		FROM download_attempts WHERE run_id = ? ORDER BY number
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query download attempts: %w", err)
	}
	defer rows.Close()

	var attempts []DownloadAttempt
	for rows.Next() {
		att := DownloadAttempt{}
		err := rows.Scan(
			&att.ID, &att.RunID, &att.Number, &att.Mirror,
			&att.Outcome, &att.Detail, &att.EndTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download attempt: %w", err)
		}
		attempts = append(attempts, att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating download attempts: %w", err)
	}

	return attempts, nil
}

// CountDownloadRuns returns the number of recorded runs
func (s *Store) CountDownloadRuns() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM download_runs").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count download runs: %w", err)
	}
	return count, nil
}
