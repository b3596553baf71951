package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrScanActive is returned by CreateScan while another run holds the
// running slot. The constraint lives in the database itself so it survives
// process restarts and is checkable by any caller.
var ErrScanActive = errors.New("a scan is already running")

const scanColumns = `id, status, started_at, finished_at, current_phase, phase_total,
	stop_requested, error_summary`

// CreateScan inserts a new running scan and its pending phase rows. The
// partial unique index on status rejects a second concurrent run.
func (s *Store) CreateScan(ctx context.Context, phases []ScanPhase) (*Scan, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO scans (status, started_at, current_phase, phase_total)
		 VALUES ('running', ?, 0, ?)`,
		timestamp(now), len(phases),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrScanActive
		}
		return nil, fmt.Errorf("insert scan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, phase := range phases {
		if err := s.execWithoutResultRetry(ctx,
			`INSERT INTO scan_phases (scan_id, num, name, status) VALUES (?, ?, ?, 'pending')`,
			id, phase.Num, phase.Name); err != nil {
			return nil, fmt.Errorf("insert scan phase: %w", err)
		}
	}

	return s.GetScan(ctx, id)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}

// GetScan loads one scan run.
func (s *Store) GetScan(ctx context.Context, id int64) (*Scan, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+scanColumns+` FROM scans WHERE id = ?`, id)
	return scanScan(row)
}

// ActiveScan returns the running scan, or nil when none is active.
func (s *Store) ActiveScan(ctx context.Context) (*Scan, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+scanColumns+` FROM scans WHERE status = 'running' LIMIT 1`)
	scan, err := scanScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return scan, err
}

// ListScans returns run history newest first, limited when limit > 0.
func (s *Store) ListScans(ctx context.Context, limit int) ([]Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, *scan)
	}
	return scans, rows.Err()
}

// RequestStop sets the cooperative cancellation flag on a running scan.
func (s *Store) RequestStop(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE scans SET stop_requested = 1 WHERE id = ? AND status = 'running'", id)
	if err != nil {
		return fmt.Errorf("request stop: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// StopRequested reports whether cancellation was requested for a scan.
func (s *Store) StopRequested(ctx context.Context, id int64) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT stop_requested FROM scans WHERE id = ?", id).Scan(&flag)
	if err != nil {
		return false, fmt.Errorf("read stop flag: %w", err)
	}
	return flag != 0, nil
}

// SetCurrentPhase records which phase number the orchestrator is executing.
func (s *Store) SetCurrentPhase(ctx context.Context, scanID int64, num int) error {
	return s.execWithoutResultRetry(ctx,
		"UPDATE scans SET current_phase = ? WHERE id = ?", num, scanID)
}

// FinishScan marks a run terminal.
func (s *Store) FinishScan(ctx context.Context, id int64, status ScanStatus, errorSummary string) error {
	switch status {
	case ScanCompleted, ScanFailed, ScanCancelled:
	default:
		return errors.New("invalid terminal scan status")
	}
	return s.execWithoutResultRetry(ctx,
		"UPDATE scans SET status = ?, finished_at = ?, error_summary = ? WHERE id = ?",
		status, nowTimestamp(), errorSummary, id,
	)
}

// StartPhase marks a phase running.
func (s *Store) StartPhase(ctx context.Context, scanID int64, num int) error {
	return s.execWithoutResultRetry(ctx,
		`UPDATE scan_phases SET status = 'running', started_at = ?, progress_percent = 0
		 WHERE scan_id = ? AND num = ?`,
		nowTimestamp(), scanID, num,
	)
}

// UpdatePhaseProgress records item-level progress within a running phase.
func (s *Store) UpdatePhaseProgress(ctx context.Context, scanID int64, num int, percent float64, currentItem string) error {
	return s.execWithoutResultRetry(ctx,
		`UPDATE scan_phases SET progress_percent = ?, current_item = ? WHERE scan_id = ? AND num = ?`,
		percent, currentItem, scanID, num,
	)
}

// FinishPhase marks a phase terminal.
func (s *Store) FinishPhase(ctx context.Context, scanID int64, num int, status PhaseStatus, phaseErr string) error {
	switch status {
	case PhaseSucceeded, PhaseFailed, PhaseSkipped:
	default:
		return errors.New("invalid terminal phase status")
	}
	percent := 100.0
	if status != PhaseSucceeded {
		percent = -1
	}
	query := `UPDATE scan_phases SET status = ?, error = ?, finished_at = ?, current_item = ''`
	args := []any{status, phaseErr, nowTimestamp()}
	if percent >= 0 {
		query += `, progress_percent = ?`
		args = append(args, percent)
	}
	query += ` WHERE scan_id = ? AND num = ?`
	args = append(args, scanID, num)
	return s.execWithoutResultRetry(ctx, query, args...)
}

// ListPhases returns the per-phase status rows of one run in order.
func (s *Store) ListPhases(ctx context.Context, scanID int64) ([]ScanPhase, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, scan_id, num, name, status, progress_percent, current_item, error, started_at, finished_at
		 FROM scan_phases WHERE scan_id = ? ORDER BY num`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	defer rows.Close()

	var phases []ScanPhase
	for rows.Next() {
		var (
			phase      ScanPhase
			startedAt  sql.NullString
			finishedAt sql.NullString
		)
		err := rows.Scan(&phase.ID, &phase.ScanID, &phase.Num, &phase.Name, &phase.Status,
			&phase.ProgressPercent, &phase.CurrentItem, &phase.Error, &startedAt, &finishedAt)
		if err != nil {
			return nil, err
		}
		phase.StartedAt = parseNullableTimestamp(startedAt)
		phase.FinishedAt = parseNullableTimestamp(finishedAt)
		phases = append(phases, phase)
	}
	return phases, rows.Err()
}

func scanScan(row rowScanner) (*Scan, error) {
	var (
		scan          Scan
		startedAt     string
		finishedAt    sql.NullString
		stopRequested int
	)
	err := row.Scan(&scan.ID, &scan.Status, &startedAt, &finishedAt,
		&scan.CurrentPhase, &scan.PhaseTotal, &stopRequested, &scan.ErrorSummary)
	if err != nil {
		return nil, err
	}
	scan.StartedAt = parseTimestamp(startedAt)
	scan.FinishedAt = parseNullableTimestamp(finishedAt)
	scan.StopRequested = stopRequested != 0
	return &scan, nil
}
