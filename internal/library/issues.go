package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const issueColumns = `id, item_id, file_id, type, severity, description, auto_fixable,
	state, scan_id, created_at, updated_at, resolved_at`

// RecordIssue upserts a defect keyed by (file, type) or (item, type) when no
// file is involved. Re-recording an open issue refreshes its severity and
// description; a resolved issue that recurs is re-opened.
func (s *Store) RecordIssue(ctx context.Context, issue *Issue) error {
	if issue == nil {
		return errors.New("nil issue")
	}
	if issue.ItemID == 0 && issue.FileID == 0 {
		return errors.New("issue requires an item or file")
	}
	if issue.Type == "" {
		return errors.New("issue type required")
	}
	now := nowTimestamp()

	existing, err := s.findIssue(ctx, issue.ItemID, issue.FileID, issue.Type)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if existing == nil {
		res, err := s.execWithRetry(ctx,
			`INSERT INTO issues (
				item_id, file_id, type, severity, description, auto_fixable,
				state, scan_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, 'open', ?, ?, ?)`,
			nullableID(issue.ItemID), nullableID(issue.FileID),
			issue.Type, issue.Severity, issue.Description,
			boolToInt(issue.AutoFixable), issue.ScanID, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
		issue.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		issue.State = IssueOpen
		return nil
	}

	issue.ID = existing.ID
	issue.State = IssueOpen
	err = s.execWithoutResultRetry(ctx,
		`UPDATE issues SET
			severity = ?, description = ?, auto_fixable = ?, state = 'open',
			scan_id = ?, resolved_at = NULL, updated_at = ?
		WHERE id = ?`,
		issue.Severity, issue.Description, boolToInt(issue.AutoFixable),
		issue.ScanID, now, existing.ID,
	)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	return nil
}

// ResolveIssue marks a defect resolved.
func (s *Store) ResolveIssue(ctx context.Context, id int64) error {
	now := nowTimestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE issues SET state = 'resolved', resolved_at = ?, updated_at = ? WHERE id = ? AND state = 'open'`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("resolve issue: %w", err)
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

// ClearStaleIssues resolves open issues that were not re-observed by the
// given scan. Called after analysis phases complete so fixed defects close
// without external action.
func (s *Store) ClearStaleIssues(ctx context.Context, scanID int64, types []IssueType) (int, error) {
	if len(types) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(types))
	args := make([]any, 0, len(types)+3)
	now := nowTimestamp()
	args = append(args, now, now, scanID)
	for i, t := range types {
		placeholders[i] = "?"
		args = append(args, t)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE issues SET state = 'resolved', resolved_at = ?, updated_at = ?
		 WHERE state = 'open' AND scan_id < ? AND type IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("clear stale issues: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// ClearStaleIssuesForKind is ClearStaleIssues restricted to items of one
// media kind. Per-kind phases use it so a movie pass never resolves show
// defects it did not re-verify, and vice versa.
func (s *Store) ClearStaleIssuesForKind(ctx context.Context, scanID int64, kind MediaKind, types []IssueType) (int, error) {
	if len(types) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(types))
	args := make([]any, 0, len(types)+4)
	now := nowTimestamp()
	args = append(args, now, now, scanID)
	for i, t := range types {
		placeholders[i] = "?"
		args = append(args, t)
	}
	args = append(args, kind)
	res, err := s.execWithRetry(ctx,
		`UPDATE issues SET state = 'resolved', resolved_at = ?, updated_at = ?
		 WHERE state = 'open' AND scan_id < ? AND type IN (`+strings.Join(placeholders, ",")+`)
		   AND item_id IN (SELECT id FROM library_items WHERE kind = ?)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("clear stale issues for kind: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// ListIssuesOptions filters ListIssues.
type ListIssuesOptions struct {
	State    IssueState
	Type     IssueType
	Severity IssueSeverity
	ItemID   int64
}

// ListIssues returns defects ordered newest first.
func (s *Store) ListIssues(ctx context.Context, opts ListIssuesOptions) ([]Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues`
	var (
		clauses []string
		args    []any
	)
	if opts.State != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, opts.State)
	}
	if opts.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, opts.Type)
	}
	if opts.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, opts.Severity)
	}
	if opts.ItemID != 0 {
		clauses = append(clauses, "item_id = ?")
		args = append(args, opts.ItemID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *issue)
	}
	return issues, rows.Err()
}

// CountOpenIssues returns open defect counts grouped by severity.
func (s *Store) CountOpenIssues(ctx context.Context) (map[IssueSeverity]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT severity, COUNT(1) FROM issues WHERE state = 'open' GROUP BY severity")
	if err != nil {
		return nil, fmt.Errorf("count issues: %w", err)
	}
	defer rows.Close()

	counts := make(map[IssueSeverity]int)
	for rows.Next() {
		var (
			severity IssueSeverity
			count    int
		)
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		counts[severity] = count
	}
	return counts, rows.Err()
}

func (s *Store) findIssue(ctx context.Context, itemID, fileID int64, issueType IssueType) (*Issue, error) {
	var row *sql.Row
	if fileID != 0 {
		row = s.db.QueryRowContext(ensureContext(ctx),
			`SELECT `+issueColumns+` FROM issues WHERE file_id = ? AND type = ?`, fileID, issueType)
	} else {
		row = s.db.QueryRowContext(ensureContext(ctx),
			`SELECT `+issueColumns+` FROM issues WHERE item_id = ? AND file_id IS NULL AND type = ?`, itemID, issueType)
	}
	return scanIssue(row)
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func scanIssue(row rowScanner) (*Issue, error) {
	var (
		issue       Issue
		itemID      sql.NullInt64
		fileID      sql.NullInt64
		autoFixable int
		createdAt   string
		updatedAt   string
		resolvedAt  sql.NullString
	)
	err := row.Scan(
		&issue.ID, &itemID, &fileID, &issue.Type, &issue.Severity,
		&issue.Description, &autoFixable, &issue.State, &issue.ScanID,
		&createdAt, &updatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	issue.ItemID = itemID.Int64
	issue.FileID = fileID.Int64
	issue.AutoFixable = autoFixable != 0
	issue.CreatedAt = parseTimestamp(createdAt)
	issue.UpdatedAt = parseTimestamp(updatedAt)
	issue.ResolvedAt = parseNullableTimestamp(resolvedAt)
	return &issue, nil
}
