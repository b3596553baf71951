package library

import (
	"context"
	"fmt"
)

// RecordActivity appends one audit entry.
func (s *Store) RecordActivity(ctx context.Context, kind, message string) error {
	return s.execWithoutResultRetry(ctx,
		"INSERT INTO activity (kind, message, created_at) VALUES (?, ?, ?)",
		kind, message, nowTimestamp(),
	)
}

// RecentActivity returns audit entries newest first, limited when limit > 0.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]Activity, error) {
	query := "SELECT id, kind, message, created_at FROM activity ORDER BY id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var entries []Activity
	for rows.Next() {
		var (
			entry     Activity
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.Kind, &entry.Message, &createdAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = parseTimestamp(createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
