package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReplacePendingRecommendations deletes all pending recommendations of the
// given kind and inserts the fresh set. Suggestions a user already acted on
// (requested, ignored, added) are preserved; a fresh suggestion matching one
// of those identities is silently dropped.
func (s *Store) ReplacePendingRecommendations(ctx context.Context, kind MediaKind, recs []Recommendation) error {
	if err := s.execWithoutResultRetry(ctx,
		"DELETE FROM recommendations WHERE kind = ? AND state = 'pending'", kind); err != nil {
		return fmt.Errorf("clear pending recommendations: %w", err)
	}
	now := nowTimestamp()
	for i := range recs {
		rec := &recs[i]
		res, err := s.execWithRetry(ctx,
			`INSERT OR IGNORE INTO recommendations (kind, title, year, tmdb_id, reason, state, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)`,
			kind, rec.Title, rec.Year, rec.TMDBID, rec.Reason, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert recommendation: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			rec.ID = id
		}
		rec.Kind = kind
		rec.State = RecPending
	}
	return nil
}

// SetRecommendationState transitions a recommendation. Only forward moves out
// of pending are allowed; acted-on suggestions are never reverted.
func (s *Store) SetRecommendationState(ctx context.Context, id int64, state RecommendationState) error {
	switch state {
	case RecRequested, RecIgnored, RecAdded:
	default:
		return errors.New("invalid recommendation transition")
	}
	res, err := s.execWithRetry(ctx,
		"UPDATE recommendations SET state = ?, updated_at = ? WHERE id = ? AND state = 'pending'",
		state, nowTimestamp(), id,
	)
	if err != nil {
		return fmt.Errorf("set recommendation state: %w", err)
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

// ListRecommendations returns suggestions, optionally filtered by state.
func (s *Store) ListRecommendations(ctx context.Context, state RecommendationState) ([]Recommendation, error) {
	query := `SELECT id, kind, title, year, tmdb_id, reason, state, created_at, updated_at
		FROM recommendations`
	args := []any{}
	if state != "" {
		query += " WHERE state = ?"
		args = append(args, state)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	var recs []Recommendation
	for rows.Next() {
		var (
			rec       Recommendation
			createdAt string
			updatedAt string
		)
		err := rows.Scan(&rec.ID, &rec.Kind, &rec.Title, &rec.Year, &rec.TMDBID,
			&rec.Reason, &rec.State, &createdAt, &updatedAt)
		if err != nil {
			return nil, err
		}
		rec.CreatedAt = parseTimestamp(createdAt)
		rec.UpdatedAt = parseTimestamp(updatedAt)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
