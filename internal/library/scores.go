package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// UpsertScore overwrites the removal-worthiness score for one item. Callers
// must never write rows for protected items.
func (s *Store) UpsertScore(ctx context.Context, score *BadItemScore) error {
	if score == nil {
		return errors.New("nil score")
	}
	if score.ItemID == 0 {
		return errors.New("score requires item id")
	}
	signals := "{}"
	if len(score.Signals) > 0 {
		data, err := json.Marshal(score.Signals)
		if err != nil {
			return fmt.Errorf("marshal signals: %w", err)
		}
		signals = string(data)
	}
	return s.execWithoutResultRetry(ctx,
		`INSERT INTO bad_item_scores (item_id, score, heuristic_score, ai_adjustment, signals, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET
			score = excluded.score,
			heuristic_score = excluded.heuristic_score,
			ai_adjustment = excluded.ai_adjustment,
			signals = excluded.signals,
			updated_at = excluded.updated_at`,
		score.ItemID, score.Score, score.HeuristicScore, score.AIAdjustment,
		signals, nowTimestamp(),
	)
}

// DeleteScore removes a stored score, used when an item becomes protected.
func (s *Store) DeleteScore(ctx context.Context, itemID int64) error {
	return s.execWithoutResultRetry(ctx,
		"DELETE FROM bad_item_scores WHERE item_id = ?", itemID)
}

// ListScores returns scores ordered worst first, limited when limit > 0.
func (s *Store) ListScores(ctx context.Context, limit int) ([]BadItemScore, error) {
	query := `SELECT item_id, score, heuristic_score, ai_adjustment, signals, updated_at
		FROM bad_item_scores ORDER BY score DESC, item_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	var scores []BadItemScore
	for rows.Next() {
		var (
			score     BadItemScore
			signals   string
			updatedAt string
		)
		err := rows.Scan(&score.ItemID, &score.Score, &score.HeuristicScore,
			&score.AIAdjustment, &signals, &updatedAt)
		if err != nil {
			return nil, err
		}
		if signals != "" && signals != "{}" {
			_ = json.Unmarshal([]byte(signals), &score.Signals)
		}
		score.UpdatedAt = parseTimestamp(updatedAt)
		scores = append(scores, score)
	}
	return scores, rows.Err()
}
