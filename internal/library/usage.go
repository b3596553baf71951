package library

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RecordAIUsage appends one ledger entry for a completed AI call.
func (s *Store) RecordAIUsage(ctx context.Context, usage *AIUsage) error {
	if usage == nil {
		return errors.New("nil usage")
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO ai_usage (provider, model, input_tokens, output_tokens, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		usage.Provider, usage.Model, usage.InputTokens, usage.OutputTokens,
		usage.CostUSD, nowTimestamp(),
	)
	if err != nil {
		return fmt.Errorf("insert ai usage: %w", err)
	}
	usage.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

// MonthlyAISpend sums ledger cost for the calendar month containing now.
func (s *Store) MonthlyAISpend(ctx context.Context, now time.Time) (float64, error) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	var total float64
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COALESCE(SUM(cost_usd), 0) FROM ai_usage WHERE created_at >= ? AND created_at < ?`,
		timestamp(start), timestamp(end),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum ai spend: %w", err)
	}
	return total, nil
}

// ListAIUsage returns ledger entries newest first, limited when limit > 0.
func (s *Store) ListAIUsage(ctx context.Context, limit int) ([]AIUsage, error) {
	query := `SELECT id, provider, model, input_tokens, output_tokens, cost_usd, created_at
		FROM ai_usage ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ai usage: %w", err)
	}
	defer rows.Close()

	var entries []AIUsage
	for rows.Next() {
		var (
			usage     AIUsage
			createdAt string
		)
		err := rows.Scan(&usage.ID, &usage.Provider, &usage.Model,
			&usage.InputTokens, &usage.OutputTokens, &usage.CostUSD, &createdAt)
		if err != nil {
			return nil, err
		}
		usage.CreatedAt = parseTimestamp(createdAt)
		entries = append(entries, usage)
	}
	return entries, rows.Err()
}
