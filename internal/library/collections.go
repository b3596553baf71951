package library

import (
	"context"
	"errors"
	"fmt"
)

// ReplaceCollection upserts a collection and replaces its membership.
func (s *Store) ReplaceCollection(ctx context.Context, col *Collection) error {
	if col == nil {
		return errors.New("nil collection")
	}
	now := nowTimestamp()

	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO collections (rating_key, title, item_count, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(rating_key) DO UPDATE SET
			title = excluded.title,
			item_count = excluded.item_count,
			updated_at = excluded.updated_at`,
		col.RatingKey, col.Title, col.ItemCount, now,
	)
	if err != nil {
		return fmt.Errorf("upsert collection: %w", err)
	}

	// LastInsertId is meaningless when the upsert took the conflict path, so
	// the id is always resolved by key.
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT id FROM collections WHERE rating_key = ?", col.RatingKey)
	if err := row.Scan(&col.ID); err != nil {
		return fmt.Errorf("resolve collection id: %w", err)
	}

	if err := s.execWithoutResultRetry(ctx,
		"DELETE FROM collection_members WHERE collection_id = ?", col.ID); err != nil {
		return fmt.Errorf("clear collection members: %w", err)
	}
	for _, itemID := range col.ItemIDs {
		if err := s.execWithoutResultRetry(ctx,
			"INSERT OR IGNORE INTO collection_members (collection_id, item_id) VALUES (?, ?)",
			col.ID, itemID); err != nil {
			return fmt.Errorf("insert collection member: %w", err)
		}
	}
	return nil
}

// ListCollections returns every known collection with member item ids.
func (s *Store) ListCollections(ctx context.Context) ([]Collection, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, rating_key, title, item_count, updated_at FROM collections ORDER BY title COLLATE NOCASE")
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var cols []Collection
	for rows.Next() {
		var (
			col       Collection
			updatedAt string
		)
		if err := rows.Scan(&col.ID, &col.RatingKey, &col.Title, &col.ItemCount, &updatedAt); err != nil {
			return nil, err
		}
		col.UpdatedAt = parseTimestamp(updatedAt)
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range cols {
		memberRows, err := s.db.QueryContext(ctx,
			"SELECT item_id FROM collection_members WHERE collection_id = ? ORDER BY item_id", cols[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list collection members: %w", err)
		}
		for memberRows.Next() {
			var itemID int64
			if err := memberRows.Scan(&itemID); err != nil {
				memberRows.Close()
				return nil, err
			}
			cols[i].ItemIDs = append(cols[i].ItemIDs, itemID)
		}
		if err := memberRows.Err(); err != nil {
			memberRows.Close()
			return nil, err
		}
		memberRows.Close()
	}
	return cols, nil
}
