package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const itemColumns = `id, rating_key, title, year, kind, tmdb_id, tvdb_id, imdb_id,
	imdb_rating, rt_rating, genres, present, protected, protection_reason,
	watched, last_watched_at, added_at, updated_at`

// UpsertItem inserts a new item or updates the stored attributes of an
// existing one, keyed by rating key. It reports whether a row was created and
// whether any stored attribute actually changed, so sync passes over an
// unchanged library register a zero delta.
func (s *Store) UpsertItem(ctx context.Context, item *Item) (created, changed bool, err error) {
	if item == nil {
		return false, false, errors.New("nil item")
	}
	if strings.TrimSpace(item.RatingKey) == "" {
		return false, false, errors.New("item rating key required")
	}
	now := nowTimestamp()

	existing, err := s.GetItemByRatingKey(ctx, item.RatingKey)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, false, err
	}

	if existing == nil {
		res, err := s.execWithRetry(ctx,
			`INSERT INTO library_items (
				rating_key, title, year, kind, tmdb_id, tvdb_id, imdb_id,
				imdb_rating, rt_rating, genres, present, protected, protection_reason,
				watched, last_watched_at, added_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?)`,
			item.RatingKey, item.Title, item.Year, item.Kind,
			item.TMDBID, item.TVDBID, item.IMDBID,
			item.IMDBRating, item.RTRating, encodeStrings(item.Genres),
			boolToInt(item.Protected), item.ProtectionReason,
			boolToInt(item.Watched), nullableTimestamp(item.LastWatchedAt),
			now, now,
		)
		if err != nil {
			return false, false, fmt.Errorf("insert item: %w", err)
		}
		item.ID, err = res.LastInsertId()
		if err != nil {
			return false, false, fmt.Errorf("last insert id: %w", err)
		}
		return true, true, nil
	}

	item.ID = existing.ID
	changed = itemAttributesChanged(existing, item)
	err = s.execWithoutResultRetry(ctx,
		`UPDATE library_items SET
			title = ?, year = ?, kind = ?, tmdb_id = ?, tvdb_id = ?, imdb_id = ?,
			imdb_rating = ?, rt_rating = ?, genres = ?, present = 1,
			watched = ?, last_watched_at = ?, updated_at = ?
		WHERE id = ?`,
		item.Title, item.Year, item.Kind, item.TMDBID, item.TVDBID, item.IMDBID,
		item.IMDBRating, item.RTRating, encodeStrings(item.Genres),
		boolToInt(item.Watched), nullableTimestamp(item.LastWatchedAt),
		now, existing.ID,
	)
	if err != nil {
		return false, false, fmt.Errorf("update item: %w", err)
	}
	return false, changed, nil
}

func itemAttributesChanged(existing, incoming *Item) bool {
	if !existing.Present {
		return true
	}
	if existing.Title != incoming.Title ||
		existing.Year != incoming.Year ||
		existing.Kind != incoming.Kind ||
		existing.TMDBID != incoming.TMDBID ||
		existing.TVDBID != incoming.TVDBID ||
		existing.IMDBID != incoming.IMDBID ||
		existing.IMDBRating != incoming.IMDBRating ||
		existing.RTRating != incoming.RTRating ||
		existing.Watched != incoming.Watched {
		return true
	}
	if encodeStrings(existing.Genres) != encodeStrings(incoming.Genres) {
		return true
	}
	switch {
	case existing.LastWatchedAt == nil && incoming.LastWatchedAt == nil:
	case existing.LastWatchedAt == nil || incoming.LastWatchedAt == nil:
		return true
	case !existing.LastWatchedAt.Equal(*incoming.LastWatchedAt):
		return true
	}
	return false
}

// SetProtection records or clears a protection flag on an item.
func (s *Store) SetProtection(ctx context.Context, itemID int64, protected bool, reason string) error {
	return s.execWithoutResultRetry(ctx,
		`UPDATE library_items SET protected = ?, protection_reason = ?, updated_at = ? WHERE id = ?`,
		boolToInt(protected), reason, nowTimestamp(), itemID,
	)
}

// MarkItemsRemoved soft-deletes every present item whose rating key is not in
// keep, preserving issue and recommendation history. Returns the count marked.
func (s *Store) MarkItemsRemoved(ctx context.Context, keep map[string]struct{}) (int, error) {
	items, err := s.ListItems(ctx, ListItemsOptions{PresentOnly: true})
	if err != nil {
		return 0, err
	}
	removed := 0
	now := nowTimestamp()
	for _, item := range items {
		if _, ok := keep[item.RatingKey]; ok {
			continue
		}
		err := s.execWithoutResultRetry(ctx,
			`UPDATE library_items SET present = 0, updated_at = ? WHERE id = ?`,
			now, item.ID,
		)
		if err != nil {
			return removed, fmt.Errorf("mark item removed: %w", err)
		}
		removed++
	}
	return removed, nil
}

// GetItem loads one item with its files.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM library_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachFiles(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// GetItemByRatingKey loads one item by its media-server identifier.
func (s *Store) GetItemByRatingKey(ctx context.Context, ratingKey string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM library_items WHERE rating_key = ?`, ratingKey)
	item, err := scanItem(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachFiles(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// ListItemsOptions filters ListItems.
type ListItemsOptions struct {
	Kind        MediaKind
	PresentOnly bool
	WithFiles   bool
}

// ListItems returns items ordered by title.
func (s *Store) ListItems(ctx context.Context, opts ListItemsOptions) ([]*Item, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + itemColumns + ` FROM library_items`
	var (
		clauses []string
		args    []any
	)
	if opts.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, opts.Kind)
	}
	if opts.PresentOnly {
		clauses = append(clauses, "present = 1")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY title COLLATE NOCASE, year"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if opts.WithFiles {
		for _, item := range items {
			if err := s.attachFiles(ctx, item); err != nil {
				return nil, err
			}
		}
	}
	return items, nil
}

// CountItems returns the number of present items.
func (s *Store) CountItems(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1) FROM library_items WHERE present = 1").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item          Item
		genres        string
		present       int
		protected     int
		watched       int
		lastWatched   sql.NullString
		addedAt       string
		updatedAt     string
	)
	err := row.Scan(
		&item.ID, &item.RatingKey, &item.Title, &item.Year, &item.Kind,
		&item.TMDBID, &item.TVDBID, &item.IMDBID,
		&item.IMDBRating, &item.RTRating, &genres,
		&present, &protected, &item.ProtectionReason,
		&watched, &lastWatched, &addedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Genres = decodeStrings(genres)
	item.Present = present != 0
	item.Protected = protected != 0
	item.Watched = watched != 0
	item.LastWatchedAt = parseNullableTimestamp(lastWatched)
	item.AddedAt = parseTimestamp(addedAt)
	item.UpdatedAt = parseTimestamp(updatedAt)
	return &item, nil
}
