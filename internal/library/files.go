package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const fileColumns = `id, item_id, path, size_bytes, container, video_codec, resolution,
	duration_seconds, bitrate, hdr, audio_languages, subtitle_languages,
	present, probed_at, probe_ok, updated_at`

// UpsertFile inserts a new file record or updates an existing one in place,
// keyed by path. It reports whether attributes actually changed.
func (s *Store) UpsertFile(ctx context.Context, file *MediaFile) (created, changed bool, err error) {
	if file == nil {
		return false, false, errors.New("nil file")
	}
	if file.ItemID == 0 || file.Path == "" {
		return false, false, errors.New("file requires item id and path")
	}
	now := nowTimestamp()

	existing, err := s.GetFileByPath(ctx, file.Path)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, false, err
	}

	if existing == nil {
		res, err := s.execWithRetry(ctx,
			`INSERT INTO media_files (
				item_id, path, size_bytes, container, video_codec, resolution,
				duration_seconds, bitrate, hdr, audio_languages, subtitle_languages,
				present, probed_at, probe_ok, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
			file.ItemID, file.Path, file.SizeBytes, file.Container, file.VideoCodec,
			file.Resolution, file.DurationSeconds, file.Bitrate, boolToInt(file.HDR),
			encodeStrings(file.AudioLanguages), encodeStrings(file.SubtitleLanguages),
			nullableTimestamp(file.ProbedAt), boolToInt(file.ProbeOK), now,
		)
		if err != nil {
			return false, false, fmt.Errorf("insert file: %w", err)
		}
		file.ID, err = res.LastInsertId()
		if err != nil {
			return false, false, fmt.Errorf("last insert id: %w", err)
		}
		return true, true, nil
	}

	file.ID = existing.ID
	changed = existing.SizeBytes != file.SizeBytes ||
		existing.Container != file.Container ||
		existing.VideoCodec != file.VideoCodec ||
		existing.Resolution != file.Resolution ||
		existing.Bitrate != file.Bitrate ||
		existing.HDR != file.HDR ||
		!existing.Present

	err = s.execWithoutResultRetry(ctx,
		`UPDATE media_files SET
			item_id = ?, size_bytes = ?, container = ?, video_codec = ?, resolution = ?,
			duration_seconds = ?, bitrate = ?, hdr = ?, audio_languages = ?,
			subtitle_languages = ?, present = 1, updated_at = ?
		WHERE id = ?`,
		file.ItemID, file.SizeBytes, file.Container, file.VideoCodec, file.Resolution,
		file.DurationSeconds, file.Bitrate, boolToInt(file.HDR),
		encodeStrings(file.AudioLanguages), encodeStrings(file.SubtitleLanguages),
		now, existing.ID,
	)
	if err != nil {
		return false, false, fmt.Errorf("update file: %w", err)
	}
	return false, changed, nil
}

// MarkFilesRemoved soft-deletes files of an item whose path is not in keep.
func (s *Store) MarkFilesRemoved(ctx context.Context, itemID int64, keep map[string]struct{}) (int, error) {
	files, err := s.ListFiles(ctx, itemID)
	if err != nil {
		return 0, err
	}
	removed := 0
	now := nowTimestamp()
	for _, file := range files {
		if !file.Present {
			continue
		}
		if _, ok := keep[file.Path]; ok {
			continue
		}
		err := s.execWithoutResultRetry(ctx,
			`UPDATE media_files SET present = 0, updated_at = ? WHERE id = ?`,
			now, file.ID,
		)
		if err != nil {
			return removed, fmt.Errorf("mark file removed: %w", err)
		}
		removed++
	}
	return removed, nil
}

// RecordProbe stores the outcome of a structural integrity probe.
func (s *Store) RecordProbe(ctx context.Context, fileID int64, ok bool) error {
	return s.execWithoutResultRetry(ctx,
		`UPDATE media_files SET probed_at = ?, probe_ok = ?, updated_at = ? WHERE id = ?`,
		nowTimestamp(), boolToInt(ok), nowTimestamp(), fileID,
	)
}

// GetFile loads one file record.
func (s *Store) GetFile(ctx context.Context, id int64) (*MediaFile, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+fileColumns+` FROM media_files WHERE id = ?`, id)
	return scanFile(row)
}

// GetFileByPath loads one file record by path.
func (s *Store) GetFileByPath(ctx context.Context, path string) (*MediaFile, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+fileColumns+` FROM media_files WHERE path = ?`, path)
	return scanFile(row)
}

// ListFiles returns every file of an item.
func (s *Store) ListFiles(ctx context.Context, itemID int64) ([]MediaFile, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+fileColumns+` FROM media_files WHERE item_id = ? ORDER BY path`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []MediaFile
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}

func (s *Store) attachFiles(ctx context.Context, item *Item) error {
	files, err := s.ListFiles(ctx, item.ID)
	if err != nil {
		return err
	}
	item.Files = files
	return nil
}

func scanFile(row rowScanner) (*MediaFile, error) {
	var (
		file      MediaFile
		hdr       int
		audio     string
		subtitles string
		present   int
		probedAt  sql.NullString
		probeOK   int
		updatedAt string
	)
	err := row.Scan(
		&file.ID, &file.ItemID, &file.Path, &file.SizeBytes, &file.Container,
		&file.VideoCodec, &file.Resolution, &file.DurationSeconds, &file.Bitrate,
		&hdr, &audio, &subtitles, &present, &probedAt, &probeOK, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	file.HDR = hdr != 0
	file.AudioLanguages = decodeStrings(audio)
	file.SubtitleLanguages = decodeStrings(subtitles)
	file.Present = present != 0
	file.ProbedAt = parseNullableTimestamp(probedAt)
	file.ProbeOK = probeOK != 0
	file.UpdatedAt = parseTimestamp(updatedAt)
	return &file, nil
}
