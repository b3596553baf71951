package library

import (
	"context"
	"fmt"
)

// ReplaceDuplicateGroups deletes every prior duplicate group for the given
// items and inserts the new set. Clustering results supersede earlier runs
// wholesale; there is no incremental merge.
func (s *Store) ReplaceDuplicateGroups(ctx context.Context, itemIDs []int64, groups []DuplicateGroup) error {
	for _, itemID := range itemIDs {
		if err := s.execWithoutResultRetry(ctx,
			"DELETE FROM duplicate_groups WHERE item_id = ?", itemID); err != nil {
			return fmt.Errorf("clear duplicate groups: %w", err)
		}
	}
	now := nowTimestamp()
	for i := range groups {
		group := &groups[i]
		res, err := s.execWithRetry(ctx,
			`INSERT INTO duplicate_groups (
				item_id, title, member_file_ids, keep_file_id, reclaimable_bytes, scan_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			group.ItemID, group.Title, encodeInt64s(group.MemberFileIDs),
			group.KeepFileID, group.ReclaimableBytes, group.ScanID, now,
		)
		if err != nil {
			return fmt.Errorf("insert duplicate group: %w", err)
		}
		group.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
	}
	return nil
}

// ListDuplicateGroups returns all duplicate groups ordered by reclaimable size.
func (s *Store) ListDuplicateGroups(ctx context.Context) ([]DuplicateGroup, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, item_id, title, member_file_ids, keep_file_id, reclaimable_bytes, scan_id, created_at
		 FROM duplicate_groups ORDER BY reclaimable_bytes DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list duplicate groups: %w", err)
	}
	defer rows.Close()

	var groups []DuplicateGroup
	for rows.Next() {
		var (
			group     DuplicateGroup
			members   string
			createdAt string
		)
		err := rows.Scan(&group.ID, &group.ItemID, &group.Title, &members,
			&group.KeepFileID, &group.ReclaimableBytes, &group.ScanID, &createdAt)
		if err != nil {
			return nil, err
		}
		group.MemberFileIDs = decodeInt64s(members)
		group.CreatedAt = parseTimestamp(createdAt)
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// TotalReclaimableBytes sums reclaimable bytes across all duplicate groups.
func (s *Store) TotalReclaimableBytes(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COALESCE(SUM(reclaimable_bytes), 0) FROM duplicate_groups").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum reclaimable bytes: %w", err)
	}
	return total, nil
}
