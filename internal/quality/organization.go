package quality

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"caretaker/internal/library"
)

// CheckOrganization verifies that each item's folder carries the release year
// in the conventional "Title (YYYY)" form. Items without a known year or
// without files are skipped.
func (a *Analyzer) CheckOrganization(ctx context.Context, scanID int64, kind library.MediaKind, progress Progress) error {
	err := a.forEachItem(ctx, kind, progress, func(item *library.Item) error {
		if item.Year == 0 {
			return nil
		}
		folder := itemFolder(item, kind)
		if folder == "" {
			return nil
		}
		if strings.Contains(folder, fmt.Sprintf("(%d)", item.Year)) {
			return nil
		}
		return a.record(ctx, &library.Issue{
			ItemID:      item.ID,
			Type:        library.IssueMisnamedFolder,
			Severity:    library.SeverityInfo,
			Description: fmt.Sprintf("folder %q is missing the release year (%d)", folder, item.Year),
			AutoFixable: true,
			ScanID:      scanID,
		})
	})
	if err != nil {
		return err
	}
	return a.clearStale(ctx, scanID, kind, library.IssueMisnamedFolder)
}

// itemFolder returns the directory name holding the item. Movies live one
// level above the file; episodes sit inside season folders, so shows use the
// grandparent.
func itemFolder(item *library.Item, kind library.MediaKind) string {
	for _, file := range item.Files {
		if !file.Present || file.Path == "" {
			continue
		}
		dir := filepath.Dir(file.Path)
		if kind == library.KindShow {
			dir = filepath.Dir(dir)
		}
		return filepath.Base(dir)
	}
	return ""
}
