package quality

import (
	"context"
	"fmt"

	"caretaker/internal/library"
)

// CheckCollections flags collections that have shrunk below their recorded
// membership (a member left the library) and single-item collections, which
// usually signal an abandoned franchise. Issues attach to the first member
// still present.
func (a *Analyzer) CheckCollections(ctx context.Context, scanID int64, progress Progress) error {
	collections, err := a.store.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	for i, col := range collections {
		if progress != nil && progress.StopRequested(ctx) {
			return context.Canceled
		}

		var present []*library.Item
		for _, itemID := range col.ItemIDs {
			item, err := a.store.GetItem(ctx, itemID)
			if err != nil {
				continue
			}
			if item.Present {
				present = append(present, item)
			}
		}
		if len(present) == 0 {
			continue
		}

		var description string
		switch {
		case len(present) < col.ItemCount:
			description = fmt.Sprintf("collection %q holds %d of %d titles",
				col.Title, len(present), col.ItemCount)
		case len(present) == 1:
			description = fmt.Sprintf("collection %q contains only %q", col.Title, present[0].Title)
		default:
			continue
		}

		issue := &library.Issue{
			ItemID:      present[0].ID,
			Type:        library.IssueIncompleteCollection,
			Severity:    library.SeverityInfo,
			Description: description,
			ScanID:      scanID,
		}
		if err := a.record(ctx, issue); err != nil {
			return err
		}

		if progress != nil && len(collections) > 0 {
			progress.Report(ctx, float64(i+1)/float64(len(collections))*100, col.Title)
		}
	}

	// Collections span kinds, so the stale sweep is unscoped here.
	if _, err := a.store.ClearStaleIssues(ctx, scanID,
		[]library.IssueType{library.IssueIncompleteCollection}); err != nil {
		return fmt.Errorf("clear stale issues: %w", err)
	}
	return nil
}
