package quality

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"caretaker/internal/library"
)

// CheckStorage compares each file's GB-per-hour footprint against the bounds
// configured for its resolution tier and flags oversized and undersized
// outliers. Files without duration or a recognized tier are skipped.
func (a *Analyzer) CheckStorage(ctx context.Context, scanID int64, kind library.MediaKind, progress Progress) error {
	err := a.forEachItem(ctx, kind, progress, func(item *library.Item) error {
		for _, file := range item.Files {
			if !file.Present || file.DurationSeconds <= 0 {
				continue
			}
			bounds, ok := a.scan.SizeThresholds[sizeTier(file)]
			if !ok {
				continue
			}
			hours := file.DurationSeconds / 3600
			gbPerHour := float64(file.SizeBytes) / float64(1<<30) / hours

			var issue *library.Issue
			switch {
			case bounds.MaxGBPerHour > 0 && gbPerHour > bounds.MaxGBPerHour:
				issue = &library.Issue{
					Type:     library.IssueOversized,
					Severity: library.SeverityWarning,
					Description: fmt.Sprintf("%q uses %.1f GB/hr (%s total), above the %.1f GB/hr ceiling for its tier",
						file.Path, gbPerHour, humanize.IBytes(uint64(file.SizeBytes)), bounds.MaxGBPerHour),
				}
			case bounds.MinGBPerHour > 0 && gbPerHour < bounds.MinGBPerHour:
				issue = &library.Issue{
					Type:     library.IssueUndersized,
					Severity: library.SeverityInfo,
					Description: fmt.Sprintf("%q uses %.1f GB/hr (%s total), below the %.1f GB/hr floor for its tier",
						file.Path, gbPerHour, humanize.IBytes(uint64(file.SizeBytes)), bounds.MinGBPerHour),
				}
			}
			if issue == nil {
				continue
			}
			issue.ItemID = item.ID
			issue.FileID = file.ID
			issue.ScanID = scanID
			if err := a.record(ctx, issue); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return a.clearStale(ctx, scanID, kind, library.IssueOversized, library.IssueUndersized)
}
