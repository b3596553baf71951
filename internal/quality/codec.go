package quality

import (
	"context"
	"fmt"
	"strings"

	"caretaker/internal/library"
)

// CheckCodecs flags files encoded with a codec from the configured legacy
// list.
func (a *Analyzer) CheckCodecs(ctx context.Context, scanID int64, kind library.MediaKind, progress Progress) error {
	legacy := make(map[string]struct{}, len(a.scan.LegacyCodecs))
	for _, codec := range a.scan.LegacyCodecs {
		legacy[strings.ToLower(codec)] = struct{}{}
	}
	if len(legacy) == 0 {
		return nil
	}

	err := a.forEachItem(ctx, kind, progress, func(item *library.Item) error {
		for _, file := range item.Files {
			if !file.Present {
				continue
			}
			if _, old := legacy[strings.ToLower(file.VideoCodec)]; !old {
				continue
			}
			issue := &library.Issue{
				ItemID:      item.ID,
				FileID:      file.ID,
				Type:        library.IssueLegacyCodec,
				Severity:    library.SeverityWarning,
				Description: fmt.Sprintf("%q uses legacy codec %s", file.Path, file.VideoCodec),
				ScanID:      scanID,
			}
			if err := a.record(ctx, issue); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return a.clearStale(ctx, scanID, kind, library.IssueLegacyCodec)
}
