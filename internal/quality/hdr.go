package quality

import (
	"context"
	"fmt"
	"strings"

	"caretaker/internal/library"
)

// CheckHDR flags 4K files that lack HDR metadata and files without any
// embedded subtitle track in a required language.
func (a *Analyzer) CheckHDR(ctx context.Context, scanID int64, kind library.MediaKind, progress Progress) error {
	required := parseLanguageBases(a.scan.RequiredSubtitleLanguages)

	err := a.forEachItem(ctx, kind, progress, func(item *library.Item) error {
		for _, file := range item.Files {
			if !file.Present {
				continue
			}
			if normalizeResolution(file.Resolution) == "2160" && !file.HDR {
				issue := &library.Issue{
					ItemID:      item.ID,
					FileID:      file.ID,
					Type:        library.IssueMissingHDR,
					Severity:    library.SeverityInfo,
					Description: fmt.Sprintf("%q is 4K but carries no HDR metadata", file.Path),
					ScanID:      scanID,
				}
				if err := a.record(ctx, issue); err != nil {
					return err
				}
			}
			if len(required) > 0 && !hasSubtitleIn(file, required) {
				issue := &library.Issue{
					ItemID:   item.ID,
					FileID:   file.ID,
					Type:     library.IssueMissingSubtitleLanguage,
					Severity: library.SeverityInfo,
					Description: fmt.Sprintf("%q has no embedded subtitles in a required language (%s)",
						file.Path, strings.Join(a.scan.RequiredSubtitleLanguages, ", ")),
					AutoFixable: true,
					ScanID:      scanID,
				}
				if err := a.record(ctx, issue); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return a.clearStale(ctx, scanID, kind, library.IssueMissingHDR)
}

func hasSubtitleIn(file library.MediaFile, required map[string]struct{}) bool {
	for _, tag := range file.SubtitleLanguages {
		if base, ok := languageBase(tag); ok {
			if _, want := required[base]; want {
				return true
			}
		}
	}
	return false
}
