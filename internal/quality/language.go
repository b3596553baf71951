package quality

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"caretaker/internal/library"
)

// CheckLanguages flags items whose files carry no audio track in any
// preferred language. Tags are canonicalized so "en", "eng", and "en-US"
// all match.
func (a *Analyzer) CheckLanguages(ctx context.Context, scanID int64, kind library.MediaKind, progress Progress) error {
	preferred := parseLanguageBases(a.scan.PreferredAudioLanguages)
	if len(preferred) == 0 {
		return nil
	}

	err := a.forEachItem(ctx, kind, progress, func(item *library.Item) error {
		hasAudio := false
		for _, file := range item.Files {
			if file.Present && len(file.AudioLanguages) > 0 {
				hasAudio = true
				break
			}
		}
		// Files without language tags at all are indeterminate, not defective.
		if !hasAudio {
			return nil
		}
		for _, file := range item.Files {
			if !file.Present {
				continue
			}
			for _, tag := range file.AudioLanguages {
				if base, ok := languageBase(tag); ok {
					if _, want := preferred[base]; want {
						return nil
					}
				}
			}
		}
		return a.record(ctx, &library.Issue{
			ItemID:   item.ID,
			Type:     library.IssueNoPreferredAudio,
			Severity: library.SeverityWarning,
			Description: fmt.Sprintf("%q has no audio track in a preferred language (%s)",
				item.Title, strings.Join(a.scan.PreferredAudioLanguages, ", ")),
			ScanID: scanID,
		})
	})
	if err != nil {
		return err
	}
	return a.clearStale(ctx, scanID, kind, library.IssueNoPreferredAudio)
}

func parseLanguageBases(tags []string) map[string]struct{} {
	bases := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if base, ok := languageBase(tag); ok {
			bases[base] = struct{}{}
		}
	}
	return bases
}

func languageBase(tag string) (string, bool) {
	parsed, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return "", false
	}
	base, _ := parsed.Base()
	return base.String(), true
}
