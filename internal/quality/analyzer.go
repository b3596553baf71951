// Package quality runs the per-file and per-item defect checks: folder
// naming, structural integrity, audio language coverage, HDR metadata,
// storage efficiency, legacy codecs, and collection completeness. Every check
// emits issues keyed by (file, type) or (item, type) so re-running refreshes
// details without minting new identities; defects that no longer reproduce
// are resolved through the scan watermark.
package quality

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"caretaker/internal/config"
	"caretaker/internal/ffprobe"
	"caretaker/internal/library"
	"caretaker/internal/logging"
)

// Prober is the structural probe surface, satisfied by ffprobe.Prober.
type Prober interface {
	Available() bool
	Probe(ctx context.Context, path string) (ffprobe.Result, error)
}

// Progress receives item-level updates while a check runs.
type Progress interface {
	Report(ctx context.Context, percent float64, currentItem string)
	StopRequested(ctx context.Context) bool
}

// Analyzer drives the quality and integrity phases.
type Analyzer struct {
	store  *library.Store
	scan   config.Scan
	prober Prober
	logger *slog.Logger
	now    func() time.Time

	// statFile is swapped in tests to control file existence.
	statFile func(path string) error
}

// NewAnalyzer builds an analyzer from application config.
func NewAnalyzer(store *library.Store, cfg *config.Config, prober Prober, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		store:    store,
		scan:     cfg.Scan,
		prober:   prober,
		logger:   logging.NewComponentLogger(logger, "quality"),
		now:      time.Now,
		statFile: statFile,
	}
}

func (a *Analyzer) presentItems(ctx context.Context, kind library.MediaKind) ([]*library.Item, error) {
	items, err := a.store.ListItems(ctx, library.ListItemsOptions{
		Kind: kind, PresentOnly: true, WithFiles: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (a *Analyzer) record(ctx context.Context, issue *library.Issue) error {
	if err := a.store.RecordIssue(ctx, issue); err != nil {
		return fmt.Errorf("record %s issue: %w", issue.Type, err)
	}
	return nil
}

// clearStale resolves issues of the given types that this pass did not
// re-observe. Scoped to the kind just checked so a movie pass never closes
// show defects, and vice versa.
func (a *Analyzer) clearStale(ctx context.Context, scanID int64, kind library.MediaKind, types ...library.IssueType) error {
	if _, err := a.store.ClearStaleIssuesForKind(ctx, scanID, kind, types); err != nil {
		return fmt.Errorf("clear stale issues: %w", err)
	}
	return nil
}

// forEachItem walks present items of a kind with progress reporting and
// cooperative stop checks at item boundaries.
func (a *Analyzer) forEachItem(ctx context.Context, kind library.MediaKind, progress Progress, visit func(item *library.Item) error) error {
	items, err := a.presentItems(ctx, kind)
	if err != nil {
		return err
	}
	for i, item := range items {
		if progress != nil && progress.StopRequested(ctx) {
			return context.Canceled
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := visit(item); err != nil {
			return err
		}
		if progress != nil && len(items) > 0 {
			progress.Report(ctx, float64(i+1)/float64(len(items))*100, item.Title)
		}
	}
	return nil
}

func normalizeResolution(resolution string) string {
	switch strings.ToLower(resolution) {
	case "4k", "2160", "2160p":
		return "2160"
	case "1080", "1080p":
		return "1080"
	case "720", "720p":
		return "720"
	case "576", "576p", "480", "480p", "sd":
		return "sd"
	default:
		return strings.ToLower(resolution)
	}
}

// sizeTier maps a file to its size-threshold config key, or "" when the
// resolution is unknown.
func sizeTier(file library.MediaFile) string {
	switch normalizeResolution(file.Resolution) {
	case "2160":
		if file.HDR {
			return "4k_hdr"
		}
		return "4k"
	case "1080":
		return "1080"
	case "720":
		return "720"
	case "sd":
		return "sd"
	default:
		return ""
	}
}
