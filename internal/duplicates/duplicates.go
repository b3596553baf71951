// Package duplicates clusters files that represent the same logical title and
// picks the version worth keeping. Groups are recomputed and fully replaced
// each scan; membership shifts as files come and go, so nothing is merged.
package duplicates

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"caretaker/internal/config"
	"caretaker/internal/library"
	"caretaker/internal/logging"
)

// Progress receives item-level updates while clustering.
type Progress interface {
	Report(ctx context.Context, percent float64, currentItem string)
	StopRequested(ctx context.Context) bool
}

// Engine runs the deep-scan phases.
type Engine struct {
	store          *library.Store
	logger         *slog.Logger
	sizeThresholds map[string]config.SizeBounds
	ceilingFactor  float64
}

// NewEngine builds an engine with the configured size tiers.
func NewEngine(store *library.Store, cfg *config.Config, logger *slog.Logger) *Engine {
	factor := cfg.Scan.DuplicateSizeCeilingFactor
	if factor <= 0 {
		factor = 1.0
	}
	return &Engine{
		store:          store,
		logger:         logging.NewComponentLogger(logger, "duplicates"),
		sizeThresholds: cfg.Scan.SizeThresholds,
		ceilingFactor:  factor,
	}
}

// Analyze clusters every present item of the given kind and replaces the
// stored duplicate groups wholesale. Returns the number of groups found.
func (e *Engine) Analyze(ctx context.Context, scanID int64, kind library.MediaKind, progress Progress) (int, error) {
	items, err := e.store.ListItems(ctx, library.ListItemsOptions{
		Kind: kind, PresentOnly: true, WithFiles: true,
	})
	if err != nil {
		return 0, fmt.Errorf("list items: %w", err)
	}

	type cluster struct {
		itemID int64
		title  string
		files  []library.MediaFile
	}
	clusters := make(map[string]*cluster)
	itemIDs := make([]int64, 0, len(items))

	for i, item := range items {
		if progress != nil && progress.StopRequested(ctx) {
			return 0, context.Canceled
		}
		itemIDs = append(itemIDs, item.ID)

		// Files of items sharing an external id cluster together; items
		// without one cluster only within themselves.
		key := fmt.Sprintf("item:%d", item.ID)
		if item.TMDBID != 0 {
			key = fmt.Sprintf("tmdb:%d", item.TMDBID)
		}
		c, ok := clusters[key]
		if !ok {
			c = &cluster{itemID: item.ID, title: item.Title}
			clusters[key] = c
		}
		for _, file := range item.Files {
			if file.Present {
				c.files = append(c.files, file)
			}
		}

		if progress != nil && len(items) > 0 {
			progress.Report(ctx, float64(i+1)/float64(len(items))*100, item.Title)
		}
	}

	var groups []library.DuplicateGroup
	for _, c := range clusters {
		if len(c.files) < 2 {
			continue
		}
		ranked := e.rank(c.files)
		keep := ranked[0]

		group := library.DuplicateGroup{
			ItemID:     c.itemID,
			Title:      c.title,
			KeepFileID: keep.ID,
			ScanID:     scanID,
		}
		for _, file := range ranked {
			group.MemberFileIDs = append(group.MemberFileIDs, file.ID)
			if file.ID != keep.ID {
				group.ReclaimableBytes += file.SizeBytes
			}
		}
		groups = append(groups, group)
	}

	if err := e.store.ReplaceDuplicateGroups(ctx, itemIDs, groups); err != nil {
		return 0, fmt.Errorf("replace duplicate groups: %w", err)
	}
	e.logger.Info("duplicate clustering finished",
		logging.String("kind", string(kind)),
		logging.Int("groups", len(groups)))
	return len(groups), nil
}

// rank orders files best-first by a fixed total order: resolution rank, then
// staying within the expected-size ceiling, then size (larger wins within the
// ceiling, smaller wins above it), then codec family, then lower bitrate,
// then file id for determinism.
func (e *Engine) rank(files []library.MediaFile) []library.MediaFile {
	ranked := make([]library.MediaFile, len(files))
	copy(ranked, files)
	sort.Slice(ranked, func(i, j int) bool {
		return e.better(ranked[i], ranked[j])
	})
	return ranked
}

func (e *Engine) better(a, b library.MediaFile) bool {
	if ra, rb := resolutionRank(a.Resolution), resolutionRank(b.Resolution); ra != rb {
		return ra > rb
	}
	wa, wb := e.withinCeiling(a), e.withinCeiling(b)
	if wa != wb {
		return wa
	}
	if a.SizeBytes != b.SizeBytes {
		if wa {
			return a.SizeBytes > b.SizeBytes
		}
		return a.SizeBytes < b.SizeBytes
	}
	if ca, cb := codecRank(a.VideoCodec), codecRank(b.VideoCodec); ca != cb {
		return ca > cb
	}
	if a.Bitrate != b.Bitrate {
		return a.Bitrate < b.Bitrate
	}
	return a.ID < b.ID
}

// withinCeiling reports whether a file's size is at or below the expected
// ceiling for its resolution tier. Files without duration or an unknown tier
// cannot be judged and pass.
func (e *Engine) withinCeiling(file library.MediaFile) bool {
	bounds, ok := e.sizeThresholds[sizeTier(file)]
	if !ok || file.DurationSeconds <= 0 || bounds.MaxGBPerHour <= 0 {
		return true
	}
	hours := file.DurationSeconds / 3600
	ceilingBytes := bounds.MaxGBPerHour * hours * e.ceilingFactor * float64(1<<30)
	return float64(file.SizeBytes) <= ceilingBytes
}

// sizeTier maps a file to its size-threshold config key.
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

func resolutionRank(resolution string) int {
	switch normalizeResolution(resolution) {
	case "2160":
		return 4
	case "1080":
		return 3
	case "720":
		return 2
	case "sd":
		return 1
	default:
		return 0
	}
}

func codecRank(codec string) int {
	switch strings.ToLower(codec) {
	case "av1":
		return 4
	case "hevc", "h265", "x265":
		return 3
	case "h264", "avc", "x264":
		return 2
	default:
		return 1
	}
}
