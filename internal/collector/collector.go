// Package collector reconciles the persisted library inventory against the
// media server. The media server is authoritative for what exists; items and
// files that disappear from it are soft-deleted so their defect and
// recommendation history survives.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/services"
	"caretaker/internal/services/plex"
)

// Inventory is the media-server surface the collector reads.
type Inventory interface {
	Sections(ctx context.Context) ([]plex.Section, error)
	Items(ctx context.Context, sectionKey string) ([]plex.Item, error)
	Collections(ctx context.Context, sectionKey string) ([]plex.CollectionEntry, error)
}

// WatchHistory supplies play counts merged into the inventory. Optional.
type WatchHistory interface {
	ListItems(ctx context.Context) ([]services.ExternalItem, error)
}

// Progress receives item-level updates during a sync pass.
type Progress interface {
	Report(ctx context.Context, percent float64, currentItem string)
	StopRequested(ctx context.Context) bool
}

// Collector performs the library sync phase.
type Collector struct {
	store     *library.Store
	inventory Inventory
	watch     WatchHistory
	logger    *slog.Logger
}

// New builds a collector. watch may be nil when no history service is
// configured.
func New(store *library.Store, inventory Inventory, watch WatchHistory, logger *slog.Logger) *Collector {
	return &Collector{
		store:     store,
		inventory: inventory,
		watch:     watch,
		logger:    logging.NewComponentLogger(logger, "collector"),
	}
}

// Sync pulls the full inventory, upserts every item and file, mirrors
// collections, and soft-deletes whatever the server no longer reports.
// Running twice against an unchanged server yields a zero delta.
func (c *Collector) Sync(ctx context.Context, progress Progress) (library.SyncDelta, error) {
	var delta library.SyncDelta

	sections, err := c.inventory.Sections(ctx)
	if err != nil {
		return delta, fmt.Errorf("list sections: %w", err)
	}

	watchByKey := c.loadWatchHistory(ctx)

	type sectionItems struct {
		section plex.Section
		items   []plex.Item
	}
	var inventory []sectionItems
	total := 0
	for _, section := range sections {
		items, err := c.inventory.Items(ctx, section.Key)
		if err != nil {
			return delta, fmt.Errorf("list section %q: %w", section.Title, err)
		}
		inventory = append(inventory, sectionItems{section: section, items: items})
		total += len(items)
	}

	keep := make(map[string]struct{}, total)
	processed := 0
	for _, si := range inventory {
		kind := library.KindMovie
		if si.section.Type == "show" {
			kind = library.KindShow
		}
		for _, remote := range si.items {
			if progress != nil && progress.StopRequested(ctx) {
				return delta, context.Canceled
			}
			if ctx.Err() != nil {
				return delta, ctx.Err()
			}

			created, changed, err := c.syncItem(ctx, kind, remote, watchByKey)
			if err != nil {
				return delta, err
			}
			keep[remote.RatingKey] = struct{}{}
			if created {
				delta.Added++
			} else if changed {
				delta.Updated++
			}

			processed++
			if progress != nil && total > 0 {
				progress.Report(ctx, float64(processed)/float64(total)*100, remote.Title)
			}
		}
	}

	removed, err := c.store.MarkItemsRemoved(ctx, keep)
	if err != nil {
		return delta, fmt.Errorf("mark removed items: %w", err)
	}
	delta.Removed = removed

	if err := c.syncCollections(ctx, sections); err != nil {
		return delta, err
	}

	c.logger.Info("library sync finished",
		logging.Int("added", delta.Added),
		logging.Int("updated", delta.Updated),
		logging.Int("removed", delta.Removed),
		logging.Int("total", total))
	return delta, nil
}

// loadWatchHistory fetches play activity keyed by rating key. The history
// service is advisory; failures degrade to a sync without watch data.
func (c *Collector) loadWatchHistory(ctx context.Context) map[string]services.ExternalItem {
	if c.watch == nil {
		return nil
	}
	entries, err := c.watch.ListItems(ctx)
	if err != nil {
		c.logger.Warn("watch history unavailable, syncing without it", logging.Error(err))
		return nil
	}
	byKey := make(map[string]services.ExternalItem, len(entries))
	for _, entry := range entries {
		byKey[entry.ID] = entry
	}
	return byKey
}

func (c *Collector) syncItem(ctx context.Context, kind library.MediaKind, remote plex.Item, watch map[string]services.ExternalItem) (created, changed bool, err error) {
	item := &library.Item{
		RatingKey: remote.RatingKey,
		Title:     remote.Title,
		Year:      remote.Year,
		Kind:      kind,
		TMDBID:    remote.TMDBID,
		TVDBID:    remote.TVDBID,
		IMDBID:    remote.IMDBID,
		Genres:    remote.Genres,
	}
	existing, loadErr := c.store.GetItemByRatingKey(ctx, remote.RatingKey)
	if loadErr == nil {
		// The inventory never carries critic ratings; those arrive later from
		// the review merge and must survive every resync.
		item.IMDBRating = existing.IMDBRating
		item.RTRating = existing.RTRating
	}
	if entry, ok := watch[remote.RatingKey]; ok {
		item.Watched = entry.Watched
		if entry.LastWatchedUnix > 0 {
			at := time.Unix(entry.LastWatchedUnix, 0).UTC()
			item.LastWatchedAt = &at
		}
	} else if loadErr == nil {
		// No fresh history for this item; keep what was recorded before.
		item.Watched = existing.Watched
		item.LastWatchedAt = existing.LastWatchedAt
	}

	created, changed, err = c.store.UpsertItem(ctx, item)
	if err != nil {
		return false, false, fmt.Errorf("upsert item %q: %w", remote.Title, err)
	}

	keepPaths := make(map[string]struct{}, len(remote.Files))
	for _, remoteFile := range remote.Files {
		file := &library.MediaFile{
			ItemID:            item.ID,
			Path:              remoteFile.Path,
			SizeBytes:         remoteFile.SizeBytes,
			Container:         remoteFile.Container,
			VideoCodec:        remoteFile.VideoCodec,
			Resolution:        remoteFile.Resolution,
			DurationSeconds:   remoteFile.DurationSeconds,
			Bitrate:           remoteFile.Bitrate,
			HDR:               remoteFile.HDR,
			AudioLanguages:    remoteFile.AudioLanguages,
			SubtitleLanguages: remoteFile.SubtitleLanguages,
		}
		fileCreated, fileChanged, err := c.store.UpsertFile(ctx, file)
		if err != nil {
			return false, false, fmt.Errorf("upsert file %q: %w", remoteFile.Path, err)
		}
		if fileCreated || fileChanged {
			changed = true
		}
		keepPaths[remoteFile.Path] = struct{}{}
	}
	removedFiles, err := c.store.MarkFilesRemoved(ctx, item.ID, keepPaths)
	if err != nil {
		return false, false, fmt.Errorf("mark removed files for %q: %w", remote.Title, err)
	}
	if removedFiles > 0 {
		changed = true
	}
	return created, changed, nil
}

func (c *Collector) syncCollections(ctx context.Context, sections []plex.Section) error {
	for _, section := range sections {
		entries, err := c.inventory.Collections(ctx, section.Key)
		if err != nil {
			return fmt.Errorf("list collections for %q: %w", section.Title, err)
		}
		for _, entry := range entries {
			col := &library.Collection{
				RatingKey: entry.RatingKey,
				Title:     entry.Title,
				ItemCount: len(entry.Members),
			}
			for _, member := range entry.Members {
				item, err := c.store.GetItemByRatingKey(ctx, member)
				if err != nil {
					// Member not in a synced section; skip it.
					continue
				}
				col.ItemIDs = append(col.ItemIDs, item.ID)
			}
			if err := c.store.ReplaceCollection(ctx, col); err != nil {
				return fmt.Errorf("replace collection %q: %w", entry.Title, err)
			}
		}
	}
	return nil
}
