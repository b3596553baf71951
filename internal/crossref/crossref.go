// Package crossref reconciles library items against the management services.
// Each integration is registered in a capability table; the phases below pick
// integrations by capability instead of by concrete type. An unconfigured
// capability is skipped silently, an unreachable service is logged and skipped
// without failing the phase.
package crossref

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/scan"
	"caretaker/internal/services"
)

// Capability names one concern an integration can serve.
type Capability string

const (
	// CapabilityMovies cross-references movie items (radarr).
	CapabilityMovies Capability = "movies"
	// CapabilityShows cross-references show items (sonarr).
	CapabilityShows Capability = "shows"
	// CapabilityRequests supplies request-driven protection flags (overseerr).
	CapabilityRequests Capability = "requests"
	// CapabilitySubtitles supplies external subtitle coverage (bazarr).
	CapabilitySubtitles Capability = "subtitles"
)

// Entry binds one integration to the capabilities it serves.
type Entry struct {
	Integration  services.Integration
	Capabilities []Capability
}

// Progress receives item-level updates during a cross-reference pass.
type Progress interface {
	Report(ctx context.Context, percent float64, currentItem string)
	StopRequested(ctx context.Context) bool
}

// Options tunes how a matcher talks to the integrations.
type Options struct {
	// RequiredSubtitles is the language list the subtitle coverage phase
	// checks against. Empty disables the phase.
	RequiredSubtitles []string
	// RetryAttempts bounds how often a transient service failure is retried
	// before the sub-step degrades to recorded scan errors.
	RetryAttempts int
	// Workers bounds per-item parallelism within a sub-step.
	Workers int
}

// Matcher drives the service sync, request sync, and subtitle coverage phases.
type Matcher struct {
	store             *library.Store
	logger            *slog.Logger
	entries           []Entry
	requiredSubtitles []string
	retryAttempts     int
	workers           int
}

// NewMatcher builds a matcher over the registered integrations.
func NewMatcher(store *library.Store, entries []Entry, opts Options, logger *slog.Logger) *Matcher {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Matcher{
		store:             store,
		logger:            logging.NewComponentLogger(logger, "crossref"),
		entries:           entries,
		requiredSubtitles: opts.RequiredSubtitles,
		retryAttempts:     opts.RetryAttempts,
		workers:           opts.Workers,
	}
}

func (m *Matcher) integrationsFor(capability Capability) []services.Integration {
	var matched []services.Integration
	for _, entry := range m.entries {
		for _, c := range entry.Capabilities {
			if c == capability {
				matched = append(matched, entry.Integration)
				break
			}
		}
	}
	return matched
}

// skippable reports whether a service failure should degrade to a logged
// warning instead of failing the phase.
func skippable(err error) bool {
	return services.IsRetryable(err) || strings.Contains(err.Error(), "circuit breaker")
}

// listWithRetry fetches an integration's inventory, retrying transient
// failures with bounded backoff before giving up.
func (m *Matcher) listWithRetry(ctx context.Context, integration services.Integration) ([]services.ExternalItem, error) {
	var external []services.ExternalItem
	err := scan.RetryItem(ctx, m.retryAttempts, func() error {
		var listErr error
		external, listErr = integration.ListItems(ctx)
		return listErr
	})
	return external, err
}

// markUnreachable files a scan_error against every item the skipped sub-step
// would have checked. The outage stays visible in the issue list and resolves
// through the scan watermark once the service answers again.
func (m *Matcher) markUnreachable(ctx context.Context, scanID int64, kind library.MediaKind, integration services.Integration, cause error) error {
	m.logger.Warn("service unreachable after retries, skipping sub-step",
		logging.String("service", integration.Name()),
		logging.Error(cause))
	items, err := m.store.ListItems(ctx, library.ListItemsOptions{Kind: kind, PresentOnly: true})
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		issue := &library.Issue{
			ItemID:      item.ID,
			Type:        library.IssueScanError,
			Severity:    library.SeverityWarning,
			Description: fmt.Sprintf("%s unreachable, %q not cross-referenced: %v", integration.Name(), item.Title, cause),
			ScanID:      scanID,
		}
		if err := m.store.RecordIssue(ctx, issue); err != nil {
			return fmt.Errorf("record scan error: %w", err)
		}
	}
	return nil
}

// forEachItem fans per-item work across the service worker pool with
// progress reporting and cooperative stop checks.
func (m *Matcher) forEachItem(ctx context.Context, items []*library.Item, progress Progress, visit func(ctx context.Context, item *library.Item) error) error {
	var (
		done     atomic.Int64
		mu       sync.Mutex
		firstErr error
	)
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := scan.ForEachItem(poolCtx, m.workers, items, func(taskCtx context.Context, item *library.Item) {
		if progress != nil && progress.StopRequested(taskCtx) {
			cancel()
			return
		}
		if visitErr := visit(taskCtx, item); visitErr != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = visitErr
			}
			mu.Unlock()
			cancel()
			return
		}
		completed := done.Add(1)
		if progress != nil && len(items) > 0 {
			progress.Report(taskCtx, float64(completed)/float64(len(items))*100, item.Title)
		}
	})

	if firstErr != nil {
		return firstErr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if progress != nil && progress.StopRequested(ctx) {
		return context.Canceled
	}
	return nil
}

// SyncManagers cross-references items against the movie and show managers:
// ratings are merged in, and items the responsible manager does not track get
// a service_mismatch issue.
func (m *Matcher) SyncManagers(ctx context.Context, scanID int64, progress Progress) error {
	steps := []struct {
		capability Capability
		kind       library.MediaKind
	}{
		{CapabilityMovies, library.KindMovie},
		{CapabilityShows, library.KindShow},
	}

	for _, step := range steps {
		integrations := m.integrationsFor(step.capability)
		if len(integrations) == 0 {
			continue
		}
		recordedMismatch := false
		for _, integration := range integrations {
			recorded, err := m.syncManager(ctx, scanID, integration, step.kind, progress)
			if err != nil {
				return err
			}
			recordedMismatch = recordedMismatch || recorded
		}
		// Only the kind whose manager actually answered is re-verified;
		// the other kind's mismatches must stay open.
		if recordedMismatch {
			if _, err := m.store.ClearStaleIssuesForKind(ctx, scanID, step.kind,
				[]library.IssueType{library.IssueServiceMismatch}); err != nil {
				return fmt.Errorf("clear stale mismatch issues: %w", err)
			}
		}
	}
	return nil
}

func (m *Matcher) syncManager(ctx context.Context, scanID int64, integration services.Integration, kind library.MediaKind, progress Progress) (bool, error) {
	external, err := m.listWithRetry(ctx, integration)
	if err != nil {
		if skippable(err) {
			return false, m.markUnreachable(ctx, scanID, kind, integration, err)
		}
		return false, fmt.Errorf("%s list: %w", integration.Name(), err)
	}

	index := indexExternal(external)
	items, err := m.store.ListItems(ctx, library.ListItemsOptions{Kind: kind, PresentOnly: true})
	if err != nil {
		return false, fmt.Errorf("list items: %w", err)
	}

	err = m.forEachItem(ctx, items, progress, func(taskCtx context.Context, item *library.Item) error {
		match := index.find(item)
		if match == nil {
			issue := &library.Issue{
				ItemID:      item.ID,
				Type:        library.IssueServiceMismatch,
				Severity:    library.SeverityWarning,
				Description: fmt.Sprintf("%q is not tracked by %s", item.Title, integration.Name()),
				ScanID:      scanID,
			}
			if err := m.store.RecordIssue(taskCtx, issue); err != nil {
				return fmt.Errorf("record mismatch issue: %w", err)
			}
			return nil
		}
		if match.IMDBRating != item.IMDBRating || match.RTRating != item.RTRating {
			item.IMDBRating = match.IMDBRating
			item.RTRating = match.RTRating
			if _, _, err := m.store.UpsertItem(taskCtx, item); err != nil {
				return fmt.Errorf("merge ratings for %q: %w", item.Title, err)
			}
		}
		return nil
	})
	return true, err
}

// Protection reasons managed by request sync. Manually set protections use
// other reasons and are never cleared here.
const (
	reasonRequested   = "request: actively requested"
	reasonDownloading = "request: download in progress"
)

// SyncRequests flags items with an active request or in-flight download as
// protected, and clears request-driven protection that no longer applies.
func (m *Matcher) SyncRequests(ctx context.Context, scanID int64, progress Progress) error {
	integrations := m.integrationsFor(CapabilityRequests)
	if len(integrations) == 0 {
		return nil
	}

	for _, integration := range integrations {
		external, err := m.listWithRetry(ctx, integration)
		if err != nil {
			if skippable(err) {
				if err := m.markUnreachable(ctx, scanID, "", integration, err); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("%s list: %w", integration.Name(), err)
		}

		index := indexExternal(external)
		items, err := m.store.ListItems(ctx, library.ListItemsOptions{PresentOnly: true})
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}

		err = m.forEachItem(ctx, items, progress, func(taskCtx context.Context, item *library.Item) error {
			match := index.find(item)
			var updateErr error
			switch {
			case match != nil && match.Downloading:
				updateErr = m.protect(taskCtx, item, reasonDownloading)
			case match != nil && match.Requested:
				updateErr = m.protect(taskCtx, item, reasonRequested)
			case item.Protected && strings.HasPrefix(item.ProtectionReason, "request:"):
				updateErr = m.store.SetProtection(taskCtx, item.ID, false, "")
			}
			if updateErr != nil {
				return fmt.Errorf("update protection for %q: %w", item.Title, updateErr)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Matcher) protect(ctx context.Context, item *library.Item, reason string) error {
	if item.Protected && item.ProtectionReason == reason {
		return nil
	}
	return m.store.SetProtection(ctx, item.ID, true, reason)
}

// SyncSubtitles compares external subtitle coverage against the required
// language list and files missing_subtitle_language issues.
func (m *Matcher) SyncSubtitles(ctx context.Context, scanID int64, progress Progress) error {
	if len(m.requiredSubtitles) == 0 {
		return nil
	}
	integrations := m.integrationsFor(CapabilitySubtitles)
	if len(integrations) == 0 {
		return nil
	}

	var recorded atomic.Bool
	for _, integration := range integrations {
		external, err := m.listWithRetry(ctx, integration)
		if err != nil {
			if skippable(err) {
				if err := m.markUnreachable(ctx, scanID, library.KindMovie, integration, err); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("%s list: %w", integration.Name(), err)
		}

		index := indexExternal(external)
		items, err := m.store.ListItems(ctx, library.ListItemsOptions{Kind: library.KindMovie, PresentOnly: true})
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}

		err = m.forEachItem(ctx, items, progress, func(taskCtx context.Context, item *library.Item) error {
			match := index.find(item)
			if match == nil {
				return nil
			}
			missing := missingLanguages(m.requiredSubtitles, match.SubtitleLanguages)
			if len(missing) > 0 {
				issue := &library.Issue{
					ItemID:      item.ID,
					Type:        library.IssueMissingSubtitleLanguage,
					Severity:    library.SeverityWarning,
					Description: fmt.Sprintf("%q has no subtitles for: %s", item.Title, strings.Join(missing, ", ")),
					AutoFixable: true,
					ScanID:      scanID,
				}
				if err := m.store.RecordIssue(taskCtx, issue); err != nil {
					return fmt.Errorf("record subtitle issue: %w", err)
				}
			}
			recorded.Store(true)
			return nil
		})
		if err != nil {
			return err
		}
	}

	if recorded.Load() {
		if _, err := m.store.ClearStaleIssuesForKind(ctx, scanID, library.KindMovie,
			[]library.IssueType{library.IssueMissingSubtitleLanguage}); err != nil {
			return fmt.Errorf("clear stale subtitle issues: %w", err)
		}
	}
	return nil
}

func missingLanguages(required, have []string) []string {
	haveSet := make(map[string]struct{}, len(have))
	for _, lang := range have {
		haveSet[strings.ToLower(lang)] = struct{}{}
	}
	var missing []string
	for _, lang := range required {
		if _, ok := haveSet[strings.ToLower(lang)]; !ok {
			missing = append(missing, lang)
		}
	}
	return missing
}

// externalIndex matches external records to library items by external id
// first, then by title and year.
type externalIndex struct {
	byTMDB      map[int64]*services.ExternalItem
	byTVDB      map[int64]*services.ExternalItem
	byIMDB      map[string]*services.ExternalItem
	byTitleYear map[string]*services.ExternalItem
}

func indexExternal(items []services.ExternalItem) *externalIndex {
	idx := &externalIndex{
		byTMDB:      make(map[int64]*services.ExternalItem),
		byTVDB:      make(map[int64]*services.ExternalItem),
		byIMDB:      make(map[string]*services.ExternalItem),
		byTitleYear: make(map[string]*services.ExternalItem),
	}
	for i := range items {
		item := &items[i]
		if item.TMDBID != 0 {
			idx.byTMDB[item.TMDBID] = item
		}
		if item.TVDBID != 0 {
			idx.byTVDB[item.TVDBID] = item
		}
		if item.IMDBID != "" {
			idx.byIMDB[item.IMDBID] = item
		}
		idx.byTitleYear[titleYearKey(item.Title, item.Year)] = item
	}
	return idx
}

func (idx *externalIndex) find(item *library.Item) *services.ExternalItem {
	if item.TMDBID != 0 {
		if match, ok := idx.byTMDB[item.TMDBID]; ok {
			return match
		}
	}
	if item.TVDBID != 0 {
		if match, ok := idx.byTVDB[item.TVDBID]; ok {
			return match
		}
	}
	if item.IMDBID != "" {
		if match, ok := idx.byIMDB[item.IMDBID]; ok {
			return match
		}
	}
	return idx.byTitleYear[titleYearKey(item.Title, item.Year)]
}

func titleYearKey(title string, year int) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + strconv.Itoa(year)
}
