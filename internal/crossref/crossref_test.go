package crossref_test

import (
	"context"
	"fmt"
	"testing"

	"caretaker/internal/crossref"
	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/services"
	"caretaker/internal/testsupport"
)

type fakeIntegration struct {
	name     string
	items    []services.ExternalItem
	err      error
	failures int
	calls    int
}

func (f *fakeIntegration) Name() string { return f.name }

func (f *fakeIntegration) TestConnection(ctx context.Context) services.ConnectionStatus {
	return services.ConnectionStatus{Success: f.err == nil}
}

func (f *fakeIntegration) ListItems(ctx context.Context) ([]services.ExternalItem, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, services.Wrap(services.ErrTransient, f.name, "list", "flaky", nil)
	}
	return f.items, f.err
}

func (f *fakeIntegration) Lookup(ctx context.Context, externalID string) (*services.ExternalItem, error) {
	for i := range f.items {
		if f.items[i].ID == externalID {
			return &f.items[i], nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, f.name, "lookup", externalID, nil)
}

func seedMovie(t *testing.T, store *library.Store, ratingKey, title string, tmdbID int64) *library.Item {
	t.Helper()
	return testsupport.SeedItem(t, store, &library.Item{
		RatingKey: ratingKey,
		Title:     title,
		Year:      2000,
		Kind:      library.KindMovie,
		TMDBID:    tmdbID,
	})
}

func TestSyncManagersRecordsMismatch(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	tracked := seedMovie(t, store, "m1", "Tracked", 100)
	orphan := seedMovie(t, store, "m2", "Orphan", 200)

	radarr := &fakeIntegration{name: "radarr", items: []services.ExternalItem{
		{ID: "1", Title: "Tracked", Year: 2000, TMDBID: 100, IMDBRating: 7.5, RTRating: 80},
	}}
	matcher := crossref.NewMatcher(store, []crossref.Entry{
		{Integration: radarr, Capabilities: []crossref.Capability{crossref.CapabilityMovies}},
	}, crossref.Options{}, logging.NewNop())

	if err := matcher.SyncManagers(context.Background(), 1, nil); err != nil {
		t.Fatalf("SyncManagers: %v", err)
	}

	issues, err := store.ListIssues(context.Background(), library.ListIssuesOptions{
		State: library.IssueOpen, Type: library.IssueServiceMismatch,
	})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if len(issues) != 1 || issues[0].ItemID != orphan.ID {
		t.Fatalf("expected one mismatch issue for the orphan, got %+v", issues)
	}

	merged, err := store.GetItem(context.Background(), tracked.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if merged.IMDBRating != 7.5 || merged.RTRating != 80 {
		t.Fatalf("expected ratings merged, got %+v", merged)
	}
}

func TestSyncManagersResolvesFixedMismatch(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	item := seedMovie(t, store, "m1", "Late Arrival", 100)

	radarr := &fakeIntegration{name: "radarr"}
	matcher := crossref.NewMatcher(store, []crossref.Entry{
		{Integration: radarr, Capabilities: []crossref.Capability{crossref.CapabilityMovies}},
	}, crossref.Options{}, logging.NewNop())

	if err := matcher.SyncManagers(context.Background(), 1, nil); err != nil {
		t.Fatalf("first SyncManagers: %v", err)
	}

	radarr.items = []services.ExternalItem{{ID: "1", Title: "Late Arrival", Year: 2000, TMDBID: 100}}
	if err := matcher.SyncManagers(context.Background(), 2, nil); err != nil {
		t.Fatalf("second SyncManagers: %v", err)
	}

	open, err := store.ListIssues(context.Background(), library.ListIssuesOptions{
		State: library.IssueOpen, Type: library.IssueServiceMismatch, ItemID: item.ID,
	})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected mismatch resolved once tracked, got %+v", open)
	}
}

func TestSyncManagersRetriesTransientFailure(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	item := seedMovie(t, store, "m1", "Flaky Lookup", 100)

	radarr := &fakeIntegration{
		name:     "radarr",
		failures: 1,
		items: []services.ExternalItem{
			{ID: "1", Title: "Flaky Lookup", Year: 2000, TMDBID: 100, IMDBRating: 6.9},
		},
	}
	matcher := crossref.NewMatcher(store, []crossref.Entry{
		{Integration: radarr, Capabilities: []crossref.Capability{crossref.CapabilityMovies}},
	}, crossref.Options{RetryAttempts: 3}, logging.NewNop())

	if err := matcher.SyncManagers(context.Background(), 1, nil); err != nil {
		t.Fatalf("SyncManagers: %v", err)
	}
	if radarr.calls != 2 {
		t.Fatalf("expected the transient failure retried, got %d calls", radarr.calls)
	}

	issues, err := store.ListIssues(context.Background(), library.ListIssuesOptions{State: library.IssueOpen})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("expected no issues after a recovered retry, got %+v", issues)
	}
	merged, err := store.GetItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if merged.IMDBRating != 6.9 {
		t.Fatalf("expected ratings merged after retry, got %+v", merged)
	}
}

func TestSyncManagersRecordsScanErrorsOnExhaustion(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	item := seedMovie(t, store, "m1", "Unchecked", 100)

	radarr := &fakeIntegration{
		name: "radarr",
		err:  services.Wrap(services.ErrUnavailable, "radarr", "list", "connection refused", nil),
	}
	matcher := crossref.NewMatcher(store, []crossref.Entry{
		{Integration: radarr, Capabilities: []crossref.Capability{crossref.CapabilityMovies}},
	}, crossref.Options{RetryAttempts: 2}, logging.NewNop())

	if err := matcher.SyncManagers(context.Background(), 1, nil); err != nil {
		t.Fatalf("unreachable service must not fail the phase: %v", err)
	}
	if radarr.calls != 2 {
		t.Fatalf("expected exhausted retries, got %d calls", radarr.calls)
	}

	issues, err := store.ListIssues(context.Background(), library.ListIssuesOptions{
		State: library.IssueOpen, Type: library.IssueScanError,
	})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if len(issues) != 1 || issues[0].ItemID != item.ID {
		t.Fatalf("expected a scan error on the unchecked item, got %+v", issues)
	}

	mismatches, err := store.ListIssues(context.Background(), library.ListIssuesOptions{
		State: library.IssueOpen, Type: library.IssueServiceMismatch,
	})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if len(mismatches) != 0 {
		t.Fatalf("expected no mismatch issues from a skipped sub-step, got %+v", mismatches)
	}
}

func TestSyncManagersFansOutAcrossWorkers(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	var external []services.ExternalItem
	ids := make([]int64, 0, 8)
	for i := 0; i < 8; i++ {
		key := fmt.Sprintf("m%d", i)
		tmdb := int64(100 + i)
		item := seedMovie(t, store, key, fmt.Sprintf("Title %d", i), tmdb)
		ids = append(ids, item.ID)
		external = append(external, services.ExternalItem{
			ID: key, Title: item.Title, Year: 2000, TMDBID: tmdb, IMDBRating: 7.0,
		})
	}

	radarr := &fakeIntegration{name: "radarr", items: external}
	matcher := crossref.NewMatcher(store, []crossref.Entry{
		{Integration: radarr, Capabilities: []crossref.Capability{crossref.CapabilityMovies}},
	}, crossref.Options{Workers: 4}, logging.NewNop())

	if err := matcher.SyncManagers(context.Background(), 1, nil); err != nil {
		t.Fatalf("SyncManagers: %v", err)
	}

	for _, id := range ids {
		got, err := store.GetItem(context.Background(), id)
		if err != nil {
			t.Fatalf("GetItem: %v", err)
		}
		if got.IMDBRating != 7.0 {
			t.Fatalf("expected ratings merged for every item, missing on %+v", got)
		}
	}
}

func TestSyncRequestsManagesProtection(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	requested := seedMovie(t, store, "m1", "Wanted", 100)
	manual := seedMovie(t, store, "m2", "Cult Classic", 200)
	if err := store.SetProtection(context.Background(), manual.ID, true, "curator favorite"); err != nil {
		t.Fatalf("SetProtection: %v", err)
	}

	overseerr := &fakeIntegration{name: "overseerr", items: []services.ExternalItem{
		{ID: "r1", Title: "Wanted", Year: 2000, TMDBID: 100, Requested: true},
	}}
	matcher := crossref.NewMatcher(store, []crossref.Entry{
		{Integration: overseerr, Capabilities: []crossref.Capability{crossref.CapabilityRequests}},
	}, crossref.Options{}, logging.NewNop())

	if err := matcher.SyncRequests(context.Background(), 1, nil); err != nil {
		t.Fatalf("SyncRequests: %v", err)
	}

	got, err := store.GetItem(context.Background(), requested.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if !got.Protected {
		t.Fatal("expected requested item protected")
	}

	// The request is withdrawn: request-driven protection clears, manual stays.
	overseerr.items = nil
	if err := matcher.SyncRequests(context.Background(), 2, nil); err != nil {
		t.Fatalf("second SyncRequests: %v", err)
	}
	got, err = store.GetItem(context.Background(), requested.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Protected {
		t.Fatal("expected request-driven protection cleared")
	}
	kept, err := store.GetItem(context.Background(), manual.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if !kept.Protected || kept.ProtectionReason != "curator favorite" {
		t.Fatalf("expected manual protection untouched, got %+v", kept)
	}
}

func TestSyncSubtitlesRecordsMissingLanguages(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	item := seedMovie(t, store, "m1", "Subtitled", 100)

	bazarr := &fakeIntegration{name: "bazarr", items: []services.ExternalItem{
		{ID: "b1", Title: "Subtitled", Year: 2000, TMDBID: 100, SubtitleLanguages: []string{"en"}},
	}}
	matcher := crossref.NewMatcher(store, []crossref.Entry{
		{Integration: bazarr, Capabilities: []crossref.Capability{crossref.CapabilitySubtitles}},
	}, crossref.Options{RequiredSubtitles: []string{"en", "de"}}, logging.NewNop())

	if err := matcher.SyncSubtitles(context.Background(), 1, nil); err != nil {
		t.Fatalf("SyncSubtitles: %v", err)
	}

	issues, err := store.ListIssues(context.Background(), library.ListIssuesOptions{
		State: library.IssueOpen, Type: library.IssueMissingSubtitleLanguage, ItemID: item.ID,
	})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("expected a missing-language issue, got %+v", issues)
	}
}
