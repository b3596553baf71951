package collector_test

import (
	"context"
	"testing"

	"caretaker/internal/collector"
	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/services"
	"caretaker/internal/services/plex"
	"caretaker/internal/testsupport"
)

type fakeInventory struct {
	sections    []plex.Section
	items       map[string][]plex.Item
	collections map[string][]plex.CollectionEntry
}

func (f *fakeInventory) Sections(ctx context.Context) ([]plex.Section, error) {
	return f.sections, nil
}

func (f *fakeInventory) Items(ctx context.Context, sectionKey string) ([]plex.Item, error) {
	return f.items[sectionKey], nil
}

func (f *fakeInventory) Collections(ctx context.Context, sectionKey string) ([]plex.CollectionEntry, error) {
	return f.collections[sectionKey], nil
}

type fakeWatch struct {
	entries []services.ExternalItem
	err     error
}

func (f *fakeWatch) ListItems(ctx context.Context) ([]services.ExternalItem, error) {
	return f.entries, f.err
}

func movieInventory() *fakeInventory {
	return &fakeInventory{
		sections: []plex.Section{{Key: "1", Title: "Movies", Type: "movie"}},
		items: map[string][]plex.Item{
			"1": {
				{
					RatingKey: "m1", Title: "Heat", Year: 1995, TMDBID: 949,
					Genres: []string{"Crime"},
					Files: []plex.File{{
						Path: "/media/movies/Heat (1995)/Heat.mkv", SizeBytes: 8 << 30,
						Container: "mkv", VideoCodec: "hevc", Resolution: "1080",
						DurationSeconds: 10200, Bitrate: 12000,
						AudioLanguages: []string{"en"},
					}},
				},
				{
					RatingKey: "m2", Title: "Ronin", Year: 1998, TMDBID: 8195,
					Files: []plex.File{{
						Path: "/media/movies/Ronin (1998)/Ronin.mkv", SizeBytes: 6 << 30,
						Container: "mkv", VideoCodec: "h264", Resolution: "1080",
					}},
				},
			},
		},
		collections: map[string][]plex.CollectionEntry{
			"1": {{RatingKey: "c1", Title: "Heist Films", Members: []string{"m1", "m2"}}},
		},
	}
}

func TestSyncPopulatesInventory(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	col := collector.New(store, movieInventory(), nil, logging.NewNop())

	delta, err := col.Sync(context.Background(), nil)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if delta.Added != 2 || delta.Updated != 0 || delta.Removed != 0 {
		t.Fatalf("unexpected delta: %+v", delta)
	}

	item, err := store.GetItemByRatingKey(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetItemByRatingKey: %v", err)
	}
	if item.Title != "Heat" || item.TMDBID != 949 || len(item.Files) != 1 {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.Files[0].VideoCodec != "hevc" {
		t.Fatalf("unexpected file: %+v", item.Files[0])
	}

	collections, err := store.ListCollections(context.Background())
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(collections) != 1 || len(collections[0].ItemIDs) != 2 {
		t.Fatalf("unexpected collections: %+v", collections)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	inv := movieInventory()
	col := collector.New(store, inv, nil, logging.NewNop())

	if _, err := col.Sync(context.Background(), nil); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	delta, err := col.Sync(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if !delta.IsZero() {
		t.Fatalf("expected zero delta on unchanged inventory, got %+v", delta)
	}
}

func TestSyncPreservesMergedRatings(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	col := collector.New(store, movieInventory(), nil, logging.NewNop())

	if _, err := col.Sync(context.Background(), nil); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	item, err := store.GetItemByRatingKey(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetItemByRatingKey: %v", err)
	}
	item.IMDBRating = 8.3
	item.RTRating = 87
	if _, _, err := store.UpsertItem(context.Background(), item); err != nil {
		t.Fatalf("UpsertItem: %v", err)
	}

	delta, err := col.Sync(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if !delta.IsZero() {
		t.Fatalf("expected zero delta when only ratings are stored locally, got %+v", delta)
	}

	var reloaded *library.Item
	if reloaded, err = store.GetItemByRatingKey(context.Background(), "m1"); err != nil {
		t.Fatalf("GetItemByRatingKey after resync: %v", err)
	}
	if reloaded.IMDBRating != 8.3 || reloaded.RTRating != 87 {
		t.Fatalf("ratings lost on resync: imdb=%v rt=%v", reloaded.IMDBRating, reloaded.RTRating)
	}
}

func TestSyncKeepsCollectionMembershipOnResync(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	col := collector.New(store, movieInventory(), nil, logging.NewNop())

	if _, err := col.Sync(context.Background(), nil); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if _, err := col.Sync(context.Background(), nil); err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	collections, err := store.ListCollections(context.Background())
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(collections) != 1 {
		t.Fatalf("expected one collection, got %+v", collections)
	}
	if len(collections[0].ItemIDs) != 2 {
		t.Fatalf("membership lost on resync: %+v", collections[0])
	}
}

func TestSyncSoftDeletesMissingItems(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	inv := movieInventory()
	col := collector.New(store, inv, nil, logging.NewNop())

	if _, err := col.Sync(context.Background(), nil); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	inv.items["1"] = inv.items["1"][:1]
	delta, err := col.Sync(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if delta.Removed != 1 {
		t.Fatalf("expected one removal, got %+v", delta)
	}

	gone, err := store.GetItemByRatingKey(context.Background(), "m2")
	if err != nil {
		t.Fatalf("GetItemByRatingKey: %v", err)
	}
	if gone.Present {
		t.Fatal("expected soft delete, item still present")
	}
}

func TestSyncDetectsFileChanges(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	inv := movieInventory()
	col := collector.New(store, inv, nil, logging.NewNop())

	if _, err := col.Sync(context.Background(), nil); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	inv.items["1"][0].Files[0].SizeBytes = 12 << 30
	delta, err := col.Sync(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if delta.Updated != 1 || delta.Added != 0 {
		t.Fatalf("expected one update, got %+v", delta)
	}
}

func TestSyncMergesWatchHistory(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	watch := &fakeWatch{entries: []services.ExternalItem{
		{ID: "m1", Watched: true, LastWatchedUnix: 1700000000},
	}}
	col := collector.New(store, movieInventory(), watch, logging.NewNop())

	if _, err := col.Sync(context.Background(), nil); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	item, err := store.GetItemByRatingKey(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetItemByRatingKey: %v", err)
	}
	if !item.Watched || item.LastWatchedAt == nil {
		t.Fatalf("expected watch data merged, got %+v", item)
	}
	if item.LastWatchedAt.Unix() != 1700000000 {
		t.Fatalf("unexpected last watched: %v", item.LastWatchedAt)
	}
}

func TestSyncSurvivesWatchHistoryOutage(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	watch := &fakeWatch{err: services.Wrap(services.ErrUnavailable, "tautulli", "list", "down", nil)}
	col := collector.New(store, movieInventory(), watch, logging.NewNop())

	delta, err := col.Sync(context.Background(), nil)
	if err != nil {
		t.Fatalf("Sync should degrade without watch history: %v", err)
	}
	if delta.Added != 2 {
		t.Fatalf("unexpected delta: %+v", delta)
	}
}
