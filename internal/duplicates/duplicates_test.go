package duplicates_test

import (
	"context"
	"fmt"
	"testing"

	"caretaker/internal/duplicates"
	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/testsupport"
)

func newEngine(t *testing.T) (*duplicates.Engine, *library.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return duplicates.NewEngine(store, cfg, logging.NewNop()), store
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

// With the default 1080 tier (10 GB/hr max) and 1.5 ceiling factor, a 2400s
// file has an expected ceiling of 10 GB.
const fortyMinutes = 2400

func TestRankingPrefersResolutionThenCeiling(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	item := seedMovie(t, store, "m1", "Triple", 100)

	fileA := testsupport.SeedFile(t, store, &library.MediaFile{
		ItemID: item.ID, Path: "/media/a.mkv", SizeBytes: 8 << 30,
		Resolution: "1080", VideoCodec: "h264", DurationSeconds: fortyMinutes,
	})
	testsupport.SeedFile(t, store, &library.MediaFile{
		ItemID: item.ID, Path: "/media/b.mkv", SizeBytes: 4 << 30,
		Resolution: "720", VideoCodec: "h264", DurationSeconds: fortyMinutes,
	})
	testsupport.SeedFile(t, store, &library.MediaFile{
		ItemID: item.ID, Path: "/media/c.mkv", SizeBytes: 15 << 30,
		Resolution: "1080", VideoCodec: "h264", DurationSeconds: fortyMinutes,
	})

	count, err := engine.Analyze(ctx, 1, library.KindMovie, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one group, got %d", count)
	}

	groups, err := store.ListDuplicateGroups(ctx)
	if err != nil {
		t.Fatalf("ListDuplicateGroups: %v", err)
	}
	group := groups[0]
	if group.KeepFileID != fileA.ID {
		t.Fatalf("expected the within-ceiling 1080p file kept, got file %d", group.KeepFileID)
	}
	wantReclaim := int64(4<<30 + 15<<30)
	if group.ReclaimableBytes != wantReclaim {
		t.Fatalf("expected reclaimable %d, got %d", wantReclaim, group.ReclaimableBytes)
	}
}

func TestRankingCodecTieBreak(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	item := seedMovie(t, store, "m1", "Codec Pair", 100)

	hevc := testsupport.SeedFile(t, store, &library.MediaFile{
		ItemID: item.ID, Path: "/media/hevc.mkv", SizeBytes: 6 << 30,
		Resolution: "1080", VideoCodec: "hevc", DurationSeconds: fortyMinutes,
	})
	testsupport.SeedFile(t, store, &library.MediaFile{
		ItemID: item.ID, Path: "/media/h264.mkv", SizeBytes: 6 << 30,
		Resolution: "1080", VideoCodec: "h264", DurationSeconds: fortyMinutes,
	})

	if _, err := engine.Analyze(ctx, 1, library.KindMovie, nil); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	groups, err := store.ListDuplicateGroups(ctx)
	if err != nil {
		t.Fatalf("ListDuplicateGroups: %v", err)
	}
	if groups[0].KeepFileID != hevc.ID {
		t.Fatalf("expected hevc kept on equal size, got file %d", groups[0].KeepFileID)
	}
}

func TestCrossItemClusteringBySharedExternalID(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()

	first := seedMovie(t, store, "m1", "Same Film", 100)
	second := seedMovie(t, store, "m2", "Same Film (Director's Cut)", 100)
	testsupport.SeedFile(t, store, &library.MediaFile{
		ItemID: first.ID, Path: "/media/one.mkv", SizeBytes: 8 << 30,
		Resolution: "1080", VideoCodec: "h264", DurationSeconds: fortyMinutes,
	})
	testsupport.SeedFile(t, store, &library.MediaFile{
		ItemID: second.ID, Path: "/media/two.mkv", SizeBytes: 5 << 30,
		Resolution: "720", VideoCodec: "h264", DurationSeconds: fortyMinutes,
	})

	count, err := engine.Analyze(ctx, 1, library.KindMovie, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one cross-item group, got %d", count)
	}
}

func TestLargeLibraryProducesSingleGroup(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()

	for i := 0; i < 97; i++ {
		item := seedMovie(t, store, fmt.Sprintf("u%d", i), fmt.Sprintf("Unique %d", i), int64(1000+i))
		testsupport.SeedFile(t, store, &library.MediaFile{
			ItemID: item.ID, Path: fmt.Sprintf("/media/u%d.mkv", i), SizeBytes: 4 << 30,
			Resolution: "1080", VideoCodec: "h264", DurationSeconds: fortyMinutes,
		})
	}

	dup := seedMovie(t, store, "dup", "Thrice Kept", 50)
	sizes := []int64{9 << 30, 6 << 30, 2 << 30}
	resolutions := []string{"1080", "720", "sd"}
	var fileIDs []int64
	for i := range sizes {
		file := testsupport.SeedFile(t, store, &library.MediaFile{
			ItemID: dup.ID, Path: fmt.Sprintf("/media/dup%d.mkv", i), SizeBytes: sizes[i],
			Resolution: resolutions[i], VideoCodec: "h264", DurationSeconds: fortyMinutes,
		})
		fileIDs = append(fileIDs, file.ID)
	}

	count, err := engine.Analyze(ctx, 1, library.KindMovie, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one group in a 100-item library, got %d", count)
	}

	groups, err := store.ListDuplicateGroups(ctx)
	if err != nil {
		t.Fatalf("ListDuplicateGroups: %v", err)
	}
	group := groups[0]
	if len(group.MemberFileIDs) != 3 {
		t.Fatalf("expected group of 3, got %d members", len(group.MemberFileIDs))
	}
	if group.KeepFileID != fileIDs[0] {
		t.Fatalf("expected the 1080p file kept, got %d", group.KeepFileID)
	}
	if group.ReclaimableBytes != sizes[1]+sizes[2] {
		t.Fatalf("expected reclaimable %d, got %d", sizes[1]+sizes[2], group.ReclaimableBytes)
	}
}

func TestRerunReplacesGroups(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	item := seedMovie(t, store, "m1", "Shrinking", 100)

	testsupport.SeedFile(t, store, &library.MediaFile{
		ItemID: item.ID, Path: "/media/keep.mkv", SizeBytes: 8 << 30,
		Resolution: "1080", VideoCodec: "h264", DurationSeconds: fortyMinutes,
	})
	testsupport.SeedFile(t, store, &library.MediaFile{
		ItemID: item.ID, Path: "/media/extra.mkv", SizeBytes: 4 << 30,
		Resolution: "720", VideoCodec: "h264", DurationSeconds: fortyMinutes,
	})

	if _, err := engine.Analyze(ctx, 1, library.KindMovie, nil); err != nil {
		t.Fatalf("first Analyze: %v", err)
	}

	// The extra file disappears; the re-run must clear the group.
	if _, err := store.MarkFilesRemoved(ctx, item.ID, map[string]struct{}{"/media/keep.mkv": {}}); err != nil {
		t.Fatalf("MarkFilesRemoved: %v", err)
	}
	count, err := engine.Analyze(ctx, 2, library.KindMovie, nil)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no groups after file removal, got %d", count)
	}

	groups, err := store.ListDuplicateGroups(ctx)
	if err != nil {
		t.Fatalf("ListDuplicateGroups: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected stored groups cleared, got %+v", groups)
	}
}
