package quality

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"caretaker/internal/config"
	"caretaker/internal/ffprobe"
	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/testsupport"
)

type fakeProber struct {
	results map[string]ffprobe.Result
	probed  []string
}

func (f *fakeProber) Available() bool { return true }

func (f *fakeProber) Probe(ctx context.Context, path string) (ffprobe.Result, error) {
	f.probed = append(f.probed, path)
	if result, ok := f.results[path]; ok {
		return result, nil
	}
	return ffprobe.Result{OK: true, DurationSeconds: 3600}, nil
}

func newAnalyzer(t *testing.T, prober Prober) (*Analyzer, *library.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	analyzer := NewAnalyzer(store, cfg, prober, logging.NewNop())
	analyzer.statFile = func(string) error { return nil }
	return analyzer, store, cfg
}

func seedMovieFile(t *testing.T, store *library.Store, ratingKey, title, path string, mutate func(*library.Item, *library.MediaFile)) (*library.Item, *library.MediaFile) {
	t.Helper()
	item := &library.Item{RatingKey: ratingKey, Title: title, Year: 1999, Kind: library.KindMovie}
	file := &library.MediaFile{
		Path: path, SizeBytes: 6 << 30, Resolution: "1080",
		VideoCodec: "h264", DurationSeconds: 3600,
		AudioLanguages: []string{"en"}, SubtitleLanguages: []string{"en"},
	}
	if mutate != nil {
		mutate(item, file)
	}
	testsupport.SeedItem(t, store, item)
	file.ItemID = item.ID
	testsupport.SeedFile(t, store, file)
	return item, file
}

func openIssues(t *testing.T, store *library.Store, issueType library.IssueType) []library.Issue {
	t.Helper()
	issues, err := store.ListIssues(context.Background(), library.ListIssuesOptions{
		State: library.IssueOpen, Type: issueType,
	})
	if err != nil {
		t.Fatalf("ListIssues: %v", err)
	}
	return issues
}

func TestCheckOrganizationFlagsMissingYear(t *testing.T) {
	analyzer, store, _ := newAnalyzer(t, nil)
	seedMovieFile(t, store, "m1", "The Matrix", "/media/movies/The Matrix/matrix.mkv", nil)
	seedMovieFile(t, store, "m2", "Heat", "/media/movies/Heat (1999)/heat.mkv", nil)

	if err := analyzer.CheckOrganization(context.Background(), 1, library.KindMovie, nil); err != nil {
		t.Fatalf("CheckOrganization: %v", err)
	}

	issues := openIssues(t, store, library.IssueMisnamedFolder)
	if len(issues) != 1 {
		t.Fatalf("expected one misnamed-folder issue, got %+v", issues)
	}
}

func TestCheckIntegrityRecordsMissingAndCorrupt(t *testing.T) {
	prober := &fakeProber{results: map[string]ffprobe.Result{
		"/media/bad.mkv": {OK: false, Detail: "truncated container"},
	}}
	analyzer, store, _ := newAnalyzer(t, prober)
	analyzer.statFile = func(path string) error {
		if path == "/media/gone.mkv" {
			return fs.ErrNotExist
		}
		return nil
	}

	seedMovieFile(t, store, "m1", "Gone", "/media/gone.mkv", nil)
	seedMovieFile(t, store, "m2", "Bad", "/media/bad.mkv", nil)
	seedMovieFile(t, store, "m3", "Fine", "/media/fine.mkv", nil)

	if err := analyzer.CheckIntegrity(context.Background(), 1, library.KindMovie, nil); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}

	if issues := openIssues(t, store, library.IssueMissingFile); len(issues) != 1 {
		t.Fatalf("expected one missing-file issue, got %+v", issues)
	}
	corrupt := openIssues(t, store, library.IssueCorruptFile)
	if len(corrupt) != 1 || corrupt[0].Severity != library.SeverityCritical {
		t.Fatalf("expected one critical corrupt-file issue, got %+v", corrupt)
	}

	fine, err := store.GetFileByPath(context.Background(), "/media/fine.mkv")
	if err != nil {
		t.Fatalf("GetFileByPath: %v", err)
	}
	if !fine.ProbeOK || fine.ProbedAt == nil {
		t.Fatalf("expected probe recorded, got %+v", fine)
	}
}

func TestCheckIntegritySkipsRecentProbes(t *testing.T) {
	prober := &fakeProber{}
	analyzer, store, _ := newAnalyzer(t, prober)

	_, file := seedMovieFile(t, store, "m1", "Cached", "/media/cached.mkv", nil)
	if err := store.RecordProbe(context.Background(), file.ID, true); err != nil {
		t.Fatalf("RecordProbe: %v", err)
	}

	if err := analyzer.CheckIntegrity(context.Background(), 1, library.KindMovie, nil); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
	if len(prober.probed) != 0 {
		t.Fatalf("expected cached probe skipped, probed %v", prober.probed)
	}

	// Outside the recheck window the file is probed again.
	analyzer.now = func() time.Time { return time.Now().Add(45 * 24 * time.Hour) }
	if err := analyzer.CheckIntegrity(context.Background(), 2, library.KindMovie, nil); err != nil {
		t.Fatalf("second CheckIntegrity: %v", err)
	}
	if len(prober.probed) != 1 {
		t.Fatalf("expected stale probe re-run, probed %v", prober.probed)
	}
}

func TestCheckLanguagesFlagsMissingPreferredAudio(t *testing.T) {
	analyzer, store, _ := newAnalyzer(t, nil)
	seedMovieFile(t, store, "m1", "Foreign Only", "/media/f.mkv", func(_ *library.Item, file *library.MediaFile) {
		file.AudioLanguages = []string{"fr", "de"}
	})
	seedMovieFile(t, store, "m2", "Canonical Tag", "/media/c.mkv", func(_ *library.Item, file *library.MediaFile) {
		file.AudioLanguages = []string{"eng"}
	})
	seedMovieFile(t, store, "m3", "Untagged", "/media/u.mkv", func(_ *library.Item, file *library.MediaFile) {
		file.AudioLanguages = nil
	})

	if err := analyzer.CheckLanguages(context.Background(), 1, library.KindMovie, nil); err != nil {
		t.Fatalf("CheckLanguages: %v", err)
	}

	issues := openIssues(t, store, library.IssueNoPreferredAudio)
	if len(issues) != 1 {
		t.Fatalf("expected only the foreign-audio item flagged, got %+v", issues)
	}
}

func TestCheckHDRFlagsSDR4K(t *testing.T) {
	analyzer, store, _ := newAnalyzer(t, nil)
	seedMovieFile(t, store, "m1", "Flat 4K", "/media/flat.mkv", func(_ *library.Item, file *library.MediaFile) {
		file.Resolution = "2160"
		file.HDR = false
	})
	seedMovieFile(t, store, "m2", "Proper 4K", "/media/hdr.mkv", func(_ *library.Item, file *library.MediaFile) {
		file.Resolution = "2160"
		file.HDR = true
	})

	if err := analyzer.CheckHDR(context.Background(), 1, library.KindMovie, nil); err != nil {
		t.Fatalf("CheckHDR: %v", err)
	}
	if issues := openIssues(t, store, library.IssueMissingHDR); len(issues) != 1 {
		t.Fatalf("expected one missing-hdr issue, got %+v", issues)
	}
}

func TestCheckStorageBounds(t *testing.T) {
	analyzer, store, _ := newAnalyzer(t, nil)
	// 1080 tier default bounds: 2-10 GB/hr.
	seedMovieFile(t, store, "m1", "Bloated", "/media/big.mkv", func(_ *library.Item, file *library.MediaFile) {
		file.SizeBytes = 30 << 30
	})
	seedMovieFile(t, store, "m2", "Starved", "/media/small.mkv", func(_ *library.Item, file *library.MediaFile) {
		file.SizeBytes = 1 << 30
	})
	seedMovieFile(t, store, "m3", "Right Sized", "/media/ok.mkv", nil)

	if err := analyzer.CheckStorage(context.Background(), 1, library.KindMovie, nil); err != nil {
		t.Fatalf("CheckStorage: %v", err)
	}
	if issues := openIssues(t, store, library.IssueOversized); len(issues) != 1 {
		t.Fatalf("expected one oversized issue, got %+v", issues)
	}
	if issues := openIssues(t, store, library.IssueUndersized); len(issues) != 1 {
		t.Fatalf("expected one undersized issue, got %+v", issues)
	}
}

func TestCheckCodecsFlagsLegacy(t *testing.T) {
	analyzer, store, _ := newAnalyzer(t, nil)
	seedMovieFile(t, store, "m1", "Old Rip", "/media/old.avi", func(_ *library.Item, file *library.MediaFile) {
		file.VideoCodec = "xvid"
	})
	seedMovieFile(t, store, "m2", "Modern", "/media/new.mkv", nil)

	if err := analyzer.CheckCodecs(context.Background(), 1, library.KindMovie, nil); err != nil {
		t.Fatalf("CheckCodecs: %v", err)
	}
	if issues := openIssues(t, store, library.IssueLegacyCodec); len(issues) != 1 {
		t.Fatalf("expected one legacy-codec issue, got %+v", issues)
	}
}

func TestCheckCollectionsFlagsShrunkAndSingleton(t *testing.T) {
	analyzer, store, _ := newAnalyzer(t, nil)
	ctx := context.Background()

	one, _ := seedMovieFile(t, store, "m1", "Part One", "/media/p1.mkv", nil)
	two, _ := seedMovieFile(t, store, "m2", "Part Two", "/media/p2.mkv", nil)
	lone, _ := seedMovieFile(t, store, "m3", "Loner", "/media/l.mkv", nil)

	if err := store.ReplaceCollection(ctx, &library.Collection{
		RatingKey: "c1", Title: "Duology", ItemCount: 2, ItemIDs: []int64{one.ID, two.ID},
	}); err != nil {
		t.Fatalf("ReplaceCollection: %v", err)
	}
	if err := store.ReplaceCollection(ctx, &library.Collection{
		RatingKey: "c2", Title: "Singleton", ItemCount: 1, ItemIDs: []int64{lone.ID},
	}); err != nil {
		t.Fatalf("ReplaceCollection: %v", err)
	}

	// Part Two leaves the library; the duology is now incomplete.
	if _, err := store.MarkItemsRemoved(ctx, map[string]struct{}{"m1": {}, "m3": {}}); err != nil {
		t.Fatalf("MarkItemsRemoved: %v", err)
	}

	if err := analyzer.CheckCollections(ctx, 1, nil); err != nil {
		t.Fatalf("CheckCollections: %v", err)
	}
	issues := openIssues(t, store, library.IssueIncompleteCollection)
	if len(issues) != 2 {
		t.Fatalf("expected incomplete and singleton issues, got %+v", issues)
	}
}

func TestCheckIntegrityKeepsOtherKindIssuesOpen(t *testing.T) {
	analyzer, store, _ := newAnalyzer(t, &fakeProber{})
	ctx := context.Background()

	seedMovieFile(t, store, "m1", "Fine Movie", "/media/fine.mkv", nil)

	show := testsupport.SeedItem(t, store, &library.Item{
		RatingKey: "s1", Title: "The Wire", Year: 2002, Kind: library.KindShow,
	})
	showFile := &library.MediaFile{ItemID: show.ID, Path: "/media/tv/wire.mkv"}
	testsupport.SeedFile(t, store, showFile)
	if err := store.RecordIssue(ctx, &library.Issue{
		ItemID:      show.ID,
		FileID:      showFile.ID,
		Type:        library.IssueMissingFile,
		Severity:    library.SeverityCritical,
		Description: "gone",
		ScanID:      1,
	}); err != nil {
		t.Fatalf("RecordIssue: %v", err)
	}

	// A movie-only pass must not resolve show defects it never re-verified.
	if err := analyzer.CheckIntegrity(ctx, 2, library.KindMovie, nil); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}

	issues := openIssues(t, store, library.IssueMissingFile)
	if len(issues) != 1 || issues[0].ItemID != show.ID {
		t.Fatalf("expected the show issue still open, got %+v", issues)
	}
}

func TestIssuesResolveWhenFixed(t *testing.T) {
	analyzer, store, _ := newAnalyzer(t, nil)
	item, file := seedMovieFile(t, store, "m1", "Old Rip", "/media/old.avi", func(_ *library.Item, f *library.MediaFile) {
		f.VideoCodec = "xvid"
	})

	if err := analyzer.CheckCodecs(context.Background(), 1, library.KindMovie, nil); err != nil {
		t.Fatalf("CheckCodecs: %v", err)
	}
	if issues := openIssues(t, store, library.IssueLegacyCodec); len(issues) != 1 {
		t.Fatalf("expected one issue, got %+v", issues)
	}

	file.VideoCodec = "hevc"
	file.ItemID = item.ID
	testsupport.SeedFile(t, store, file)

	if err := analyzer.CheckCodecs(context.Background(), 2, library.KindMovie, nil); err != nil {
		t.Fatalf("second CheckCodecs: %v", err)
	}
	if issues := openIssues(t, store, library.IssueLegacyCodec); len(issues) != 0 {
		t.Fatalf("expected issue resolved after re-encode, got %+v", issues)
	}
}
