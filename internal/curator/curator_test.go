package curator_test

import (
	"context"
	"testing"

	"caretaker/internal/curator"
	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/services"
	"caretaker/internal/services/ai"
	"caretaker/internal/testsupport"
)

type fakeGateway struct {
	enabled bool
	reply   string
	err     error
	calls   int
}

func (f *fakeGateway) Enabled() bool { return f.enabled }

func (f *fakeGateway) Complete(ctx context.Context, req ai.Request) (*ai.Completion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Completion{Text: f.reply, Provider: "fake", Model: "fake"}, nil
}

func seedMovie(t *testing.T, store *library.Store, ratingKey, title string, mutate func(*library.Item)) *library.Item {
	t.Helper()
	item := &library.Item{
		RatingKey: ratingKey, Title: title, Year: 1985,
		Kind: library.KindMovie, IMDBRating: 4.0,
	}
	if mutate != nil {
		mutate(item)
	}
	return testsupport.SeedItem(t, store, item)
}

func TestScoreExcludesProtectedItems(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	scored := seedMovie(t, store, "m1", "Forgettable", nil)
	protected := seedMovie(t, store, "m2", "Requested", nil)
	if err := store.SetProtection(ctx, protected.ID, true, "request: actively requested"); err != nil {
		t.Fatalf("SetProtection: %v", err)
	}
	// A stale score from before the protection must disappear.
	if err := store.UpsertScore(ctx, &library.BadItemScore{ItemID: protected.ID, Score: 9}); err != nil {
		t.Fatalf("UpsertScore: %v", err)
	}

	c := curator.New(store, nil, 2.0, 20, logging.NewNop())
	if err := c.Score(ctx, 1, nil); err != nil {
		t.Fatalf("Score: %v", err)
	}

	scores, err := store.ListScores(ctx, 0)
	if err != nil {
		t.Fatalf("ListScores: %v", err)
	}
	if len(scores) != 1 || scores[0].ItemID != scored.ID {
		t.Fatalf("expected only the unprotected item scored, got %+v", scores)
	}
}

func TestScoreDegradesWithoutAI(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	seedMovie(t, store, "m1", "Heuristic Only", nil)

	gateway := &fakeGateway{
		enabled: true,
		err:     services.Wrap(services.ErrNoProvider, "ai", "complete", "nothing configured", nil),
	}
	c := curator.New(store, gateway, 2.0, 20, logging.NewNop())
	if err := c.Score(ctx, 1, nil); err != nil {
		t.Fatalf("Score must not fail on AI unavailability: %v", err)
	}

	scores, err := store.ListScores(ctx, 0)
	if err != nil {
		t.Fatalf("ListScores: %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("expected a heuristic score, got %+v", scores)
	}
	if scores[0].AIAdjustment != 0 || scores[0].Score != scores[0].HeuristicScore {
		t.Fatalf("expected heuristic-only score, got %+v", scores[0])
	}
}

func TestScoreClampsAIAdjustment(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	seedMovie(t, store, "m1", "Overruled", nil)

	gateway := &fakeGateway{enabled: true, reply: `{"m1": 8.0}`}
	c := curator.New(store, gateway, 2.0, 20, logging.NewNop())
	if err := c.Score(ctx, 1, nil); err != nil {
		t.Fatalf("Score: %v", err)
	}

	scores, err := store.ListScores(ctx, 0)
	if err != nil {
		t.Fatalf("ListScores: %v", err)
	}
	if scores[0].AIAdjustment != 2.0 {
		t.Fatalf("expected adjustment clamped to cap, got %+v", scores[0])
	}
	if scores[0].Score != scores[0].HeuristicScore+2.0 && scores[0].Score != 10 {
		t.Fatalf("unexpected combined score: %+v", scores[0])
	}
}

func TestRecommendFromCollectionGaps(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	held := seedMovie(t, store, "m1", "Part One", nil)
	if err := store.ReplaceCollection(ctx, &library.Collection{
		RatingKey: "c1", Title: "Trilogy", ItemCount: 3, ItemIDs: []int64{held.ID},
	}); err != nil {
		t.Fatalf("ReplaceCollection: %v", err)
	}

	c := curator.New(store, nil, 2.0, 20, logging.NewNop())
	if err := c.Recommend(ctx, 1, nil); err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	pending, err := store.ListRecommendations(ctx, library.RecPending)
	if err != nil {
		t.Fatalf("ListRecommendations: %v", err)
	}
	if len(pending) != 1 || pending[0].Title != "Trilogy" {
		t.Fatalf("expected a collection-gap recommendation, got %+v", pending)
	}
}

func TestRecommendMergesAIProposals(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	seedMovie(t, store, "m1", "Seed", func(item *library.Item) {
		item.Genres = []string{"Crime"}
	})

	gateway := &fakeGateway{
		enabled: true,
		reply:   `[{"title": "Thief", "year": 1981, "kind": "movie", "reason": "matches crime affinity"}]`,
	}
	c := curator.New(store, gateway, 2.0, 20, logging.NewNop())
	if err := c.Recommend(ctx, 1, nil); err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	pending, err := store.ListRecommendations(ctx, library.RecPending)
	if err != nil {
		t.Fatalf("ListRecommendations: %v", err)
	}
	if len(pending) != 1 || pending[0].Title != "Thief" || pending[0].Year != 1981 {
		t.Fatalf("expected the AI proposal recorded, got %+v", pending)
	}
}

func TestRecommendPreservesActedOnRows(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	held := seedMovie(t, store, "m1", "Part One", nil)
	if err := store.ReplaceCollection(ctx, &library.Collection{
		RatingKey: "c1", Title: "Trilogy", ItemCount: 3, ItemIDs: []int64{held.ID},
	}); err != nil {
		t.Fatalf("ReplaceCollection: %v", err)
	}

	c := curator.New(store, nil, 2.0, 20, logging.NewNop())
	if err := c.Recommend(ctx, 1, nil); err != nil {
		t.Fatalf("first Recommend: %v", err)
	}

	pending, err := store.ListRecommendations(ctx, library.RecPending)
	if err != nil {
		t.Fatalf("ListRecommendations: %v", err)
	}
	if err := store.SetRecommendationState(ctx, pending[0].ID, library.RecRequested); err != nil {
		t.Fatalf("SetRecommendationState: %v", err)
	}

	if err := c.Recommend(ctx, 2, nil); err != nil {
		t.Fatalf("second Recommend: %v", err)
	}
	requested, err := store.ListRecommendations(ctx, library.RecRequested)
	if err != nil {
		t.Fatalf("ListRecommendations: %v", err)
	}
	if len(requested) != 1 {
		t.Fatalf("expected requested recommendation preserved, got %+v", requested)
	}
}
