// Package curator scores items for removal-worthiness and proposes new
// acquisitions. Scores combine heuristic signals (ratings, age, watch
// activity) with an optional AI adjustment that can refine but never invert
// the heuristic baseline. Protected items are excluded from scoring entirely.
package curator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/services/ai"
)

// Inference is the gateway surface the curator calls, satisfied by
// ai.Gateway.
type Inference interface {
	Enabled() bool
	Complete(ctx context.Context, req ai.Request) (*ai.Completion, error)
}

// Progress receives item-level updates while curating.
type Progress interface {
	Report(ctx context.Context, percent float64, currentItem string)
	StopRequested(ctx context.Context) bool
}

// Curator drives the AI curation phase.
type Curator struct {
	store         *library.Store
	gateway       Inference
	adjustmentCap float64
	maxRecs       int
	logger        *slog.Logger
	now           func() time.Time
}

// New builds a curator. gateway may be nil when AI is disabled.
func New(store *library.Store, gateway Inference, adjustmentCap float64, maxRecommendationsPerKind int, logger *slog.Logger) *Curator {
	if maxRecommendationsPerKind <= 0 {
		maxRecommendationsPerKind = 20
	}
	return &Curator{
		store:         store,
		gateway:       gateway,
		adjustmentCap: adjustmentCap,
		maxRecs:       maxRecommendationsPerKind,
		logger:        logging.NewComponentLogger(logger, "curator"),
		now:           time.Now,
	}
}

// Score recomputes the bad-item score for every present item. Protected items
// never receive a score; any prior score they held is deleted. AI
// unavailability degrades to heuristic-only scoring and never fails the
// phase.
func (c *Curator) Score(ctx context.Context, scanID int64, progress Progress) error {
	items, err := c.store.ListItems(ctx, library.ListItemsOptions{PresentOnly: true})
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	type scored struct {
		item      *library.Item
		heuristic float64
		signals   map[string]string
	}
	var (
		candidates []scored
		forAI      []scoredItem
	)

	for i, item := range items {
		if progress != nil && progress.StopRequested(ctx) {
			return context.Canceled
		}
		if item.Protected {
			if err := c.store.DeleteScore(ctx, item.ID); err != nil {
				return fmt.Errorf("delete score for protected %q: %w", item.Title, err)
			}
			continue
		}
		heuristic, signals := c.heuristic(item)
		candidates = append(candidates, scored{item: item, heuristic: heuristic, signals: signals})
		forAI = append(forAI, scoredItem{item: item, heuristic: heuristic})

		if progress != nil && len(items) > 0 {
			progress.Report(ctx, float64(i+1)/float64(len(items))*50, item.Title)
		}
	}

	adjustments := c.adjustments(ctx, forAI)

	for i, cand := range candidates {
		adjustment := clamp(adjustments[cand.item.RatingKey], -c.adjustmentCap, c.adjustmentCap)
		if adjustment != 0 {
			cand.signals["ai_adjustment"] = strconv.FormatFloat(adjustment, 'f', 2, 64)
		}
		score := &library.BadItemScore{
			ItemID:         cand.item.ID,
			Score:          clamp(cand.heuristic+adjustment, 0, 10),
			HeuristicScore: cand.heuristic,
			AIAdjustment:   adjustment,
			Signals:        cand.signals,
		}
		if err := c.store.UpsertScore(ctx, score); err != nil {
			return fmt.Errorf("upsert score for %q: %w", cand.item.Title, err)
		}
		if progress != nil && len(candidates) > 0 {
			progress.Report(ctx, 50+float64(i+1)/float64(len(candidates))*50, cand.item.Title)
		}
	}
	return nil
}

// heuristic computes the baseline removal score on a 0-10 scale: higher means
// a stronger removal candidate. Weighted blend of external ratings, title
// age, and watch activity.
func (c *Curator) heuristic(item *library.Item) (float64, map[string]string) {
	signals := make(map[string]string)

	ratingPenalty := 0.5
	switch {
	case item.IMDBRating > 0:
		ratingPenalty = (10 - item.IMDBRating) / 10
		signals["imdb_rating"] = strconv.FormatFloat(item.IMDBRating, 'f', 1, 64)
	case item.RTRating > 0:
		ratingPenalty = float64(100-item.RTRating) / 100
		signals["rt_rating"] = strconv.Itoa(item.RTRating)
	default:
		signals["rating"] = "unknown"
	}

	agePenalty := 0.0
	if item.Year > 0 {
		age := c.now().Year() - item.Year
		agePenalty = clamp(float64(age)/40, 0, 1)
		signals["age_years"] = strconv.Itoa(age)
	}

	watchPenalty := 1.0
	switch {
	case item.LastWatchedAt != nil:
		idle := c.now().Sub(*item.LastWatchedAt)
		watchPenalty = clamp(idle.Hours()/(24*365*2), 0, 1)
		signals["last_watched"] = item.LastWatchedAt.Format("2006-01-02")
	case item.Watched:
		watchPenalty = 0.5
		signals["watched"] = "true"
	default:
		signals["watched"] = "false"
	}

	score := 10 * (0.5*ratingPenalty + 0.2*agePenalty + 0.3*watchPenalty)
	return clamp(score, 0, 10), signals
}

type scoredItem struct {
	item      *library.Item
	heuristic float64
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
