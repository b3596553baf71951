package curator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"caretaker/internal/library"
	"caretaker/internal/logging"
	"caretaker/internal/services/ai"
)

const recommendSystemPrompt = `You curate a personal media library. Given the
library's dominant genres and incomplete collections, propose acquisitions as
a JSON array of objects with fields "title", "year", "kind" ("movie" or
"show"), and "reason". Propose only real, released titles not already listed.
Reply with JSON only.`

// Recommend regenerates pending acquisition suggestions from collection gaps
// and genre affinity. The AI gateway ranks and extends the candidates when
// available; without it the heuristic candidates stand alone. Pending rows
// are replaced wholesale, acted-on recommendations are preserved.
func (c *Curator) Recommend(ctx context.Context, scanID int64, progress Progress) error {
	items, err := c.store.ListItems(ctx, library.ListItemsOptions{PresentOnly: true})
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	collections, err := c.store.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	genres := topGenres(items, 5)
	gaps := collectionGaps(collections, items)

	byKind := map[library.MediaKind][]library.Recommendation{
		library.KindMovie: nil,
		library.KindShow:  nil,
	}
	for _, gap := range gaps {
		byKind[library.KindMovie] = append(byKind[library.KindMovie], gap)
	}
	for _, rec := range c.aiRecommendations(ctx, genres, gaps, items) {
		byKind[rec.Kind] = append(byKind[rec.Kind], rec)
	}

	for kind, recs := range byKind {
		if len(recs) > c.maxRecs {
			recs = recs[:c.maxRecs]
		}
		if err := c.store.ReplacePendingRecommendations(ctx, kind, recs); err != nil {
			return fmt.Errorf("replace %s recommendations: %w", kind, err)
		}
	}

	if progress != nil {
		progress.Report(ctx, 100, "")
	}
	return nil
}

// collectionGaps proposes completing collections whose recorded membership
// exceeds what the library still holds.
func collectionGaps(collections []library.Collection, items []*library.Item) []library.Recommendation {
	present := make(map[int64]bool, len(items))
	for _, item := range items {
		present[item.ID] = true
	}

	var recs []library.Recommendation
	for _, col := range collections {
		held := 0
		for _, id := range col.ItemIDs {
			if present[id] {
				held++
			}
		}
		if held == 0 || held >= col.ItemCount {
			continue
		}
		recs = append(recs, library.Recommendation{
			Kind:   library.KindMovie,
			Title:  col.Title,
			Reason: fmt.Sprintf("collection holds %d of %d titles", held, col.ItemCount),
		})
	}
	return recs
}

func topGenres(items []*library.Item, limit int) []string {
	counts := map[string]int{}
	for _, item := range items {
		for _, genre := range item.Genres {
			counts[genre]++
		}
	}
	genres := make([]string, 0, len(counts))
	for genre := range counts {
		genres = append(genres, genre)
	}
	sort.Slice(genres, func(i, j int) bool {
		if counts[genres[i]] != counts[genres[j]] {
			return counts[genres[i]] > counts[genres[j]]
		}
		return genres[i] < genres[j]
	})
	if len(genres) > limit {
		genres = genres[:limit]
	}
	return genres
}

type aiRecommendation struct {
	Title  string `json:"title"`
	Year   int    `json:"year"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// aiRecommendations asks the gateway for concrete titles. Failures degrade to
// the heuristic candidates alone.
func (c *Curator) aiRecommendations(ctx context.Context, genres []string, gaps []library.Recommendation, items []*library.Item) []library.Recommendation {
	if c.gateway == nil || !c.gateway.Enabled() {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Dominant genres: %s\n", strings.Join(genres, ", "))
	if len(gaps) > 0 {
		sb.WriteString("Incomplete collections:\n")
		for _, gap := range gaps {
			fmt.Fprintf(&sb, "- %s (%s)\n", gap.Title, gap.Reason)
		}
	}
	sb.WriteString("Already in the library:\n")
	for i, item := range items {
		if i >= 50 {
			break
		}
		fmt.Fprintf(&sb, "- %s (%d)\n", item.Title, item.Year)
	}

	completion, err := c.gateway.Complete(ctx, ai.Request{
		System:    recommendSystemPrompt,
		Prompt:    sb.String(),
		MaxTokens: 1024,
	})
	if err != nil {
		c.logger.Warn("ai recommendations unavailable", logging.Error(err))
		return nil
	}

	var proposed []aiRecommendation
	if err := json.Unmarshal([]byte(extractJSON(completion.Text)), &proposed); err != nil {
		c.logger.Warn("ai recommendation reply unparsable", logging.Error(err))
		return nil
	}

	var recs []library.Recommendation
	for _, p := range proposed {
		if strings.TrimSpace(p.Title) == "" {
			continue
		}
		kind := library.KindMovie
		if p.Kind == string(library.KindShow) {
			kind = library.KindShow
		}
		recs = append(recs, library.Recommendation{
			Kind:   kind,
			Title:  p.Title,
			Year:   p.Year,
			Reason: p.Reason,
		})
	}
	return recs
}
