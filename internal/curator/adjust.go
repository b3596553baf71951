package curator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"caretaker/internal/logging"
	"caretaker/internal/services/ai"
)

// How many of the worst heuristic candidates are sent for AI review. One call
// per scan keeps cost proportional to the budget, not the library size.
const adjustmentBatchSize = 25

const adjustmentSystemPrompt = `You curate a personal media library. Given removal
candidates with heuristic scores (0-10, higher means more removable), reply
with a JSON object mapping each item key to a score delta between -3 and 3.
Positive deltas make an item more removable. Consider cultural significance
and rewatch value. Reply with JSON only.`

// adjustments asks the gateway to refine the worst heuristic candidates.
// Every failure path returns an empty map: scoring proceeds heuristic-only
// and the degradation is logged, never surfaced as a phase error.
func (c *Curator) adjustments(ctx context.Context, candidates []scoredItem) map[string]float64 {
	if c.gateway == nil || !c.gateway.Enabled() || c.adjustmentCap <= 0 || len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].heuristic > candidates[j].heuristic
	})
	if len(candidates) > adjustmentBatchSize {
		candidates = candidates[:adjustmentBatchSize]
	}

	var sb strings.Builder
	for _, cand := range candidates {
		fmt.Fprintf(&sb, "%s: %q (%d), heuristic %.1f\n",
			cand.item.RatingKey, cand.item.Title, cand.item.Year, cand.heuristic)
	}

	completion, err := c.gateway.Complete(ctx, ai.Request{
		System:    adjustmentSystemPrompt,
		Prompt:    sb.String(),
		MaxTokens: 1024,
	})
	if err != nil {
		c.logger.Warn("ai adjustment unavailable, scoring heuristic-only", logging.Error(err))
		return nil
	}

	deltas := map[string]float64{}
	if err := json.Unmarshal([]byte(extractJSON(completion.Text)), &deltas); err != nil {
		c.logger.Warn("ai adjustment reply unparsable, scoring heuristic-only",
			logging.Error(err))
		return nil
	}
	return deltas
}

// extractJSON trims prose around the first JSON value in a model reply.
func extractJSON(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	var end int
	if text[start] == '{' {
		end = strings.LastIndex(text, "}")
	} else {
		end = strings.LastIndex(text, "]")
	}
	if end <= start {
		return text
	}
	return text[start : end+1]
}
