// Package matching pairs catalog items with vision position hints
package matching

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/amaan667/servio-fusion/pkg/models"
	"github.com/amaan667/servio-fusion/pkg/normalizers"
	"github.com/amaan667/servio-fusion/pkg/tracing"
)

// Match pairs one catalog item with one position hint
type Match struct {
	ItemIndex int
	HintIndex int
	Score     float64
}

// Outcome is the full result of a matching pass. Every item index appears in
// exactly one of Matches or UnmatchedItems; every hint index in exactly one of
// Matches or UnusedHints.
type Outcome struct {
	Matches        []Match
	UnmatchedItems []int
	UnusedHints    []int
}

// MatchRate returns the fraction of items that were matched. Zero items
// yields 0.
func (o *Outcome) MatchRate(itemCount int) float64 {
	if itemCount == 0 {
		return 0
	}
	return float64(len(o.Matches)) / float64(itemCount)
}

// Matcher assigns position hints to catalog items greedily by score
type Matcher struct {
	logger    ectologger.Logger
	scorer    *Scorer
	threshold float64
}

// NewMatcher creates a new Matcher. Pairs scoring below threshold are never
// matched; a pair scoring exactly threshold is.
func NewMatcher(threshold float64, logger ectologger.Logger) *Matcher {
	return &Matcher{
		logger:    logger,
		scorer:    NewScorer(),
		threshold: threshold,
	}
}

type candidate struct {
	itemIndex  int
	hintIndex  int
	score      float64
	confidence float64
}

// Match computes a one-to-one assignment between items and hints. Candidates
// are claimed highest score first; ties break on hint confidence, then item
// index, then hint index, so the outcome is deterministic for a given input
// order.
func (m *Matcher) Match(ctx context.Context, items []models.CatalogRecord, hints []models.PositionHint) *Outcome {
	ctx, span := tracing.StartSpan(ctx, "matching.Matcher.Match")
	defer span.End()

	log := m.logger.WithContext(ctx).WithFields(map[string]any{
		"item_count": len(items),
		"hint_count": len(hints),
	})

	itemNames := make([]string, len(items))
	for i, item := range items {
		itemNames[i] = normalizers.NormalizeItemName(item.Name)
	}
	hintNames := make([]string, len(hints))
	for j, hint := range hints {
		hintNames[j] = normalizers.NormalizeItemName(hint.RawName)
	}

	var candidates []candidate
	for i := range items {
		for j := range hints {
			score := m.scorer.Similarity(itemNames[i], hintNames[j])
			if score >= m.threshold {
				candidates = append(candidates, candidate{
					itemIndex:  i,
					hintIndex:  j,
					score:      score,
					confidence: hints[j].Confidence,
				})
			}
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.score != cb.score {
			return ca.score > cb.score
		}
		if ca.confidence != cb.confidence {
			return ca.confidence > cb.confidence
		}
		if ca.itemIndex != cb.itemIndex {
			return ca.itemIndex < cb.itemIndex
		}
		return ca.hintIndex < cb.hintIndex
	})

	outcome := &Outcome{}
	itemClaimed := make([]bool, len(items))
	hintClaimed := make([]bool, len(hints))

	for _, c := range candidates {
		if itemClaimed[c.itemIndex] || hintClaimed[c.hintIndex] {
			continue
		}
		itemClaimed[c.itemIndex] = true
		hintClaimed[c.hintIndex] = true
		outcome.Matches = append(outcome.Matches, Match{
			ItemIndex: c.itemIndex,
			HintIndex: c.hintIndex,
			Score:     c.score,
		})
	}

	for i := range items {
		if !itemClaimed[i] {
			outcome.UnmatchedItems = append(outcome.UnmatchedItems, i)
		}
	}
	for j := range hints {
		if !hintClaimed[j] {
			outcome.UnusedHints = append(outcome.UnusedHints, j)
		}
	}

	log.WithFields(map[string]any{
		"matched":   len(outcome.Matches),
		"unmatched": len(outcome.UnmatchedItems),
	}).Debug("Matching pass complete")

	return outcome
}
