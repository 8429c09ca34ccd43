package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaan667/servio-fusion/pkg/logging"
	"github.com/amaan667/servio-fusion/pkg/models"
)

func TestMatcher_Match(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewNop()

	t.Run("should match near-identical names above threshold", func(t *testing.T) {
		items := []models.CatalogRecord{
			{Name: "Grilled Halloumi", Price: 7.5},
			{Name: "Houmous", Price: 4.0},
		}
		hints := []models.PositionHint{
			{RawName: "Grilled Haloumi", PageIndex: 0, XPercent: 25, YPercent: 35, Confidence: 0.9},
			{RawName: "Hummus", PageIndex: 0, XPercent: 25, YPercent: 45, Confidence: 0.85},
		}

		outcome := NewMatcher(0.70, logger).Match(ctx, items, hints)

		require.Len(t, outcome.Matches, 2)
		assert.Empty(t, outcome.UnmatchedItems)
		assert.Empty(t, outcome.UnusedHints)
		assert.Equal(t, 1.0, outcome.MatchRate(len(items)))

		assert.Equal(t, 0, outcome.Matches[0].ItemIndex)
		assert.Equal(t, 0, outcome.Matches[0].HintIndex)
		assert.InDelta(t, 0.9375, outcome.Matches[0].Score, 0.0001)
	})

	t.Run("should leave items unmatched when no hints exist", func(t *testing.T) {
		items := []models.CatalogRecord{{Name: "Mystery Dish"}}

		outcome := NewMatcher(0.70, logger).Match(ctx, items, nil)

		assert.Empty(t, outcome.Matches)
		assert.Equal(t, []int{0}, outcome.UnmatchedItems)
		assert.Equal(t, 0.0, outcome.MatchRate(len(items)))
	})

	t.Run("should claim a hint for the first of two duplicate names", func(t *testing.T) {
		items := []models.CatalogRecord{{Name: "A"}, {Name: "A"}}
		hints := []models.PositionHint{
			{RawName: "A", PageIndex: 0, XPercent: 10, YPercent: 10, Confidence: 0.99},
		}

		outcome := NewMatcher(0.70, logger).Match(ctx, items, hints)

		require.Len(t, outcome.Matches, 1)
		assert.Equal(t, 0, outcome.Matches[0].ItemIndex)
		assert.Equal(t, []int{1}, outcome.UnmatchedItems)
		assert.Empty(t, outcome.UnusedHints)
	})

	t.Run("should match a pair scoring exactly at the threshold", func(t *testing.T) {
		// "abcde" vs "abcdexxxxx": distance 5 over 10 = score 0.5
		items := []models.CatalogRecord{{Name: "abcde"}}
		hints := []models.PositionHint{{RawName: "abcdexxxxx", Confidence: 0.9}}

		outcome := NewMatcher(0.5, logger).Match(ctx, items, hints)
		require.Len(t, outcome.Matches, 1)
		assert.InDelta(t, 0.5, outcome.Matches[0].Score, 0.0001)

		below := NewMatcher(0.5001, logger).Match(ctx, items, hints)
		assert.Empty(t, below.Matches)
		assert.Equal(t, []int{0}, below.UnmatchedItems)
		assert.Equal(t, []int{0}, below.UnusedHints)
	})

	t.Run("should prefer the higher-confidence hint on a score tie", func(t *testing.T) {
		items := []models.CatalogRecord{{Name: "Falafel"}}
		hints := []models.PositionHint{
			{RawName: "Falafel", PageIndex: 0, Confidence: 0.6},
			{RawName: "Falafel", PageIndex: 1, Confidence: 0.95},
		}

		outcome := NewMatcher(0.70, logger).Match(ctx, items, hints)

		require.Len(t, outcome.Matches, 1)
		assert.Equal(t, 1, outcome.Matches[0].HintIndex)
		assert.Equal(t, []int{0}, outcome.UnusedHints)
	})

	t.Run("should never double-claim items or hints", func(t *testing.T) {
		items := []models.CatalogRecord{
			{Name: "Lamb Shish"}, {Name: "Lamb Shish Wrap"}, {Name: "Chicken Shish"},
		}
		hints := []models.PositionHint{
			{RawName: "lamb shish", Confidence: 0.9},
			{RawName: "chicken shish", Confidence: 0.9},
		}

		outcome := NewMatcher(0.70, logger).Match(ctx, items, hints)

		seenItems := map[int]bool{}
		seenHints := map[int]bool{}
		for _, m := range outcome.Matches {
			assert.False(t, seenItems[m.ItemIndex])
			assert.False(t, seenHints[m.HintIndex])
			seenItems[m.ItemIndex] = true
			seenHints[m.HintIndex] = true
		}
		assert.Equal(t, len(items), len(outcome.Matches)+len(outcome.UnmatchedItems))
		assert.Equal(t, len(hints), len(outcome.Matches)+len(outcome.UnusedHints))
	})

	t.Run("should be deterministic across repeated runs", func(t *testing.T) {
		items := []models.CatalogRecord{
			{Name: "Halloumi"}, {Name: "Haloumi Salad"}, {Name: "Hummus"}, {Name: "Houmous Wrap"},
		}
		hints := []models.PositionHint{
			{RawName: "Haloumi", Confidence: 0.8},
			{RawName: "Hummus", Confidence: 0.8},
			{RawName: "Humous Wrap", Confidence: 0.7},
		}

		matcher := NewMatcher(0.70, logger)
		first := matcher.Match(ctx, items, hints)
		for i := 0; i < 10; i++ {
			again := matcher.Match(ctx, items, hints)
			assert.Equal(t, first, again)
		}
	})

	t.Run("should not match empty normalized names", func(t *testing.T) {
		items := []models.CatalogRecord{{Name: "!!!"}}
		hints := []models.PositionHint{{RawName: "???", Confidence: 0.9}}

		outcome := NewMatcher(0.70, logger).Match(ctx, items, hints)

		assert.Empty(t, outcome.Matches)
		assert.Equal(t, []int{0}, outcome.UnmatchedItems)
		assert.Equal(t, []int{0}, outcome.UnusedHints)
	})
}
