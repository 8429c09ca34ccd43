package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinDistance(t *testing.T) {
	scorer := NewScorer()

	t.Run("should return zero for identical strings", func(t *testing.T) {
		assert.Equal(t, 0, scorer.LevenshteinDistance("kebab", "kebab"))
	})

	t.Run("should return length for empty other side", func(t *testing.T) {
		assert.Equal(t, 5, scorer.LevenshteinDistance("kebab", ""))
		assert.Equal(t, 5, scorer.LevenshteinDistance("", "kebab"))
	})

	t.Run("should count single deletion", func(t *testing.T) {
		assert.Equal(t, 1, scorer.LevenshteinDistance("halloumi", "haloumi"))
	})

	t.Run("should count substitutions", func(t *testing.T) {
		assert.Equal(t, 3, scorer.LevenshteinDistance("kitten", "sitting"))
	})
}

func TestSimilarity(t *testing.T) {
	scorer := NewScorer()

	t.Run("should return 1 for identical non-empty strings", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.Similarity("hummus", "hummus"))
	})

	t.Run("should return 0 for two empty strings", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.Similarity("", ""))
	})

	t.Run("should return 0 when one side is empty", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.Similarity("kebab", ""))
	})

	t.Run("should normalize by the longer string", func(t *testing.T) {
		// distance 1 over 16 characters
		assert.InDelta(t, 0.9375, scorer.Similarity("grilled halloumi", "grilled haloumi"), 0.0001)
	})

	t.Run("should stay within the unit interval", func(t *testing.T) {
		score := scorer.Similarity("chicken shish", "xyz")
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	})
}
