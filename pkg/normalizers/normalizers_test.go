package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	t.Run("should retrieve registered normalizer", func(t *testing.T) {
		fn, ok := Get("lowercase")
		assert.True(t, ok)
		assert.Equal(t, "kebab", fn("KEBAB"))
	})

	t.Run("should return false for unknown normalizer", func(t *testing.T) {
		_, ok := Get("does_not_exist")
		assert.False(t, ok)
	})

	t.Run("should apply chain in order", func(t *testing.T) {
		result := ApplyChain("  Crème   Brûlée!  ", "lowercase", "strip_diacritics", "strip_punctuation", "collapse_whitespace")
		assert.Equal(t, "creme brulee", result)
	})

	t.Run("should skip unknown normalizers in chain", func(t *testing.T) {
		result := ApplyChain("ABC", "does_not_exist", "lowercase")
		assert.Equal(t, "abc", result)
	})
}

func TestStripDiacritics(t *testing.T) {
	t.Run("should fold accented lowercase runes", func(t *testing.T) {
		assert.Equal(t, "creme brulee", StripDiacritics("crème brûlée"))
		assert.Equal(t, "jalapeno", StripDiacritics("jalapeño"))
	})

	t.Run("should fold accented uppercase runes", func(t *testing.T) {
		assert.Equal(t, "Eclair", StripDiacritics("Éclair"))
	})

	t.Run("should pass through unmapped runes", func(t *testing.T) {
		assert.Equal(t, "shish 123", StripDiacritics("shish 123"))
	})
}

func TestCollapseWhitespace(t *testing.T) {
	t.Run("should collapse runs and trim", func(t *testing.T) {
		assert.Equal(t, "lamb shish", CollapseWhitespace("  lamb \t\n shish  "))
	})

	t.Run("should handle empty string", func(t *testing.T) {
		assert.Equal(t, "", CollapseWhitespace("   "))
	})
}

func TestNormalizeItemName(t *testing.T) {
	t.Run("should lowercase strip and collapse", func(t *testing.T) {
		assert.Equal(t, "creme brulee", NormalizeItemName("  Crème   Brûlée! "))
	})

	t.Run("should drop filler tokens", func(t *testing.T) {
		assert.Equal(t, "lamb kofte", NormalizeItemName("Homemade Lamb Kofte"))
		assert.Equal(t, "hummus", NormalizeItemName("Fresh Organic Hummus"))
	})

	t.Run("should keep name made entirely of filler", func(t *testing.T) {
		assert.Equal(t, "classic", NormalizeItemName("Classic"))
		assert.Equal(t, "fresh special", NormalizeItemName("Fresh Special"))
	})

	t.Run("should return empty for empty input", func(t *testing.T) {
		assert.Equal(t, "", NormalizeItemName(""))
		assert.Equal(t, "", NormalizeItemName("  !!  "))
	})

	t.Run("should be idempotent", func(t *testing.T) {
		once := NormalizeItemName("Grilled Halloumi (v)")
		assert.Equal(t, once, NormalizeItemName(once))
	})
}
