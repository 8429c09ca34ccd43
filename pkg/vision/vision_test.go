package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHints(t *testing.T) {
	t.Run("should parse a plain json array", func(t *testing.T) {
		hints, err := parseHints(`[{"name": "Halloumi", "x_percent": 25, "y_percent": 35, "confidence": 0.9}]`, 2)

		require.NoError(t, err)
		require.Len(t, hints, 1)
		assert.Equal(t, "Halloumi", hints[0].RawName)
		assert.Equal(t, 2, hints[0].PageIndex)
		assert.Equal(t, 25.0, hints[0].XPercent)
		assert.Equal(t, 0.9, hints[0].Confidence)
	})

	t.Run("should strip a markdown code fence", func(t *testing.T) {
		payload := "```json\n[{\"name\": \"Hummus\", \"x_percent\": 10, \"y_percent\": 20, \"confidence\": 0.8}]\n```"

		hints, err := parseHints(payload, 0)

		require.NoError(t, err)
		require.Len(t, hints, 1)
		assert.Equal(t, "Hummus", hints[0].RawName)
	})

	t.Run("should clamp out-of-range coordinates and confidence", func(t *testing.T) {
		hints, err := parseHints(`[{"name": "X", "x_percent": 140, "y_percent": -3, "confidence": 1.7}]`, 0)

		require.NoError(t, err)
		require.Len(t, hints, 1)
		assert.Equal(t, 100.0, hints[0].XPercent)
		assert.Equal(t, 0.0, hints[0].YPercent)
		assert.Equal(t, 1.0, hints[0].Confidence)
	})

	t.Run("should discard hints with empty names", func(t *testing.T) {
		hints, err := parseHints(`[{"name": "  ", "x_percent": 5, "y_percent": 5, "confidence": 0.5}, {"name": "Kofte", "x_percent": 5, "y_percent": 5, "confidence": 0.5}]`, 0)

		require.NoError(t, err)
		require.Len(t, hints, 1)
		assert.Equal(t, "Kofte", hints[0].RawName)
	})

	t.Run("should accept an empty array", func(t *testing.T) {
		hints, err := parseHints(`[]`, 0)

		require.NoError(t, err)
		assert.Empty(t, hints)
	})

	t.Run("should error on non-json output", func(t *testing.T) {
		_, err := parseHints("the page contains several dishes", 0)
		assert.Error(t, err)
	})
}
