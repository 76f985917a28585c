package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeValues(t *testing.T) {
	got := NormalizeValues(map[string]any{
		"number": float64(3),
		"ratio":  1.5,
		"body":   "x",
		"gone":   nil,
	})
	assert.Equal(t, map[string]any{
		"number": int64(3),
		"ratio":  1.5,
		"body":   "x",
		"gone":   nil,
	}, got)
}

func TestParseQueryValue(t *testing.T) {
	assert.Nil(t, ParseQueryValue("null"))
	assert.Equal(t, int64(42), ParseQueryValue("42"))
	assert.Equal(t, "q1", ParseQueryValue("q1"))
}
