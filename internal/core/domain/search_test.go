package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchOptions_ClampedLimit(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		expected int
	}{
		{"zero uses default", 0, DefaultSearchLimit},
		{"negative uses default", -3, DefaultSearchLimit},
		{"in range kept", 25, 25},
		{"lower bound", 1, 1},
		{"upper bound", 50, 50},
		{"above max clamped", 500, MaxSearchLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := SearchOptions{Limit: tt.limit}
			assert.Equal(t, tt.expected, opts.ClampedLimit())
		})
	}
}
