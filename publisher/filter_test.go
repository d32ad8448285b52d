package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGlobFilter(t *testing.T) {
	filter, err := NewGlobFilter([]string{"impi", "impu"})
	require.NoError(t, err)
	assert.Len(t, filter.tableGlobs, 2)
}

func TestGlobFilter_EmptyPatterns(t *testing.T) {
	filter, err := NewGlobFilter(nil)
	require.NoError(t, err)

	assert.True(t, filter.Match("impi"))
	assert.True(t, filter.Match("call_lists"))
	assert.True(t, filter.Match(""))
}

func TestGlobFilter_Patterns(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		table    string
		want     bool
	}{
		{"exact", []string{"impi"}, "impi", true},
		{"exact miss", []string{"impi"}, "impu", false},
		{"wildcard", []string{"imp*"}, "impu", true},
		{"wildcard miss", []string{"imp*"}, "public", false},
		{"alternatives", []string{"{public,private}"}, "private", true},
		{"single char", []string{"imp?"}, "impi", true},
		{"second pattern", []string{"simservs", "call_*"}, "call_lists", true},
		{"run event", []string{"impi"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := NewGlobFilter(tt.patterns)
			require.NoError(t, err)
			assert.Equal(t, tt.want, filter.Match(tt.table))
		})
	}
}

func TestGlobFilter_InvalidPattern(t *testing.T) {
	_, err := NewGlobFilter([]string{"[unclosed"})
	assert.Error(t, err)
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, "homer/simservs", Event{Profile: "homer", Table: "simservs"}.Key())
	assert.Equal(t, "homer", Event{Profile: "homer"}.Key())
}
