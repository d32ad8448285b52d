package publisher

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter filters table events using glob patterns
type GlobFilter struct {
	tableGlobs []glob.Glob
}

// NewGlobFilter creates a new glob-based filter
// Empty patterns match everything
func NewGlobFilter(tablePatterns []string) (*GlobFilter, error) {
	filter := &GlobFilter{
		tableGlobs: make([]glob.Glob, 0, len(tablePatterns)),
	}

	for _, pattern := range tablePatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid table pattern %q: %w", pattern, err)
		}
		filter.tableGlobs = append(filter.tableGlobs, g)
	}

	return filter, nil
}

// Match returns true if table matches any configured pattern.
// Run-level events (empty table) always match.
func (f *GlobFilter) Match(table string) bool {
	if len(f.tableGlobs) == 0 || table == "" {
		return true
	}
	for _, g := range f.tableGlobs {
		if g.Match(table) {
			return true
		}
	}
	return false
}
