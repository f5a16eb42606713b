package publisher

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter matches "schema.table" names against glob patterns such as "shop.*".
// An empty filter matches everything.
type GlobFilter struct {
	globs []glob.Glob
}

func NewGlobFilter(patterns []string) (*GlobFilter, error) {
	f := &GlobFilter{globs: make([]glob.Glob, 0, len(patterns))}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, fmt.Errorf("invalid table pattern %q: %w", pattern, err)
		}
		f.globs = append(f.globs, g)
	}
	return f, nil
}

func (f *GlobFilter) Match(schema, table string) bool {
	if f == nil || len(f.globs) == 0 {
		return true
	}
	name := schema + "." + table
	for _, g := range f.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
