package registry

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is the current name of a table id.
type Entry struct {
	Schema string
	Table  string
}

// Registry maps binlog table ids to their current (schema, table) pair.
// The default registry is unbounded and never compacted.
type Registry struct {
	entries map[uint64]Entry
	bounded *lru.Cache[uint64, Entry]
}

func New() *Registry {
	return &Registry{entries: make(map[uint64]Entry)}
}

// NewBounded keeps at most size entries, evicting the least recently used id.
// A table id evicted here will surface as an unknown table until its next table map.
func NewBounded(size int) (*Registry, error) {
	cache, err := lru.New[uint64, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("table registry cache: %w", err)
	}
	return &Registry{bounded: cache}, nil
}

// Record stores or overwrites the entry for tableID.
func (r *Registry) Record(tableID uint64, schema, table string) {
	e := Entry{Schema: schema, Table: table}
	if r.bounded != nil {
		r.bounded.Add(tableID, e)
		return
	}
	r.entries[tableID] = e
}

func (r *Registry) Lookup(tableID uint64) (Entry, bool) {
	if r.bounded != nil {
		return r.bounded.Get(tableID)
	}
	e, ok := r.entries[tableID]
	return e, ok
}

func (r *Registry) Len() int {
	if r.bounded != nil {
		return r.bounded.Len()
	}
	return len(r.entries)
}
