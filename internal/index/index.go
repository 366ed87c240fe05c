// Package index implements the Store-wide mapping from needle id to its
// on-disk descriptor, safe for concurrent use.
package index

import (
	"sync"

	"github.com/barnstore/barnstore/internal/needle"
)

// Index maps needle id to Needle descriptor. All operations are atomic
// relative to one another; ordering between operations from different
// goroutines is otherwise unspecified.
type Index struct {
	mu sync.RWMutex
	m  map[uint64]needle.Needle
}

// New returns an empty Index.
func New() *Index {
	return &Index{m: make(map[uint64]needle.Needle)}
}

// Get looks up id and reports whether it was found.
func (idx *Index) Get(id uint64) (needle.Needle, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.m[id]
	return n, ok
}

// Put inserts n under id only if id is not already present. It reports
// whether the insert happened.
func (idx *Index) Put(id uint64, n needle.Needle) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.m[id]; exists {
		return false
	}
	idx.m[id] = n
	return true
}

// Remove deletes id from the index and reports whether it was present.
func (idx *Index) Remove(id uint64) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.m[id]; !exists {
		return false
	}
	delete(idx.m, id)
	return true
}

// Len returns the current number of entries. Intended for diagnostics
// (e.g. the ambient status surface), not for correctness-sensitive code.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.m)
}

// CountByHaystack returns, for each haystack id currently referenced by
// some entry, the number of live entries pointing at it. Intended for
// diagnostics only.
func (idx *Index) CountByHaystack() map[uint64]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	counts := make(map[uint64]int)
	for _, n := range idx.m {
		counts[n.HaystackID]++
	}
	return counts
}
