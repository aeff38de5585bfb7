package catalog

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Store provides thread-safe access to the currently published datasets.
// Readers never block; writers copy the map.
type Store struct {
	datasets atomic.Pointer[map[string]*Dataset]
	writeMu  sync.Mutex
	mu       sync.Mutex // serializes fetch operations
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	s := &Store{}
	s.datasets.Store(&map[string]*Dataset{})
	return s
}

// Get returns the named dataset, or nil if none has been loaded.
func (s *Store) Get(name string) *Dataset {
	return (*s.datasets.Load())[name]
}

// All returns every loaded dataset sorted by catalog name.
func (s *Store) All() []*Dataset {
	m := *s.datasets.Load()
	out := make([]*Dataset, 0, len(m))
	for _, ds := range m {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source.Name < out[j].Source.Name })
	return out
}

// Set atomically replaces the dataset for ds.Source.Name.
func (s *Store) Set(ds *Dataset) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old := *s.datasets.Load()
	next := make(map[string]*Dataset, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[ds.Source.Name] = ds
	s.datasets.Store(&next)
}

// Age returns the named catalog's age by Last-Modified date.
func (s *Store) Age(name string, now time.Time) (time.Duration, bool) {
	ds := s.Get(name)
	if ds == nil {
		return 0, false
	}
	return ds.Age(now), true
}

// Lock acquires the fetch mutex for serializing fetch operations.
func (s *Store) Lock() {
	s.mu.Lock()
}

// Unlock releases the fetch mutex.
func (s *Store) Unlock() {
	s.mu.Unlock()
}
