// Package cache keeps per-workflow classification results and the backend
// schema catalog between loads, so re-opening a workflow does not re-query
// the backend.  Entries invalidate against the source file's modification
// time.
package cache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arlewin/comfybatch/graphapi"
)

// Entry is one cached workflow record.
type Entry struct {
	Path      string                  `json:"path"`
	Schema    *graphapi.SchemaCatalog `json:"schema_catalog,omitempty"`
	Sampler   *graphapi.SamplerInfo   `json:"sampler_info,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// WorkflowKey derives the cache key for a workflow path: the base filename
// with its extension stripped.  Distinct files sharing a base name alias to
// the same slot; that ambiguity is accepted, not fixed.
func WorkflowKey(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Store is the in-memory cache.  It is safe for concurrent use, though the
// load path touches it from one goroutine at a time in practice.
type Store struct {
	mu      sync.Mutex
	entries map[string]Entry
	logger  *zap.Logger
	now     func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger attaches a structured logger; the default discards everything.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces the timestamp source, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty cache.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[string]Entry),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the entry for a workflow path, or false if there is none or the
// source file has been modified since the entry was written.  Stale entries
// are evicted on the spot.
func (s *Store) Get(path string) (Entry, bool) {
	key := WorkflowKey(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	if st, err := os.Stat(path); err == nil && st.ModTime().After(e.Timestamp) {
		delete(s.entries, key)
		s.logger.Debug("evicted stale cache entry", zap.String("key", key))
		return Entry{}, false
	}
	return e, true
}

// Put records (or overwrites) the entry for a workflow path, timestamped now.
func (s *Store) Put(path string, schema *graphapi.SchemaCatalog, sampler *graphapi.SamplerInfo) {
	key := WorkflowKey(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = Entry{
		Path:      path,
		Schema:    schema,
		Sampler:   sampler,
		Timestamp: s.now(),
	}
	s.logger.Debug("cached workflow info", zap.String("key", key))
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
}

// Len reports the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Names returns the cached workflow keys, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for k := range s.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
