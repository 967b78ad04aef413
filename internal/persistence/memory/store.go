// Package memory is an in-process document database. Calendars, events and
// notifications are kept as versioned persistence.Document values and decoded
// on every read, so a malformed record fails the read instead of leaking a
// half-populated struct. Users and sessions are plain typed maps.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/shared-calendar/internal/persistence"
)

// Store implements every repository in package persistence.
type Store struct {
	mu       sync.RWMutex
	docs     map[string]map[string]persistence.Document
	users    map[string]persistence.User
	sessions map[string]persistence.Session
	watcher  *persistence.Watcher
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the source of server-assigned timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		docs: map[string]map[string]persistence.Document{
			persistence.CollectionCalendars:     {},
			persistence.CollectionEvents:        {},
			persistence.CollectionNotifications: {},
		},
		users:    make(map[string]persistence.User),
		sessions: make(map[string]persistence.Session),
		watcher:  persistence.NewWatcher(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases resources held by the store. No-op for the in-memory implementation.
func (s *Store) Close() error {
	return nil
}

// Migrate initialises the store. No-op for the in-memory implementation.
func (s *Store) Migrate(context.Context) error {
	return nil
}

// PutDocument stores doc verbatim under collection/id and notifies watchers.
// It bypasses encoding, which makes it the way to load foreign data.
func (s *Store) PutDocument(collection, id string, doc persistence.Document) {
	s.mu.Lock()
	if s.docs[collection] == nil {
		s.docs[collection] = map[string]persistence.Document{}
	}
	s.docs[collection][id] = doc.Clone()
	s.mu.Unlock()
	s.watcher.Notify(collection)
}

// Watches reports the number of live subscriptions.
func (s *Store) Watches() int {
	return s.watcher.Len()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// Op is a filter operator.
type Op int

const (
	// OpEqual matches a scalar field equal to Value.
	OpEqual Op = iota
	// OpArrayContains matches a list field containing Value.
	OpArrayContains
	// OpIn matches a scalar field equal to any of Value ([]string).
	OpIn
)

// Filter is one query predicate.
type Filter struct {
	Field string
	Op    Op
	Value any
}

type entry struct {
	id  string
	doc persistence.Document
}

// queryLocked returns the documents in collection matching all filters,
// ordered by createdAt then id. Callers hold s.mu.
func (s *Store) queryLocked(collection string, filters ...Filter) ([]entry, error) {
	for _, f := range filters {
		if f.Op != OpIn {
			continue
		}
		values, _ := f.Value.([]string)
		if len(values) > persistence.MaxInFilterValues {
			return nil, persistence.ErrInFilterTooLarge
		}
	}

	var out []entry
	for id, doc := range s.docs[collection] {
		if matchesAll(doc, filters) {
			out = append(out, entry{id: id, doc: doc})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ci, _ := out[i].doc["createdAt"].(time.Time)
		cj, _ := out[j].doc["createdAt"].(time.Time)
		if ci.Equal(cj) {
			return out[i].id < out[j].id
		}
		return ci.Before(cj)
	})
	return out, nil
}

func matchesAll(doc persistence.Document, filters []Filter) bool {
	for _, f := range filters {
		if !matches(doc, f) {
			return false
		}
	}
	return true
}

func matches(doc persistence.Document, f Filter) bool {
	value := doc[f.Field]
	switch f.Op {
	case OpEqual:
		return value == f.Value
	case OpArrayContains:
		want, _ := f.Value.(string)
		for _, item := range stringList(value) {
			if item == want {
				return true
			}
		}
		return false
	case OpIn:
		got, ok := value.(string)
		if !ok {
			return false
		}
		values, _ := f.Value.([]string)
		for _, candidate := range values {
			if candidate == got {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func stringList(v any) []string {
	switch typed := v.(type) {
	case []string:
		return typed
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
