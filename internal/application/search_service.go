package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// SearchMinQueryLength is the shortest query, in characters, that runs.
	SearchMinQueryLength = 2
	// SearchResultLimit caps the number of search results.
	SearchResultLimit = 5
)

// SearchService finds events by free text across every accessible calendar,
// regardless of which calendars are toggled on.
type SearchService struct {
	events     EventRepository
	aggregator *CalendarAggregator
	cache      *accessCache
	batchSize  int
	logger     *slog.Logger
}

// SearchOptions tunes a SearchService.
type SearchOptions struct {
	// AccessTTL keeps aggregated calendar ids per user for this long. Zero
	// disables caching.
	AccessTTL time.Duration
	BatchSize int
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewSearchService wires the search service.
func NewSearchService(events EventRepository, calendars CalendarRepository, opts SearchOptions) *SearchService {
	logger := defaultLogger(opts.Logger)
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &SearchService{
		events:     events,
		aggregator: NewCalendarAggregator(calendars, logger),
		cache:      newAccessCache(opts.AccessTTL, 0, opts.Now),
		batchSize:  batch,
		logger:     logger,
	}
}

// Search returns up to SearchResultLimit events whose title, description or
// location contains query, case-insensitively, ordered by start. Queries
// shorter than SearchMinQueryLength return nil without touching the store.
//
// Matching is a linear scan over every accessible event; a real full-text
// index is what a large deployment would need.
func (s *SearchService) Search(ctx context.Context, identity Identity, query string) ([]Event, error) {
	if s == nil || s.events == nil || s.aggregator == nil {
		return nil, fmt.Errorf("search repositories not configured")
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if len([]rune(needle)) < SearchMinQueryLength {
		return nil, nil
	}
	if identity.UID == "" {
		return nil, ErrUnauthorized
	}
	logger := serviceLogger(ctx, s.logger, "SearchService", "Search", "user_id", identity.UID)

	key := accessCacheKey(identity)
	ids, ok := s.cache.Get(key)
	if !ok {
		var err error
		ids, err = s.aggregator.AccessibleCalendarIDs(ctx, identity)
		if err != nil {
			return nil, err
		}
		s.cache.Store(key, ids)
	}

	var matches []Event
	for _, e := range listEventsBatched(ctx, s.events, ids, s.batchSize, logger) {
		if matchesQuery(e, needle) {
			matches = append(matches, e)
		}
	}
	sortEventsByStart(matches)
	if len(matches) > SearchResultLimit {
		matches = matches[:SearchResultLimit]
	}
	logger.DebugContext(ctx, "search completed", "calendars", len(ids), "results", len(matches))
	return matches, nil
}

// InvalidateAccess drops cached calendar ids, e.g. after a share changes.
func (s *SearchService) InvalidateAccess() {
	if s != nil {
		s.cache.Invalidate()
	}
}

func matchesQuery(e Event, needle string) bool {
	for _, field := range []string{e.Title, e.Description, e.Location} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
