package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// CalendarAggregator computes the calendars an identity can see: the ones it
// is a member of and the ones shared with its email.
type CalendarAggregator struct {
	calendars CalendarRepository
	logger    *slog.Logger
}

// NewCalendarAggregator wires the aggregator.
func NewCalendarAggregator(calendars CalendarRepository, logger *slog.Logger) *CalendarAggregator {
	return &CalendarAggregator{calendars: calendars, logger: defaultLogger(logger)}
}

func (a *CalendarAggregator) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, a.logger, "CalendarAggregator", operation, attrs...)
}

// AccessibleCalendars returns the union of owned and shared calendars, owned
// first. A failing query is logged and contributes nothing, so the result may
// be partial; the error is reserved for a missing repository.
func (a *CalendarAggregator) AccessibleCalendars(ctx context.Context, identity Identity) ([]Calendar, error) {
	if a == nil || a.calendars == nil {
		return nil, fmt.Errorf("calendar repository not configured")
	}
	calendars, _ := a.collect(ctx, identity)
	return calendars, nil
}

// AccessibleCalendarsStrict is AccessibleCalendars but reports an error when
// both underlying queries failed.
func (a *CalendarAggregator) AccessibleCalendarsStrict(ctx context.Context, identity Identity) ([]Calendar, error) {
	if a == nil || a.calendars == nil {
		return nil, fmt.Errorf("calendar repository not configured")
	}
	return a.collect(ctx, identity)
}

// AccessibleCalendarIDs lists the ids of AccessibleCalendars in the same order.
func (a *CalendarAggregator) AccessibleCalendarIDs(ctx context.Context, identity Identity) ([]string, error) {
	calendars, err := a.AccessibleCalendars(ctx, identity)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(calendars))
	for i, c := range calendars {
		ids[i] = c.ID
	}
	return ids, nil
}

func (a *CalendarAggregator) collect(ctx context.Context, identity Identity) ([]Calendar, error) {
	if identity.UID == "" {
		return nil, nil
	}
	logger := a.loggerWith(ctx, "AccessibleCalendars", "user_id", identity.UID)

	var (
		wg                  sync.WaitGroup
		owned, shared       []Calendar
		ownedErr, sharedErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		owned, ownedErr = a.calendars.ListCalendarsByMember(ctx, identity.UID)
	}()
	if email := normalizeEmail(identity.Email); email != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shared, sharedErr = a.calendars.ListCalendarsBySharedEmail(ctx, email)
		}()
	}
	wg.Wait()

	if ownedErr != nil {
		logger.WarnContext(ctx, "owned calendar query failed", "error", ownedErr, errorKindAttr(ownedErr))
		owned = nil
	}
	if sharedErr != nil {
		logger.WarnContext(ctx, "shared calendar query failed", "error", sharedErr, errorKindAttr(sharedErr))
		shared = nil
	}

	merged := mergeAccessible(owned, shared)
	if ownedErr != nil && (sharedErr != nil || identity.Email == "") {
		return merged, errors.Join(ownedErr, sharedErr)
	}
	return merged, nil
}

// mergeAccessible de-duplicates by id. Calendars from the member query come
// first; both groups are ordered by creation time then id so the outcome does
// not depend on which query answered first.
func mergeAccessible(owned, shared []Calendar) []Calendar {
	byID := make(map[string]Calendar, len(owned)+len(shared))
	fromOwned := make(map[string]bool, len(owned))
	for _, c := range owned {
		if prev, ok := byID[c.ID]; ok {
			c = mergeCalendar(prev, c)
		}
		byID[c.ID] = c
		fromOwned[c.ID] = true
	}
	for _, c := range shared {
		if prev, ok := byID[c.ID]; ok {
			c = mergeCalendar(prev, c)
		}
		byID[c.ID] = c
	}

	out := make([]Calendar, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, oj := fromOwned[out[i].ID], fromOwned[out[j].ID]
		if oi != oj {
			return oi
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// mergeCalendar combines two reads of the same calendar field by field: the
// later UpdatedAt wins for scalars, zero values are filled from the other
// side and the lists are unioned.
func mergeCalendar(a, b Calendar) Calendar {
	newer, older := a, b
	if b.UpdatedAt.After(a.UpdatedAt) {
		newer, older = b, a
	}
	out := newer
	out.Name = firstNonEmpty(newer.Name, older.Name)
	out.Color = firstNonEmpty(newer.Color, older.Color)
	out.OwnerID = firstNonEmpty(newer.OwnerID, older.OwnerID)
	out.OwnerEmail = firstNonEmpty(newer.OwnerEmail, older.OwnerEmail)
	out.OwnerName = firstNonEmpty(newer.OwnerName, older.OwnerName)
	if out.CreatedAt.IsZero() {
		out.CreatedAt = older.CreatedAt
	}
	out.Members = unionStrings(newer.Members, older.Members)
	out.SharedEmails = unionStrings(newer.SharedEmails, older.SharedEmails)
	return out
}

func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if !containsString(out, v) {
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !containsString(out, v) {
			out = append(out, v)
		}
	}
	return out
}
