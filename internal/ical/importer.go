package ical

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/example/shared-calendar/internal/application"
	"github.com/example/shared-calendar/internal/recurrence"
)

const (
	// DefaultLookBehind is how far before now recurring series are expanded.
	DefaultLookBehind = 30 * 24 * time.Hour
	// DefaultLookAhead is how far after now recurring series are expanded.
	DefaultLookAhead = 365 * 24 * time.Hour
)

type eventCreator interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (application.Event, error)
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Created   int
	Skipped   int
	Invalid   int
	Truncated []string
}

// Importer writes decoded documents into a calendar through the event service,
// so imported events obey the same validation and authorization as any other.
type Importer struct {
	events eventCreator
	now    func() time.Time
	logger *slog.Logger
}

// NewImporter wires an Importer.
func NewImporter(events eventCreator, now func() time.Time, logger *slog.Logger) *Importer {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{events: events, now: now, logger: logger}
}

// Import decodes r and creates every occurrence in calendarID on behalf of
// identity. A zero opts.Window expands series from DefaultLookBehind before
// now to DefaultLookAhead after it. Occurrences rejected by validation are
// counted; any other failure stops the import.
func (i *Importer) Import(ctx context.Context, identity application.Identity, calendarID string, r io.Reader, opts DecodeOptions) (ImportResult, error) {
	if opts.Window.Start.IsZero() && opts.Window.End.IsZero() {
		now := i.now()
		opts.Window = recurrence.Window{Start: now.Add(-DefaultLookBehind), End: now.Add(DefaultLookAhead)}
	}
	logger := i.logger.With("component", "ical", "user_id", identity.UID, "calendar_id", calendarID)

	entries, report, err := Decode(ctx, r, opts)
	if err != nil {
		logger.WarnContext(ctx, "ical import rejected", "error", err)
		return ImportResult{}, err
	}

	result := ImportResult{Skipped: report.Skipped, Truncated: report.Truncated}
	for _, input := range Inputs(entries, calendarID) {
		_, err := i.events.CreateEvent(ctx, application.CreateEventParams{Identity: identity, Input: input})
		var vErr *application.ValidationError
		switch {
		case err == nil:
			result.Created++
		case errors.As(err, &vErr):
			result.Invalid++
		default:
			logger.ErrorContext(ctx, "ical import aborted", "created", result.Created, "error", err, "error_kind", application.ErrorKind(err))
			return result, err
		}
	}
	logger.InfoContext(ctx, "ical import completed", "created", result.Created, "skipped", result.Skipped, "invalid", result.Invalid)
	return result, nil
}
