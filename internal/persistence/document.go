package persistence

import (
	"fmt"
	"sort"
	"time"
)

// SchemaVersion is the document layout written by this build. Readers reject
// any other value instead of guessing at the shape.
const SchemaVersion = 1

const schemaVersionField = "schemaVersion"

// Document is the field map of a stored record, keyed by wire field name.
// Values are string, bool, int, []string or time.Time.
type Document map[string]any

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		switch typed := v.(type) {
		case []string:
			out[k] = cloneStrings(typed)
		case []any:
			cp := make([]any, len(typed))
			copy(cp, typed)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// DecodeError describes why a stored document was rejected.
type DecodeError struct {
	Collection string
	ID         string
	Field      string
	Reason     string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("persistence: %s/%s: %s", e.Collection, e.ID, e.Reason)
	}
	return fmt.Sprintf("persistence: %s/%s: field %q: %s", e.Collection, e.ID, e.Field, e.Reason)
}

// Unwrap lets callers match ErrMalformedDocument.
func (e *DecodeError) Unwrap() error {
	return ErrMalformedDocument
}

// EncodeCalendar converts a calendar to its stored document form.
func EncodeCalendar(c Calendar) Document {
	return Document{
		schemaVersionField: SchemaVersion,
		"name":             c.Name,
		"color":            c.Color,
		"ownerId":          c.OwnerID,
		"ownerEmail":       c.OwnerEmail,
		"ownerName":        c.OwnerName,
		"isDefault":        c.IsDefault,
		"members":          cloneStrings(c.Members),
		"sharedEmails":     cloneStrings(c.SharedEmails),
		"createdAt":        c.CreatedAt,
		"updatedAt":        c.UpdatedAt,
	}
}

// DecodeCalendar validates doc and converts it to a Calendar.
func DecodeCalendar(id string, doc Document) (Calendar, error) {
	r := newFieldReader(CollectionCalendars, id, doc)
	c := Calendar{
		ID:           id,
		Name:         r.str("name", true),
		Color:        r.str("color", false),
		OwnerID:      r.str("ownerId", true),
		OwnerEmail:   r.str("ownerEmail", false),
		OwnerName:    r.str("ownerName", false),
		IsDefault:    r.boolean("isDefault"),
		Members:      r.strs("members"),
		SharedEmails: r.strs("sharedEmails"),
		CreatedAt:    r.timestamp("createdAt", true),
		UpdatedAt:    r.timestamp("updatedAt", false),
	}
	if err := r.finish(); err != nil {
		return Calendar{}, err
	}
	return c, nil
}

// EncodeEvent converts an event to its stored document form.
func EncodeEvent(e Event) Document {
	return Document{
		schemaVersionField: SchemaVersion,
		"title":            e.Title,
		"description":      e.Description,
		"location":         e.Location,
		"start":            e.Start,
		"end":              e.End,
		"color":            e.Color,
		"calendarId":       e.CalendarID,
		"userId":           e.UserID,
		"isShared":         e.IsShared,
		"sharedWith":       cloneStrings(e.SharedWith),
		"createdAt":        e.CreatedAt,
		"updatedAt":        e.UpdatedAt,
	}
}

// DecodeEvent validates doc and converts it to an Event.
func DecodeEvent(id string, doc Document) (Event, error) {
	r := newFieldReader(CollectionEvents, id, doc)
	e := Event{
		ID:          id,
		Title:       r.str("title", true),
		Description: r.str("description", false),
		Location:    r.str("location", false),
		Start:       r.timestamp("start", true),
		End:         r.timestamp("end", true),
		Color:       r.str("color", false),
		CalendarID:  r.str("calendarId", true),
		UserID:      r.str("userId", false),
		IsShared:    r.boolean("isShared"),
		SharedWith:  r.strs("sharedWith"),
		CreatedAt:   r.timestamp("createdAt", true),
		UpdatedAt:   r.timestamp("updatedAt", false),
	}
	if err := r.finish(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// EncodeNotification converts a notification to its stored document form.
func EncodeNotification(n Notification) Document {
	return Document{
		schemaVersionField: SchemaVersion,
		"userId":           n.UserID,
		"title":            n.Title,
		"message":          n.Message,
		"type":             n.Type,
		"eventId":          n.EventID,
		"read":             n.Read,
		"createdAt":        n.CreatedAt,
	}
}

// DecodeNotification validates doc and converts it to a Notification.
func DecodeNotification(id string, doc Document) (Notification, error) {
	r := newFieldReader(CollectionNotifications, id, doc)
	n := Notification{
		ID:        id,
		UserID:    r.str("userId", true),
		Title:     r.str("title", true),
		Message:   r.str("message", false),
		Type:      r.str("type", true),
		EventID:   r.str("eventId", false),
		Read:      r.boolean("read"),
		CreatedAt: r.timestamp("createdAt", true),
	}
	if err := r.finish(); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// CheckSchemaVersion rejects rows written under another layout.
func CheckSchemaVersion(collection, id string, version int) error {
	if version != SchemaVersion {
		return &DecodeError{Collection: collection, ID: id, Field: schemaVersionField, Reason: fmt.Sprintf("unsupported version %d", version)}
	}
	return nil
}

// fieldReader records the first problem it meets and tracks which keys were
// consumed so finish can reject unknown fields.
type fieldReader struct {
	collection string
	id         string
	doc        Document
	seen       map[string]struct{}
	err        error
}

func newFieldReader(collection, id string, doc Document) *fieldReader {
	r := &fieldReader{collection: collection, id: id, doc: doc, seen: make(map[string]struct{}, len(doc))}
	if doc == nil {
		r.fail("", "document is empty")
		return r
	}
	r.seen[schemaVersionField] = struct{}{}
	switch v := doc[schemaVersionField].(type) {
	case int:
		if v != SchemaVersion {
			r.fail(schemaVersionField, fmt.Sprintf("unsupported version %d", v))
		}
	case nil:
		r.fail(schemaVersionField, "missing")
	default:
		r.fail(schemaVersionField, fmt.Sprintf("unexpected type %T", v))
	}
	return r
}

func (r *fieldReader) fail(field, reason string) {
	if r.err == nil {
		r.err = &DecodeError{Collection: r.collection, ID: r.id, Field: field, Reason: reason}
	}
}

func (r *fieldReader) lookup(key string) (any, bool) {
	r.seen[key] = struct{}{}
	v, ok := r.doc[key]
	if ok && v == nil {
		return nil, false
	}
	return v, ok
}

func (r *fieldReader) str(key string, required bool) string {
	v, ok := r.lookup(key)
	if !ok {
		if required {
			r.fail(key, "missing")
		}
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(key, fmt.Sprintf("expected string, got %T", v))
		return ""
	}
	if required && s == "" {
		r.fail(key, "empty")
	}
	return s
}

func (r *fieldReader) boolean(key string) bool {
	v, ok := r.lookup(key)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		r.fail(key, fmt.Sprintf("expected bool, got %T", v))
	}
	return b
}

func (r *fieldReader) strs(key string) []string {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	switch typed := v.(type) {
	case []string:
		return cloneStrings(typed)
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				r.fail(key, fmt.Sprintf("expected string element, got %T", item))
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		r.fail(key, fmt.Sprintf("expected string list, got %T", v))
		return nil
	}
}

func (r *fieldReader) timestamp(key string, required bool) time.Time {
	v, ok := r.lookup(key)
	if !ok {
		if required {
			r.fail(key, "missing")
		}
		return time.Time{}
	}
	ts, ok := v.(time.Time)
	if !ok {
		r.fail(key, fmt.Sprintf("expected timestamp, got %T", v))
		return time.Time{}
	}
	if required && ts.IsZero() {
		r.fail(key, "zero timestamp")
	}
	return ts
}

func (r *fieldReader) finish() error {
	if r.err != nil {
		return r.err
	}
	var unknown []string
	for key := range r.doc {
		if _, ok := r.seen[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &DecodeError{Collection: r.collection, ID: r.id, Field: unknown[0], Reason: "unknown field"}
	}
	return nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
