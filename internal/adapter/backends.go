package adapter

import (
	"github.com/example/shared-calendar/internal/persistence/memory"
	"github.com/example/shared-calendar/internal/persistence/sqlite"
)

// MemoryBackend exposes an in-memory store as a Backend.
func MemoryBackend(store *memory.Store) Backend {
	return Backend{
		Calendars:     store,
		Events:        store,
		Notifications: store,
		Users:         store,
		Sessions:      store,
	}
}

// SQLiteBackend exposes the repositories of a SQLite store as a Backend.
func SQLiteBackend(store *sqlite.Store) Backend {
	return Backend{
		Calendars:     store.Calendars,
		Events:        store.Events,
		Notifications: store.Notifications,
		Users:         store.Users,
		Sessions:      store.Sessions,
	}
}
