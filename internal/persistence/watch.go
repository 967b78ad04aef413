package persistence

import (
	"context"
	"sync"
)

// Watcher fans change signals out to live queries. Each watch owns a
// goroutine that re-runs its query after every signal for its collection, so
// a subscriber always receives a full result set. Signals that arrive while a
// query is running collapse into one follow-up run; the last snapshot a
// subscriber sees always reflects the latest committed write.
type Watcher struct {
	mu      sync.Mutex
	nextID  uint64
	watches map[uint64]*watch
}

type watch struct {
	collection string
	signal     chan struct{}
	done       chan struct{}
	once       sync.Once
}

// NewWatcher returns an empty watcher.
func NewWatcher() *Watcher {
	return &Watcher{watches: make(map[uint64]*watch)}
}

// Watch runs refresh once immediately and again after every Notify for
// collection until the returned CancelFunc is called or ctx is done. refresh
// calls for one watch never overlap.
func (w *Watcher) Watch(ctx context.Context, collection string, refresh func(context.Context)) CancelFunc {
	if ctx == nil {
		ctx = context.Background()
	}
	entry := &watch{
		collection: collection,
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	entry.signal <- struct{}{}

	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.watches[id] = entry
	w.mu.Unlock()

	cancel := func() {
		entry.once.Do(func() {
			close(entry.done)
			w.mu.Lock()
			delete(w.watches, id)
			w.mu.Unlock()
		})
	}

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-entry.done:
				return
			case <-entry.signal:
			}
			// A cancel that raced with the signal wins.
			select {
			case <-entry.done:
				return
			default:
			}
			refresh(ctx)
		}
	}()

	return cancel
}

// Notify marks collection as changed.
func (w *Watcher) Notify(collection string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, entry := range w.watches {
		if entry.collection != collection {
			continue
		}
		select {
		case entry.signal <- struct{}{}:
		default:
		}
	}
}

// Len reports the number of live watches.
func (w *Watcher) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watches)
}
