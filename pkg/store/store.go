package store

import (
	"context"
	"iter"
	"sync"
)

// Collection names for the persisted layout. Threads live in a nested
// per-channel collection, see ThreadCollection.
const (
	Users          = "users"
	Channels       = "channels"
	DirectMessages = "directMessages"
)

// ThreadCollection returns the nested thread collection of a channel.
func ThreadCollection(channelID string) string {
	return Channels + "/" + channelID + "/threads"
}

// Durable is the system of record. Every entity is a JSON record keyed by
// its id inside a collection. Writes are not buffered or queued; transient
// failures surface to the caller, who decides whether to retry.
type Durable interface {
	// Write stores the full record for id, replacing any previous value,
	// and pushes the new snapshot to every open watch on (collection, id).
	Write(ctx context.Context, collection, id string, record []byte) error
	// Read returns the current record or errs.ErrNotFound.
	Read(ctx context.Context, collection, id string) ([]byte, error)
	// UpdateFields merges the given top-level fields into the stored
	// record. Fields not provided are never removed. Last write wins per
	// call; there is no field-level merge across concurrent writers.
	UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error
	// List returns a lazy, restartable snapshot sequence of all records in
	// a collection. Iterating again re-reads the store.
	List(ctx context.Context, collection string) iter.Seq2[[]byte, error]
	// Observe opens a watch on (collection, id). The current record, when
	// present, arrives as the first snapshot, then the full record after
	// every subsequent change, in write order. Snapshots not yet consumed
	// by the watcher are coalesced into the latest one.
	Observe(ctx context.Context, collection, id string) (*Watch, error)
	Close() error
}

// Watch is a handle on one observation of a single entity id. Cancel must
// be called when the watch is no longer needed.
type Watch struct {
	key string

	mu      sync.Mutex
	pending [][]byte // unconsumed snapshots, oldest first
	notify  chan struct{}
	errs    chan error
	closed  bool

	cancel func(*Watch)
	once   sync.Once
}

func newWatch(key string, cancel func(*Watch)) *Watch {
	return &Watch{
		key:    key,
		notify: make(chan struct{}, 1),
		errs:   make(chan error, 1),
		cancel: cancel,
	}
}

// Notify returns a channel that signals when Next would return a snapshot.
func (w *Watch) Notify() <-chan struct{} { return w.notify }

// Err returns a channel carrying at most one terminal error, e.g. when the
// store closes underneath the watch.
func (w *Watch) Err() <-chan error { return w.errs }

// Next pops the oldest unconsumed snapshot. It returns false when nothing
// is pending.
func (w *Watch) Next() ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return nil, false
	}
	snap := w.pending[0]
	w.pending = w.pending[1:]
	if len(w.pending) > 0 {
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
	return snap, true
}

// push appends a snapshot, coalescing the backlog into the latest value
// when the watcher has fallen behind.
func (w *Watch) push(snap []byte) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if len(w.pending) >= maxPendingSnapshots {
		w.pending = w.pending[:0]
	}
	w.pending = append(w.pending, snap)
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// fail delivers a terminal error and detaches the watch.
func (w *Watch) fail(err error) {
	w.mu.Lock()
	closed := w.closed
	w.closed = true
	w.mu.Unlock()
	if closed {
		return
	}
	select {
	case w.errs <- err:
	default:
	}
}

// Cancel detaches the watch from the store. Idempotent.
func (w *Watch) Cancel() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.pending = nil
		w.mu.Unlock()
		if w.cancel != nil {
			w.cancel(w)
		}
	})
}

// maxPendingSnapshots bounds the per-watch backlog. A watcher that falls
// this far behind only cares about the latest state anyway.
const maxPendingSnapshots = 64
