package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/valyala/bytebufferpool"

	"github.com/MartinInglin/da-bubble-sub000/pkg/errs"
	"github.com/MartinInglin/da-bubble-sub000/pkg/logger"
)

// Pebble is a Durable implementation backed by a local Pebble database.
// Records are stored under keys of the form <collection>/<id>; ids must not
// contain '/'.
type Pebble struct {
	db   *pebble.DB
	path string

	// mu serializes a write with its watcher notification so snapshots are
	// observed in write order per entity.
	mu sync.Mutex

	watchMu  sync.Mutex
	watchers map[string][]*Watch
}

var _ Durable = (*Pebble)(nil)

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Pebble, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: pebble open: %v", errs.ErrTransientIO, err)
	}
	logger.Info("pebble_opened", "path", path)
	return &Pebble{db: db, path: path, watchers: map[string][]*Watch{}}, nil
}

// Close closes the database and fails every open watch.
func (p *Pebble) Close() error {
	p.watchMu.Lock()
	for _, ws := range p.watchers {
		for _, w := range ws {
			w.fail(errs.ErrTransientIO)
		}
	}
	p.watchers = map[string][]*Watch{}
	p.watchMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return err
	}
	p.db = nil
	logger.Info("pebble_closed", "path", p.path)
	return nil
}

func key(collection, id string) []byte {
	return []byte(collection + "/" + id)
}

// Write stores the record and notifies watchers in write order.
func (p *Pebble) Write(ctx context.Context, collection, id string, record []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return fmt.Errorf("%w: store closed", errs.ErrTransientIO)
	}
	if err := p.db.Set(key(collection, id), record, pebble.Sync); err != nil {
		logger.Error("store_write_failed", "collection", collection, "id", id, "error", err)
		return fmt.Errorf("%w: pebble set: %v", errs.ErrTransientIO, err)
	}
	writesTotal.WithLabelValues(collection).Inc()
	logger.Debug("store_write", "collection", collection, "id", id, "len", len(record))
	p.notify(collection, id, record)
	return nil
}

// Read returns the current record or errs.ErrNotFound.
func (p *Pebble) Read(ctx context.Context, collection, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.db == nil {
		return nil, fmt.Errorf("%w: store closed", errs.ErrTransientIO)
	}
	v, closer, err := p.db.Get(key(collection, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: pebble get: %v", errs.ErrTransientIO, err)
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	readsTotal.WithLabelValues(collection).Inc()
	return out, nil
}

// UpdateFields merges top-level fields into the stored record. The record
// must exist. Provided fields replace existing values; absent fields are
// left untouched.
func (p *Pebble) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	cur, err := p.Read(ctx, collection, id)
	if err != nil {
		return err
	}
	var rec map[string]any
	if err := json.Unmarshal(cur, &rec); err != nil {
		return fmt.Errorf("invalid stored record %s/%s: %w", collection, id, err)
	}
	for k, v := range fields {
		rec[k] = v
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(rec); err != nil {
		return fmt.Errorf("marshal record %s/%s: %w", collection, id, err)
	}
	merged := append([]byte(nil), bytes.TrimRight(buf.B, "\n")...)
	return p.Write(ctx, collection, id, merged)
}

// List returns a lazy snapshot sequence over all records directly in the
// collection. Records in nested collections (ids containing '/') are
// skipped. Re-invoking the sequence restarts from a fresh iterator.
func (p *Pebble) List(ctx context.Context, collection string) iter.Seq2[[]byte, error] {
	prefix := []byte(collection + "/")
	return func(yield func([]byte, error) bool) {
		if p.db == nil {
			yield(nil, fmt.Errorf("%w: store closed", errs.ErrTransientIO))
			return
		}
		it, err := p.db.NewIter(&pebble.IterOptions{})
		if err != nil {
			yield(nil, fmt.Errorf("%w: pebble iter: %v", errs.ErrTransientIO, err))
			return
		}
		defer it.Close()
		for it.SeekGE(prefix); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !bytes.HasPrefix(it.Key(), prefix) {
				break
			}
			rest := string(it.Key()[len(prefix):])
			if strings.ContainsRune(rest, '/') {
				continue
			}
			v := append([]byte(nil), it.Value()...)
			if !yield(v, nil) {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(nil, fmt.Errorf("%w: pebble iter: %v", errs.ErrTransientIO, err))
		}
	}
}

// Observe opens a watch on (collection, id). When the record exists its
// current state is enqueued as the first snapshot; every later write
// follows in write order. An absent record yields nothing until the first
// write.
func (p *Pebble) Observe(ctx context.Context, collection, id string) (*Watch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := collection + "/" + id
	w := newWatch(k, p.detach)

	// The initial read and the registration happen under the write lock, so
	// no write can land between the seeded snapshot and the first
	// notification.
	p.mu.Lock()
	if p.db == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: store closed", errs.ErrTransientIO)
	}
	cur, closer, err := p.db.Get(key(collection, id))
	if err == nil {
		w.push(append([]byte(nil), cur...))
		if closer != nil {
			_ = closer.Close()
		}
	} else if !errors.Is(err, pebble.ErrNotFound) {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: pebble get: %v", errs.ErrTransientIO, err)
	}
	p.watchMu.Lock()
	p.watchers[k] = append(p.watchers[k], w)
	n := len(p.watchers[k])
	p.watchMu.Unlock()
	p.mu.Unlock()

	openWatches.Inc()
	logger.Debug("store_observe", "key", k, "watchers", n)
	return w, nil
}

func (p *Pebble) detach(w *Watch) {
	p.watchMu.Lock()
	ws := p.watchers[w.key]
	for i, cur := range ws {
		if cur == w {
			p.watchers[w.key] = append(ws[:i], ws[i+1:]...)
			openWatches.Dec()
			break
		}
	}
	if len(p.watchers[w.key]) == 0 {
		delete(p.watchers, w.key)
	}
	p.watchMu.Unlock()
}

// notify pushes the snapshot to every watcher of the key. Caller holds
// p.mu, which keeps snapshot order equal to write order.
func (p *Pebble) notify(collection, id string, record []byte) {
	k := collection + "/" + id
	p.watchMu.Lock()
	ws := append([]*Watch(nil), p.watchers[k]...)
	p.watchMu.Unlock()
	if len(ws) == 0 {
		return
	}
	snap := append([]byte(nil), record...)
	for _, w := range ws {
		w.push(snap)
	}
	notificationsTotal.WithLabelValues(collection).Add(float64(len(ws)))
}
