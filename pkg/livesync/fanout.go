package livesync

import (
	"context"
	"sync"

	"github.com/MartinInglin/da-bubble-sub000/pkg/logger"
	"github.com/MartinInglin/da-bubble-sub000/pkg/store"
)

// State is the lifecycle of a per-entity feed.
type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateActive
	StateError
)

func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	default:
		return "unsubscribed"
	}
}

// Fanout republishes authoritative entity snapshots to every local
// subscriber of an entity id. It opens exactly one store observation per
// (collection, id) no matter how many local subscribers attach, and closes
// it when the last subscriber cancels.
type Fanout struct {
	db store.Durable

	mu    sync.Mutex
	feeds map[string]*feed
}

// New returns a fan-out over the given durable store.
func New(db store.Durable) *Fanout {
	return &Fanout{db: db, feeds: map[string]*feed{}}
}

// feed is the shared observation of one entity id plus its local
// subscriber set. Snapshot delivery runs on a single goroutine per feed so
// subscribers see snapshots in the order the store observed them.
type feed struct {
	owner      *Fanout
	key        string
	collection string
	id         string

	mu    sync.Mutex
	state State
	subs  map[*Subscription]struct{}
	last  []byte // latest delivered snapshot, seeds late subscribers
	dead  bool   // tearing down, no new subscribers
	watch *store.Watch
	done  chan struct{}
}

// Subscribe attaches a new subscriber to the feed for (collection, id),
// opening the store observation if this is the first local subscriber.
// The entity's current state arrives as the first snapshot when the record
// exists, then every later write in write order.
func (f *Fanout) Subscribe(ctx context.Context, collection, id string) (*Subscription, error) {
	key := collection + "/" + id

	f.mu.Lock()
	defer f.mu.Unlock()

	fd := f.feeds[key]
	var sub *Subscription
	if fd != nil {
		sub = newSubscription(fd)
		if !fd.attach(sub) {
			// the last cancel already marked the feed for teardown; its
			// deferred drop is a no-op once the entry is replaced
			delete(f.feeds, key)
			activeFeeds.Dec()
			fd = nil
		}
	}
	if fd == nil {
		fd = &feed{
			owner:      f,
			key:        key,
			collection: collection,
			id:         id,
			state:      StateSubscribing,
			subs:       map[*Subscription]struct{}{},
			done:       make(chan struct{}),
		}
		w, err := f.db.Observe(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		fd.watch = w
		fd.state = StateActive
		sub = newSubscription(fd)
		fd.subs[sub] = struct{}{}
		f.feeds[key] = fd
		activeFeeds.Inc()
		go fd.run()
		logger.Debug("fanout_feed_opened", "key", key)
	}
	subscribersGauge.Inc()
	logger.Debug("fanout_subscribed", "key", key)
	return sub, nil
}

// State reports the feed state for an entity id, StateUnsubscribed when no
// feed exists.
func (f *Fanout) State(collection, id string) State {
	f.mu.Lock()
	fd := f.feeds[collection+"/"+id]
	f.mu.Unlock()
	if fd == nil {
		return StateUnsubscribed
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.state
}

// run pumps the store watch until it errors or the feed is torn down.
func (fd *feed) run() {
	for {
		select {
		case <-fd.done:
			return
		case <-fd.watch.Notify():
			for {
				snap, ok := fd.watch.Next()
				if !ok {
					break
				}
				fd.deliver(snap)
			}
		case err := <-fd.watch.Err():
			fd.failAll(err)
			return
		}
	}
}

// attach adds a subscriber, seeding it with the latest delivered snapshot.
// Returns false when the feed is tearing down; the caller builds a fresh
// feed instead. Seeding under fd.mu keeps the seed ordered against the
// pump's sequential delivers.
func (fd *feed) attach(sub *Subscription) bool {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.dead {
		return false
	}
	if fd.last != nil {
		sub.push(fd.last)
	}
	fd.subs[sub] = struct{}{}
	return true
}

// deliver pushes one snapshot to every attached subscriber. Only the
// per-subscriber order is guaranteed, not the order across subscribers.
func (fd *feed) deliver(snap []byte) {
	fd.mu.Lock()
	fd.last = snap
	subs := make([]*Subscription, 0, len(fd.subs))
	for s := range fd.subs {
		subs = append(subs, s)
	}
	fd.mu.Unlock()
	for _, s := range subs {
		s.push(snap)
	}
	snapshotsDelivered.Add(float64(len(subs)))
}

// failAll delivers the error signal to every subscriber and leaves the
// feed unsubscribed. The fan-out never auto-retries; callers re-subscribe.
func (fd *feed) failAll(err error) {
	fd.mu.Lock()
	fd.state = StateError
	fd.dead = true
	subs := make([]*Subscription, 0, len(fd.subs))
	for s := range fd.subs {
		subs = append(subs, s)
	}
	fd.subs = map[*Subscription]struct{}{}
	fd.mu.Unlock()

	for _, s := range subs {
		s.fail(err)
		subscribersGauge.Dec()
	}
	fd.watch.Cancel()
	fd.owner.drop(fd)
	fd.mu.Lock()
	fd.state = StateUnsubscribed
	fd.mu.Unlock()
	logger.Warn("fanout_feed_failed", "key", fd.key, "error", err)
}

// detach removes one subscriber; the last detach marks the feed dead and
// closes the observation. Marking dead under fd.mu keeps a concurrent
// Subscribe from attaching to the dying feed.
func (fd *feed) detach(sub *Subscription) {
	fd.mu.Lock()
	if _, ok := fd.subs[sub]; !ok {
		fd.mu.Unlock()
		return
	}
	delete(fd.subs, sub)
	last := len(fd.subs) == 0
	if last {
		fd.dead = true
	}
	fd.mu.Unlock()
	subscribersGauge.Dec()

	if last {
		close(fd.done)
		fd.watch.Cancel()
		fd.owner.drop(fd)
		fd.mu.Lock()
		fd.state = StateUnsubscribed
		fd.mu.Unlock()
		logger.Debug("fanout_feed_closed", "key", fd.key)
	}
}

func (f *Fanout) drop(fd *feed) {
	f.mu.Lock()
	if f.feeds[fd.key] == fd {
		delete(f.feeds, fd.key)
		activeFeeds.Dec()
	}
	f.mu.Unlock()
}
