package livesync

import "sync"

// Subscription is one local subscriber's handle on a feed. Snapshots are
// delivered through Updates in observed order; when the subscriber has not
// consumed a pending snapshot, it is coalesced into the newer one
// (at-most-latest delivery). Err carries at most one terminal error, after
// which the subscription is dead and the caller must re-subscribe.
type Subscription struct {
	fd      *feed
	updates chan []byte
	errs    chan error
	done    chan struct{}
	once    sync.Once
}

func newSubscription(fd *feed) *Subscription {
	return &Subscription{
		fd:      fd,
		updates: make(chan []byte, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Updates returns the snapshot channel. Each value is the full entity
// record as stored.
func (s *Subscription) Updates() <-chan []byte { return s.updates }

// Err returns the terminal error channel.
func (s *Subscription) Err() <-chan error { return s.errs }

// Done returns a channel closed when the subscription is canceled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancel detaches the subscriber. The last cancel on a feed closes the
// underlying store observation. Idempotent.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.done)
		s.fd.detach(s)
	})
}

// push delivers a snapshot with latest-wins coalescing: if the previous
// snapshot was not yet consumed it is replaced.
func (s *Subscription) push(snap []byte) {
	for {
		select {
		case s.updates <- snap:
			return
		default:
		}
		select {
		case <-s.updates:
			snapshotsCoalesced.Inc()
		default:
		}
	}
}

func (s *Subscription) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}
