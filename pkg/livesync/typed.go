package livesync

import (
	"encoding/json"

	"github.com/MartinInglin/da-bubble-sub000/pkg/logger"
)

// TypedSub decodes raw fan-out snapshots into entity values. It keeps the
// coalescing behavior of the underlying subscription.
type TypedSub[T any] struct {
	raw     *Subscription
	updates chan T
	errs    chan error
}

// Decode wraps a raw subscription. Snapshots that fail to decode are
// dropped with a log line rather than killing the stream.
func Decode[T any](raw *Subscription) *TypedSub[T] {
	t := &TypedSub[T]{
		raw:     raw,
		updates: make(chan T, 1),
		errs:    make(chan error, 1),
	}
	go t.run()
	return t
}

// Updates returns the decoded snapshot channel.
func (t *TypedSub[T]) Updates() <-chan T { return t.updates }

// Err returns the terminal error channel.
func (t *TypedSub[T]) Err() <-chan error { return t.errs }

// Cancel detaches the underlying subscription.
func (t *TypedSub[T]) Cancel() { t.raw.Cancel() }

func (t *TypedSub[T]) run() {
	for {
		select {
		case <-t.raw.Done():
			return
		case snap := <-t.raw.Updates():
			var v T
			if err := json.Unmarshal(snap, &v); err != nil {
				logger.Error("fanout_snapshot_decode_failed", "error", err)
				continue
			}
			t.push(v)
		case err := <-t.raw.Err():
			select {
			case t.errs <- err:
			default:
			}
			return
		}
	}
}

// push mirrors Subscription.push: latest wins when the consumer is behind.
func (t *TypedSub[T]) push(v T) {
	for {
		select {
		case t.updates <- v:
			return
		default:
		}
		select {
		case <-t.updates:
			snapshotsCoalesced.Inc()
		default:
		}
	}
}
