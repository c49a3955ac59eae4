package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/MartinInglin/da-bubble-sub000/pkg/errs"
	"github.com/MartinInglin/da-bubble-sub000/pkg/models"
	"github.com/MartinInglin/da-bubble-sub000/pkg/store"
)

func newTestFanout(t *testing.T) (*Fanout, *store.Pebble) {
	t.Helper()
	p, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return New(p), p
}

func recvSnapshot(t *testing.T, sub *Subscription) []byte {
	t.Helper()
	select {
	case snap := <-sub.Updates():
		return snap
	case err := <-sub.Err():
		t.Fatalf("subscription failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot within 2s")
	}
	return nil
}

func TestSubscriberSeesWrites(t *testing.T) {
	fan, p := newTestFanout(t)
	ctx := context.Background()

	sub, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	if err := p.Write(ctx, store.Channels, "c1", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := recvSnapshot(t, sub); string(got) != `{"v":1}` {
		t.Fatalf("snapshot = %s", got)
	}
}

func TestSubscribeSeesPreexistingRecord(t *testing.T) {
	fan, p := newTestFanout(t)
	ctx := context.Background()

	if err := p.Write(ctx, store.Channels, "c1", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// subscribing after the write still yields the current state
	sub, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	if got := recvSnapshot(t, sub); string(got) != `{"v":1}` {
		t.Fatalf("initial snapshot = %s", got)
	}
}

func TestLateSubscriberSeededFromFeed(t *testing.T) {
	fan, p := newTestFanout(t)
	ctx := context.Background()

	a, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	defer a.Cancel()

	if err := p.Write(ctx, store.Channels, "c1", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	recvSnapshot(t, a)

	// b joins the already-open feed and starts from the delivered state
	b, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}
	defer b.Cancel()
	if got := recvSnapshot(t, b); string(got) != `{"v":1}` {
		t.Fatalf("late subscriber seed = %s", got)
	}
}

func TestSubscribeReplacesDyingFeed(t *testing.T) {
	fan, p := newTestFanout(t)
	ctx := context.Background()

	a, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	defer a.Cancel()

	// a feed marked for teardown but not yet dropped from the map must not
	// accept the new subscriber
	fan.mu.Lock()
	fd := fan.feeds["channels/c1"]
	fan.mu.Unlock()
	fd.mu.Lock()
	fd.dead = true
	fd.mu.Unlock()

	b, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}
	defer b.Cancel()

	if err := p.Write(ctx, store.Channels, "c1", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := recvSnapshot(t, b); string(got) != `{"v":1}` {
		t.Fatalf("snapshot on replacement feed = %s", got)
	}
}

func TestSlowSubscriberGetsLatest(t *testing.T) {
	fan, p := newTestFanout(t)
	ctx := context.Background()

	sub, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	for i := 1; i <= 5; i++ {
		b, _ := json.Marshal(map[string]int{"v": i})
		if err := p.Write(ctx, store.Channels, "c1", b); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	// drain until the final value arrives; intermediate values may be
	// coalesced away but never reordered
	deadline := time.After(2 * time.Second)
	last := -1
	for last != 5 {
		select {
		case snap := <-sub.Updates():
			var v struct{ V int }
			if err := json.Unmarshal(snap, &v); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if v.V < last {
				t.Fatalf("snapshot went backwards: %d after %d", v.V, last)
			}
			last = v.V
		case <-deadline:
			t.Fatalf("never saw final snapshot, last = %d", last)
		}
	}
}

func TestSharedFeedDeliversToAllSubscribers(t *testing.T) {
	fan, p := newTestFanout(t)
	ctx := context.Background()

	a, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	defer a.Cancel()
	b, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}
	defer b.Cancel()

	if err := p.Write(ctx, store.Channels, "c1", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := recvSnapshot(t, a); string(got) != `{"v":1}` {
		t.Fatalf("a snapshot = %s", got)
	}
	if got := recvSnapshot(t, b); string(got) != `{"v":1}` {
		t.Fatalf("b snapshot = %s", got)
	}
}

func TestCanceledSubscriberStopsReceiving(t *testing.T) {
	fan, p := newTestFanout(t)
	ctx := context.Background()

	a, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	b, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}
	defer b.Cancel()

	a.Cancel()
	a.Cancel() // idempotent

	if err := p.Write(ctx, store.Channels, "c1", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	recvSnapshot(t, b)

	select {
	case snap := <-a.Updates():
		t.Fatalf("canceled subscriber received %s", snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLastCancelClosesFeed(t *testing.T) {
	fan, _ := newTestFanout(t)
	ctx := context.Background()

	a, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe a: %v", err)
	}
	b, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe b: %v", err)
	}

	if got := fan.State(store.Channels, "c1"); got != StateActive {
		t.Fatalf("state = %s, want active", got)
	}
	a.Cancel()
	if got := fan.State(store.Channels, "c1"); got != StateActive {
		t.Fatalf("state after first cancel = %s, want active", got)
	}
	b.Cancel()
	if got := fan.State(store.Channels, "c1"); got != StateUnsubscribed {
		t.Fatalf("state after last cancel = %s, want unsubscribed", got)
	}
}

func TestStoreCloseFailsSubscribers(t *testing.T) {
	p, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fan := New(p)

	sub, err := fan.Subscribe(context.Background(), store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-sub.Err():
		if !errors.Is(err, errs.ErrTransientIO) {
			t.Fatalf("terminal error = %v, want ErrTransientIO", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal error within 2s")
	}
	// the fan-out does not auto-retry; the feed is gone
	deadline := time.Now().Add(2 * time.Second)
	for fan.State(store.Channels, "c1") != StateUnsubscribed {
		if time.Now().After(deadline) {
			t.Fatalf("feed state = %s, want unsubscribed", fan.State(store.Channels, "c1"))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDecodeGoroutineExitsOnCancel(t *testing.T) {
	fan, _ := newTestFanout(t)
	ctx := context.Background()

	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		raw, err := fan.Subscribe(ctx, store.Channels, "c1")
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		Decode[models.Channel](raw).Cancel()
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before+2 {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines before=%d after=%d: decode loops did not exit after cancel", before, runtime.NumGoroutine())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDecodeTypedSnapshots(t *testing.T) {
	fan, p := newTestFanout(t)
	ctx := context.Background()

	raw, err := fan.Subscribe(ctx, store.Channels, "c1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub := Decode[models.Channel](raw)
	defer sub.Cancel()

	ch := models.Channel{ID: "c1", Name: "general"}
	b, _ := json.Marshal(ch)
	if err := p.Write(ctx, store.Channels, "c1", b); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case got := <-sub.Updates():
		if got.ID != "c1" || got.Name != "general" {
			t.Fatalf("decoded = %+v", got)
		}
	case err := <-sub.Err():
		t.Fatalf("subscription failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no decoded snapshot within 2s")
	}
}
