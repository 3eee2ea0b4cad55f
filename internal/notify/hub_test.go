package notify

import (
	"context"
	"testing"
	"time"
)

func TestHubPublishReachesOnlyOwner(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe("a")
	defer cancelA()
	b, cancelB := h.Subscribe("b")
	defer cancelB()

	h.Publish("a")

	select {
	case <-a:
	case <-time.After(time.Second):
		t.Fatal("watcher of a was not signalled")
	}
	select {
	case <-b:
		t.Fatal("watcher of b must not be signalled")
	default:
	}
}

func TestHubCoalescesSignals(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("a")
	defer cancel()

	for i := 0; i < 5; i++ {
		h.Publish("a")
	}
	<-ch
	select {
	case <-ch:
		t.Fatal("expected bursts to coalesce into one signal")
	default:
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("a")
	if h.Watchers("a") != 1 {
		t.Fatalf("expected 1 watcher, got %d", h.Watchers("a"))
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	if h.Watchers("a") != 0 {
		t.Fatalf("expected 0 watchers, got %d", h.Watchers("a"))
	}
	// publishing after cancel must not panic
	h.Publish("a")
}

func TestHubWatchClosesWithContext(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.Watch(ctx, "a")
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			// a pending signal is fine; the close must follow
			<-ch
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel was not closed after context cancel")
	}
}

func TestResyncOnReconnectWakesEveryWatcherOnce(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe("a")
	defer cancelA()
	b, cancelB := h.Subscribe("b")
	defer cancelB()

	connected := h.ResyncOnReconnect()

	// first connect: nothing was missed
	connected()
	select {
	case <-a:
		t.Fatal("first connect must not signal")
	case <-b:
		t.Fatal("first connect must not signal")
	default:
	}

	// reconnect after an outage
	connected()
	for name, ch := range map[string]<-chan struct{}{"a": a, "b": b} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("watcher of %s was not resynced", name)
		}
		select {
		case <-ch:
			t.Fatalf("watcher of %s got more than one resync signal", name)
		default:
		}
	}
}
