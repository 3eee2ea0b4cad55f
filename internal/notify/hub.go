// Package notify provides the in-process change notification primitive used
// by backends that have no native change feed.
//
// A Hub fans out "owner X changed" signals to every watcher of X. Signals are
// coalesced: each watcher has a one-slot channel, so a burst of writes wakes a
// watcher once and the watcher re-reads the full state.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

type Hub struct {
	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
}

type watcher struct {
	ch     chan struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{watchers: make(map[string]map[*watcher]struct{})}
}

// Subscribe registers a watcher for owner. The returned cancel func removes
// it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(owner string) (<-chan struct{}, func()) {
	w := &watcher{ch: make(chan struct{}, 1)}

	h.mu.Lock()
	set, ok := h.watchers[owner]
	if !ok {
		set = make(map[*watcher]struct{})
		h.watchers[owner] = set
	}
	set[w] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if w.closed {
			return
		}
		w.closed = true
		close(w.ch)
		delete(h.watchers[owner], w)
		if len(h.watchers[owner]) == 0 {
			delete(h.watchers, owner)
		}
	}
	return w.ch, cancel
}

// Watch is Subscribe bound to ctx: the channel closes once ctx is done.
func (h *Hub) Watch(ctx context.Context, owner string) <-chan struct{} {
	ch, cancel := h.Subscribe(owner)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch
}

// Publish signals every watcher of owner without blocking.
func (h *Hub) Publish(owner string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers[owner] {
		select {
		case w.ch <- struct{}{}:
		default:
			// a signal is already pending
		}
	}
}

// PublishAll signals every watcher of every owner.
func (h *Hub) PublishAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.watchers {
		for w := range set {
			select {
			case w.ch <- struct{}{}:
			default:
			}
		}
	}
}

// ResyncOnReconnect returns a hook for a change feed to call each time it
// (re)connects. The first call does nothing; later calls wake every watcher,
// since changes made while the feed was down were never signalled.
func (h *Hub) ResyncOnReconnect() func() {
	var connected atomic.Bool
	return func() {
		if connected.Swap(true) {
			h.PublishAll()
		}
	}
}

// Watchers returns the number of active watchers for owner.
func (h *Hub) Watchers(owner string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[owner])
}
