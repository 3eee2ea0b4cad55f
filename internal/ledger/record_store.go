package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"wydatki/internal/core"
)

// Snapshot is one delivery of a live subscription: the owner's full record
// set as of At. Err is set when a refresh failed; Records then repeats the
// last good view, or holds the readable records when Err wraps
// core.ErrCorruptRecord.
type Snapshot struct {
	Records []core.ExpenseRecord
	At      time.Time
	Err     error
}

// RecordStore maintains owner-scoped, live-updated views of expense records.
// It never writes to the store.
type RecordStore struct {
	store ExpenseStore
	now   func() time.Time
}

func NewRecordStore(store ExpenseStore) *RecordStore {
	return &RecordStore{store: store, now: time.Now}
}

// List performs a one-shot query of ownerID's records. When some stored
// records are unreadable it returns the readable ones along with an error
// wrapping core.ErrCorruptRecord.
func (rs *RecordStore) List(ctx context.Context, ownerID string) ([]core.ExpenseRecord, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, core.ErrNotAuthenticated
	}
	records, err := rs.store.ListByOwner(ctx, ownerID)
	if err != nil && !errors.Is(err, core.ErrCorruptRecord) {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	if records == nil {
		records = []core.ExpenseRecord{}
	}
	if err != nil {
		return records, fmt.Errorf("list expenses: %w", err)
	}
	return records, nil
}

// Subscribe establishes a standing query for ownerID. The first snapshot is
// available on Updates as soon as Subscribe returns; later snapshots follow
// every change notified by the store. The subscription ends when Unsubscribe
// is called or ctx is done.
func (rs *RecordStore) Subscribe(ctx context.Context, ownerID string) (*Subscription, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, core.ErrNotAuthenticated
	}

	subCtx, cancel := context.WithCancel(ctx)

	// Register the watch before the initial read so no change falls between them.
	changes, err := rs.store.Watch(subCtx, ownerID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch expenses: %w", err)
	}

	records, err := rs.List(subCtx, ownerID)
	if err != nil && !errors.Is(err, core.ErrCorruptRecord) {
		cancel()
		return nil, err
	}

	sub := &Subscription{
		ownerID: ownerID,
		updates: make(chan Snapshot, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	sub.deliver(Snapshot{Records: records, At: rs.now(), Err: err})

	slog.DebugContext(ctx, "Expense subscription started",
		"component", "ledger",
		"owner_id", ownerID,
		"records", len(records))

	go sub.run(subCtx, rs, changes)
	return sub, nil
}

// Subscription is a live, owner-scoped sequence of record sets.
type Subscription struct {
	ownerID string
	updates chan Snapshot
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	latest Snapshot
}

// Updates delivers snapshots newest-wins: a consumer that falls behind
// receives the most recent set, never a backlog. The channel is closed when
// the subscription ends.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Latest returns the most recently delivered snapshot.
func (s *Subscription) Latest() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// OwnerID returns the owner the subscription is scoped to.
func (s *Subscription) OwnerID() string {
	return s.ownerID
}

// Unsubscribe releases the standing query and waits for the background task
// to exit. Nothing is delivered after it returns. Safe to call repeatedly and
// on a nil subscription.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
	<-s.done
	// a final snapshot left by a broken feed is discarded too
	s.drain()
}

// Done is closed once the subscription has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) run(ctx context.Context, rs *RecordStore, changes <-chan struct{}) {
	defer close(s.done)
	defer close(s.updates)

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case _, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					s.drain()
					return
				}
				slog.WarnContext(ctx, "Expense change feed closed",
					"component", "ledger",
					"owner_id", s.ownerID)
				s.deliver(Snapshot{
					Records: s.Latest().Records,
					At:      rs.now(),
					Err:     fmt.Errorf("change feed closed: %w", core.ErrRemoteUnavailable),
				})
				return
			}

			records, err := rs.List(ctx, s.ownerID)
			if err != nil {
				if ctx.Err() != nil {
					s.drain()
					return
				}
				slog.WarnContext(ctx, "Failed to refresh expense subscription",
					"component", "ledger",
					"owner_id", s.ownerID,
					"error", err)
				if records == nil {
					records = s.Latest().Records
				}
				s.deliver(Snapshot{Records: records, At: rs.now(), Err: err})
				continue
			}
			s.deliver(Snapshot{Records: records, At: rs.now()})
		}
	}
}

// deliver replaces any pending snapshot with snap. Only one goroutine sends
// at a time, so after the drain the one-slot buffer always has room.
func (s *Subscription) deliver(snap Snapshot) {
	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()

	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}

func (s *Subscription) drain() {
	select {
	case <-s.updates:
	default:
	}
}
