// Package memory is an in-process backend for expense records and budget
// settings. It is the default backend for development and the fake used by
// tests across the module.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"wydatki/internal/core"
	"wydatki/internal/notify"
)

type Store struct {
	mu       sync.RWMutex
	records  map[string]core.ExpenseRecord
	settings map[string]core.BudgetSettings
	hub      *notify.Hub
	now      func() time.Time
}

func New() *Store {
	return &Store{
		records:  make(map[string]core.ExpenseRecord),
		settings: make(map[string]core.BudgetSettings),
		hub:      notify.NewHub(),
		now:      time.Now,
	}
}

// Hub exposes the change hub so other notification sources can feed it.
func (s *Store) Hub() *notify.Hub {
	return s.hub
}

// ListByOwner returns ownerID's records newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]core.ExpenseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]core.ExpenseRecord, 0)
	for _, r := range s.records {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	core.SortNewestFirst(out)
	return out, nil
}

func (s *Store) Get(ctx context.Context, ownerID, id string) (core.ExpenseRecord, error) {
	if err := ctx.Err(); err != nil {
		return core.ExpenseRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok || r.OwnerID != ownerID {
		return core.ExpenseRecord{}, core.ErrRecordNotFound
	}
	return r, nil
}

// Create stores e under a fresh UUID. OccurredAt is kept at the millisecond
// precision every persistent backend stores.
func (s *Store) Create(ctx context.Context, e core.NewExpense) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := e.Validate(); err != nil {
		return "", err
	}
	id := uuid.New().String()

	s.mu.Lock()
	s.records[id] = core.ExpenseRecord{
		ID:           id,
		OwnerID:      e.OwnerID,
		CategoryName: e.CategoryName,
		CategoryIcon: e.CategoryIcon,
		Amount:       e.Amount,
		OccurredAt:   e.OccurredAt.UTC().Truncate(time.Millisecond),
	}
	s.mu.Unlock()

	s.hub.Publish(e.OwnerID)
	return id, nil
}

func (s *Store) Update(ctx context.Context, ownerID, id string, e core.ExpenseEdit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	r, ok := s.records[id]
	if !ok || r.OwnerID != ownerID {
		s.mu.Unlock()
		return core.ErrRecordNotFound
	}
	r.CategoryName = e.CategoryName
	r.CategoryIcon = e.CategoryIcon
	r.Amount = e.Amount
	s.records[id] = r
	s.mu.Unlock()

	s.hub.Publish(ownerID)
	return nil
}

// Delete removes the record if ownerID owns it. Missing ids are not an error.
func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	r, ok := s.records[id]
	if !ok || r.OwnerID != ownerID {
		s.mu.Unlock()
		return nil
	}
	delete(s.records, id)
	s.mu.Unlock()

	s.hub.Publish(ownerID)
	return nil
}

func (s *Store) Watch(ctx context.Context, ownerID string) (<-chan struct{}, error) {
	return s.hub.Watch(ctx, ownerID), nil
}

// Put inserts a fully formed record, keeping its ID and timestamp. It is
// used to seed fixtures with historical dates.
func (s *Store) Put(r core.ExpenseRecord) {
	s.mu.Lock()
	s.records[r.ID] = r
	s.mu.Unlock()
	s.hub.Publish(r.OwnerID)
}

// Load returns ownerID's settings, or zero defaults when none are stored.
func (s *Store) Load(ctx context.Context, ownerID string) (core.BudgetSettings, error) {
	if err := ctx.Err(); err != nil {
		return core.BudgetSettings{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settings[ownerID]
	if !ok {
		return core.DefaultSettings(), nil
	}
	return st, nil
}

// Save overwrites ownerID's settings wholesale and stamps UpdatedAt.
func (s *Store) Save(ctx context.Context, ownerID string, st core.BudgetSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := st.Validate(); err != nil {
		return err
	}
	st.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)

	s.mu.Lock()
	s.settings[ownerID] = st
	s.mu.Unlock()
	return nil
}
