package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wydatki/internal/core"
)

// Service validates and applies expense mutations against the store.
//
// Writes are not read back: callers observe the result through a
// RecordStore subscription, which the store's change feed re-triggers.
type Service struct {
	store ExpenseStore
	now   func() time.Time
}

// NewService creates a mutation service. A nil clock defaults to time.Now.
func NewService(store ExpenseStore, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: store, now: clock}
}

// CreateExpense validates rawAmount, rounds it half-up to two digits and
// persists a new record stamped with the current time.
func (s *Service) CreateExpense(ctx context.Context, ownerID, categoryName, categoryIcon, rawAmount string) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", core.ErrNotAuthenticated
	}
	amount, err := core.ParseAmount(rawAmount)
	if err != nil {
		return "", err
	}

	e := core.NewExpense{
		OwnerID:      ownerID,
		CategoryName: strings.TrimSpace(categoryName),
		CategoryIcon: strings.TrimSpace(categoryIcon),
		Amount:       amount,
		OccurredAt:   s.now(),
	}
	if err := e.Validate(); err != nil {
		return "", err
	}

	id, err := s.store.Create(ctx, e)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create expense",
			"component", "ledger",
			"operation", "create",
			"owner_id", ownerID,
			"error", err)
		return "", fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense created",
		"component", "ledger",
		"operation", "create",
		"id", id,
		"owner_id", ownerID,
		"category", e.CategoryName,
		"amount", e.Amount.String())
	return id, nil
}

// CreateFromCatalog creates an expense whose icon is copied from the catalog.
func (s *Service) CreateFromCatalog(ctx context.Context, ownerID, categoryName, rawAmount string) (string, error) {
	c, ok := core.LookupCategory(strings.TrimSpace(categoryName))
	if !ok {
		return "", core.ErrInvalidCategory
	}
	return s.CreateExpense(ctx, ownerID, c.Name, c.Icon, rawAmount)
}

// UpdateExpense rewrites category, icon and amount of an existing record.
// Owner and timestamp are never touched.
func (s *Service) UpdateExpense(ctx context.Context, ownerID, recordID, categoryName, categoryIcon, rawAmount string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrNotAuthenticated
	}
	amount, err := core.ParseAmount(rawAmount)
	if err != nil {
		return err
	}
	edit := core.ExpenseEdit{
		CategoryName: strings.TrimSpace(categoryName),
		CategoryIcon: strings.TrimSpace(categoryIcon),
		Amount:       amount,
	}
	if err := edit.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(recordID) == "" {
		return core.ErrRecordNotFound
	}

	if err := s.store.Update(ctx, ownerID, recordID, edit); err != nil {
		slog.WarnContext(ctx, "Failed to update expense",
			"component", "ledger",
			"operation", "update",
			"id", recordID,
			"owner_id", ownerID,
			"error", err)
		return fmt.Errorf("update expense %s: %w", recordID, err)
	}

	slog.InfoContext(ctx, "Expense updated",
		"component", "ledger",
		"operation", "update",
		"id", recordID,
		"owner_id", ownerID,
		"category", edit.CategoryName,
		"amount", edit.Amount.String())
	return nil
}

// DeleteExpense removes a record. Deleting an absent record succeeds.
func (s *Service) DeleteExpense(ctx context.Context, ownerID, recordID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrNotAuthenticated
	}
	if strings.TrimSpace(recordID) == "" {
		return nil
	}

	if err := s.store.Delete(ctx, ownerID, recordID); err != nil {
		slog.ErrorContext(ctx, "Failed to delete expense",
			"component", "ledger",
			"operation", "delete",
			"id", recordID,
			"owner_id", ownerID,
			"error", err)
		return fmt.Errorf("delete expense %s: %w", recordID, err)
	}

	slog.InfoContext(ctx, "Expense deleted",
		"component", "ledger",
		"operation", "delete",
		"id", recordID,
		"owner_id", ownerID)
	return nil
}

// Get returns a single record of ownerID.
func (s *Service) Get(ctx context.Context, ownerID, recordID string) (core.ExpenseRecord, error) {
	if strings.TrimSpace(ownerID) == "" {
		return core.ExpenseRecord{}, core.ErrNotAuthenticated
	}
	if strings.TrimSpace(recordID) == "" {
		return core.ExpenseRecord{}, core.ErrRecordNotFound
	}
	r, err := s.store.Get(ctx, ownerID, recordID)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("get expense %s: %w", recordID, err)
	}
	return r, nil
}
