// Package ledger owns the expense ledger: the owner-scoped live projection of
// expense records and the service that validates and applies mutations.
package ledger

import (
	"context"

	"wydatki/internal/core"
)

// ExpenseStore is the remote store boundary for expense records.
//
// ListByOwner returns the owner's records newest first (by OccurredAt, then
// ID). Update fails with core.ErrRecordNotFound when the record is absent or
// owned by someone else; Delete succeeds when the record is already gone.
// Transport failures wrap core.ErrRemoteUnavailable. Stored records that
// cannot be decoded make ListByOwner return the readable rest together with an
// error wrapping core.ErrCorruptRecord.
type ExpenseStore interface {
	ListByOwner(ctx context.Context, ownerID string) ([]core.ExpenseRecord, error)
	Get(ctx context.Context, ownerID, id string) (core.ExpenseRecord, error)
	Create(ctx context.Context, e core.NewExpense) (string, error)
	Update(ctx context.Context, ownerID, id string, e core.ExpenseEdit) error
	Delete(ctx context.Context, ownerID, id string) error
	Watcher
}

// Watcher is the change notification primitive. The returned channel receives
// a signal after any write that may affect ownerID's record set. It is closed
// when ctx is done, or earlier if the underlying feed breaks.
type Watcher interface {
	Watch(ctx context.Context, ownerID string) (<-chan struct{}, error)
}
