// Package sqlite is the local SQL backend. Changes are announced through an
// in-process hub and, when a publisher is attached, to other processes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"wydatki/internal/core"
	"wydatki/internal/notify"
)

// ChangePublisher announces that an owner's records changed.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ownerID string) error
}

type Repository struct {
	db      *sql.DB
	queries *Queries
	hub     *notify.Hub
	now     func() time.Time

	mu        sync.RWMutex
	publisher ChangePublisher
}

// NewRepository opens (creating if needed) the database at dbPath and
// applies migrations.
func NewRepository(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{
		db:      db,
		queries: New(db),
		hub:     notify.NewHub(),
		now:     time.Now,
	}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Hub exposes the change hub so remote change events can be forwarded into it.
func (r *Repository) Hub() *notify.Hub {
	return r.hub
}

// SetPublisher attaches p to announce changes beyond this process.
func (r *Repository) SetPublisher(p ChangePublisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publisher = p
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return nil
}

func (r *Repository) changed(ctx context.Context, ownerID string) {
	r.hub.Publish(ownerID)

	r.mu.RLock()
	p := r.publisher
	r.mu.RUnlock()
	if p == nil {
		return
	}
	// Local subscribers are already notified; a failed publish only delays
	// other processes until their next change.
	if err := p.PublishChange(ctx, ownerID); err != nil {
		slog.WarnContext(ctx, "Failed to publish change event",
			"component", "storage",
			"owner_id", ownerID,
			"error", err)
	}
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]core.ExpenseRecord, error) {
	rows, err := r.queries.ListWydatkiByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list wydatki: %w: %w", core.ErrRemoteUnavailable, err)
	}
	out := make([]core.ExpenseRecord, 0, len(rows))
	var unreadable []error
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			slog.WarnContext(ctx, "Unreadable expense row",
				"component", "storage",
				"id", row.ID,
				"error", err)
			unreadable = append(unreadable, fmt.Errorf("id %s: %w", row.ID, err))
			continue
		}
		out = append(out, rec)
	}
	if len(unreadable) > 0 {
		return out, fmt.Errorf("list wydatki: %d unreadable: %w", len(unreadable), errors.Join(unreadable...))
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, ownerID, id string) (core.ExpenseRecord, error) {
	row, err := r.queries.GetWydatek(ctx, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseRecord{}, core.ErrRecordNotFound
	}
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("get wydatek: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return toRecord(row)
}

func (r *Repository) Create(ctx context.Context, e core.NewExpense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	row := Wydatek{
		ID:    uuid.New().String(),
		UID:   e.OwnerID,
		Nazwa: e.CategoryName,
		Cena:  e.Amount.String(),
		Icon:  e.CategoryIcon,
		Data:  core.FormatTimestamp(e.OccurredAt),
	}
	if err := r.queries.CreateWydatek(ctx, row); err != nil {
		return "", fmt.Errorf("create wydatek: %w: %w", core.ErrRemoteUnavailable, err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"component", "storage",
		"id", row.ID,
		"owner_id", row.UID,
		"cena", row.Cena)

	r.changed(ctx, e.OwnerID)
	return row.ID, nil
}

func (r *Repository) Update(ctx context.Context, ownerID, id string, e core.ExpenseEdit) error {
	if err := e.Validate(); err != nil {
		return err
	}
	n, err := r.queries.UpdateWydatek(ctx, id, ownerID, e.CategoryName, e.Amount.String(), e.CategoryIcon)
	if err != nil {
		return fmt.Errorf("update wydatek: %w: %w", core.ErrRemoteUnavailable, err)
	}
	if n == 0 {
		return core.ErrRecordNotFound
	}
	r.changed(ctx, ownerID)
	return nil
}

func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	n, err := r.queries.DeleteWydatek(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete wydatek: %w: %w", core.ErrRemoteUnavailable, err)
	}
	if n > 0 {
		r.changed(ctx, ownerID)
	}
	return nil
}

func (r *Repository) Watch(ctx context.Context, ownerID string) (<-chan struct{}, error) {
	return r.hub.Watch(ctx, ownerID), nil
}

func (r *Repository) Load(ctx context.Context, ownerID string) (core.BudgetSettings, error) {
	u, err := r.queries.GetUser(ctx, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultSettings(), nil
	}
	if err != nil {
		return core.BudgetSettings{}, fmt.Errorf("get user: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return toSettings(u)
}

func (r *Repository) Save(ctx context.Context, ownerID string, s core.BudgetSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	err := r.queries.UpsertUser(ctx, User{
		UID:          ownerID,
		Budget:       s.Budget.String(),
		WeeklyLimit:  s.WeeklyLimit.String(),
		MonthlyLimit: s.MonthlyLimit.String(),
		YearlyLimit:  s.YearlyLimit.String(),
		UpdatedAt:    core.FormatTimestamp(r.now()),
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return nil
}

func toRecord(w Wydatek) (core.ExpenseRecord, error) {
	amount, err := core.ParseAmount(w.Cena)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("cena %q: %w: %w", w.Cena, core.ErrCorruptRecord, err)
	}
	at, err := core.ParseTimestamp(w.Data)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("data %q: %w: %w", w.Data, core.ErrCorruptRecord, err)
	}
	return core.ExpenseRecord{
		ID:           w.ID,
		OwnerID:      w.UID,
		CategoryName: w.Nazwa,
		CategoryIcon: w.Icon,
		Amount:       amount,
		OccurredAt:   at,
	}, nil
}

func toSettings(u User) (core.BudgetSettings, error) {
	s, err := core.ParseSettings(u.Budget, u.WeeklyLimit, u.MonthlyLimit, u.YearlyLimit)
	if err != nil {
		return core.BudgetSettings{}, fmt.Errorf("user %s: %w", u.UID, err)
	}
	if at, err := core.ParseTimestamp(u.UpdatedAt); err == nil {
		s.UpdatedAt = at
	}
	return s, nil
}
