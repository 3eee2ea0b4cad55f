// Package postgres is the PostgreSQL backend. A trigger announces every write
// with pg_notify and one LISTEN connection per process feeds the change hub.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wydatki/internal/core"
	"wydatki/internal/notify"
)

// Channel is the notification channel written by the wydatki trigger.
const Channel = "wydatki_changed"

type Repository struct {
	pool *pgxpool.Pool
	hub  *notify.Hub

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRepository connects, migrates and starts the change listener.
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w: %w", core.ErrRemoteUnavailable, err)
	}
	if err := RunMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	r := &Repository{
		pool:   pool,
		hub:    notify.NewHub(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.listen(listenCtx)
	return r, nil
}

// Close stops the listener and closes the pool.
func (r *Repository) Close() error {
	r.cancel()
	<-r.done
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return nil
}

// listen holds one connection in LISTEN mode and forwards each payload (an
// owner id) to the hub. It reconnects until ctx is done.
func (r *Repository) listen(ctx context.Context) {
	defer close(r.done)

	connected := r.hub.ResyncOnReconnect()
	backoff := time.Second
	for {
		err := r.listenOnce(ctx, connected)
		if ctx.Err() != nil {
			return
		}
		slog.WarnContext(ctx, "Postgres listener interrupted",
			"component", "storage",
			"channel", Channel,
			"error", err,
			"retry_in", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

// listenOnce calls connected once LISTEN is in place. Notifications sent
// while no listener was attached are lost, so a reconnect resyncs every watcher.
func (r *Repository) listenOnce(ctx context.Context, connected func()) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	connected()
	slog.InfoContext(ctx, "Listening for expense changes",
		"component", "storage",
		"channel", Channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		r.hub.Publish(n.Payload)
	}
}

const listByOwner = `SELECT id, uid, nazwa, cena, icon, data
FROM wydatki
WHERE uid = $1
ORDER BY data DESC, id DESC`

func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]core.ExpenseRecord, error) {
	rows, err := r.pool.Query(ctx, listByOwner, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list wydatki: %w: %w", core.ErrRemoteUnavailable, err)
	}
	defer rows.Close()

	out := make([]core.ExpenseRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unreadable expense row",
				"component", "storage",
				"error", err)
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list wydatki: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, ownerID, id string) (core.ExpenseRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, uid, nazwa, cena, icon, data FROM wydatki WHERE id = $1 AND uid = $2`, id, ownerID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ExpenseRecord{}, core.ErrRecordNotFound
	}
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("get wydatek: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return rec, nil
}

func (r *Repository) Create(ctx context.Context, e core.NewExpense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	id := uuid.New().String()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO wydatki (id, uid, nazwa, cena, icon, data) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, e.OwnerID, e.CategoryName, e.Amount.String(), e.CategoryIcon, core.FormatTimestamp(e.OccurredAt))
	if err != nil {
		return "", fmt.Errorf("create wydatek: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return id, nil
}

func (r *Repository) Update(ctx context.Context, ownerID, id string, e core.ExpenseEdit) error {
	if err := e.Validate(); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE wydatki SET nazwa = $1, cena = $2, icon = $3 WHERE id = $4 AND uid = $5`,
		e.CategoryName, e.Amount.String(), e.CategoryIcon, id, ownerID)
	if err != nil {
		return fmt.Errorf("update wydatek: %w: %w", core.ErrRemoteUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM wydatki WHERE id = $1 AND uid = $2`, id, ownerID); err != nil {
		return fmt.Errorf("delete wydatek: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return nil
}

func (r *Repository) Watch(ctx context.Context, ownerID string) (<-chan struct{}, error) {
	return r.hub.Watch(ctx, ownerID), nil
}

func (r *Repository) Load(ctx context.Context, ownerID string) (core.BudgetSettings, error) {
	var (
		budget, weekly, monthly, yearly string
		updatedAt                       time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT budget, "weeklyLimit", "monthlyLimit", "yearlyLimit", "updatedAt" FROM users WHERE uid = $1`,
		ownerID).Scan(&budget, &weekly, &monthly, &yearly, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.DefaultSettings(), nil
	}
	if err != nil {
		return core.BudgetSettings{}, fmt.Errorf("get user: %w: %w", core.ErrRemoteUnavailable, err)
	}
	s, err := core.ParseSettings(budget, weekly, monthly, yearly)
	if err != nil {
		return core.BudgetSettings{}, fmt.Errorf("user %s: %w", ownerID, err)
	}
	s.UpdatedAt = updatedAt.UTC()
	return s, nil
}

func (r *Repository) Save(ctx context.Context, ownerID string, s core.BudgetSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO users (uid, budget, "weeklyLimit", "monthlyLimit", "yearlyLimit", "updatedAt")
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (uid) DO UPDATE SET
    budget = EXCLUDED.budget,
    "weeklyLimit" = EXCLUDED."weeklyLimit",
    "monthlyLimit" = EXCLUDED."monthlyLimit",
    "yearlyLimit" = EXCLUDED."yearlyLimit",
    "updatedAt" = now()`,
		ownerID, s.Budget.String(), s.WeeklyLimit.String(), s.MonthlyLimit.String(), s.YearlyLimit.String())
	if err != nil {
		return fmt.Errorf("upsert user: %w: %w", core.ErrRemoteUnavailable, err)
	}
	return nil
}

func scanRecord(row pgx.Row) (core.ExpenseRecord, error) {
	var id, uid, nazwa, cena, icon, data string
	if err := row.Scan(&id, &uid, &nazwa, &cena, &icon, &data); err != nil {
		return core.ExpenseRecord{}, err
	}
	amount, err := core.ParseAmount(cena)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("cena %q: %w", cena, err)
	}
	at, err := core.ParseTimestamp(data)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("data %q: %w", data, err)
	}
	return core.ExpenseRecord{
		ID:           id,
		OwnerID:      uid,
		CategoryName: nazwa,
		CategoryIcon: icon,
		Amount:       amount,
		OccurredAt:   at,
	}, nil
}
