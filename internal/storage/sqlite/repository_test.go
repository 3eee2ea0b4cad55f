package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wydatki/internal/core"
	"wydatki/internal/ledger"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

type recordingPublisher struct {
	mu     sync.Mutex
	owners []string
	err    error
}

func (p *recordingPublisher) PublishChange(_ context.Context, ownerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owners = append(p.owners, ownerID)
	return p.err
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	for i := 0; i < 2; i++ {
		repo, err := NewRepository(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		repo.Close()
	}
}

func TestRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	repo.SetPublisher(pub)

	at := time.Date(2024, 3, 10, 12, 0, 0, 123_000_000, time.UTC)
	id, err := repo.Create(ctx, core.NewExpense{
		OwnerID: "u1", CategoryName: "Restauracje", CategoryIcon: "cutlery",
		Amount: core.MustParseAmount("23.5"), OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.Get(ctx, "u1", id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount.String() != "23.50" || !got.OccurredAt.Equal(at) || got.CategoryIcon != "cutlery" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if _, err := repo.Get(ctx, "u2", id); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}

	edit := core.ExpenseEdit{CategoryName: "Inne", CategoryIcon: "ellipsis-h", Amount: core.MustParseAmount("3")}
	if err := repo.Update(ctx, "u1", id, edit); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.Update(ctx, "u2", id, edit); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
	got, _ = repo.Get(ctx, "u1", id)
	if got.CategoryName != "Inne" || got.Amount.String() != "3.00" || !got.OccurredAt.Equal(at) {
		t.Fatalf("unexpected record after update: %+v", got)
	}

	for i := 0; i < 2; i++ {
		if err := repo.Delete(ctx, "u1", id); err != nil {
			t.Fatalf("delete #%d: %v", i+1, err)
		}
	}
	if err := repo.Update(ctx, "u1", id, edit); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	// create, update, first delete
	if len(pub.owners) != 3 {
		t.Fatalf("expected 3 published changes, got %v", pub.owners)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := repo.Create(ctx, core.NewExpense{
			OwnerID: "u1", CategoryName: "Inne",
			Amount: core.MustParseAmount("1"), OccurredAt: base.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	list, err := repo.ListByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || !list[0].OccurredAt.Equal(base.AddDate(0, 0, 2)) || !list[2].OccurredAt.Equal(base) {
		t.Fatalf("unexpected order: %+v", list)
	}

	empty, err := repo.ListByOwner(ctx, "u2")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v err=%v", empty, err)
	}
}

func TestListReportsUnreadableRows(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	good, err := repo.Create(ctx, core.NewExpense{
		OwnerID: "u1", CategoryName: "Inne",
		Amount: core.MustParseAmount("4"), OccurredAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.db.ExecContext(ctx,
		`INSERT INTO wydatki (id, uid, nazwa, cena, icon, data) VALUES ('bad', 'u1', 'Inne', 'oops', '', '2024-01-01T00:00:00.000Z')`); err != nil {
		t.Fatalf("insert bad row: %v", err)
	}

	list, err := repo.ListByOwner(ctx, "u1")
	if !errors.Is(err, core.ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
	if len(list) != 1 || list[0].ID != good {
		t.Fatalf("expected the readable record alongside the error, got %+v", list)
	}

	if _, err := repo.Get(ctx, "u1", "bad"); !errors.Is(err, core.ErrCorruptRecord) {
		t.Fatalf("Get: expected ErrCorruptRecord, got %v", err)
	}

	// the live view keeps the readable records and carries the error
	sub, err := ledger.NewRecordStore(repo).Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	snap := sub.Latest()
	if !errors.Is(snap.Err, core.ErrCorruptRecord) || len(snap.Records) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	def, err := repo.Load(ctx, "u1")
	if err != nil || !def.Budget.IsZero() {
		t.Fatalf("expected defaults, got %+v err=%v", def, err)
	}

	in, _ := core.ParseSettings("1000", "100", "500", "5000")
	if err := repo.Save(ctx, "u1", in); err != nil {
		t.Fatalf("save: %v", err)
	}
	in.MonthlyLimit = core.MustParseAmount("600")
	if err := repo.Save(ctx, "u1", in); err != nil {
		t.Fatalf("second save: %v", err)
	}

	out, err := repo.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.MonthlyLimit.String() != "600.00" || out.Budget.String() != "1000.00" || !out.UpdatedAt.Equal(fixed) {
		t.Fatalf("unexpected settings: %+v", out)
	}
}

func TestSubscriptionOverSQLite(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rs := ledger.NewRecordStore(repo)
	svc := ledger.NewService(repo, nil)

	sub, err := rs.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if first := <-sub.Updates(); len(first.Records) != 0 {
		t.Fatalf("expected empty set, got %d", len(first.Records))
	}

	id, err := svc.CreateExpense(ctx, "u1", "Groceries", "shopping-basket", "23.5")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	waitForRecords(t, sub, func(records []core.ExpenseRecord) bool {
		return len(records) == 1 && records[0].Amount.String() == "23.50"
	})

	if err := svc.DeleteExpense(ctx, "u1", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.UpdateExpense(ctx, "u1", id, "Inne", "", "1"); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func waitForRecords(t *testing.T, sub *ledger.Subscription, cond func([]core.ExpenseRecord) bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-sub.Updates():
			if cond(snap.Records) {
				return
			}
		case <-deadline:
			t.Fatal("subscription never reached the expected state")
		}
	}
}
