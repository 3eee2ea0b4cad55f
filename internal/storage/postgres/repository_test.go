package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"wydatki/internal/core"
	"wydatki/internal/ledger"
)

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/db":   "pgx5://u:p@localhost:5432/db",
		"postgresql://u:p@localhost:5432/db": "pgx5://u:p@localhost:5432/db",
		"pgx5://already":                     "pgx5://already",
	}
	for in, want := range tests {
		if got := migrateURL(in); got != want {
			t.Errorf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

// newTestRepo connects to WYDATKI_TEST_POSTGRES_URL, read from the
// environment or a local .env file, and skips when it is not set.
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	_ = godotenv.Load()
	url := os.Getenv("WYDATKI_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("WYDATKI_TEST_POSTGRES_URL not set")
	}
	repo, err := NewRepository(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestPostgresRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	owner := "test-" + time.Now().Format("150405.000000")

	in, _ := core.ParseSettings("100", "10", "50", "600")
	if err := repo.Save(ctx, owner, in); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	out, err := repo.Load(ctx, owner)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if out.MonthlyLimit.String() != "50.00" || out.UpdatedAt.IsZero() {
		t.Fatalf("unexpected settings: %+v", out)
	}

	rs := ledger.NewRecordStore(repo)
	svc := ledger.NewService(repo, nil)
	sub, err := rs.Subscribe(ctx, owner)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	<-sub.Updates()

	id, err := svc.CreateExpense(ctx, owner, "Inne", "ellipsis-h", "23.5")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case snap := <-sub.Updates():
			seen = len(snap.Records) == 1 && snap.Records[0].ID == id
		case <-deadline:
			t.Fatal("notification never reached the subscription")
		}
	}

	if err := svc.DeleteExpense(ctx, owner, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeleteExpense(ctx, owner, id); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := svc.UpdateExpense(ctx, owner, id, "Inne", "", "1"); !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
