// Package summary rolls an owner's expense records up into weekly, monthly
// and yearly sums and compares them with the owner's limits.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"wydatki/internal/core"
	"wydatki/internal/ledger"
)

// RecentCount is how many records Summary.Recent carries.
const RecentCount = 3

// Summary is the aggregated view of one owner's spending at a point in time.
type Summary struct {
	WeeklySum       core.Amount          `json:"weeklySum"`
	MonthlySum      core.Amount          `json:"monthlySum"`
	YearlySum       core.Amount          `json:"yearlySum"`
	WeeklyProgress  float64              `json:"weeklyProgress"`
	MonthlyProgress float64              `json:"monthlyProgress"`
	YearlyProgress  float64              `json:"yearlyProgress"`
	Recent          []core.ExpenseRecord `json:"recent"`
	Budget          core.Amount          `json:"budget"`
	Remaining       core.Balance         `json:"remaining"`
	At              time.Time            `json:"at"`
}

// Compute aggregates records relative to now. Periods are computed in
// now.Location(). Recent holds the first RecentCount records in the order
// given; records are not re-sorted.
func Compute(records []core.ExpenseRecord, now time.Time, s core.BudgetSettings) Summary {
	week, month, year := Week(now), Month(now), Year(now)

	weekly, monthly, yearly := decimal.Zero, decimal.Zero, decimal.Zero
	for _, r := range records {
		if week.Contains(r.OccurredAt) {
			weekly = weekly.Add(r.Amount.Decimal)
		}
		if month.Contains(r.OccurredAt) {
			monthly = monthly.Add(r.Amount.Decimal)
		}
		if year.Contains(r.OccurredAt) {
			yearly = yearly.Add(r.Amount.Decimal)
		}
	}

	n := min(len(records), RecentCount)
	recent := make([]core.ExpenseRecord, n)
	copy(recent, records[:n])

	out := Summary{
		WeeklySum:       core.NewAmount(weekly),
		MonthlySum:      core.NewAmount(monthly),
		YearlySum:       core.NewAmount(yearly),
		WeeklyProgress:  Progress(weekly, s.WeeklyLimit.Decimal),
		MonthlyProgress: Progress(monthly, s.MonthlyLimit.Decimal),
		YearlyProgress:  Progress(yearly, s.YearlyLimit.Decimal),
		Recent:          recent,
		Budget:          s.Budget,
		At:              now,
	}
	out.Remaining = core.BalanceOf(s.Budget, out.MonthlySum)
	return out
}

// Progress is sum/limit, or 0 when the limit is 0. It is not clamped, so
// overspending shows as a value above 1.
func Progress(sum, limit decimal.Decimal) float64 {
	if limit.IsZero() {
		return 0
	}
	f, _ := sum.DivRound(limit, 8).Float64()
	return f
}

// FromSnapshot computes the summary for a live subscription delivery.
func FromSnapshot(snap ledger.Snapshot, now time.Time, s core.BudgetSettings) Summary {
	return Compute(snap.Records, now, s)
}

// RecordLister is the read side of the record store.
type RecordLister interface {
	List(ctx context.Context, ownerID string) ([]core.ExpenseRecord, error)
}

// SettingsLoader is the read side of the settings service.
type SettingsLoader interface {
	Load(ctx context.Context, ownerID string) (core.BudgetSettings, error)
}

// Service produces summaries on request.
type Service struct {
	records  RecordLister
	settings SettingsLoader
	loc      *time.Location
	now      func() time.Time
}

// NewService creates a Service that buckets periods in loc. A nil loc means
// UTC and a nil clock means time.Now.
func NewService(records RecordLister, settings SettingsLoader, loc *time.Location, clock func() time.Time) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{records: records, settings: settings, loc: loc, now: clock}
}

// Now returns the service clock in the configured location.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// Current loads records and settings concurrently and summarises them.
func (s *Service) Current(ctx context.Context, ownerID string) (Summary, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Summary{}, core.ErrNotAuthenticated
	}

	var (
		records []core.ExpenseRecord
		st      core.BudgetSettings
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.records.List(gctx, ownerID)
		return err
	})
	g.Go(func() error {
		var err error
		st, err = s.settings.Load(gctx, ownerID)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.WarnContext(ctx, "Failed to build summary",
			"component", "summary",
			"owner_id", ownerID,
			"error", err)
		return Summary{}, fmt.Errorf("summary: %w", err)
	}

	return Compute(records, s.Now(), st), nil
}

// ForSnapshot summarises a live delivery with the owner's current settings.
func (s *Service) ForSnapshot(ctx context.Context, ownerID string, snap ledger.Snapshot) (Summary, error) {
	st, err := s.settings.Load(ctx, ownerID)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}
	return FromSnapshot(snap, s.Now(), st), nil
}
