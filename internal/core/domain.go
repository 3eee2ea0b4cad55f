package core

import (
	"cmp"
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 form used for the persisted "data" field.
// All timestamps are written in UTC with millisecond precision so that
// lexicographic order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type (
	// ExpenseRecord is a single ledger entry owned by one user.
	ExpenseRecord struct {
		ID           string
		OwnerID      string
		CategoryName string
		CategoryIcon string
		Amount       Amount
		OccurredAt   time.Time
	}

	// NewExpense carries the fields written when a record is created.
	NewExpense struct {
		OwnerID      string
		CategoryName string
		CategoryIcon string
		Amount       Amount
		OccurredAt   time.Time
	}

	// ExpenseEdit carries the only fields an update may rewrite.
	ExpenseEdit struct {
		CategoryName string
		CategoryIcon string
		Amount       Amount
	}

	// BudgetSettings holds one user's available budget and period limits.
	BudgetSettings struct {
		Budget       Amount    `json:"budget"`
		WeeklyLimit  Amount    `json:"weeklyLimit"`
		MonthlyLimit Amount    `json:"monthlyLimit"`
		YearlyLimit  Amount    `json:"yearlyLimit"`
		UpdatedAt    time.Time `json:"updatedAt,omitempty"`
	}
)

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a persisted "data" value. RFC 3339 values written by
// other clients are accepted as well.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// SortNewestFirst orders records by OccurredAt descending, ties broken by ID
// descending. This is the delivery order of every backend.
func SortNewestFirst(records []ExpenseRecord) {
	slices.SortFunc(records, func(a, b ExpenseRecord) int {
		if c := b.OccurredAt.Compare(a.OccurredAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// expenseWire is the persisted document shape, reused as the JSON wire form.
type expenseWire struct {
	ID    string `json:"id"`
	UID   string `json:"uid"`
	Nazwa string `json:"nazwa"`
	Cena  string `json:"cena"`
	Icon  string `json:"icon"`
	Data  string `json:"data"`
}

// MarshalJSON encodes the record with its persisted field names.
func (r ExpenseRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(expenseWire{
		ID:    r.ID,
		UID:   r.OwnerID,
		Nazwa: r.CategoryName,
		Cena:  r.Amount.String(),
		Icon:  r.CategoryIcon,
		Data:  FormatTimestamp(r.OccurredAt),
	})
}

// UnmarshalJSON decodes the persisted document shape.
func (r *ExpenseRecord) UnmarshalJSON(b []byte) error {
	var w expenseWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	amount, err := ParseAmount(w.Cena)
	if err != nil {
		return err
	}
	at, err := ParseTimestamp(w.Data)
	if err != nil {
		return err
	}
	*r = ExpenseRecord{
		ID:           w.ID,
		OwnerID:      w.UID,
		CategoryName: w.Nazwa,
		CategoryIcon: w.Icon,
		Amount:       amount,
		OccurredAt:   at,
	}
	return nil
}

// Validate checks the fields the ledger requires before a create.
func (e NewExpense) Validate() error {
	if strings.TrimSpace(e.OwnerID) == "" {
		return ErrNotAuthenticated
	}
	if strings.TrimSpace(e.CategoryName) == "" {
		return ErrInvalidCategory
	}
	return e.Amount.Validate()
}

// Validate checks the fields the ledger requires before an update.
func (e ExpenseEdit) Validate() error {
	if strings.TrimSpace(e.CategoryName) == "" {
		return ErrInvalidCategory
	}
	return e.Amount.Validate()
}

// DefaultSettings returns the zero-valued settings used when none are stored.
func DefaultSettings() BudgetSettings {
	return BudgetSettings{
		Budget:       ZeroAmount(),
		WeeklyLimit:  ZeroAmount(),
		MonthlyLimit: ZeroAmount(),
		YearlyLimit:  ZeroAmount(),
	}
}

// Validate reports ErrInvalidSettings when any value is negative.
func (s BudgetSettings) Validate() error {
	for _, a := range []Amount{s.Budget, s.WeeklyLimit, s.MonthlyLimit, s.YearlyLimit} {
		if a.Validate() != nil {
			return ErrInvalidSettings
		}
	}
	return nil
}

// ParseSettings parses the four raw settings values. Any value that is not a
// valid non-negative decimal yields ErrInvalidSettings.
func ParseSettings(budget, weekly, monthly, yearly string) (BudgetSettings, error) {
	var out BudgetSettings
	fields := []struct {
		raw string
		dst *Amount
	}{
		{budget, &out.Budget},
		{weekly, &out.WeeklyLimit},
		{monthly, &out.MonthlyLimit},
		{yearly, &out.YearlyLimit},
	}
	for _, f := range fields {
		a, err := ParseAmount(f.raw)
		if err != nil {
			return BudgetSettings{}, ErrInvalidSettings
		}
		*f.dst = a
	}
	return out, nil
}
