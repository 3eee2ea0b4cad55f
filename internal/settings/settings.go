// Package settings stores each owner's budget and period limits.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"wydatki/internal/cache"
	"wydatki/internal/core"
)

// Repository persists one settings document per owner. Load returns zero
// defaults when nothing is stored; Save overwrites all fields and stamps
// UpdatedAt.
type Repository interface {
	Load(ctx context.Context, ownerID string) (core.BudgetSettings, error)
	Save(ctx context.Context, ownerID string, s core.BudgetSettings) error
}

// Service validates settings and caches them per owner.
type Service struct {
	repo  Repository
	cache cache.Cache[core.BudgetSettings]
}

// NewService wraps repo. A nil cache disables caching.
func NewService(repo Repository, c cache.Cache[core.BudgetSettings]) *Service {
	return &Service{repo: repo, cache: c}
}

func (s *Service) Load(ctx context.Context, ownerID string) (core.BudgetSettings, error) {
	if strings.TrimSpace(ownerID) == "" {
		return core.BudgetSettings{}, core.ErrNotAuthenticated
	}
	if s.cache != nil {
		if st, ok := s.cache.Get(ownerID); ok {
			return st, nil
		}
	}

	st, err := s.repo.Load(ctx, ownerID)
	if err != nil {
		return core.BudgetSettings{}, fmt.Errorf("load settings: %w", err)
	}
	if s.cache != nil {
		s.cache.Set(ownerID, st)
	}
	return st, nil
}

// Save validates st and overwrites ownerID's settings.
func (s *Service) Save(ctx context.Context, ownerID string, st core.BudgetSettings) error {
	if strings.TrimSpace(ownerID) == "" {
		return core.ErrNotAuthenticated
	}
	if err := st.Validate(); err != nil {
		return err
	}

	if err := s.repo.Save(ctx, ownerID, st); err != nil {
		if s.cache != nil {
			s.cache.Delete(ownerID)
		}
		slog.ErrorContext(ctx, "Failed to save settings",
			"component", "settings",
			"owner_id", ownerID,
			"error", err)
		return fmt.Errorf("save settings: %w", err)
	}

	if s.cache != nil {
		// re-read so the cached copy carries the stored UpdatedAt
		s.cache.Delete(ownerID)
		if _, err := s.Load(ctx, ownerID); err != nil {
			slog.WarnContext(ctx, "Failed to refresh cached settings",
				"component", "settings",
				"owner_id", ownerID,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Settings saved",
		"component", "settings",
		"owner_id", ownerID,
		"budget", st.Budget.String(),
		"weekly_limit", st.WeeklyLimit.String(),
		"monthly_limit", st.MonthlyLimit.String(),
		"yearly_limit", st.YearlyLimit.String())
	return nil
}

// SaveRaw parses the four raw values and saves them.
func (s *Service) SaveRaw(ctx context.Context, ownerID, budget, weekly, monthly, yearly string) (core.BudgetSettings, error) {
	st, err := core.ParseSettings(budget, weekly, monthly, yearly)
	if err != nil {
		return core.BudgetSettings{}, err
	}
	if err := s.Save(ctx, ownerID, st); err != nil {
		return core.BudgetSettings{}, err
	}
	return s.Load(ctx, ownerID)
}
