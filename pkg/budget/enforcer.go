package budget

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/tokenash/pkg/history"
	"github.com/pario-ai/tokenash/pkg/models"
)

// ErrBudgetExceeded is returned when usage has reached a policy limit.
var ErrBudgetExceeded = errors.New("budget exceeded")

// AllProviders matches the combined usage of every provider.
const AllProviders = "*"

// Enforcer checks ledger usage against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
}

// New creates an Enforcer with the given policies.
func New(policies []models.BudgetPolicy) *Enforcer {
	return &Enforcer{policies: policies}
}

// Check returns ErrBudgetExceeded naming every policy at or over its limit.
func (e *Enforcer) Check(h *history.History, now time.Time) error {
	var over []string
	for _, s := range e.Status(h, now) {
		if s.Exceeded() {
			over = append(over, fmt.Sprintf("%s/%s", s.Policy.Provider, s.Policy.Period))
		}
	}
	if len(over) > 0 {
		return fmt.Errorf("%w: %s", ErrBudgetExceeded, strings.Join(over, ", "))
	}
	return nil
}

// Status returns usage against every policy for the period containing now.
func (e *Enforcer) Status(h *history.History, now time.Time) []models.BudgetStatus {
	statuses := make([]models.BudgetStatus, 0, len(e.policies))
	for _, p := range e.policies {
		since := periodStart(p.Period, now)
		until := models.DayOf(now)

		var used int64
		for _, r := range h.Since(since) {
			if r.Day > until {
				break
			}
			used += usageFor(r, p.Provider)
		}

		remaining := p.MaxTokens - used
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Since:     since,
			Used:      used,
			Remaining: remaining,
		})
	}
	return statuses
}

func usageFor(r models.UsageRecord, provider string) int64 {
	if provider == "" || provider == AllProviders {
		return r.Total()
	}
	return r.Providers[provider]
}

func periodStart(period models.BudgetPeriod, now time.Time) string {
	switch period {
	case models.BudgetMonthly:
		return models.DayOf(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()))
	default: // daily
		return models.DayOf(now)
	}
}
