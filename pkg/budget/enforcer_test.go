package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/pario-ai/tokenash/pkg/history"
	"github.com/pario-ai/tokenash/pkg/models"
)

var now = time.Date(2024, 2, 10, 18, 0, 0, 0, time.UTC)

func ledger() *history.History {
	return history.New(
		models.UsageRecord{Day: "2024-01-31", Providers: map[string]int64{"openai": 5000}},
		models.UsageRecord{Day: "2024-02-01", Providers: map[string]int64{"openai": 300, "anthropic": 200}},
		models.UsageRecord{Day: "2024-02-10", Providers: map[string]int64{"openai": 100, "anthropic": 50}},
	)
}

func TestCheckUnderBudget(t *testing.T) {
	e := New([]models.BudgetPolicy{
		{Provider: "*", MaxTokens: 1000, Period: models.BudgetDaily},
	})

	if err := e.Check(ledger(), now); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckExceeded(t *testing.T) {
	e := New([]models.BudgetPolicy{
		{Provider: "*", MaxTokens: 600, Period: models.BudgetMonthly},
	})

	err := e.Check(ledger(), now)
	if err == nil {
		t.Fatal("expected budget exceeded error")
	}
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	e := New([]models.BudgetPolicy{
		{Provider: "*", MaxTokens: 1000, Period: models.BudgetDaily},
		{Provider: "openai", MaxTokens: 1000, Period: models.BudgetMonthly},
		{Provider: "anthropic", MaxTokens: 100, Period: models.BudgetMonthly},
	})

	statuses := e.Status(ledger(), now)
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}

	if statuses[0].Used != 150 || statuses[0].Remaining != 850 || statuses[0].Since != "2024-02-10" {
		t.Errorf("daily: got %+v", statuses[0])
	}
	// January usage is outside the monthly window.
	if statuses[1].Used != 400 || statuses[1].Since != "2024-02-01" {
		t.Errorf("openai monthly: got %+v", statuses[1])
	}
	if statuses[2].Used != 250 || statuses[2].Remaining != 0 || !statuses[2].Exceeded() {
		t.Errorf("anthropic monthly: got %+v", statuses[2])
	}
}

func TestStatusIgnoresFutureDays(t *testing.T) {
	h := ledger()
	h.Merge(models.UsageRecord{Day: "2024-02-11", Providers: map[string]int64{"openai": 9999}})

	e := New([]models.BudgetPolicy{{Provider: "openai", MaxTokens: 1000, Period: models.BudgetMonthly}})
	if got := e.Status(h, now)[0].Used; got != 400 {
		t.Errorf("expected 400 used, got %d", got)
	}
}

func TestNoPolicies(t *testing.T) {
	e := New(nil)
	if len(e.Status(ledger(), now)) != 0 {
		t.Error("expected no statuses")
	}
	if err := e.Check(ledger(), now); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
