package models

// BudgetPeriod defines the time window for a budget policy.
type BudgetPeriod string

const (
	BudgetDaily   BudgetPeriod = "daily"
	BudgetMonthly BudgetPeriod = "monthly"
)

// BudgetPolicy caps the tokens a provider ("*" for all providers combined)
// may consume per period.
type BudgetPolicy struct {
	Provider  string       `json:"provider" yaml:"provider"`
	MaxTokens int64        `json:"max_tokens" yaml:"max_tokens"`
	Period    BudgetPeriod `json:"period" yaml:"period"`
}

// BudgetStatus shows current usage against a policy.
type BudgetStatus struct {
	Policy    BudgetPolicy `json:"policy"`
	Since     string       `json:"since"`
	Used      int64        `json:"used"`
	Remaining int64        `json:"remaining"`
}

// Exceeded reports whether usage has reached the policy limit.
func (s BudgetStatus) Exceeded() bool {
	return s.Used >= s.Policy.MaxTokens
}
