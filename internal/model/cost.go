package model

import "time"

// CostOutcome records whether the paid call the cost belongs to succeeded.
type CostOutcome string

const (
	CostSuccess CostOutcome = "success"
	CostFailure CostOutcome = "failure"
)

// CostRecord is one append-only spend entry. Amounts are minor currency units.
type CostRecord struct {
	ID           string      `json:"id"`
	Provider     string      `json:"provider"`
	ModelVersion string      `json:"model_version,omitempty"`
	TokensUsed   int64       `json:"tokens_used"`
	CostCents    int64       `json:"cost_cents"`
	DealerID     string      `json:"dealer_id,omitempty"`
	Outcome      CostOutcome `json:"outcome"`
	CreatedAt    time.Time   `json:"created_at"`
}

// CostSummary aggregates spend over a period.
type CostSummary struct {
	DailyCents   int64            `json:"daily_cents"`
	MonthlyCents int64            `json:"monthly_cents"`
	ByProvider   map[string]int64 `json:"by_provider,omitempty"`
	Calls        int              `json:"calls"`
}

// Affordability is the ledger's answer to a pre-flight budget check.
type Affordability struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	DailyRemaining   int64  `json:"daily_remaining"`
	MonthlyRemaining int64  `json:"monthly_remaining"`
}
