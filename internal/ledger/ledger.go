// Package ledger enforces the extraction spend budget. Budget checks fail
// closed (a broken ledger blocks paid calls) while bookkeeping fails open
// (a broken ledger never discards a finished extraction).
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

// outputAllowanceTokens pads estimates for the response the model will
// generate on top of the prompt itself.
const outputAllowanceTokens = 4096

// Limits carries the configured budget ceilings in minor currency units.
// A zero ceiling means unlimited for that dimension.
type Limits struct {
	PerDocumentCents  int64
	DailyLimitCents   int64
	MonthlyLimitCents int64
}

// Ledger is the budget and spend bookkeeping surface used by the
// orchestrator and the costs command.
type Ledger interface {
	// CanAfford answers the pre-flight budget check for one estimated call.
	CanAfford(ctx context.Context, estimateCents int64) (model.Affordability, error)
	// Reserve atomically claims estimateCents against the daily and monthly
	// counters. It fails when either ceiling would be crossed.
	Reserve(ctx context.Context, estimateCents int64) error
	// Record appends the actual spend of a finished call and settles the
	// difference between reservation and actual against the counters.
	Record(ctx context.Context, reservedCents int64, rec model.CostRecord) error
	// Summary aggregates spend for today and the current month, optionally
	// scoped to one dealer.
	Summary(ctx context.Context, dealerID string) (model.CostSummary, error)
}

// EstimateCents projects the cost of extracting a document of contentLen
// bytes at perKCents per thousand tokens. Roughly four characters make a
// token; the allowance covers the generated response.
func EstimateCents(contentLen int, perKCents int64) int64 {
	tokens := int64(contentLen)/4 + outputAllowanceTokens
	return (tokens*perKCents + 999) / 1000
}

// ProjectedMonthlyCents extrapolates a month of spend from one day.
func ProjectedMonthlyCents(dailyCents int64) int64 {
	return dailyCents * 30
}

// dayKey and monthKey partition the budget counters. Periods roll over at
// UTC midnight.
func dayKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

func monthKey(now time.Time) string {
	return now.UTC().Format("2006-01")
}

// evaluate applies the ceilings to current spend and an estimate. Shared by
// the Postgres and SQLite backends.
func evaluate(limits Limits, dailySpent, monthlySpent, estimateCents int64) model.Affordability {
	aff := model.Affordability{
		Allowed:          true,
		DailyRemaining:   remaining(limits.DailyLimitCents, dailySpent),
		MonthlyRemaining: remaining(limits.MonthlyLimitCents, monthlySpent),
	}

	switch {
	case limits.PerDocumentCents > 0 && estimateCents > limits.PerDocumentCents:
		aff.Allowed = false
		aff.Reason = fmt.Sprintf("estimate %d exceeds per-document limit %d", estimateCents, limits.PerDocumentCents)
	case limits.DailyLimitCents > 0 && dailySpent+estimateCents > limits.DailyLimitCents:
		aff.Allowed = false
		aff.Reason = fmt.Sprintf("estimate %d exceeds remaining daily budget %d", estimateCents, aff.DailyRemaining)
	case limits.MonthlyLimitCents > 0 && monthlySpent+estimateCents > limits.MonthlyLimitCents:
		aff.Allowed = false
		aff.Reason = fmt.Sprintf("estimate %d exceeds remaining monthly budget %d", estimateCents, aff.MonthlyRemaining)
	}
	return aff
}

func remaining(limit, spent int64) int64 {
	if limit <= 0 {
		return -1 // unlimited
	}
	if spent >= limit {
		return 0
	}
	return limit - spent
}
