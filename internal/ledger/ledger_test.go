package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCents(t *testing.T) {
	t.Parallel()

	// 40000 chars -> 10000 prompt tokens + 4096 allowance at 300 øre/kTok,
	// rounded up.
	assert.Equal(t, int64(4229), EstimateCents(40000, 300))

	// Empty content still pays the output allowance.
	assert.Equal(t, int64(1229), EstimateCents(0, 300))
	assert.Zero(t, EstimateCents(40000, 0))
}

func TestProjectedMonthlyCents(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(3000), ProjectedMonthlyCents(100))
	assert.Zero(t, ProjectedMonthlyCents(0))
}

func TestEvaluateDailyCeiling(t *testing.T) {
	t.Parallel()
	limits := Limits{DailyLimitCents: 1000}

	// Spent 950 of 1000: an estimate of 100 must be denied with 50 left.
	aff := evaluate(limits, 950, 0, 100)
	assert.False(t, aff.Allowed)
	assert.Equal(t, int64(50), aff.DailyRemaining)
	assert.Contains(t, aff.Reason, "daily")

	// An estimate of exactly 50 fits.
	aff = evaluate(limits, 950, 0, 50)
	assert.True(t, aff.Allowed)
}

func TestEvaluatePerDocumentCeiling(t *testing.T) {
	t.Parallel()
	limits := Limits{PerDocumentCents: 500, DailyLimitCents: 100000}

	aff := evaluate(limits, 0, 0, 501)
	assert.False(t, aff.Allowed)
	assert.Contains(t, aff.Reason, "per-document")

	aff = evaluate(limits, 0, 0, 500)
	assert.True(t, aff.Allowed)
}

func TestEvaluateMonthlyCeiling(t *testing.T) {
	t.Parallel()
	limits := Limits{MonthlyLimitCents: 10000}

	aff := evaluate(limits, 0, 9990, 20)
	assert.False(t, aff.Allowed)
	assert.Equal(t, int64(10), aff.MonthlyRemaining)
	assert.Contains(t, aff.Reason, "monthly")
}

func TestEvaluateUnlimited(t *testing.T) {
	t.Parallel()
	aff := evaluate(Limits{}, 1<<40, 1<<40, 1<<40)
	assert.True(t, aff.Allowed)
	assert.Equal(t, int64(-1), aff.DailyRemaining)
	assert.Equal(t, int64(-1), aff.MonthlyRemaining)
}

func TestPeriodKeys(t *testing.T) {
	t.Parallel()
	ts := time.Date(2025, 3, 7, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-07", dayKey(ts))
	assert.Equal(t, "2025-03", monthKey(ts))

	// Keys are UTC so a local-time caller cannot slip into the wrong day.
	cet := time.FixedZone("CET", 3600)
	assert.Equal(t, "2025-03-08", dayKey(time.Date(2025, 3, 9, 0, 30, 0, 0, cet)))
}
