package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hennedk/leasingborsen-sub012/internal/apperr"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newMockLedger(t *testing.T, limits Limits) (*PostgresLedger, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	l := NewPostgres(mock, limits)
	l.nowFunc = func() time.Time { return testNow }
	return l, mock
}

func TestPostgresLedger_CanAfford_Denied(t *testing.T) {
	l, mock := newMockLedger(t, Limits{DailyLimitCents: 1000, MonthlyLimitCents: 100000})

	mock.ExpectQuery(`SELECT spent_cents FROM budget_counters WHERE period_key = \$1`).
		WithArgs("2025-06-15").
		WillReturnRows(pgxmock.NewRows([]string{"spent_cents"}).AddRow(int64(950)))
	mock.ExpectQuery(`SELECT spent_cents FROM budget_counters WHERE period_key = \$1`).
		WithArgs("2025-06").
		WillReturnRows(pgxmock.NewRows([]string{"spent_cents"}).AddRow(int64(950)))

	aff, err := l.CanAfford(context.Background(), 100)
	require.NoError(t, err)
	assert.False(t, aff.Allowed)
	assert.Equal(t, int64(50), aff.DailyRemaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_CanAfford_NoCountersYet(t *testing.T) {
	l, mock := newMockLedger(t, Limits{DailyLimitCents: 1000})

	mock.ExpectQuery(`SELECT spent_cents FROM budget_counters`).
		WithArgs("2025-06-15").
		WillReturnRows(pgxmock.NewRows([]string{"spent_cents"}))
	mock.ExpectQuery(`SELECT spent_cents FROM budget_counters`).
		WithArgs("2025-06").
		WillReturnRows(pgxmock.NewRows([]string{"spent_cents"}))

	aff, err := l.CanAfford(context.Background(), 100)
	require.NoError(t, err)
	assert.True(t, aff.Allowed)
	assert.Equal(t, int64(1000), aff.DailyRemaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_Reserve(t *testing.T) {
	l, mock := newMockLedger(t, Limits{DailyLimitCents: 1000, MonthlyLimitCents: 10000})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO budget_counters`).
		WithArgs("2025-06-15").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE budget_counters SET spent_cents = spent_cents \+ \$2`).
		WithArgs("2025-06-15", int64(100), int64(1000)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO budget_counters`).
		WithArgs("2025-06").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE budget_counters SET spent_cents = spent_cents \+ \$2`).
		WithArgs("2025-06", int64(100), int64(10000)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, l.Reserve(context.Background(), 100))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_Reserve_DailyExhausted(t *testing.T) {
	l, mock := newMockLedger(t, Limits{DailyLimitCents: 1000})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO budget_counters`).
		WithArgs("2025-06-15").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Conditional update matches no row when the ceiling would be crossed.
	mock.ExpectExec(`UPDATE budget_counters SET spent_cents = spent_cents \+ \$2`).
		WithArgs("2025-06-15", int64(100), int64(1000)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := l.Reserve(context.Background(), 100)
	require.Error(t, err)
	assert.Equal(t, apperr.TypeCostLimit, apperr.TypeOf(err))
	assert.False(t, apperr.Retryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_Record_SettlesDelta(t *testing.T) {
	l, mock := newMockLedger(t, Limits{})

	mock.ExpectExec(`INSERT INTO cost_records`).
		WithArgs(pgxmock.AnyArg(), "anthropic", "claude-x", int64(12000), int64(420), "dealer-1", "success", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Reserved 500, spent 420: counters come down by 80.
	mock.ExpectExec(`UPDATE budget_counters SET spent_cents = GREATEST`).
		WithArgs("2025-06-15", int64(-80)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE budget_counters SET spent_cents = GREATEST`).
		WithArgs("2025-06", int64(-80)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := l.Record(context.Background(), 500, model.CostRecord{
		Provider:     "anthropic",
		ModelVersion: "claude-x",
		TokensUsed:   12000,
		CostCents:    420,
		DealerID:     "dealer-1",
		Outcome:      model.CostSuccess,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_Record_ExactReservation(t *testing.T) {
	l, mock := newMockLedger(t, Limits{})

	mock.ExpectExec(`INSERT INTO cost_records`).
		WithArgs(pgxmock.AnyArg(), "mock", "", int64(100), int64(10), "", "failure", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// No settle updates when actual equals reserved.
	err := l.Record(context.Background(), 10, model.CostRecord{
		Provider:   "mock",
		TokensUsed: 100,
		CostCents:  10,
		Outcome:    model.CostFailure,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_Summary(t *testing.T) {
	l, mock := newMockLedger(t, Limits{})

	rows := pgxmock.NewRows([]string{"provider", "cost_cents", "created_at"}).
		AddRow("anthropic", int64(300), testNow.Add(-time.Hour)).
		AddRow("mistral", int64(50), testNow.AddDate(0, 0, -10)).
		AddRow("anthropic", int64(200), testNow.AddDate(0, 0, -3))

	mock.ExpectQuery(`SELECT provider, cost_cents, created_at FROM cost_records`).
		WithArgs(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(rows)

	sum, err := l.Summary(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(550), sum.MonthlyCents)
	assert.Equal(t, int64(300), sum.DailyCents)
	assert.Equal(t, 3, sum.Calls)
	assert.Equal(t, int64(500), sum.ByProvider["anthropic"])
	assert.Equal(t, int64(50), sum.ByProvider["mistral"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
