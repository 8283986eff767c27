package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Hennedk/leasingborsen-sub012/internal/apperr"
	"github.com/Hennedk/leasingborsen-sub012/internal/db"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

// PostgresLedger keeps spend counters and cost records in Postgres.
type PostgresLedger struct {
	pool    db.Pool
	limits  Limits
	nowFunc func() time.Time
}

// NewPostgres creates a ledger over an existing pool.
func NewPostgres(pool db.Pool, limits Limits) *PostgresLedger {
	return &PostgresLedger{
		pool:    pool,
		limits:  limits,
		nowFunc: time.Now,
	}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS budget_counters (
	period_key  TEXT PRIMARY KEY,
	spent_cents BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cost_records (
	id            TEXT PRIMARY KEY,
	provider      TEXT NOT NULL,
	model_version TEXT,
	tokens_used   BIGINT NOT NULL DEFAULT 0,
	cost_cents    BIGINT NOT NULL DEFAULT 0,
	dealer_id     TEXT,
	outcome       TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cost_records_created_at ON cost_records(created_at);
CREATE INDEX IF NOT EXISTS idx_cost_records_dealer_id ON cost_records(dealer_id);
`

// Migrate creates the ledger tables.
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "ledger: migrate")
}

func (l *PostgresLedger) CanAfford(ctx context.Context, estimateCents int64) (model.Affordability, error) {
	now := l.nowFunc()

	daily, err := l.spent(ctx, dayKey(now))
	if err != nil {
		return model.Affordability{}, err
	}
	monthly, err := l.spent(ctx, monthKey(now))
	if err != nil {
		return model.Affordability{}, err
	}

	return evaluate(l.limits, daily, monthly, estimateCents), nil
}

func (l *PostgresLedger) spent(ctx context.Context, key string) (int64, error) {
	var cents int64
	err := l.pool.QueryRow(ctx,
		`SELECT spent_cents FROM budget_counters WHERE period_key = $1`,
		key,
	).Scan(&cents)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "ledger: read counter %s", key)
	}
	return cents, nil
}

// Reserve claims estimateCents against both period counters in one
// transaction. The conditional UPDATE is the atomicity point: concurrent
// reservations serialize on the counter row, and a reservation that would
// cross a ceiling matches zero rows.
func (l *PostgresLedger) Reserve(ctx context.Context, estimateCents int64) error {
	now := l.nowFunc()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "ledger: begin reserve")
	}
	defer tx.Rollback(ctx)

	if err := l.claim(ctx, tx, dayKey(now), estimateCents, l.limits.DailyLimitCents, "daily"); err != nil {
		return err
	}
	if err := l.claim(ctx, tx, monthKey(now), estimateCents, l.limits.MonthlyLimitCents, "monthly"); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "ledger: commit reserve")
	}
	return nil
}

func (l *PostgresLedger) claim(ctx context.Context, tx pgx.Tx, key string, amount, limit int64, period string) error {
	if _, err := tx.Exec(ctx,
		`INSERT INTO budget_counters (period_key, spent_cents) VALUES ($1, 0) ON CONFLICT (period_key) DO NOTHING`,
		key,
	); err != nil {
		return eris.Wrapf(err, "ledger: init counter %s", key)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE budget_counters SET spent_cents = spent_cents + $2 WHERE period_key = $1 AND ($3 <= 0 OR spent_cents + $2 <= $3)`,
		key, amount, limit,
	)
	if err != nil {
		return eris.Wrapf(err, "ledger: claim counter %s", key)
	}
	if tag.RowsAffected() == 0 {
		return apperr.CostLimit(period + " budget exhausted")
	}
	return nil
}

// Record appends the actual spend and settles the counters by the delta
// between reservation and actual cost.
func (l *PostgresLedger) Record(ctx context.Context, reservedCents int64, rec model.CostRecord) error {
	now := l.nowFunc()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now.UTC()
	}

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO cost_records (id, provider, model_version, tokens_used, cost_cents, dealer_id, outcome, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Provider, rec.ModelVersion, rec.TokensUsed, rec.CostCents, rec.DealerID, string(rec.Outcome), rec.CreatedAt,
	); err != nil {
		return eris.Wrap(err, "ledger: insert cost record")
	}

	delta := rec.CostCents - reservedCents
	if delta == 0 {
		return nil
	}
	for _, key := range []string{dayKey(now), monthKey(now)} {
		if _, err := l.pool.Exec(ctx,
			`UPDATE budget_counters SET spent_cents = GREATEST(spent_cents + $2, 0) WHERE period_key = $1`,
			key, delta,
		); err != nil {
			// Counter drift is tolerable; the record itself is saved.
			zap.L().Warn("ledger settle failed", zap.String("period", key), zap.Error(err))
		}
	}
	return nil
}

func (l *PostgresLedger) Summary(ctx context.Context, dealerID string) (model.CostSummary, error) {
	now := l.nowFunc().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	query := `SELECT provider, cost_cents, created_at FROM cost_records WHERE created_at >= $1`
	args := []any{monthStart}
	if dealerID != "" {
		query += ` AND dealer_id = $2`
		args = append(args, dealerID)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return model.CostSummary{}, eris.Wrap(err, "ledger: summary")
	}
	defer rows.Close()

	sum := model.CostSummary{ByProvider: make(map[string]int64)}
	for rows.Next() {
		var provider string
		var cents int64
		var createdAt time.Time
		if err := rows.Scan(&provider, &cents, &createdAt); err != nil {
			return model.CostSummary{}, eris.Wrap(err, "ledger: scan cost record")
		}
		sum.MonthlyCents += cents
		sum.ByProvider[provider] += cents
		sum.Calls++
		if !createdAt.Before(dayStart) {
			sum.DailyCents += cents
		}
	}
	if err := rows.Err(); err != nil {
		return model.CostSummary{}, eris.Wrap(err, "ledger: iterate cost records")
	}
	return sum, nil
}
