package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Hennedk/leasingborsen-sub012/internal/apperr"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

// SQLiteLedger keeps spend counters in a local SQLite file. Used by the CLI
// when no Postgres is configured, so budget enforcement still works offline.
type SQLiteLedger struct {
	db      *sql.DB
	limits  Limits
	nowFunc func() time.Time
}

// NewSQLite opens (or creates) the ledger database at path.
func NewSQLite(path string, limits Limits) (*SQLiteLedger, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "ledger: exec %s", pragma)
		}
	}
	return &SQLiteLedger{db: sqlDB, limits: limits, nowFunc: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS budget_counters (
	period_key  TEXT PRIMARY KEY,
	spent_cents INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cost_records (
	id            TEXT PRIMARY KEY,
	provider      TEXT NOT NULL,
	model_version TEXT,
	tokens_used   INTEGER NOT NULL DEFAULT 0,
	cost_cents    INTEGER NOT NULL DEFAULT 0,
	dealer_id     TEXT,
	outcome       TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_cost_records_created_at ON cost_records(created_at);
`

// Migrate creates the ledger tables.
func (l *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "ledger: migrate sqlite")
}

// Close releases the database handle.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) CanAfford(ctx context.Context, estimateCents int64) (model.Affordability, error) {
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

func (l *SQLiteLedger) spent(ctx context.Context, key string) (int64, error) {
	var cents int64
	err := l.db.QueryRowContext(ctx,
		`SELECT spent_cents FROM budget_counters WHERE period_key = ?`,
		key,
	).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "ledger: read counter %s", key)
	}
	return cents, nil
}

func (l *SQLiteLedger) Reserve(ctx context.Context, estimateCents int64) error {
	now := l.nowFunc()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "ledger: begin reserve")
	}
	defer tx.Rollback()

	if err := l.claim(ctx, tx, dayKey(now), estimateCents, l.limits.DailyLimitCents, "daily"); err != nil {
		return err
	}
	if err := l.claim(ctx, tx, monthKey(now), estimateCents, l.limits.MonthlyLimitCents, "monthly"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "ledger: commit reserve")
	}
	return nil
}

func (l *SQLiteLedger) claim(ctx context.Context, tx *sql.Tx, key string, amount, limit int64, period string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO budget_counters (period_key, spent_cents) VALUES (?, 0) ON CONFLICT (period_key) DO NOTHING`,
		key,
	); err != nil {
		return eris.Wrapf(err, "ledger: init counter %s", key)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE budget_counters SET spent_cents = spent_cents + ? WHERE period_key = ? AND (? <= 0 OR spent_cents + ? <= ?)`,
		amount, key, limit, amount, limit,
	)
	if err != nil {
		return eris.Wrapf(err, "ledger: claim counter %s", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "ledger: rows affected")
	}
	if n == 0 {
		return apperr.CostLimit(period + " budget exhausted")
	}
	return nil
}

func (l *SQLiteLedger) Record(ctx context.Context, reservedCents int64, rec model.CostRecord) error {
	now := l.nowFunc()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now.UTC()
	}

	if _, err := l.db.ExecContext(ctx,
		`INSERT INTO cost_records (id, provider, model_version, tokens_used, cost_cents, dealer_id, outcome, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Provider, rec.ModelVersion, rec.TokensUsed, rec.CostCents, rec.DealerID, string(rec.Outcome), rec.CreatedAt,
	); err != nil {
		return eris.Wrap(err, "ledger: insert cost record")
	}

	delta := rec.CostCents - reservedCents
	if delta == 0 {
		return nil
	}
	for _, key := range []string{dayKey(now), monthKey(now)} {
		if _, err := l.db.ExecContext(ctx,
			`UPDATE budget_counters SET spent_cents = MAX(spent_cents + ?, 0) WHERE period_key = ?`,
			delta, key,
		); err != nil {
			zap.L().Warn("ledger settle failed", zap.String("period", key), zap.Error(err))
		}
	}
	return nil
}

func (l *SQLiteLedger) Summary(ctx context.Context, dealerID string) (model.CostSummary, error) {
	now := l.nowFunc().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	query := `SELECT provider, cost_cents, created_at FROM cost_records WHERE created_at >= ?`
	args := []any{monthStart}
	if dealerID != "" {
		query += ` AND dealer_id = ?`
		args = append(args, dealerID)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
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
