// Package inventory is the Postgres store for listings, sessions, change
// records and dealer configuration.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/Hennedk/leasingborsen-sub012/internal/db"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

// Store provides access to the reconciliation schema.
type Store struct {
	pool    db.Pool
	closeFn func()
}

// New wraps an existing pool.
func New(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// NewWithClose wraps a pool the store owns and closes.
func NewWithClose(pool db.Pool, closeFn func()) *Store {
	return &Store{pool: pool, closeFn: closeFn}
}

const migration = `
CREATE TABLE IF NOT EXISTS dealers (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL DEFAULT '',
	transmission_in_key BOOLEAN NOT NULL DEFAULT false,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS listings (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	dealer_id           TEXT NOT NULL REFERENCES dealers(id),
	make                TEXT NOT NULL,
	model               TEXT NOT NULL,
	variant             TEXT NOT NULL,
	transmission        TEXT NOT NULL DEFAULT '',
	year                INTEGER NOT NULL DEFAULT 0,
	colour              TEXT NOT NULL DEFAULT '',
	monthly_price_cents BIGINT NOT NULL DEFAULT 0,
	retail_price_cents  BIGINT NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pricing_tiers (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	listing_id            TEXT NOT NULL REFERENCES listings(id),
	monthly_payment_cents BIGINT NOT NULL DEFAULT 0,
	first_payment_cents   BIGINT NOT NULL DEFAULT 0,
	annual_kilometers     INTEGER NOT NULL DEFAULT 0,
	lease_months          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	dealer_id      TEXT NOT NULL REFERENCES dealers(id),
	document_name  TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	correlation_id TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS change_records (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	type       TEXT NOT NULL,
	listing_id TEXT REFERENCES listings(id),
	extracted  JSONB,
	changes    JSONB,
	status     TEXT NOT NULL DEFAULT 'pending',
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_listings_dealer_id ON listings(dealer_id);
CREATE INDEX IF NOT EXISTS idx_pricing_tiers_listing_id ON pricing_tiers(listing_id);
CREATE INDEX IF NOT EXISTS idx_sessions_dealer_id ON sessions(dealer_id);
CREATE INDEX IF NOT EXISTS idx_change_records_session_id ON change_records(session_id);
CREATE INDEX IF NOT EXISTS idx_change_records_listing_id ON change_records(listing_id);
`

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migration)
	return eris.Wrap(err, "inventory: migrate")
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "inventory: ping")
}

// Close releases the pool when the store owns it.
func (s *Store) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Pool exposes the underlying pool for the change applier, which runs its
// own transactions.
func (s *Store) Pool() db.Pool {
	return s.pool
}

// --- Dealers ---

// UpsertDealer stores dealer matching configuration.
func (s *Store) UpsertDealer(ctx context.Context, id, name string, transmissionInKey bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dealers (id, name, transmission_in_key) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, transmission_in_key = EXCLUDED.transmission_in_key`,
		id, name, transmissionInKey,
	)
	return eris.Wrapf(err, "inventory: upsert dealer %s", id)
}

// DealerConfig returns the matching configuration for a dealer. An unknown
// dealer gets the defaults rather than an error, so new dealers work
// without pre-registration.
func (s *Store) DealerConfig(ctx context.Context, dealerID string) (model.DealerConfig, error) {
	cfg := model.DealerConfig{DealerID: dealerID}
	err := s.pool.QueryRow(ctx,
		`SELECT transmission_in_key FROM dealers WHERE id = $1`,
		dealerID,
	).Scan(&cfg.TransmissionInKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return cfg, nil
	}
	if err != nil {
		return cfg, eris.Wrapf(err, "inventory: dealer config %s", dealerID)
	}
	return cfg, nil
}

// --- Listings ---

// ListingsByDealer returns the dealer's listings with pricing tiers loaded.
func (s *Store) ListingsByDealer(ctx context.Context, dealerID string) ([]model.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, dealer_id, make, model, variant, transmission, year, colour, monthly_price_cents, retail_price_cents, created_at, updated_at
		 FROM listings WHERE dealer_id = $1 ORDER BY make, model, variant, id`,
		dealerID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "inventory: listings for dealer %s", dealerID)
	}
	defer rows.Close()

	var listings []model.Listing
	index := make(map[string]int)
	for rows.Next() {
		var l model.Listing
		if err := rows.Scan(&l.ID, &l.DealerID, &l.Make, &l.Model, &l.Variant, &l.Transmission,
			&l.Year, &l.Colour, &l.MonthlyPriceCents, &l.RetailPriceCents, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "inventory: scan listing")
		}
		index[l.ID] = len(listings)
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "inventory: iterate listings")
	}
	if len(listings) == 0 {
		return nil, nil
	}

	tierRows, err := s.pool.Query(ctx,
		`SELECT t.id, t.listing_id, t.monthly_payment_cents, t.first_payment_cents, t.annual_kilometers, t.lease_months
		 FROM pricing_tiers t JOIN listings l ON l.id = t.listing_id
		 WHERE l.dealer_id = $1 ORDER BY t.listing_id, t.annual_kilometers`,
		dealerID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "inventory: pricing tiers for dealer %s", dealerID)
	}
	defer tierRows.Close()

	for tierRows.Next() {
		var t model.PricingTier
		if err := tierRows.Scan(&t.ID, &t.ListingID, &t.MonthlyPaymentCents, &t.FirstPaymentCents, &t.AnnualKilometers, &t.LeaseMonths); err != nil {
			return nil, eris.Wrap(err, "inventory: scan pricing tier")
		}
		if i, ok := index[t.ListingID]; ok {
			listings[i].PricingTiers = append(listings[i].PricingTiers, t)
		}
	}
	if err := tierRows.Err(); err != nil {
		return nil, eris.Wrap(err, "inventory: iterate pricing tiers")
	}
	return listings, nil
}

// ImportListings bulk-loads listings and their tiers over the COPY protocol.
// Used for initial inventory seeding, not reconciliation.
func (s *Store) ImportListings(ctx context.Context, listings []model.Listing) (int64, error) {
	now := time.Now().UTC()

	listingRows := make([][]any, 0, len(listings))
	var tierRows [][]any
	for i := range listings {
		l := &listings[i]
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		listingRows = append(listingRows, []any{
			l.ID, l.DealerID, l.Make, l.Model, l.Variant, string(l.Transmission),
			l.Year, l.Colour, l.MonthlyPriceCents, l.RetailPriceCents, now, now,
		})
		for _, t := range l.PricingTiers {
			id := t.ID
			if id == "" {
				id = uuid.New().String()
			}
			tierRows = append(tierRows, []any{
				id, l.ID, t.MonthlyPaymentCents, t.FirstPaymentCents, t.AnnualKilometers, t.LeaseMonths,
			})
		}
	}

	n, err := db.CopyRows(ctx, s.pool, "listings",
		[]string{"id", "dealer_id", "make", "model", "variant", "transmission", "year", "colour", "monthly_price_cents", "retail_price_cents", "created_at", "updated_at"},
		listingRows,
	)
	if err != nil {
		return 0, eris.Wrap(err, "inventory: import listings")
	}
	if _, err := db.CopyRows(ctx, s.pool, "pricing_tiers",
		[]string{"id", "listing_id", "monthly_payment_cents", "first_payment_cents", "annual_kilometers", "lease_months"},
		tierRows,
	); err != nil {
		return 0, eris.Wrap(err, "inventory: import pricing tiers")
	}
	return n, nil
}

// --- Sessions ---

// CreateSession opens a reconciliation session for one document.
func (s *Store) CreateSession(ctx context.Context, dealerID, documentName, correlationID string) (*model.Session, error) {
	sess := &model.Session{
		ID:            uuid.New().String(),
		DealerID:      dealerID,
		DocumentName:  documentName,
		Status:        model.SessionPending,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, dealer_id, document_name, status, correlation_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, sess.DealerID, sess.DocumentName, string(sess.Status), sess.CorrelationID, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "inventory: insert session")
	}
	return sess, nil
}

// GetSession loads one session.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, dealer_id, document_name, status, correlation_id, created_at, updated_at FROM sessions WHERE id = $1`,
		id,
	).Scan(&sess.ID, &sess.DealerID, &sess.DocumentName, &sess.Status, &sess.CorrelationID, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "inventory: get session %s", id)
	}
	return &sess, nil
}

// ListSessions returns recent sessions, optionally scoped to a dealer.
func (s *Store) ListSessions(ctx context.Context, dealerID string, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, dealer_id, document_name, status, correlation_id, created_at, updated_at FROM sessions`
	args := []any{}
	if dealerID != "" {
		query += ` WHERE dealer_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, dealerID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "inventory: list sessions")
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.DealerID, &sess.DocumentName, &sess.Status, &sess.CorrelationID, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "inventory: scan session")
		}
		out = append(out, sess)
	}
	return out, eris.Wrap(rows.Err(), "inventory: iterate sessions")
}

// UpdateSessionStatus transitions a session.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status model.SessionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "inventory: update session %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("session not found: %s", id)
	}
	return nil
}

// CancelSession discards a pending session before its changes are applied.
// Pending change records are marked skipped rather than deleted so the audit
// trail survives; sessions in any other state cannot be cancelled.
func (s *Store) CancelSession(ctx context.Context, id string) error {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status != model.SessionPending {
		return eris.Errorf("session %s is %s, only pending sessions can be cancelled", id, sess.Status)
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE change_records SET status = $1, updated_at = $2 WHERE session_id = $3 AND status = $4`,
		string(model.ChangeSkipped), time.Now().UTC(), id, string(model.ChangePending),
	); err != nil {
		return eris.Wrapf(err, "inventory: skip changes for session %s", id)
	}
	return s.UpdateSessionStatus(ctx, id, model.SessionCancelled)
}

// --- Change records ---

// SaveChanges persists a comparison change set under a session. IDs and
// timestamps are assigned here; the input slice is updated in place so the
// caller sees them.
func (s *Store) SaveChanges(ctx context.Context, sessionID string, changes []model.ChangeRecord) error {
	now := time.Now().UTC()
	for i := range changes {
		ch := &changes[i]
		ch.ID = uuid.New().String()
		ch.SessionID = sessionID
		ch.CreatedAt = now
		ch.UpdatedAt = now

		var extractedJSON, changesJSON []byte
		var err error
		if ch.Extracted != nil {
			if extractedJSON, err = json.Marshal(ch.Extracted); err != nil {
				return eris.Wrap(err, "inventory: marshal extracted")
			}
		}
		if len(ch.Changes) > 0 {
			if changesJSON, err = json.Marshal(ch.Changes); err != nil {
				return eris.Wrap(err, "inventory: marshal changes")
			}
		}

		var listingID *string
		if ch.ListingID != "" {
			listingID = &ch.ListingID
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO change_records (id, session_id, type, listing_id, extracted, changes, status, error, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			ch.ID, ch.SessionID, string(ch.Type), listingID, extractedJSON, changesJSON, string(ch.Status), ch.Error, ch.CreatedAt, ch.UpdatedAt,
		); err != nil {
			return eris.Wrapf(err, "inventory: insert change record %s", ch.ID)
		}
	}
	return nil
}

// ChangesBySession loads a session's change set in creation order.
func (s *Store) ChangesBySession(ctx context.Context, sessionID string) ([]model.ChangeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, type, listing_id, extracted, changes, status, error, created_at, updated_at
		 FROM change_records WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "inventory: changes for session %s", sessionID)
	}
	defer rows.Close()

	var out []model.ChangeRecord
	for rows.Next() {
		ch, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, eris.Wrap(rows.Err(), "inventory: iterate change records")
}

func scanChange(row pgx.Row) (*model.ChangeRecord, error) {
	var ch model.ChangeRecord
	var listingID *string
	var extractedJSON, changesJSON []byte
	if err := row.Scan(&ch.ID, &ch.SessionID, &ch.Type, &listingID, &extractedJSON, &changesJSON,
		&ch.Status, &ch.Error, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
		return nil, eris.Wrap(err, "inventory: scan change record")
	}
	if listingID != nil {
		ch.ListingID = *listingID
	}
	if len(extractedJSON) > 0 {
		ch.Extracted = &model.ExtractedVehicle{}
		if err := json.Unmarshal(extractedJSON, ch.Extracted); err != nil {
			return nil, eris.Wrap(err, "inventory: unmarshal extracted")
		}
	}
	if len(changesJSON) > 0 {
		if err := json.Unmarshal(changesJSON, &ch.Changes); err != nil {
			return nil, eris.Wrap(err, "inventory: unmarshal changes")
		}
	}
	return &ch, nil
}
