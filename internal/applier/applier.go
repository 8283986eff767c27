// Package applier commits approved change records to the inventory. Every
// record is its own transaction: one bad record never rolls back the rest
// of the batch.
package applier

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Hennedk/leasingborsen-sub012/internal/db"
	"github.com/Hennedk/leasingborsen-sub012/internal/inventory"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

// applyOrder fixes the type ordering within a batch. Creates must land
// before deletes so a rename (CREATE+DELETE pair) never leaves the
// inventory temporarily empty.
var applyOrder = map[model.ChangeType]int{
	model.ChangeCreate: 0,
	model.ChangeUpdate: 1,
	model.ChangeDelete: 2,
}

// Applier commits change records.
type Applier struct {
	pool  db.Pool
	store *inventory.Store
}

// New creates an applier over the inventory store's pool.
func New(store *inventory.Store) *Applier {
	return &Applier{pool: store.Pool(), store: store}
}

// Apply commits a session's pending change records. When approvedIDs is
// non-empty only those records are applied and the remaining pending ones
// are marked skipped; an empty approvedIDs approves everything pending.
// Records no longer pending (a re-run of an applied session) are counted
// as skipped and left untouched, which makes Apply safe to call twice.
func (a *Applier) Apply(ctx context.Context, sessionID string, approvedIDs []string) (*model.ApplyResult, error) {
	sess, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.SessionCancelled {
		return nil, eris.Errorf("applier: session %s is cancelled", sessionID)
	}

	changes, err := a.store.ChangesBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return applyOrder[changes[i].Type] < applyOrder[changes[j].Type]
	})

	approved := make(map[string]bool, len(approvedIDs))
	for _, id := range approvedIDs {
		approved[id] = true
	}
	approveAll := len(approvedIDs) == 0

	result := &model.ApplyResult{SessionID: sessionID}
	for i := range changes {
		ch := &changes[i]
		if ch.Status != model.ChangePending {
			result.Skipped++
			continue
		}
		if !approveAll && !approved[ch.ID] {
			a.markStatus(ctx, ch.ID, model.ChangeSkipped, "")
			result.Skipped++
			continue
		}

		if err := a.applyOne(ctx, sess.DealerID, ch); err != nil {
			zap.L().Warn("change record failed",
				zap.String("session_id", sessionID),
				zap.String("change_id", ch.ID),
				zap.String("type", string(ch.Type)),
				zap.Error(err))
			a.markStatus(ctx, ch.ID, model.ChangeFailed, err.Error())
			result.Failed++
			result.Errors = append(result.Errors, model.ApplyError{
				ChangeID: ch.ID,
				Type:     ch.Type,
				Message:  err.Error(),
			})
			continue
		}
		result.Applied++
	}

	result.Status = sessionStatus(result)
	if err := a.store.UpdateSessionStatus(ctx, sessionID, result.Status); err != nil {
		return nil, err
	}
	return result, nil
}

func sessionStatus(r *model.ApplyResult) model.SessionStatus {
	switch {
	case r.Failed == 0:
		return model.SessionApplied
	case r.Applied == 0:
		return model.SessionFailed
	default:
		return model.SessionPartiallyApplied
	}
}

func (a *Applier) applyOne(ctx context.Context, dealerID string, ch *model.ChangeRecord) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "applier: begin")
	}
	defer tx.Rollback(ctx)

	switch ch.Type {
	case model.ChangeCreate:
		err = a.applyCreate(ctx, tx, dealerID, ch)
	case model.ChangeUpdate:
		err = a.applyUpdate(ctx, tx, ch)
	case model.ChangeDelete:
		err = a.applyDelete(ctx, tx, ch)
	default:
		err = eris.Errorf("applier: unknown change type %q", ch.Type)
	}
	if err != nil {
		return err
	}

	if err := a.setStatusTx(ctx, tx, ch.ID, model.ChangeApplied); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "applier: commit")
	}
	ch.Status = model.ChangeApplied
	return nil
}

func (a *Applier) applyCreate(ctx context.Context, tx pgx.Tx, dealerID string, ch *model.ChangeRecord) error {
	ev := ch.Extracted
	if ev == nil {
		return eris.New("applier: CREATE without extracted data")
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	variant, tr := ev.Variant, ev.Transmission
	if _, err := tx.Exec(ctx,
		`INSERT INTO listings (id, dealer_id, make, model, variant, transmission, year, colour, monthly_price_cents, retail_price_cents, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, dealerID, ev.Make, ev.Model, variant, string(tr), ev.Year, ev.Colour, ev.MonthlyPaymentCents(), int64(0), now, now,
	); err != nil {
		return eris.Wrap(err, "applier: insert listing")
	}
	if err := insertTiers(ctx, tx, id, ev.Pricing, ev.LeaseMonths); err != nil {
		return err
	}

	// Point the record at the listing it produced.
	if _, err := tx.Exec(ctx,
		`UPDATE change_records SET listing_id = $1 WHERE id = $2`,
		id, ch.ID,
	); err != nil {
		return eris.Wrap(err, "applier: link created listing")
	}
	ch.ListingID = id
	return nil
}

func (a *Applier) applyUpdate(ctx context.Context, tx pgx.Tx, ch *model.ChangeRecord) error {
	if ch.ListingID == "" {
		return eris.New("applier: UPDATE without listing id")
	}

	set := ""
	args := []any{}
	add := func(col string, val any) {
		args = append(args, val)
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s = $%d", col, len(args))
	}

	for field := range ch.Changes {
		switch field {
		case "monthly_price_cents", "variant", "transmission", "year", "colour", "pricing_tiers":
		default:
			return eris.Errorf("applier: unknown change field %q", field)
		}
	}

	// Fixed column order keeps the generated SQL deterministic.
	for _, field := range []string{"monthly_price_cents", "variant", "transmission", "year", "colour"} {
		fc, ok := ch.Changes[field]
		if !ok {
			continue
		}
		switch field {
		case "monthly_price_cents":
			if v, ok := asInt64(fc.New); ok {
				add("monthly_price_cents", v)
			}
		case "year":
			if v, ok := asInt64(fc.New); ok {
				add("year", int(v))
			}
		default:
			add(field, fmt.Sprintf("%v", fc.New))
		}
	}

	if set != "" {
		add("updated_at", time.Now().UTC())
		args = append(args, ch.ListingID)
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE listings SET %s WHERE id = $%d`, set, len(args)), args...,
		)
		if err != nil {
			return eris.Wrapf(err, "applier: update listing %s", ch.ListingID)
		}
		if tag.RowsAffected() != 1 {
			return eris.Errorf("applier: listing not found: %s", ch.ListingID)
		}
	}

	if _, ok := ch.Changes["pricing_tiers"]; ok {
		if ch.Extracted == nil {
			return eris.New("applier: tier change without extracted data")
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM pricing_tiers WHERE listing_id = $1`, ch.ListingID,
		); err != nil {
			return eris.Wrapf(err, "applier: clear tiers for %s", ch.ListingID)
		}
		if err := insertTiers(ctx, tx, ch.ListingID, ch.Extracted.Pricing, ch.Extracted.LeaseMonths); err != nil {
			return err
		}
	}
	return nil
}

// applyDelete removes a listing. References from change records in every
// session are cleared first so historical audit rows never block the
// delete; then tiers, then the listing itself, which must still exist.
func (a *Applier) applyDelete(ctx context.Context, tx pgx.Tx, ch *model.ChangeRecord) error {
	if ch.ListingID == "" {
		return eris.New("applier: DELETE without listing id")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE change_records SET listing_id = NULL WHERE listing_id = $1`,
		ch.ListingID,
	); err != nil {
		return eris.Wrapf(err, "applier: clear references to %s", ch.ListingID)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM pricing_tiers WHERE listing_id = $1`, ch.ListingID,
	); err != nil {
		return eris.Wrapf(err, "applier: delete tiers for %s", ch.ListingID)
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM listings WHERE id = $1`, ch.ListingID,
	)
	if err != nil {
		return eris.Wrapf(err, "applier: delete listing %s", ch.ListingID)
	}
	if tag.RowsAffected() != 1 {
		return eris.Errorf("applier: listing not found: %s", ch.ListingID)
	}
	return nil
}

func insertTiers(ctx context.Context, tx pgx.Tx, listingID string, pricing []model.PricingOption, leaseMonths int) error {
	for _, p := range pricing {
		if _, err := tx.Exec(ctx,
			`INSERT INTO pricing_tiers (id, listing_id, monthly_payment_cents, first_payment_cents, annual_kilometers, lease_months) VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(), listingID, p.MonthlyPaymentCents, p.FirstPaymentCents, p.AnnualKilometers, leaseMonths,
		); err != nil {
			return eris.Wrapf(err, "applier: insert tier for %s", listingID)
		}
	}
	return nil
}

func (a *Applier) setStatusTx(ctx context.Context, tx pgx.Tx, changeID string, status model.ChangeStatus) error {
	tag, err := tx.Exec(ctx,
		`UPDATE change_records SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), changeID,
	)
	if err != nil {
		return eris.Wrapf(err, "applier: set status for %s", changeID)
	}
	if tag.RowsAffected() != 1 {
		return eris.Errorf("applier: change record not found: %s", changeID)
	}
	return nil
}

// markStatus records a terminal status outside any transaction. Best
// effort: a failure here only loses bookkeeping, never data.
func (a *Applier) markStatus(ctx context.Context, changeID string, status model.ChangeStatus, errMsg string) {
	if _, err := a.pool.Exec(ctx,
		`UPDATE change_records SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), changeID,
	); err != nil {
		zap.L().Warn("mark change status failed",
			zap.String("change_id", changeID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

// asInt64 coerces the loosely typed values a JSON round trip produces.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
