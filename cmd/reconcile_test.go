package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
	"github.com/Hennedk/leasingborsen-sub012/internal/provider"
)

// scriptedAdapter returns a fixed extraction.
type scriptedAdapter struct {
	ex *provider.Extraction
}

func (s *scriptedAdapter) Name() string                           { return "scripted" }
func (s *scriptedAdapter) Available() bool                        { return true }
func (s *scriptedAdapter) Authenticated(ctx context.Context) bool { return true }
func (s *scriptedAdapter) CostPerKTokensCents() int64             { return 100 }
func (s *scriptedAdapter) Extract(ctx context.Context, content string, opts provider.Options) (*provider.Extraction, error) {
	return s.ex, nil
}

func scriptedExtraction(vehicles ...model.ExtractedVehicle) *provider.Extraction {
	return &provider.Extraction{
		Vehicles:     vehicles,
		Document:     model.DocumentInfo{Brand: "Toyota", Currency: "DKK"},
		ModelVersion: "scripted-1",
		TokensUsed:   900,
		CostCents:    90,
		Confidence:   0.9,
	}
}

func plausibleVehicle(variant string) model.ExtractedVehicle {
	return model.ExtractedVehicle{
		Make:       "Toyota",
		Model:      "Aygo X",
		Variant:    variant,
		Powertrain: model.PowertrainGasoline,
		Pricing: []model.PricingOption{
			{MonthlyPaymentCents: 269900, AnnualKilometers: 15000},
		},
	}
}

func TestReconcileHoldsBackInvalidRecords(t *testing.T) {
	cheap := plausibleVehicle("Pulse")
	cheap.Pricing[0].MonthlyPaymentCents = 100 // 1 kr/md

	ad := &scriptedAdapter{ex: scriptedExtraction(plausibleVehicle("Active"), cheap)}
	e, mock := newServeEnv(t, ad)

	mock.ExpectQuery(`SELECT transmission_in_key FROM dealers`).
		WithArgs("dealer-1").
		WillReturnRows(pgxmock.NewRows([]string{"transmission_in_key"}).AddRow(false))
	mock.ExpectQuery(`SELECT id, dealer_id, make, model`).
		WithArgs("dealer-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "dealer_id", "make", "model", "variant", "transmission", "year",
			"colour", "monthly_price_cents", "retail_price_cents", "created_at", "updated_at",
		}))
	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(pgxmock.AnyArg(), "dealer-1", "prisliste.txt", "pending", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO change_records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "CREATE", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), "pending", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	out, err := reconcile(context.Background(), e, "dealer-1", "prisliste.txt", "prisliste", "")
	require.NoError(t, err)

	// Only the plausible record reaches comparison.
	assert.Equal(t, 1, out.Creates)
	require.Len(t, out.Rejections, 1)
	assert.Equal(t, "Pulse", out.Rejections[0].Vehicle.Variant)
	assert.False(t, out.Rejections[0].Result.Valid)
	assert.Equal(t, "pricing[0].monthly_payment", out.Rejections[0].Result.Issues[0].Field)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileBlocksWhenNothingValidates(t *testing.T) {
	cheap := plausibleVehicle("Pulse")
	cheap.Pricing[0].MonthlyPaymentCents = 100

	e, mock := newServeEnv(t, &scriptedAdapter{ex: scriptedExtraction(cheap)})

	out, err := reconcile(context.Background(), e, "dealer-1", "prisliste.txt", "prisliste", "")

	// The store is never touched: no session, no changes, no deletions.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passed validation")
	assert.Nil(t, out.Session)
	require.Len(t, out.Rejections, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServeExtractValidationBlocked(t *testing.T) {
	cheap := plausibleVehicle("Pulse")
	cheap.Pricing[0].MonthlyPaymentCents = 100

	e, mock := newServeEnv(t, &scriptedAdapter{ex: scriptedExtraction(cheap)})

	body, err := json.Marshal(map[string]string{
		"dealer_id": "dealer-1",
		"content":   "prisliste",
	})
	require.NoError(t, err)

	rr := doRequest(e, http.MethodPost, "/api/extract", body)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var out reconcileOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Nil(t, out.Session)
	require.Len(t, out.Rejections, 1)
	assert.False(t, out.Rejections[0].Result.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileRejectsBrandlessDocument(t *testing.T) {
	ex := scriptedExtraction(plausibleVehicle("Active"))
	ex.Document.Brand = ""

	e, mock := newServeEnv(t, &scriptedAdapter{ex: ex})

	_, err := reconcile(context.Background(), e, "dealer-1", "prisliste.txt", "prisliste", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document brand")
	assert.NoError(t, mock.ExpectationsWereMet())
}
