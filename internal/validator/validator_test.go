package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hennedk/leasingborsen-sub012/internal/config"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

func testConfig() config.ValidationConfig {
	return config.ValidationConfig{
		MonthlyMinCents:     100000,  // 1 000 kr
		MonthlyMaxCents:     2000000, // 20 000 kr
		AnnualKmMin:         10000,
		AnnualKmMax:         50000,
		CO2TaxCeilingCents:  1000000,
		ConsumptionMinKmpl:  5,
		ConsumptionMaxKmpl:  40,
		EmissionsMaxGkm:     350,
		PowerMinHP:          40,
		PowerMaxHP:          1200,
		AccelerationMinSecs: 2,
		AccelerationMaxSecs: 25,
		ConfidenceThreshold: 0.7,
	}
}

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(testConfig())
	require.NoError(t, err)
	return v
}

func validVehicle() model.ExtractedVehicle {
	return model.ExtractedVehicle{
		Make:       "Toyota",
		Model:      "Aygo X",
		Variant:    "Active",
		EngineSpec: "1.0 benzin 72 hk",
		Pricing: []model.PricingOption{
			{MonthlyPaymentCents: 269900, FirstPaymentCents: 499900, AnnualKilometers: 15000, CO2TaxBiannualCents: 33000},
		},
	}
}

func TestValidateCleanRecord(t *testing.T) {
	r := newTestValidator(t).Validate(validVehicle())
	assert.True(t, r.Valid)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Empty(t, r.Issues)
}

func TestValidateRequiredFields(t *testing.T) {
	v := newTestValidator(t)

	ev := validVehicle()
	ev.Make = ""
	ev.Variant = "  "
	r := v.Validate(ev)
	assert.False(t, r.Valid)
	assert.Len(t, r.Issues, 2)
	assert.InDelta(t, 0.5, r.Confidence, 0.001)

	ev = validVehicle()
	ev.Pricing = nil
	r = v.Validate(ev)
	assert.False(t, r.Valid)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, "pricing", r.Issues[0].Field)

	ev = validVehicle()
	ev.EngineSpec = "  "
	r = v.Validate(ev)
	assert.False(t, r.Valid)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, "engine_spec", r.Issues[0].Field)

	// A powertrain alone satisfies the descriptor requirement.
	ev.Powertrain = model.PowertrainGasoline
	assert.True(t, v.Validate(ev).Valid)
}

func TestValidateDocument(t *testing.T) {
	v := newTestValidator(t)

	assert.Empty(t, v.ValidateDocument(model.DocumentInfo{Brand: "Toyota"}))

	issues := v.ValidateDocument(model.DocumentInfo{Currency: "DKK"})
	require.Len(t, issues, 1)
	assert.Equal(t, "document.brand", issues[0].Field)
	assert.Equal(t, SeverityError, issues[0].Severity)
}

func TestValidatePricingBounds(t *testing.T) {
	v := newTestValidator(t)

	ev := validVehicle()
	ev.Pricing[0].MonthlyPaymentCents = 50000 // 500 kr, below market floor
	r := v.Validate(ev)
	assert.False(t, r.Valid)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, "pricing[0].monthly_payment", r.Issues[0].Field)

	ev = validVehicle()
	ev.Pricing[0].AnnualKilometers = 60000
	r = v.Validate(ev)
	assert.False(t, r.Valid)

	// A zero annual-km tier means the document never stated it; not an error.
	ev = validVehicle()
	ev.Pricing[0].AnnualKilometers = 0
	assert.True(t, v.Validate(ev).Valid)

	ev = validVehicle()
	ev.Pricing[0].CO2TaxBiannualCents = 2000000
	assert.False(t, v.Validate(ev).Valid)
}

func TestValidatePowertrainConsistency(t *testing.T) {
	v := newTestValidator(t)
	consumption := 18.5
	battery := 64.0

	rng := 400.0

	// A complete electric record passes.
	ev := validVehicle()
	ev.Powertrain = model.PowertrainElectric
	ev.Specifications = &model.Specifications{BatteryCapacityKwh: &battery, ElectricRangeKm: &rng}
	assert.True(t, v.Validate(ev).Valid)

	// One with a fuel figure and no battery data fails on all three counts.
	ev = validVehicle()
	ev.Powertrain = model.PowertrainElectric
	ev.Specifications = &model.Specifications{FuelConsumptionKmpl: &consumption}
	r := v.Validate(ev)
	assert.False(t, r.Valid)
	require.Len(t, r.Issues, 3)
	assert.Equal(t, "powertrain", r.Issues[0].Field)
	assert.InDelta(t, 0.55, r.Confidence, 0.001)

	ev = validVehicle()
	ev.Powertrain = model.PowertrainGasoline
	ev.Specifications = &model.Specifications{BatteryCapacityKwh: &battery}
	assert.False(t, v.Validate(ev).Valid)

	// Hybrids legitimately carry both a battery and a fuel figure.
	ev = validVehicle()
	ev.Powertrain = model.PowertrainHybrid
	ev.Specifications = &model.Specifications{FuelConsumptionKmpl: &consumption, BatteryCapacityKwh: &battery}
	assert.True(t, v.Validate(ev).Valid)
}

func TestValidateSpecBoundsBlock(t *testing.T) {
	v := newTestValidator(t)
	power := 5000.0

	ev := validVehicle()
	ev.Specifications = &model.Specifications{PowerHP: &power}
	r := v.Validate(ev)

	assert.False(t, r.Valid)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, SeverityError, r.Issues[0].Severity)
	assert.Equal(t, "spec.power_hp", r.Issues[0].Field)
	assert.InDelta(t, 0.85, r.Confidence, 0.001)

	// The bounds run in quick mode too.
	assert.InDelta(t, 0.85, v.Quick([]model.ExtractedVehicle{ev}), 0.001)
}

func TestValidateUnknownBrandWarns(t *testing.T) {
	v := newTestValidator(t)

	ev := validVehicle()
	ev.Make = "Zhidou"
	r := v.Validate(ev)
	assert.True(t, r.Valid)
	require.Len(t, r.Issues, 1)
	assert.Equal(t, "make", r.Issues[0].Field)

	// Case-insensitive lookup.
	ev.Make = "toyota"
	assert.Empty(t, v.Validate(ev).Issues)
}

func TestValidateAll(t *testing.T) {
	v := newTestValidator(t)

	bad := validVehicle()
	bad.Pricing = nil

	results, mean := v.ValidateAll([]model.ExtractedVehicle{validVehicle(), bad})
	require.Len(t, results, 2)
	assert.True(t, results[0].Valid)
	assert.False(t, results[1].Valid)
	assert.InDelta(t, (1.0+0.75)/2, mean, 0.001)

	_, mean = v.ValidateAll(nil)
	assert.Zero(t, mean)
}

func TestQuickSkipsSoftRules(t *testing.T) {
	v := newTestValidator(t)

	// Unknown brand and pricing bounds are invisible to Quick.
	ev := validVehicle()
	ev.Make = "Zhidou"
	ev.Pricing[0].MonthlyPaymentCents = 100
	assert.Equal(t, 1.0, v.Quick([]model.ExtractedVehicle{ev}))

	ev.Pricing = nil
	assert.InDelta(t, 0.75, v.Quick([]model.ExtractedVehicle{ev}), 0.001)

	assert.Zero(t, v.Quick(nil))
}

func TestPartition(t *testing.T) {
	v := newTestValidator(t)

	cheap := validVehicle()
	cheap.Variant = "Pulse"
	cheap.Pricing[0].MonthlyPaymentCents = 100 // 1 kr/md

	accepted, rejected := v.Partition([]model.ExtractedVehicle{validVehicle(), cheap})
	require.Len(t, accepted, 1)
	assert.Equal(t, "Active", accepted[0].Variant)

	require.Len(t, rejected, 1)
	assert.Equal(t, "Pulse", rejected[0].Vehicle.Variant)
	assert.False(t, rejected[0].Result.Valid)
	require.Len(t, rejected[0].Result.Issues, 1)
	assert.Equal(t, "pricing[0].monthly_payment", rejected[0].Result.Issues[0].Field)

	accepted, rejected = v.Partition(nil)
	assert.Empty(t, accepted)
	assert.Empty(t, rejected)
}
