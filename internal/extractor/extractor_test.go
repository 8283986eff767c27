package extractor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hennedk/leasingborsen-sub012/internal/apperr"
	"github.com/Hennedk/leasingborsen-sub012/internal/config"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
	"github.com/Hennedk/leasingborsen-sub012/internal/provider"
	"github.com/Hennedk/leasingborsen-sub012/internal/resilience"
	"github.com/Hennedk/leasingborsen-sub012/internal/validator"
)

// fakeAdapter scripts provider behavior per call.
type fakeAdapter struct {
	name      string
	costPerK  int64
	available bool
	calls     int
	extract   func(call int) (*provider.Extraction, error)
}

func (f *fakeAdapter) Name() string                             { return f.name }
func (f *fakeAdapter) Available() bool                          { return f.available }
func (f *fakeAdapter) Authenticated(ctx context.Context) bool   { return f.available }
func (f *fakeAdapter) CostPerKTokensCents() int64               { return f.costPerK }
func (f *fakeAdapter) Extract(ctx context.Context, content string, opts provider.Options) (*provider.Extraction, error) {
	f.calls++
	return f.extract(f.calls)
}

// fakeLedger tracks reservations and records in memory.
type fakeLedger struct {
	allowed    bool
	reason     string
	reserveErr error
	reserved   []int64
	records    []model.CostRecord
}

func (f *fakeLedger) CanAfford(ctx context.Context, estimateCents int64) (model.Affordability, error) {
	return model.Affordability{Allowed: f.allowed, Reason: f.reason}, nil
}

func (f *fakeLedger) Reserve(ctx context.Context, estimateCents int64) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	f.reserved = append(f.reserved, estimateCents)
	return nil
}

func (f *fakeLedger) Record(ctx context.Context, reservedCents int64, rec model.CostRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLedger) Summary(ctx context.Context, dealerID string) (model.CostSummary, error) {
	return model.CostSummary{}, nil
}

func validationConfig() config.ValidationConfig {
	return config.ValidationConfig{
		MonthlyMinCents:     100000,
		MonthlyMaxCents:     2000000,
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

func goodExtraction() *provider.Extraction {
	return &provider.Extraction{
		Vehicles: []model.ExtractedVehicle{{
			Make:       "Toyota",
			Model:      "Aygo X",
			Variant:    "Active",
			Powertrain: model.PowertrainGasoline,
			Pricing: []model.PricingOption{
				{MonthlyPaymentCents: 269900, FirstPaymentCents: 499900, AnnualKilometers: 15000},
			},
		}},
		Document:     model.DocumentInfo{Brand: "Toyota"},
		ModelVersion: "test-model-1",
		TokensUsed:   1200,
		CostCents:    360,
		Confidence:   0.9,
	}
}

func newTestOrchestrator(t *testing.T, led *fakeLedger, strategy string, adapters ...provider.Adapter) *Orchestrator {
	t.Helper()
	val, err := validator.New(validationConfig())
	require.NoError(t, err)

	reg := provider.NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}

	o := New(reg, led, val, config.ExtractionConfig{
		Strategy:            strategy,
		MaxRetries:          1,
		BaseTimeoutSecs:     5,
		TimeoutSecsPer10KB:  1,
		ProviderRatePerMin:  6000,
		ConfidenceThreshold: 0.7,
		Locale:              "da",
	})
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return o
}

func TestExtractSuccess(t *testing.T) {
	led := &fakeLedger{allowed: true}
	a := &fakeAdapter{name: "anthropic", costPerK: 300, available: true,
		extract: func(int) (*provider.Extraction, error) { return goodExtraction(), nil }}

	res := newTestOrchestrator(t, led, StrategyPrimaryOnly, a).Extract(context.Background(), Request{
		Content:  "Toyota Aygo X prisliste",
		DealerID: "dealer-1",
	})

	require.True(t, res.OK())
	assert.Nil(t, res.Error)
	assert.Len(t, res.Vehicles, 1)
	assert.Equal(t, "anthropic", res.Metadata.Provider)
	assert.Equal(t, "test-model-1", res.Metadata.ModelVersion)
	assert.Equal(t, int64(360), res.Metadata.CostCents)
	assert.NotEmpty(t, res.Metadata.CorrelationID)
	assert.Equal(t, []string{"anthropic"}, res.Metadata.AttemptedProviders)
	// Structural score 1.0 blended with the adapter's 0.9 estimate.
	assert.InDelta(t, 0.97, res.Metadata.Confidence, 0.001)

	require.Len(t, led.records, 1)
	assert.Equal(t, model.CostSuccess, led.records[0].Outcome)
	assert.Equal(t, int64(360), led.records[0].CostCents)
	assert.Equal(t, "dealer-1", led.records[0].DealerID)
	require.Len(t, led.reserved, 1)
	assert.Positive(t, led.reserved[0])
}

func TestExtractBudgetDenied(t *testing.T) {
	led := &fakeLedger{allowed: false, reason: "daily budget exhausted"}
	a := &fakeAdapter{name: "anthropic", costPerK: 300, available: true,
		extract: func(int) (*provider.Extraction, error) { return goodExtraction(), nil }}

	res := newTestOrchestrator(t, led, StrategyPrimaryOnly, a).Extract(context.Background(), Request{Content: "doc"})

	assert.False(t, res.OK())
	require.NotNil(t, res.Error)
	assert.Equal(t, string(apperr.TypeCostLimit), res.Error.Type)
	assert.False(t, res.Error.Retryable)
	assert.Zero(t, a.calls, "denied call must never reach the provider")
	assert.Empty(t, led.records)
}

func TestExtractFallback(t *testing.T) {
	led := &fakeLedger{allowed: true}
	primary := &fakeAdapter{name: "anthropic", costPerK: 300, available: true,
		extract: func(int) (*provider.Extraction, error) {
			return nil, resilience.NewTransientError(assert.AnError, 503)
		}}
	fallback := &fakeAdapter{name: "mistral", costPerK: 200, available: true,
		extract: func(int) (*provider.Extraction, error) { return goodExtraction(), nil }}

	res := newTestOrchestrator(t, led, StrategyPrimaryWithFallback, primary, fallback).
		Extract(context.Background(), Request{Content: "doc"})

	require.True(t, res.OK())
	assert.Equal(t, "mistral", res.Metadata.Provider)
	assert.Equal(t, []string{"anthropic", "mistral"}, res.Metadata.AttemptedProviders)

	// Both attempts settle their reservation: one failure, one success.
	require.Len(t, led.records, 2)
	assert.Equal(t, model.CostFailure, led.records[0].Outcome)
	assert.Equal(t, model.CostSuccess, led.records[1].Outcome)
}

func TestExtractPrimaryOnlyDoesNotFallBack(t *testing.T) {
	led := &fakeLedger{allowed: true}
	primary := &fakeAdapter{name: "anthropic", costPerK: 300, available: true,
		extract: func(int) (*provider.Extraction, error) {
			return nil, resilience.NewTransientError(assert.AnError, 502)
		}}
	fallback := &fakeAdapter{name: "mistral", costPerK: 200, available: true,
		extract: func(int) (*provider.Extraction, error) { return goodExtraction(), nil }}

	res := newTestOrchestrator(t, led, StrategyPrimaryOnly, primary, fallback).
		Extract(context.Background(), Request{Content: "doc"})

	assert.False(t, res.OK())
	require.NotNil(t, res.Error)
	assert.Equal(t, string(apperr.TypeProvider), res.Error.Type)
	assert.True(t, res.Error.Retryable)
	assert.Equal(t, []string{"anthropic"}, res.Metadata.AttemptedProviders)
	assert.Zero(t, fallback.calls)
}

func TestExtractCostOptimizedOrder(t *testing.T) {
	led := &fakeLedger{allowed: true}
	expensive := &fakeAdapter{name: "anthropic", costPerK: 300, available: true,
		extract: func(int) (*provider.Extraction, error) { return goodExtraction(), nil }}
	cheap := &fakeAdapter{name: "mistral", costPerK: 80, available: true,
		extract: func(int) (*provider.Extraction, error) { return goodExtraction(), nil }}

	res := newTestOrchestrator(t, led, StrategyCostOptimized, expensive, cheap).
		Extract(context.Background(), Request{Content: "doc"})

	require.True(t, res.OK())
	assert.Equal(t, "mistral", res.Metadata.Provider)
	assert.Zero(t, expensive.calls)
}

func TestExtractAllProvidersKeepsBest(t *testing.T) {
	led := &fakeLedger{allowed: true}
	weak := &fakeAdapter{name: "anthropic", costPerK: 300, available: true,
		extract: func(int) (*provider.Extraction, error) {
			ex := goodExtraction()
			// Missing variant drops the structural confidence below the
			// clean extraction but stays above the acceptance threshold.
			ex.Vehicles[0].Variant = ""
			return ex, nil
		}}
	strong := &fakeAdapter{name: "mistral", costPerK: 200, available: true,
		extract: func(int) (*provider.Extraction, error) { return goodExtraction(), nil }}

	res := newTestOrchestrator(t, led, StrategyAllProviders, weak, strong).
		Extract(context.Background(), Request{Content: "doc"})

	require.True(t, res.OK())
	assert.Equal(t, "mistral", res.Metadata.Provider)
	assert.InDelta(t, 0.97, res.Metadata.Confidence, 0.001)
	assert.Equal(t, []string{"anthropic", "mistral"}, res.Metadata.AttemptedProviders)
	assert.Equal(t, 1, weak.calls)
	assert.Equal(t, 1, strong.calls)
}

func TestExtractRetriesTransientFailure(t *testing.T) {
	led := &fakeLedger{allowed: true}
	flaky := &fakeAdapter{name: "anthropic", costPerK: 300, available: true,
		extract: func(call int) (*provider.Extraction, error) {
			if call == 1 {
				return nil, resilience.NewTransientError(assert.AnError, 429)
			}
			return goodExtraction(), nil
		}}

	o := newTestOrchestrator(t, led, StrategyPrimaryOnly, flaky)
	o.cfg.MaxRetries = 3
	res := o.Extract(context.Background(), Request{Content: "doc"})

	require.True(t, res.OK())
	assert.Equal(t, 2, flaky.calls)
	// One reservation covers the whole provider attempt, retries included.
	assert.Len(t, led.reserved, 1)
	require.Len(t, led.records, 1)
	assert.Equal(t, model.CostSuccess, led.records[0].Outcome)
}

func TestExtractLowConfidenceRejected(t *testing.T) {
	led := &fakeLedger{allowed: true}
	a := &fakeAdapter{name: "anthropic", costPerK: 300, available: true,
		extract: func(int) (*provider.Extraction, error) {
			ex := goodExtraction()
			ex.Vehicles[0].Make = ""
			ex.Vehicles[0].Model = ""
			return ex, nil
		}}

	res := newTestOrchestrator(t, led, StrategyPrimaryOnly, a).Extract(context.Background(), Request{Content: "doc"})

	assert.False(t, res.OK())
	require.NotNil(t, res.Error)
	assert.Equal(t, string(apperr.TypeExtraction), res.Error.Type)
	// The call happened, so its cost is still recorded.
	require.Len(t, led.records, 1)
	assert.Equal(t, model.CostSuccess, led.records[0].Outcome)
}

func TestExtractBlendsAdapterConfidence(t *testing.T) {
	led := &fakeLedger{allowed: true}
	a := &fakeAdapter{name: "anthropic", costPerK: 300, available: true,
		extract: func(int) (*provider.Extraction, error) {
			ex := goodExtraction()
			ex.Confidence = 0.5
			return ex, nil
		}}

	res := newTestOrchestrator(t, led, StrategyPrimaryOnly, a).Extract(context.Background(), Request{Content: "doc"})

	require.True(t, res.OK())
	// A hesitant adapter drags a structurally clean extraction down.
	assert.InDelta(t, 0.85, res.Metadata.Confidence, 0.001)
}

func TestExtractNoProvidersConfigured(t *testing.T) {
	led := &fakeLedger{allowed: true}
	off := &fakeAdapter{name: "anthropic", costPerK: 300, available: false,
		extract: func(int) (*provider.Extraction, error) { return goodExtraction(), nil }}

	res := newTestOrchestrator(t, led, StrategyPrimaryWithFallback, off).
		Extract(context.Background(), Request{Content: "doc"})

	assert.False(t, res.OK())
	require.NotNil(t, res.Error)
	assert.Equal(t, string(apperr.TypeProvider), res.Error.Type)
	assert.Empty(t, res.Metadata.AttemptedProviders)
}

func TestExtractUnknownStrategy(t *testing.T) {
	led := &fakeLedger{allowed: true}
	a := &fakeAdapter{name: "anthropic", costPerK: 300, available: true,
		extract: func(int) (*provider.Extraction, error) { return goodExtraction(), nil }}

	res := newTestOrchestrator(t, led, StrategyPrimaryOnly, a).Extract(context.Background(), Request{
		Content:  "doc",
		Strategy: "cheapest_sometimes",
	})

	assert.False(t, res.OK())
	require.NotNil(t, res.Error)
	assert.Equal(t, string(apperr.TypeValidation), res.Error.Type)
}

func TestTimeoutScalesWithSize(t *testing.T) {
	o := newTestOrchestrator(t, &fakeLedger{allowed: true}, StrategyPrimaryOnly)

	assert.Equal(t, 5*time.Second, o.timeout(1000))
	assert.Equal(t, 8*time.Second, o.timeout(3*10240+500))
}

func TestExtractRequestStrategyOverride(t *testing.T) {
	led := &fakeLedger{allowed: true}
	primary := &fakeAdapter{name: "anthropic", costPerK: 300, available: true,
		extract: func(int) (*provider.Extraction, error) {
			return nil, resilience.NewTransientError(assert.AnError, 503)
		}}
	fallback := &fakeAdapter{name: "mistral", costPerK: 200, available: true,
		extract: func(int) (*provider.Extraction, error) { return goodExtraction(), nil }}

	// Configured primary_only, overridden per request.
	res := newTestOrchestrator(t, led, StrategyPrimaryOnly, primary, fallback).
		Extract(context.Background(), Request{Content: "doc", Strategy: StrategyPrimaryWithFallback})

	require.True(t, res.OK())
	assert.Equal(t, "mistral", res.Metadata.Provider)
}
