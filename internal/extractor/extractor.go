// Package extractor orchestrates document extraction across providers under
// the cost budget. The orchestrator owns provider selection, rate limiting,
// circuit breaking, retries and spend bookkeeping; adapters only talk to
// their API.
package extractor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Hennedk/leasingborsen-sub012/internal/apperr"
	"github.com/Hennedk/leasingborsen-sub012/internal/config"
	"github.com/Hennedk/leasingborsen-sub012/internal/ledger"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
	"github.com/Hennedk/leasingborsen-sub012/internal/provider"
	"github.com/Hennedk/leasingborsen-sub012/internal/resilience"
	"github.com/Hennedk/leasingborsen-sub012/internal/validator"
)

// Extraction strategies.
const (
	StrategyPrimaryOnly         = "primary_only"
	StrategyPrimaryWithFallback = "primary_with_fallback"
	StrategyCostOptimized       = "cost_optimized"
	StrategyAllProviders        = "all_providers"
)

// Weights for blending the structural validation score with the confidence
// the adapter reported for its own output.
const (
	confidenceWeightStructural = 0.7
	confidenceWeightAdapter    = 0.3
)

// Request is one extraction job.
type Request struct {
	Content      string
	DealerID     string
	DocumentName string
	Options      provider.Options
	// Strategy overrides the configured default when set.
	Strategy string
}

// Orchestrator drives extraction. Safe for concurrent use.
type Orchestrator struct {
	registry  *provider.Registry
	ledger    ledger.Ledger
	validator *validator.Validator
	cfg       config.ExtractionConfig
	breakers  *resilience.ProviderBreakers

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator.
func New(registry *provider.Registry, led ledger.Ledger, val *validator.Validator, cfg config.ExtractionConfig) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		ledger:    led,
		validator: val,
		cfg:       cfg,
		breakers:  resilience.NewProviderBreakers(resilience.DefaultCircuitBreakerConfig()),
		limiters:  make(map[string]*rate.Limiter),
		sleep:     resilience.Sleep,
	}
}

// Extract runs one extraction. It never returns a bare error: the result
// always carries metadata, and failures arrive as a categorized ResultError
// so callers can distinguish "over budget" from "provider down".
func (o *Orchestrator) Extract(ctx context.Context, req Request) *model.ExtractionResult {
	start := time.Now()
	correlationID := uuid.New().String()
	log := zap.L().With(
		zap.String("correlation_id", correlationID),
		zap.String("dealer_id", req.DealerID),
	)

	result := &model.ExtractionResult{
		Metadata: model.ExtractionMetadata{CorrelationID: correlationID},
	}
	defer func() { result.Metadata.Duration = time.Since(start) }()

	strategy := req.Strategy
	if strategy == "" {
		strategy = o.cfg.Strategy
	}
	providers, err := o.plan(strategy)
	if err != nil {
		result.Error = apperr.AsResultError(err, o.cfg.Locale)
		return result
	}

	if strategy == StrategyAllProviders {
		o.extractAll(ctx, req, providers, result, log)
		return result
	}

	var lastErr error
	for _, p := range providers {
		result.Metadata.AttemptedProviders = append(result.Metadata.AttemptedProviders, p.Name())

		ex, err := o.attempt(ctx, p, req, log)
		if err == nil {
			fill(result, p.Name(), ex)
			return result
		}
		lastErr = err
		log.Warn("provider attempt failed",
			zap.String("provider", p.Name()),
			zap.String("error_type", string(apperr.TypeOf(err))),
			zap.Error(err))

		// Cancellation ends the chain; any other failure falls through to
		// the next adapter.
		if ctx.Err() != nil {
			break
		}
	}

	result.Error = apperr.AsResultError(lastErr, o.cfg.Locale)
	return result
}

// extractAll queries every provider and keeps the highest-confidence result.
func (o *Orchestrator) extractAll(ctx context.Context, req Request, providers []provider.Adapter, result *model.ExtractionResult, log *zap.Logger) {
	var best *provider.Extraction
	var bestName string
	var lastErr error

	for _, p := range providers {
		result.Metadata.AttemptedProviders = append(result.Metadata.AttemptedProviders, p.Name())
		ex, err := o.attempt(ctx, p, req, log)
		if err != nil {
			lastErr = err
			log.Warn("provider attempt failed", zap.String("provider", p.Name()), zap.Error(err))
			continue
		}
		if best == nil || ex.Confidence > best.Confidence {
			best, bestName = ex, p.Name()
		}
	}

	if best == nil {
		result.Error = apperr.AsResultError(lastErr, o.cfg.Locale)
		return
	}
	fill(result, bestName, best)
}

func fill(result *model.ExtractionResult, providerName string, ex *provider.Extraction) {
	result.Vehicles = ex.Vehicles
	result.Document = ex.Document
	result.Metadata.Provider = providerName
	result.Metadata.ModelVersion = ex.ModelVersion
	result.Metadata.TokensUsed = ex.TokensUsed
	result.Metadata.CostCents = ex.CostCents
	result.Metadata.Confidence = ex.Confidence
	result.Metadata.Warnings = ex.Warnings
}

// plan resolves the provider order for a strategy. Only available adapters
// participate.
func (o *Orchestrator) plan(strategy string) ([]provider.Adapter, error) {
	var available []provider.Adapter
	for _, p := range o.registry.List() {
		if p.Available() {
			available = append(available, p)
		}
	}
	if len(available) == 0 {
		return nil, apperr.Provider("no providers configured", nil, false)
	}

	switch strategy {
	case StrategyPrimaryOnly:
		return available[:1], nil
	case StrategyPrimaryWithFallback, StrategyAllProviders, "":
		return available, nil
	case StrategyCostOptimized:
		sorted := make([]provider.Adapter, len(available))
		copy(sorted, available)
		// Insertion sort keeps registration order among equal rates.
		for i := 1; i < len(sorted); i++ {
			for j := i; j > 0 && sorted[j].CostPerKTokensCents() < sorted[j-1].CostPerKTokensCents(); j-- {
				sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
			}
		}
		return sorted, nil
	default:
		return nil, apperr.Validation("unknown extraction strategy: " + strategy)
	}
}

// attempt runs one provider with budget checks and retries. The returned
// error is always categorized.
func (o *Orchestrator) attempt(ctx context.Context, p provider.Adapter, req Request, log *zap.Logger) (*provider.Extraction, error) {
	estimate := ledger.EstimateCents(len(req.Content), p.CostPerKTokensCents())

	// Budget enforcement fails closed: a broken ledger blocks paid calls.
	aff, err := o.ledger.CanAfford(ctx, estimate)
	if err != nil {
		return nil, apperr.Wrap(apperr.TypeCostLimit, "budget check failed", err)
	}
	if !aff.Allowed {
		return nil, apperr.CostLimit(aff.Reason)
	}
	if err := o.ledger.Reserve(ctx, estimate); err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, apperr.Wrap(apperr.TypeCostLimit, "budget reservation failed", err)
	}

	ex, err := o.invokeWithRetry(ctx, p, req, log)

	// Bookkeeping fails open: a broken ledger never discards a result.
	rec := model.CostRecord{
		Provider:  p.Name(),
		DealerID:  req.DealerID,
		Outcome:   model.CostSuccess,
		CostCents: estimate,
	}
	if err != nil {
		rec.Outcome = model.CostFailure
	} else {
		rec.ModelVersion = ex.ModelVersion
		rec.TokensUsed = ex.TokensUsed
		rec.CostCents = ex.CostCents
	}
	if recErr := o.ledger.Record(ctx, estimate, rec); recErr != nil {
		log.Warn("cost record failed", zap.String("provider", p.Name()), zap.Error(recErr))
	}
	if err != nil {
		return nil, err
	}

	// The structural rules dominate the score; the adapter's own estimate
	// still counts, so a hesitant model cannot hide behind clean fields.
	ex.Confidence = confidenceWeightStructural*o.validator.Quick(ex.Vehicles) +
		confidenceWeightAdapter*ex.Confidence
	if ex.Confidence < o.cfg.ConfidenceThreshold {
		return nil, apperr.Extraction("confidence below threshold", nil)
	}
	return ex, nil
}

// invokeWithRetry calls the provider through its limiter and breaker,
// retrying categorized-retryable failures. Timeouts back off linearly (the
// deadline already scaled with document size); provider and extraction
// errors back off exponentially.
func (o *Orchestrator) invokeWithRetry(ctx context.Context, p provider.Adapter, req Request, log *zap.Logger) (*provider.Extraction, error) {
	maxAttempts := o.cfg.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	breaker := o.breakers.Get(p.Name())

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := o.limiter(p.Name()).Wait(ctx); err != nil {
			return nil, apperr.Timeout("rate limiter wait cancelled", err)
		}

		ex, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (*provider.Extraction, error) {
			callCtx, cancel := context.WithTimeout(ctx, o.timeout(len(req.Content)))
			defer cancel()
			return p.Extract(callCtx, req.Content, req.Options)
		})
		if err == nil {
			return ex, nil
		}

		lastErr = categorize(err, p.Name())
		if !apperr.Retryable(lastErr) || attempt == maxAttempts-1 {
			break
		}

		cfg := resilience.DefaultRetryConfig()
		if apperr.TypeOf(lastErr) == apperr.TypeTimeout {
			cfg.Strategy = resilience.BackoffLinear
		}
		delay := resilience.Backoff(attempt, cfg)
		log.Debug("retrying provider",
			zap.String("provider", p.Name()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay))
		if err := o.sleep(ctx, delay); err != nil {
			return nil, apperr.Timeout("retry wait cancelled", err)
		}
	}
	return nil, lastErr
}

// categorize maps raw provider failures onto the error taxonomy.
func categorize(err error, providerName string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Timeout(providerName+" timed out", err)
	case errors.Is(err, resilience.ErrCircuitOpen):
		return apperr.Provider(providerName+" circuit open", err, true)
	case resilience.IsTransient(err):
		return apperr.Provider(providerName+" transient failure", err, true)
	default:
		return apperr.Extraction(providerName+" extraction failed", err)
	}
}

// timeout scales the per-call deadline with document size.
func (o *Orchestrator) timeout(contentLen int) time.Duration {
	base := time.Duration(o.cfg.BaseTimeoutSecs) * time.Second
	if base <= 0 {
		base = 60 * time.Second
	}
	per10KB := time.Duration(o.cfg.TimeoutSecsPer10KB) * time.Second
	return base + per10KB*time.Duration(contentLen/10240)
}

func (o *Orchestrator) limiter(providerName string) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	lim, ok := o.limiters[providerName]
	if !ok {
		perMin := o.cfg.ProviderRatePerMin
		if perMin <= 0 {
			perMin = 20
		}
		lim = rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin)
		o.limiters[providerName] = lim
	}
	return lim
}

// BreakerStates exposes circuit state per provider for the status surfaces.
func (o *Orchestrator) BreakerStates() map[string]resilience.CircuitState {
	return o.breakers.States()
}
