package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Hennedk/leasingborsen-sub012/internal/apperr"
	"github.com/Hennedk/leasingborsen-sub012/internal/applier"
	"github.com/Hennedk/leasingborsen-sub012/internal/comparator"
	"github.com/Hennedk/leasingborsen-sub012/internal/db"
	"github.com/Hennedk/leasingborsen-sub012/internal/extractor"
	"github.com/Hennedk/leasingborsen-sub012/internal/inventory"
	"github.com/Hennedk/leasingborsen-sub012/internal/ledger"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
	"github.com/Hennedk/leasingborsen-sub012/internal/provider"
	"github.com/Hennedk/leasingborsen-sub012/internal/validator"
	anthropicpkg "github.com/Hennedk/leasingborsen-sub012/pkg/anthropic"
	mistralpkg "github.com/Hennedk/leasingborsen-sub012/pkg/mistral"
)

// env bundles the wired pipeline components for a command invocation.
type env struct {
	Store        *inventory.Store
	Ledger       ledger.Ledger
	Registry     *provider.Registry
	Orchestrator *extractor.Orchestrator
	Validator    *validator.Validator
	Comparator   *comparator.Comparator
	Applier      *applier.Applier

	closers []func()
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func initEnv(ctx context.Context) (*env, error) {
	e := &env{}

	pool, err := db.NewPool(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	if err != nil {
		return nil, eris.Wrap(err, "connect database")
	}
	e.Store = inventory.NewWithClose(pool, pool.Close)
	e.closers = append(e.closers, pool.Close)

	if err := e.Store.Migrate(ctx); err != nil {
		e.Close()
		return nil, eris.Wrap(err, "migrate inventory")
	}

	led, err := initLedger(ctx, e, pool)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Ledger = led

	val, err := validator.New(cfg.Validation)
	if err != nil {
		e.Close()
		return nil, eris.Wrap(err, "init validator")
	}

	e.Registry = initProviders()
	e.Validator = val
	e.Orchestrator = extractor.New(e.Registry, e.Ledger, val, cfg.Extraction)
	e.Comparator = comparator.New(cfg.Match)
	e.Applier = applier.New(e.Store)
	return e, nil
}

func initLedger(ctx context.Context, e *env, pool db.Pool) (ledger.Ledger, error) {
	limits := ledger.Limits{
		PerDocumentCents:  cfg.Budget.PerDocumentCents,
		DailyLimitCents:   cfg.Budget.DailyLimitCents,
		MonthlyLimitCents: cfg.Budget.MonthlyLimitCents,
	}

	switch cfg.Store.LedgerDriver {
	case "sqlite":
		path := cfg.Store.LedgerPath
		if path == "" {
			path = "ledger.db"
		}
		led, err := ledger.NewSQLite(path, limits)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite ledger")
		}
		e.closers = append(e.closers, func() { _ = led.Close() })
		if err := led.Migrate(ctx); err != nil {
			return nil, eris.Wrap(err, "migrate sqlite ledger")
		}
		return led, nil
	case "postgres", "":
		led := ledger.NewPostgres(pool, limits)
		if err := led.Migrate(ctx); err != nil {
			return nil, eris.Wrap(err, "migrate postgres ledger")
		}
		return led, nil
	default:
		return nil, eris.Errorf("unsupported ledger driver: %s", cfg.Store.LedgerDriver)
	}
}

// initProviders registers the configured adapters. Registration order is
// fallback precedence; the offline mock always comes last.
func initProviders() *provider.Registry {
	reg := provider.NewRegistry()

	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		reg.Register(provider.NewAnthropicAdapter(client, cfg.Anthropic.Model, cfg.Anthropic.CostPerKTokensCents))
	}
	if cfg.Mistral.Key != "" {
		var opts []mistralpkg.Option
		if cfg.Mistral.BaseURL != "" {
			opts = append(opts, mistralpkg.WithBaseURL(cfg.Mistral.BaseURL))
		}
		client := mistralpkg.NewClient(cfg.Mistral.Key, opts...)
		reg.Register(provider.NewMistralAdapter(client, cfg.Mistral.Model, cfg.Mistral.CostPerKTokensCents))
	}
	reg.Register(provider.NewMockAdapter(0))
	return reg
}

// reconcileOutcome is the result of one document run: the extraction
// telemetry, the persisted session, and the proposed change set.
type reconcileOutcome struct {
	Extraction *model.ExtractionResult `json:"extraction"`
	Session    *model.Session          `json:"session,omitempty"`
	Rejections []validator.Rejection   `json:"rejections,omitempty"`
	Creates    int                     `json:"creates"`
	Updates    int                     `json:"updates"`
	Deletes    int                     `json:"deletes"`
	Unchanged  int                     `json:"unchanged"`
}

// reconcile runs extract, validate, compare and persist for one document. A
// failed extraction returns the telemetry-bearing outcome plus an error;
// nothing is persisted in that case. Records that fail the full validation
// pass are held out of the comparison and reported on the outcome; a batch
// with no surviving records blocks entirely so a bad extraction can never
// cascade into deletions.
func reconcile(ctx context.Context, e *env, dealerID, documentName, content, strategy string) (*reconcileOutcome, error) {
	res := e.Orchestrator.Extract(ctx, extractor.Request{
		Content:      content,
		DealerID:     dealerID,
		DocumentName: documentName,
		Strategy:     strategy,
	})
	out := &reconcileOutcome{Extraction: res}
	if res.Error != nil {
		return out, eris.New(res.Error.Message)
	}

	if issues := e.Validator.ValidateDocument(res.Document); len(issues) > 0 {
		return out, apperr.Validation("document rejected: " + issues[0].Message)
	}
	accepted, rejected := e.Validator.Partition(res.Vehicles)
	out.Rejections = rejected
	if len(rejected) > 0 {
		zap.L().Warn("records failed validation",
			zap.String("dealer_id", dealerID),
			zap.Int("rejected", len(rejected)),
			zap.Int("accepted", len(accepted)),
		)
	}
	if len(accepted) == 0 {
		return out, apperr.Validation("no extracted records passed validation")
	}

	dealer, err := e.Store.DealerConfig(ctx, dealerID)
	if err != nil {
		return out, eris.Wrap(err, "load dealer config")
	}
	existing, err := e.Store.ListingsByDealer(ctx, dealerID)
	if err != nil {
		return out, eris.Wrap(err, "load listings")
	}

	summary := e.Comparator.Compare(accepted, existing, dealer)
	out.Creates = summary.Creates()
	out.Updates = summary.Updates()
	out.Deletes = summary.Deletes()
	out.Unchanged = summary.Unchanged

	session, err := e.Store.CreateSession(ctx, dealerID, documentName, res.Metadata.CorrelationID)
	if err != nil {
		return out, eris.Wrap(err, "create session")
	}
	out.Session = session

	if err := e.Store.SaveChanges(ctx, session.ID, summary.Changes); err != nil {
		return out, eris.Wrap(err, "save changes")
	}

	zap.L().Info("reconciliation complete",
		zap.String("session_id", session.ID),
		zap.String("dealer_id", dealerID),
		zap.Int("creates", out.Creates),
		zap.Int("updates", out.Updates),
		zap.Int("deletes", out.Deletes),
		zap.Int("unchanged", out.Unchanged),
	)
	return out, nil
}
