// Package provider defines the uniform interface to external extraction
// capabilities and the adapters implementing it.
package provider

import (
	"context"
	"sync"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

// Options carries per-call hints for an extraction.
type Options struct {
	DealerHint   string
	Language     string
	DocumentKind model.DocumentKind
}

// Extraction is the raw adapter output before orchestrator telemetry is
// attached.
type Extraction struct {
	Vehicles     []model.ExtractedVehicle
	Document     model.DocumentInfo
	ModelVersion string
	TokensUsed   int64
	CostCents    int64
	Confidence   float64
	Warnings     []string
}

// Adapter is one named external extraction capability. Availability
// (configuration present) and authentication (credentials valid) are
// reported independently so the orchestrator can tell "not configured"
// from "misconfigured".
type Adapter interface {
	// Name returns the provider identifier used in strategies, logs, and
	// cost records.
	Name() string
	// Available reports whether the adapter is configured at all.
	Available() bool
	// Authenticated reports whether the configured credentials look valid.
	Authenticated(ctx context.Context) bool
	// CostPerKTokensCents is the blended rate in minor currency units per
	// thousand tokens, used for pre-flight cost estimation.
	CostPerKTokensCents() int64
	// Extract runs one extraction over plain document text.
	Extract(ctx context.Context, content string, opts Options) (*Extraction, error)
}

// Registry manages the configured adapters in registration order. Order
// matters: the all_providers strategy walks it as-is, so registration order
// is the documented precedence.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter to the registry. Re-registering a name replaces
// the adapter but keeps its original position.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[a.Name()]; !ok {
		r.order = append(r.order, a.Name())
	}
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name, or nil if not found.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// List returns all registered adapters in registration order.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}
