// Package model defines the domain types shared across the reconciliation pipeline.
package model

import "time"

// Transmission identifies the gearbox kind of a variant.
type Transmission string

const (
	TransmissionManual    Transmission = "manual"
	TransmissionAutomatic Transmission = "automatic"
	TransmissionUnknown   Transmission = ""
)

// Powertrain identifies the drive technology of a vehicle.
type Powertrain string

const (
	PowertrainGasoline Powertrain = "gasoline"
	PowertrainDiesel   Powertrain = "diesel"
	PowertrainHybrid   Powertrain = "hybrid"
	PowertrainElectric Powertrain = "electric"
)

// PricingOption is one pricing tuple for a variant. A variant usually carries
// one option per annual-kilometer tier. Monetary amounts are in minor currency
// units (øre for DKK documents).
type PricingOption struct {
	MonthlyPaymentCents int64 `json:"monthly_payment_cents"`
	FirstPaymentCents   int64 `json:"first_payment_cents"`
	AnnualKilometers    int   `json:"annual_kilometers"`
	CO2TaxBiannualCents int64 `json:"co2_tax_biannual_cents"`
}

// Specifications holds optional technical data for a variant.
type Specifications struct {
	FuelConsumptionKmpl *float64 `json:"fuel_consumption_kmpl,omitempty"`
	CO2EmissionsGkm     *float64 `json:"co2_emissions_gkm,omitempty"`
	BatteryCapacityKwh  *float64 `json:"battery_capacity_kwh,omitempty"`
	ElectricRangeKm     *float64 `json:"electric_range_km,omitempty"`
	PowerHP             *float64 `json:"power_hp,omitempty"`
	ZeroToHundredSecs   *float64 `json:"zero_to_hundred_secs,omitempty"`
	EnergyLabel         string   `json:"energy_label,omitempty"`
}

// ExtractedVehicle is one offer variant parsed out of a price-list document.
// Immutable once produced by the orchestrator.
type ExtractedVehicle struct {
	Make           string          `json:"make"`
	Model          string          `json:"model"`
	Variant        string          `json:"variant"`
	EngineSpec     string          `json:"engine_spec"`
	Transmission   Transmission    `json:"transmission,omitempty"`
	Powertrain     Powertrain      `json:"powertrain,omitempty"`
	Year           int             `json:"year,omitempty"`
	Colour         string          `json:"colour,omitempty"`
	LeaseMonths    int             `json:"lease_months,omitempty"`
	Pricing        []PricingOption `json:"pricing"`
	Specifications *Specifications `json:"specifications,omitempty"`
}

// MonthlyPaymentCents returns the cheapest monthly payment across pricing
// options, or 0 when no pricing was extracted.
func (v ExtractedVehicle) MonthlyPaymentCents() int64 {
	var min int64
	for _, p := range v.Pricing {
		if min == 0 || (p.MonthlyPaymentCents > 0 && p.MonthlyPaymentCents < min) {
			min = p.MonthlyPaymentCents
		}
	}
	return min
}

// IsElectric reports whether the vehicle is battery electric.
func (v ExtractedVehicle) IsElectric() bool {
	return v.Powertrain == PowertrainElectric
}

// DocumentKind classifies a dealer price-list document.
type DocumentKind string

const (
	DocumentKindPrivateLeasing  DocumentKind = "private_leasing"
	DocumentKindBusinessLeasing DocumentKind = "business_leasing"
	DocumentKindUnknown         DocumentKind = ""
)

// DocumentInfo describes the document an extraction came from.
type DocumentInfo struct {
	Brand        string       `json:"brand"`
	Currency     string       `json:"currency"`
	Language     string       `json:"language"`
	DocumentKind DocumentKind `json:"document_kind"`
	DocumentDate string       `json:"document_date,omitempty"`
}

// ExtractionMetadata is the telemetry attached to every orchestrator call.
type ExtractionMetadata struct {
	CorrelationID      string        `json:"correlation_id"`
	Provider           string        `json:"provider"`
	ModelVersion       string        `json:"model_version,omitempty"`
	TokensUsed         int64         `json:"tokens_used"`
	CostCents          int64         `json:"cost_cents"`
	Duration           time.Duration `json:"duration_ns"`
	Confidence         float64       `json:"confidence"`
	Warnings           []string      `json:"warnings,omitempty"`
	AttemptedProviders []string      `json:"attempted_providers,omitempty"`
}

// ExtractionResult wraps one orchestrator invocation. Either Vehicles is
// populated or Error carries the categorized failure; Metadata is always set.
// Read-only after creation.
type ExtractionResult struct {
	Vehicles []ExtractedVehicle `json:"vehicles"`
	Document DocumentInfo       `json:"document"`
	Metadata ExtractionMetadata `json:"metadata"`
	Error    *ResultError       `json:"error,omitempty"`
}

// ResultError is the boundary-safe form of a categorized error.
type ResultError struct {
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	UserMessage string    `json:"user_message"`
	Retryable   bool      `json:"retryable"`
	Timestamp   time.Time `json:"timestamp"`
}

// OK reports whether the result carries usable data.
func (r *ExtractionResult) OK() bool {
	return r != nil && r.Error == nil && len(r.Vehicles) > 0
}
