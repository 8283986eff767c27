// Package validator scores extracted offers against the plausibility rules
// of the Danish leasing market before they reach comparison.
package validator

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/Hennedk/leasingborsen-sub012/internal/config"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

//go:embed brands.yaml
var brandsYAML []byte

// Severity grades a validation issue. Errors invalidate the record;
// warnings only lower confidence.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding against one field of one record.
type Issue struct {
	Severity Severity `json:"severity"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
}

// Result is the validation outcome for a single record.
type Result struct {
	Valid      bool    `json:"valid"`
	Confidence float64 `json:"confidence"`
	Issues     []Issue `json:"issues,omitempty"`
}

// Confidence penalties per issue class. Missing required data weighs far
// more than an implausible spec sheet value.
const (
	penaltyRequired    = 0.25
	penaltyPricing     = 0.20
	penaltyConsistency = 0.15
	penaltyWarning     = 0.05
)

// Validator applies the configured bounds to extracted records.
type Validator struct {
	cfg    config.ValidationConfig
	brands map[string]struct{}
}

// New builds a validator from the configured bounds and the embedded
// brand list.
func New(cfg config.ValidationConfig) (*Validator, error) {
	var doc struct {
		Brands []string `yaml:"brands"`
	}
	if err := yaml.Unmarshal(brandsYAML, &doc); err != nil {
		return nil, eris.Wrap(err, "validator: parse brand list")
	}

	brands := make(map[string]struct{}, len(doc.Brands))
	for _, b := range doc.Brands {
		brands[strings.ToLower(b)] = struct{}{}
	}
	return &Validator{cfg: cfg, brands: brands}, nil
}

// Validate scores one record. The record itself is never mutated.
func (v *Validator) Validate(ev model.ExtractedVehicle) Result {
	var issues []Issue
	issues = append(issues, v.requiredFields(ev)...)
	issues = append(issues, v.pricingRules(ev)...)
	issues = append(issues, v.powertrainConsistency(ev)...)
	issues = append(issues, v.specPlausibility(ev)...)
	issues = append(issues, v.brandKnown(ev)...)

	return score(issues)
}

// ValidateAll scores a batch and returns the mean confidence alongside the
// per-record results.
func (v *Validator) ValidateAll(evs []model.ExtractedVehicle) ([]Result, float64) {
	if len(evs) == 0 {
		return nil, 0
	}
	results := make([]Result, len(evs))
	var total float64
	for i, ev := range evs {
		results[i] = v.Validate(ev)
		total += results[i].Confidence
	}
	return results, total / float64(len(evs))
}

// Rejection pairs a record that failed the full pass with its result.
type Rejection struct {
	Vehicle model.ExtractedVehicle `json:"vehicle"`
	Result  Result                 `json:"result"`
}

// Partition runs the full pass over a batch and splits it into the records
// fit for comparison and the rejects. A record is rejected on any blocking
// error or when its confidence falls below the configured threshold.
func (v *Validator) Partition(evs []model.ExtractedVehicle) ([]model.ExtractedVehicle, []Rejection) {
	var accepted []model.ExtractedVehicle
	var rejected []Rejection
	for _, ev := range evs {
		r := v.Validate(ev)
		if !r.Valid || r.Confidence < v.cfg.ConfidenceThreshold {
			rejected = append(rejected, Rejection{Vehicle: ev, Result: r})
			continue
		}
		accepted = append(accepted, ev)
	}
	return accepted, rejected
}

// ValidateDocument checks document-level required fields.
func (v *Validator) ValidateDocument(info model.DocumentInfo) []Issue {
	var issues []Issue
	if strings.TrimSpace(info.Brand) == "" {
		issues = append(issues, Issue{SeverityError, "document.brand", "document brand is required"})
	}
	return issues
}

// Quick is the cheap confidence signal the orchestrator uses to decide
// whether a provider result is worth keeping. Only the required-field and
// consistency classes run; pricing bounds and soft rules wait for the
// full pass.
func (v *Validator) Quick(evs []model.ExtractedVehicle) float64 {
	if len(evs) == 0 {
		return 0
	}
	var total float64
	for _, ev := range evs {
		var issues []Issue
		issues = append(issues, v.requiredFields(ev)...)
		issues = append(issues, v.powertrainConsistency(ev)...)
		issues = append(issues, v.specPlausibility(ev)...)
		total += score(issues).Confidence
	}
	return total / float64(len(evs))
}

func score(issues []Issue) Result {
	r := Result{Valid: true, Confidence: 1.0, Issues: issues}
	for _, is := range issues {
		switch {
		case is.Severity == SeverityWarning:
			r.Confidence -= penaltyWarning
		case strings.HasPrefix(is.Field, "pricing["):
			r.Valid = false
			r.Confidence -= penaltyPricing
		case is.Field == "powertrain" || strings.HasPrefix(is.Field, "spec."):
			r.Valid = false
			r.Confidence -= penaltyConsistency
		default:
			r.Valid = false
			r.Confidence -= penaltyRequired
		}
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	return r
}

func (v *Validator) requiredFields(ev model.ExtractedVehicle) []Issue {
	var issues []Issue
	for field, val := range map[string]string{
		"make":    ev.Make,
		"model":   ev.Model,
		"variant": ev.Variant,
	} {
		if strings.TrimSpace(val) == "" {
			issues = append(issues, Issue{SeverityError, field, field + " is required"})
		}
	}
	if len(ev.Pricing) == 0 {
		issues = append(issues, Issue{SeverityError, "pricing", "at least one pricing option is required"})
	}
	if strings.TrimSpace(ev.EngineSpec) == "" && ev.Powertrain == "" {
		issues = append(issues, Issue{SeverityError, "engine_spec", "engine or powertrain descriptor is required"})
	}
	return issues
}

func (v *Validator) pricingRules(ev model.ExtractedVehicle) []Issue {
	var issues []Issue
	for i, p := range ev.Pricing {
		field := fmt.Sprintf("pricing[%d]", i)
		if p.MonthlyPaymentCents < v.cfg.MonthlyMinCents || p.MonthlyPaymentCents > v.cfg.MonthlyMaxCents {
			issues = append(issues, Issue{SeverityError, field + ".monthly_payment",
				fmt.Sprintf("monthly payment %d outside [%d, %d]", p.MonthlyPaymentCents, v.cfg.MonthlyMinCents, v.cfg.MonthlyMaxCents)})
		}
		if p.AnnualKilometers != 0 && (p.AnnualKilometers < v.cfg.AnnualKmMin || p.AnnualKilometers > v.cfg.AnnualKmMax) {
			issues = append(issues, Issue{SeverityError, field + ".annual_kilometers",
				fmt.Sprintf("annual kilometers %d outside [%d, %d]", p.AnnualKilometers, v.cfg.AnnualKmMin, v.cfg.AnnualKmMax)})
		}
		if p.FirstPaymentCents < 0 {
			issues = append(issues, Issue{SeverityError, field + ".first_payment", "first payment is negative"})
		}
		if p.CO2TaxBiannualCents < 0 || p.CO2TaxBiannualCents > v.cfg.CO2TaxCeilingCents {
			issues = append(issues, Issue{SeverityError, field + ".co2_tax_biannual",
				fmt.Sprintf("CO2 tax %d outside [0, %d]", p.CO2TaxBiannualCents, v.cfg.CO2TaxCeilingCents)})
		}
	}
	return issues
}

func (v *Validator) powertrainConsistency(ev model.ExtractedVehicle) []Issue {
	s := ev.Specifications
	if ev.IsElectric() {
		var issues []Issue
		if s == nil || s.BatteryCapacityKwh == nil || *s.BatteryCapacityKwh <= 0 {
			issues = append(issues, Issue{SeverityError, "powertrain", "electric vehicle missing battery capacity"})
		}
		if s == nil || s.ElectricRangeKm == nil || *s.ElectricRangeKm <= 0 {
			issues = append(issues, Issue{SeverityError, "powertrain", "electric vehicle missing electric range"})
		}
		if s != nil && s.FuelConsumptionKmpl != nil && *s.FuelConsumptionKmpl > 0 {
			issues = append(issues, Issue{SeverityError, "powertrain", "electric vehicle reports fuel consumption"})
		}
		if s != nil && s.CO2EmissionsGkm != nil && *s.CO2EmissionsGkm > 0 {
			issues = append(issues, Issue{SeverityError, "powertrain", "electric vehicle reports CO2 emissions"})
		}
		return issues
	}

	if s == nil {
		return nil
	}
	var issues []Issue
	if ev.Powertrain != "" && ev.Powertrain != model.PowertrainHybrid {
		if s.BatteryCapacityKwh != nil && *s.BatteryCapacityKwh > 0 {
			issues = append(issues, Issue{SeverityError, "powertrain",
				fmt.Sprintf("%s vehicle reports battery capacity", ev.Powertrain)})
		}
	}
	return issues
}

// specPlausibility checks spec sheet values against combustion-plausible
// bounds. These block alongside the powertrain rules.
func (v *Validator) specPlausibility(ev model.ExtractedVehicle) []Issue {
	s := ev.Specifications
	if s == nil {
		return nil
	}
	var issues []Issue
	check := func(name string, val *float64, min, max float64) {
		if val != nil && (*val < min || *val > max) {
			issues = append(issues, Issue{SeverityError, "spec." + name,
				fmt.Sprintf("%s %.1f outside plausible range [%.1f, %.1f]", name, *val, min, max)})
		}
	}
	check("fuel_consumption_kmpl", s.FuelConsumptionKmpl, v.cfg.ConsumptionMinKmpl, v.cfg.ConsumptionMaxKmpl)
	check("co2_emissions_gkm", s.CO2EmissionsGkm, 0, v.cfg.EmissionsMaxGkm)
	check("power_hp", s.PowerHP, v.cfg.PowerMinHP, v.cfg.PowerMaxHP)
	check("zero_to_hundred_secs", s.ZeroToHundredSecs, v.cfg.AccelerationMinSecs, v.cfg.AccelerationMaxSecs)
	return issues
}

func (v *Validator) brandKnown(ev model.ExtractedVehicle) []Issue {
	if ev.Make == "" {
		return nil
	}
	if _, ok := v.brands[strings.ToLower(ev.Make)]; !ok {
		return []Issue{{SeverityWarning, "make", fmt.Sprintf("unrecognized make %q", ev.Make)}}
	}
	return nil
}
