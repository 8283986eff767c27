package provider

import (
	"context"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

// MockAdapter is a deterministic offline provider for development and tests.
// It never touches the network; results depend only on the document text, so
// repeated runs over the same document reconcile to zero changes.
type MockAdapter struct {
	costPerKCents int64
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewMockAdapter creates the offline provider.
func NewMockAdapter(costPerKCents int64) *MockAdapter {
	return &MockAdapter{
		costPerKCents: costPerKCents,
		sleep:         sleepCtx,
	}
}

func (m *MockAdapter) Name() string { return "mock" }

func (m *MockAdapter) Available() bool { return true }

func (m *MockAdapter) Authenticated(ctx context.Context) bool { return true }

func (m *MockAdapter) CostPerKTokensCents() int64 { return m.costPerKCents }

// knownBrands is the lookup set for the line scanner. Matches the brands the
// Danish leasing market actually lists.
var knownBrands = []string{
	"Toyota", "Volkswagen", "VW", "Skoda", "Škoda", "Hyundai", "Kia",
	"Peugeot", "Citroën", "Citroen", "Renault", "Ford", "Opel", "Nissan",
	"Mazda", "Suzuki", "Dacia", "Fiat", "Seat", "Cupra", "BMW", "Audi",
	"Mercedes", "Volvo", "Tesla", "Polestar", "BYD", "MG", "Honda",
}

// priceLine matches "2.699 kr./md" style offers with a Danish-formatted
// amount in whole kroner.
var priceLine = regexp.MustCompile(`(\d{1,3}(?:\.\d{3})*)\s*kr\.?\s*/?\s*(?:md|mdr?|måned)`)

func (m *MockAdapter) Extract(ctx context.Context, content string, opts Options) (*Extraction, error) {
	// Simulated model latency, pinned by content so runs are reproducible.
	if err := m.sleep(ctx, mockLatency(content)); err != nil {
		return nil, err
	}

	vehicles, brand := scanDocument(content, opts)

	var warnings []string
	if len(vehicles) == 0 {
		warnings = append(warnings, "no offers recognized in document")
	}

	tokens := int64(len(content) / 4)
	return &Extraction{
		Vehicles: vehicles,
		Document: model.DocumentInfo{
			Brand:        brand,
			Currency:     "DKK",
			Language:     "da",
			DocumentKind: opts.DocumentKind,
		},
		ModelVersion: "mock-1",
		TokensUsed:   tokens,
		CostCents:    tokensToCents(tokens, m.costPerKCents),
		Confidence:   baseConfidence(vehicles, warnings),
		Warnings:     warnings,
	}, nil
}

// mockLatency maps the document to a stable duration in [500ms, 2s).
func mockLatency(content string) time.Duration {
	h := fnv.New32a()
	h.Write([]byte(content))
	return 500*time.Millisecond + time.Duration(h.Sum32()%1500)*time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// scanDocument walks the document line by line. A line naming a known brand
// sets the current make and model; a line with a monthly price emits an
// offer for the most recent make and model.
func scanDocument(content string, opts Options) ([]model.ExtractedVehicle, string) {
	var (
		out      []model.ExtractedVehicle
		brand    string
		curMake  string
		curModel string
	)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if mk, rest := matchBrand(line); mk != "" {
			curMake = mk
			curModel = strings.TrimSpace(rest)
			if brand == "" {
				brand = mk
			}
			continue
		}

		match := priceLine.FindStringSubmatch(line)
		if match == nil || curMake == "" {
			continue
		}

		monthly := parseDanishInt(match[1])
		variant := strings.TrimSpace(line[:strings.Index(line, match[0])])
		ev := model.ExtractedVehicle{
			Make:         curMake,
			Model:        curModel,
			Variant:      variant,
			Transmission: guessTransmission(line + " " + variant),
			Powertrain:   guessPowertrain(line + " " + variant),
			Pricing: []model.PricingOption{{
				MonthlyPaymentCents: monthly * 100,
				AnnualKilometers:    15000,
			}},
		}
		if ev.Powertrain == model.PowertrainElectric {
			battery, rng := 60.0, 400.0
			ev.Specifications = &model.Specifications{
				BatteryCapacityKwh: &battery,
				ElectricRangeKm:    &rng,
			}
		}
		out = append(out, ev)
	}

	if brand == "" {
		brand = opts.DealerHint
	}
	return out, brand
}

// matchBrand returns the brand a line starts with and the rest of the line.
func matchBrand(line string) (string, string) {
	for _, b := range knownBrands {
		if strings.HasPrefix(line, b+" ") || line == b {
			return b, strings.TrimPrefix(line, b)
		}
	}
	return "", ""
}

// parseDanishInt converts "2.699" to 2699.
func parseDanishInt(s string) int64 {
	n, _ := strconv.ParseInt(strings.ReplaceAll(s, ".", ""), 10, 64)
	return n
}

func guessTransmission(s string) model.Transmission {
	l := strings.ToLower(s)
	if strings.Contains(l, "automatik") || strings.Contains(l, "automatgear") || strings.Contains(l, " aut.") {
		return model.TransmissionAutomatic
	}
	return model.TransmissionUnknown
}

func guessPowertrain(s string) model.Powertrain {
	l := strings.ToLower(s)
	switch {
	case strings.Contains(l, "kwh") || strings.Contains(l, "elbil") || strings.Contains(l, " el "):
		return model.PowertrainElectric
	case strings.Contains(l, "hybrid"):
		return model.PowertrainHybrid
	case strings.Contains(l, "diesel"):
		return model.PowertrainDiesel
	case strings.Contains(l, "benzin"):
		return model.PowertrainGasoline
	default:
		return ""
	}
}
