package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

// maxPromptChars bounds the document text we send to a model. Price lists
// rarely exceed this once OCR'd; truncation keeps latency and spend bounded.
const maxPromptChars = 32000

const systemPrompt = "You are an expert at extracting structured data from car leasing price lists. " +
	"Documents are usually Danish. Always return valid JSON and nothing else."

// BuildPrompt assembles the extraction prompt for a document. The schema and
// instruction set mirror what the production pipeline has converged on for
// Danish dealer price lists.
func BuildPrompt(content string, opts Options) string {
	if len(content) > maxPromptChars {
		content = content[:maxPromptChars]
	}

	var b strings.Builder
	b.WriteString("Extract all car leasing offers from this document.\n\n")
	if opts.DealerHint != "" {
		fmt.Fprintf(&b, "The document is from the dealer %q.\n", opts.DealerHint)
	}
	if opts.DocumentKind != model.DocumentKindUnknown {
		fmt.Fprintf(&b, "The document kind is %q.\n", opts.DocumentKind)
	}
	b.WriteString("\nDOCUMENT TEXT:\n")
	b.WriteString(content)
	b.WriteString(`

Return a JSON object with this EXACT structure:

{
  "document_info": {
    "brand": "Toyota",
    "document_date": "2025-01-01",
    "currency": "DKK",
    "language": "da",
    "document_type": "private_leasing"
  },
  "vehicles": [
    {
      "model": "Model Name",
      "powertrain_type": "gasoline",
      "lease_period_months": 36,
      "variants": [
        {
          "variant_name": "Active",
          "engine_specification": "1.0 benzin 72 hk",
          "transmission": "manual",
          "pricing": [
            {
              "monthly_payment": 2699,
              "first_payment": 4999,
              "annual_kilometers": 15000,
              "co2_tax_biannual": 590
            }
          ],
          "specifications": {
            "fuel_consumption_kmpl": 20.83,
            "co2_emissions_gkm": 110,
            "energy_label": "A++",
            "electric_range_km": null,
            "battery_capacity_kwh": null,
            "power_hp": 72,
            "zero_to_hundred_secs": 14.9
          }
        }
      ]
    }
  ]
}

EXTRACTION INSTRUCTIONS:
1. Find ALL vehicle models and ALL their variants.
2. Convert Danish numbers: "2.699" means 2699, "102.163" means 102163.
3. Powertrain mapping: "benzin" = gasoline, "diesel" = diesel, "Hybrid" = hybrid, "elbil" or battery kWh present = electric.
4. One pricing entry per annual-kilometer tier when the document lists several.
5. Amounts are whole kroner; keep them as integers.
6. Transmission is "manual" or "automatic"; markers like "Automatik" or "aut." mean automatic.
7. Omit fields you cannot find; never invent values.

Return ONLY the JSON object.`)
	return b.String()
}

// wire types match the JSON schema in the prompt.

type wireDocument struct {
	DocumentInfo wireDocumentInfo `json:"document_info"`
	Vehicles     []wireVehicle    `json:"vehicles"`
}

type wireDocumentInfo struct {
	Brand        string `json:"brand"`
	DocumentDate string `json:"document_date"`
	Currency     string `json:"currency"`
	Language     string `json:"language"`
	DocumentType string `json:"document_type"`
}

type wireVehicle struct {
	Model             string        `json:"model"`
	PowertrainType    string        `json:"powertrain_type"`
	LeasePeriodMonths int           `json:"lease_period_months"`
	Year              int           `json:"year"`
	Variants          []wireVariant `json:"variants"`
}

type wireVariant struct {
	VariantName         string        `json:"variant_name"`
	EngineSpecification string        `json:"engine_specification"`
	Transmission        string        `json:"transmission"`
	Colour              string        `json:"colour"`
	Pricing             []wirePricing `json:"pricing"`
	Specifications      *wireSpecs    `json:"specifications"`
}

type wirePricing struct {
	MonthlyPayment   int64 `json:"monthly_payment"`
	FirstPayment     int64 `json:"first_payment"`
	AnnualKilometers int   `json:"annual_kilometers"`
	CO2TaxBiannual   int64 `json:"co2_tax_biannual"`
}

type wireSpecs struct {
	FuelConsumptionKmpl *float64 `json:"fuel_consumption_kmpl"`
	CO2EmissionsGkm     *float64 `json:"co2_emissions_gkm"`
	EnergyLabel         string   `json:"energy_label"`
	ElectricRangeKm     *float64 `json:"electric_range_km"`
	BatteryCapacityKwh  *float64 `json:"battery_capacity_kwh"`
	PowerHP             *float64 `json:"power_hp"`
	ZeroToHundredSecs   *float64 `json:"zero_to_hundred_secs"`
}

// ParseResponse decodes a model response into vehicles and document info.
// It tolerates markdown fencing and leading prose around the JSON object.
func ParseResponse(raw string) ([]model.ExtractedVehicle, model.DocumentInfo, []string, error) {
	jsonText := extractJSONObject(raw)
	if jsonText == "" {
		return nil, model.DocumentInfo{}, nil, eris.New("provider: no JSON object in response")
	}

	var doc wireDocument
	if err := json.Unmarshal([]byte(jsonText), &doc); err != nil {
		return nil, model.DocumentInfo{}, nil, eris.Wrap(err, "provider: decode response")
	}

	info := model.DocumentInfo{
		Brand:        doc.DocumentInfo.Brand,
		Currency:     doc.DocumentInfo.Currency,
		Language:     doc.DocumentInfo.Language,
		DocumentKind: model.DocumentKind(doc.DocumentInfo.DocumentType),
		DocumentDate: doc.DocumentInfo.DocumentDate,
	}
	if info.Currency == "" {
		info.Currency = "DKK"
	}

	var warnings []string
	var out []model.ExtractedVehicle
	for _, v := range doc.Vehicles {
		for _, variant := range v.Variants {
			ev := model.ExtractedVehicle{
				Make:         info.Brand,
				Model:        v.Model,
				Variant:      variant.VariantName,
				EngineSpec:   variant.EngineSpecification,
				Transmission: parseTransmission(variant.Transmission),
				Powertrain:   parsePowertrain(v.PowertrainType),
				Year:         v.Year,
				Colour:       variant.Colour,
				LeaseMonths:  v.LeasePeriodMonths,
			}
			for _, p := range variant.Pricing {
				ev.Pricing = append(ev.Pricing, model.PricingOption{
					// Wire amounts are whole kroner.
					MonthlyPaymentCents: p.MonthlyPayment * 100,
					FirstPaymentCents:   p.FirstPayment * 100,
					AnnualKilometers:    p.AnnualKilometers,
					CO2TaxBiannualCents: p.CO2TaxBiannual * 100,
				})
			}
			if len(ev.Pricing) == 0 {
				warnings = append(warnings, fmt.Sprintf("variant %q of %s has no pricing", variant.VariantName, v.Model))
			}
			if s := variant.Specifications; s != nil {
				ev.Specifications = &model.Specifications{
					FuelConsumptionKmpl: s.FuelConsumptionKmpl,
					CO2EmissionsGkm:     s.CO2EmissionsGkm,
					BatteryCapacityKwh:  s.BatteryCapacityKwh,
					ElectricRangeKm:     s.ElectricRangeKm,
					PowerHP:             s.PowerHP,
					ZeroToHundredSecs:   s.ZeroToHundredSecs,
					EnergyLabel:         s.EnergyLabel,
				}
				if ev.Powertrain == "" && s.BatteryCapacityKwh != nil {
					ev.Powertrain = model.PowertrainElectric
				}
			}
			out = append(out, ev)
		}
	}

	return out, info, warnings, nil
}

// extractJSONObject returns the outermost {...} block of raw, or "".
func extractJSONObject(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "```"); i >= 0 {
		raw = strings.ReplaceAll(raw, "```json", "")
		raw = strings.ReplaceAll(raw, "```", "")
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func parseTransmission(s string) model.Transmission {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "automatic", "automatik", "aut", "aut.":
		return model.TransmissionAutomatic
	case "manual", "manuel":
		return model.TransmissionManual
	default:
		return model.TransmissionUnknown
	}
}

func parsePowertrain(s string) model.Powertrain {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gasoline", "petrol", "benzin":
		return model.PowertrainGasoline
	case "diesel":
		return model.PowertrainDiesel
	case "hybrid", "plugin_hybrid", "plug-in hybrid":
		return model.PowertrainHybrid
	case "electric", "el", "elbil", "bev":
		return model.PowertrainElectric
	default:
		return ""
	}
}
