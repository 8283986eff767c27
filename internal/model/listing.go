package model

import "time"

// Listing is a row of current inventory for one dealer. Pricing tiers are
// dependent rows owned by the listing; they are loaded alongside it but never
// point back at it.
type Listing struct {
	ID           string       `json:"id"`
	DealerID     string       `json:"dealer_id"`
	Make         string       `json:"make"`
	Model        string       `json:"model"`
	Variant      string       `json:"variant"`
	Transmission Transmission `json:"transmission,omitempty"`
	Year         int          `json:"year,omitempty"`
	Colour       string       `json:"colour,omitempty"`

	MonthlyPriceCents int64 `json:"monthly_price_cents"`
	RetailPriceCents  int64 `json:"retail_price_cents,omitempty"`

	PricingTiers []PricingTier `json:"pricing_tiers,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PricingTier is a dependent pricing row of a listing (one per mileage tier).
type PricingTier struct {
	ID                  string `json:"id"`
	ListingID           string `json:"listing_id"`
	MonthlyPaymentCents int64  `json:"monthly_payment_cents"`
	FirstPaymentCents   int64  `json:"first_payment_cents"`
	AnnualKilometers    int    `json:"annual_kilometers"`
	LeaseMonths         int    `json:"lease_months,omitempty"`
}

// DealerConfig holds per-dealer matching behavior.
type DealerConfig struct {
	DealerID string `json:"dealer_id"`
	// TransmissionInKey controls whether transmission participates in the
	// matching identity. When false, two transmission variants of the same
	// base variant resolve to a single listing.
	TransmissionInKey bool `json:"transmission_in_key"`
}
