package inventory

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

// listingColumns maps workbook headers (lowercased) onto listing fields.
// Monetary columns hold whole kroner and are stored as øre.
var listingColumns = map[string]bool{
	"make": true, "model": true, "variant": true, "transmission": true,
	"year": true, "colour": true, "monthly_price": true, "retail_price": true,
	"annual_km": true, "first_payment": true, "lease_months": true,
}

// ReadListingsXLSX parses a dealer listings workbook. The first row names
// the columns; make, model, variant and monthly_price are required.
// Consecutive rows that repeat make, model, variant and transmission fold
// into pricing tiers of one listing.
func ReadListingsXLSX(path, dealerID string) ([]model.Listing, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "inventory: open workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("inventory: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.New("inventory: workbook has no data rows")
	}

	idx, err := headerIndex(sheet.Rows[0])
	if err != nil {
		return nil, err
	}

	var listings []model.Listing
	for rowNum, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		if blankRow(cells) {
			continue
		}
		l, tier, err := parseListingRow(cells, idx, dealerID)
		if err != nil {
			return nil, eris.Wrapf(err, "inventory: row %d", rowNum+2)
		}

		if n := len(listings); n > 0 && sameIdentity(listings[n-1], l) {
			listings[n-1].PricingTiers = append(listings[n-1].PricingTiers, tier)
			continue
		}
		l.PricingTiers = []model.PricingTier{tier}
		listings = append(listings, l)
	}
	if len(listings) == 0 {
		return nil, eris.New("inventory: workbook has no data rows")
	}
	return listings, nil
}

func headerIndex(row *xlsx.Row) (map[string]int, error) {
	idx := make(map[string]int)
	for j, cell := range row.Cells {
		name := strings.ToLower(strings.TrimSpace(cell.String()))
		if listingColumns[name] {
			idx[name] = j
		}
	}
	for _, required := range []string{"make", "model", "variant", "monthly_price"} {
		if _, ok := idx[required]; !ok {
			return nil, eris.Errorf("inventory: missing column %q", required)
		}
	}
	return idx, nil
}

func parseListingRow(cells []string, idx map[string]int, dealerID string) (model.Listing, model.PricingTier, error) {
	get := func(col string) string {
		j, ok := idx[col]
		if !ok || j >= len(cells) {
			return ""
		}
		return strings.TrimSpace(cells[j])
	}

	l := model.Listing{
		DealerID:     dealerID,
		Make:         get("make"),
		Model:        get("model"),
		Variant:      get("variant"),
		Transmission: model.Transmission(strings.ToLower(get("transmission"))),
		Colour:       get("colour"),
	}
	if l.Make == "" || l.Model == "" || l.Variant == "" {
		return l, model.PricingTier{}, eris.New("make, model and variant are required")
	}

	var err error
	if l.Year, err = intColumn(get("year"), 0); err != nil {
		return l, model.PricingTier{}, eris.Wrap(err, "year")
	}
	if l.MonthlyPriceCents, err = kronerColumn(get("monthly_price")); err != nil {
		return l, model.PricingTier{}, eris.Wrap(err, "monthly_price")
	}
	if l.MonthlyPriceCents == 0 {
		return l, model.PricingTier{}, eris.New("monthly_price is required")
	}
	if l.RetailPriceCents, err = kronerColumn(get("retail_price")); err != nil {
		return l, model.PricingTier{}, eris.Wrap(err, "retail_price")
	}

	tier := model.PricingTier{MonthlyPaymentCents: l.MonthlyPriceCents}
	if tier.AnnualKilometers, err = intColumn(get("annual_km"), 15000); err != nil {
		return l, model.PricingTier{}, eris.Wrap(err, "annual_km")
	}
	if tier.FirstPaymentCents, err = kronerColumn(get("first_payment")); err != nil {
		return l, model.PricingTier{}, eris.Wrap(err, "first_payment")
	}
	if tier.LeaseMonths, err = intColumn(get("lease_months"), 0); err != nil {
		return l, model.PricingTier{}, eris.Wrap(err, "lease_months")
	}
	return l, tier, nil
}

// sameIdentity reports whether two rows describe the same listing and only
// differ in pricing.
func sameIdentity(a, b model.Listing) bool {
	return a.Make == b.Make && a.Model == b.Model &&
		a.Variant == b.Variant && a.Transmission == b.Transmission
}

func intColumn(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(s, ".", ""))
	if err != nil {
		return 0, eris.Errorf("not a number: %q", s)
	}
	return n, nil
}

// kronerColumn parses a whole-kroner amount, tolerating Danish thousands
// separators, and returns øre.
func kronerColumn(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.TrimSuffix(strings.TrimSpace(s), ",-")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, eris.Errorf("not an amount: %q", s)
	}
	return n * 100, nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
