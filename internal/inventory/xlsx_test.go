package inventory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

func createListingsXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Listings")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "listings.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

var listingsHeader = []string{"make", "model", "variant", "transmission", "year", "monthly_price", "first_payment", "annual_km"}

func TestReadListingsXLSX(t *testing.T) {
	path := createListingsXLSX(t, [][]string{
		listingsHeader,
		{"Toyota", "Aygo X", "Active", "manual", "2025", "2.699", "4.999", "15000"},
		{"Toyota", "Yaris", "Style", "automatic", "2025", "3.199", "4.999", "20000"},
	})

	listings, err := ReadListingsXLSX(path, "dealer-1")
	require.NoError(t, err)
	require.Len(t, listings, 2)

	l := listings[0]
	assert.Equal(t, "dealer-1", l.DealerID)
	assert.Equal(t, "Toyota", l.Make)
	assert.Equal(t, "Aygo X", l.Model)
	assert.Equal(t, model.TransmissionManual, l.Transmission)
	assert.Equal(t, 2025, l.Year)
	assert.Equal(t, int64(269900), l.MonthlyPriceCents)
	require.Len(t, l.PricingTiers, 1)
	assert.Equal(t, int64(499900), l.PricingTiers[0].FirstPaymentCents)
	assert.Equal(t, 15000, l.PricingTiers[0].AnnualKilometers)
}

func TestReadListingsXLSXFoldsTiers(t *testing.T) {
	path := createListingsXLSX(t, [][]string{
		listingsHeader,
		{"Toyota", "Yaris", "Style", "automatic", "2025", "3.199", "4.999", "15000"},
		{"Toyota", "Yaris", "Style", "automatic", "2025", "3.399", "4.999", "20000"},
		{"Toyota", "Yaris", "Style", "manual", "2025", "2.999", "4.999", "15000"},
	})

	listings, err := ReadListingsXLSX(path, "dealer-1")
	require.NoError(t, err)
	require.Len(t, listings, 2)

	require.Len(t, listings[0].PricingTiers, 2)
	assert.Equal(t, 20000, listings[0].PricingTiers[1].AnnualKilometers)
	assert.Equal(t, int64(339900), listings[0].PricingTiers[1].MonthlyPaymentCents)
	// The manual variant starts a new listing.
	assert.Equal(t, model.TransmissionManual, listings[1].Transmission)
}

func TestReadListingsXLSXSkipsBlankRows(t *testing.T) {
	path := createListingsXLSX(t, [][]string{
		listingsHeader,
		{"Toyota", "Aygo X", "Active", "manual", "2025", "2699", "", ""},
		{"", "", "", "", "", "", "", ""},
		{"Toyota", "Yaris", "Style", "manual", "2025", "2999", "", ""},
	})

	listings, err := ReadListingsXLSX(path, "dealer-1")
	require.NoError(t, err)
	assert.Len(t, listings, 2)
	// Defaulted tier kilometers.
	assert.Equal(t, 15000, listings[0].PricingTiers[0].AnnualKilometers)
}

func TestReadListingsXLSXErrors(t *testing.T) {
	t.Run("missing required column", func(t *testing.T) {
		path := createListingsXLSX(t, [][]string{
			{"make", "model", "variant"},
			{"Toyota", "Aygo X", "Active"},
		})
		_, err := ReadListingsXLSX(path, "dealer-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "monthly_price")
	})

	t.Run("bad amount", func(t *testing.T) {
		path := createListingsXLSX(t, [][]string{
			listingsHeader,
			{"Toyota", "Aygo X", "Active", "manual", "2025", "tbd", "", ""},
		})
		_, err := ReadListingsXLSX(path, "dealer-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row 2")
	})

	t.Run("no data rows", func(t *testing.T) {
		path := createListingsXLSX(t, [][]string{listingsHeader})
		_, err := ReadListingsXLSX(path, "dealer-1")
		require.Error(t, err)
	})
}
