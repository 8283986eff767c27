package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

func testSession() *model.Session {
	return &model.Session{
		ID:           "sess-1",
		DealerID:     "dealer-1",
		DocumentName: "toyota-2025.txt",
		Status:       model.SessionPending,
		CreatedAt:    time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2025, 6, 15, 10, 31, 0, 0, time.UTC),
	}
}

func testChanges() []model.ChangeRecord {
	return []model.ChangeRecord{
		{
			ID:     "ch-1",
			Type:   model.ChangeCreate,
			Status: model.ChangePending,
			Extracted: &model.ExtractedVehicle{
				Make: "Toyota", Model: "Aygo X", Variant: "Active",
				Transmission: model.TransmissionManual,
				Pricing:      []model.PricingOption{{MonthlyPaymentCents: 269900, AnnualKilometers: 15000}},
			},
		},
		{
			ID:        "ch-2",
			Type:      model.ChangeUpdate,
			Status:    model.ChangePending,
			ListingID: "lst-1",
			Extracted: &model.ExtractedVehicle{
				Make: "Toyota", Model: "Yaris", Variant: "Style",
				Pricing: []model.PricingOption{{MonthlyPaymentCents: 319900, AnnualKilometers: 15000}},
			},
			Changes: map[string]model.FieldChange{
				"monthly_price_cents": {Old: int64(299900), New: int64(319900)},
				"colour":              {Old: "Sort", New: "Hvid"},
			},
		},
		{
			ID:        "ch-3",
			Type:      model.ChangeDelete,
			Status:    model.ChangeFailed,
			ListingID: "lst-2",
			Error:     "listing not found",
		},
	}
}

func sheetStrings(t *testing.T, sheet *xlsx.Sheet) [][]string {
	t.Helper()
	var rows [][]string
	for _, row := range sheet.Rows {
		var cells []string
		for _, c := range row.Cells {
			cells = append(cells, c.String())
		}
		rows = append(rows, cells)
	}
	return rows
}

func TestBuildSheetsPerChangeType(t *testing.T) {
	f, err := Build(testSession(), testChanges())
	require.NoError(t, err)

	names := make([]string, 0, len(f.Sheets))
	for _, s := range f.Sheets {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Summary", "Creates", "Updates", "Deletes"}, names)
}

func TestBuildSummarySheet(t *testing.T) {
	f, err := Build(testSession(), testChanges())
	require.NoError(t, err)

	rows := sheetStrings(t, f.Sheet["Summary"])
	require.GreaterOrEqual(t, len(rows), 6)
	assert.Equal(t, summaryHeader, rows[0])
	assert.Equal(t, []string{"sess-1", "dealer-1", "toyota-2025.txt", "pending", "2025-06-15 10:30", "2025-06-15 10:31"}, rows[1])
	assert.Equal(t, []string{"Creates", "1"}, rows[3])
	assert.Equal(t, []string{"Updates", "1"}, rows[4])
	assert.Equal(t, []string{"Deletes", "1"}, rows[5])
}

func TestBuildChangeRows(t *testing.T) {
	f, err := Build(testSession(), testChanges())
	require.NoError(t, err)

	creates := sheetStrings(t, f.Sheet["Creates"])
	require.Len(t, creates, 2)
	assert.Equal(t, changeHeader, creates[0])
	assert.Equal(t, []string{"CREATE", "pending", "Toyota", "Aygo X", "Active", "manual", "2699", "", "", ""}, creates[1])

	updates := sheetStrings(t, f.Sheet["Updates"])
	require.Len(t, updates, 2)
	// Prices come out in whole kroner, fields alphabetically.
	assert.Equal(t, "colour: Sort -> Hvid; monthly_price_cents: 2999 -> 3199", updates[1][8])
	assert.Equal(t, "lst-1", updates[1][7])

	deletes := sheetStrings(t, f.Sheet["Deletes"])
	require.Len(t, deletes, 2)
	assert.Equal(t, "failed", deletes[1][1])
	assert.Equal(t, "listing not found", deletes[1][9])
}

func TestBuildSkipsEmptyChangeTypes(t *testing.T) {
	changes := testChanges()[:1]
	f, err := Build(testSession(), changes)
	require.NoError(t, err)

	assert.Len(t, f.Sheets, 2)
	assert.Nil(t, f.Sheet["Updates"])
	assert.Nil(t, f.Sheet["Deletes"])
}

func TestWriteSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.xlsx")
	require.NoError(t, WriteSession(path, testSession(), testChanges()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.NotNil(t, f.Sheet["Summary"])
	rows := sheetStrings(t, f.Sheet["Creates"])
	require.Len(t, rows, 2)
	assert.Equal(t, "Toyota", rows[1][2])
}
