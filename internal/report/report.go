// Package report renders a session's change set as an xlsx workbook for
// human review before apply.
package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

var changeHeader = []string{
	"Type", "Status", "Make", "Model", "Variant", "Transmission",
	"Monthly (kr)", "Listing ID", "Changed fields", "Error",
}

var summaryHeader = []string{"Session", "Dealer", "Document", "Status", "Created", "Updated"}

// WriteSession writes the workbook to path: a summary sheet followed by one
// sheet per change type that has records.
func WriteSession(path string, session *model.Session, changes []model.ChangeRecord) error {
	f, err := Build(session, changes)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "report: save workbook")
	}
	return nil
}

// Build assembles the workbook in memory.
func Build(session *model.Session, changes []model.ChangeRecord) (*xlsx.File, error) {
	f := xlsx.NewFile()

	if err := addSummarySheet(f, session, changes); err != nil {
		return nil, err
	}

	byType := map[model.ChangeType][]model.ChangeRecord{}
	for _, ch := range changes {
		byType[ch.Type] = append(byType[ch.Type], ch)
	}
	for _, ct := range []model.ChangeType{model.ChangeCreate, model.ChangeUpdate, model.ChangeDelete} {
		recs := byType[ct]
		if len(recs) == 0 {
			continue
		}
		if err := addChangeSheet(f, sheetName(ct), recs); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func sheetName(ct model.ChangeType) string {
	switch ct {
	case model.ChangeCreate:
		return "Creates"
	case model.ChangeUpdate:
		return "Updates"
	case model.ChangeDelete:
		return "Deletes"
	default:
		return string(ct)
	}
}

func addSummarySheet(f *xlsx.File, session *model.Session, changes []model.ChangeRecord) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	writeRow(sheet, summaryHeader)
	writeRow(sheet, []string{
		session.ID,
		session.DealerID,
		session.DocumentName,
		string(session.Status),
		session.CreatedAt.Format("2006-01-02 15:04"),
		session.UpdatedAt.Format("2006-01-02 15:04"),
	})

	counts := map[model.ChangeType]int{}
	for _, ch := range changes {
		counts[ch.Type]++
	}
	writeRow(sheet, nil)
	writeRow(sheet, []string{"Creates", strconv.Itoa(counts[model.ChangeCreate])})
	writeRow(sheet, []string{"Updates", strconv.Itoa(counts[model.ChangeUpdate])})
	writeRow(sheet, []string{"Deletes", strconv.Itoa(counts[model.ChangeDelete])})
	return nil
}

func addChangeSheet(f *xlsx.File, name string, recs []model.ChangeRecord) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrap(err, "report: add sheet "+name)
	}
	writeRow(sheet, changeHeader)
	for _, ch := range recs {
		writeRow(sheet, changeRow(ch))
	}
	return nil
}

func changeRow(ch model.ChangeRecord) []string {
	var mk, mdl, variant, transmission, monthly string
	if ch.Extracted != nil {
		mk = ch.Extracted.Make
		mdl = ch.Extracted.Model
		variant = ch.Extracted.Variant
		transmission = string(ch.Extracted.Transmission)
		if cents := ch.Extracted.MonthlyPaymentCents(); cents > 0 {
			monthly = formatKroner(cents)
		}
	}
	return []string{
		string(ch.Type),
		string(ch.Status),
		mk,
		mdl,
		variant,
		transmission,
		monthly,
		ch.ListingID,
		changedFields(ch.Changes),
		ch.Error,
	}
}

// changedFields renders the UPDATE diff as "field: old -> new" pairs in
// stable order.
func changedFields(changes map[string]model.FieldChange) string {
	if len(changes) == 0 {
		return ""
	}
	fields := make([]string, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		fc := changes[f]
		parts = append(parts, fmt.Sprintf("%s: %v -> %v", f, formatValue(f, fc.Old), formatValue(f, fc.New)))
	}
	return strings.Join(parts, "; ")
}

func formatValue(field string, v any) string {
	if strings.HasSuffix(field, "_cents") {
		if cents, ok := asCents(v); ok {
			return formatKroner(cents)
		}
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func formatKroner(cents int64) string {
	return strconv.FormatInt(cents/100, 10)
}

func asCents(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func writeRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}
