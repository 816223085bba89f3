package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"crm_backend/internal/analytics/transport"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary  = "Summary"
	sheetStages   = "Stages"
	sheetOutcomes = "Outcomes"
)

type metricRow struct {
	name  string
	value any
}

func summaryRows(d transport.Dashboard) []metricRow {
	since := "all time"
	if d.Since != nil {
		since = d.Since.Format(time.RFC3339)
	}
	return []metricRow{
		{"Period", d.Period},
		{"Since", since},
		{"Generated at", d.GeneratedAt.Format(time.RFC3339)},
		{"Leads", d.Leads.Total},
		{"Converted leads", d.Leads.Converted},
		{"Conversion rate (%)", d.Leads.ConversionRate},
		{"Activities", d.Activities.Total},
		{"Successful activities", d.Activities.Successful},
		{"Activity effectiveness (%)", d.Activities.Effectiveness},
		{"Expected revenue", d.Revenue.Expected},
		{"Document views", d.DocumentEngagement.Views},
		{"Document engagement rate (%)", d.DocumentEngagement.Rate},
	}
}

func sortedOutcomes(byOutcome map[string]int) []string {
	keys := make([]string, 0, len(byOutcome))
	for k := range byOutcome {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExportDashboardXLSX renders the dashboard as a workbook with a summary
// sheet plus stage and outcome breakdowns.
func ExportDashboardXLSX(d transport.Dashboard) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetStages, sheetOutcomes} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	rows := [][]any{{"Metric", "Value"}}
	for _, r := range summaryRows(d) {
		rows = append(rows, []any{r.name, r.value})
	}
	if err := writeSheet(f, sheetSummary, rows, headerStyle); err != nil {
		return nil, err
	}

	rows = [][]any{{"Stage", "Average hours", "Samples"}}
	for _, s := range d.StageDurations {
		rows = append(rows, []any{s.Stage, s.AvgHours, s.Samples})
	}
	if err := writeSheet(f, sheetStages, rows, headerStyle); err != nil {
		return nil, err
	}

	rows = [][]any{{"Outcome", "Count"}}
	for _, k := range sortedOutcomes(d.Activities.ByOutcome) {
		rows = append(rows, []any{k, d.Activities.ByOutcome[k]})
	}
	if err := writeSheet(f, sheetOutcomes, rows, headerStyle); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	return f.SetColWidth(sheet, "A", "A", 32)
}

// ExportDashboardCSV writes the summary metrics and the outcome breakdown as
// metric,value lines.
func ExportDashboardCSV(d transport.Dashboard) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	records := [][]string{{"metric", "value"}}
	for _, r := range summaryRows(d) {
		records = append(records, []string{r.name, fmt.Sprint(r.value)})
	}
	for _, s := range d.StageDurations {
		records = append(records, []string{"Average hours in " + s.Stage, strconv.FormatFloat(s.AvgHours, 'f', 2, 64)})
	}
	for _, k := range sortedOutcomes(d.Activities.ByOutcome) {
		records = append(records, []string{"Outcome " + k, strconv.Itoa(d.Activities.ByOutcome[k])})
	}

	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}
