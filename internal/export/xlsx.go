// Package export renders transit search results as spreadsheets.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"astroscope/internal/types"
)

const (
	// ContentTypeXLSX is the media type of Workbook output.
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	transitsSheet = "Transits"
	querySheet    = "Query"
)

var transitHeaders = []any{"Date", "Entered At (UTC)", "Body", "Sign", "Longitude", "Degree In Sign", "Retrograde"}

// Filename returns the attachment name for a search.
func Filename(q types.TransitSearch) string {
	return fmt.Sprintf("transits_%s_%s_%d-%d.xlsx", q.Body, q.Sign, q.StartYear, q.EndYear)
}

// WriteTransits writes a workbook with one row per event body and a sheet
// echoing the query parameters.
func WriteTransits(w io.Writer, q types.TransitSearch, events []types.TransitEvent, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", transitsSheet); err != nil {
		return exportError("failed to name transit sheet", err)
	}
	if err := writeTransitRows(f, events); err != nil {
		return err
	}

	if _, err := f.NewSheet(querySheet); err != nil {
		return exportError("failed to create query sheet", err)
	}
	if err := writeQuery(f, q, len(events), generatedAt); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return exportError("failed to write workbook", err)
	}
	return nil
}

func writeTransitRows(f *excelize.File, events []types.TransitEvent) error {
	if err := f.SetSheetRow(transitsSheet, "A1", &transitHeaders); err != nil {
		return exportError("failed to write header row", err)
	}

	row := 2
	for _, ev := range events {
		entered := ""
		if ev.EnteredAt != nil {
			entered = ev.EnteredAt.UTC().Format("2006-01-02 15:04:05")
		}
		for _, b := range ev.CelestialBodies {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			values := []any{ev.Date, entered, b.Name, b.Sign, b.Longitude, b.DegreeInSign, b.IsRetrograde}
			if err := f.SetSheetRow(transitsSheet, cell, &values); err != nil {
				return exportError("failed to write transit row", err)
			}
			row++
		}
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return exportError("failed to create header style", err)
	}
	if err := f.SetRowStyle(transitsSheet, 1, 1, header); err != nil {
		return exportError("failed to style header row", err)
	}

	if row > 2 {
		degrees := "0.0000"
		numeric, err := f.NewStyle(&excelize.Style{CustomNumFmt: &degrees})
		if err != nil {
			return exportError("failed to create number style", err)
		}
		if err := f.SetCellStyle(transitsSheet, "E2", fmt.Sprintf("F%d", row-1), numeric); err != nil {
			return exportError("failed to style longitude columns", err)
		}
	}

	for i := range transitHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(transitsSheet, col, col, 18)
	}
	if err := f.SetPanes(transitsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return exportError("failed to freeze header row", err)
	}
	return nil
}

func writeQuery(f *excelize.File, q types.TransitSearch, count int, generatedAt time.Time) error {
	rows := [][]any{
		{"Body", q.Body},
		{"Sign", q.Sign},
		{"Start Year", q.StartYear},
		{"End Year", q.EndYear},
		{"Limit", q.Limit},
		{"Events", count},
		{"Generated At (UTC)", generatedAt.UTC().Format(time.RFC3339)},
	}
	for i, r := range rows {
		if err := f.SetSheetRow(querySheet, fmt.Sprintf("A%d", i+1), &r); err != nil {
			return exportError("failed to write query row", err)
		}
	}
	_ = f.SetColWidth(querySheet, "A", "B", 22)
	return nil
}

func exportError(msg string, err error) error {
	return types.NewAppError(types.ErrCodeInternalExport, msg, err)
}
