package analytics

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"trade-journal/internal/models"
)

// sheetNames maps timeframes to workbook sheets, in sheet order.
var sheetNames = []struct {
	tf   Timeframe
	name string
}{
	{Daily, "Daily"},
	{Weekly, "Weekly"},
	{Monthly, "Monthly"},
}

// ExportXLSX writes agg as a workbook with one sheet per timeframe. Each
// sheet has a header row of column names followed by one row per bucket in
// key order.
func ExportXLSX(w io.Writer, agg Aggregation) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheetNames {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", s.name, err)
		}

		if err := writeSheet(f, s.name, Sorted(agg.Buckets(s.tf))); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows []models.AggregatedData) error {
	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = string(c)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}

	for r, row := range rows {
		values := make([]interface{}, len(Columns))
		for i, c := range Columns {
			n, s, _ := c.Value(row)
			if c == ColDate {
				values[i] = s
			} else {
				values[i] = n
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, r+2, err)
		}
	}
	return nil
}
