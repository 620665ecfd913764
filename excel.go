package kmlsummary

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the spreadsheet report.
const (
	CountsSheet  = "Feature Counts"
	LengthsSheet = "LineString Lengths"
)

// WriteExcel writes the summary as an .xlsx workbook with one sheet per
// non-empty table. It returns ErrNothingToExport when both tables are empty.
func WriteExcel(w io.Writer, s *Summary) error {
	if s.Empty() {
		return ErrNothingToExport
	}

	f := excelize.NewFile()
	defer f.Close()
	defaultSheet := f.GetSheetName(0)

	var rows [][]interface{}
	if counts := CountRows(s); len(counts) > 0 {
		rows = [][]interface{}{{"Feature", "Count"}}
		for _, row := range counts {
			rows = append(rows, []interface{}{row.Feature, row.Count})
		}
		if err := writeSheet(f, CountsSheet, rows); err != nil {
			return err
		}
	}

	if lengths := LengthRows(s); len(lengths) > 0 {
		rows = [][]interface{}{{"Feature", "Length (m)", "Length (km)"}}
		for _, row := range lengths {
			rows = append(rows, []interface{}{row.Feature, row.Meters, row.Kilometers()})
		}
		if err := writeSheet(f, LengthsSheet, rows); err != nil {
			return err
		}
	}

	if err := f.DeleteSheet(defaultSheet); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, rows [][]interface{}) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+1, name, err)
		}
	}

	if err := f.SetColWidth(name, "A", "A", 40); err != nil {
		return fmt.Errorf("failed to size sheet %s: %w", name, err)
	}
	return nil
}
