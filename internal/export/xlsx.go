package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/lox/snowseason/internal/season"
)

const seasonsSheet = "Seasons"

// WriteXLSX writes flattened records to a workbook with a frozen header row.
// Numbers stay numeric and nulls stay blank.
func WriteXLSX(path string, rows [][]season.Field) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", seasonsSheet); err != nil {
		return fmt.Errorf("xlsx: rename sheet: %w", err)
	}
	if len(rows) > 0 {
		header := make([]any, len(rows[0]))
		for i, fl := range rows[0] {
			header[i] = fl.Key
		}
		if err := f.SetSheetRow(seasonsSheet, "A1", &header); err != nil {
			return fmt.Errorf("xlsx: header: %w", err)
		}

		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("xlsx: style: %w", err)
		}
		if err := f.SetRowStyle(seasonsSheet, 1, 1, bold); err != nil {
			return fmt.Errorf("xlsx: header style: %w", err)
		}
		if err := f.SetPanes(seasonsSheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("xlsx: freeze header: %w", err)
		}
	}

	for r, row := range rows {
		if len(rows) > 0 && len(row) != len(rows[0]) {
			return fmt.Errorf("xlsx: season %v: %d fields, want %d", row[0].Value, len(row), len(rows[0]))
		}
		cells := make([]any, len(row))
		for i, fl := range row {
			cells[i] = fl.Value
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(seasonsSheet, cell, &cells); err != nil {
			return fmt.Errorf("xlsx: row %d: %w", r+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", path, err)
	}
	return nil
}
