// internal/report/excel.go
package report

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var excelHeaders = []interface{}{
	"Scenario", "Driver", "Status", "Fault", "Locator", "Attempts", "Duration (ms)", "Message", "Started At",
}

// ExcelWriter writes results to one worksheet with a styled, filterable header.
type ExcelWriter struct {
	path  string
	sheet string
}

// NewExcelWriter creates a writer for path. The workbook is saved by Write.
func NewExcelWriter(path, sheet string) (*ExcelWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("Excel file path is required")
	}
	if sheet == "" {
		sheet = "Results"
	}
	return &ExcelWriter{path: path, sheet: sheet}, nil
}

// Write builds the workbook and saves it
func (w *ExcelWriter) Write(_ context.Context, results []Result) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", w.sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := file.SetSheetRow(w.sheet, "A1", &excelHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(excelHeaders))
	if err := file.SetCellStyle(w.sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to style headers: %w", err)
	}

	failStyle, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Color: "C00000", Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create status style: %w", err)
	}

	for i, r := range results {
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []interface{}{
			r.Scenario, r.Driver, r.Status(), r.Fault, r.Locator, r.Attempts,
			r.Duration.Milliseconds(), r.Message, r.StartedAt.UTC().Format("2006-01-02 15:04:05"),
		}
		if err := file.SetSheetRow(w.sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		if !r.Passed {
			status, _ := excelize.CoordinatesToCellName(3, row)
			if err := file.SetCellStyle(w.sheet, status, status, failStyle); err != nil {
				return fmt.Errorf("failed to style row %d: %w", row, err)
			}
		}
	}

	lastRow := len(results) + 1
	if err := file.AutoFilter(w.sheet, fmt.Sprintf("A1:%s%d", lastCol, lastRow), nil); err != nil {
		return fmt.Errorf("failed to add auto filter: %w", err)
	}
	if err := file.SetPanes(w.sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}
	if err := file.SetColWidth(w.sheet, "A", "A", 22); err != nil {
		return err
	}
	if err := file.SetColWidth(w.sheet, "E", "E", 40); err != nil {
		return err
	}
	if err := file.SetColWidth(w.sheet, "H", "H", 60); err != nil {
		return err
	}

	return file.SaveAs(w.path)
}

// Close is a no-op; Write saves the workbook.
func (w *ExcelWriter) Close() error {
	return nil
}
