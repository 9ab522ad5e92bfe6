package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"invoicer/internal/logger"
	"invoicer/pkg/models"
)

// XLSXSheetName is the worksheet holding exported invoices.
const XLSXSheetName = "Invoices"

// XLSXContentType is the media type of the workbook.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var columnWidths = map[string]float64{
	"A": 28, // file name
	"B": 18, // number
	"C": 12, // date
	"D": 30, // vendor
	"E": 16, // tax id
	"F": 10, // currency
	"L": 60, // line items
	"M": 20, // created
}

// WriteXLSX writes a workbook with one header row and one row per invoice.
func WriteXLSX(w io.Writer, invoices []models.Invoice) error {
	const op = "WriteXLSX"
	log := logger.WithComponent("export")

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", XLSXSheetName); err != nil {
		return fmt.Errorf("%s: rename sheet: %w", op, err)
	}

	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(XLSXSheetName, "A1", &header); err != nil {
		return fmt.Errorf("%s: write header: %w", op, err)
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E6E6E6"}},
	})
	if err != nil {
		return fmt.Errorf("%s: header style: %w", op, err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(Headers))
	if err := f.SetCellStyle(XLSXSheetName, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("%s: apply header style: %w", op, err)
	}

	for i, inv := range invoices {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := NewRow(inv).Values()
		if err := f.SetSheetRow(XLSXSheetName, cell, &values); err != nil {
			return fmt.Errorf("%s: write row %d: %w", op, i+2, err)
		}
	}

	for col, width := range columnWidths {
		_ = f.SetColWidth(XLSXSheetName, col, col, width)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("%s: write workbook: %w", op, err)
	}

	log.Info().Int("rows", len(invoices)).Msg("Exported invoices to XLSX")
	return nil
}
