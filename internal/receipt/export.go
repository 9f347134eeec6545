package receipt

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Expenses"

// exportRow is one line of an expense export
type exportRow struct {
	Date        string `csv:"Date"`
	Description string `csv:"Description"`
	Category    string `csv:"Category"`
	Amount      string `csv:"Amount"`
}

var exportHeaders = []string{"Date", "Description", "Category", "Amount"}

func exportRows(expenses []*Expense) []*exportRow {
	rows := make([]*exportRow, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, &exportRow{
			Date:        e.Date,
			Description: e.Description,
			Category:    string(e.Category),
			Amount:      e.Amount.StringFixed(2),
		})
	}
	return rows
}

// WriteExpensesCSV writes an owner's expenses as CSV with a header row
func (s *Service) WriteExpensesCSV(w io.Writer, ownerID string) error {
	expenses, err := s.ListExpenses(ownerID)
	if err != nil {
		return err
	}

	rows := exportRows(expenses)
	csvWriter := gocsv.NewSafeCSVWriter(csv.NewWriter(w))
	if len(rows) == 0 {
		// Header only for an empty export
		if err := csvWriter.Write(exportHeaders); err != nil {
			return fmt.Errorf("writing csv header: %w", err)
		}
		csvWriter.Flush()
		return csvWriter.Error()
	}

	if err := gocsv.MarshalCSV(rows, csvWriter); err != nil {
		return fmt.Errorf("writing csv data: %w", err)
	}
	return nil
}

// WriteExpensesXLSX writes an owner's expenses as a single-sheet workbook
func (s *Service) WriteExpensesXLSX(w io.Writer, ownerID string) error {
	expenses, err := s.ListExpenses(ownerID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range expenses {
		row := i + 2
		amount, _ := e.Amount.Round(2).Float64()
		values := []any{e.Date, e.Description, string(e.Category), amount}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return fmt.Errorf("writing row %d: %w", row, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
