package export

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"taxfiler/internal/models"
)

const (
	form16Sheet      = "Form16"
	suggestionsSheet = "Suggestions"
	defaultSheet     = "Sheet1"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Filename is the attachment name used for a filing export.
func Filename(filing *models.TaxFiling) string {
	return fmt.Sprintf("form16-%s.xlsx", filing.FinancialYear)
}

// FilingWorkbook renders a filing as XLSX: extracted fields on "Form16",
// one row per suggestion on "Suggestions".
func FilingWorkbook(filing *models.TaxFiling) ([]byte, error) {
	if filing == nil {
		return nil, errors.New("filing is required")
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet, form16Sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	fields := filing.Fields
	rows := [][]any{
		{"Field", "Value"},
		{"Financial Year", filing.FinancialYear},
		{"Status", string(filing.Status)},
		{"Employee Name", fields.EmployeeName},
		{"PAN", fields.PAN},
		{"Employer Name", fields.EmployerName},
		{"Gross Salary", fields.GrossSalary},
		{"Basic Salary", fields.BasicSalary},
		{"HRA", fields.HRA},
		{"Special Allowance", fields.SpecialAllowance},
		{"Deductions 80C", fields.Deductions80C},
		{"Deductions 80D", fields.Deductions80D},
		{"Standard Deduction", fields.StandardDeduction},
		{"TDS Deducted", fields.TDSDeducted},
		{"Tax Payable", fields.TaxPayable},
	}
	if err := writeRows(f, form16Sheet, rows); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(form16Sheet, "A", "A", 22)
	_ = f.SetColWidth(form16Sheet, "B", "B", 32)

	if _, err := f.NewSheet(suggestionsSheet); err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	rows = [][]any{{"Section", "Title", "Description", "Recommended Amount", "Potential Saving", "Category"}}
	for _, s := range filing.TaxSuggestions {
		rows = append(rows, []any{s.Section, s.Title, s.Description, s.RecommendedAmount, s.PotentialSaving, s.Category})
	}
	if err := writeRows(f, suggestionsSheet, rows); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(suggestionsSheet, "A", "B", 18)
	_ = f.SetColWidth(suggestionsSheet, "C", "C", 60)
	_ = f.SetColWidth(suggestionsSheet, "D", "F", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
