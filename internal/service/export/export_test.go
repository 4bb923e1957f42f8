package export

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"taxfiler/internal/models"
)

func TestFilingWorkbook(t *testing.T) {
	filing := &models.TaxFiling{
		FinancialYear: "2025-26",
		Status:        models.FilingCompleted,
		Fields:        models.Form16Fields{EmployeeName: "Asha Rao", PAN: "ABCDE1234F", GrossSalary: 1200000},
		TaxSuggestions: []models.TaxSuggestion{
			{Section: "80C", Title: "ELSS", RecommendedAmount: 50000, PotentialSaving: 15600, Category: "investment"},
			{Section: "80D", Title: "Health cover", PotentialSaving: 7800, Category: "insurance"},
		},
	}
	data, err := FilingWorkbook(filing)
	if err != nil {
		t.Fatalf("FilingWorkbook: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Form16" || sheets[1] != "Suggestions" {
		t.Fatalf("unexpected sheets %v", sheets)
	}
	if v, _ := f.GetCellValue("Form16", "B5"); v != "ABCDE1234F" {
		t.Fatalf("unexpected PAN cell %q", v)
	}
	if v, _ := f.GetCellValue("Form16", "B7"); v != "1200000" {
		t.Fatalf("unexpected gross salary cell %q", v)
	}
	rows, err := f.GetRows("Suggestions")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 || rows[1][0] != "80C" || rows[2][1] != "Health cover" {
		t.Fatalf("unexpected suggestion rows %v", rows)
	}
	if Filename(filing) != "form16-2025-26.xlsx" {
		t.Fatalf("unexpected filename %s", Filename(filing))
	}
}

func TestFilingWorkbookWithoutSuggestions(t *testing.T) {
	data, err := FilingWorkbook(&models.TaxFiling{FinancialYear: "2025-26", Status: models.FilingDraft})
	if err != nil {
		t.Fatalf("FilingWorkbook: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows("Suggestions")
	if len(rows) != 1 {
		t.Fatalf("expected header row only, got %v", rows)
	}
	if _, err := FilingWorkbook(nil); err == nil {
		t.Fatalf("expected error for nil filing")
	}
}
