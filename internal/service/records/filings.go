package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"taxfiler/internal/models"
)

const filingColumns = `id, user_id, financial_year, status, employee_name, pan, employer_name,
	gross_salary, basic_salary, hra, special_allowance, deductions_80c, deductions_80d,
	standard_deduction, tds_deducted, tax_payable, form16_data, extracted_data, tax_suggestions,
	created_at, updated_at`

// ExtractionRecord is what the pipeline commits after a successful extraction.
type ExtractionRecord struct {
	UserID        int64
	UploadID      int64
	FinancialYear string
	Fields        models.Form16Fields
	Raw           json.RawMessage
	Metadata      models.Form16Metadata
}

// CreateFiling inserts a draft filing. A second filing for the same year is rejected.
func (s *Service) CreateFiling(ctx context.Context, userID int64, financialYear string, fields models.Form16Fields) (*models.TaxFiling, error) {
	financialYear = strings.TrimSpace(financialYear)
	if userID <= 0 || financialYear == "" {
		return nil, errors.New("user_id and financialYear are required")
	}
	now := s.now()
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = insertFiling(ctx, tx, userID, financialYear, models.FilingDraft, fields, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetFiling(ctx, userID, id)
}

// GetFiling returns one filing owned by the user.
func (s *Service) GetFiling(ctx context.Context, userID, filingID int64) (*models.TaxFiling, error) {
	return scanFiling(s.db.QueryRowContext(ctx,
		`SELECT `+filingColumns+` FROM tax_filings WHERE id = ? AND user_id = ?`, filingID, userID))
}

// FilingForYear returns the user's filing for a financial year.
func (s *Service) FilingForYear(ctx context.Context, userID int64, financialYear string) (*models.TaxFiling, error) {
	return scanFiling(s.db.QueryRowContext(ctx,
		`SELECT `+filingColumns+` FROM tax_filings WHERE user_id = ? AND financial_year = ?`, userID, financialYear))
}

// ListFilings returns all filings of the user, latest year first.
func (s *Service) ListFilings(ctx context.Context, userID int64) ([]*models.TaxFiling, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+filingColumns+` FROM tax_filings WHERE user_id = ? ORDER BY financial_year DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list filings: %w", err)
	}
	defer rows.Close()
	filings := make([]*models.TaxFiling, 0)
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, err
		}
		filings = append(filings, f)
	}
	return filings, rows.Err()
}

// SaveExtraction creates or overwrites the filing for (user, year) with the extracted
// fields, moves it to processing and advances the upload's job to the suggestion stage.
func (s *Service) SaveExtraction(ctx context.Context, rec ExtractionRecord) (*models.TaxFiling, error) {
	if rec.UserID <= 0 || strings.TrimSpace(rec.FinancialYear) == "" {
		return nil, errors.New("user_id and financial year are required")
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode form16 metadata: %w", err)
	}
	now := s.now()
	var filingID int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT id, status FROM tax_filings WHERE user_id = ? AND financial_year = ?`,
			rec.UserID, rec.FinancialYear,
		).Scan(&filingID, &status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			filingID, err = insertFiling(ctx, tx, rec.UserID, rec.FinancialYear, models.FilingProcessing, rec.Fields, now)
			if err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("lookup filing: %w", err)
		case models.FilingStatus(status) == models.FilingFiled:
			return fmt.Errorf("filing %d already filed: %w", filingID, ErrInvalidTransition)
		default:
			f := rec.Fields
			if _, err := tx.ExecContext(ctx,
				`UPDATE tax_filings SET status = ?, employee_name = ?, pan = ?, employer_name = ?,
				 gross_salary = ?, basic_salary = ?, hra = ?, special_allowance = ?, deductions_80c = ?,
				 deductions_80d = ?, standard_deduction = ?, tds_deducted = ?, tax_payable = ?,
				 tax_suggestions = NULL, updated_at = ?
				 WHERE id = ?`,
				string(models.FilingProcessing), f.EmployeeName, f.PAN, f.EmployerName,
				f.GrossSalary, f.BasicSalary, f.HRA, f.SpecialAllowance, f.Deductions80C,
				f.Deductions80D, f.StandardDeduction, f.TDSDeducted, f.TaxPayable, now, filingID,
			); err != nil {
				return fmt.Errorf("update filing: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tax_filings SET form16_data = ?, extracted_data = ? WHERE id = ?`,
			string(meta), nullableJSON(rec.Raw), filingID,
		); err != nil {
			return fmt.Errorf("store extracted data: %w", err)
		}
		return s.updateJob(ctx, tx, rec.UploadID, models.StageSuggestion, models.JobRunning, "", filingID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetFiling(ctx, rec.UserID, filingID)
}

// SaveSuggestions attaches suggestions, completes the filing and finishes the job.
func (s *Service) SaveSuggestions(ctx context.Context, userID, uploadID, filingID int64, suggestions []models.TaxSuggestion) (*models.TaxFiling, error) {
	if suggestions == nil {
		suggestions = []models.TaxSuggestion{}
	}
	payload, err := json.Marshal(suggestions)
	if err != nil {
		return nil, fmt.Errorf("encode suggestions: %w", err)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tax_filings SET tax_suggestions = ?, status = ?, updated_at = ?
			 WHERE id = ? AND user_id = ? AND status = ?`,
			string(payload), string(models.FilingCompleted), s.now(), filingID, userID, string(models.FilingProcessing),
		)
		if err != nil {
			return fmt.Errorf("store suggestions: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("filing %d not processing: %w", filingID, ErrInvalidTransition)
		}
		return s.updateJob(ctx, tx, uploadID, models.StageDone, models.JobCompleted, "", filingID)
	})
	if err != nil {
		return nil, err
	}
	return s.GetFiling(ctx, userID, filingID)
}

// MarkFiled moves a completed filing to filed.
func (s *Service) MarkFiled(ctx context.Context, userID, filingID int64) (*models.TaxFiling, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRowContext(ctx,
			`SELECT status FROM tax_filings WHERE id = ? AND user_id = ?`, filingID, userID,
		).Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lookup filing: %w", err)
		}
		if models.FilingStatus(status) != models.FilingCompleted {
			return fmt.Errorf("filing %d is %s: %w", filingID, status, ErrInvalidTransition)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tax_filings SET status = ?, updated_at = ? WHERE id = ?`,
			string(models.FilingFiled), s.now(), filingID,
		); err != nil {
			return fmt.Errorf("mark filed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetFiling(ctx, userID, filingID)
}

func insertFiling(ctx context.Context, tx *sql.Tx, userID int64, year string, status models.FilingStatus, f models.Form16Fields, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tax_filings (user_id, financial_year, status, employee_name, pan, employer_name,
		 gross_salary, basic_salary, hra, special_allowance, deductions_80c, deductions_80d,
		 standard_deduction, tds_deducted, tax_payable, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, year, string(status), f.EmployeeName, f.PAN, f.EmployerName,
		f.GrossSalary, f.BasicSalary, f.HRA, f.SpecialAllowance, f.Deductions80C, f.Deductions80D,
		f.StandardDeduction, f.TDSDeducted, f.TaxPayable, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateFiling
		}
		return 0, fmt.Errorf("insert filing: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("filing id: %w", err)
	}
	return id, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func scanFiling(row rowScanner) (*models.TaxFiling, error) {
	var (
		f                           models.TaxFiling
		status                      string
		form16, extracted, suggests sql.NullString
	)
	err := row.Scan(&f.ID, &f.UserID, &f.FinancialYear, &status,
		&f.Fields.EmployeeName, &f.Fields.PAN, &f.Fields.EmployerName,
		&f.Fields.GrossSalary, &f.Fields.BasicSalary, &f.Fields.HRA, &f.Fields.SpecialAllowance,
		&f.Fields.Deductions80C, &f.Fields.Deductions80D, &f.Fields.StandardDeduction,
		&f.Fields.TDSDeducted, &f.Fields.TaxPayable,
		&form16, &extracted, &suggests, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan filing: %w", err)
	}
	f.Status = models.FilingStatus(status)
	f.Fields.FinancialYear = f.FinancialYear
	if form16.Valid && form16.String != "" {
		var meta models.Form16Metadata
		if err := json.Unmarshal([]byte(form16.String), &meta); err != nil {
			return nil, fmt.Errorf("decode form16 metadata: %w", err)
		}
		f.Form16Data = &meta
	}
	if extracted.Valid && extracted.String != "" {
		f.ExtractedData = json.RawMessage(extracted.String)
	}
	f.TaxSuggestions = []models.TaxSuggestion{}
	if suggests.Valid && suggests.String != "" {
		if err := json.Unmarshal([]byte(suggests.String), &f.TaxSuggestions); err != nil {
			return nil, fmt.Errorf("decode suggestions: %w", err)
		}
	}
	return &f, nil
}
