package models

import (
	"encoding/json"
	"time"
)

type FilingStatus string

const (
	FilingDraft      FilingStatus = "draft"
	FilingProcessing FilingStatus = "processing"
	FilingCompleted  FilingStatus = "completed"
	FilingFiled      FilingStatus = "filed"
)

// Valid reports whether s is a known filing status.
func (s FilingStatus) Valid() bool {
	switch s {
	case FilingDraft, FilingProcessing, FilingCompleted, FilingFiled:
		return true
	}
	return false
}

// Form16Fields is the structured result of extraction. Amounts are in rupees.
type Form16Fields struct {
	EmployeeName      string  `json:"employeeName"`
	PAN               string  `json:"pan"`
	EmployerName      string  `json:"employerName"`
	GrossSalary       float64 `json:"grossSalary"`
	BasicSalary       float64 `json:"basicSalary"`
	HRA               float64 `json:"hra"`
	SpecialAllowance  float64 `json:"specialAllowance"`
	Deductions80C     float64 `json:"deductions80C"`
	Deductions80D     float64 `json:"deductions80D"`
	StandardDeduction float64 `json:"standardDeduction"`
	TDSDeducted       float64 `json:"tdsDeducted"`
	TaxPayable        float64 `json:"taxPayable"`
	FinancialYear     string  `json:"financialYear"`
}

type TaxSuggestion struct {
	Section           string  `json:"section"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	RecommendedAmount float64 `json:"recommendedAmount"`
	PotentialSaving   float64 `json:"potentialSaving"`
	Category          string  `json:"category"`
}

// Form16Metadata describes the upload a filing was extracted from.
type Form16Metadata struct {
	UploadID   int64     `json:"uploadId"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"fileType"`
	FileSize   int64     `json:"fileSize"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// TaxFiling is the per-user, per-financial-year aggregate.
type TaxFiling struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"userId"`
	FinancialYear  string          `json:"financialYear"`
	Status         FilingStatus    `json:"status"`
	Fields         Form16Fields    `json:"fields"`
	Form16Data     *Form16Metadata `json:"form16Data,omitempty"`
	ExtractedData  json.RawMessage `json:"extractedData,omitempty"`
	TaxSuggestions []TaxSuggestion `json:"taxSuggestions"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// DashboardStats is the read-side summary of the current filing.
type DashboardStats struct {
	HasFiling        bool    `json:"hasFiling"`
	Status           string  `json:"status"`
	PotentialSavings float64 `json:"potentialSavings"`
	EstimatedRefund  float64 `json:"estimatedRefund"`
	Progress         int     `json:"progress"`
}
