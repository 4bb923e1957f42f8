package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"taxfiler/internal/models"
)

const extractionSystemPrompt = "You parse Indian salary tax documents. Reply with valid JSON only."

const extractionPrompt = `The text below was produced by OCR on an Indian Form 16 (salary TDS certificate).
Return one JSON object with these keys:
employeeName, pan, employerName (strings), grossSalary, basicSalary, hra, specialAllowance,
deductions80C, deductions80D, standardDeduction, tdsDeducted, taxPayable (numbers in rupees),
financialYear (string such as "2024-25").
Use 0 for a number and "" for a string you cannot find. Do not guess values that are not in the text.

OCR text:
%s`

// Extractor turns OCR text into Form16Fields through a schema-constrained model call.
type Extractor struct {
	gen    ContentGenerator
	model  string
	logger *slog.Logger
}

func NewExtractor(gen ContentGenerator, model string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{gen: gen, model: model, logger: logger}
}

// ExtractStructuredData returns the decoded fields and the raw model JSON.
func (e *Extractor) ExtractStructuredData(ctx context.Context, rawText string) (models.Form16Fields, json.RawMessage, error) {
	var fields models.Form16Fields
	text, err := generateJSON(ctx, e.gen, e.model, extractionSystemPrompt,
		fmt.Sprintf(extractionPrompt, rawText), form16ResponseSchema())
	if err != nil {
		return fields, nil, fmt.Errorf("extract form16 data: %w", err)
	}
	// an empty answer means nothing was recognised; every field keeps its default
	if text == "" {
		text = "{}"
	}
	raw := []byte(text)
	if err := validateJSON(form16JSONSchema, raw); err != nil {
		return fields, nil, fmt.Errorf("extract form16 data: %w", err)
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fields, nil, fmt.Errorf("extract form16 data: decode: %w", err)
	}
	fields.PAN = strings.ToUpper(strings.TrimSpace(fields.PAN))
	fields.FinancialYear = strings.TrimSpace(fields.FinancialYear)
	e.logger.Info("form16 extracted", "model", e.model, "financial_year", fields.FinancialYear)
	return fields, json.RawMessage(raw), nil
}
