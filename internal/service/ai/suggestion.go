package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"taxfiler/internal/config"
	"taxfiler/internal/models"
)

const suggestionSystemPrompt = "You advise young salaried professionals on Indian income tax. Reply with valid JSON only."

const suggestionPrompt = `A %d-year-old salaried professional in India has this Form 16 summary:
- Gross salary: ₹%.0f
- Section 80C deductions claimed: ₹%.0f
- Section 80D deductions claimed: ₹%.0f
- Standard deduction: ₹%.0f
- Tax payable: ₹%.0f

Suggest practical ways to lower their tax under sections such as 80C, 80CCD(1B), 80D, 24(b) and HRA.
Return {"suggestions": [...]} where each item has section, title, description, recommendedAmount,
potentialSaving (numbers in rupees) and category (for example "investment", "insurance", "pension").`

// Suggester produces tax-saving suggestions from extracted fields.
type Suggester struct {
	gen        ContentGenerator
	model      string
	defaultAge int
	logger     *slog.Logger
}

func NewSuggester(gen ContentGenerator, model string, defaultAge int, logger *slog.Logger) *Suggester {
	if defaultAge <= 0 {
		defaultAge = config.DefaultUserAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Suggester{gen: gen, model: model, defaultAge: defaultAge, logger: logger}
}

type suggestionEnvelope struct {
	Suggestions []models.TaxSuggestion `json:"suggestions"`
}

// GenerateSuggestions returns the model's suggestions; age <= 0 uses the default age.
func (s *Suggester) GenerateSuggestions(ctx context.Context, fields models.Form16Fields, age int) ([]models.TaxSuggestion, error) {
	if age <= 0 {
		age = s.defaultAge
	}
	prompt := fmt.Sprintf(suggestionPrompt, age, fields.GrossSalary, fields.Deductions80C,
		fields.Deductions80D, fields.StandardDeduction, fields.TaxPayable)
	text, err := generateJSON(ctx, s.gen, s.model, suggestionSystemPrompt, prompt, suggestionsResponseSchema())
	if err != nil {
		return nil, fmt.Errorf("generate tax suggestions: %w", err)
	}
	if text == "" {
		return []models.TaxSuggestion{}, nil
	}
	if err := validateJSON(suggestionsJSONSchema, []byte(text)); err != nil {
		return nil, fmt.Errorf("generate tax suggestions: %w", err)
	}
	var env suggestionEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("generate tax suggestions: decode: %w", err)
	}
	if env.Suggestions == nil {
		env.Suggestions = []models.TaxSuggestion{}
	}
	s.logger.Info("tax suggestions generated", "model", s.model, "count", len(env.Suggestions))
	return env.Suggestions, nil
}
