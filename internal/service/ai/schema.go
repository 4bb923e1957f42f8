package ai

import "google.golang.org/genai"

var form16StringFields = []string{"employeeName", "pan", "employerName", "financialYear"}

var form16NumberFields = []string{
	"grossSalary", "basicSalary", "hra", "specialAllowance",
	"deductions80C", "deductions80D", "standardDeduction",
	"tdsDeducted", "taxPayable",
}

var form16FieldOrder = []string{
	"employeeName", "pan", "employerName", "grossSalary", "basicSalary", "hra",
	"specialAllowance", "deductions80C", "deductions80D", "standardDeduction",
	"tdsDeducted", "taxPayable", "financialYear",
}

var suggestionFields = []string{"section", "title", "description", "recommendedAmount", "potentialSaving", "category"}

func form16ResponseSchema() *genai.Schema {
	props := make(map[string]*genai.Schema, len(form16FieldOrder))
	for _, name := range form16StringFields {
		props[name] = &genai.Schema{Type: genai.TypeString}
	}
	for _, name := range form16NumberFields {
		props[name] = &genai.Schema{Type: genai.TypeNumber}
	}
	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       props,
		Required:         form16FieldOrder,
		PropertyOrdering: form16FieldOrder,
	}
}

func suggestionsResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"suggestions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"section":           {Type: genai.TypeString},
						"title":             {Type: genai.TypeString},
						"description":       {Type: genai.TypeString},
						"recommendedAmount": {Type: genai.TypeNumber},
						"potentialSaving":   {Type: genai.TypeNumber},
						"category":          {Type: genai.TypeString},
					},
					Required: suggestionFields,
				},
			},
		},
		Required: []string{"suggestions"},
	}
}

// The JSON schemas below only check shapes. Missing fields are tolerated and
// decode to zero values; value ranges are not checked.
var form16JSONSchema = compileSchema("form16.json", map[string]any{
	"type": "object",
	"properties": func() map[string]any {
		props := map[string]any{}
		for _, name := range form16StringFields {
			props[name] = map[string]any{"type": "string"}
		}
		for _, name := range form16NumberFields {
			props[name] = map[string]any{"type": "number"}
		}
		return props
	}(),
})

var suggestionsJSONSchema = compileSchema("suggestions.json", map[string]any{
	"type": "object",
	"properties": map[string]any{
		"suggestions": map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"section":           map[string]any{"type": "string"},
					"title":             map[string]any{"type": "string"},
					"description":       map[string]any{"type": "string"},
					"recommendedAmount": map[string]any{"type": "number"},
					"potentialSaving":   map[string]any{"type": "number"},
					"category":          map[string]any{"type": "string"},
				},
			},
		},
	},
})
