package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"taxfiler/internal/config"
	"taxfiler/internal/models"
)

type fakeGenerator struct {
	text   string
	err    error
	model  string
	prompt string
	config *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestExtractStructuredData(t *testing.T) {
	gen := &fakeGenerator{text: `{"employeeName":"Asha Rao","pan":" abcde1234f ","employerName":"Acme","grossSalary":1200000,
		"basicSalary":600000,"hra":240000,"specialAllowance":360000,"deductions80C":150000,"deductions80D":25000,
		"standardDeduction":50000,"tdsDeducted":98000,"taxPayable":91000,"financialYear":"2025-26"}`}
	extractor := NewExtractor(gen, "gemini-2.5-flash", nil)

	fields, raw, err := extractor.ExtractStructuredData(context.Background(), "FORM NO. 16 ...")
	if err != nil {
		t.Fatalf("ExtractStructuredData: %v", err)
	}
	if fields.PAN != "ABCDE1234F" || fields.GrossSalary != 1200000 || fields.FinancialYear != "2025-26" {
		t.Fatalf("unexpected fields %+v", fields)
	}
	if len(raw) == 0 {
		t.Fatalf("raw json missing")
	}
	if gen.model != "gemini-2.5-flash" || !strings.Contains(gen.prompt, "FORM NO. 16 ...") {
		t.Fatalf("unexpected request model=%s prompt=%q", gen.model, gen.prompt)
	}
	if gen.config.ResponseMIMEType != "application/json" || gen.config.ResponseSchema == nil {
		t.Fatalf("response must be schema constrained")
	}
	if got := len(gen.config.ResponseSchema.Required); got != 13 {
		t.Fatalf("expected 13 required fields, got %d", got)
	}
}

func TestExtractStructuredDataMissingFieldsDefault(t *testing.T) {
	gen := &fakeGenerator{text: `{"employeeName":"Ravi"}`}
	fields, _, err := NewExtractor(gen, "m", nil).ExtractStructuredData(context.Background(), "text")
	if err != nil {
		t.Fatalf("ExtractStructuredData: %v", err)
	}
	if fields.EmployeeName != "Ravi" || fields.GrossSalary != 0 || fields.PAN != "" {
		t.Fatalf("unexpected defaults %+v", fields)
	}
}

func TestExtractStructuredDataEmptyResponse(t *testing.T) {
	fields, raw, err := NewExtractor(&fakeGenerator{text: ""}, "m", nil).ExtractStructuredData(context.Background(), "text")
	if err != nil {
		t.Fatalf("ExtractStructuredData: %v", err)
	}
	if fields != (models.Form16Fields{}) || string(raw) != "{}" {
		t.Fatalf("expected default fields, got %+v raw=%s", fields, raw)
	}
}

func TestExtractStructuredDataFailures(t *testing.T) {
	cases := map[string]*fakeGenerator{
		"transport": {err: errors.New("quota exceeded")},
		"malformed": {text: `{"employeeName":`},
		"wrongtype": {text: `{"grossSalary":"lots"}`},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := NewExtractor(gen, "m", nil).ExtractStructuredData(context.Background(), "text")
			if err == nil || !strings.HasPrefix(err.Error(), "extract form16 data:") {
				t.Fatalf("expected wrapped extraction error, got %v", err)
			}
		})
	}
}

func TestGenerateSuggestions(t *testing.T) {
	gen := &fakeGenerator{text: `{"suggestions":[{"section":"80C","title":"ELSS","description":"Equity linked savings",
		"recommendedAmount":50000,"potentialSaving":15600,"category":"investment"}]}`}
	suggester := NewSuggester(gen, "gemini-2.5-pro", 0, nil)
	out, err := suggester.GenerateSuggestions(context.Background(), models.Form16Fields{GrossSalary: 900000}, 0)
	if err != nil {
		t.Fatalf("GenerateSuggestions: %v", err)
	}
	if len(out) != 1 || out[0].PotentialSaving != 15600 || out[0].Section != "80C" {
		t.Fatalf("unexpected suggestions %+v", out)
	}
	if !strings.Contains(gen.prompt, "25-year-old") {
		t.Fatalf("default age not applied: %q", gen.prompt)
	}
	if gen.model != "gemini-2.5-pro" {
		t.Fatalf("unexpected model %s", gen.model)
	}

	if _, err := suggester.GenerateSuggestions(context.Background(), models.Form16Fields{}, 31); err != nil {
		t.Fatalf("GenerateSuggestions: %v", err)
	}
	if !strings.Contains(gen.prompt, "31-year-old") {
		t.Fatalf("explicit age not applied: %q", gen.prompt)
	}
}

func TestGenerateSuggestionsEmptyAndErrors(t *testing.T) {
	for _, text := range []string{"", `{}`, `{"suggestions":null}`} {
		out, err := NewSuggester(&fakeGenerator{text: text}, "m", 25, nil).GenerateSuggestions(context.Background(), models.Form16Fields{}, 0)
		if err != nil || out == nil || len(out) != 0 {
			t.Fatalf("text %q: expected empty list, got %v err=%v", text, out, err)
		}
	}
	_, err := NewSuggester(&fakeGenerator{err: errors.New("503")}, "m", 25, nil).GenerateSuggestions(context.Background(), models.Form16Fields{}, 0)
	if err == nil || !strings.HasPrefix(err.Error(), "generate tax suggestions:") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

type fakeChatModel struct {
	reply    string
	err      error
	messages []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.messages = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func TestChatAdapter(t *testing.T) {
	fake := &fakeChatModel{reply: " Section 80C allows up to ₹1.5 lakh. "}
	adapter := NewChatAdapter(fake, nil)
	reply, err := adapter.GenerateReply(context.Background(), "What is 80C?", "gross salary 900000")
	if err != nil {
		t.Fatalf("GenerateReply: %v", err)
	}
	if reply != "Section 80C allows up to ₹1.5 lakh." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(fake.messages) != 2 || fake.messages[0].Role != schema.System || fake.messages[1].Content != "What is 80C?" {
		t.Fatalf("unexpected prompt %+v", fake.messages)
	}
	if !strings.Contains(fake.messages[0].Content, "Context: gross salary 900000") {
		t.Fatalf("context not passed: %q", fake.messages[0].Content)
	}

	fake.reply = "  "
	if reply, err := adapter.GenerateReply(context.Background(), "hi", ""); err != nil || reply != FallbackReply {
		t.Fatalf("expected fallback reply, got %q err=%v", reply, err)
	}

	fake.err = errors.New("timeout")
	if _, err := adapter.GenerateReply(context.Background(), "hi", ""); err == nil || !strings.HasPrefix(err.Error(), "generate chatbot response:") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewChatModelRejectsUnknownProvider(t *testing.T) {
	if _, err := NewChatModel(context.Background(), "llama", "", configProvider(), nil); err == nil {
		t.Fatalf("expected invalid provider error")
	}
	if _, err := NewChatModel(context.Background(), "gemini", "gemini-2.5-flash", configProvider(), nil); err == nil {
		t.Fatalf("expected error without genai client")
	}
}

func configProvider() config.ProviderConfig {
	return config.ProviderConfig{Model: "m", APIKey: "k"}
}
