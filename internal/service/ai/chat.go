package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"taxfiler/internal/config"
)

const FallbackReply = "I'm sorry, I couldn't process your question. Please try again."

const chatSystemPrompt = `You are TaxBot, a friendly assistant for Indian income tax and ITR filing.
Your users are early-career salaried professionals, so explain terms plainly and keep answers short.
An occasional emoji is fine. When a question needs professional judgement, suggest consulting a chartered accountant.

Context: %s`

// NewChatModel builds the eino chat model for provider. The gemini provider reuses genaiClient.
func NewChatModel(ctx context.Context, provider string, modelName string, provCfg config.ProviderConfig, genaiClient *genai.Client) (model.BaseChatModel, error) {
	if modelName == "" {
		modelName = provCfg.Model
	}
	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		if genaiClient == nil {
			return nil, errors.New("gemini chat requires a genai client")
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: genaiClient,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}

// ChatAdapter answers one question at a time. It keeps no history; callers pass context.
type ChatAdapter struct {
	model  model.BaseChatModel
	logger *slog.Logger
}

func NewChatAdapter(m model.BaseChatModel, logger *slog.Logger) *ChatAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatAdapter{model: m, logger: logger}
}

// GenerateReply returns the assistant's answer, or FallbackReply when the model says nothing.
func (a *ChatAdapter) GenerateReply(ctx context.Context, message, chatContext string) (string, error) {
	resp, err := a.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(chatSystemPrompt, chatContext)),
		schema.UserMessage(message),
	})
	if err != nil {
		return "", fmt.Errorf("generate chatbot response: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		a.logger.Warn("chat model returned empty reply")
		return FallbackReply, nil
	}
	return strings.TrimSpace(resp.Content), nil
}
