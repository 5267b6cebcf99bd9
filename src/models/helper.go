package models

import (
	"context"
	"fmt"
	"strings"
)

// NewLLMProvider builds the backend named by provider.
func NewLLMProvider(ctx context.Context, provider, model, promptPrefix string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return NewOpenAILLM(model, promptPrefix), nil
	case "gemini", "google":
		return NewGeminiLLM(ctx, model, promptPrefix)
	case "ollama":
		return NewOllamaLLM(model, promptPrefix)
	case "anthropic", "claude":
		return NewAnthropicLLM(model, promptPrefix), nil
	case "dummy", "":
		return NewDummyLLM(promptPrefix), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
