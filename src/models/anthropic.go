package models

import (
	"context"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicLLM uses Anthropic's Messages API.
type AnthropicLLM struct {
	Client       *anthropic.Client
	Model        string
	MaxTokens    int
	PromptPrefix string
}

// NewAnthropicLLM reads ANTHROPIC_API_KEY from the environment.
func NewAnthropicLLM(model, promptPrefix string) *AnthropicLLM {
	cl := anthropic.NewClient(anthropicopt.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")))
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &AnthropicLLM{
		Client:       &cl,
		Model:        model,
		MaxTokens:    2048,
		PromptPrefix: promptPrefix,
	}
}

func (a *AnthropicLLM) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := a.Client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(a.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(withPrefix(a.PromptPrefix, prompt))),
		},
	})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String(), nil
}
