// Package models wraps text-generation backends behind a single interface.
package models

import "context"

// Model turns a prompt into text.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

func withPrefix(prefix, prompt string) string {
	if prefix == "" {
		return prompt
	}
	return prefix + "\n\n" + prompt
}
