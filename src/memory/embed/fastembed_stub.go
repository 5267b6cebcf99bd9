//go:build !fastembed

package embed

import (
	"context"
	"fmt"
)

type FastEmbedder struct{}

func defaultFastEmbedOptions() *FastEmbedOptions { return nil }

func NewFastEmbed(context.Context, *FastEmbedOptions) (*FastEmbedder, error) {
	return nil, fmt.Errorf("fastembed support not included; rebuild with -tags fastembed")
}

func (FastEmbedder) Dimension() int { return 0 }

func (FastEmbedder) Close() error { return nil }

func (FastEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrNotSupported
}
