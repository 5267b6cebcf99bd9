//go:build fastembed

package embed

import (
	"context"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedder runs bge-small-en-v1.5 locally through ONNX Runtime.
type FastEmbedder struct {
	m   *fastembed.FlagEmbedding
	dim int
}

func defaultFastEmbedOptions() *FastEmbedOptions {
	return &FastEmbedOptions{
		Model:     string(fastembed.BGESmallENV15),
		CacheDir:  ".fastembed",
		BatchSize: 64,
	}
}

func NewFastEmbed(_ context.Context, opt *FastEmbedOptions) (*FastEmbedder, error) {
	var init *fastembed.InitOptions
	if opt != nil {
		init = &fastembed.InitOptions{
			Model:     fastembed.EmbeddingModel(opt.Model),
			CacheDir:  opt.CacheDir,
			MaxLength: opt.MaxLength,
		}
	}
	m, err := fastembed.NewFlagEmbedding(init)
	if err != nil {
		return nil, err
	}
	return &FastEmbedder{m: m, dim: 384}, nil
}

func (e *FastEmbedder) Dimension() int { return e.dim }

func (e *FastEmbedder) Close() error {
	if e.m != nil {
		e.m.Destroy()
	}
	return nil
}

func (e *FastEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.m.QueryEmbed(text)
}
