package embed

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"math"
	"os"
	"strings"
)

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Dimensioned is implemented by embedders that know their output size up front.
type Dimensioned interface {
	Dimension() int
}

// ErrNotSupported is returned by providers that do not offer embeddings.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// ErrEmptyEmbedding is returned when a provider answers without a vector.
var ErrEmptyEmbedding = errors.New("provider returned an empty embedding")

// DefaultDimension matches text-embedding-ada-002.
const DefaultDimension = 1536

// ---------- Dummy (offline) ----------

// DummyEmbedder hashes tokens into a fixed-size normalized vector. Identical text
// always yields identical vectors, which is all tests and offline runs need.
type DummyEmbedder struct {
	Dim int
}

func (d DummyEmbedder) Dimension() int {
	if d.Dim <= 0 {
		return DefaultDimension
	}
	return d.Dim
}

func (d DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text, d.Dimension()), nil
}

// DummyEmbedding buckets each lower-cased token with FNV and L2-normalizes the result.
func DummyEmbedding(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultDimension
	}
	vec := make([]float32, dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[int(sum>>1)%dim] += sign
	}
	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// Config selects and tunes a provider.
type Config struct {
	Provider  string
	Model     string
	Dimension int
}

// New builds the provider named by cfg. Unknown providers are an error.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		e, err = nonNil(NewOpenAIEmbedder(cfg.Model))
	case "google", "gemini", "vertex", "vertexai":
		e, err = nonNil(NewVertexAIEmbedder(ctx, cfg.Model))
	case "ollama":
		e, err = nonNil(NewOllamaEmbedder(cfg.Model))
	case "voyage", "claude", "anthropic":
		e, err = nonNil(NewVoyageEmbedder(cfg.Model))
	case "fastembed":
		e, err = nonNil(NewFastEmbed(ctx, defaultFastEmbedOptions()))
	case "dummy", "":
		e = DummyEmbedder{Dim: cfg.Dimension}
	default:
		err = errors.New("unknown embedding provider: " + cfg.Provider)
	}
	return e, err
}

// nonNil keeps a failed constructor from producing a typed nil Embedder.
func nonNil[T Embedder](e T, err error) (Embedder, error) {
	if err != nil {
		return nil, err
	}
	return e, nil
}

// AutoEmbedder tries the configured provider and falls back to DummyEmbedder.
func AutoEmbedder(ctx context.Context, cfg Config) Embedder {
	if cfg.Provider == "" {
		cfg = inferProvider(cfg)
	}
	e, err := New(ctx, cfg)
	if err == nil {
		return e
	}
	log.Printf("AutoEmbedder: %v; falling back to DummyEmbedder", err)
	return DummyEmbedder{Dim: cfg.Dimension}
}

func inferProvider(cfg Config) Config {
	switch {
	case os.Getenv("OPENAI_API_KEY") != "":
		cfg.Provider = "openai"
	case os.Getenv("GOOGLE_API_KEY") != "" || os.Getenv("GEMINI_API_KEY") != "":
		cfg.Provider = "gemini"
	case os.Getenv("VOYAGE_API_KEY") != "":
		cfg.Provider = "voyage"
	case os.Getenv("OLLAMA_HOST") != "":
		cfg.Provider = "ollama"
	}
	return cfg
}

// DimensionOf returns the embedder's declared dimension, or fallback.
func DimensionOf(e Embedder, fallback int) int {
	if d, ok := e.(Dimensioned); ok && d.Dimension() > 0 {
		return d.Dimension()
	}
	return fallback
}
