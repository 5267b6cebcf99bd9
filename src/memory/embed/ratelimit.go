package embed

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder spaces provider calls with a token bucket.
type RateLimitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// RateLimited wraps inner so it performs at most perSecond calls per second with
// the given burst. A non-positive rate disables limiting.
func RateLimited(inner Embedder, perSecond float64, burst int) Embedder {
	if perSecond <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{inner: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimitedEmbedder) Dimension() int { return DimensionOf(r.inner, 0) }

func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}
