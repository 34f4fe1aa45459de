package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a token-bucket limiter.
//
// Remote embedding APIs meter by request; one token is consumed per image
// batch and per text query. Wait blocks until a token is available or the
// context is canceled, so cancellation semantics of the wrapped provider are
// preserved.
type RateLimited struct {
	provider Provider
	limiter  *rate.Limiter
}

// NewRateLimited wraps provider, allowing `limit` provider calls per second
// with the given burst.
func NewRateLimited(provider Provider, limit rate.Limit, burst int) *RateLimited {
	return &RateLimited{
		provider: provider,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// EmbedImages implements Provider.
func (r *RateLimited) EmbedImages(ctx context.Context, paths []string, batchSize int) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.provider.EmbedImages(ctx, paths, batchSize)
}

// EmbedText implements Provider.
func (r *RateLimited) EmbedText(ctx context.Context, query string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.provider.EmbedText(ctx, query)
}
