package videos

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// ThrottledProvider caps the rate of upstream resolves process-wide so cache
// misses and retries for many identifiers cannot flood the upstream host.
type ThrottledProvider struct {
	base    Provider
	limiter *rate.Limiter
}

// NewThrottledProvider allows rps resolves per second with the given burst.
// A non-positive rps disables throttling.
func NewThrottledProvider(base Provider, rps float64, burst int) *ThrottledProvider {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &ThrottledProvider{base: base, limiter: rate.NewLimiter(limit, burst)}
}

// Lookup waits for a token and delegates to the wrapped provider.
func (p *ThrottledProvider) Lookup(ctx context.Context, id Identifier) (Metadata, error) {
	if p == nil || p.base == nil {
		return Metadata{}, ErrProviderUnavailable
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return Metadata{}, Transient(fmt.Errorf("upstream throttle: %w", err))
	}
	return p.base.Lookup(ctx, id)
}
