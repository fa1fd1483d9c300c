package llm

import (
	"context"
	"errors"
	"fmt"

	"finsight/internal/chat/interfaces"
	"finsight/internal/chat/schema"
	"finsight/pkg/circuitbreaker"
)

// BreakerGenerator wraps a Generator with a circuit breaker so a
// failing provider stops receiving traffic until it recovers.
type BreakerGenerator struct {
	inner   interfaces.Generator
	breaker *circuitbreaker.CircuitBreaker
}

var _ interfaces.Generator = (*BreakerGenerator)(nil)

// WithBreaker decorates gen with the given circuit breaker.
func WithBreaker(gen interfaces.Generator, breaker *circuitbreaker.CircuitBreaker) *BreakerGenerator {
	return &BreakerGenerator{inner: gen, breaker: breaker}
}

// Generate proxies to the wrapped generator. An open circuit surfaces
// as a service-unavailable error rather than a provider failure, and
// rate-limit rejections pass through without tripping the breaker.
func (b *BreakerGenerator) Generate(ctx context.Context, messages []schema.Message) (string, error) {
	var text string
	var rateErr error
	err := b.breaker.Execute(func() error {
		var genErr error
		text, genErr = b.inner.Generate(ctx, messages)
		if errors.Is(genErr, schema.ErrRateLimited) {
			// Backpressure is the caller's retry loop to handle, not a
			// provider fault the breaker should count.
			rateErr = genErr
			return nil
		}
		return genErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return "", fmt.Errorf("%w: generation circuit open", schema.ErrServiceUnavailable)
		}
		return "", err
	}
	if rateErr != nil {
		return "", rateErr
	}
	return text, nil
}
