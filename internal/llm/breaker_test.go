package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"finsight/internal/chat/schema"
	"finsight/pkg/circuitbreaker"
)

type scriptedGenerator struct {
	errs  []error
	calls int
}

func (g *scriptedGenerator) Generate(context.Context, []schema.Message) (string, error) {
	err := g.errs[g.calls]
	g.calls++
	if err != nil {
		return "", err
	}
	return "ok", nil
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	boom := errors.New("provider down")
	gen := &scriptedGenerator{errs: []error{boom, boom, nil}}
	breaker := circuitbreaker.New(2, 1, time.Minute)
	wrapped := WithBreaker(gen, breaker)

	for i := 0; i < 2; i++ {
		if _, err := wrapped.Generate(context.Background(), nil); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v, want provider error", i, err)
		}
	}

	_, err := wrapped.Generate(context.Background(), nil)
	if !errors.Is(err, schema.ErrServiceUnavailable) {
		t.Fatalf("open circuit: err = %v, want ErrServiceUnavailable", err)
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times, want 2 (open circuit must not call through)", gen.calls)
	}
}

func TestBreakerPassesRateLimitThrough(t *testing.T) {
	rateErr := schema.ErrRateLimited
	gen := &scriptedGenerator{errs: []error{rateErr, rateErr, rateErr, nil}}
	breaker := circuitbreaker.New(2, 1, time.Minute)
	wrapped := WithBreaker(gen, breaker)

	// Rate limiting repeats past the failure threshold without
	// tripping the breaker.
	for i := 0; i < 3; i++ {
		if _, err := wrapped.Generate(context.Background(), nil); !errors.Is(err, schema.ErrRateLimited) {
			t.Fatalf("call %d: err = %v, want ErrRateLimited", i, err)
		}
	}

	text, err := wrapped.Generate(context.Background(), nil)
	if err != nil || text != "ok" {
		t.Fatalf("after rate limiting: text=%q err=%v, want success", text, err)
	}
}
