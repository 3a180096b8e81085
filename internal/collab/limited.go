package collab

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/inkpad-ai/researchd/internal/circuitbreaker"
	"github.com/inkpad-ai/researchd/internal/models"
)

// LimitedSearch throttles an inner SearchCollaborator to a requests-per-
// minute budget and routes calls through a circuit breaker. Waiting for a
// token respects the caller's context, so cancelled jobs never queue up
// against the limiter.
type LimitedSearch struct {
	inner   SearchCollaborator
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

// NewLimitedSearch wraps inner with an rpm budget and breaker. A zero or
// negative rpm disables throttling. A nil breaker disables circuit breaking.
func NewLimitedSearch(inner SearchCollaborator, rpm int, breaker *circuitbreaker.CircuitBreaker) *LimitedSearch {
	return &LimitedSearch{
		inner:   inner,
		limiter: newLimiter(rpm),
		breaker: breaker,
	}
}

func (s *LimitedSearch) Search(ctx context.Context, queries []string, kind models.WorkflowKind) ([]models.RawSource, error) {
	if err := waitToken(ctx, s.limiter); err != nil {
		return nil, err
	}
	if s.breaker == nil {
		return s.inner.Search(ctx, queries, kind)
	}
	var out []models.RawSource
	err := s.breaker.Execute(ctx, func() error {
		var innerErr error
		out, innerErr = s.inner.Search(ctx, queries, kind)
		return innerErr
	})
	return out, err
}

// LimitedSynthesis is the synthesis-side counterpart of LimitedSearch.
type LimitedSynthesis struct {
	inner   SynthesisCollaborator
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

// NewLimitedSynthesis wraps inner with an rpm budget and breaker.
func NewLimitedSynthesis(inner SynthesisCollaborator, rpm int, breaker *circuitbreaker.CircuitBreaker) *LimitedSynthesis {
	return &LimitedSynthesis{
		inner:   inner,
		limiter: newLimiter(rpm),
		breaker: breaker,
	}
}

func (s *LimitedSynthesis) Generate(ctx context.Context, kind models.WorkflowKind, sources []models.Source, purpose string) (string, error) {
	if err := waitToken(ctx, s.limiter); err != nil {
		return "", err
	}
	if s.breaker == nil {
		return s.inner.Generate(ctx, kind, sources, purpose)
	}
	var out string
	err := s.breaker.Execute(ctx, func() error {
		var innerErr error
		out, innerErr = s.inner.Generate(ctx, kind, sources, purpose)
		return innerErr
	})
	return out, err
}

func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
}

func waitToken(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
