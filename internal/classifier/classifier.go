// Package classifier groups associated fixtures into a counted summary.
//
// Two implementations share one result shape: LLM asks an OpenAI-compatible
// chat completion endpoint, Fallback groups locally by fixture type. The
// WithFallback combinator tries the first and silently falls back to the
// second, so callers never see external service failures.
package classifier

import (
	"context"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/reference"
)

// Classifier turns associated fixtures and optional reference rows into a Result.
type Classifier interface {
	Classify(ctx context.Context, fixtures []association.Fixture, refs []reference.Row) (Result, error)
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, fixtures []association.Fixture, refs []reference.Row) (Result, error)

// Classify implements Classifier.
func (f Func) Classify(ctx context.Context, fixtures []association.Fixture, refs []reference.Row) (Result, error) {
	return f(ctx, fixtures, refs)
}

// New builds the classifier described by cfg: the LLM with a local fallback
// when a provider is configured, otherwise the fallback alone.
func New(cfg Config, opts ...Option) Classifier {
	o := applyOptions(opts)
	if cfg.Provider == ProviderFallback {
		return Fallback{}
	}
	return WithFallback(NewLLM(cfg, opts...), Fallback{}, WithLogger(o.logger))
}
