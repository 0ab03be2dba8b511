package classifier

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/reference"
)

type withFallback struct {
	primary  Classifier
	fallback Classifier
	logger   *slog.Logger
}

// WithFallback returns a Classifier that tries primary and, on any error,
// logs the reason and returns the fallback's result instead. A cancelled or
// expired caller context also routes to the fallback. The returned error is
// whatever the fallback returns, which is always nil for Fallback.
func WithFallback(primary, fallback Classifier, opts ...Option) Classifier {
	o := applyOptions(opts)
	return &withFallback{primary: primary, fallback: fallback, logger: o.logger}
}

func (w *withFallback) Classify(ctx context.Context, fixtures []association.Fixture, refs []reference.Row) (Result, error) {
	if w.primary != nil {
		result, err := w.primary.Classify(ctx, fixtures, refs)
		if err == nil {
			classificationsTotal.WithLabelValues("llm", "ok").Inc()
			return result, nil
		}
		reason := FallbackReason(err)
		classificationsTotal.WithLabelValues("fallback", reason).Inc()
		if reason == "no_credential" {
			w.logger.Debug("Using fallback classification", "reason", reason)
		} else {
			w.logger.Warn("Classification service failed, using fallback", "reason", reason, "error", err)
		}
	}
	return w.fallback.Classify(context.WithoutCancel(ctx), fixtures, refs)
}

// FallbackReason maps a primary classifier error to a short metric label.
func FallbackReason(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNoCredential):
		return "no_credential"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &statusErr):
		return "status"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	default:
		return "error"
	}
}
