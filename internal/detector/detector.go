// Package detector finds candidate fixture regions on rasterized blueprint
// pages by combining several binarization strategies and merging overlaps.
package detector

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/elscan/internal/utils"
)

// Detector runs every enabled strategy over a page and deduplicates the union.
type Detector struct {
	config     Config
	strategies []Strategy
	logger     *slog.Logger
}

// Option customizes a Detector.
type Option func(*Detector)

// WithLogger sets the logger used for strategy failures and timings.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// WithStrategies replaces the strategies built from the configuration.
func WithStrategies(s ...Strategy) Option {
	return func(d *Detector) { d.strategies = s }
}

// New builds a detector from config. The model strategy is loaded only when enabled.
func New(config Config, opts ...Option) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}
	d := &Detector{config: config, logger: slog.Default()}

	if config.Adaptive.Enabled {
		d.strategies = append(d.strategies, NewAdaptiveStrategy(config.Adaptive))
	}
	if config.Otsu.Enabled {
		d.strategies = append(d.strategies, NewOtsuStrategy(config.Otsu))
	}
	if config.Edge.Enabled {
		d.strategies = append(d.strategies, NewEdgeStrategy(config.Edge))
	}
	for _, opt := range opts {
		opt(d)
	}
	if config.Model.Enabled {
		m, err := NewModelStrategy(config.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to load model strategy: %w", err)
		}
		d.strategies = append(d.strategies, m)
	}
	return d, nil
}

// Config returns a copy of the detector configuration.
func (d *Detector) Config() Config { return d.config }

// Strategies returns the names of the active strategies in execution order.
func (d *Detector) Strategies() []Method {
	names := make([]Method, len(d.strategies))
	for i, s := range d.strategies {
		names[i] = s.Name()
	}
	return names
}

// Detect returns deduplicated candidates ordered by descending confidence.
// An unusable image yields an empty slice. A failing strategy is logged and
// contributes nothing; the remaining strategies still run.
func (d *Detector) Detect(ctx context.Context, img image.Image) []CandidateRegion {
	gray, err := utils.ToGray(img)
	if err != nil {
		d.logger.Error("Candidate detection failed", "error", err)
		return []CandidateRegion{}
	}

	var all []CandidateRegion
	for _, s := range d.strategies {
		if ctx.Err() != nil {
			d.logger.Warn("Candidate detection cancelled", "error", ctx.Err())
			break
		}
		start := time.Now()
		regions, err := runStrategy(ctx, s, gray)
		if err != nil {
			d.logger.Warn("Detection strategy failed", "method", s.Name(), "error", err)
			continue
		}
		candidatesTotal.WithLabelValues(string(s.Name())).Add(float64(len(regions)))
		d.logger.Debug("Detection strategy finished",
			"method", s.Name(), "candidates", len(regions), "duration", time.Since(start))
		all = append(all, regions...)
	}
	return Deduplicate(all, d.config.IoUThreshold)
}

// Close releases resources held by strategies.
func (d *Detector) Close() error {
	for _, s := range d.strategies {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

func runStrategy(ctx context.Context, s Strategy, gray *image.Gray) (regions []CandidateRegion, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Detect(ctx, gray)
}
