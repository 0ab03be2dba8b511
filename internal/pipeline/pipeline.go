package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/detector"
	"github.com/MeKo-Tech/elscan/internal/ocr"
)

// Config holds configuration for the extraction pipeline and its components.
type Config struct {
	Detector    detector.Config
	Association association.Config
	Classifier  classifier.Config

	// MaxWorkers bounds the number of pages processed concurrently (0 = runtime.NumCPU()).
	MaxWorkers int
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		Detector:    detector.DefaultConfig(),
		Association: association.DefaultConfig(),
		Classifier:  classifier.DefaultConfig(),
		MaxWorkers:  runtime.NumCPU(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg        Config
	engine     ocr.Engine
	classifier classifier.Classifier
	progress   ProgressCallback
	logger     *slog.Logger
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithParallelWorkers sets the number of pages processed concurrently.
func (b *Builder) WithParallelWorkers(workers int) *Builder {
	if workers > 0 {
		b.cfg.MaxWorkers = workers
	}
	return b
}

// WithIoUThreshold sets the overlap at which candidates are merged.
func (b *Builder) WithIoUThreshold(iou float64) *Builder {
	if iou > 0 {
		b.cfg.Detector.IoUThreshold = iou
	}
	return b
}

// WithAssociationDistance sets the maximum center distance for nearby text.
func (b *Builder) WithAssociationDistance(px float64) *Builder {
	if px > 0 {
		b.cfg.Association.Distance = px
	}
	return b
}

// WithStrategies enables or disables the built-in detection strategies.
func (b *Builder) WithStrategies(adaptive, otsu, edge bool) *Builder {
	b.cfg.Detector.Adaptive.Enabled = adaptive
	b.cfg.Detector.Otsu.Enabled = otsu
	b.cfg.Detector.Edge.Enabled = edge
	return b
}

// WithIncludeOCRSymbols adds symbols read from page text as extra fixtures.
func (b *Builder) WithIncludeOCRSymbols(enabled bool) *Builder {
	b.cfg.Classifier.IncludeOCRSymbols = enabled
	return b
}

// WithOCR sets the engine used for pages that carry no text blocks.
func (b *Builder) WithOCR(engine ocr.Engine) *Builder {
	b.engine = engine
	return b
}

// WithClassifier overrides the classifier built from the configuration.
func (b *Builder) WithClassifier(c classifier.Classifier) *Builder {
	b.classifier = c
	return b
}

// WithProgressCallback sets the per-page progress callback.
func (b *Builder) WithProgressCallback(cb ProgressCallback) *Builder {
	b.progress = cb
	return b
}

// WithLogger sets the logger for the pipeline and the components it builds.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration of every component.
func (b *Builder) Validate() error {
	if b.cfg.MaxWorkers < 0 {
		return errors.New("max workers must not be negative")
	}
	if err := b.cfg.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := b.cfg.Association.Validate(); err != nil {
		return fmt.Errorf("association: %w", err)
	}
	if err := b.cfg.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	return nil
}

// Pipeline wires together detection, association and classification.
type Pipeline struct {
	cfg        Config
	Detector   *detector.Detector
	Associator *association.Associator
	Classifier classifier.Classifier
	OCR        ocr.Engine
	progress   ProgressCallback
	logger     *slog.Logger
}

// Build initializes the pipeline components.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	det, err := detector.New(b.cfg.Detector, detector.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init detector: %w", err)
	}

	cls := b.classifier
	if cls == nil {
		cls = classifier.New(b.cfg.Classifier, classifier.WithLogger(logger))
	}
	engine := b.engine
	if engine == nil {
		engine = ocr.None
	}
	progress := b.progress
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	if b.cfg.MaxWorkers == 0 {
		b.cfg.MaxWorkers = runtime.NumCPU()
	}

	return &Pipeline{
		cfg:        b.cfg,
		Detector:   det,
		Associator: association.New(b.cfg.Association),
		Classifier: cls,
		OCR:        engine,
		progress:   progress,
		logger:     logger,
	}, nil
}

// Close releases all resources.
func (p *Pipeline) Close() error {
	if p.Detector != nil {
		err := p.Detector.Close()
		p.Detector = nil
		return err
	}
	return nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Info returns a map with key pipeline properties.
func (p *Pipeline) Info() map[string]interface{} {
	info := map[string]interface{}{
		"max_workers":          p.cfg.MaxWorkers,
		"iou_threshold":        p.cfg.Detector.IoUThreshold,
		"association_distance": p.cfg.Association.Distance,
		"classifier_provider":  p.cfg.Classifier.Provider,
		"llm_available":        p.cfg.Classifier.Provider != classifier.ProviderFallback && p.cfg.Classifier.HasCredential(),
		"include_ocr_symbols":  p.cfg.Classifier.IncludeOCRSymbols,
	}
	if p.Detector != nil {
		info["strategies"] = p.Detector.Strategies()
	}
	return info
}
