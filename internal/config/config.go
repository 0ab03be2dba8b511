package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/detector"
	"github.com/MeKo-Tech/elscan/internal/ocr"
	"github.com/MeKo-Tech/elscan/internal/pdf"
	"github.com/MeKo-Tech/elscan/internal/pipeline"
	"github.com/MeKo-Tech/elscan/internal/queue"
	"github.com/MeKo-Tech/elscan/internal/render"
	"github.com/MeKo-Tech/elscan/internal/server"
	"github.com/MeKo-Tech/elscan/internal/storage"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{"json", "csv", "text"}
)

const redacted = "********"

// DefaultConfig returns a configuration with every component at its defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:    "info",
		Detector:    detector.DefaultConfig(),
		Association: association.DefaultConfig(),
		Classifier:  classifier.DefaultConfig(),
		OCR:         ocr.DefaultConfig(),
		PDF:         pdf.DefaultConfig(),
		Server:      server.DefaultConfig(),
		Queue:       queue.DefaultConfig(),
		Storage:     storage.DefaultConfig(),
		Output: OutputConfig{
			Format:        "json",
			OverlayLabels: true,
		},
	}
}

// Validate validates the configuration and returns the first error found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	if c.Pipeline.MaxWorkers < 0 {
		return fmt.Errorf("invalid pipeline max workers: %d (must not be negative)", c.Pipeline.MaxWorkers)
	}

	sections := []struct {
		name     string
		validate func() error
	}{
		{"detector", c.Detector.Validate},
		{"association", c.Association.Validate},
		{"classifier", c.Classifier.Validate},
		{"ocr", c.OCR.Validate},
		{"pdf", c.PDF.Validate},
		{"server", c.Server.Validate},
		{"queue", c.Queue.Validate},
		{"storage", c.Storage.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ToPipelineConfig converts the config to the pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	return pipeline.Config{
		Detector:    c.Detector,
		Association: c.Association,
		Classifier:  c.Classifier,
		MaxWorkers:  c.Pipeline.MaxWorkers,
	}
}

// RenderOptions returns overlay options for --overlay-dir output.
func (c *Config) RenderOptions() render.Options {
	opts := render.DefaultOptions()
	opts.Labels = c.Output.OverlayLabels
	return opts
}

// SlogLevel maps LogLevel onto a slog level. Verbose forces debug.
func (c *Config) SlogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Redacted returns a copy with credentials masked, for display.
func (c Config) Redacted() Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&c.Classifier.APIKey)
	mask(&c.PDF.Password)
	mask(&c.Queue.RedisURL)
	mask(&c.Storage.PostgresDSN)
	mask(&c.Storage.RedisURL)
	return c
}

// YAML renders the configuration as a YAML document.
func (c Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}
