//nolint:lll
package config

import (
	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/detector"
	"github.com/MeKo-Tech/elscan/internal/ocr"
	"github.com/MeKo-Tech/elscan/internal/pdf"
	"github.com/MeKo-Tech/elscan/internal/queue"
	"github.com/MeKo-Tech/elscan/internal/server"
	"github.com/MeKo-Tech/elscan/internal/storage"
)

// Config represents the complete configuration for elscan.
// It covers every command (image, pdf, serve, worker) and is resolved from
// configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Extraction components
	Detector    detector.Config    `mapstructure:"detector" yaml:"detector" json:"detector"`
	Association association.Config `mapstructure:"association" yaml:"association" json:"association"`
	Classifier  classifier.Config  `mapstructure:"classifier" yaml:"classifier" json:"classifier"`
	OCR         ocr.Config         `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	PDF         pdf.Config         `mapstructure:"pdf" yaml:"pdf" json:"pdf"`
	Pipeline    PipelineConfig     `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`

	// Service settings (serve and worker commands)
	Server  server.Config  `mapstructure:"server" yaml:"server" json:"server"`
	Queue   queue.Config   `mapstructure:"queue" yaml:"queue" json:"queue"`
	Storage storage.Config `mapstructure:"storage" yaml:"storage" json:"storage"`

	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`
}

// PipelineConfig contains page scheduling settings.
type PipelineConfig struct {
	// MaxWorkers bounds concurrently processed pages (0 = number of CPUs).
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// OutputConfig contains CLI output settings.
type OutputConfig struct {
	Format        string `mapstructure:"format" yaml:"format" json:"format"`
	File          string `mapstructure:"file" yaml:"file" json:"file"`
	OverlayDir    string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
	OverlayLabels bool   `mapstructure:"overlay_labels" yaml:"overlay_labels" json:"overlay_labels"`
}
