package config

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Verbose)
	assert.InDelta(t, 0.3, cfg.Detector.IoUThreshold, 1e-9)
	assert.True(t, cfg.Detector.Adaptive.Enabled)
	assert.False(t, cfg.Detector.Model.Enabled)
	assert.InDelta(t, 150, cfg.Association.Distance, 1e-9)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Classifier.Model)
	assert.Empty(t, cfg.Classifier.APIKey)
	assert.Equal(t, "tesseract", cfg.OCR.Engine)
	assert.InDelta(t, 2.0, cfg.PDF.Zoom, 1e-9)
	assert.Equal(t, 0, cfg.Pipeline.MaxWorkers)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "elscan", cfg.Queue.Queue)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.True(t, cfg.Output.OverlayLabels)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"output format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"max workers", func(c *Config) { c.Pipeline.MaxWorkers = -1 }, "max workers"},
		{"detector", func(c *Config) { c.Detector.IoUThreshold = 0 }, "detector:"},
		{"association", func(c *Config) { c.Association.Distance = 0 }, "association:"},
		{"classifier", func(c *Config) { c.Classifier.Provider = "claude" }, "classifier:"},
		{"ocr", func(c *Config) { c.OCR.Engine = "paddle" }, "ocr:"},
		{"pdf", func(c *Config) { c.PDF.Pages = "3-1" }, "pdf:"},
		{"server", func(c *Config) { c.Server.Port = 0 }, "server:"},
		{"queue", func(c *Config) { c.Queue.Concurrency = 0 }, "queue:"},
		{"storage", func(c *Config) { c.Storage.Backend = "postgres" }, "storage:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("empty output format", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Output.Format = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detector.IoUThreshold = 0.45
	cfg.Association.Distance = 200
	cfg.Classifier.Provider = "fallback"
	cfg.Pipeline.MaxWorkers = 3

	pc := cfg.ToPipelineConfig()
	assert.InDelta(t, 0.45, pc.Detector.IoUThreshold, 1e-9)
	assert.InDelta(t, 200, pc.Association.Distance, 1e-9)
	assert.Equal(t, "fallback", pc.Classifier.Provider)
	assert.Equal(t, 3, pc.MaxWorkers)
}

func TestRenderOptions(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.RenderOptions().Labels)
	assert.Equal(t, 2, cfg.RenderOptions().Thickness)

	cfg.Output.OverlayLabels = false
	assert.False(t, cfg.RenderOptions().Labels)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		want    slog.Level
	}{
		{"debug", false, slog.LevelDebug},
		{"info", false, slog.LevelInfo},
		{"warn", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"error", true, slog.LevelDebug},
	}
	for _, tt := range tests {
		cfg := Config{LogLevel: tt.level, Verbose: tt.verbose}
		assert.Equal(t, tt.want, cfg.SlogLevel(), "%s verbose=%v", tt.level, tt.verbose)
	}
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Classifier.APIKey = "sk-secret"
	cfg.Storage.PostgresDSN = "postgres://user:pw@db/elscan"

	red := cfg.Redacted()
	assert.Equal(t, redacted, red.Classifier.APIKey)
	assert.Equal(t, redacted, red.Storage.PostgresDSN)
	assert.Empty(t, red.Storage.RedisURL)
	assert.Empty(t, red.PDF.Password)

	// The receiver is untouched.
	assert.Equal(t, "sk-secret", cfg.Classifier.APIKey)
}

func TestYAML(t *testing.T) {
	cfg := DefaultConfig()
	data, err := cfg.YAML()
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "iou_threshold: 0.3")
	assert.Contains(t, out, "min_area: 500")
	assert.Contains(t, out, "timeout: 1m0s")
	assert.NotContains(t, out, "api_key")

	cfg.Classifier.APIKey = "sk-secret"
	data, err = cfg.Redacted().YAML()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "api_key: '********'") ||
		strings.Contains(string(data), `api_key: "********"`), string(data))
}
