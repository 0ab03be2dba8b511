package detector

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/elscan/internal/onnx"
)

// Method identifies the strategy that produced a candidate region.
type Method string

const (
	MethodAdaptive Method = "adaptive_threshold"
	MethodOtsu     Method = "otsu_threshold"
	MethodEdge     Method = "edge_detection"
	MethodModel    Method = "model"
)

// StrategyConfig holds the geometric filter and confidence mapping of one strategy.
// Area bounds are exclusive, aspect bounds (width/height) inclusive.
// Confidence is min(area/AreaScale, MaxConfidence).
type StrategyConfig struct {
	Enabled       bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MinArea       float64 `mapstructure:"min_area" yaml:"min_area" json:"min_area"`
	MaxArea       float64 `mapstructure:"max_area" yaml:"max_area" json:"max_area"`
	MinAspect     float64 `mapstructure:"min_aspect" yaml:"min_aspect" json:"min_aspect"`
	MaxAspect     float64 `mapstructure:"max_aspect" yaml:"max_aspect" json:"max_aspect"`
	AreaScale     float64 `mapstructure:"area_scale" yaml:"area_scale" json:"area_scale"`
	MaxConfidence float64 `mapstructure:"max_confidence" yaml:"max_confidence" json:"max_confidence"`
}

// accepts reports whether a contour with the given area and bounding box size passes the filter.
func (s StrategyConfig) accepts(area, w, h float64) bool {
	if area <= s.MinArea || area >= s.MaxArea || h <= 0 {
		return false
	}
	aspect := w / h
	return aspect >= s.MinAspect && aspect <= s.MaxAspect
}

func (s StrategyConfig) confidence(area float64) float64 {
	return min(area/s.AreaScale, s.MaxConfidence)
}

func (s StrategyConfig) validate(name string) error {
	if !s.Enabled {
		return nil
	}
	if s.MinArea < 0 || s.MaxArea <= s.MinArea {
		return fmt.Errorf("%s: invalid area range (%v, %v)", name, s.MinArea, s.MaxArea)
	}
	if s.MinAspect < 0 || s.MaxAspect < s.MinAspect {
		return fmt.Errorf("%s: invalid aspect range [%v, %v]", name, s.MinAspect, s.MaxAspect)
	}
	if s.AreaScale <= 0 {
		return fmt.Errorf("%s: area scale must be > 0", name)
	}
	if s.MaxConfidence <= 0 || s.MaxConfidence > 1 {
		return fmt.Errorf("%s: max confidence must be in (0, 1]", name)
	}
	return nil
}

// AdaptiveConfig configures the local-threshold binarization.
type AdaptiveConfig struct {
	StrategyConfig `mapstructure:",squash" yaml:",inline"`
	BlockSize      int     `mapstructure:"block_size" yaml:"block_size" json:"block_size"`
	C              float64 `mapstructure:"c" yaml:"c" json:"c"`
}

// EdgeConfig configures the gradient-hysteresis binarization.
type EdgeConfig struct {
	StrategyConfig `mapstructure:",squash" yaml:",inline"`
	LowThreshold   float64 `mapstructure:"low_threshold" yaml:"low_threshold" json:"low_threshold"`
	HighThreshold  float64 `mapstructure:"high_threshold" yaml:"high_threshold" json:"high_threshold"`
}

// ModelConfig configures the optional ONNX probability-map strategy.
type ModelConfig struct {
	StrategyConfig `mapstructure:",squash" yaml:",inline"`
	ModelPath      string             `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	Threshold      float32            `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	MaxImageSize   int                `mapstructure:"max_image_size" yaml:"max_image_size" json:"max_image_size"`
	Runtime        onnx.RuntimeConfig `mapstructure:"runtime" yaml:"runtime" json:"runtime"`
}

// Config holds every threshold used by candidate detection.
type Config struct {
	Adaptive     AdaptiveConfig `mapstructure:"adaptive" yaml:"adaptive" json:"adaptive"`
	Otsu         StrategyConfig `mapstructure:"otsu" yaml:"otsu" json:"otsu"`
	Edge         EdgeConfig     `mapstructure:"edge" yaml:"edge" json:"edge"`
	Model        ModelConfig    `mapstructure:"model" yaml:"model" json:"model"`
	IoUThreshold float64        `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold"`
}

// DefaultConfig returns the thresholds tuned for emergency-lighting blueprints.
func DefaultConfig() Config {
	return Config{
		Adaptive: AdaptiveConfig{
			StrategyConfig: StrategyConfig{
				Enabled: true, MinArea: 500, MaxArea: 50000,
				MinAspect: 0.3, MaxAspect: 3.0, AreaScale: 10000, MaxConfidence: 0.9,
			},
			BlockSize: 11,
			C:         2,
		},
		Otsu: StrategyConfig{
			Enabled: true, MinArea: 1000, MaxArea: 30000,
			MinAspect: 0.5, MaxAspect: 2.5, AreaScale: 8000, MaxConfidence: 0.85,
		},
		Edge: EdgeConfig{
			StrategyConfig: StrategyConfig{
				Enabled: true, MinArea: 800, MaxArea: 40000,
				MinAspect: 0.4, MaxAspect: 2.8, AreaScale: 12000, MaxConfidence: 0.8,
			},
			LowThreshold:  50,
			HighThreshold: 150,
		},
		Model: ModelConfig{
			StrategyConfig: StrategyConfig{
				Enabled: false, MinArea: 500, MaxArea: 50000,
				MinAspect: 0.3, MaxAspect: 3.0, AreaScale: 1, MaxConfidence: 1,
			},
			Threshold:    0.5,
			MaxImageSize: 1280,
		},
		IoUThreshold: 0.3,
	}
}

// Validate checks the detector configuration.
func (c Config) Validate() error {
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou threshold must be in (0, 1], got %v", c.IoUThreshold)
	}
	if err := c.Adaptive.validate(string(MethodAdaptive)); err != nil {
		return err
	}
	if c.Adaptive.Enabled && (c.Adaptive.BlockSize < 3 || c.Adaptive.BlockSize%2 == 0) {
		return fmt.Errorf("adaptive block size must be odd and >= 3, got %d", c.Adaptive.BlockSize)
	}
	if err := c.Otsu.validate(string(MethodOtsu)); err != nil {
		return err
	}
	if err := c.Edge.validate(string(MethodEdge)); err != nil {
		return err
	}
	if c.Edge.Enabled && (c.Edge.LowThreshold < 0 || c.Edge.HighThreshold < c.Edge.LowThreshold) {
		return fmt.Errorf("edge thresholds invalid: low=%v high=%v", c.Edge.LowThreshold, c.Edge.HighThreshold)
	}
	if err := c.Model.validate(string(MethodModel)); err != nil {
		return err
	}
	if c.Model.Enabled {
		if c.Model.ModelPath == "" {
			return errors.New("model strategy enabled without model path")
		}
		if c.Model.Threshold <= 0 || c.Model.Threshold >= 1 {
			return fmt.Errorf("model threshold must be in (0, 1), got %v", c.Model.Threshold)
		}
		if err := c.Model.Runtime.Validate(); err != nil {
			return fmt.Errorf("model runtime: %w", err)
		}
	}
	return nil
}
