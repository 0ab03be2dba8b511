package detector

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/elscan/internal/testutil"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

type stubStrategy struct {
	name    Method
	regions []CandidateRegion
	err     error
	panics  bool
}

func (s stubStrategy) Name() Method { return s.name }

func (s stubStrategy) Detect(context.Context, *image.Gray) ([]CandidateRegion, error) {
	if s.panics {
		panic("boom")
	}
	return s.regions, s.err
}

func newTestDetector(t *testing.T, opts ...Option) *Detector {
	t.Helper()
	d, err := New(DefaultConfig(), opts...)
	require.NoError(t, err)
	return d
}

func TestDetect_SingleSymbol(t *testing.T) {
	d := newTestDetector(t)
	img := testutil.SingleSymbolPage(400, 300, image.Rect(100, 100, 200, 160))

	regions := d.Detect(context.Background(), img)
	require.Len(t, regions, 1)
	r := regions[0]
	assert.Equal(t, MethodOtsu, r.Method)
	assert.Equal(t, utils.NewBox(100, 100, 200, 160), r.Box)
	assert.InDelta(t, 99.0*59.0, r.Area, 1e-9)
	assert.InDelta(t, 99.0*59.0/8000, r.Confidence, 1e-9)
}

func TestDetect_TwoSeparateSymbols(t *testing.T) {
	d := newTestDetector(t)
	img := testutil.Blueprint(testutil.BlueprintConfig{
		Width: 600, Height: 300,
		Symbols: []testutil.Symbol{
			{Rect: image.Rect(50, 50, 150, 110)},
			{Rect: image.Rect(350, 120, 430, 200)},
		},
	})
	regions := d.Detect(context.Background(), img)
	require.Len(t, regions, 2)
	assert.GreaterOrEqual(t, regions[0].Confidence, regions[1].Confidence)
}

func TestDetect_EmptyInputs(t *testing.T) {
	d := newTestDetector(t)

	assert.Empty(t, d.Detect(context.Background(), nil))
	assert.NotNil(t, d.Detect(context.Background(), nil))
	assert.Empty(t, d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0))))

	blank := testutil.Blueprint(testutil.DefaultBlueprintConfig())
	assert.Empty(t, d.Detect(context.Background(), blank))
}

func TestDetect_TooSmallSymbolIsFiltered(t *testing.T) {
	d := newTestDetector(t)
	img := testutil.SingleSymbolPage(200, 200, image.Rect(50, 50, 60, 60))
	assert.Empty(t, d.Detect(context.Background(), img))
}

func TestDetect_StrategyFailureIsIsolated(t *testing.T) {
	good := CandidateRegion{Box: utils.NewBox(0, 0, 50, 50), Confidence: 0.5, Method: MethodOtsu, Area: 2401}
	d := newTestDetector(t, WithStrategies(
		stubStrategy{name: MethodAdaptive, err: errors.New("binarization failed")},
		stubStrategy{name: MethodEdge, panics: true},
		stubStrategy{name: MethodOtsu, regions: []CandidateRegion{good}},
	))

	regions := d.Detect(context.Background(), testutil.SingleSymbolPage(100, 100, image.Rect(0, 0, 1, 1)))
	require.Len(t, regions, 1)
	assert.Equal(t, good, regions[0])
}

func TestDetect_CancelledContext(t *testing.T) {
	d := newTestDetector(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	regions := d.Detect(ctx, testutil.SingleSymbolPage(400, 300, image.Rect(100, 100, 200, 160)))
	assert.Empty(t, regions)
}

func TestNew_StrategySelection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Edge.Enabled = false
	d, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, []Method{MethodAdaptive, MethodOtsu}, d.Strategies())
	require.NoError(t, d.Close())

	cfg.IoUThreshold = 0
	_, err = New(cfg)
	require.Error(t, err)
}

func TestStrategies_FindRectangle(t *testing.T) {
	rect := utils.NewBox(100, 100, 200, 160)
	img := testutil.SingleSymbolPage(400, 300, image.Rect(100, 100, 200, 160))
	gray, err := utils.ToGray(img)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cases := []struct {
		strategy Strategy
		maxConf  float64
	}{
		{NewAdaptiveStrategy(cfg.Adaptive), 0.9},
		{NewOtsuStrategy(cfg.Otsu), 0.85},
		{NewEdgeStrategy(cfg.Edge), 0.8},
	}
	for _, c := range cases {
		t.Run(string(c.strategy.Name()), func(t *testing.T) {
			regions, err := c.strategy.Detect(context.Background(), gray)
			require.NoError(t, err)
			require.NotEmpty(t, regions)
			best := Deduplicate(regions, 0.3)[0]
			assert.Greater(t, utils.IoU(best.Box, rect), 0.9)
			assert.LessOrEqual(t, best.Confidence, c.maxConf)
			assert.Equal(t, c.strategy.Name(), best.Method)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cases := map[string]func(*Config){
		"inverted area":       func(c *Config) { c.Otsu.MaxArea = c.Otsu.MinArea },
		"inverted aspect":     func(c *Config) { c.Edge.MinAspect = 5 },
		"even block":          func(c *Config) { c.Adaptive.BlockSize = 10 },
		"zero area scale":     func(c *Config) { c.Adaptive.AreaScale = 0 },
		"edge thresholds":     func(c *Config) { c.Edge.HighThreshold = 10 },
		"model without path":  func(c *Config) { c.Model.Enabled = true },
		"confidence too high": func(c *Config) { c.Otsu.MaxConfidence = 1.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	// Disabled strategies are not validated.
	cfg := DefaultConfig()
	cfg.Edge.Enabled = false
	cfg.Edge.MinArea = -1
	assert.NoError(t, cfg.Validate())
}

func TestStrategyConfigFilter(t *testing.T) {
	s := DefaultConfig().Otsu
	assert.False(t, s.accepts(1000, 40, 25), "area bound is exclusive")
	assert.True(t, s.accepts(1001, 40, 25))
	assert.False(t, s.accepts(30000, 200, 150))
	assert.True(t, s.accepts(5000, 50, 100), "aspect 0.5 is inclusive")
	assert.True(t, s.accepts(5000, 250, 100), "aspect 2.5 is inclusive")
	assert.False(t, s.accepts(5000, 251, 100))
	assert.False(t, s.accepts(5000, 10, 0))

	assert.InDelta(t, 0.5, s.confidence(4000), 1e-12)
	assert.InDelta(t, 0.85, s.confidence(20000), 1e-12)
}

func TestModelInputSize(t *testing.T) {
	w, h := modelInputSize(640, 480, 1280)
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)

	w, h = modelInputSize(2560, 1000, 1280)
	assert.Equal(t, 1280, w)
	assert.Equal(t, 512, h)

	w, h = modelInputSize(10, 5, 0)
	assert.Equal(t, 32, w)
	assert.Equal(t, 32, h)
}
