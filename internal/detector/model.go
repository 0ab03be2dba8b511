package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/yalue/onnxruntime_go"

	"github.com/MeKo-Tech/elscan/internal/mempool"
	"github.com/MeKo-Tech/elscan/internal/onnx"
)

// ModelStrategy runs a segmentation model that outputs a per-pixel symbol
// probability map and converts thresholded components into candidates.
// Its confidence is the mean probability of the component.
type ModelStrategy struct {
	cfg        ModelConfig
	session    *onnxruntime_go.DynamicAdvancedSession
	inputInfo  onnxruntime_go.InputOutputInfo
	outputInfo onnxruntime_go.InputOutputInfo
	mu         sync.RWMutex
}

// NewModelStrategy loads the ONNX model described by cfg.
func NewModelStrategy(cfg ModelConfig) (*ModelStrategy, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}
	if err := onnx.Initialize(cfg.Runtime); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}
	if len(inputs[0].Dimensions) != 4 {
		return nil, fmt.Errorf("expected 4D input tensor, got %dD", len(inputs[0].Dimensions))
	}

	opts, err := onnx.NewSessionOptions(cfg.Runtime)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()

	session, err := onnxruntime_go.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Debug("Model strategy initialized", "model_path", cfg.ModelPath, "input", inputs[0].Name)
	return &ModelStrategy{cfg: cfg, session: session, inputInfo: inputs[0], outputInfo: outputs[0]}, nil
}

// Name implements Strategy.
func (m *ModelStrategy) Name() Method { return MethodModel }

// Close releases the ONNX session.
func (m *ModelStrategy) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

// Detect implements Strategy.
func (m *ModelStrategy) Detect(ctx context.Context, gray *image.Gray) ([]CandidateRegion, error) {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	mw, mh := modelInputSize(w, h, m.cfg.MaxImageSize)
	input := gray
	if mw != w || mh != h {
		resized := imaging.Resize(gray, mw, mh, imaging.Lanczos)
		input = image.NewGray(image.Rect(0, 0, mw, mh))
		draw.Draw(input, input.Bounds(), resized, resized.Bounds().Min, draw.Src)
	}

	channels := 3
	if c := m.inputInfo.Dimensions[1]; c > 0 {
		channels = int(c)
	}
	tensor, err := onnx.GrayTensor(input, channels, 0.5, 0.5)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prob, pw, ph, err := m.infer(tensor)
	if err != nil {
		return nil, err
	}
	defer mempool.PutFloat32(prob)

	mask := mempool.GetBool(len(prob))
	defer mempool.PutBool(mask)
	for i, p := range prob {
		mask[i] = p >= m.cfg.Threshold
	}
	comps, labels := connectedComponents(mask, prob, pw, ph)
	defer mempool.PutInt(labels)

	// Filter in model space, then map boxes back to page pixels.
	sx, sy := float64(w)/float64(pw), float64(h)/float64(ph)
	filter := m.cfg.StrategyConfig
	filter.MinArea /= sx * sy
	filter.MaxArea /= sx * sy
	regions := contourRegions(comps, labels, pw, ph, MethodModel, filter, func(c compStats) float64 {
		return min(c.mean(), m.cfg.MaxConfidence)
	})
	for i := range regions {
		b := regions[i].Box
		regions[i].Box = b.Scale(sx, sy)
		regions[i].Area *= sx * sy
	}
	return regions, nil
}

func (m *ModelStrategy) infer(tensor onnx.Tensor) ([]float32, int, int, error) {
	if err := onnx.VerifyImageTensor(tensor); err != nil {
		return nil, 0, 0, fmt.Errorf("invalid tensor: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, 0, 0, errors.New("model session is closed")
	}

	in, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(tensor.Shape...), tensor.Data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() { _ = in.Destroy() }()

	outputs := []onnxruntime_go.Value{nil}
	if err := m.session.Run([]onnxruntime_go.Value{in}, outputs); err != nil {
		return nil, 0, 0, fmt.Errorf("inference failed: %w", err)
	}
	defer func() { _ = outputs[0].Destroy() }()

	out, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, 0, 0, errors.New("model output is not a float32 tensor")
	}
	shape := out.GetShape()
	if len(shape) < 2 {
		return nil, 0, 0, fmt.Errorf("unexpected output shape %v", shape)
	}
	ph, pw := int(shape[len(shape)-2]), int(shape[len(shape)-1])
	data := out.GetData()
	if len(data) < pw*ph {
		return nil, 0, 0, fmt.Errorf("output has %d values, want %d", len(data), pw*ph)
	}
	prob := mempool.GetFloat32(pw * ph)
	copy(prob, data[:pw*ph])
	return prob, pw, ph, nil
}

// modelInputSize scales (w, h) so the longer side is at most maxSide and both
// sides are multiples of 32.
func modelInputSize(w, h, maxSide int) (int, int) {
	scale := 1.0
	if maxSide > 0 && max(w, h) > maxSide {
		scale = float64(maxSide) / float64(max(w, h))
	}
	round32 := func(v float64) int {
		n := int(v+16) / 32 * 32
		return max(n, 32)
	}
	return round32(float64(w) * scale), round32(float64(h) * scale)
}
