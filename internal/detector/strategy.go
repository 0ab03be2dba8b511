package detector

import (
	"context"
	"image"

	"github.com/MeKo-Tech/elscan/internal/mempool"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

// Strategy produces candidate regions from a grayscale page.
type Strategy interface {
	Name() Method
	Detect(ctx context.Context, gray *image.Gray) ([]CandidateRegion, error)
}

// maskStrategy binarizes a page and turns the outer contours of its
// connected components into filtered candidate regions.
type maskStrategy struct {
	method   Method
	filter   StrategyConfig
	binarize func(*image.Gray) []bool
}

func (s *maskStrategy) Name() Method { return s.method }

func (s *maskStrategy) Detect(ctx context.Context, gray *image.Gray) ([]CandidateRegion, error) {
	mask := s.binarize(gray)
	defer mempool.PutBool(mask)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	comps, labels := connectedComponents(mask, nil, w, h)
	defer mempool.PutInt(labels)
	return contourRegions(comps, labels, w, h, s.method, s.filter, nil), nil
}

// contourRegions measures each component's outer contour and keeps those that
// pass the area and aspect filter. conf overrides the area-based confidence
// when non-nil.
func contourRegions(comps []compStats, labels []int, w, h int, method Method,
	filter StrategyConfig, conf func(compStats) float64,
) []CandidateRegion {
	var out []CandidateRegion
	for i, c := range comps {
		// A contour smaller than MinArea needs a bounding box at least that large.
		bw := float64(c.maxX - c.minX + 1)
		bh := float64(c.maxY - c.minY + 1)
		if (bw-1)*(bh-1) <= filter.MinArea {
			continue
		}
		contour := traceContourMoore(labels, w, h, i+1, c)
		area := utils.PolygonArea(contour)
		if !filter.accepts(area, bw, bh) {
			continue
		}
		confidence := filter.confidence(area)
		if conf != nil {
			confidence = conf(c)
		}
		out = append(out, CandidateRegion{
			Box:        utils.NewBox(float64(c.minX), float64(c.minY), float64(c.maxX+1), float64(c.maxY+1)),
			Confidence: confidence,
			Method:     method,
			Area:       area,
		})
	}
	return out
}

// NewAdaptiveStrategy detects dark symbols against their local background.
func NewAdaptiveStrategy(cfg AdaptiveConfig) Strategy {
	return &maskStrategy{
		method: MethodAdaptive,
		filter: cfg.StrategyConfig,
		binarize: func(g *image.Gray) []bool {
			return adaptiveMask(g, cfg.BlockSize, cfg.C)
		},
	}
}

// NewOtsuStrategy detects dark regions under a global Otsu threshold.
func NewOtsuStrategy(cfg StrategyConfig) Strategy {
	return &maskStrategy{method: MethodOtsu, filter: cfg, binarize: otsuMask}
}

// NewEdgeStrategy detects closed outlines in the gradient-edge map.
func NewEdgeStrategy(cfg EdgeConfig) Strategy {
	return &maskStrategy{
		method: MethodEdge,
		filter: cfg.StrategyConfig,
		binarize: func(g *image.Gray) []bool {
			return edgeMask(g, cfg.LowThreshold, cfg.HighThreshold)
		},
	}
}
