package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

// Detection is the flat per-fixture record of a classification result.
type Detection struct {
	Symbol      string                  `json:"symbol"`
	Type        association.FixtureType `json:"type"`
	Description string                  `json:"description"`
	Box         utils.Box               `json:"bounding_box"`
	TextNearby  []string                `json:"text_nearby"`
	SourceSheet string                  `json:"source_sheet"`
	Confidence  float64                 `json:"confidence"`
}

// NewDetection flattens an associated fixture. The symbol is the fixture's
// primary symbol.
func NewDetection(f association.Fixture) Detection {
	text := make([]string, len(f.TextNearby))
	copy(text, f.TextNearby)
	return Detection{
		Symbol:      f.PrimarySymbol,
		Type:        f.Type,
		Description: f.Description,
		Box:         f.Box,
		TextNearby:  text,
		SourceSheet: f.SourceSheet,
		Confidence:  f.Confidence,
	}
}

// Group aggregates the fixtures of one kind.
type Group struct {
	Count       int      `json:"count"`
	Description string   `json:"description"`
	Symbols     []string `json:"symbols"`
}

// Result is a grouped summary plus the per-fixture records it was built from.
// Summary keys are labels such as "Lights01"; encoding/json writes them in
// sorted order, so equal results marshal to identical bytes.
type Result struct {
	Summary            map[string]Group `json:"summary"`
	DetailedDetections []Detection      `json:"detailed_detections"`
}

// EmptyResult returns a well-formed result with no groups.
func EmptyResult() Result {
	return Result{Summary: map[string]Group{}, DetailedDetections: []Detection{}}
}

// Labels returns the summary labels in sorted order.
func (r Result) Labels() []string {
	labels := make([]string, 0, len(r.Summary))
	for l := range r.Summary {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// TotalCount sums the group counts.
func (r Result) TotalCount() int {
	n := 0
	for _, g := range r.Summary {
		n += g.Count
	}
	return n
}

// ErrInconsistent marks a result whose summary does not account for its detections.
var ErrInconsistent = errors.New("inconsistent classification result")

// Check verifies that r accounts for exactly want detections: one detailed
// record per fixture, group counts summing to that number, every group
// counting at least one fixture, and every detailed symbol listed in a group.
func (r Result) Check(want int) error {
	if len(r.DetailedDetections) != want {
		return fmt.Errorf("%w: %d detailed detections for %d fixtures", ErrInconsistent, len(r.DetailedDetections), want)
	}
	if total := r.TotalCount(); total != want {
		return fmt.Errorf("%w: group counts sum to %d, want %d", ErrInconsistent, total, want)
	}
	grouped := make(map[string]struct{})
	for label, g := range r.Summary {
		if g.Count < 1 {
			return fmt.Errorf("%w: group %q has count %d", ErrInconsistent, label, g.Count)
		}
		for _, s := range g.Symbols {
			grouped[s] = struct{}{}
		}
	}
	for _, d := range r.DetailedDetections {
		if d.Symbol == "" {
			continue
		}
		if _, ok := grouped[d.Symbol]; !ok {
			return fmt.Errorf("%w: symbol %q is not in any group", ErrInconsistent, d.Symbol)
		}
	}
	return nil
}

// confidenceTolerance absorbs float formatting by the classification service.
const confidenceTolerance = 1e-6

// CheckInputs verifies that the detailed records follow inputs one to one:
// same order, same bounding box, same source sheet and the same confidence.
func (r Result) CheckInputs(inputs []Detection) error {
	if len(r.DetailedDetections) != len(inputs) {
		return fmt.Errorf("%w: %d detailed detections for %d fixtures", ErrInconsistent, len(r.DetailedDetections), len(inputs))
	}
	for i, d := range r.DetailedDetections {
		in := inputs[i]
		switch {
		case d.Box != in.Box:
			return fmt.Errorf("%w: detection %d has box %v, want %v", ErrInconsistent, i, d.Box, in.Box)
		case d.SourceSheet != in.SourceSheet:
			return fmt.Errorf("%w: detection %d is on %q, want %q", ErrInconsistent, i, d.SourceSheet, in.SourceSheet)
		case math.Abs(d.Confidence-in.Confidence) > confidenceTolerance:
			return fmt.Errorf("%w: detection %d has confidence %g, want %g", ErrInconsistent, i, d.Confidence, in.Confidence)
		}
	}
	return nil
}

// normalize replaces nil collections so the JSON form never carries null.
func (r Result) normalize() Result {
	if r.Summary == nil {
		r.Summary = map[string]Group{}
	}
	for label, g := range r.Summary {
		if g.Symbols == nil {
			g.Symbols = []string{}
			r.Summary[label] = g
		}
	}
	if r.DetailedDetections == nil {
		r.DetailedDetections = []Detection{}
	}
	for i := range r.DetailedDetections {
		if r.DetailedDetections[i].TextNearby == nil {
			r.DetailedDetections[i].TextNearby = []string{}
		}
	}
	return r
}
