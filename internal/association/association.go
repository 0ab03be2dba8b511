// Package association attaches recognized text to candidate regions and
// infers fixture symbols and types from it.
//
// Distances are measured between box centers, where a center is the floored
// midpoint of the box edges. Candidates or text blocks with malformed boxes
// are skipped without error.
package association

import (
	"fmt"
	"math"
	"strings"

	"github.com/MeKo-Tech/elscan/internal/detector"
	"github.com/MeKo-Tech/elscan/internal/ocr"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

// Fixture is a candidate region decorated with the text found around it.
type Fixture struct {
	detector.CandidateRegion

	TextNearby    []string    `json:"text_nearby"`
	Symbols       []string    `json:"symbols"`
	Type          FixtureType `json:"fixture_type"`
	Description   string      `json:"description,omitempty"`
	PrimarySymbol string      `json:"primary_symbol,omitempty"`
	SourceSheet   string      `json:"source_sheet,omitempty"`
}

// Config holds association distances in page pixels.
type Config struct {
	Distance       float64 `mapstructure:"distance" yaml:"distance" json:"distance"`
	NearbyDistance float64 `mapstructure:"nearby_distance" yaml:"nearby_distance" json:"nearby_distance"`
}

// DefaultConfig returns a 150 px association distance and 100 px for NearbyText.
func DefaultConfig() Config {
	return Config{Distance: 150, NearbyDistance: 100}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Distance <= 0 || math.IsNaN(c.Distance) {
		return fmt.Errorf("association distance must be positive, got %v", c.Distance)
	}
	if c.NearbyDistance <= 0 || math.IsNaN(c.NearbyDistance) {
		return fmt.Errorf("nearby distance must be positive, got %v", c.NearbyDistance)
	}
	return nil
}

// Associator links text blocks to candidate regions.
type Associator struct {
	config Config
}

// New creates an Associator. Zero distances fall back to the defaults.
func New(config Config) *Associator {
	def := DefaultConfig()
	if config.Distance <= 0 {
		config.Distance = def.Distance
	}
	if config.NearbyDistance <= 0 {
		config.NearbyDistance = def.NearbyDistance
	}
	return &Associator{config: config}
}

// Config returns the effective configuration.
func (a *Associator) Config() Config { return a.config }

// Associate returns one Fixture per candidate with a valid box, in input
// order. The result is never nil.
func (a *Associator) Associate(candidates []detector.CandidateRegion, blocks []ocr.TextBlock) []Fixture {
	fixtures := make([]Fixture, 0, len(candidates))
	for _, c := range candidates {
		if !c.Box.Valid() {
			continue
		}
		nearby := textWithin(c.Box, blocks, a.config.Distance)
		symbols := ExtractSymbols(nearby)
		kind := ClassifyType(nearby)

		f := Fixture{
			CandidateRegion: c,
			TextNearby:      nearby,
			Symbols:         symbols,
			Type:            kind,
			Description:     Describe(kind),
		}
		if len(symbols) > 0 {
			f.PrimarySymbol = symbols[0]
		}
		fixtures = append(fixtures, f)
	}
	return fixtures
}

// NearbyText returns the text of blocks within the secondary lookup distance of box.
func (a *Associator) NearbyText(box utils.Box, blocks []ocr.TextBlock) []string {
	if !box.Valid() {
		return []string{}
	}
	return textWithin(box, blocks, a.config.NearbyDistance)
}

func textWithin(box utils.Box, blocks []ocr.TextBlock, maxDist float64) []string {
	out := []string{}
	for _, b := range blocks {
		if !b.Box.Valid() {
			continue
		}
		if utils.CenterDistance(box, b.Box) > maxDist {
			continue
		}
		if text := strings.TrimSpace(b.Text); text != "" {
			out = append(out, text)
		}
	}
	return out
}
