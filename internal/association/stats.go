package association

import (
	"gonum.org/v1/gonum/stat"

	"github.com/MeKo-Tech/elscan/internal/ocr"
)

// Stats summarizes how well fixtures were matched with text.
type Stats struct {
	TotalFixtures         int     `json:"total_fixtures"`
	FixturesWithText      int     `json:"fixtures_with_text"`
	FixturesWithSymbols   int     `json:"fixtures_with_symbols"`
	AverageTextPerFixture float64 `json:"average_text_per_fixture"`
	SymbolCoverage        float64 `json:"symbol_coverage"`
}

// Validate computes association statistics. All ratios are 0 for no fixtures.
func Validate(fixtures []Fixture) Stats {
	s := Stats{TotalFixtures: len(fixtures)}
	if len(fixtures) == 0 {
		return s
	}
	textCounts := make([]float64, len(fixtures))
	for i, f := range fixtures {
		textCounts[i] = float64(len(f.TextNearby))
		if len(f.TextNearby) > 0 {
			s.FixturesWithText++
		}
		if len(f.Symbols) > 0 {
			s.FixturesWithSymbols++
		}
	}
	s.AverageTextPerFixture = stat.Mean(textCounts, nil)
	s.SymbolCoverage = float64(s.FixturesWithSymbols) / float64(s.TotalFixtures)
	return s
}

// TextDensity is the share of a page's text blocks found near fixtures of one type.
type TextDensity struct {
	Average float64 `json:"average"`
	StdDev  float64 `json:"std_dev"`
	Count   int     `json:"count"`
}

// Density reports, per fixture type, the mean fraction of all text blocks that
// lie within the association distance of each fixture.
func (a *Associator) Density(fixtures []Fixture, blocks []ocr.TextBlock) map[FixtureType]TextDensity {
	samples := make(map[FixtureType][]float64)
	total := float64(max(1, len(blocks)))
	for _, f := range fixtures {
		if !f.Box.Valid() {
			continue
		}
		n := len(textWithin(f.Box, blocks, a.config.Distance))
		samples[f.Type] = append(samples[f.Type], float64(n)/total)
	}

	out := make(map[FixtureType]TextDensity, len(samples))
	for kind, xs := range samples {
		d := TextDensity{Count: len(xs)}
		if len(xs) > 1 {
			d.Average, d.StdDev = stat.MeanStdDev(xs, nil)
		} else {
			d.Average = xs[0]
		}
		out[kind] = d
	}
	return out
}
