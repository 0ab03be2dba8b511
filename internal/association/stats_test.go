package association

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/elscan/internal/detector"
	"github.com/MeKo-Tech/elscan/internal/ocr"
)

func TestValidate(t *testing.T) {
	fixtures := []Fixture{
		{TextNearby: []string{"EL1", "EXIT"}, Symbols: []string{"EL1", "EXIT"}},
		{TextNearby: []string{"PANEL"}, Symbols: []string{}},
		{TextNearby: []string{}, Symbols: []string{}},
		{TextNearby: []string{"E2"}, Symbols: []string{"E2"}},
	}
	s := Validate(fixtures)
	assert.Equal(t, 4, s.TotalFixtures)
	assert.Equal(t, 3, s.FixturesWithText)
	assert.Equal(t, 2, s.FixturesWithSymbols)
	assert.InDelta(t, 1.0, s.AverageTextPerFixture, 1e-9)
	assert.InDelta(t, 0.5, s.SymbolCoverage, 1e-9)

	assert.Equal(t, Stats{}, Validate(nil))
}

func TestDensity(t *testing.T) {
	a := New(DefaultConfig())
	blocks := []ocr.TextBlock{
		block("EXIT", 0, 0, 20, 20),
		block("A1E", 20, 0, 40, 20),
		block("far", 900, 900, 920, 920),
		block("farther", 950, 950, 990, 990),
	}
	fixtures := a.Associate([]detector.CandidateRegion{
		candidate(0, 0, 40, 20, 0.8),
		candidate(940, 940, 1000, 1000, 0.6),
		candidate(400, 400, 440, 440, 0.6),
	}, blocks)
	require.Len(t, fixtures, 3)

	d := a.Density(fixtures, blocks)
	require.Contains(t, d, TypeEmergencyExit)
	assert.Equal(t, 1, d[TypeEmergencyExit].Count)
	assert.InDelta(t, 0.5, d[TypeEmergencyExit].Average, 1e-9)

	require.Contains(t, d, TypeUnknown)
	assert.Equal(t, 2, d[TypeUnknown].Count)
	assert.InDelta(t, 0.25, d[TypeUnknown].Average, 1e-9)
	assert.Greater(t, d[TypeUnknown].StdDev, 0.0)

	assert.Empty(t, a.Density(nil, nil))
}
