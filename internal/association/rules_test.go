package association

import (
	"sort"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestClassifyType(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  FixtureType
	}{
		{"recessed with quotes", []string{`2' x 4' recessed led`}, TypeRecessedLED},
		{"led luminaire", []string{"LED LUMINAIRE"}, TypeRecessedLED},
		{"wall pack split", []string{"WALL", "PACK"}, TypeWallpack},
		{"wall mounted", []string{"wall mounted"}, TypeWallpack},
		{"exit", []string{"EXIT"}, TypeEmergencyExit},
		{"combo symbol", []string{"A2E"}, TypeEmergencyExit},
		{"emergency", []string{"emergency"}, TypeEmergencyLight},
		{"el symbol", []string{"EL7"}, TypeEmergencyLight},
		{"photocell", []string{"PHOTO CELL"}, TypePhotocell},
		{"rule priority", []string{"WALLPACK", "EXIT"}, TypeWallpack},
		{"no match", []string{"PANEL", "B"}, TypeUnknown},
		{"empty", nil, TypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyType(tt.texts))
		})
	}
}

func TestExtractSymbols(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  []string
	}{
		{"combo unit", []string{"a1e"}, []string{"A1", "A1E"}},
		{"emergency word", []string{"EMERGENCY"}, []string{"EM", "EMERGENCY"}},
		{"exit sign", []string{"EXIT"}, []string{"EXIT"}},
		{"duplicates across texts", []string{"E1", "e1"}, []string{"E1"}},
		{"wallpack", []string{"wall pack W3"}, []string{"W3", "WALL PACK"}},
		{"nothing", []string{"panel"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSymbols(tt.texts))
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Exit/Emergency Combo Unit", Describe(TypeEmergencyExit))
	assert.Equal(t, "Emergency Lighting Fixture", Describe(TypeEmergencyLight))
	assert.Empty(t, Describe(TypePhotocell))
	assert.Empty(t, Describe(TypeUnknown))
}

func TestExtractSymbols_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	token := gen.OneConstOf("EL502", "a1e", "E2", "EXIT", "emergency", "W7", "2x4 recessed led", "wallpack", "note", "")
	phrase := gen.SliceOfN(3, token).Map(func(parts []string) string {
		return strings.Join(parts, " ")
	})

	properties.Property("symbols are sorted and unique", prop.ForAll(
		func(texts []string) bool {
			symbols := ExtractSymbols(texts)
			if !sort.StringsAreSorted(symbols) {
				return false
			}
			for i := 1; i < len(symbols); i++ {
				if symbols[i] == symbols[i-1] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(phrase),
	))

	properties.Property("symbols are derived from the text", prop.ForAll(
		func(texts []string) bool {
			joined := strings.ToUpper(strings.Join(texts, "\n"))
			for _, s := range ExtractSymbols(texts) {
				if !strings.Contains(joined, s) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(phrase),
	))

	properties.Property("every fixture gets a type", prop.ForAll(
		func(texts []string) bool {
			return ClassifyType(texts) != ""
		},
		gen.SliceOf(phrase),
	))

	properties.TestingRun(t)
}
