package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/detector"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

func sampleResult(t *testing.T) classifier.Result {
	t.Helper()
	exit := association.Fixture{
		CandidateRegion: detector.CandidateRegion{Box: utils.NewBox(10, 20, 60, 70), Confidence: 0.5, Method: detector.MethodOtsu},
		TextNearby:      []string{"EXIT", "A1E"},
		Symbols:         []string{"A1E", "EXIT"},
		Type:            association.TypeEmergencyExit,
		Description:     association.Describe(association.TypeEmergencyExit),
		PrimarySymbol:   "A1E",
		SourceSheet:     "Page 1",
	}
	unknown := association.Fixture{
		CandidateRegion: detector.CandidateRegion{Box: utils.NewBox(100, 100, 150, 150), Confidence: 0.25},
		TextNearby:      []string{},
		Symbols:         []string{},
		Type:            association.TypeUnknown,
		SourceSheet:     "Page 2",
	}
	res, err := classifier.Fallback{}.Classify(context.Background(), []association.Fixture{exit, unknown}, nil)
	require.NoError(t, err)
	return res
}

func TestToJSON(t *testing.T) {
	res := sampleResult(t)
	out, err := ToJSON(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Contains(t, decoded, "summary")
	assert.Contains(t, decoded, "detailed_detections")

	again, err := ToJSON(sampleResult(t))
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestToJSONDocument(t *testing.T) {
	_, err := ToJSONDocument(nil)
	require.Error(t, err)

	doc := &DocumentResult{Classification: sampleResult(t), Pages: []PageResult{}, Fixtures: []association.Fixture{}}
	out, err := ToJSONDocument(doc)
	require.NoError(t, err)
	assert.Contains(t, out, `"classification"`)
	assert.Contains(t, out, `"association_stats"`)
}

func TestToCSV(t *testing.T) {
	out, err := ToCSV(sampleResult(t))
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "symbol", records[0][0])
	assert.Equal(t, []string{
		"A1E", "emergency_exit", "Exit/Emergency Combo Unit",
		"10", "20", "60", "70", "0.500", "Page 1", "EXIT | A1E",
	}, records[1])
	assert.Equal(t, "", records[2][0])
	assert.Equal(t, "unknown", records[2][1])
}

func TestToText(t *testing.T) {
	assert.Equal(t, "no fixtures detected", ToText(classifier.EmptyResult()))

	out := ToText(sampleResult(t))
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Lights01: 1 x Exit/Emergency Combo Unit [A1E, EXIT]", lines[0])
	assert.Equal(t, "Lights02: 1 x Unknown Fixture", lines[1])
}

func TestFormat(t *testing.T) {
	res := sampleResult(t)
	for _, format := range []string{"", "json", "JSON", "csv", "text"} {
		out, err := Format(res, format)
		require.NoError(t, err, format)
		assert.NotEmpty(t, out, format)
	}
	_, err := Format(res, "xml")
	require.Error(t, err)
}
