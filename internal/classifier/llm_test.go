package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/reference"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

const validContent = `Here is the grouping:
{
  "summary": {
    "Lights01": {"count": 2, "description": "Exit sign", "symbols": ["EXIT"]}
  },
  "detailed_detections": [
    {"symbol": "EXIT", "type": "emergency_exit", "description": "Exit sign", "bounding_box": [10, 20, 60, 50], "text_nearby": ["EXIT"], "source_sheet": "Page 1", "confidence": 0.75},
    {"symbol": "EXIT", "type": "emergency_exit", "description": "Exit sign", "bounding_box": [10, 20, 60, 50], "text_nearby": ["EXIT"], "source_sheet": "Page 1", "confidence": 0.75}
  ]
}
Thanks.`

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = url
	cfg.Timeout = 2 * time.Second
	return cfg
}

func exitFixtures() []association.Fixture {
	return []association.Fixture{
		fixture(association.TypeEmergencyExit, "", "EXIT"),
		fixture(association.TypeEmergencyExit, "", "EXIT"),
	}
}

func TestLLM_Success(t *testing.T) {
	requests := make(chan chatRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		requests <- req
		_, _ = io.WriteString(w, chatReply(validContent))
	}))
	defer srv.Close()

	refs := []reference.Row{
		{Kind: reference.KindNote, Text: "ALL EXITS ON EMERGENCY CIRCUIT"},
		{Kind: reference.KindTableRow, Symbol: "A1", Description: "LED LUMINAIRE", Voltage: "277V"},
	}
	result, err := NewLLM(testConfig(srv.URL)).Classify(context.Background(), exitFixtures(), refs)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Summary["Lights01"].Count)
	assert.Len(t, result.DetailedDetections, 2)

	gotReq := <-requests
	assert.Equal(t, "gpt-3.5-turbo", gotReq.Model)
	assert.InDelta(t, 0.1, gotReq.Temperature, 1e-9)
	assert.Equal(t, 1500, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	user := gotReq.Messages[1].Content
	assert.Contains(t, user, "Detection 2:")
	assert.Contains(t, user, "Note: ALL EXITS ON EMERGENCY CIRCUIT")
	assert.Contains(t, user, "Table Row - Symbol: A1, Description: LED LUMINAIRE")
	assert.Contains(t, user, "Bounding Box: [10, 20, 60, 50]")
	assert.Contains(t, user, "Confidence: 0.75")
}

func TestLLM_NoCredentialSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls.Add(1) }))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.APIKey = ""
	_, err := NewLLM(cfg).Classify(context.Background(), exitFixtures(), nil)
	require.ErrorIs(t, err, ErrNoCredential)
	assert.Zero(t, calls.Load())
}

func TestLLM_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "overloaded", http.StatusInternalServerError)
			},
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
				assert.Equal(t, "status", FallbackReason(err))
			},
		},
		{
			name: "no json in content",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, chatReply("I cannot help with that."))
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidResponse)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, chatReply(`{"summary": {"Lights01": }`))
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidResponse)
			},
		},
		{
			name: "counts do not add up",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, chatReply(strings.Replace(validContent, `"count": 2`, `"count": 5`, 1)))
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidResponse)
				require.ErrorIs(t, err, ErrInconsistent)
			},
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"choices": []}`)
			},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidResponse)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := NewLLM(testConfig(srv.URL)).Classify(context.Background(), exitFixtures(), nil)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

// mixedFixtures returns an exit sign and a wallpack on distinct boxes.
func mixedFixtures() []association.Fixture {
	exit := fixture(association.TypeEmergencyExit, "", "EXIT")
	wall := fixture(association.TypeWallpack, "", "W1")
	wall.Box = utils.NewBox(200, 120, 240, 150)
	wall.Confidence = 0.6
	return []association.Fixture{exit, wall}
}

// replyFor encodes a service reply that groups detections one per label.
func replyFor(t *testing.T, detections []Detection) string {
	t.Helper()
	summary := map[string]Group{}
	for i, d := range detections {
		summary[fmt.Sprintf("Lights%02d", i+1)] = Group{Count: 1, Description: d.Description, Symbols: []string{d.Symbol}}
	}
	b, err := json.Marshal(Result{Summary: summary, DetailedDetections: detections})
	require.NoError(t, err)
	return chatReply(string(b))
}

func TestLLM_RejectsAlteredDetections(t *testing.T) {
	fixtures := mixedFixtures()
	inputs := []Detection{NewDetection(fixtures[0]), NewDetection(fixtures[1])}

	tests := []struct {
		name  string
		alter func(d []Detection) []Detection
	}{
		{"reordered", func(d []Detection) []Detection { return []Detection{d[1], d[0]} }},
		{"confidence changed", func(d []Detection) []Detection { d[0].Confidence = 0.99; return d }},
		{"box changed", func(d []Detection) []Detection { d[1].Box = utils.NewBox(0, 0, 1, 1); return d }},
		{"sheet changed", func(d []Detection) []Detection { d[1].SourceSheet = "Page 7"; return d }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := replyFor(t, tt.alter(append([]Detection{}, inputs...)))
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, reply)
			}))
			defer srv.Close()

			_, err := NewLLM(testConfig(srv.URL)).Classify(context.Background(), fixtures, nil)
			require.ErrorIs(t, err, ErrInvalidResponse)
			require.ErrorIs(t, err, ErrInconsistent)

			got, err := WithFallback(NewLLM(testConfig(srv.URL)), Fallback{}).Classify(context.Background(), fixtures, nil)
			require.NoError(t, err)
			require.Len(t, got.DetailedDetections, 2)
			for i, d := range got.DetailedDetections {
				assert.Equal(t, inputs[i].Box, d.Box)
				assert.Equal(t, inputs[i].SourceSheet, d.SourceSheet)
				assert.InDelta(t, inputs[i].Confidence, d.Confidence, 1e-12)
			}
		})
	}

	t.Run("faithful reply is accepted", func(t *testing.T) {
		reply := replyFor(t, inputs)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, reply)
		}))
		defer srv.Close()

		got, err := NewLLM(testConfig(srv.URL)).Classify(context.Background(), fixtures, nil)
		require.NoError(t, err)
		assert.Equal(t, "W1", got.DetailedDetections[1].Symbol)
	})
}

func TestLLM_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	start := time.Now()
	_, err := NewLLM(cfg).Classify(context.Background(), exitFixtures(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Equal(t, "timeout", FallbackReason(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLLM_BoundsInFlightRequests(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = io.WriteString(w, chatReply(validContent))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxInFlight = 2
	llm := NewLLM(cfg)

	done := make(chan error, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, err := llm.Classify(context.Background(), exitFixtures(), nil)
			done <- err
		}()
	}
	for i := 0; i < 6; i++ {
		require.NoError(t, <-done)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestParseResponse(t *testing.T) {
	result, err := ParseResponse("```json\n" + `{"summary": {"Lights01": {"count": 1, "description": "x"}}, "detailed_detections": [{"symbol": "E1"}]}` + "\n```")
	require.NoError(t, err)
	assert.NotNil(t, result.Summary["Lights01"].Symbols)
	require.Len(t, result.DetailedDetections, 1)
	assert.NotNil(t, result.DetailedDetections[0].TextNearby)

	_, err = ParseResponse("} nothing {")
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, Config{Provider: ProviderFallback}.Validate())

	bad := DefaultConfig()
	bad.Provider = "mystery"
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Timeout = 0
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MaxInFlight = 0
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Temperature = 3
	require.Error(t, bad.Validate())
}
