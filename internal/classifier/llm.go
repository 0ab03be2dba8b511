package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/reference"
)

var (
	// ErrNoCredential is returned without any network call when no API key is set.
	ErrNoCredential = errors.New("no API key configured for classification service")
	// ErrInvalidResponse is returned when the service reply holds no usable result.
	ErrInvalidResponse = errors.New("invalid classification response")
)

// StatusError reports a non-2xx reply from the classification service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("classification service returned status %d: %s", e.StatusCode, e.Body)
}

// LLM classifies fixtures through an OpenAI-compatible chat completion API.
// Each call is bounded by the configured timeout and at most MaxInFlight
// calls are outstanding at once. Calls are never retried.
type LLM struct {
	cfg        Config
	httpClient *http.Client
	sem        *semaphore.Weighted
	logger     *slog.Logger
}

// NewLLM creates an LLM classifier.
func NewLLM(cfg Config, opts ...Option) *LLM {
	o := applyOptions(opts)
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &LLM{
		cfg:        cfg,
		httpClient: o.httpClient,
		sem:        semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		logger:     o.logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify implements Classifier.
func (c *LLM) Classify(ctx context.Context, fixtures []association.Fixture, refs []reference.Row) (Result, error) {
	if !c.cfg.HasCredential() {
		return Result{}, ErrNoCredential
	}

	detections := make([]Detection, len(fixtures))
	for i, f := range fixtures {
		detections[i] = NewDetection(f)
	}
	prompt, err := BuildPrompt(detections, refs)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("failed to acquire request slot: %w", err)
	}
	start := time.Now()
	content, err := c.complete(ctx, prompt)
	c.sem.Release(1)
	llmRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return Result{}, err
	}

	result, err := ParseResponse(content)
	if err != nil {
		return Result{}, err
	}
	if err := result.Check(len(fixtures)); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if err := result.CheckInputs(detections); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	c.logger.Debug("LLM classification complete",
		"groups", len(result.Summary),
		"detections", len(result.DetailedDetections),
		"duration", time.Since(start))
	return result, nil
}

func (c *LLM) complete(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request to classification service failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	return chat.Choices[0].Message.Content, nil
}

// ParseResponse decodes the text between the first '{' and the last '}' of
// content as a Result.
func ParseResponse(content string) (Result, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return Result{}, fmt.Errorf("%w: no JSON object found", ErrInvalidResponse)
	}
	var result Result
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return result.normalize(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
