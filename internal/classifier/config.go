package classifier

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Providers accepted in Config.Provider.
const (
	ProviderOpenAI   = "openai"
	ProviderFallback = "fallback"
)

// Config configures classification.
type Config struct {
	Provider    string        `mapstructure:"provider" yaml:"provider" json:"provider"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key,omitempty" json:"-"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	Model       string        `mapstructure:"model" yaml:"model" json:"model"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxInFlight int           `mapstructure:"max_in_flight" yaml:"max_in_flight" json:"max_in_flight"`
	// IncludeOCRSymbols adds symbols read directly from page text as extra
	// emergency light fixtures before classification.
	IncludeOCRSymbols bool `mapstructure:"include_ocr_symbols" yaml:"include_ocr_symbols" json:"include_ocr_symbols"`
}

// DefaultConfig returns the OpenAI chat completion defaults.
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderOpenAI,
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-3.5-turbo",
		Temperature: 0.1,
		MaxTokens:   1500,
		Timeout:     60 * time.Second,
		MaxInFlight: 4,
	}
}

// HasCredential reports whether an API key is configured.
func (c Config) HasCredential() bool { return c.APIKey != "" }

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderFallback:
	default:
		return fmt.Errorf("unknown classifier provider %q", c.Provider)
	}
	if c.Provider == ProviderFallback {
		return nil
	}
	if c.BaseURL == "" {
		return fmt.Errorf("classifier base URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("classifier model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %v", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("classifier timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("max in-flight requests must be positive, got %d", c.MaxInFlight)
	}
	return nil
}

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
}

// Option customizes classifiers built by this package.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHTTPClient sets the HTTP client used for the external service.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: slog.Default(), httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
