package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/queue"
	"github.com/MeKo-Tech/elscan/internal/storage"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	store        storage.Store
	queue        queue.Enqueuer
	uploadDir    string
	corsOrigin   string
	maxUploadMB  int64
	pollInterval time.Duration
	rateLimiter  *RateLimiter
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	started      time.Time
}

// Config holds server configuration.
type Config struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int64           `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	UploadDir       string          `mapstructure:"upload_dir" yaml:"upload_dir" json:"upload_dir"`
	PollInterval    time.Duration   `mapstructure:"poll_interval" yaml:"poll_interval" json:"poll_interval"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig configures per-client request limits and daily quotas.
// Zero disables the individual limit.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// DefaultConfig returns the server defaults: localhost:8080, 50 MB uploads
// into ./temp_uploads, rate limiting off.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		CORSOrigin:      "*",
		MaxUploadMB:     50,
		TimeoutSec:      30,
		ShutdownTimeout: 10,
		UploadDir:       "temp_uploads",
		PollInterval:    time.Second,
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			MaxRequestsPerDay: 5000,
			MaxDataPerDay:     500 * 1024 * 1024,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Port)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.MaxUploadMB)
	}
	if c.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.TimeoutSec)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d", c.ShutdownTimeout)
	}
	if c.UploadDir == "" {
		return errors.New("upload directory is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %v (must be positive)", c.PollInterval)
	}
	return nil
}

// Addr returns host:port.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Response types for API endpoints.
type InfoResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

type HealthResponse struct {
	Status     string  `json:"status"`
	Version    string  `json:"version,omitempty"`
	Time       string  `json:"time"`
	Uptime     string  `json:"uptime"`
	Goroutines int     `json:"goroutines"`
	HeapMB     float64 `json:"heap_mb"`
	Storage    string  `json:"storage,omitempty"`
}

type UploadResponse struct {
	Status  string `json:"status"`
	PDFName string `json:"pdf_name"`
	Message string `json:"message"`
}

// Result statuses reported by the API.
const (
	ResultComplete   = "complete"
	ResultFailed     = "failed"
	ResultInProgress = "in_progress"
)

type ResultResponse struct {
	PDFName string             `json:"pdf_name"`
	Status  string             `json:"status"`
	Stage   storage.Status     `json:"stage,omitempty"`
	Result  *classifier.Result `json:"result,omitempty"`
	Message string             `json:"message,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// pinger is implemented by stores with a live backend connection.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewServer creates a server that stores uploads in cfg.UploadDir, records
// jobs in store and hands them to q.
func NewServer(cfg Config, store storage.Store, q queue.Enqueuer, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("server requires a job store")
	}
	if q == nil {
		return nil, errors.New("server requires a job queue")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	s := &Server{
		store:        store,
		queue:        q,
		uploadDir:    cfg.UploadDir,
		corsOrigin:   cfg.CORSOrigin,
		maxUploadMB:  cfg.MaxUploadMB,
		pollInterval: cfg.PollInterval,
		logger:       logger,
		started:      time.Now(),
	}
	if cfg.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(cfg.RateLimit)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.corsMiddleware(s.infoHandler))
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/blueprints/upload", s.corsMiddleware(s.rateLimitMiddleware(s.uploadHandler)))
	mux.HandleFunc("/blueprints/result", s.corsMiddleware(s.rateLimitMiddleware(s.resultHandler)))
	mux.HandleFunc("/blueprints/ws", s.jobWebSocketHandler)
}

// Handler returns a mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
