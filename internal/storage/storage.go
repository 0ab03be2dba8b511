// Package storage persists blueprint processing jobs and their results.
//
// Jobs are keyed by their stored PDF name, which is unique per upload.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/elscan/internal/classifier"
	"github.com/MeKo-Tech/elscan/internal/pipeline"
)

var (
	// ErrNotFound is returned when no job exists for a PDF name.
	ErrNotFound = errors.New("job not found")
	// ErrExists is returned when a job for the PDF name already exists.
	ErrExists = errors.New("job already exists")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further updates follow.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// Job is one uploaded document and its processing state.
type Job struct {
	ID        string             `json:"job_id"`
	PDFName   string             `json:"pdf_name"`
	Status    Status             `json:"status"`
	Result    *classifier.Result `json:"result,omitempty"`
	Message   string             `json:"message,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Store persists jobs.
type Store interface {
	// CreateJob registers a pending job for pdfName.
	CreateJob(ctx context.Context, pdfName string) (Job, error)
	// UpdateStatus sets the status and message of an existing job.
	UpdateStatus(ctx context.Context, pdfName string, status Status, message string) error
	// SaveResult stores the classification of doc and marks the job complete.
	SaveResult(ctx context.Context, pdfName string, doc *pipeline.DocumentResult) error
	// Job returns the job for pdfName or ErrNotFound.
	Job(ctx context.Context, pdfName string) (Job, error)
	Close() error
}

// Watcher is implemented by stores that push job updates as they happen.
// The channel is closed when ctx ends.
type Watcher interface {
	Watch(ctx context.Context, pdfName string) (<-chan Job, error)
}

func newJob(pdfName string, now time.Time) (Job, error) {
	if pdfName == "" {
		return Job{}, errors.New("pdf name is required")
	}
	return Job{
		ID:        uuid.NewString(),
		PDFName:   pdfName,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func checkStatus(s Status) error {
	if !s.Valid() {
		return fmt.Errorf("unknown job status %q", s)
	}
	return nil
}

// Config selects and configures the store backend.
type Config struct {
	// Backend is memory, postgres or redis.
	Backend     string        `mapstructure:"backend" yaml:"backend" json:"backend"`
	PostgresDSN string        `mapstructure:"postgres_dsn" yaml:"postgres_dsn,omitempty" json:"-"`
	RedisURL    string        `mapstructure:"redis_url" yaml:"redis_url,omitempty" json:"-"`
	TTL         time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
}

// Backend names accepted in Config.Backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// DefaultConfig returns an in-memory store with a 24h Redis TTL.
func DefaultConfig() Config {
	return Config{Backend: BackendMemory, TTL: 24 * time.Hour}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres backend requires postgres_dsn")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("redis backend requires redis_url")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	return nil
}

// Open creates the configured store. Postgres stores are migrated.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendPostgres:
		pg, err := NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return pg, nil
	case BackendRedis:
		return NewRedis(ctx, cfg.RedisURL, cfg.TTL)
	default:
		return NewMemory(), nil
	}
}
