// Package queue runs blueprint processing jobs in the background, either on
// an asynq worker backed by Redis or inline in the serving process.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeProcessBlueprint is the asynq task type for processing one uploaded PDF.
const TypeProcessBlueprint = "blueprint:process"

// Payload identifies an uploaded document.
type Payload struct {
	JobID    string `json:"job_id"`
	PDFName  string `json:"pdf_name"`
	FilePath string `json:"file_path"`
}

// Validate checks that the payload names a document.
func (p Payload) Validate() error {
	if p.PDFName == "" {
		return errors.New("payload without pdf_name")
	}
	if p.FilePath == "" {
		return errors.New("payload without file_path")
	}
	return nil
}

// NewTask encodes p as a blueprint processing task.
func NewTask(p Payload) (*asynq.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProcessBlueprint, data), nil
}

// Enqueuer schedules documents for processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, p Payload) error
}

// Config configures the queue.
type Config struct {
	// RedisURL enables the asynq backend; empty runs jobs inline.
	RedisURL    string        `mapstructure:"redis_url" yaml:"redis_url,omitempty" json:"-"`
	Queue       string        `mapstructure:"queue" yaml:"queue" json:"queue"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency"`
	MaxRetry    int           `mapstructure:"max_retry" yaml:"max_retry" json:"max_retry"`
	JobTimeout  time.Duration `mapstructure:"job_timeout" yaml:"job_timeout" json:"job_timeout"`
	// KeepUploads leaves processed files in place instead of deleting them.
	KeepUploads bool `mapstructure:"keep_uploads" yaml:"keep_uploads" json:"keep_uploads"`
}

// DefaultConfig returns two workers, three retries and a 10 minute job timeout.
func DefaultConfig() Config {
	return Config{
		Queue:       "elscan",
		Concurrency: 2,
		MaxRetry:    3,
		JobTimeout:  10 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Queue == "" {
		return errors.New("queue name is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxRetry < 0 {
		return fmt.Errorf("max retry must not be negative, got %d", c.MaxRetry)
	}
	if c.JobTimeout < 0 {
		return fmt.Errorf("job timeout must not be negative, got %v", c.JobTimeout)
	}
	return nil
}

// RetryDelay backs off exponentially from 5s and caps at 60s.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 4 {
		return 60 * time.Second
	}
	return min(time.Duration(5*(1<<uint(n)))*time.Second, 60*time.Second)
}
