package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Client enqueues tasks on Redis for a Worker.
type Client struct {
	client *asynq.Client
	cfg    Config
}

// NewClient connects an asynq client to cfg.RedisURL.
func NewClient(cfg Config) (*Client, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Client{client: asynq.NewClient(opt), cfg: cfg}, nil
}

// Enqueue implements Enqueuer.
func (c *Client) Enqueue(ctx context.Context, p Payload) error {
	task, err := NewTask(p)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue(c.cfg.Queue), asynq.MaxRetry(c.cfg.MaxRetry)}
	if c.cfg.JobTimeout > 0 {
		// leave the handler room to record the failure
		opts = append(opts, asynq.Timeout(c.cfg.JobTimeout+time.Minute))
	}
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", p.PDFName, err)
	}
	enqueuedTotal.Inc()
	slog.Debug("Task enqueued", "pdf_name", p.PDFName, "task_id", info.ID, "queue", info.Queue)
	return nil
}

// Close releases the Redis connection.
func (c *Client) Close() error { return c.client.Close() }

// Worker consumes blueprint tasks from Redis.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewWorker creates an asynq server that dispatches blueprint tasks to h.
func NewWorker(cfg Config, h *Handler, logger *slog.Logger) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.Queue: 10,
			"default": 1,
		},
		RetryDelayFunc: RetryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("Task failed", "type", task.Type(), "payload", string(task.Payload()), "error", err)
		}),
		Logger: asynqLogger{logger},
	})
	mux := asynq.NewServeMux()
	mux.Handle(TypeProcessBlueprint, h)
	return &Worker{server: server, mux: mux, logger: logger}, nil
}

// Run processes tasks until ctx ends, then shuts down gracefully.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	w.logger.Info("Worker started")
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("Worker stopped")
	return nil
}

// asynqLogger routes asynq's logs through slog.
type asynqLogger struct{ l *slog.Logger }

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...any) { a.l.Error(fmt.Sprint(args...)) }
