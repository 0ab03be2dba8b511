package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/elscan/internal/config"
	"github.com/MeKo-Tech/elscan/internal/pipeline"
	"github.com/MeKo-Tech/elscan/internal/queue"
	"github.com/MeKo-Tech/elscan/internal/server"
	"github.com/MeKo-Tech/elscan/internal/storage"
)

// jobServices bundles what serve and worker need to run document jobs.
type jobServices struct {
	store    storage.Store
	pipeline *pipeline.Pipeline
	handler  *queue.Handler
}

func newJobServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*jobServices, error) {
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err)
	}
	p, reader, err := newDocumentPipeline(cfg, logger, pipeline.NewLogProgressCallback(logger, slog.LevelDebug))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	process := func(ctx context.Context, path string) (*pipeline.DocumentResult, error) {
		return p.ProcessFile(ctx, reader, path)
	}
	return &jobServices{
		store:    store,
		pipeline: p,
		handler:  queue.NewHandler(store, process, cfg.Queue, logger),
	}, nil
}

func (s *jobServices) Close() error {
	return errors.Join(s.pipeline.Close(), s.store.Close())
}

// newEnqueuer returns the asynq client when Redis is configured, otherwise an
// in-process runner.
func newEnqueuer(cfg queue.Config, h *queue.Handler) (queue.Enqueuer, func() error, error) {
	if cfg.RedisURL == "" {
		inline := queue.NewInline(h, cfg.Concurrency)
		return inline, inline.Close, nil
	}
	client, err := queue.NewClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API for blueprint uploads",
		Long: `Start an HTTP server that accepts PDF drawing sets and processes them in
the background.

The server provides the following endpoints:
  POST /blueprints/upload            - Upload a PDF (multipart field "file")
  GET  /blueprints/result?pdf_name=  - Poll the processing result
  GET  /blueprints/ws?pdf_name=      - Stream status updates over a websocket
  GET  /health                       - Health check endpoint
  GET  /metrics                      - Prometheus metrics

Jobs run in-process unless a Redis URL is configured, in which case they are
queued for "elscan worker".

Examples:
  elscan serve
  elscan serve --host 0.0.0.0 --port 3000
  elscan serve --storage postgres --redis-url redis://localhost:6379/0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			logger := a.logger.With("command", "serve")
			ctx := cmd.Context()

			svc, err := newJobServices(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			enqueuer, closeQueue, err := newEnqueuer(cfg.Queue, svc.handler)
			if err != nil {
				return err
			}

			apiServer, err := server.NewServer(cfg.Server, svc.store, enqueuer, logger)
			if err != nil {
				_ = closeQueue()
				return fmt.Errorf("failed to initialize server: %w", err)
			}

			timeout := time.Duration(cfg.Server.TimeoutSec) * time.Second
			httpServer := &http.Server{
				Addr:              cfg.Server.Addr(),
				Handler:           apiServer.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       timeout,
				// Websocket streams outlive a request timeout and manage their own deadlines.
				WriteTimeout: 0,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("Starting server",
					"addr", httpServer.Addr,
					"storage", cfg.Storage.Backend,
					"queue", queueMode(cfg.Queue))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
				logger.Info("Received shutdown signal")
			case err := <-serveErr:
				if err != nil {
					_ = closeQueue()
					return fmt.Errorf("server error: %w", err)
				}
			}

			shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
			logger.Info("Starting graceful shutdown", "timeout", shutdownTimeout)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", "error", err)
			}
			if err := closeQueue(); err != nil {
				logger.Error("Queue shutdown error", "error", err)
			}
			logger.Info("Graceful shutdown completed")
			return nil
		},
	}

	def := config.DefaultConfig()
	flags := cmd.Flags()
	flags.StringP("host", "H", def.Server.Host, "server host")
	flags.IntP("port", "p", def.Server.Port, "server port")
	flags.String("cors-origin", def.Server.CORSOrigin, "CORS allowed origin")
	flags.Int64("max-upload-size", def.Server.MaxUploadMB, "maximum upload size in MB")
	flags.Int("timeout", def.Server.TimeoutSec, "request read timeout in seconds")
	flags.Int("shutdown-timeout", def.Server.ShutdownTimeout, "shutdown timeout in seconds")
	flags.String("upload-dir", def.Server.UploadDir, "directory for uploaded PDFs")
	flags.Bool("rate-limit-enabled", false, "enable per-client rate limiting")
	flags.Int("requests-per-minute", def.Server.RateLimit.RequestsPerMinute, "maximum requests per minute per client")
	flags.Int("requests-per-hour", def.Server.RateLimit.RequestsPerHour, "maximum requests per hour per client")
	flags.Int("max-requests-per-day", def.Server.RateLimit.MaxRequestsPerDay, "maximum requests per day per client")
	flags.Int64("max-data-per-day", def.Server.RateLimit.MaxDataPerDay, "maximum uploaded bytes per day per client")
	addJobFlags(flags)
	a.bind(cmd, withJobBindings(map[string]string{
		"host":                 "server.host",
		"port":                 "server.port",
		"cors-origin":          "server.cors_origin",
		"max-upload-size":      "server.max_upload_mb",
		"timeout":              "server.timeout_sec",
		"shutdown-timeout":     "server.shutdown_timeout",
		"upload-dir":           "server.upload_dir",
		"rate-limit-enabled":   "server.rate_limit.enabled",
		"requests-per-minute":  "server.rate_limit.requests_per_minute",
		"requests-per-hour":    "server.rate_limit.requests_per_hour",
		"max-requests-per-day": "server.rate_limit.max_requests_per_day",
		"max-data-per-day":     "server.rate_limit.max_data_per_day",
	}))
	return cmd
}

func queueMode(cfg queue.Config) string {
	if cfg.RedisURL == "" {
		return "inline"
	}
	return "redis"
}
