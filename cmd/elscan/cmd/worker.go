package cmd

import (
	"errors"
	"fmt"
	"maps"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MeKo-Tech/elscan/internal/config"
	"github.com/MeKo-Tech/elscan/internal/queue"
	"github.com/MeKo-Tech/elscan/internal/storage"
)

// addJobFlags registers the flags shared by serve and worker.
func addJobFlags(fs *pflag.FlagSet) {
	def := config.DefaultConfig()
	fs.String("storage", def.Storage.Backend, "job store: memory, postgres or redis")
	fs.String("redis-url", "", "Redis URL for the job queue (empty runs jobs in-process)")
	fs.Int("concurrency", def.Queue.Concurrency, "documents processed concurrently")
	fs.Bool("keep-uploads", false, "keep uploaded PDFs after processing")
	fs.String("ocr", def.OCR.Engine, "text source: tesseract, vector or none")
	fs.String("classifier", def.Classifier.Provider, "classifier provider: openai or fallback")
}

func withJobBindings(m map[string]string) map[string]string {
	maps.Copy(m, map[string]string{
		"storage":      "storage.backend",
		"redis-url":    "queue.redis_url",
		"concurrency":  "queue.concurrency",
		"keep-uploads": "queue.keep_uploads",
		"ocr":          "ocr.engine",
		"classifier":   "classifier.provider",
	})
	return m
}

func newWorkerCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued blueprint jobs from Redis",
		Long: `Consume document jobs enqueued by "elscan serve" and record their results
in the shared job store. Requires a Redis URL and a postgres or redis store.

Examples:
  elscan worker --redis-url redis://localhost:6379/0 --storage redis
  ELSCAN_QUEUE_REDIS_URL=redis://queue:6379/0 DATABASE_URL=postgres://... elscan worker --storage postgres`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			logger := a.logger.With("command", "worker")

			if cfg.Queue.RedisURL == "" {
				return errors.New("worker requires a Redis URL (--redis-url or ELSCAN_QUEUE_REDIS_URL)")
			}
			if cfg.Storage.Backend == storage.BackendMemory {
				logger.Warn("Memory store is not shared with the API server; results stay in this process")
			}

			svc, err := newJobServices(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			worker, err := queue.NewWorker(cfg.Queue, svc.handler, logger)
			if err != nil {
				return fmt.Errorf("failed to create worker: %w", err)
			}
			return worker.Run(cmd.Context())
		},
	}
	addJobFlags(cmd.Flags())
	a.bind(cmd, withJobBindings(map[string]string{}))
	return cmd
}
