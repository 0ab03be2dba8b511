package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/MeKo-Tech/elscan/internal/pipeline"
	"github.com/MeKo-Tech/elscan/internal/storage"
)

// ProcessFunc runs the extraction pipeline on the PDF at path.
type ProcessFunc func(ctx context.Context, path string) (*pipeline.DocumentResult, error)

// Handler processes blueprint jobs and records their outcome in a store.
type Handler struct {
	store   storage.Store
	process ProcessFunc
	cfg     Config
	logger  *slog.Logger
}

// NewHandler creates a job handler.
func NewHandler(store storage.Store, process ProcessFunc, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, process: process, cfg: cfg, logger: logger}
}

// ProcessTask implements asynq.Handler. Malformed payloads are not retried.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return h.Handle(ctx, p, finalAttempt(ctx))
}

// finalAttempt reports whether a failure will not be retried. Outside an
// asynq worker every attempt is final.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

// Handle marks the job processing, runs the pipeline under the job timeout,
// then stores the result or the failure. The upload is removed after a
// success or a final failure so a retry can still read it.
func (h *Handler) Handle(ctx context.Context, p Payload, final bool) error {
	start := time.Now()
	log := h.logger.With("pdf_name", p.PDFName, "job_id", p.JobID)

	if err := h.store.UpdateStatus(ctx, p.PDFName, storage.StatusProcessing, ""); err != nil {
		log.Warn("Failed to update status to processing", "error", err)
	}

	processCtx := ctx
	if h.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		processCtx, cancel = context.WithTimeout(ctx, h.cfg.JobTimeout)
		defer cancel()
	}

	doc, err := h.process(processCtx, p.FilePath)
	if err == nil && doc == nil {
		err = errors.New("pipeline returned no result")
	}
	if err == nil {
		err = h.store.SaveResult(ctx, p.PDFName, doc)
	}
	if err != nil {
		if errors.Is(processCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("processing timed out after %v: %w", h.cfg.JobTimeout, err)
		}
		if !final {
			// The job stays processing until the retry settles it.
			log.Warn("Job attempt failed, will retry", "error", err, "duration", time.Since(start))
			return err
		}
		log.Error("Job failed", "error", err, "duration", time.Since(start))
		if updateErr := h.store.UpdateStatus(context.WithoutCancel(ctx), p.PDFName, storage.StatusFailed, err.Error()); updateErr != nil {
			log.Warn("Failed to update status to failed", "error", updateErr)
		}
		jobsTotal.WithLabelValues(string(storage.StatusFailed)).Inc()
		h.removeUpload(log, p.FilePath)
		return err
	}

	jobsTotal.WithLabelValues(string(storage.StatusComplete)).Inc()
	jobDuration.Observe(time.Since(start).Seconds())
	log.Info("Job complete",
		"fixtures", len(doc.Fixtures),
		"groups", len(doc.Classification.Summary),
		"duration", time.Since(start))
	h.removeUpload(log, p.FilePath)
	return nil
}

func (h *Handler) removeUpload(log *slog.Logger, path string) {
	if h.cfg.KeepUploads {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to remove upload", "path", path, "error", err)
	}
}
