package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/elscan/internal/queue"
	"github.com/MeKo-Tech/elscan/internal/storage"
	"github.com/MeKo-Tech/elscan/internal/version"
)

var pdfMagic = []byte("%PDF")

// infoHandler describes the API.
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeErrorResponse(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, InfoResponse{
		Message: "Emergency lighting fixture extraction API",
		Version: version.Version,
		Endpoints: map[string]string{
			"upload":  "/blueprints/upload",
			"result":  "/blueprints/result",
			"stream":  "/blueprints/ws",
			"health":  "/health",
			"metrics": "/metrics",
		},
	})
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	response := HealthResponse{
		Status:     "healthy",
		Version:    version.Version,
		Time:       time.Now().UTC().Format(time.RFC3339),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     float64(mem.HeapAlloc) / (1024 * 1024),
	}

	code := http.StatusOK
	if p, ok := s.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("Storage health check failed", "error", err)
			response.Status = "degraded"
			response.Storage = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			response.Storage = "ok"
		}
	}
	s.writeJSON(w, code, response)
}

// uploadHandler stores an uploaded PDF, registers a pending job and queues it.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if isBodyTooLarge(err) {
			uploadsTotal.WithLabelValues("too_large").Inc()
			s.writeErrorResponse(w, fmt.Sprintf("File size must be less than %dMB", s.maxUploadMB), http.StatusRequestEntityTooLarge)
		} else {
			uploadsTotal.WithLabelValues("invalid").Inc()
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		uploadsTotal.WithLabelValues("invalid").Inc()
		s.writeErrorResponse(w, "No PDF file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		uploadsTotal.WithLabelValues("invalid").Inc()
		s.writeErrorResponse(w, "Only PDF files are supported", http.StatusBadRequest)
		return
	}
	if header.Size > limit {
		uploadsTotal.WithLabelValues("too_large").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("File size must be less than %dMB", s.maxUploadMB), http.StatusRequestEntityTooLarge)
		return
	}

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(file, head); err != nil || !bytes.Equal(head, pdfMagic) {
		uploadsTotal.WithLabelValues("invalid").Inc()
		s.writeErrorResponse(w, "File is not a PDF document", http.StatusBadRequest)
		return
	}

	pdfName := uuid.NewString() + "_" + filepath.Base(header.Filename)
	path := filepath.Join(s.uploadDir, pdfName)
	size, err := s.saveUpload(path, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		s.logger.Error("Failed to store upload", "pdf_name", pdfName, "error", err)
		uploadsTotal.WithLabelValues("error").Inc()
		s.writeErrorResponse(w, "Error uploading file", http.StatusInternalServerError)
		return
	}
	uploadSizeBytes.Observe(float64(size))

	ctx := r.Context()
	job, err := s.store.CreateJob(ctx, pdfName)
	if err != nil {
		_ = os.Remove(path)
		s.logger.Error("Failed to create job", "pdf_name", pdfName, "error", err)
		uploadsTotal.WithLabelValues("error").Inc()
		s.writeErrorResponse(w, "Error uploading file", http.StatusInternalServerError)
		return
	}

	if err := s.queue.Enqueue(ctx, queue.Payload{JobID: job.ID, PDFName: pdfName, FilePath: path}); err != nil {
		s.logger.Error("Failed to enqueue job", "pdf_name", pdfName, "error", err)
		msg := fmt.Sprintf("Failed to start background processing: %v", err)
		if uerr := s.store.UpdateStatus(ctx, pdfName, storage.StatusFailed, msg); uerr != nil {
			s.logger.Error("Failed to mark job failed", "pdf_name", pdfName, "error", uerr)
		}
		_ = os.Remove(path)
		uploadsTotal.WithLabelValues("error").Inc()
		s.writeErrorResponse(w, "Failed to start background processing", http.StatusInternalServerError)
		return
	}

	uploadsTotal.WithLabelValues("accepted").Inc()
	s.logger.Info("Blueprint uploaded", "pdf_name", pdfName, "job_id", job.ID, "bytes", size)
	s.writeJSON(w, http.StatusOK, UploadResponse{
		Status:  "uploaded",
		PDFName: pdfName,
		Message: "Processing started in background.",
	})
}

func isBodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}

func (s *Server) saveUpload(path string, src io.Reader) (int64, error) {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // G304: name is generated
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}

// resultHandler reports the processing state of an uploaded PDF.
func (s *Server) resultHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pdfName := r.URL.Query().Get("pdf_name")
	if pdfName == "" {
		s.writeErrorResponse(w, "pdf_name is required", http.StatusBadRequest)
		return
	}

	job, err := s.store.Job(r.Context(), pdfName)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeErrorResponse(w, "No processing result found for "+pdfName, http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("Failed to load job", "pdf_name", pdfName, "error", err)
		s.writeErrorResponse(w, "Error retrieving result", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, toResultResponse(job))
}

// toResultResponse maps a job onto the API's three result states.
func toResultResponse(job storage.Job) ResultResponse {
	resp := ResultResponse{PDFName: job.PDFName, Stage: job.Status}
	switch job.Status {
	case storage.StatusComplete:
		resp.Status = ResultComplete
		resp.Result = job.Result
	case storage.StatusFailed:
		resp.Status = ResultFailed
		resp.Message = job.Message
		if resp.Message == "" {
			resp.Message = "Processing failed"
		}
	default:
		resp.Status = ResultInProgress
		resp.Message = "Processing is still in progress. Please try again later."
	}
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}
