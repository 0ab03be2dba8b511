package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/elscan/internal/queue"
	"github.com/MeKo-Tech/elscan/internal/storage"
)

// stubQueue records every enqueue attempt and optionally fails.
type stubQueue struct {
	mu       sync.Mutex
	payloads []queue.Payload
	err      error
}

func (q *stubQueue) Enqueue(_ context.Context, p queue.Payload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, p)
	return q.err
}

func (q *stubQueue) Payloads() []queue.Payload {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Payload(nil), q.payloads...)
}

// pollingStore hides the Watch method of the wrapped store.
type pollingStore struct {
	storage.Store
}

// failingPinger is a store whose backend is unreachable.
type failingPinger struct {
	storage.Store
}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, store storage.Store, q queue.Enqueuer, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.UploadDir = t.TempDir()
	cfg.PollInterval = 10 * time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewServer(cfg, store, q, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s
}

func pdfBytes() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF\n")
}

// uploadRequest builds a multipart upload with data in field under filename.
func uploadRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/blueprints/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}
