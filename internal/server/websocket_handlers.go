package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/elscan/internal/storage"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// Message types sent over the job stream.
const (
	MessageJobUpdate = "job_update"
	MessageError     = "error"
)

// JobMessage is one update on the job stream.
type JobMessage struct {
	Type string `json:"type"`
	ResultResponse
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// jobWebSocketHandler streams the state of one job until it is complete or failed.
func (s *Server) jobWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pdfName := r.URL.Query().Get("pdf_name")
	if pdfName == "" {
		s.writeErrorResponse(w, "pdf_name is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subscribe before reading the current state so no update is missed.
	var updates <-chan storage.Job
	if watcher, ok := s.store.(storage.Watcher); ok {
		ch, err := watcher.Watch(ctx, pdfName)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.writeErrorResponse(w, "No processing result found for "+pdfName, http.StatusNotFound)
			return
		case err != nil:
			s.logger.Warn("Job watch unavailable, polling instead", "pdf_name", pdfName, "error", err)
		default:
			updates = ch
		}
	}

	job, err := s.store.Job(r.Context(), pdfName)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeErrorResponse(w, "No processing result found for "+pdfName, http.StatusNotFound)
		return
	}
	if err != nil {
		s.writeErrorResponse(w, "Error retrieving result", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()
	s.logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr, "pdf_name", pdfName)

	go readPump(conn, cancel)
	if s.streamJob(ctx, conn, job, updates) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"),
			time.Now().Add(wsWriteWait))
	}
}

// readPump drains client frames so control messages are handled, and
// cancels the stream when the client goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
	}
}

// streamJob sends job and every later change. It reports whether the job
// reached a terminal state.
func (s *Server) streamJob(ctx context.Context, conn *websocket.Conn, job storage.Job, updates <-chan storage.Job) bool {
	if err := s.sendJob(conn, job); err != nil {
		return false
	}
	if job.Status.Terminal() {
		return true
	}

	var poll <-chan time.Time
	if updates == nil {
		t := time.NewTicker(s.pollInterval)
		defer t.Stop()
		poll = t.C
	}
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return false
			}
			continue
		case next, ok := <-updates:
			if !ok {
				return false
			}
			job = next
		case <-poll:
			next, err := s.store.Job(ctx, job.PDFName)
			if err != nil {
				s.sendError(conn, "Error retrieving result")
				return false
			}
			if next.Status == job.Status && next.UpdatedAt.Equal(job.UpdatedAt) {
				continue
			}
			job = next
		}
		if err := s.sendJob(conn, job); err != nil {
			return false
		}
		if job.Status.Terminal() {
			return true
		}
	}
}

func (s *Server) sendJob(conn *websocket.Conn, job storage.Job) error {
	return s.send(conn, JobMessage{Type: MessageJobUpdate, ResultResponse: toResultResponse(job), UpdatedAt: job.UpdatedAt})
}

func (s *Server) sendError(conn *websocket.Conn, message string) {
	_ = s.send(conn, JobMessage{Type: MessageError, Error: message})
}

func (s *Server) send(conn *websocket.Conn, msg JobMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Failed to marshal WebSocket message", "error", err)
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("Failed to send WebSocket message", "error", err)
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}
