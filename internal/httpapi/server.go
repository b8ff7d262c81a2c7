// Package httpapi exposes the data engine over HTTP: the live view, session
// control, history, CSV export, manual dial input and a websocket feed of
// the live view.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rewired-gh/hdts/internal/csvlog"
	"github.com/rewired-gh/hdts/internal/engine"
	"github.com/rewired-gh/hdts/internal/logger"
	"github.com/rewired-gh/hdts/internal/manual"
	"github.com/rewired-gh/hdts/internal/metadata"
	"github.com/rewired-gh/hdts/internal/models"
	"github.com/rewired-gh/hdts/internal/session"
	"github.com/rewired-gh/hdts/internal/timestamp"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsWriteWait  = 10 * time.Second

	maxBodyBytes = 1 << 20
)

// Engine is the slice of engine.Engine the handlers use.
type Engine interface {
	LiveView() map[string]models.SensorReading
	FullLog() []models.LogEntry
	StartSession(samples map[string]string) (session.Status, error)
	StopSession() session.Status
	ExportCSV() (string, []byte, error)
	Status() engine.Status
	Interval() time.Duration
}

// Recorder accepts manual dial submissions.
type Recorder interface {
	Submit(sub manual.Submission) (manual.Result, error)
}

// Server serves the HTTP API.
type Server struct {
	engine   Engine
	recorder Recorder
	meta     *metadata.Store
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	closeOnce sync.Once
	closing   chan struct{}
}

// New builds a server and registers its routes.
func New(e Engine, rec Recorder, meta *metadata.Store) *Server {
	s := &Server{
		engine:   e,
		recorder: rec,
		meta:     meta,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:     http.NewServeMux(),
		closing: make(chan struct{}),
	}

	s.mux.HandleFunc("GET /api/data", s.handleData)
	s.mux.HandleFunc("POST /api/start", s.handleStart)
	s.mux.HandleFunc("POST /api/stop", s.handleStop)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/export", s.handleExport)
	s.mux.HandleFunc("POST /manual_dial_input", s.handleManualInput)
	s.mux.HandleFunc("GET /api/live", s.handleLive)
	return s
}

// Handler returns the request handler with access logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.mux.ServeHTTP(w, r)
		logger.Debug("%s %s (%v)", r.Method, r.URL.Path, time.Since(start))
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

// Close ends all websocket feeds.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// liveReading is one sensor in the /api/data response.
type liveReading struct {
	SensorValue float64       `json:"sensor_value"`
	Timestamp   string        `json:"timestamp"`
	Source      models.Source `json:"source"`
	models.SensorMetadata
}

func (s *Server) liveView() map[string]liveReading {
	view := s.engine.LiveView()
	out := make(map[string]liveReading, len(view))
	for id, r := range view {
		out[id] = liveReading{
			SensorValue:    r.Value,
			Timestamp:      timestamp.FromTime(r.Time()).UTC,
			Source:         r.Source,
			SensorMetadata: s.meta.Lookup(id),
		}
	}
	return out
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.liveView())
}

type startRequest struct {
	Samples map[string]string `json:"samples"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	st, err := s.engine.StartSession(req.Samples)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logging_started", "session": st})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	st := s.engine.StopSession()
	writeJSON(w, http.StatusOK, map[string]any{"status": "logging_stopped", "session": st})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.FullLog())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	path, data, err := s.engine.ExportCSV()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Warn("Failed to write export response: %v", err)
	}
}

// handleManualInput accepts {"<channel>": value, ..., "timestamp": optional}.
func (s *Server) handleManualInput(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	sub := manual.Submission{Values: make(map[string]any, len(body))}
	for k, v := range body {
		if k == "timestamp" {
			sub.Timestamp = v
			continue
		}
		sub.Values[k] = v
	}

	res, err := s.recorder.Submit(sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"timestamp":  res.Stamp.UTC,
		"saved_rows": len(res.Entries),
		"logged":     res.Logged,
	})
}

// handleLive pushes the live view on every poll interval until the client
// goes away or the server closes.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	// The read loop only drains control frames and notices disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	push := time.NewTicker(s.engine.Interval())
	defer push.Stop()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	send := func() bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(s.liveView()); err != nil {
			logger.Debug("Websocket write failed: %v", err)
			return false
		}
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-push.C:
			if !send() {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.closing:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &models.ValidationError{Field: "body", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

// writeError maps validation failures to 400, an empty export to 404 and
// everything else to 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, csvlog.ErrNothingToExport):
		status = http.StatusNotFound
	default:
		logger.Error("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
