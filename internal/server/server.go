// Package server exposes the board over HTTP: a health check, JSON status
// and board endpoints, and the WebSocket event feed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rickgao/odds-feed/internal/feed"
	"github.com/rickgao/odds-feed/internal/store"
	"github.com/rickgao/odds-feed/internal/stream"
	"github.com/rickgao/odds-feed/internal/version"
)

// Board is the read side of feed.Board.
type Board interface {
	State() feed.State
}

// StreamInfo reports on the odds stream. feed.Service implements it.
type StreamInfo interface {
	StreamStatus() stream.Status
	StreamStats() (stream.Stats, bool)
}

// Options holds everything the server needs from the caller.
type Options struct {
	Bind            string
	ShutdownTimeout time.Duration

	Board  Board
	Stream StreamInfo

	// Events serves /ws. Nil disables the endpoint.
	Events http.Handler

	// Refresh reloads the board for POST /api/refresh. Nil disables the
	// endpoint.
	Refresh func(ctx context.Context) error

	// Clients and Writer are optional extras for /api/status.
	Clients func() int
	Writer  func() store.WriterMetrics

	Logger *slog.Logger
}

// Server serves the HTTP endpoints.
type Server struct {
	opts      Options
	logger    *slog.Logger
	startedAt time.Time
	mux       *http.ServeMux
}

// New creates a server. Call Run to start listening.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Bind == "" {
		opts.Bind = ":8080"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		opts:      opts,
		logger:    logger.With("component", "server"),
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/board", s.handleBoard)
	if opts.Refresh != nil {
		s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	}
	if opts.Events != nil {
		s.mux.Handle("/ws", opts.Events)
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run listens on the configured address and serves until ctx ends, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"name":           version.Name,
		"version":        version.Version,
		"commit":         version.Commit,
		"stream_status":  s.opts.Stream.StreamStatus(),
		"stats":          nil,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}
	if stats, ok := s.opts.Stream.StreamStats(); ok {
		resp["stats"] = stats
	}
	if s.opts.Clients != nil {
		resp["clients"] = s.opts.Clients()
	}
	if s.opts.Writer != nil {
		resp["writer"] = s.opts.Writer()
	}
	writeJSON(w, resp)
}

func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.opts.Board.State())
}

// handleRefresh reloads the board and returns the resulting state. A failed
// load still answers 200: the board carries the user-facing message.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// The reload outlives an impatient client.
	if err := s.opts.Refresh(context.WithoutCancel(r.Context())); err != nil {
		s.logger.Warn("refresh failed", "error", err)
	}
	writeJSON(w, s.opts.Board.State())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
