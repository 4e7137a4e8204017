// Package status serves a read-only HTTP view of the kiosk: a health check,
// the latest kiosk snapshot and the Prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrCodeEU/lpad/pkg/kiosk"
	"github.com/MrCodeEU/lpad/pkg/logging"
)

// ShutdownTimeout bounds the graceful shutdown of the server.
const ShutdownTimeout = 5 * time.Second

// Board holds the most recent kiosk snapshot. The frame loop writes it and
// HTTP handlers read it.
type Board struct {
	mu        sync.RWMutex
	snapshot  kiosk.Snapshot
	updatedAt time.Time
	frames    uint64
}

// NewBoard creates an empty Board.
func NewBoard() *Board {
	return &Board{}
}

// Publish stores s as the latest snapshot.
func (b *Board) Publish(s kiosk.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = s
	b.updatedAt = time.Now()
	b.frames++
}

// Report is the JSON document served on /status.
type Report struct {
	Snapshot  kiosk.Snapshot `json:"snapshot"`
	UpdatedAt time.Time      `json:"updated_at"`
	Frames    uint64         `json:"frames"`
}

// Report returns the latest snapshot with its bookkeeping.
func (b *Board) Report() Report {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Report{Snapshot: b.snapshot, UpdatedAt: b.updatedAt, Frames: b.frames}
}

// Server is the status HTTP server.
type Server struct {
	addr   string
	router *mux.Router
	server *http.Server
}

// NewServer creates a server for board. A nil gatherer disables /metrics.
func NewServer(addr string, board *Board, gatherer prometheus.Gatherer) *Server {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"status":  "healthy",
			"service": "lpad",
		})
	}).Methods("GET")

	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, board.Report())
	}).Methods("GET")

	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	router.Use(loggingMiddleware)

	return &Server{
		addr:   addr,
		router: router,
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	log := logging.Component("status")

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", ln.Addr().String()).Info("Status server listening")
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Status server shutdown error")
		return err
	}
	log.Info("Status server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Component("status").WithError(err).Debug("Failed to write response")
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Component("status").WithFields(logging.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("Request served")
	})
}
