package worker

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthServer is a tiny HTTP server exposing /healthz (always 200 once
// running) and /readyz (200 only after the cron scheduler is armed).
type HealthServer struct {
	addr   string
	logger *slog.Logger
	srv    *http.Server
	ready  atomic.Bool
}

// NewHealthServer builds a HealthServer listening on addr.
func NewHealthServer(addr string, logger *slog.Logger) *HealthServer {
	h := &HealthServer{addr: addr, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/readyz", h.handleReadyz)

	h.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

// SetReady flips the readiness flag returned by /readyz.
func (h *HealthServer) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Start runs the HTTP server until ctx is cancelled.
func (h *HealthServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = h.srv.Close()
	}()
	return h.srv.ListenAndServe()
}

func (h *HealthServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *HealthServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
