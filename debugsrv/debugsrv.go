// Package debugsrv runs an optional loopback HTTP server exposing pprof
// profiles, Prometheus metrics, and a JSON snapshot of run progress. It
// should never be exposed externally.
package debugsrv

import (
	"context"
	"encoding/json"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on http.DefaultServeMux

	"github.com/gorilla/mux"

	metricspkg "github.com/docker/go-metrics"

	"github.com/distribution/bundle-extract/internal/xlog"
	"github.com/distribution/bundle-extract/worker"
)

// SnapshotFunc returns the current progress snapshot. worker.Run's caller
// supplies one backed by the same Stats the run loop is updating.
type SnapshotFunc func() worker.Snapshot

// Server is a debug HTTP server. The zero value is not usable; use New.
type Server struct {
	httpServer *http.Server
}

// New builds a debug server listening on addr, exposing:
//
//   - /debug/pprof/*  - the standard net/http/pprof profiles
//   - /metrics        - Prometheus exposition, via the metricsPath
//   - /debug/progress - the latest worker.Snapshot as JSON
//
// metricsPath is typically the configured Metrics.Path; it defaults to
// "/metrics" when empty.
func New(addr, metricsPath string, snapshot SnapshotFunc) *Server {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	router := mux.NewRouter()
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	router.Handle(metricsPath, metricspkg.Handler())
	router.HandleFunc("/debug/progress", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: router,
		},
	}
}

// Run starts the server and blocks until ctx is canceled, at which point it
// shuts the server down gracefully. It never returns http.ErrServerClosed.
func (s *Server) Run(ctx context.Context) error {
	logger := xlog.From(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", s.httpServer.Addr).Info("debug server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.httpServer.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
