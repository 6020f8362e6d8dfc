package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/gearbox/internal/config"
	"github.com/watzon/gearbox/internal/metrics"
	"github.com/watzon/gearbox/internal/platform"
	"github.com/watzon/gearbox/internal/storage"
)

// Server is the admin HTTP surface: /healthz, /metrics and /ws/feed.
type Server struct {
	monitor *Monitor
	feed    *Feed
	httd    *http.Server
}

// NewServer wires the monitor and feed into an HTTP server listening on the
// configured address.
func NewServer(cfg *config.DiagnosticsConfig, monitor *Monitor, feed *Feed) *Server {
	s := &Server{monitor: monitor, feed: feed}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/ws/feed", feed)

	s.httd = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
	}
	return s
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.httd.Addr).Msg("admin server listening")
		if err := s.httd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("admin server error")
		}
	}()
}

// Shutdown stops the server and disconnects feed clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.feed.Close()
	return s.httd.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !s.monitor.Healthy() {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"healthy": status == http.StatusOK,
		"checks":  s.monitor.Results(),
	})
}

// StoreCheck probes the document store by writing a small document
// synchronously.
func StoreCheck(store *storage.Store) Check {
	return CheckFunc{
		CheckName: "document_store",
		Fn: func(ctx context.Context) error {
			return store.WriteJSONSync("healthcheck.json", map[string]any{
				"checked_at": time.Now(),
			})
		},
	}
}

// GatewayCheck fails when the gateway heartbeat latency exceeds the limit.
// A zero latency means the session never completed a heartbeat.
func GatewayCheck(session platform.Session, maxLatency time.Duration) Check {
	return CheckFunc{
		CheckName: "gateway",
		Fn: func(ctx context.Context) error {
			latency := session.Latency()
			if latency <= 0 {
				return errors.New("gateway heartbeat not established")
			}
			if latency > maxLatency {
				return fmt.Errorf("gateway latency %s exceeds %s", latency, maxLatency)
			}
			return nil
		},
	}
}
