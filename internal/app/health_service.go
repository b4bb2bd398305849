package app

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sunrised/internal/clock"
	"github.com/dokzlo13/sunrised/internal/config"
	"github.com/dokzlo13/sunrised/internal/sequencer"
	"github.com/dokzlo13/sunrised/internal/sunrise"
	"github.com/dokzlo13/sunrised/internal/syncsvc"
)

// LoopView is the part of the sequencer the HTTP surface reads and drives.
type LoopView interface {
	Status() sequencer.Status
	RequestSync(ctx context.Context) (syncsvc.Result, error)
}

// ConfigView exposes the active sunrise config.
type ConfigView interface {
	Current() sunrise.Config
}

// HealthService provides HTTP health check, status and metrics endpoints.
type HealthService struct {
	cfg      *config.Config
	loop     LoopView
	store    ConfigView
	clock    clock.Clock
	registry prometheus.Gatherer
	server   *http.Server
}

// NewHealthService creates a new HealthService.
func NewHealthService(
	cfg *config.Config,
	loop LoopView,
	store ConfigView,
	clk clock.Clock,
	registry prometheus.Gatherer,
) *HealthService {
	return &HealthService{
		cfg:      cfg,
		loop:     loop,
		store:    store,
		clock:    clk,
		registry: registry,
	}
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

// Handler builds the HTTP routes.
func (s *HealthService) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Ready once the loop has booted
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if s.loop.Status().BootedAt.IsZero() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "booting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/sync", s.handleSync)

	if s.cfg.Metrics.Enabled && s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return mux
}

type statusResponse struct {
	Status sequencer.Status `json:"status"`
	Config map[string]any   `json:"config"`
	Clock  time.Time        `json:"clock"`
}

func (s *HealthService) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status: s.loop.Status(),
		Config: sunrise.Fields(s.store.Current()),
		Clock:  s.clock.Now(),
	})
}

func (s *HealthService) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	res, err := s.loop.RequestSync(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HealthService) run(ctx context.Context) {
	addr := s.cfg.Healthcheck.Addr()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
