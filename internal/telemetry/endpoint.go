package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/logging"
)

// Endpoint serves the Prometheus metrics over HTTP.
type Endpoint struct {
	server *http.Server
	log    *slog.Logger
}

// NewEndpoint creates a metrics endpoint for the given settings and
// metrics. Returns nil when telemetry is disabled.
func NewEndpoint(settings *conf.TelemetrySettings, metrics *Metrics) *Endpoint {
	if !settings.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	return &Endpoint{
		server: &http.Server{
			Addr:         settings.Listen,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		log: logging.ForService("telemetry"),
	}
}

// Start begins serving metrics in the background.
func (e *Endpoint) Start() {
	go func() {
		e.log.Info("telemetry endpoint listening", "addr", e.server.Addr)
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("telemetry endpoint failed", "error", err)
		}
	}()
}

// Stop shuts the endpoint down, bounded by the given context.
func (e *Endpoint) Stop(ctx context.Context) {
	if err := e.server.Shutdown(ctx); err != nil {
		e.log.Warn("telemetry endpoint shutdown", "error", err)
	}
}
