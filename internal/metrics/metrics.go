package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsPath = "/metrics"

// Metrics holds the application's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	Engine   *EngineMetrics
}

// NewMetrics creates a registry and registers every collector on it.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	engineMetrics, err := NewEngineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine metrics: %w", err)
	}

	return &Metrics{registry: registry, Engine: engineMetrics}, nil
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// RegisterHandlers registers the metrics endpoint with mux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle(metricsPath, m.Handler())
}

// Serve exposes /metrics on addr until ctx is done. It returns once the
// listener is bound; serving continues on its own goroutine.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	m.RegisterHandlers(mux)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", ln.Addr().String(), "path", metricsPath)
	return ln.Addr(), nil
}
