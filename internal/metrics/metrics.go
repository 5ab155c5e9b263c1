// Package metrics exposes Prometheus instrumentation for the detection
// pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modsentry/internal/schema"
)

// Collector implements the engine's metrics hook over a Prometheus
// registry.
type Collector struct {
	registry *prometheus.Registry

	eventsProcessed  *prometheus.CounterVec
	punishments      *prometheus.CounterVec
	panicActivations prometheus.Counter
	raidsDetected    *prometheus.CounterVec
	storeFailures    *prometheus.CounterVec
	executorFailures *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		eventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modsentry",
			Name:      "events_processed_total",
			Help:      "Platform events handled by the engine.",
		}, []string{"type"}),
		punishments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modsentry",
			Name:      "punishments_total",
			Help:      "Auto-punishments issued, by action.",
		}, []string{"action"}),
		panicActivations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "modsentry",
			Name:      "panic_activations_total",
			Help:      "Times a community entered panic mode.",
		}),
		raidsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modsentry",
			Name:      "raids_detected_total",
			Help:      "Raid signatures at medium level or above.",
		}, []string{"level"}),
		storeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modsentry",
			Name:      "store_failures_total",
			Help:      "Failed store calls, by operation.",
		}, []string{"op"}),
		executorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modsentry",
			Name:      "executor_failures_total",
			Help:      "Failed platform executor calls, by action.",
		}, []string{"action"}),
	}
}

func (c *Collector) EventProcessed(eventType string) {
	c.eventsProcessed.WithLabelValues(eventType).Inc()
}

func (c *Collector) PunishmentIssued(action schema.ActionType) {
	c.punishments.WithLabelValues(string(action)).Inc()
}

func (c *Collector) PanicActivated() {
	c.panicActivations.Inc()
}

func (c *Collector) RaidDetected(level schema.Level) {
	c.raidsDetected.WithLabelValues(string(level)).Inc()
}

func (c *Collector) StoreFailure(op string) {
	c.storeFailures.WithLabelValues(op).Inc()
}

func (c *Collector) ExecutorFailure(action schema.ActionType) {
	c.executorFailures.WithLabelValues(string(action)).Inc()
}

// Handler returns the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve runs the scrape endpoint until the context is canceled.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
