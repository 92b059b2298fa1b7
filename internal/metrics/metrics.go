// Package metrics exposes Prometheus metrics for certscan lookups and transfers.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK         = "ok"
	OutcomeEmpty      = "empty"
	OutcomeHTTPStatus = "http_status"
	OutcomeTransport  = "transport"
	OutcomeNotFound   = "not_found"
	OutcomeFailed     = "failed"
)

// Metrics holds the collectors registered on one private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	LookupsTotal   *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec
	TransfersTotal *prometheus.CounterVec
	ScanProgress   *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	buckets := []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30}

	return &Metrics{
		registry: registry,
		LookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certscan_lookups_total",
				Help: "Certificate lookups against the discovery service",
			},
			[]string{"op", "outcome"},
		),
		LookupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "certscan_lookup_duration_seconds",
				Help:    "Time spent on one certificate lookup",
				Buckets: buckets,
			},
			[]string{"op"},
		),
		TransfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certscan_zone_transfers_total",
				Help: "Zone transfer attempts by outcome",
			},
			[]string{"outcome"},
		),
		ScanProgress: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "certscan_scan_progress",
				Help: "Last reported progress percentage of a running scan",
			},
			[]string{"kind"},
		),
	}
}

// ObserveLookup records one finished lookup.
func (m *Metrics) ObserveLookup(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(op, outcome).Inc()
	m.LookupDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveTransfer records one zone transfer attempt.
func (m *Metrics) ObserveTransfer(outcome string) {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues(outcome).Inc()
}

// SetProgress records the last progress value of a scan kind.
func (m *Metrics) SetProgress(kind string, pct int) {
	if m == nil {
		return
	}
	m.ScanProgress.WithLabelValues(kind).Set(float64(pct))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}
