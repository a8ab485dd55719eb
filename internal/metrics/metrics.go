package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lighthouse",
			Subsystem: "verify",
			Name:      "runs_total",
			Help:      "Number of finished lifecycle runs by outcome.",
		}, []string{"outcome"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lighthouse",
			Subsystem: "verify",
			Name:      "run_duration_seconds",
			Help:      "Wall time from build start to cleanup.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"outcome"},
	)
	probeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lighthouse",
			Subsystem: "verify",
			Name:      "probe_attempts_total",
			Help:      "Health check attempts by result (healthy, not_ready, unreachable).",
		}, []string{"result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range []prometheus.Collector{runsTotal, runDuration, probeAttempts} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// ObserveRun records a finished run. No-op until Register has been called.
func ObserveRun(outcome string, d time.Duration) {
	if !regOK.Load() {
		return
	}
	runsTotal.WithLabelValues(outcome).Inc()
	runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveProbe records one health check attempt.
func ObserveProbe(p domain.ProbeResult) {
	if !regOK.Load() {
		return
	}
	probeAttempts.WithLabelValues(ProbeLabel(p)).Inc()
}

// ProbeLabel buckets an attempt for the result label.
func ProbeLabel(p domain.ProbeResult) string {
	switch {
	case p.Healthy():
		return "healthy"
	case p.Reachable():
		return "not_ready"
	default:
		return "unreachable"
	}
}
