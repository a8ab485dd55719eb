// Package prober decides, by bounded polling, whether a freshly launched
// service answers its health endpoint.
package prober

import (
	"context"
	"log/slog"
	"time"

	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/ports"
	"github.com/melih/lighthouse-verify/internal/metrics"
)

// Prober polls a URL a fixed number of times.
type Prober struct {
	client ports.HTTPGetter
	clock  ports.Clock
	log    *slog.Logger
}

// New creates a Prober. A nil clock means wall-clock time.
func New(client ports.HTTPGetter, clock ports.Clock, log *slog.Logger) *Prober {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Prober{client: client, clock: clock, log: log}
}

// Poll issues one GET per attempt, 1..maxAttempts, and returns as soon as an
// attempt observes exactly 200. Transport failures count as failed attempts.
// If every attempt fails it returns an *domain.UnhealthyError with the trail.
func (p *Prober) Poll(ctx context.Context, url string, maxAttempts int, interval time.Duration) ([]domain.ProbeResult, error) {
	if maxAttempts < 1 {
		return nil, &domain.UnhealthyError{Attempts: maxAttempts}
	}
	trail := make([]domain.ProbeResult, 0, maxAttempts)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result := p.probe(ctx, url, attempt)
		trail = append(trail, result)
		metrics.ObserveProbe(result)

		if result.Healthy() {
			p.log.Info("health check passed", "attempt", attempt, "url", url)
			return trail, nil
		}
		p.log.Warn("health check failed",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"observed", result.Observation(),
		)

		if attempt == maxAttempts {
			break
		}
		if err := p.clock.Sleep(ctx, interval); err != nil {
			return trail, &domain.UnhealthyError{Attempts: maxAttempts, Trail: trail, Cause: err}
		}
	}

	return trail, &domain.UnhealthyError{Attempts: maxAttempts, Trail: trail}
}

func (p *Prober) probe(ctx context.Context, url string, attempt int) domain.ProbeResult {
	result := domain.ProbeResult{Attempt: attempt, Timestamp: p.clock.Now()}
	status, err := p.client.Get(ctx, url)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.StatusCode = status
	return result
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
