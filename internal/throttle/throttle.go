// Package throttle enforces the minimum interval between outbound requests
package throttle

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"xapi/pkg/telemetry"
)

// DefaultInterval is the platform's minimum spacing between requests
const DefaultInterval = 200 * time.Millisecond

// Throttle releases at most one caller per interval
type Throttle struct {
	interval time.Duration
	limiter  *rate.Limiter

	mu   sync.Mutex
	last time.Time

	waitHist metric.Float64Histogram
}

// New creates a throttle; a non-positive interval disables pacing
func New(interval time.Duration) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
		waitHist: telemetry.GetGlobalMetrics().ThrottleWait,
	}
}

// Interval returns the configured minimum spacing
func (t *Throttle) Interval() time.Duration { return t.interval }

// Wait blocks until the interval since the previous release has elapsed or ctx is done
func (t *Throttle) Wait(ctx context.Context) error {
	start := time.Now()
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	now := time.Now()
	t.mu.Lock()
	t.last = now
	t.mu.Unlock()

	t.waitHist.Record(ctx, float64(now.Sub(start).Microseconds())/1000)
	return nil
}

// Last returns the time of the most recent release
func (t *Throttle) Last() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
