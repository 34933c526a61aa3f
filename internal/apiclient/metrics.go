package apiclient

import (
	"sync/atomic"
	"time"
)

// Metrics tracks backend call metrics
type Metrics struct {
	calls        int64
	errors       int64
	unauthorized int64
	latency      int64 // Total latency in nanoseconds
}

// Snapshot is a point-in-time copy of Metrics.
type Snapshot struct {
	Calls        int64   `json:"calls"`
	Errors       int64   `json:"errors"`
	Unauthorized int64   `json:"unauthorized"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	ErrorRatePct float64 `json:"error_rate_pct"`
}

func (m *Metrics) record(duration time.Duration, err error) {
	atomic.AddInt64(&m.calls, 1)
	atomic.AddInt64(&m.latency, duration.Nanoseconds())
	if err != nil {
		atomic.AddInt64(&m.errors, 1)
		if IsUnauthorized(err) {
			atomic.AddInt64(&m.unauthorized, 1)
		}
	}
}

// Snapshot returns the current metrics
func (m *Metrics) Snapshot() Snapshot {
	calls := atomic.LoadInt64(&m.calls)
	errs := atomic.LoadInt64(&m.errors)
	s := Snapshot{
		Calls:        calls,
		Errors:       errs,
		Unauthorized: atomic.LoadInt64(&m.unauthorized),
	}
	if calls > 0 {
		s.AvgLatencyMs = float64(atomic.LoadInt64(&m.latency)) / float64(calls) / 1e6
		s.ErrorRatePct = float64(errs) / float64(calls) * 100
	}
	return s
}
