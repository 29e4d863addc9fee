package governor

import (
	"sync/atomic"
	"time"
)

type HealthStatus struct {
	sinkHealthy  atomic.Bool
	lastSampleAt atomic.Int64
	lastSweepAt  atomic.Int64
}

func NewHealthStatus() *HealthStatus {
	h := &HealthStatus{}
	h.sinkHealthy.Store(false)
	return h
}

func (h *HealthStatus) SetSinkHealthy(ok bool) {
	h.sinkHealthy.Store(ok)
}

func (h *HealthStatus) MarkSample(ts time.Time) {
	h.lastSampleAt.Store(ts.UnixNano())
}

func (h *HealthStatus) MarkSweep(ts time.Time) {
	h.lastSweepAt.Store(ts.UnixNano())
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"sink_healthy": h.sinkHealthy.Load(),
	}
	if v := h.lastSampleAt.Load(); v > 0 {
		out["last_sample_at"] = time.Unix(0, v).UTC()
	}
	if v := h.lastSweepAt.Load(); v > 0 {
		out["last_sweep_at"] = time.Unix(0, v).UTC()
	}
	return out
}
