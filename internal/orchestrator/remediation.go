package orchestrator

import (
	"context"
	"runtime"
	"runtime/debug"

	"vigil-governor/internal/model"
)

// Actions are ordered least to most disruptive, and each ladder stops as
// soon as a re-sampled reading shows the triggering condition resolved.

// softRemediation requests a collection and advises cache purges without
// forcing anything.
func (o *Orchestrator) softRemediation(ctx context.Context) {
	runtime.GC()
	for _, c := range o.caches {
		o.logger.Info("cache purge advised", "cache", c.Name(), "approximate_size", c.ApproximateSize())
	}
}

// criticalRemediation forces collection, purges caches, then terminates the
// single largest tracked process if memory is still above resolveFraction.
func (o *Orchestrator) criticalRemediation(ctx context.Context, resolveFraction float64) {
	runtime.GC()
	debug.FreeOSMemory()
	o.purgeCaches(ctx)

	if o.resolvedBelow(ctx, resolveFraction) {
		o.logger.Info("remediation resolved after cache purge")
		return
	}
	if pid, ok := o.terminator.TerminateLargest(ctx, "critical memory pressure"); ok {
		o.logger.Warn("terminated largest tracked process", "pid", pid)
	}
}

// emergencyRemediation is the circuit breaker: repeated forced collections,
// purge of every registered cache, termination of all processes above the
// emergency floor, and a persisted snapshot for postmortem.
func (o *Orchestrator) emergencyRemediation(ctx context.Context, sample model.MemorySample) {
	for i := 0; i < 3; i++ {
		runtime.GC()
		debug.FreeOSMemory()
		if o.resolvedBelow(ctx, o.cfg.CriticalFraction) {
			o.logger.Info("emergency resolved after forced collection", "cycles", i+1)
			o.persistEmergency(ctx, sample)
			return
		}
	}
	o.purgeCaches(ctx)
	if !o.resolvedBelow(ctx, o.cfg.CriticalFraction) {
		n := o.terminator.TerminateAbove(ctx, o.cfg.EmergencyFloorBytes, "emergency memory pressure")
		o.logger.Error("emergency remediation terminated processes", "count", n)
	}
	o.persistEmergency(ctx, sample)
}

func (o *Orchestrator) purgeCaches(ctx context.Context) {
	for _, c := range o.caches {
		size := c.ApproximateSize()
		if err := c.Purge(ctx); err != nil {
			o.logger.Warn("cache purge failed", "cache", c.Name(), "error", err)
			continue
		}
		o.logger.Info("cache purged", "cache", c.Name(), "approximate_size_before", size)
	}
}

// resolvedBelow re-samples and reports whether heap usage dropped under the
// given fraction of the limit. A failed re-sample counts as unresolved.
func (o *Orchestrator) resolvedBelow(ctx context.Context, fraction float64) bool {
	fresh, ok := o.resampler.SampleOnce(ctx)
	if !ok {
		return false
	}
	return o.usedFraction(fresh) < fraction
}

func (o *Orchestrator) persistEmergency(ctx context.Context, sample model.MemorySample) {
	if o.snapshots == nil {
		return
	}
	if err := o.snapshots.WriteEmergency(ctx, sample, append([]model.Alert(nil), o.alerts...)); err != nil {
		o.logger.Warn("emergency snapshot write failed", "error", err)
	}
}
