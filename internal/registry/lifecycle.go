package registry

import (
	"context"
	"sort"
	"time"

	"vigil-governor/internal/analyzer"
	"vigil-governor/internal/model"
)

// EvalResult summarizes one health sweep over the tracked set.
type EvalResult struct {
	Requested []int32 // terminations requested this sweep
	Reaped    []int32
	Stuck     []int32 // exceeded the attempt bound; surfaced as STUCK_PROCESS
}

// Conditions converts the sweep outcome into named systemic conditions.
func (e EvalResult) Conditions() []model.Condition {
	if len(e.Stuck) == 0 {
		return nil
	}
	return []model.Condition{model.ConditionStuckProcess}
}

// Evaluate checks every Active process against its memory ceiling, uptime
// bound and per-process leak signature, requesting termination when any one
// holds. It then drives pending two-phase terminations forward.
func (r *Registry) Evaluate(ctx context.Context) EvalResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res EvalResult
	now := r.now()

	for _, p := range r.procs {
		if p.state != model.StateActive {
			continue
		}
		ceiling, maxUptime := r.boundsFor(p)
		switch {
		case ceiling > 0 && p.lastRSS() > ceiling:
			r.requestTermination(ctx, p, "memory ceiling exceeded")
			res.Requested = append(res.Requested, p.pid)
		case maxUptime > 0 && now.Sub(p.createdAt) > maxUptime:
			r.requestTermination(ctx, p, "max uptime exceeded")
			res.Requested = append(res.Requested, p.pid)
		case r.historyShowsLeak(p):
			r.requestTermination(ctx, p, "per-process leak signature")
			res.Requested = append(res.Requested, p.pid)
		}
	}

	r.advancePending(ctx, &res)
	return res
}

// Tick only drives pending terminations, without re-evaluating conditions.
func (r *Registry) Tick(ctx context.Context) EvalResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res EvalResult
	r.advancePending(ctx, &res)
	return res
}

// boundsFor resolves the memory ceiling and uptime bound for p, preferring
// per-process limit overrides over the global defaults.
func (r *Registry) boundsFor(p *tracked) (ceiling uint64, maxUptime time.Duration) {
	ceiling = r.cfg.MemoryCeilingBytes
	maxUptime = r.cfg.MaxUptime
	if p.limits.CeilingBytes > 0 {
		ceiling = p.limits.CeilingBytes
	}
	if p.limits.MaxUptime > 0 {
		maxUptime = p.limits.MaxUptime
	}
	return ceiling, maxUptime
}

func (r *Registry) historyShowsLeak(p *tracked) bool {
	if len(p.history) < r.cfg.Analyzer.MinSamples {
		return false
	}
	points := make([]analyzer.Point, len(p.history))
	for i, h := range p.history {
		points[i] = analyzer.Point{T: h.Timestamp, Bytes: h.RSSBytes}
	}
	return analyzer.AnalyzeSeries(r.cfg.Analyzer, points).IsLeak
}

// requestTermination starts the graceful phase. Assumes r.mu is held.
func (r *Registry) requestTermination(ctx context.Context, p *tracked, reason string) {
	if p.state != model.StateActive {
		return
	}
	if !r.advance(p, model.StateTerminationRequested) {
		return
	}
	p.reason = reason
	p.attempts++
	p.graceDeadline = r.now().Add(r.cfg.GracePeriod)
	r.logger.Warn("termination requested", "pid", p.pid, "name", p.meta.Name, "reason", reason, "attempt", p.attempts)
	if err := r.controller.Terminate(ctx, p.pid); err != nil {
		r.logger.Warn("graceful terminate failed", "pid", p.pid, "error", err)
	}
}

// advancePending moves requested terminations through the forced phase once
// their grace deadline passes. Assumes r.mu is held.
func (r *Registry) advancePending(ctx context.Context, res *EvalResult) {
	now := r.now()
	for _, p := range r.procs {
		switch p.state {
		case model.StateTerminationRequested:
			if !r.reader.Alive(ctx, p.pid) {
				r.reapLocked(p, res)
				continue
			}
			if now.After(p.graceDeadline) {
				r.forceKillLocked(ctx, p, res)
			}
		case model.StateForceKillScheduled:
			if !r.reader.Alive(ctx, p.pid) {
				r.reapLocked(p, res)
				continue
			}
			if p.attempts >= r.cfg.MaxAttempts {
				r.logger.Error("process survived maximum termination attempts", "pid", p.pid, "attempts", p.attempts)
				res.Stuck = append(res.Stuck, p.pid)
				continue
			}
			r.forceKillLocked(ctx, p, res)
		}
	}
}

func (r *Registry) forceKillLocked(ctx context.Context, p *tracked, res *EvalResult) {
	r.advance(p, model.StateForceKillScheduled)
	p.attempts++
	r.logger.Warn("force kill", "pid", p.pid, "name", p.meta.Name, "reason", p.reason, "attempt", p.attempts)
	if err := r.controller.Kill(ctx, p.pid); err != nil {
		r.logger.Warn("force kill failed", "pid", p.pid, "error", err)
		return
	}
	if !r.reader.Alive(ctx, p.pid) {
		r.reapLocked(p, res)
	}
}

func (r *Registry) reapLocked(p *tracked, res *EvalResult) {
	r.advance(p, model.StateReaped)
	r.controller.Reap(p.pid)
	res.Reaped = append(res.Reaped, p.pid)
	r.remove(p, p.reason)
}

// EnforceConcurrencyLimit terminates excess Active processes. Victims are
// picked highest memory first, then oldest first.
func (r *Registry) EnforceConcurrencyLimit(ctx context.Context, max int) EvalResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res EvalResult
	active := r.activeLocked()
	if max < 1 || len(active) <= max {
		return res
	}

	sortVictimsFirst(active)
	for _, p := range active[:len(active)-max] {
		r.requestTermination(ctx, p, "concurrency limit exceeded")
		res.Requested = append(res.Requested, p.pid)
	}
	return res
}

// TerminateLargest requests termination of the single Active process with
// the highest resident memory. Returns false if nothing is active.
func (r *Registry) TerminateLargest(ctx context.Context, reason string) (int32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := r.activeLocked()
	if len(active) == 0 {
		return 0, false
	}
	sortVictimsFirst(active)
	victim := active[0]
	r.requestTermination(ctx, victim, reason)
	return victim.pid, true
}

// TerminateAbove requests termination of every Active process whose resident
// memory exceeds floorBytes. Returns the number of requests issued.
func (r *Registry) TerminateAbove(ctx context.Context, floorBytes uint64, reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.activeLocked() {
		if p.lastRSS() > floorBytes {
			r.requestTermination(ctx, p, reason)
			n++
		}
	}
	return n
}

// FastForward skips remaining grace periods during shutdown: every pending
// termination is driven straight to the forced phase.
func (r *Registry) FastForward(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res EvalResult
	for _, p := range r.procs {
		if p.state == model.StateTerminationRequested {
			r.forceKillLocked(ctx, p, &res)
		}
	}
	r.advancePending(ctx, &res)
}

func (r *Registry) activeLocked() []*tracked {
	var out []*tracked
	for _, p := range r.procs {
		if p.state == model.StateActive {
			out = append(out, p)
		}
	}
	return out
}

func sortVictimsFirst(procs []*tracked) {
	sort.Slice(procs, func(i, j int) bool {
		ri, rj := procs[i].lastRSS(), procs[j].lastRSS()
		if ri != rj {
			return ri > rj
		}
		return procs[i].createdAt.Before(procs[j].createdAt)
	})
}
