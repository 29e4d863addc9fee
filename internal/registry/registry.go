// Package registry owns the authoritative set of tracked worker processes.
// Only the registry mutates process records; other components request
// transitions through its methods.
package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vigil-governor/internal/analyzer"
	"vigil-governor/internal/model"
	"vigil-governor/internal/procfs"
)

const closedRecordCap = 200

type Config struct {
	MemoryCeilingBytes uint64
	MaxUptime          time.Duration
	GracePeriod        time.Duration
	MaxAttempts        int
	HistorySize        int
	Analyzer           analyzer.Config
}

// Limits override the global memory ceiling and uptime bound for one tracked
// process. Zero values fall back to the Config defaults.
type Limits struct {
	CeilingBytes uint64
	MaxUptime    time.Duration
}

type tracked struct {
	pid           int32
	meta          model.ProcessMeta
	limits        Limits
	createdAt     time.Time
	lastSeenAt    time.Time
	history       []model.MemoryReading
	attempts      int
	state         model.ProcessState
	graceDeadline time.Time
	reason        string
}

func (t *tracked) lastRSS() uint64 {
	if len(t.history) == 0 {
		return 0
	}
	return t.history[len(t.history)-1].RSSBytes
}

type Registry struct {
	mu         sync.Mutex
	cfg        Config
	controller procfs.Controller
	reader     procfs.Reader
	logger     *slog.Logger
	now        func() time.Time

	procs     map[int32]*tracked
	closed    []model.ClosedProcessRecord
	regressed bool
}

func New(cfg Config, controller procfs.Controller, reader procfs.Reader, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:        cfg,
		controller: controller,
		reader:     reader,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		procs:      make(map[int32]*tracked),
	}
}

// SetClock overrides the registry clock. Test hook.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Register adds pid as Active with the default limits. Registering a pid
// that is already tracked only refreshes its last-seen time.
func (r *Registry) Register(pid int32, meta model.ProcessMeta) {
	r.RegisterWithLimits(pid, meta, Limits{})
}

// RegisterWithLimits adds pid as Active with per-process bound overrides.
func (r *Registry) RegisterWithLimits(pid int32, meta model.ProcessMeta, lim Limits) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.procs[pid]; ok {
		p.lastSeenAt = r.now()
		return
	}
	t := r.now()
	r.procs[pid] = &tracked{
		pid:        pid,
		meta:       meta,
		limits:     lim,
		createdAt:  t,
		lastSeenAt: t,
		state:      model.StateActive,
	}
	r.logger.Info("process registered", "pid", pid, "name", meta.Name, "command", meta.Command)
}

// Untrack removes pid, appending a closed lifecycle record with its computed
// lifetime and dropping its memory history. Idempotent: a second call for
// the same pid is a no-op.
func (r *Registry) Untrack(pid int32, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[pid]
	if !ok {
		return
	}
	r.remove(p, reason)
}

// remove assumes r.mu is held.
func (r *Registry) remove(p *tracked, reason string) {
	t := r.now()
	rec := model.ClosedProcessRecord{
		PID:      p.pid,
		Name:     p.meta.Name,
		Reason:   reason,
		Lifetime: t.Sub(p.createdAt),
		ClosedAt: t,
	}
	r.closed = append(r.closed, rec)
	if len(r.closed) > closedRecordCap {
		r.closed = r.closed[len(r.closed)-closedRecordCap:]
	}
	p.history = nil
	delete(r.procs, p.pid)
	r.logger.Info("process untracked", "pid", p.pid, "name", p.meta.Name, "reason", reason, "lifetime", rec.Lifetime)
}

// advance moves p forward in the lifecycle. Regressions are refused and
// flagged; they would indicate a registry bug.
func (r *Registry) advance(p *tracked, to model.ProcessState) bool {
	if to < p.state {
		r.regressed = true
		r.logger.Error("refused process state regression", "pid", p.pid, "from", p.state.String(), "to", to.String())
		return false
	}
	p.state = to
	return true
}

// Tracker surface consumed by the sampler.

func (r *Registry) TrackedPIDs() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int32, 0, len(r.procs))
	for pid := range r.procs {
		out = append(out, pid)
	}
	return out
}

func (r *Registry) RecordReading(pid int32, reading model.MemoryReading) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[pid]
	if !ok {
		return
	}
	p.lastSeenAt = reading.Timestamp
	p.history = append(p.history, reading)
	if len(p.history) > r.cfg.HistorySize {
		p.history = p.history[len(p.history)-r.cfg.HistorySize:]
	}
}

// MarkGone records that pid no longer resolves in the process table. That is
// evidence of exit, so the record is closed out.
func (r *Registry) MarkGone(pid int32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[pid]
	if !ok {
		return
	}
	reason := "exited"
	if p.state != model.StateActive {
		reason = p.reason
	}
	r.advance(p, model.StateReaped)
	r.remove(p, reason)
}

func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeCountLocked()
}

func (r *Registry) activeCountLocked() int {
	n := 0
	for _, p := range r.procs {
		if p.state == model.StateActive {
			n++
		}
	}
	return n
}

// Snapshot returns read-only views of every tracked process.
func (r *Registry) Snapshot() []model.ProcessInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.ProcessInfo, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, model.ProcessInfo{
			PID:                 p.pid,
			Name:                p.meta.Name,
			Command:             p.meta.Command,
			State:               p.state,
			StateName:           p.state.String(),
			CreatedAt:           p.createdAt,
			LastSeenAt:          p.lastSeenAt,
			LastRSSBytes:        p.lastRSS(),
			TerminationAttempts: p.attempts,
		})
	}
	return out
}

// ClosedRecords returns the capped history of closed lifecycles.
func (r *Registry) ClosedRecords() []model.ClosedProcessRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ClosedProcessRecord(nil), r.closed...)
}

// ValidateInvariants checks for leaked tracked state. Used by operational
// tooling after stress scenarios.
func (r *Registry) ValidateInvariants(maxActive int) (bool, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var problems []string
	if r.regressed {
		problems = append(problems, "process state regression was attempted")
	}
	if n := r.activeCountLocked(); maxActive > 0 && n > maxActive {
		problems = append(problems, fmt.Sprintf("%d active processes exceed ceiling %d", n, maxActive))
	}
	for _, p := range r.procs {
		if p.state == model.StateReaped {
			problems = append(problems, fmt.Sprintf("pid %d is reaped but still tracked", p.pid))
		}
		if len(p.history) > r.cfg.HistorySize {
			problems = append(problems, fmt.Sprintf("pid %d history exceeds bound", p.pid))
		}
	}
	return len(problems) == 0, problems
}
