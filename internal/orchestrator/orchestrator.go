// Package orchestrator evaluates analyzer output and registry state against
// the configured thresholds and drives tiered remediation: log, alert,
// collect, purge, terminate. It only ever terminates tracked workers, never
// the governor's own process.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vigil-governor/internal/model"
)

const bytesPerMB = 1024 * 1024

// Cache is the external cache collaborator. The orchestrator purges it
// during CRITICAL and EMERGENCY remediation without knowing its eviction
// policy.
type Cache interface {
	Name() string
	Purge(ctx context.Context) error
	ApproximateSize() int64
}

// Terminator is the registry surface the orchestrator remediates through.
type Terminator interface {
	TerminateLargest(ctx context.Context, reason string) (int32, bool)
	TerminateAbove(ctx context.Context, floorBytes uint64, reason string) int
}

// Resampler re-reads memory after a remediation stage so the ladder can stop
// as soon as the triggering condition resolves.
type Resampler interface {
	SampleOnce(ctx context.Context) (model.MemorySample, bool)
}

// SnapshotWriter persists an emergency snapshot for postmortem.
type SnapshotWriter interface {
	WriteEmergency(ctx context.Context, sample model.MemorySample, alerts []model.Alert) error
}

type Config struct {
	MaxMemoryBytes      uint64
	WarningFraction     float64
	CriticalFraction    float64
	EmergencyFraction   float64
	EmergencyFloorBytes uint64
	AlertCooldown       time.Duration
	AlertHistorySize    int
	EscalationCount     int
	EscalationWindow    time.Duration
}

type Orchestrator struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	terminator Terminator
	resampler  Resampler
	snapshots  SnapshotWriter
	caches     []Cache
	policies   map[string]model.RestartPolicy

	lastEmit     map[cooldownKey]time.Time
	alerts       []model.Alert
	perPidAlerts map[int32][]time.Time
	degraded     bool
	escalated    bool
}

func New(cfg Config, terminator Terminator, resampler Resampler, snapshots SnapshotWriter, policies map[string]model.RestartPolicy, logger *slog.Logger) *Orchestrator {
	if policies == nil {
		policies = map[string]model.RestartPolicy{}
	}
	return &Orchestrator{
		cfg:          cfg,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		terminator:   terminator,
		resampler:    resampler,
		snapshots:    snapshots,
		policies:     policies,
		lastEmit:     make(map[cooldownKey]time.Time),
		perPidAlerts: make(map[int32][]time.Time),
	}
}

// SetClock overrides the orchestrator clock. Test hook.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// RegisterCache adds a purgeable cache collaborator.
func (o *Orchestrator) RegisterCache(c Cache) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.caches = append(o.caches, c)
}

// Policy returns the restart policy for a logical process name, if any.
func (o *Orchestrator) Policy(name string) (model.RestartPolicy, bool) {
	p, ok := o.policies[name]
	return p, ok
}

// Evaluate runs one alerting/remediation pass over the newest sample and
// trend. It never returns an error: every failure inside remediation is
// logged and absorbed.
func (o *Orchestrator) Evaluate(ctx context.Context, sample model.MemorySample, trend model.TrendAnalysis, samplerDegraded bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.degraded = samplerDegraded
	if samplerDegraded {
		// No trustworthy readings: assume the worst that soft measures cover.
		o.logger.Warn("sampler degraded, applying conservative remediation")
		o.softRemediation(ctx)
		return
	}

	o.evaluateThresholds(ctx, sample)
	o.evaluateLeak(ctx, sample, trend)
}

func (o *Orchestrator) evaluateThresholds(ctx context.Context, sample model.MemorySample) {
	frac := o.usedFraction(sample)
	switch {
	case frac >= o.cfg.EmergencyFraction:
		msg := fmt.Sprintf("memory at %.0f%% of limit", frac*100)
		if _, emitted := o.emit(model.AlertEmergency, "memory_threshold", msg, 0, sample); emitted {
			o.emergencyRemediation(ctx, sample)
		}
	case frac >= o.cfg.CriticalFraction:
		msg := fmt.Sprintf("memory at %.0f%% of limit", frac*100)
		if _, emitted := o.emit(model.AlertCritical, "memory_threshold", msg, 0, sample); emitted {
			o.criticalRemediation(ctx, o.cfg.CriticalFraction)
		}
	case frac >= o.cfg.WarningFraction:
		msg := fmt.Sprintf("memory at %.0f%% of limit", frac*100)
		if _, emitted := o.emit(model.AlertWarning, "memory_threshold", msg, 0, sample); emitted {
			o.softRemediation(ctx)
		}
	}
}

// evaluateLeak remediates sustained growth even when absolute usage is still
// below the warning line: the growth itself is the risk signal.
func (o *Orchestrator) evaluateLeak(ctx context.Context, sample model.MemorySample, trend model.TrendAnalysis) {
	if !trend.Analyzed || !trend.IsLeak {
		return
	}
	if trend.Severity.Rank() < model.SeverityHigh.Rank() {
		return
	}

	msg := fmt.Sprintf("probable leak: %.1f MB/min at %.0f%% consistency (%s)",
		trend.GrowthRateMBMin, trend.GrowthConsistency*100, trend.Severity)
	if _, emitted := o.emit(model.AlertLeak, "leak", msg, 0, sample); !emitted {
		return
	}

	if trend.Severity == model.SeverityCritical {
		o.criticalRemediation(ctx, o.cfg.WarningFraction)
		return
	}
	o.softRemediation(ctx)
	o.purgeCaches(ctx)
}

func (o *Orchestrator) usedFraction(sample model.MemorySample) float64 {
	if o.cfg.MaxMemoryBytes == 0 {
		return 0
	}
	return float64(sample.HeapUsedBytes) / float64(o.cfg.MaxMemoryBytes)
}
