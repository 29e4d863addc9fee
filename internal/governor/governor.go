// Package governor wires the sampler, analyzer, registry and orchestrator
// into one background supervisor and exposes the read-only surface the host
// framework consumes.
package governor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"vigil-governor/internal/analyzer"
	"vigil-governor/internal/config"
	"vigil-governor/internal/model"
	"vigil-governor/internal/orchestrator"
	"vigil-governor/internal/procfs"
	"vigil-governor/internal/registry"
	"vigil-governor/internal/report"
	"vigil-governor/internal/sampler"
)

const bytesPerMB = 1024 * 1024

type Governor struct {
	cfg    config.Config
	logger *slog.Logger

	// mu serializes the tick bodies of all periodic loops: no two loops
	// mutate shared state concurrently.
	mu sync.Mutex

	reader   procfs.Reader
	sampler  *sampler.Sampler
	registry *registry.Registry
	orch     *orchestrator.Orchestrator
	sink     report.Sink
	health   *HealthStatus

	lastTrend model.TrendAnalysis
}

func New(cfg config.Config, logger *slog.Logger) (*Governor, error) {
	policies, err := config.LoadPolicies(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("restart policies: %w", err)
	}

	sink, err := report.NewFileSink(cfg.ReportDir, cfg.NodeID, logger)
	if err != nil {
		return nil, fmt.Errorf("report sink: %w", err)
	}

	reader := procfs.NewOSReader()
	controller := procfs.NewOSController()
	return build(cfg, reader, controller, sink, policies, logger), nil
}

// build assembles a governor from injected collaborators so tests can run
// independent instances against fakes.
func build(cfg config.Config, reader procfs.Reader, controller procfs.Controller, sink report.Sink, policies map[string]model.RestartPolicy, logger *slog.Logger) *Governor {
	acfg := analyzerConfig(cfg)

	reg := registry.New(registry.Config{
		MemoryCeilingBytes: cfg.ProcessMemoryCeilingMB * bytesPerMB,
		MaxUptime:          cfg.ProcessMaxUptime,
		GracePeriod:        cfg.GracePeriod,
		MaxAttempts:        cfg.MaxTerminationAttempts,
		HistorySize:        cfg.ProcessHistorySize,
		Analyzer:           acfg,
	}, controller, reader, logger)

	smp := sampler.New(reader, reg, cfg.HistoryWindow, cfg.DegradedAfterTicks, logger)

	orch := orchestrator.New(orchestrator.Config{
		MaxMemoryBytes:      cfg.MaxMemoryMB * bytesPerMB,
		WarningFraction:     cfg.WarningFraction,
		CriticalFraction:    cfg.CriticalFraction,
		EmergencyFraction:   cfg.EmergencyFraction,
		EmergencyFloorBytes: cfg.EmergencyFloorMB * bytesPerMB,
		AlertCooldown:       cfg.AlertCooldown,
		AlertHistorySize:    cfg.AlertHistorySize,
		EscalationCount:     cfg.EscalationCount,
		EscalationWindow:    cfg.EscalationWindow,
	}, reg, smp, sink, policies, logger)

	return &Governor{
		cfg:      cfg,
		logger:   logger,
		reader:   reader,
		sampler:  smp,
		registry: reg,
		orch:     orch,
		sink:     sink,
		health:   NewHealthStatus(),
	}
}

func analyzerConfig(cfg config.Config) analyzer.Config {
	return analyzer.Config{
		MinSamples:            cfg.MinSamples,
		GrowthThresholdMBMin:  cfg.GrowthThresholdMBMin,
		LeakConfidence:        cfg.LeakConfidence,
		RSquaredFloor:         cfg.RSquaredFloor,
		CriticalRateMBMin:     cfg.CriticalRateMBMin,
		CriticalConsistency:   cfg.CriticalConsistency,
		HighRateMBMin:         cfg.HighRateMBMin,
		HighConsistency:       cfg.HighConsistency,
		MediumRateMBMin:       cfg.MediumRateMBMin,
		CyclicAutocorrelation: cfg.CyclicAutocorrelation,
		LinearGrowthRSquared:  cfg.LinearGrowthRSquared,
	}
}

// RegisterProcess is called by whatever component spawned a worker. A
// restart policy matching the logical name tightens the per-process bounds.
func (g *Governor) RegisterProcess(pid int32, name, command string) {
	var lim registry.Limits
	if pol, ok := g.orch.Policy(name); ok {
		lim.CeilingBytes = pol.MemoryCeilingMB * bytesPerMB
		lim.MaxUptime = pol.MaxUptime
	}
	g.registry.RegisterWithLimits(pid, model.ProcessMeta{Name: name, Command: command}, lim)
}

// UnregisterProcess removes a worker with a recorded reason.
func (g *Governor) UnregisterProcess(pid int32, reason string) {
	g.registry.Untrack(pid, reason)
}

// RegisterCache adds a purgeable cache collaborator for remediation.
func (g *Governor) RegisterCache(c orchestrator.Cache) {
	g.orch.RegisterCache(c)
}

// RestartPolicy returns the configured restart policy for a logical process
// name. The host framework consults it before respawning a worker the
// governor terminated.
func (g *Governor) RestartPolicy(name string) (model.RestartPolicy, bool) {
	return g.orch.Policy(name)
}

// Status returns the last computed governor state. Read-only.
func (g *Governor) Status() model.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

func (g *Governor) statusLocked() model.Status {
	st := model.Status{
		Timestamp:           time.Now().UTC(),
		Trend:               g.lastTrend,
		TrackedProcessCount: g.registry.ActiveCount(),
		RecentAlerts:        g.orch.RecentAlerts(),
		SamplerDegraded:     g.sampler.Degraded(),
		Conditions:          g.orch.Conditions(),
	}
	if last, ok := g.sampler.Last(); ok {
		frac := 0.0
		if g.cfg.MaxMemoryMB > 0 {
			frac = float64(last.HeapUsedBytes) / float64(g.cfg.MaxMemoryMB*bytesPerMB)
		}
		st.SampleSummary = model.SampleSummary{
			Timestamp:           last.Timestamp,
			HeapUsedBytes:       last.HeapUsedBytes,
			RSSBytes:            last.RSSBytes,
			HeapUsedFraction:    frac,
			SystemFreeBytes:     last.SystemFreeBytes,
			TrackedProcessCount: last.TrackedProcessCount,
			WindowSize:          len(g.sampler.Window()),
		}
	}
	return st
}

// ForceCleanup synchronously runs one full remediation pass outside the
// normal schedule, for shutdown or on-demand diagnostics.
func (g *Governor) ForceCleanup(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sample, ok := g.sampler.SampleOnce(ctx)
	if ok {
		g.sampler.RefreshProcessMemory(ctx)
		g.lastTrend = analyzer.Analyze(analyzerConfig(g.cfg), g.sampler.Window())
		g.orch.Evaluate(ctx, sample, g.lastTrend, g.sampler.Degraded())
	}
	res := g.registry.Evaluate(ctx)
	for _, pid := range res.Requested {
		g.orch.RecordProcessAlert(pid)
	}
	g.registry.EnforceConcurrencyLimit(ctx, g.cfg.MaxConcurrent)
	g.registry.FastForward(ctx)
}

// ValidateResourceInvariants asserts zero leaked tracked state, for
// operational tooling after stress scenarios.
func (g *Governor) ValidateResourceInvariants() (bool, []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ok, problems := g.registry.ValidateInvariants(g.cfg.MaxConcurrent)
	if n := len(g.sampler.Window()); n > g.sampler.WindowCapacity() {
		ok = false
		problems = append(problems, fmt.Sprintf("sample window holds %d entries over capacity %d", n, g.sampler.WindowCapacity()))
	}
	if n := len(g.orch.RecentAlerts()); n > g.cfg.AlertHistorySize {
		ok = false
		problems = append(problems, fmt.Sprintf("alert history holds %d entries over cap %d", n, g.cfg.AlertHistorySize))
	}
	return ok, problems
}

// BuildLogger constructs the process logger from config.
func BuildLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, hOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, hOpts))
}
