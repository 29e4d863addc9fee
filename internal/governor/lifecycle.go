package governor

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vigil-governor/internal/analyzer"
	"vigil-governor/internal/report"
)

// Run starts all periodic loops and blocks until ctx is cancelled or a
// shutdown signal arrives. A second signal or an expired grace timer forces
// immediate shutdown.
func (g *Governor) Run(ctx context.Context) error {
	g.logger.Info("starting vigil-governor", "node_id", g.cfg.NodeID, "sample_interval", g.cfg.SampleInterval)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- g.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
		// Loops ended on their own (parent ctx cancelled or runtime error).
	case sig := <-sigCh:
		g.logger.Info("shutdown signal received", "signal", sig.String(), "timeout", g.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(g.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			g.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			g.logger.Warn("graceful shutdown timeout reached", "timeout", g.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), g.cfg.ShutdownTimeout)
	defer cancelShutdown()
	g.shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	g.logger.Info("vigil-governor stopped")
	return nil
}

func (g *Governor) run(ctx context.Context) error {
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.runSampleLoop(gctx)
	})
	eg.Go(func() error {
		return g.runSweepLoop(gctx)
	})
	eg.Go(func() error {
		return g.runReportLoop(gctx)
	})
	eg.Go(func() error {
		return g.runZombieLoop(gctx)
	})
	eg.Go(func() error {
		return g.runProbeListener(gctx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runSampleLoop is the main monitoring cycle: sample, refresh per-pid
// histories, analyze the window, evaluate thresholds.
func (g *Governor) runSampleLoop(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.SampleInterval)
	defer ticker.Stop()

	g.sampleTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.sampleTick(ctx)
		}
	}
}

func (g *Governor) sampleTick(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sample, ok := g.sampler.SampleOnce(ctx)
	if ok {
		g.health.MarkSample(sample.Timestamp)
	}
	g.sampler.RefreshProcessMemory(ctx)

	g.lastTrend = analyzer.Analyze(analyzerConfig(g.cfg), g.sampler.Window())
	if ok || g.sampler.Degraded() {
		g.orch.Evaluate(ctx, sample, g.lastTrend, g.sampler.Degraded())
	}
}

// runSweepLoop drives the registry: per-process health evaluation, pending
// two-phase kills, and the concurrency ceiling.
func (g *Governor) runSweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.sweepTick(ctx)
		}
	}
}

func (g *Governor) sweepTick(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res := g.registry.Evaluate(ctx)
	for _, pid := range res.Requested {
		g.orch.RecordProcessAlert(pid)
	}
	for _, pid := range res.Stuck {
		g.logger.Error("stuck process surfaced", "pid", pid, "condition", "STUCK_PROCESS")
	}
	limited := g.registry.EnforceConcurrencyLimit(ctx, g.cfg.MaxConcurrent)
	for _, pid := range limited.Requested {
		g.orch.RecordProcessAlert(pid)
	}
	g.health.MarkSweep(time.Now().UTC())
}

func (g *Governor) runReportLoop(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			frame := report.NewStatusFrame(g.cfg.NodeID, g.Status())
			if err := g.sink.WriteStatus(ctx, frame); err != nil {
				g.logger.Warn("status report write failed", "error", err)
				g.health.SetSinkHealthy(false)
				continue
			}
			g.health.SetSinkHealthy(true)
			g.logger.Debug("status report written", "health", g.health.Snapshot())
		}
	}
}

func (g *Governor) runZombieLoop(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.ZombieInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := g.registry.SweepZombies(ctx); n > 0 {
				g.logger.Info("zombie sweep complete", "reaped", n)
			}
		}
	}
}

// shutdown fast-forwards pending kills and flushes the final report.
func (g *Governor) shutdown(ctx context.Context) {
	g.mu.Lock()
	g.registry.FastForward(ctx)

	frame := report.ShutdownFrame{
		NodeID:           g.cfg.NodeID,
		TimestampUnix:    time.Now().UTC().Unix(),
		FinalStatus:      g.statusLocked(),
		ClosedProcesses:  g.registry.ClosedRecords(),
		TrackedRemaining: g.registry.Snapshot(),
	}
	g.mu.Unlock()

	if err := g.sink.WriteShutdown(ctx, frame); err != nil {
		g.logger.Warn("shutdown report write failed", "error", err)
	}
	if err := g.sink.Close(ctx); err != nil {
		g.logger.Warn("report sink close failed", "error", err)
	}
	g.health.SetSinkHealthy(false)
}
