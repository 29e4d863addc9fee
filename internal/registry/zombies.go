package registry

import "context"

// SweepZombies force-reaps defunct descendants found in the process table.
// Zombies need not be tracked; entries that disappear mid-sweep are fine.
func (r *Registry) SweepZombies(ctx context.Context) int {
	pids, err := r.reader.Zombies(ctx)
	if err != nil {
		r.logger.Warn("zombie scan failed", "error", err)
		return 0
	}
	for _, pid := range pids {
		if err := r.controller.Kill(ctx, pid); err != nil {
			r.logger.Debug("zombie kill failed", "pid", pid, "error", err)
		}
		r.controller.Reap(pid)
		r.logger.Info("zombie reaped", "pid", pid)
	}
	return len(pids)
}
