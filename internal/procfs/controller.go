package procfs

import (
	"context"
	"errors"
	"fmt"
	"syscall"
)

// Controller sends termination signals. Signalling a pid that is already
// gone is success: the goal state is "process not running".
type Controller interface {
	// Terminate requests a graceful exit (SIGTERM).
	Terminate(ctx context.Context, pid int32) error
	// Kill forces an exit (SIGKILL).
	Kill(ctx context.Context, pid int32) error
	// Reap collects the exit status of a defunct child if there is one.
	Reap(pid int32)
}

// OSController signals real processes.
type OSController struct{}

func NewOSController() *OSController {
	return &OSController{}
}

func (c *OSController) Terminate(ctx context.Context, pid int32) error {
	return signalPid(pid, syscall.SIGTERM)
}

func (c *OSController) Kill(ctx context.Context, pid int32) error {
	return signalPid(pid, syscall.SIGKILL)
}

// Reap performs a non-blocking wait so a zombie child's process-table entry
// is released. Errors are expected when pid is not our child and are ignored.
func (c *OSController) Reap(pid int32) {
	var ws syscall.WaitStatus
	_, _ = syscall.Wait4(int(pid), &ws, syscall.WNOHANG, nil)
}

func signalPid(pid int32, sig syscall.Signal) error {
	err := syscall.Kill(int(pid), sig)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return fmt.Errorf("signal pid %d with %s: %w", pid, sig, err)
}
