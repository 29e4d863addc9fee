package procfs

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SelfMemory describes the governor's own process memory.
type SelfMemory struct {
	HeapUsedBytes  uint64
	HeapTotalBytes uint64
	RSSBytes       uint64
}

// SystemMemory describes host-wide memory.
type SystemMemory struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// Reader abstracts the blocking OS memory/process queries so the sampler and
// registry can be exercised against fakes.
type Reader interface {
	// ReadSelf returns the governor's own heap and resident memory.
	ReadSelf(ctx context.Context) (SelfMemory, error)
	// ReadSystem returns host memory totals.
	ReadSystem(ctx context.Context) (SystemMemory, error)
	// ReadProcessRSS returns resident memory for pid. found=false means the
	// pid no longer resolves in the process table; that is not an error.
	ReadProcessRSS(ctx context.Context, pid int32) (rss uint64, found bool, err error)
	// Alive reports whether pid still resolves in the process table.
	Alive(ctx context.Context, pid int32) bool
	// Zombies lists zombie descendants of this process.
	Zombies(ctx context.Context) ([]int32, error)
}

// OSReader is the gopsutil-backed Reader used in production.
type OSReader struct {
	selfPID int32
}

func NewOSReader() *OSReader {
	return &OSReader{selfPID: int32(os.Getpid())}
}

func (r *OSReader) ReadSelf(ctx context.Context) (SelfMemory, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	out := SelfMemory{HeapUsedBytes: ms.HeapAlloc, HeapTotalBytes: ms.HeapSys}

	p, err := process.NewProcessWithContext(ctx, r.selfPID)
	if err != nil {
		return out, fmt.Errorf("open self process %d: %w", r.selfPID, err)
	}
	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return out, fmt.Errorf("read self memory info: %w", err)
	}
	out.RSSBytes = info.RSS
	return out, nil
}

func (r *OSReader) ReadSystem(ctx context.Context) (SystemMemory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SystemMemory{}, fmt.Errorf("read system memory: %w", err)
	}
	return SystemMemory{TotalBytes: vm.Total, FreeBytes: vm.Available}, nil
}

func (r *OSReader) ReadProcessRSS(ctx context.Context, pid int32) (uint64, bool, error) {
	exists, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return 0, false, fmt.Errorf("check pid %d: %w", pid, err)
	}
	if !exists {
		return 0, false, nil
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		// Raced with exit between the existence check and the open.
		return 0, false, nil
	}
	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, true, fmt.Errorf("read memory info for pid %d: %w", pid, err)
	}
	return info.RSS, true, nil
}

func (r *OSReader) Alive(ctx context.Context, pid int32) bool {
	exists, err := process.PidExistsWithContext(ctx, pid)
	return err == nil && exists
}

// Zombies walks the process table for defunct descendants of this process.
// Entries that vanish mid-scan are skipped.
func (r *OSReader) Zombies(ctx context.Context) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var zombies []int32
	for _, p := range procs {
		statuses, err := p.StatusWithContext(ctx)
		if err != nil {
			continue
		}
		if !containsStatus(statuses, process.Zombie) {
			continue
		}
		if r.isDescendant(ctx, p) {
			zombies = append(zombies, p.Pid)
		}
	}
	return zombies, nil
}

func (r *OSReader) isDescendant(ctx context.Context, p *process.Process) bool {
	cur := p
	for i := 0; i < 16; i++ {
		ppid, err := cur.PpidWithContext(ctx)
		if err != nil || ppid <= 0 {
			return false
		}
		if ppid == r.selfPID {
			return true
		}
		parent, err := process.NewProcessWithContext(ctx, ppid)
		if err != nil {
			return false
		}
		cur = parent
	}
	return false
}

func containsStatus(statuses []string, want string) bool {
	for _, s := range statuses {
		if s == want {
			return true
		}
	}
	return false
}
