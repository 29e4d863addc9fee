package sampler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"vigil-governor/internal/model"
	"vigil-governor/internal/procfs"
)

// perPidQueryLimit bounds concurrent process-table reads so one hung /proc
// read cannot stall the whole refresh.
const perPidQueryLimit = 4

// Tracker is the registry surface the sampler feeds. The sampler never
// decides policy; it only reports readings and disappearances.
type Tracker interface {
	TrackedPIDs() []int32
	RecordReading(pid int32, reading model.MemoryReading)
	MarkGone(pid int32)
	ActiveCount() int
}

// Sampler captures one MemorySample per tick and refreshes per-pid memory
// histories for every tracked process.
type Sampler struct {
	reader  procfs.Reader
	tracker Tracker
	ring    *Ring
	logger  *slog.Logger

	degradedAfter int
	failStreak    int
}

func New(reader procfs.Reader, tracker Tracker, window, degradedAfter int, logger *slog.Logger) *Sampler {
	return &Sampler{
		reader:        reader,
		tracker:       tracker,
		ring:          NewRing(window),
		logger:        logger,
		degradedAfter: degradedAfter,
	}
}

// SampleOnce produces exactly one sample. OS-query failures skip the tick
// and are counted toward the degraded condition; they are never fatal.
func (s *Sampler) SampleOnce(ctx context.Context) (model.MemorySample, bool) {
	self, err := s.reader.ReadSelf(ctx)
	if err != nil {
		s.recordFailure("self memory read failed", err)
		return model.MemorySample{}, false
	}
	sys, err := s.reader.ReadSystem(ctx)
	if err != nil {
		s.recordFailure("system memory read failed", err)
		return model.MemorySample{}, false
	}

	sample := model.MemorySample{
		Timestamp:           time.Now().UTC(),
		HeapUsedBytes:       self.HeapUsedBytes,
		HeapTotalBytes:      self.HeapTotalBytes,
		RSSBytes:            self.RSSBytes,
		SystemTotalBytes:    sys.TotalBytes,
		SystemFreeBytes:     sys.FreeBytes,
		TrackedProcessCount: s.tracker.ActiveCount(),
	}
	s.ring.Append(sample)
	s.failStreak = 0
	return sample, true
}

// RefreshProcessMemory queries resident memory for every tracked pid through
// a bounded worker pool. A pid that no longer resolves is reported gone; the
// registry decides what that means.
func (s *Sampler) RefreshProcessMemory(ctx context.Context) {
	pids := s.tracker.TrackedPIDs()
	if len(pids) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(perPidQueryLimit)

	for _, pid := range pids {
		pid := pid
		g.Go(func() error {
			rss, found, err := s.reader.ReadProcessRSS(gctx, pid)
			switch {
			case err != nil:
				s.logger.Warn("process memory read failed", "pid", pid, "error", err)
			case !found:
				s.tracker.MarkGone(pid)
			default:
				s.tracker.RecordReading(pid, model.MemoryReading{
					Timestamp: time.Now().UTC(),
					RSSBytes:  rss,
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Window returns the current sample window oldest-first.
func (s *Sampler) Window() []model.MemorySample {
	return s.ring.Snapshot()
}

// Last returns the newest sample.
func (s *Sampler) Last() (model.MemorySample, bool) {
	return s.ring.Last()
}

// WindowCapacity returns the configured history window size.
func (s *Sampler) WindowCapacity() int {
	return s.ring.Cap()
}

// Degraded reports whether several consecutive ticks failed to produce any
// reading. The orchestrator treats this as a reason to assume the worst.
func (s *Sampler) Degraded() bool {
	return s.failStreak >= s.degradedAfter
}

func (s *Sampler) recordFailure(msg string, err error) {
	s.failStreak++
	s.logger.Warn(msg, "error", err, "fail_streak", s.failStreak)
	if s.Degraded() {
		s.logger.Error("sampler degraded, no samples for consecutive ticks", "fail_streak", s.failStreak)
	}
}
