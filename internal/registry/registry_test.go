package registry

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil-governor/internal/analyzer"
	"vigil-governor/internal/model"
	"vigil-governor/internal/procfs"
)

type fakeProcTable struct {
	mu      sync.Mutex
	alive   map[int32]bool
	rss     map[int32]uint64
	zombies []int32

	terms     []int32
	kills     []int32
	reaps     []int32
	dieOnTerm map[int32]bool
	dieOnKill map[int32]bool
}

func newFakeProcTable() *fakeProcTable {
	return &fakeProcTable{
		alive:     map[int32]bool{},
		rss:       map[int32]uint64{},
		dieOnTerm: map[int32]bool{},
		dieOnKill: map[int32]bool{},
	}
}

func (f *fakeProcTable) spawn(pid int32, rss uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive[pid] = true
	f.rss[pid] = rss
	f.dieOnKill[pid] = true
}

// procfs.Reader

func (f *fakeProcTable) ReadSelf(ctx context.Context) (procfs.SelfMemory, error) {
	return procfs.SelfMemory{}, nil
}

func (f *fakeProcTable) ReadSystem(ctx context.Context) (procfs.SystemMemory, error) {
	return procfs.SystemMemory{}, nil
}

func (f *fakeProcTable) ReadProcessRSS(ctx context.Context, pid int32) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive[pid] {
		return 0, false, nil
	}
	return f.rss[pid], true, nil
}

func (f *fakeProcTable) Alive(ctx context.Context, pid int32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func (f *fakeProcTable) Zombies(ctx context.Context) ([]int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int32(nil), f.zombies...), nil
}

// procfs.Controller

func (f *fakeProcTable) Terminate(ctx context.Context, pid int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terms = append(f.terms, pid)
	if f.dieOnTerm[pid] {
		f.alive[pid] = false
	}
	return nil
}

func (f *fakeProcTable) Kill(ctx context.Context, pid int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills = append(f.kills, pid)
	if f.dieOnKill[pid] {
		f.alive[pid] = false
	}
	return nil
}

func (f *fakeProcTable) Reap(pid int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reaps = append(f.reaps, pid)
}

func testRegistryConfig() Config {
	return Config{
		MemoryCeilingBytes: 1024 * 1024 * 1024,
		MaxUptime:          4 * time.Hour,
		GracePeriod:        5 * time.Second,
		MaxAttempts:        3,
		HistorySize:        20,
		Analyzer: analyzer.Config{
			MinSamples:           5,
			GrowthThresholdMBMin: 10,
			LeakConfidence:       0.75,
			RSquaredFloor:        0.5,
			CriticalRateMBMin:    100,
			CriticalConsistency:  0.9,
			HighRateMBMin:        50,
			HighConsistency:      0.8,
			MediumRateMBMin:      10,
		},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRegistry(table *fakeProcTable) (*Registry, *clock) {
	r := New(testRegistryConfig(), table, table, discard())
	c := newClock()
	r.SetClock(c.now)
	return r, c
}

func feed(r *Registry, c *clock, pid int32, rss uint64) {
	r.RecordReading(pid, model.MemoryReading{Timestamp: c.now(), RSSBytes: rss})
}

func stateOf(t *testing.T, r *Registry, pid int32) (model.ProcessState, bool) {
	t.Helper()
	for _, p := range r.Snapshot() {
		if p.PID == pid {
			return p.State, true
		}
	}
	return 0, false
}

func TestRegisterIsIdempotent(t *testing.T) {
	table := newFakeProcTable()
	table.spawn(42, 100)
	r, c := newTestRegistry(table)

	r.Register(42, model.ProcessMeta{Name: "worker", Command: "worker --run"})
	c.advance(time.Minute)
	r.Register(42, model.ProcessMeta{Name: "worker", Command: "worker --run"})

	infos := r.Snapshot()
	require.Len(t, infos, 1)
	assert.Equal(t, c.now(), infos[0].LastSeenAt)
	assert.True(t, infos[0].LastSeenAt.After(infos[0].CreatedAt))
}

func TestStateIsMonotonicThroughTwoPhaseKill(t *testing.T) {
	table := newFakeProcTable()
	table.spawn(7, 100)
	table.dieOnTerm[7] = false // ignores SIGTERM
	r, c := newTestRegistry(table)
	ctx := context.Background()

	r.Register(7, model.ProcessMeta{Name: "stubborn"})
	observed := []model.ProcessState{}
	if st, ok := stateOf(t, r, 7); ok {
		observed = append(observed, st)
	}

	// Over the memory ceiling: termination is requested.
	feed(r, c, 7, 2*1024*1024*1024)
	res := r.Evaluate(ctx)
	require.Equal(t, []int32{7}, res.Requested)
	if st, ok := stateOf(t, r, 7); ok {
		observed = append(observed, st)
	}
	assert.Equal(t, []int32{7}, table.terms)

	// Grace period expires with the process still alive: forced kill.
	c.advance(6 * time.Second)
	res = r.Tick(ctx)
	assert.Equal(t, []int32{7}, res.Reaped)
	assert.Equal(t, []int32{7}, table.kills)

	// Observed states never regress.
	for i := 1; i < len(observed); i++ {
		assert.GreaterOrEqual(t, observed[i], observed[i-1])
	}
	assert.Empty(t, r.Snapshot())

	records := r.ClosedRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "memory ceiling exceeded", records[0].Reason)
}

func TestGracefulExitSkipsForcedKill(t *testing.T) {
	table := newFakeProcTable()
	table.spawn(8, 100)
	table.dieOnTerm[8] = true
	r, c := newTestRegistry(table)
	ctx := context.Background()

	r.Register(8, model.ProcessMeta{Name: "polite"})
	c.advance(5 * time.Hour) // over max uptime
	res := r.Evaluate(ctx)
	require.Equal(t, []int32{8}, res.Requested)
	// The process exited on SIGTERM, so the same sweep confirms the reap
	// without ever scheduling a forced kill.
	assert.Equal(t, []int32{8}, res.Reaped)
	assert.Empty(t, table.kills)
}

func TestPerProcessLeakSignatureTriggersTermination(t *testing.T) {
	table := newFakeProcTable()
	table.spawn(9, 100)
	r, c := newTestRegistry(table)
	ctx := context.Background()

	r.Register(9, model.ProcessMeta{Name: "leaky"})
	rss := uint64(100 * 1024 * 1024)
	for i := 0; i < 8; i++ {
		feed(r, c, 9, rss)
		rss += 30 * 1024 * 1024 // 30 MB per 30s tick = 60 MB/min
		c.advance(30 * time.Second)
	}

	res := r.Evaluate(ctx)
	assert.Equal(t, []int32{9}, res.Requested)
}

func TestConcurrencyCeilingKeepsLowestMemoryNewest(t *testing.T) {
	table := newFakeProcTable()
	r, c := newTestRegistry(table)
	ctx := context.Background()

	rssByPid := map[int32]uint64{1: 500, 2: 400, 3: 300, 4: 200, 5: 100}
	for pid := int32(1); pid <= 5; pid++ {
		table.spawn(pid, rssByPid[pid])
		table.dieOnTerm[pid] = true
		r.Register(pid, model.ProcessMeta{Name: "worker"})
		feed(r, c, pid, rssByPid[pid])
		c.advance(time.Second)
	}

	res := r.EnforceConcurrencyLimit(ctx, 2)
	assert.Len(t, res.Requested, 3)
	r.Tick(ctx) // reaps the graceful exits

	var remaining []int32
	for _, p := range r.Snapshot() {
		if p.State == model.StateActive {
			remaining = append(remaining, p.PID)
		}
	}
	assert.ElementsMatch(t, []int32{4, 5}, remaining)
	assert.Equal(t, 2, r.ActiveCount())
}

func TestUntrackIsIdempotent(t *testing.T) {
	table := newFakeProcTable()
	table.spawn(12, 100)
	r, _ := newTestRegistry(table)

	r.Register(12, model.ProcessMeta{Name: "worker"})
	r.Untrack(12, "caller finished")
	r.Untrack(12, "caller finished")

	assert.Empty(t, r.Snapshot())
	assert.Len(t, r.ClosedRecords(), 1)
}

func TestStuckProcessSurfacesAfterMaxAttempts(t *testing.T) {
	table := newFakeProcTable()
	table.spawn(13, 100)
	table.dieOnTerm[13] = false
	table.dieOnKill[13] = false // unkillable
	r, c := newTestRegistry(table)
	ctx := context.Background()

	r.Register(13, model.ProcessMeta{Name: "immortal"})
	feed(r, c, 13, 2*1024*1024*1024)
	r.Evaluate(ctx) // attempt 1: SIGTERM

	var stuck []int32
	for i := 0; i < 5; i++ {
		c.advance(6 * time.Second)
		res := r.Tick(ctx)
		stuck = append(stuck, res.Stuck...)
	}
	require.NotEmpty(t, stuck)
	assert.Contains(t, stuck, int32(13))

	res := r.Tick(ctx)
	assert.Equal(t, []model.Condition{model.ConditionStuckProcess}, res.Conditions())
}

func TestMarkGoneClosesRecord(t *testing.T) {
	table := newFakeProcTable()
	table.spawn(14, 100)
	r, _ := newTestRegistry(table)

	r.Register(14, model.ProcessMeta{Name: "worker"})
	r.MarkGone(14)
	r.MarkGone(14) // second observation is a no-op

	assert.Empty(t, r.Snapshot())
	records := r.ClosedRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "exited", records[0].Reason)
}

func TestFastForwardSkipsGracePeriod(t *testing.T) {
	table := newFakeProcTable()
	table.spawn(15, 100)
	table.dieOnTerm[15] = false
	r, c := newTestRegistry(table)
	ctx := context.Background()

	r.Register(15, model.ProcessMeta{Name: "worker"})
	feed(r, c, 15, 2*1024*1024*1024)
	r.Evaluate(ctx)

	// No clock advance: the grace deadline has not passed, but shutdown
	// cannot wait for it.
	r.FastForward(ctx)
	assert.Equal(t, []int32{15}, table.kills)
	assert.Empty(t, r.Snapshot())
}

func TestZombieSweepToleratesGoneProcesses(t *testing.T) {
	table := newFakeProcTable()
	table.zombies = []int32{91, 92}
	r, _ := newTestRegistry(table)

	n := r.SweepZombies(context.Background())
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []int32{91, 92}, table.reaps)
}

func TestLimitsOverrideGlobalBounds(t *testing.T) {
	table := newFakeProcTable()
	table.spawn(31, 100)
	table.spawn(32, 100)
	table.dieOnTerm[31] = true
	table.dieOnTerm[32] = true
	r, c := newTestRegistry(table)
	ctx := context.Background()

	r.RegisterWithLimits(31, model.ProcessMeta{Name: "indexer"}, Limits{CeilingBytes: 64 * 1024 * 1024})
	r.Register(32, model.ProcessMeta{Name: "worker"})

	// 128 MB: over the indexer override, under the global ceiling.
	feed(r, c, 31, 128*1024*1024)
	feed(r, c, 32, 128*1024*1024)

	res := r.Evaluate(ctx)
	assert.Equal(t, []int32{31}, res.Requested)

	records := r.ClosedRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "memory ceiling exceeded", records[0].Reason)
}

func TestValidateInvariants(t *testing.T) {
	table := newFakeProcTable()
	table.spawn(21, 100)
	r, _ := newTestRegistry(table)

	r.Register(21, model.ProcessMeta{Name: "worker"})
	ok, problems := r.ValidateInvariants(8)
	assert.True(t, ok)
	assert.Empty(t, problems)
}
