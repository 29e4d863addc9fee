package analyzer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil-governor/internal/model"
)

func testConfig() Config {
	return Config{
		MinSamples:            5,
		GrowthThresholdMBMin:  10,
		LeakConfidence:        0.75,
		RSquaredFloor:         0.5,
		CriticalRateMBMin:     100,
		CriticalConsistency:   0.9,
		HighRateMBMin:         50,
		HighConsistency:       0.8,
		MediumRateMBMin:       10,
		CyclicAutocorrelation: 0.6,
		LinearGrowthRSquared:  0.8,
	}
}

func seriesMB(start time.Time, step time.Duration, mb ...float64) []Point {
	out := make([]Point, len(mb))
	for i, v := range mb {
		out[i] = Point{T: start.Add(time.Duration(i) * step), Bytes: uint64(v * bytesPerMB)}
	}
	return out
}

func TestMonotonicGrowthIsLeak(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	points := seriesMB(start, 30*time.Second,
		100, 110, 121, 133, 146, 160, 176, 193, 212, 233)

	res := AnalyzeSeries(testConfig(), points)
	require.True(t, res.Analyzed)
	assert.Equal(t, 1.0, res.GrowthConsistency)
	assert.True(t, res.IsLeak)
	// 133 MB over 4.5 minutes.
	assert.InDelta(t, 29.6, res.GrowthRateMBMin, 3.0)
	assert.Greater(t, res.Confidence, 0.0)
}

func TestFlatNoiseIsNotLeak(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	points := seriesMB(start, 30*time.Second,
		100, 102, 99, 101, 98, 102, 100, 99, 101, 100)

	cfg := testConfig()
	// Even with a trivially low confidence threshold the flat series must
	// not read as a leak.
	cfg.LeakConfidence = 0.01
	res := AnalyzeSeries(cfg, points)
	require.True(t, res.Analyzed)
	assert.False(t, res.IsLeak)
}

func TestInsufficientSamples(t *testing.T) {
	start := time.Now().UTC()
	points := seriesMB(start, 30*time.Second, 100, 110, 120)

	res := AnalyzeSeries(testConfig(), points)
	assert.False(t, res.Analyzed)
	assert.Equal(t, "insufficient samples", res.Reason)
	assert.False(t, res.IsLeak)
}

func TestZeroVarianceYieldsNoNaN(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	points := seriesMB(start, 30*time.Second,
		100, 100, 100, 100, 100, 100)

	res := AnalyzeSeries(testConfig(), points)
	require.True(t, res.Analyzed)
	assert.False(t, res.RSquaredDefined)
	assert.False(t, math.IsNaN(res.GrowthRateMBMin))
	assert.False(t, math.IsNaN(res.RSquared))
	assert.False(t, math.IsNaN(res.Confidence))
	assert.Equal(t, 0.0, res.Confidence)
	assert.False(t, res.IsLeak)
	assert.True(t, res.HasPattern(model.PatternStable))
}

func TestSeverityNeedsMagnitudeAndConsistency(t *testing.T) {
	cfg := testConfig()

	cases := []struct {
		name string
		rate float64
		cons float64
		want model.Severity
	}{
		{"critical", 150, 0.95, model.SeverityCritical},
		{"high", 60, 0.85, model.SeverityHigh},
		{"fast but erratic", 150, 0.4, model.SeverityLow},
		{"medium", 20, 0.7, model.SeverityMedium},
		{"slow", 2, 1.0, model.SeverityLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, severity(cfg, tc.rate, tc.cons))
		})
	}
}

func TestSeverityOrdering(t *testing.T) {
	assert.Greater(t, model.SeverityCritical.Rank(), model.SeverityHigh.Rank())
	assert.Greater(t, model.SeverityHigh.Rank(), model.SeverityMedium.Rank())
	assert.Greater(t, model.SeverityMedium.Rank(), model.SeverityLow.Rank())
}

func TestLinearGrowthPattern(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	points := seriesMB(start, 30*time.Second,
		100, 120, 140, 160, 180, 200, 220, 240)

	res := AnalyzeSeries(testConfig(), points)
	require.True(t, res.Analyzed)
	assert.True(t, res.HasPattern(model.PatternLinearGrowth))
	assert.False(t, res.HasPattern(model.PatternStable))
}

func TestSawtoothPattern(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	points := seriesMB(start, 30*time.Second,
		100, 150, 100, 150, 100, 150, 100, 150, 100)

	res := AnalyzeSeries(testConfig(), points)
	require.True(t, res.Analyzed)
	assert.True(t, res.HasPattern(model.PatternSawtooth))
}

func TestCyclicPattern(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Period-4 wave repeated over a long window: best autocorrelation at
	// lag 4 should clear the threshold.
	var vals []float64
	for i := 0; i < 32; i++ {
		vals = append(vals, 100+20*math.Sin(2*math.Pi*float64(i)/4))
	}
	points := seriesMB(start, 30*time.Second, vals...)

	res := AnalyzeSeries(testConfig(), points)
	require.True(t, res.Analyzed)
	assert.True(t, res.HasPattern(model.PatternCyclic))
}

func TestDeterministic(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	points := seriesMB(start, 30*time.Second,
		100, 110, 121, 133, 146, 160, 176, 193, 212, 233)

	a := AnalyzeSeries(testConfig(), points)
	b := AnalyzeSeries(testConfig(), points)
	a.ComputedAt = b.ComputedAt
	assert.Equal(t, a, b)
}
