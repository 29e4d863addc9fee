// Package analyzer turns a window of memory samples into a growth trend and
// leak classification. Analysis is a pure function of the window plus the
// thresholds: the same window always yields the same result.
package analyzer

import (
	"math"
	"time"

	"vigil-governor/internal/model"
)

const bytesPerMB = 1024 * 1024

// Thresholds are configuration defaults, not load-bearing constants; see
// config for the tunable values.
type Config struct {
	MinSamples            int
	GrowthThresholdMBMin  float64
	LeakConfidence        float64
	RSquaredFloor         float64
	CriticalRateMBMin     float64
	CriticalConsistency   float64
	HighRateMBMin         float64
	HighConsistency       float64
	MediumRateMBMin       float64
	CyclicAutocorrelation float64
	LinearGrowthRSquared  float64
}

// Point is one (time, bytes) observation. The registry reuses the same
// analysis over per-process RSS histories.
type Point struct {
	T     time.Time
	Bytes uint64
}

// Analyze classifies the governor's own heap window.
func Analyze(cfg Config, window []model.MemorySample) model.TrendAnalysis {
	points := make([]Point, len(window))
	for i, s := range window {
		points[i] = Point{T: s.Timestamp, Bytes: s.HeapUsedBytes}
	}
	return AnalyzeSeries(cfg, points)
}

// AnalyzeSeries runs the full trend/leak analysis over an arbitrary memory
// series ordered oldest-first.
func AnalyzeSeries(cfg Config, points []Point) model.TrendAnalysis {
	out := model.TrendAnalysis{
		WindowSize: len(points),
		Severity:   model.SeverityLow,
		ComputedAt: time.Now().UTC(),
	}
	if len(points) < cfg.MinSamples {
		out.Reason = "insufficient samples"
		return out
	}

	first := points[0]
	last := points[len(points)-1]
	span := last.T.Sub(first.T)
	if span <= 0 {
		out.Reason = "window has no wall-clock span"
		return out
	}
	out.Analyzed = true
	out.WindowSpan = span.Seconds()

	x := make([]float64, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.T.Sub(first.T).Seconds()
		y[i] = float64(p.Bytes)
	}

	slope, rsq, ok, rsqDefined := olsFit(x, y)
	if ok {
		// slope is bytes/second over actual elapsed time.
		out.GrowthRateMBMin = slope * 60 / bytesPerMB
	}
	out.RSquared = rsq
	out.RSquaredDefined = rsqDefined

	out.GrowthConsistency = consistency(y)
	out.TotalDeltaBytes = int64(last.Bytes) - int64(first.Bytes)

	if rsqDefined && rsq >= cfg.RSquaredFloor {
		out.Confidence = out.GrowthConsistency
	}

	// All three conditions are required so neither a single spike nor noisy
	// flat usage reads as a leak.
	absRate := math.Abs(out.GrowthRateMBMin)
	deltaMB := float64(out.TotalDeltaBytes) / bytesPerMB
	out.IsLeak = absRate > cfg.GrowthThresholdMBMin &&
		out.GrowthConsistency >= cfg.LeakConfidence &&
		deltaMB > cfg.GrowthThresholdMBMin

	out.Severity = severity(cfg, out.GrowthRateMBMin, out.GrowthConsistency)
	out.Patterns = classify(cfg, y, slope, rsq, ok && rsqDefined, absRate)
	return out
}

// severity combines magnitude and consistency jointly; a large but erratic
// rate does not escalate.
func severity(cfg Config, rateMBMin, cons float64) model.Severity {
	switch {
	case rateMBMin > cfg.CriticalRateMBMin && cons > cfg.CriticalConsistency:
		return model.SeverityCritical
	case rateMBMin > cfg.HighRateMBMin && cons > cfg.HighConsistency:
		return model.SeverityHigh
	case rateMBMin > cfg.MediumRateMBMin && cons > 0.5:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func classify(cfg Config, y []float64, slope, rsq float64, fitted bool, absRateMBMin float64) []model.Pattern {
	var tags []model.Pattern

	maxima, minima := localExtrema(y)
	if maxima >= 3 && minima >= 2 {
		tags = append(tags, model.PatternSawtooth)
	}

	if maxLag := len(y) / 4; maxLag >= 2 {
		if bestAutocorrelation(y, maxLag) > cfg.CyclicAutocorrelation {
			tags = append(tags, model.PatternCyclic)
		}
	}

	if fitted && rsq > cfg.LinearGrowthRSquared && slope > 0 {
		tags = append(tags, model.PatternLinearGrowth)
	}

	if len(tags) == 0 && absRateMBMin < cfg.MediumRateMBMin {
		tags = append(tags, model.PatternStable)
	}
	return tags
}
