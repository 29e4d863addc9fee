package model

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so callers can compare them without string games.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

type Pattern string

const (
	PatternSawtooth     Pattern = "sawtooth"
	PatternLinearGrowth Pattern = "linear_growth"
	PatternCyclic       Pattern = "cyclic"
	PatternStable       Pattern = "stable"
)

// TrendAnalysis is recomputed from the current sample window every tick and
// carries no identity between ticks.
type TrendAnalysis struct {
	Analyzed          bool      `json:"analyzed"`
	Reason            string    `json:"reason,omitempty"`
	WindowSize        int       `json:"window_size"`
	WindowSpan        float64   `json:"window_span_seconds"`
	GrowthRateMBMin   float64   `json:"growth_rate_mb_per_min"`
	GrowthConsistency float64   `json:"growth_consistency"`
	TotalDeltaBytes   int64     `json:"total_delta_bytes"`
	RSquared          float64   `json:"r_squared"`
	RSquaredDefined   bool      `json:"r_squared_defined"`
	Confidence        float64   `json:"confidence"`
	IsLeak            bool      `json:"is_leak"`
	Severity          Severity  `json:"severity"`
	Patterns          []Pattern `json:"patterns,omitempty"`
	ComputedAt        time.Time `json:"computed_at"`
}

// HasPattern reports whether the classification tagged the window with p.
func (t TrendAnalysis) HasPattern(p Pattern) bool {
	for _, v := range t.Patterns {
		if v == p {
			return true
		}
	}
	return false
}
