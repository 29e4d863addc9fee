package model

import "time"

// Status is the last-published governor state, read-only for callers.
type Status struct {
	Timestamp           time.Time     `json:"timestamp"`
	SampleSummary       SampleSummary `json:"sample_summary"`
	Trend               TrendAnalysis `json:"trend"`
	TrackedProcessCount int           `json:"tracked_process_count"`
	RecentAlerts        []Alert       `json:"recent_alerts"`
	SamplerDegraded     bool          `json:"sampler_degraded"`
	Conditions          []Condition   `json:"conditions,omitempty"`
}
