package model

import "time"

// MemorySample is one immutable reading of process and system memory,
// produced once per sampling tick.
type MemorySample struct {
	Timestamp           time.Time `json:"timestamp"`
	HeapUsedBytes       uint64    `json:"heap_used_bytes"`
	HeapTotalBytes      uint64    `json:"heap_total_bytes"`
	RSSBytes            uint64    `json:"rss_bytes"`
	SystemTotalBytes    uint64    `json:"system_total_bytes"`
	SystemFreeBytes     uint64    `json:"system_free_bytes"`
	TrackedProcessCount int       `json:"tracked_process_count"`
}

// SampleSummary is the condensed view published through Status and reports.
type SampleSummary struct {
	Timestamp           time.Time `json:"timestamp"`
	HeapUsedBytes       uint64    `json:"heap_used_bytes"`
	RSSBytes            uint64    `json:"rss_bytes"`
	HeapUsedFraction    float64   `json:"heap_used_fraction"`
	SystemFreeBytes     uint64    `json:"system_free_bytes"`
	TrackedProcessCount int       `json:"tracked_process_count"`
	WindowSize          int       `json:"window_size"`
}
