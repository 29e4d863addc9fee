package model

import "time"

// ProcessState is the tracked-process lifecycle. Transitions only move
// forward; a process never leaves Reaped.
type ProcessState int

const (
	StateActive ProcessState = iota
	StateTerminationRequested
	StateForceKillScheduled
	StateReaped
)

func (s ProcessState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTerminationRequested:
		return "termination_requested"
	case StateForceKillScheduled:
		return "force_kill_scheduled"
	case StateReaped:
		return "reaped"
	default:
		return "unknown"
	}
}

// ProcessMeta is what the spawning collaborator hands over at registration.
type ProcessMeta struct {
	Name    string `json:"name"`
	Command string `json:"command"`
}

// MemoryReading is one per-pid resident-memory observation.
type MemoryReading struct {
	Timestamp time.Time `json:"timestamp"`
	RSSBytes  uint64    `json:"rss_bytes"`
}

// ProcessInfo is the read-only view of a tracked process published outward.
type ProcessInfo struct {
	PID                 int32        `json:"pid"`
	Name                string       `json:"name"`
	Command             string       `json:"command"`
	State               ProcessState `json:"-"`
	StateName           string       `json:"state"`
	CreatedAt           time.Time    `json:"created_at"`
	LastSeenAt          time.Time    `json:"last_seen_at"`
	LastRSSBytes        uint64       `json:"last_rss_bytes"`
	TerminationAttempts int          `json:"termination_attempts"`
}

// ClosedProcessRecord is appended when a process leaves the registry, for
// analytics and the shutdown report.
type ClosedProcessRecord struct {
	PID      int32         `json:"pid"`
	Name     string        `json:"name"`
	Reason   string        `json:"reason"`
	Lifetime time.Duration `json:"lifetime_ns"`
	ClosedAt time.Time     `json:"closed_at"`
}
