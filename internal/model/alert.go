package model

import "time"

type AlertLevel string

const (
	AlertWarning   AlertLevel = "warning"
	AlertCritical  AlertLevel = "critical"
	AlertEmergency AlertLevel = "emergency"
	AlertLeak      AlertLevel = "leak"
)

// Alert is an append-only record of one emitted alert; history is capped and
// trimmed, used only for cooldown and escalation accounting.
type Alert struct {
	Timestamp time.Time    `json:"timestamp"`
	Level     AlertLevel   `json:"level"`
	Cause     string       `json:"cause"`
	Message   string       `json:"message"`
	PID       int32        `json:"pid,omitempty"`
	Snapshot  MemorySample `json:"snapshot"`
}

// Condition names a systemic state surfaced to the orchestrator or caller.
// These are the only failures that cross component boundaries; everything
// else is absorbed and logged locally.
type Condition string

const (
	ConditionSamplerDegraded Condition = "SAMPLER_DEGRADED"
	ConditionStuckProcess    Condition = "STUCK_PROCESS"
	ConditionEscalation      Condition = "ESCALATION"
)
