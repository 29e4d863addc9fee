package model

import "time"

// RestartPolicy bounds one logical process name. Loaded at startup and
// read-only during a monitoring cycle.
type RestartPolicy struct {
	Name            string        `json:"name"`
	MemoryCeilingMB uint64        `json:"memory_ceiling_mb"`
	MaxUptime       time.Duration `json:"max_uptime"`
	MaxRestarts     int           `json:"max_restarts"`
	CooldownPeriod  time.Duration `json:"cooldown_period"`
	RestartCommand  string        `json:"restart_command"`
}
