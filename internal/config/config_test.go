package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		NodeID:                 "test-node",
		SampleInterval:         15 * time.Second,
		HistoryWindow:          60,
		ProcessHistorySize:     20,
		DegradedAfterTicks:     3,
		SweepInterval:          15 * time.Second,
		ReportInterval:         time.Minute,
		ZombieInterval:         30 * time.Second,
		MinSamples:             5,
		GrowthThresholdMBMin:   10,
		LeakConfidence:         0.75,
		RSquaredFloor:          0.5,
		CriticalRateMBMin:      100,
		CriticalConsistency:    0.9,
		HighRateMBMin:          50,
		HighConsistency:        0.8,
		MediumRateMBMin:        10,
		CyclicAutocorrelation:  0.6,
		LinearGrowthRSquared:   0.8,
		MaxMemoryMB:            4096,
		WarningFraction:        0.70,
		CriticalFraction:       0.80,
		EmergencyFraction:      0.90,
		EmergencyFloorMB:       128,
		AlertCooldown:          5 * time.Minute,
		AlertHistorySize:       100,
		EscalationCount:        3,
		EscalationWindow:       30 * time.Minute,
		MaxConcurrent:          8,
		ProcessMemoryCeilingMB: 1024,
		ProcessMaxUptime:       4 * time.Hour,
		GracePeriod:            5 * time.Second,
		MaxTerminationAttempts: 3,
		ReportDir:              "/tmp/vigil-test",
		ProbeListenAddr:        "127.0.0.1:7641",
		ShutdownTimeout:        20 * time.Second,
		LogLevel:               "info",
	}
}

func TestValidConfigPasses(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsInconsistentPolicies(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero sample interval", func(c *Config) { c.SampleInterval = 0 }},
		{"window below min samples", func(c *Config) { c.HistoryWindow = 3 }},
		{"warning above critical", func(c *Config) { c.WarningFraction = 0.85 }},
		{"critical above emergency", func(c *Config) { c.CriticalFraction = 0.95 }},
		{"emergency above one", func(c *Config) { c.EmergencyFraction = 1.5 }},
		{"high rate above critical rate", func(c *Config) { c.HighRateMBMin = 150 }},
		{"medium rate above high rate", func(c *Config) { c.MediumRateMBMin = 60 }},
		{"zero max memory", func(c *Config) { c.MaxMemoryMB = 0 }},
		{"zero cooldown", func(c *Config) { c.AlertCooldown = 0 }},
		{"leak confidence above one", func(c *Config) { c.LeakConfidence = 1.5 }},
		{"zero grace period", func(c *Config) { c.GracePeriod = 0 }},
		{"zero concurrency ceiling", func(c *Config) { c.MaxConcurrent = 0 }},
		{"zero termination attempts", func(c *Config) { c.MaxTerminationAttempts = 0 }},
		{"empty report dir", func(c *Config) { c.ReportDir = " " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	raw := `policies:
  - name: indexer
    memory_ceiling_mb: 512
    max_uptime: 2h
    max_restarts: 5
    cooldown_period: 1m
    restart_command: "indexer --resume"
  - name: crawler
    memory_ceiling_mb: 256
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	policies, err := LoadPolicies(path)
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, uint64(512), policies["indexer"].MemoryCeilingMB)
	assert.Equal(t, 2*time.Hour, policies["indexer"].MaxUptime)
	assert.Equal(t, "indexer --resume", policies["indexer"].RestartCommand)
}

func TestLoadPoliciesRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	raw := `policies:
  - name: worker
  - name: worker
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := LoadPolicies(path)
	assert.Error(t, err)
}

func TestLoadPoliciesEmptyPath(t *testing.T) {
	policies, err := LoadPolicies("")
	require.NoError(t, err)
	assert.Empty(t, policies)
}
