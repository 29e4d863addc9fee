package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	NodeID   string
	Hostname string

	SampleInterval     time.Duration
	HistoryWindow      int
	ProcessHistorySize int
	DegradedAfterTicks int

	SweepInterval  time.Duration
	ReportInterval time.Duration
	ZombieInterval time.Duration

	// Analyzer thresholds. Growth rates are MB per minute.
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

	// Orchestrator thresholds as fractions of MaxMemoryMB.
	MaxMemoryMB       uint64
	WarningFraction   float64
	CriticalFraction  float64
	EmergencyFraction float64
	EmergencyFloorMB  uint64
	AlertCooldown     time.Duration
	AlertHistorySize  int
	EscalationCount   int
	EscalationWindow  time.Duration

	// Registry limits.
	MaxConcurrent          int
	ProcessMemoryCeilingMB uint64
	ProcessMaxUptime       time.Duration
	GracePeriod            time.Duration
	MaxTerminationAttempts int

	PolicyPath      string
	ReportDir       string
	ProbeListenAddr string
	ShutdownTimeout time.Duration

	LogJSON  bool
	LogLevel string
}

func Load() (Config, error) {
	// Optional .env for local runs; plain environment otherwise.
	_ = godotenv.Load()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	cfg := Config{
		NodeID:   env("VIGIL_NODE_ID", hostname),
		Hostname: hostname,

		SampleInterval:     envDuration("VIGIL_SAMPLE_INTERVAL", 15*time.Second),
		HistoryWindow:      envInt("VIGIL_HISTORY_WINDOW", 60),
		ProcessHistorySize: envInt("VIGIL_PROCESS_HISTORY_SIZE", 20),
		DegradedAfterTicks: envInt("VIGIL_DEGRADED_AFTER_TICKS", 3),

		SweepInterval:  envDuration("VIGIL_SWEEP_INTERVAL", 15*time.Second),
		ReportInterval: envDuration("VIGIL_REPORT_INTERVAL", 60*time.Second),
		ZombieInterval: envDuration("VIGIL_ZOMBIE_INTERVAL", 30*time.Second),

		MinSamples:            envInt("VIGIL_MIN_SAMPLES", 5),
		GrowthThresholdMBMin:  envFloat("VIGIL_GROWTH_THRESHOLD_MB_MIN", 10),
		LeakConfidence:        envFloat("VIGIL_LEAK_CONFIDENCE", 0.75),
		RSquaredFloor:         envFloat("VIGIL_R_SQUARED_FLOOR", 0.5),
		CriticalRateMBMin:     envFloat("VIGIL_CRITICAL_RATE_MB_MIN", 100),
		CriticalConsistency:   envFloat("VIGIL_CRITICAL_CONSISTENCY", 0.9),
		HighRateMBMin:         envFloat("VIGIL_HIGH_RATE_MB_MIN", 50),
		HighConsistency:       envFloat("VIGIL_HIGH_CONSISTENCY", 0.8),
		MediumRateMBMin:       envFloat("VIGIL_MEDIUM_RATE_MB_MIN", 10),
		CyclicAutocorrelation: envFloat("VIGIL_CYCLIC_AUTOCORRELATION", 0.6),
		LinearGrowthRSquared:  envFloat("VIGIL_LINEAR_GROWTH_R_SQUARED", 0.8),

		MaxMemoryMB:       envUint("VIGIL_MAX_MEMORY_MB", 4096),
		WarningFraction:   envFloat("VIGIL_WARNING_FRACTION", 0.70),
		CriticalFraction:  envFloat("VIGIL_CRITICAL_FRACTION", 0.80),
		EmergencyFraction: envFloat("VIGIL_EMERGENCY_FRACTION", 0.90),
		EmergencyFloorMB:  envUint("VIGIL_EMERGENCY_FLOOR_MB", 128),
		AlertCooldown:     envDuration("VIGIL_ALERT_COOLDOWN", 5*time.Minute),
		AlertHistorySize:  envInt("VIGIL_ALERT_HISTORY_SIZE", 100),
		EscalationCount:   envInt("VIGIL_ESCALATION_COUNT", 3),
		EscalationWindow:  envDuration("VIGIL_ESCALATION_WINDOW", 30*time.Minute),

		MaxConcurrent:          envInt("VIGIL_MAX_CONCURRENT", 8),
		ProcessMemoryCeilingMB: envUint("VIGIL_PROCESS_MEMORY_CEILING_MB", 1024),
		ProcessMaxUptime:       envDuration("VIGIL_PROCESS_MAX_UPTIME", 4*time.Hour),
		GracePeriod:            envDuration("VIGIL_GRACE_PERIOD", 5*time.Second),
		MaxTerminationAttempts: envInt("VIGIL_MAX_TERMINATION_ATTEMPTS", 3),

		PolicyPath:      env("VIGIL_POLICY_PATH", ""),
		ReportDir:       env("VIGIL_REPORT_DIR", "/tmp/vigil-governor"),
		ProbeListenAddr: env("VIGIL_PROBE_ADDR", "127.0.0.1:7641"),
		ShutdownTimeout: envDuration("VIGIL_SHUTDOWN_TIMEOUT", 20*time.Second),

		LogJSON:  envBool("VIGIL_LOG_JSON", true),
		LogLevel: strings.ToLower(env("VIGIL_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate refuses an inconsistent policy before anything starts.
func (c Config) Validate() error {
	if c.SampleInterval <= 0 {
		return errors.New("VIGIL_SAMPLE_INTERVAL must be > 0")
	}
	if c.SweepInterval <= 0 || c.ReportInterval <= 0 || c.ZombieInterval <= 0 {
		return errors.New("sweep, report and zombie intervals must be > 0")
	}
	if c.MinSamples < 2 {
		return errors.New("VIGIL_MIN_SAMPLES must be >= 2")
	}
	if c.HistoryWindow < c.MinSamples {
		return fmt.Errorf("VIGIL_HISTORY_WINDOW (%d) must be >= VIGIL_MIN_SAMPLES (%d)", c.HistoryWindow, c.MinSamples)
	}
	if c.ProcessHistorySize < 2 {
		return errors.New("VIGIL_PROCESS_HISTORY_SIZE must be >= 2")
	}
	if c.DegradedAfterTicks < 1 {
		return errors.New("VIGIL_DEGRADED_AFTER_TICKS must be >= 1")
	}
	if c.GrowthThresholdMBMin <= 0 {
		return errors.New("VIGIL_GROWTH_THRESHOLD_MB_MIN must be > 0")
	}
	if c.LeakConfidence <= 0 || c.LeakConfidence > 1 {
		return errors.New("VIGIL_LEAK_CONFIDENCE must be in (0, 1]")
	}
	if c.HighRateMBMin >= c.CriticalRateMBMin {
		return errors.New("high growth rate threshold must be below critical")
	}
	if c.MediumRateMBMin >= c.HighRateMBMin {
		return errors.New("medium growth rate threshold must be below high")
	}
	if c.MaxMemoryMB == 0 {
		return errors.New("VIGIL_MAX_MEMORY_MB must be > 0")
	}
	if !(c.WarningFraction > 0 && c.WarningFraction < c.CriticalFraction && c.CriticalFraction < c.EmergencyFraction && c.EmergencyFraction <= 1) {
		return errors.New("threshold fractions must satisfy 0 < warning < critical < emergency <= 1")
	}
	if c.AlertCooldown <= 0 {
		return errors.New("VIGIL_ALERT_COOLDOWN must be > 0")
	}
	if c.AlertHistorySize < 1 {
		return errors.New("VIGIL_ALERT_HISTORY_SIZE must be >= 1")
	}
	if c.EscalationCount < 1 || c.EscalationWindow <= 0 {
		return errors.New("escalation count and window must be positive")
	}
	if c.MaxConcurrent < 1 {
		return errors.New("VIGIL_MAX_CONCURRENT must be >= 1")
	}
	if c.GracePeriod <= 0 {
		return errors.New("VIGIL_GRACE_PERIOD must be > 0")
	}
	if c.MaxTerminationAttempts < 1 {
		return errors.New("VIGIL_MAX_TERMINATION_ATTEMPTS must be >= 1")
	}
	if strings.TrimSpace(c.ReportDir) == "" {
		return errors.New("VIGIL_REPORT_DIR is required")
	}
	if strings.TrimSpace(c.ProbeListenAddr) == "" {
		return errors.New("VIGIL_PROBE_ADDR is required")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("VIGIL_SHUTDOWN_TIMEOUT must be > 0")
	}
	return nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envUint(key string, fallback uint64) uint64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	u, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return u
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
