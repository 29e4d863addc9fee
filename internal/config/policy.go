package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vigil-governor/internal/model"
)

type policyEntry struct {
	Name            string `yaml:"name"`
	MemoryCeilingMB uint64 `yaml:"memory_ceiling_mb"`
	MaxUptime       string `yaml:"max_uptime"`
	MaxRestarts     int    `yaml:"max_restarts"`
	CooldownPeriod  string `yaml:"cooldown_period"`
	RestartCommand  string `yaml:"restart_command"`
}

type policyFile struct {
	Policies []policyEntry `yaml:"policies"`
}

// LoadPolicies reads per-name restart policies from a YAML file. An empty
// path means no policies, which is valid.
func LoadPolicies(path string) (map[string]model.RestartPolicy, error) {
	out := make(map[string]model.RestartPolicy)
	if path == "" {
		return out, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	for _, e := range pf.Policies {
		if e.Name == "" {
			return nil, fmt.Errorf("policy file %s: policy with empty name", path)
		}
		if _, dup := out[e.Name]; dup {
			return nil, fmt.Errorf("policy file %s: duplicate policy %q", path, e.Name)
		}
		maxUptime, err := parseOptionalDuration(e.MaxUptime)
		if err != nil {
			return nil, fmt.Errorf("policy %q: max_uptime: %w", e.Name, err)
		}
		cooldown, err := parseOptionalDuration(e.CooldownPeriod)
		if err != nil {
			return nil, fmt.Errorf("policy %q: cooldown_period: %w", e.Name, err)
		}
		out[e.Name] = model.RestartPolicy{
			Name:            e.Name,
			MemoryCeilingMB: e.MemoryCeilingMB,
			MaxUptime:       maxUptime,
			MaxRestarts:     e.MaxRestarts,
			CooldownPeriod:  cooldown,
			RestartCommand:  e.RestartCommand,
		}
	}
	return out, nil
}

func parseOptionalDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	return time.ParseDuration(v)
}
