package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the agent looks for its config file when none
// is given on the command line.
const DefaultConfigPath = "/etc/sched-agent/config.yaml"

// Config holds the userspace agent's tunables. Per spec.md §6 the agent's
// operational CLI surface is a single -h flag; these values come from a
// config file (teacher idiom: cmd/hfconfig.go and cmd/workload_config.go
// both resolve settings from a YAML file rather than a thicket of flags)
// rather than from additional flags.
type Config struct {
	// PollIntervalMS is how often the agent loop ticks, in milliseconds.
	// spec.md §4.10 fixes this at 1000ms ("1 s cadence").
	PollIntervalMS int `yaml:"pollIntervalMS"`

	// CapacityRefreshTicks is how many ticks elapse between capacity
	// rescans; spec.md §4.10 calls this "refresh every 5th tick".
	CapacityRefreshTicks int `yaml:"capacityRefreshTicks"`

	// SysfsRoot is the root of the sysfs-style capacity source, default
	// "/sys/devices/system/cpu" per spec.md §4.10.
	SysfsRoot string `yaml:"sysfsRoot"`

	// TelemetryEnabled toggles the histogram/percentile/counter pass of
	// spec.md §4.10 step 3.
	TelemetryEnabled bool `yaml:"telemetryEnabled"`

	// BigPct overrides the BIG_PCT classification threshold (spec.md §3);
	// 0 means "use the sched package default".
	BigPct int `yaml:"bigPct"`
}

// DefaultConfig returns the configuration spec.md §4.10 describes when no
// config file is present.
func DefaultConfig() Config {
	return Config{
		PollIntervalMS:       1000,
		CapacityRefreshTicks: 5,
		SysfsRoot:            "/sys/devices/system/cpu",
		TelemetryEnabled:     true,
		BigPct:               90,
	}
}

// LoadConfig reads a YAML config file at path, overlaying it onto
// DefaultConfig. A missing file is not an error — the agent runs with
// defaults, matching spec.md §7's preference for clamped defaults over
// propagated errors wherever the condition is not a fatal setup error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("agent: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("agent: parse config %s: %w", path, err)
	}
	return cfg, nil
}
