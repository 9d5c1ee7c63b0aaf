package jit

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables read by ApplyEnv.
const (
	EnvEnabled             = "PYTHON_VM_JIT"
	EnvBaselineThreshold   = "PYTHON_VM_JIT_BASELINE_THRESHOLD"
	EnvOptimizingThreshold = "PYTHON_VM_JIT_OPT_THRESHOLD"
)

// Default thresholds.
const (
	DefaultBaselineThreshold   = 1
	DefaultOptimizingThreshold = 20000
)

// Config controls the JIT manager.
type Config struct {
	// Enabled is the master switch. A disabled manager runs every frame in
	// the reference interpreter.
	Enabled bool

	// BaselineThreshold is the entry count at which Tier0 code is handed to
	// the baseline generator.
	BaselineThreshold int

	// OptimizingThreshold is the entry count at which Tier1 code is handed to
	// the optimizing generator.
	OptimizingThreshold int
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		BaselineThreshold:   DefaultBaselineThreshold,
		OptimizingThreshold: DefaultOptimizingThreshold,
	}
}

// EnvConfig returns the defaults overridden by the process environment.
func EnvConfig() Config {
	cfg := DefaultConfig()
	cfg.ApplyEnv(os.LookupEnv)
	return cfg
}

// ApplyEnv overrides c from environment variables. PYTHON_VM_JIT enables the
// JIT when set to 1, true or yes (any case) and disables it for any other
// value. Threshold variables that are empty or not integers are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if val, ok := lookup(EnvEnabled); ok {
		c.Enabled = parseBool(val)
	}
	if n, ok := parseInt(lookup(EnvBaselineThreshold)); ok {
		c.BaselineThreshold = n
	}
	if n, ok := parseInt(lookup(EnvOptimizingThreshold)); ok {
		c.OptimizingThreshold = n
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func parseInt(s string, set bool) (int, bool) {
	if !set || s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}
