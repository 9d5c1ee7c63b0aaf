// Package config handles pyrite.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/pyrite/jit"
	"github.com/chazu/pyrite/vm"
	"github.com/tliron/commonlog"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "pyrite.toml"

// Config represents a pyrite.toml file.
type Config struct {
	JIT JIT `toml:"jit"`
	VM  VM  `toml:"vm"`
	Log Log `toml:"log"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

// JIT configures tiered execution.
type JIT struct {
	Enabled             bool `toml:"enabled"`
	BaselineThreshold   int  `toml:"baseline-threshold"`
	OptimizingThreshold int  `toml:"optimizing-threshold"`
}

// VM configures the interpreter.
type VM struct {
	MaxDepth int `toml:"max-depth"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	j := jit.DefaultConfig()
	return &Config{
		JIT: JIT{
			Enabled:             j.Enabled,
			BaselineThreshold:   j.BaselineThreshold,
			OptimizingThreshold: j.OptimizingThreshold,
		},
		VM: VM{MaxDepth: vm.DefaultMaxDepth},
	}
}

// LoadFile parses a configuration file. Keys missing from the file keep
// their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if c.Path, err = filepath.Abs(path); err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Load parses the pyrite.toml file in dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// FindAndLoad walks up from startDir to find a pyrite.toml file and loads
// it. Without one it returns the defaults.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate rejects settings the runtime cannot honor.
func (c *Config) Validate() error {
	if c.JIT.BaselineThreshold < 0 || c.JIT.OptimizingThreshold < 0 {
		return fmt.Errorf("jit thresholds must not be negative")
	}
	if c.VM.MaxDepth < 0 {
		return fmt.Errorf("vm max-depth must not be negative")
	}
	return nil
}

// ApplyEnv overrides the JIT settings from PYTHON_VM_JIT and the threshold
// variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	j := c.JITConfig()
	j.ApplyEnv(lookup)
	c.JIT = JIT{
		Enabled:             j.Enabled,
		BaselineThreshold:   j.BaselineThreshold,
		OptimizingThreshold: j.OptimizingThreshold,
	}
}

// JITConfig returns the settings for jit.NewManager.
func (c *Config) JITConfig() jit.Config {
	return jit.Config{
		Enabled:             c.JIT.Enabled,
		BaselineThreshold:   c.JIT.BaselineThreshold,
		OptimizingThreshold: c.JIT.OptimizingThreshold,
	}
}

// NewVM creates a VM configured by c, with a JIT manager installed as its
// frame executor.
func (c *Config) NewVM() (*vm.VM, *jit.Manager) {
	v := vm.NewVM()
	v.MaxDepth = c.VM.MaxDepth
	return v, jit.Install(v, c.JITConfig())
}

// ConfigureLogging sets up commonlog from the [log] section. A file path of
// "" logs to stderr.
func (c *Config) ConfigureLogging() {
	var path *string
	if c.Log.File != "" {
		path = &c.Log.File
	}
	commonlog.Configure(c.Log.Verbosity, path)
}
