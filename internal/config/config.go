// Package config holds the settings of a testtool run. Defaults can come from
// a YAML file; command line flags override them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"testtool/internal/capture"
	"testtool/internal/supervisor"
)

// EnvConfigFile names the environment variable consulted when no --config
// flag is given.
const EnvConfigFile = "TESTTOOL_CONFIG"

// DefaultRulesFD is the descriptor the rule document is read from when no
// rules file is given.
const DefaultRulesFD = 3

type Launcher struct {
	Enabled bool   `yaml:"enabled"`
	Program string `yaml:"program,omitempty"`
}

type Config struct {
	Rules     string   `yaml:"rules,omitempty"`
	RulesFD   int      `yaml:"rules_fd"`
	Quiet     bool     `yaml:"quiet"`
	Annotate  bool     `yaml:"annotate"`
	Echo      bool     `yaml:"echo"`
	Launcher  Launcher `yaml:"launcher"`
	ControlFD int      `yaml:"control_fd"`
	LineLimit int      `yaml:"line_limit"`
	PTY       bool     `yaml:"pty"`

	Output     string `yaml:"output,omitempty"`
	Transcript string `yaml:"transcript,omitempty"`
	Report     string `yaml:"report,omitempty"`
	Verbose    bool   `yaml:"verbose"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		RulesFD:   DefaultRulesFD,
		ControlFD: supervisor.DefaultControlFD,
		LineLimit: capture.DefaultLineLimit,
	}
}

// Path returns the config file to load: flagValue if set, otherwise
// $TESTTOOL_CONFIG. An empty result means no config file.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvConfigFile)
}

// Load reads the YAML file at path on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.ControlFD < 3 {
		return fmt.Errorf("control_fd must be at least 3, got %d", c.ControlFD)
	}
	if c.RulesFD < 0 {
		return fmt.Errorf("rules_fd must not be negative, got %d", c.RulesFD)
	}
	if c.LineLimit < 2 {
		return fmt.Errorf("line_limit must be at least 2, got %d", c.LineLimit)
	}
	return nil
}

// SupervisorLauncher converts the launcher settings.
func (c *Config) SupervisorLauncher() supervisor.Launcher {
	return supervisor.Launcher{Enabled: c.Launcher.Enabled, Program: c.Launcher.Program}
}
