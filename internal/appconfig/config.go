package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/termspace/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Models        ModelsConfig  `mapstructure:"models" yaml:"models"`
	Service       ServiceConfig `mapstructure:"service" yaml:"service"`
	Host          HostConfig    `mapstructure:"host" yaml:"host"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ModelsConfig controls allowed and default LLM models.
type ModelsConfig struct {
	Default string   `mapstructure:"default" yaml:"default"`
	Allowed []string `mapstructure:"allowed" yaml:"allowed"`
}

// ServiceConfig controls core service behavior.
type ServiceConfig struct {
	ScrollbackMaxBytes int    `mapstructure:"scrollback_max_bytes" yaml:"scrollback_max_bytes"`
	PermissionMode     string `mapstructure:"permission_mode" yaml:"permission_mode"`
}

// HostConfig configures the terminal host daemon.
type HostConfig struct {
	Dir                string `mapstructure:"dir" yaml:"dir"`
	Shell              string `mapstructure:"shell" yaml:"shell"`
	ScrollbackMaxBytes int    `mapstructure:"scrollback_max_bytes" yaml:"scrollback_max_bytes"`
	IdleTimeoutMinutes int    `mapstructure:"idle_timeout_minutes" yaml:"idle_timeout_minutes"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".termspace", "state"),
		Models: ModelsConfig{
			Default: "claude-sonnet-4-5",
			Allowed: []string{"claude-sonnet-4-5", "claude-opus-4-1", "claude-haiku-4-5"},
		},
		Service: ServiceConfig{
			ScrollbackMaxBytes: schema.DefaultScrollbackMaxBytes,
			PermissionMode:     string(schema.PermissionDefault),
		},
		Host: HostConfig{
			Dir:                filepath.Join(home, ".termspace", "state", "host"),
			Shell:              shell,
			ScrollbackMaxBytes: schema.DefaultScrollbackMaxBytes,
			IdleTimeoutMinutes: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".termspace", "config.yaml"), nil
}

// ServiceConfig maps the loaded config to the core service config.
func (c Config) ServiceConfig() schema.ServiceConfig {
	allowed := make([]schema.ModelID, 0, len(c.Models.Allowed))
	for _, m := range c.Models.Allowed {
		allowed = append(allowed, schema.ModelID(m))
	}
	return schema.ServiceConfig{
		StateDir:           c.StateDir,
		HostSocketDir:      c.Host.Dir,
		Shell:              c.Host.Shell,
		ScrollbackMaxBytes: c.Service.ScrollbackMaxBytes,
		DefaultModel:       schema.ModelID(c.Models.Default),
		AllowedModels:      allowed,
		PermissionMode:     schema.PermissionMode(c.Service.PermissionMode),
	}
}
