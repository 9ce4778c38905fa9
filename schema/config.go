package schema

import (
	"errors"
	"os"
	"path/filepath"
)

// ServiceConfig defines defaults and limits for the core service.
type ServiceConfig struct {
	StateDir           string
	HostSocketDir      string
	Shell              string
	ScrollbackMaxBytes int
	DefaultModel       ModelID
	AllowedModels      []ModelID
	PermissionMode     PermissionMode
}

// DefaultScrollbackMaxBytes is the default per-session scrollback limit.
const DefaultScrollbackMaxBytes = 1 << 20

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".termspace", "state")
	}
	if cfg.HostSocketDir == "" {
		cfg.HostSocketDir = filepath.Join(cfg.StateDir, "host")
	}
	if cfg.Shell == "" {
		cfg.Shell = os.Getenv("SHELL")
		if cfg.Shell == "" {
			cfg.Shell = "/bin/sh"
		}
	}
	if cfg.ScrollbackMaxBytes <= 0 {
		cfg.ScrollbackMaxBytes = DefaultScrollbackMaxBytes
	}
	if cfg.PermissionMode == "" {
		cfg.PermissionMode = PermissionDefault
	}
	switch cfg.PermissionMode {
	case PermissionDefault, PermissionAcceptEdits, PermissionPlan:
	default:
		return ServiceConfig{}, errors.New("unknown permission mode")
	}
	return cfg, nil
}
