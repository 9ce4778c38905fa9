package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/termspace/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	// config_version deliberately has no default: a loaded file must declare it.
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("models.default", cfg.Models.Default)
	v.SetDefault("models.allowed", cfg.Models.Allowed)
	v.SetDefault("service.scrollback_max_bytes", cfg.Service.ScrollbackMaxBytes)
	v.SetDefault("service.permission_mode", cfg.Service.PermissionMode)
	v.SetDefault("host.dir", cfg.Host.Dir)
	v.SetDefault("host.shell", cfg.Host.Shell)
	v.SetDefault("host.scrollback_max_bytes", cfg.Host.ScrollbackMaxBytes)
	v.SetDefault("host.idle_timeout_minutes", cfg.Host.IdleTimeoutMinutes)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	switch schema.PermissionMode(cfg.Service.PermissionMode) {
	case schema.PermissionDefault, schema.PermissionAcceptEdits, schema.PermissionPlan:
	default:
		return fmt.Errorf("unsupported service.permission_mode %q", cfg.Service.PermissionMode)
	}
	if cfg.Service.ScrollbackMaxBytes < 0 {
		return fmt.Errorf("service.scrollback_max_bytes must not be negative")
	}
	if cfg.Host.ScrollbackMaxBytes < 0 {
		return fmt.Errorf("host.scrollback_max_bytes must not be negative")
	}
	if cfg.Host.IdleTimeoutMinutes < 0 {
		return fmt.Errorf("host.idle_timeout_minutes must not be negative")
	}
	if cfg.Models.Default != "" && len(cfg.Models.Allowed) > 0 {
		found := false
		for _, m := range cfg.Models.Allowed {
			if m == cfg.Models.Default {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("models.default %q is not in models.allowed", cfg.Models.Default)
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Host.Dir = expandEnv(cfg.Host.Dir)
	cfg.Host.Shell = expandEnv(cfg.Host.Shell)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
