// Package config provides configuration loading and management for peroxs.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load loads configuration from a file path.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		for _, p := range ConfigPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path == "" {
		log.Printf("no configuration file found in default locations")
		log.Printf("default locations checked:")
		for _, p := range ConfigPaths() {
			log.Printf("  - %s", p)
		}
		log.Printf("using default configuration")
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDie loads configuration or exits on error.
func LoadOrDie(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PEROXS_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PEROXS_BACKUP_DB"); v != "" {
		cfg.Database.BackupPath = v
	}

	if v := os.Getenv("PEROXS_INPUT_TIMEOUT"); v != "" {
		var seconds int
		if _, err := fmt.Sscanf(v, "%d", &seconds); err == nil {
			cfg.Input.TerminalTimeoutSeconds = seconds
		}
	}
	if v := os.Getenv("PEROXS_PINENTRY"); v != "" {
		cfg.Input.PinentryProgram = v
	}
	if v := os.Getenv("PEROXS_USE_PINENTRY"); v != "" {
		cfg.Input.UsePinentry = v == "true" || v == "1"
	}

	if v := os.Getenv("PEROXS_ITERATION_MS"); v != "" {
		var ms int
		if _, err := fmt.Sscanf(v, "%d", &ms); err == nil {
			cfg.Volume.IterationMs = ms
		}
	}
	if v := os.Getenv("PEROXS_LUKS_VERSION"); v != "" {
		cfg.Volume.PreferredVersion = v
	}
	if v := os.Getenv("PEROXS_VOLUME_DEBUG"); v != "" {
		cfg.Volume.DebugLogging = v == "true" || v == "1"
	}

	if v := os.Getenv("PEROXS_TOKEN_SLOT"); v != "" {
		var slot int
		if _, err := fmt.Sscanf(v, "%d", &slot); err == nil {
			cfg.Token.Slot = slot
		}
	}
	if v := os.Getenv("PEROXS_TOKEN_HYBRID"); v != "" {
		cfg.Token.HybridMode = v == "true" || v == "1"
	}

	if v := os.Getenv("PEROXS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PEROXS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PEROXS_LOG_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}
	if v := os.Getenv("PEROXS_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	return nil
}

// Save saves the configuration to a file.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgCopy := *cfg
	cfgCopy.Database.Path = filepath.ToSlash(cfg.Database.Path)
	if cfgCopy.Database.BackupPath != "" {
		cfgCopy.Database.BackupPath = filepath.ToSlash(cfgCopy.Database.BackupPath)
	}

	data, err := toml.Marshal(&cfgCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateExampleConfig generates an example configuration file.
func GenerateExampleConfig(path string) error {
	cfg := DefaultConfig()
	cfg.Logging.Level = "info"
	return Save(cfg, path)
}
