// Package config provides configuration management for peroxs.
// Supports TOML configuration files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingValue  = errors.New("missing required configuration value")
)

// helper to validate a directory exists or can be created and is writable.
func validateDirectoryWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}

	testFile := filepath.Join(dir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("cannot write to directory: %w", err)
	}
	f.Close()
	os.Remove(testFile)

	return nil
}

// Config holds all peroxs configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Input    InputConfig    `toml:"input"`
	Volume   VolumeConfig   `toml:"volume"`
	Token    TokenConfig    `toml:"token"`
	Logging  LoggingConfig  `toml:"logging"`
}

// DatabaseConfig controls where the peroxs key database lives and how
// it is written.
type DatabaseConfig struct {
	// Path is the location of peroxs-db.json.
	Path string `toml:"path" env:"PEROXS_DB"`

	// BackupPath names an optional secondary database. It is read from
	// the config file and PEROXS_BACKUP_DB, but no peroxs command opens
	// the database at this path or sources keys from it.
	BackupPath string `toml:"backup_path" env:"PEROXS_BACKUP_DB"`
}

// InputConfig controls key-sourcing behavior.
type InputConfig struct {
	// TerminalTimeoutSeconds bounds how long peroxs waits for a
	// passphrase to be typed at the controlling terminal before
	// failing with a timed-out key input error.
	TerminalTimeoutSeconds int `toml:"terminal_timeout_seconds" env:"PEROXS_INPUT_TIMEOUT"`

	// PinentryProgram is the pinentry binary used for the alternate
	// passphrase prompt, when not sourcing from the raw terminal.
	PinentryProgram string `toml:"pinentry_program" env:"PEROXS_PINENTRY"`

	// UsePinentry selects the pinentry prompt instead of raw terminal
	// echo-off reads.
	UsePinentry bool `toml:"use_pinentry" env:"PEROXS_USE_PINENTRY"`
}

// VolumeConfig controls how new LUKS containers are formatted.
type VolumeConfig struct {
	// IterationMs is the target PBKDF benchmark time, in milliseconds,
	// passed to the volume library when formatting or adding keyslots.
	IterationMs int `toml:"iteration_ms" env:"PEROXS_ITERATION_MS"`

	// PreferredVersion selects "v1" or "v2" LUKS headers for newly
	// formatted containers.
	PreferredVersion string `toml:"preferred_version" env:"PEROXS_LUKS_VERSION"`

	// DebugLogging enables the volume library's own verbose logging.
	DebugLogging bool `toml:"debug_logging" env:"PEROXS_VOLUME_DEBUG"`
}

// TokenConfig holds hardware token settings. The enroll command takes
// its slot and mode from the -slot and -hybrid flags and does not read
// these values.
type TokenConfig struct {
	// Slot selects which configuration slot on the token to challenge.
	Slot int `toml:"slot" env:"PEROXS_TOKEN_SLOT"`

	// HybridMode requires an accompanying passphrase alongside the
	// token's challenge-response, per the hybrid derivation scheme.
	HybridMode bool `toml:"hybrid_mode" env:"PEROXS_TOKEN_HYBRID"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `toml:"level" env:"PEROXS_LOG_LEVEL"`

	// Format is the log format (json, text).
	Format string `toml:"format" env:"PEROXS_LOG_FORMAT"`

	// Output is the log output (stdout, stderr, or file).
	Output string `toml:"output" env:"PEROXS_LOG_OUTPUT"`

	// File is the log file path when output is "file".
	File string `toml:"file" env:"PEROXS_LOG_FILE"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Database: DatabaseConfig{
			Path:       filepath.Join(homeDir, ".peroxs", "peroxs-db.json"),
			BackupPath: "",
		},
		Input: InputConfig{
			TerminalTimeoutSeconds: 60,
			PinentryProgram:        "pinentry",
			UsePinentry:            false,
		},
		Volume: VolumeConfig{
			IterationMs:      2000,
			PreferredVersion: "v2",
			DebugLogging:     false,
		},
		Token: TokenConfig{
			Slot:       2,
			HybridMode: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			File:   "",
		},
	}
}

// ConfigPaths returns the list of default configuration file paths to check.
func ConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()
	return []string{
		filepath.Join(homeDir, ".peroxs", "config.toml"),
		filepath.Join("/etc", "peroxs", "config.toml"),
		"./peroxs.toml",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}

	dbDir := filepath.Dir(c.Database.Path)
	if err := validateDirectoryWritable(dbDir); err != nil {
		return fmt.Errorf("%w: database directory %s: %w", ErrInvalidConfig, dbDir, err)
	}

	if c.Input.TerminalTimeoutSeconds < 1 {
		return fmt.Errorf("%w: input.terminal_timeout_seconds must be at least 1", ErrInvalidConfig)
	}

	if c.Volume.IterationMs < 0 {
		return fmt.Errorf("%w: volume.iteration_ms cannot be negative", ErrInvalidConfig)
	}

	switch c.Volume.PreferredVersion {
	case "v1", "v2":
	default:
		return fmt.Errorf("%w: volume.preferred_version must be v1 or v2", ErrInvalidConfig)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: logging.level must be one of: debug, info, warn, error", ErrInvalidConfig)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("%w: logging.format must be one of: json, text", ErrInvalidConfig)
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("%w: logging.output must be one of: stdout, stderr, file", ErrInvalidConfig)
	}

	if c.Logging.Output == "file" && c.Logging.File == "" {
		return fmt.Errorf("%w: logging.file is required when logging.output is 'file'", ErrInvalidConfig)
	}

	return nil
}
