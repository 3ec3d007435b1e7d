package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "peroxs-db.json")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestValidateRejectsBadLuksVersion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "peroxs-db.json")
	cfg.Volume.PreferredVersion = "v3"

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unsupported luks version")
	}
}

func TestValidateRejectsZeroTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "peroxs-db.json")
	cfg.Input.TerminalTimeoutSeconds = 0

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero terminal timeout")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "peroxs-db.json")
	cfg.Token.Slot = 3

	cfgPath := filepath.Join(dir, "peroxs.toml")
	if err := Save(cfg, cfgPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Token.Slot != 3 {
		t.Fatalf("expected slot 3, got %d", loaded.Token.Slot)
	}
}
