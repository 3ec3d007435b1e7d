// Package keysource resolves a database entry to its key material,
// prompting the user or reading hardware as the entry's type demands.
package keysource

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/peroxs/cryptsetup/pkg/db"
	perr "github.com/peroxs/cryptsetup/pkg/errors"
	"github.com/peroxs/cryptsetup/pkg/secret"
	"github.com/peroxs/cryptsetup/pkg/token"
)

// Request describes what is being unlocked, for building user-facing
// prompts.
type Request struct {
	// Name is the volume's friendly name, or "unknown" if it has none.
	Name string
	// UUID is the volume's LUKS UUID, when known. For a volume being
	// formatted it is the UUID the new header will be given.
	UUID *uuid.UUID
	// PromptOverride replaces the default generated prompt text.
	PromptOverride *string
}

func (r Request) prompt(isNew bool, suffix string) string {
	if r.PromptOverride != nil {
		return *r.PromptOverride
	}
	if isNew {
		return fmt.Sprintf("Enter new passphrase for %s%s:", r.Name, suffix)
	}
	if r.UUID != nil {
		return fmt.Sprintf("Enter passphrase to unlock %s (uuid=%s)%s:", r.Name, r.UUID, suffix)
	}
	return fmt.Sprintf("Enter passphrase to unlock %s%s:", r.Name, suffix)
}

// KeyInput sources key material for one entry kind.
type KeyInput interface {
	GetKey(req Request, isNew bool) (*secret.Buffer, error)
}

// Config controls how passphrase/keyfile/token inputs behave.
type Config struct {
	// TerminalTimeout bounds how long a terminal passphrase prompt
	// waits for input before failing. Zero means wait indefinitely.
	TerminalTimeout time.Duration

	// UsePinentry selects the pinentry program instead of a raw
	// terminal read.
	UsePinentry bool
	// PinentryProgram is the pinentry binary to run.
	PinentryProgram string

	// TokenDevice is the hardware token backend used for Token
	// entries. If nil, Token entries fail with FeatureNotAvailable.
	TokenDevice token.Device
}

// For resolves the KeyInput implementation appropriate for entry,
// resolving any on-disk keyfile path relative to dbDir (the directory
// the database file lives in).
func For(entry db.Entry, cfg Config, dbDir string) (KeyInput, error) {
	switch entry.Type {
	case db.EntryTypeKeyfile:
		return newKeyfilePrompt(entry.KeyFile, dbDir)
	case db.EntryTypePassphrase:
		return passphraseInput(cfg), nil
	case db.EntryTypeToken:
		if cfg.TokenDevice == nil {
			return nil, perr.NewKeyInputError(perr.KeyInputFeatureNotAvailable, fmt.Errorf("no hardware token configured"))
		}
		return &TokenPrompt{
			Device:            cfg.TokenDevice,
			Slot:              entry.Slot,
			Mode:              entry.Mode,
			UUID:              entry.VolumeID.UUID,
			PassphraseInput:   passphraseInput(cfg),
		}, nil
	default:
		return nil, perr.NewKeyInputError(perr.KeyInputFeatureNotAvailable, fmt.Errorf("unknown entry type %q", entry.Type))
	}
}

func passphraseInput(cfg Config) KeyInput {
	if cfg.UsePinentry {
		program := cfg.PinentryProgram
		if program == "" {
			program = "pinentry"
		}
		return &PinentryPrompt{Timeout: cfg.TerminalTimeout, Program: program}
	}
	return &TerminalPrompt{Timeout: cfg.TerminalTimeout}
}

func newKeyfilePrompt(keyPath, workingDir string) (KeyInput, error) {
	resolved := keyPath
	if !filepath.IsAbs(keyPath) {
		resolved = filepath.Join(workingDir, keyPath)
	}
	return &KeyfilePrompt{KeyFile: resolved}, nil
}

// GetKeyFor sources the key for a database entry end to end: resolving
// the input method, building the prompt request from the entry's
// volume identity (or nameOverride/promptOverride when given), and
// reading the key.
func GetKeyFor(entry db.Entry, cfg Config, dbDir string, nameOverride, promptOverride *string, isNew bool) (*secret.Buffer, error) {
	method, err := For(entry, cfg, dbDir)
	if err != nil {
		return nil, err
	}

	name := "unknown"
	if nameOverride != nil {
		name = *nameOverride
	} else if entry.VolumeID.Name != nil {
		name = *entry.VolumeID.Name
	}

	id := entry.VolumeID.UUID
	req := Request{Name: name, UUID: &id, PromptOverride: promptOverride}

	return method.GetKey(req, isNew)
}
