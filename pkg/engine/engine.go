// Package engine implements the operations a caller actually drives a
// peroxs database through: enrolling disks, opening disks, registering
// already-formatted disks, and reporting their live status. Each engine
// function coordinates pkg/db, pkg/keysource, pkg/volume and pkg/registry,
// grounded on the original tool's context.rs.
package engine

import (
	"sort"

	"github.com/google/uuid"

	"github.com/peroxs/cryptsetup/pkg/db"
	"github.com/peroxs/cryptsetup/pkg/keysource"
	"github.com/peroxs/cryptsetup/pkg/registry"
	"github.com/peroxs/cryptsetup/pkg/volume"
)

// EntrySource describes how the caller wants a new entry's key sourced;
// it mirrors the Rust EntryParams enum (Keyfile/Passphrase/Yubikey).
type EntrySource struct {
	Kind      db.EntryType
	KeyFile   string // set when Kind == db.EntryTypeKeyfile
	TokenSlot int    // set when Kind == db.EntryTypeToken
	TokenMode db.TokenMode
}

func (s EntrySource) entryFor(volumeID db.VolumeID) db.Entry {
	switch s.Kind {
	case db.EntryTypeKeyfile:
		return db.KeyfileEntry(s.KeyFile, volumeID)
	case db.EntryTypeToken:
		return db.TokenEntry(s.TokenMode, s.TokenSlot, volumeID)
	default:
		return db.PassphraseEntry(volumeID)
	}
}

// Engine bundles the dependencies the enroll/open/register operations
// need: a way to open a volume.Handle for a device path, a registry for
// resolving UUIDs to live devices, and the key-sourcing configuration.
type Engine struct {
	Open      volume.Opener
	Registry  *registry.Registry
	KeySource keysource.Config
	DBDir     string
}

// New constructs an Engine. dbDir is the directory the database file
// lives in, used to resolve relative keyfile paths.
func New(opener volume.Opener, reg *registry.Registry, cfg keysource.Config, dbDir string) *Engine {
	return &Engine{Open: opener, Registry: reg, KeySource: cfg, DBDir: dbDir}
}

func dedupeVolumeIDs(ids []db.VolumeID) []db.VolumeID {
	sorted := make([]db.VolumeID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UUID.String() < sorted[j].UUID.String() })

	out := sorted[:0]
	var prev *uuid.UUID
	for _, id := range sorted {
		if prev != nil && *prev == id.UUID {
			continue
		}
		idCopy := id.UUID
		prev = &idCopy
		out = append(out, id)
	}
	return out
}
