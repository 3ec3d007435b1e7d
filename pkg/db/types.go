// Package db implements the peroxs key database: a single JSON file
// recording, per enrolled volume, which key source unlocks it.
package db

import (
	"fmt"

	"github.com/google/uuid"
)

// Version is the only database schema version peroxs understands.
const Version = 1

// DefaultName is the file name peroxs looks for in the current
// directory when no explicit path is configured.
const DefaultName = "peroxs-db.json"

// Type distinguishes an operational database (the one peroxs writes
// keyslots against) from a backup database consulted as a fallback
// key source.
type Type string

const (
	TypeOperation Type = "Operation"
	TypeBackup    Type = "Backup"
)

// VolumeID identifies an enrolled volume: an optional friendly name,
// the LUKS UUID, and — for LUKS2 containers — the token slot peroxs
// registered the key under.
//
// The nested {"id":{"uuid":...}} shape looks redundant but matches the
// wire format of the pre-rewrite database so existing peroxs-db.json
// files keep parsing.
type VolumeID struct {
	Name         *string
	UUID         uuid.UUID
	LUKS2TokenID *int32
}

// NewVolumeID allocates a fresh random volume identifier.
func NewVolumeID(name *string) VolumeID {
	return VolumeID{Name: name, UUID: uuid.New()}
}

// VolumeIDOf builds a volume identifier around an existing UUID, e.g.
// one read off a disk's LUKS header.
func VolumeIDOf(name *string, id uuid.UUID) VolumeID {
	return VolumeID{Name: name, UUID: id}
}

func (v VolumeID) String() string {
	if v.Name != nil {
		return fmt.Sprintf("Volume(%s, %s)", *v.Name, v.UUID)
	}
	return fmt.Sprintf("Volume(%s)", v.UUID)
}

// EntryType enumerates the key-source kinds a DbEntry can carry.
type EntryType string

const (
	EntryTypeKeyfile    EntryType = "KeyfileEntry"
	EntryTypePassphrase EntryType = "PassphraseEntry"
	EntryTypeToken      EntryType = "YubikeyEntry"
)

// TokenMode selects plain challenge-response or the hybrid derivation
// that also mixes in an accompanying passphrase.
type TokenMode string

const (
	TokenModeChallengeResponse       TokenMode = "ChallengeResponse"
	TokenModeHybridChallengeResponse TokenMode = "HybridChallengeResponse"
)

// Entry is a tagged union over the three key-source kinds the database
// can record for a volume, selected by Type. KeyFile is used only by
// keyfile entries; Slot and Mode only by token entries.
type Entry struct {
	Type EntryType

	// KeyFile is set when Type == EntryTypeKeyfile.
	KeyFile string
	// Slot and Mode are set when Type == EntryTypeToken.
	Slot int
	Mode TokenMode

	VolumeID VolumeID
}

// KeyfileEntry builds a database entry sourced from a keyfile on disk.
func KeyfileEntry(keyFile string, volumeID VolumeID) Entry {
	return Entry{Type: EntryTypeKeyfile, KeyFile: keyFile, VolumeID: volumeID}
}

// PassphraseEntry builds a database entry sourced from a passphrase
// prompt.
func PassphraseEntry(volumeID VolumeID) Entry {
	return Entry{Type: EntryTypePassphrase, VolumeID: volumeID}
}

// TokenEntry builds a database entry sourced from a hardware token
// challenge-response, in the given slot and mode.
func TokenEntry(mode TokenMode, slot int, volumeID VolumeID) Entry {
	return Entry{Type: EntryTypeToken, Mode: mode, Slot: slot, VolumeID: volumeID}
}

// Database is the full contents of peroxs-db.json.
type Database struct {
	Entries []Entry
	Type    Type
	Version uint16
}

// New creates an empty database of the given type.
func New(dbType Type) *Database {
	return &Database{
		Entries: []Entry{},
		Type:    dbType,
		Version: Version,
	}
}

// EntryExists reports whether the database already has an entry for
// the given volume UUID.
func (d *Database) EntryExists(id uuid.UUID) bool {
	_, ok := d.FindEntry(id)
	return ok
}

// FindEntry looks up the entry for a volume UUID.
func (d *Database) FindEntry(id uuid.UUID) (Entry, bool) {
	for _, e := range d.Entries {
		if e.VolumeID.UUID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// FindEntryByName looks up the entry carrying the given friendly name.
func (d *Database) FindEntryByName(name string) (Entry, bool) {
	for _, e := range d.Entries {
		if e.VolumeID.Name != nil && *e.VolumeID.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
