package db

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// volumeIDWire mirrors the on-disk shape of VolumeId from the original
// peroxide-cryptsetup database: the nested {"id":{"uuid":...}} wrapper
// is a historical artifact of a hand-written UUID serializer that
// predates switching to a UUID library with native JSON support, kept
// so existing peroxs-db.json files still parse.
type volumeIDWire struct {
	Name         *string      `json:"name"`
	ID           volumeUUID   `json:"id"`
	LUKS2TokenID *int32       `json:"luks2_token_id,omitempty"`
}

type volumeUUID struct {
	UUID uuid.UUID `json:"uuid"`
}

func (v VolumeID) toWire() volumeIDWire {
	return volumeIDWire{
		Name:         v.Name,
		ID:           volumeUUID{UUID: v.UUID},
		LUKS2TokenID: v.LUKS2TokenID,
	}
}

func (w volumeIDWire) toVolumeID() VolumeID {
	return VolumeID{
		Name:         w.Name,
		UUID:         w.ID.UUID,
		LUKS2TokenID: w.LUKS2TokenID,
	}
}

// MarshalJSON implements the VolumeId wire shape.
func (v VolumeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toWire())
}

// UnmarshalJSON implements the VolumeId wire shape.
func (v *VolumeID) UnmarshalJSON(data []byte) error {
	var w volumeIDWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*v = w.toVolumeID()
	return nil
}

type keyfileEntryWire struct {
	KeyFile  string       `json:"key_file"`
	VolumeID volumeIDWire `json:"volume_id"`
}

type passphraseEntryWire struct {
	VolumeID volumeIDWire `json:"volume_id"`
}

type tokenEntryWire struct {
	EntryType TokenMode    `json:"entry_type"`
	Slot      int          `json:"slot"`
	VolumeID  volumeIDWire `json:"volume_id"`
}

// MarshalJSON externally tags the entry by its variant name, matching
// serde's default enum representation.
func (e Entry) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EntryTypeKeyfile:
		return json.Marshal(map[string]keyfileEntryWire{
			string(EntryTypeKeyfile): {KeyFile: e.KeyFile, VolumeID: e.VolumeID.toWire()},
		})
	case EntryTypePassphrase:
		return json.Marshal(map[string]passphraseEntryWire{
			string(EntryTypePassphrase): {VolumeID: e.VolumeID.toWire()},
		})
	case EntryTypeToken:
		return json.Marshal(map[string]tokenEntryWire{
			string(EntryTypeToken): {EntryType: e.Mode, Slot: e.Slot, VolumeID: e.VolumeID.toWire()},
		})
	default:
		return nil, fmt.Errorf("db: cannot marshal entry with unknown type %q", e.Type)
	}
}

// UnmarshalJSON parses the externally-tagged entry shape.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return fmt.Errorf("db: entry must have exactly one variant key, got %d", len(tagged))
	}

	for tag, body := range tagged {
		switch EntryType(tag) {
		case EntryTypeKeyfile:
			var w keyfileEntryWire
			if err := json.Unmarshal(body, &w); err != nil {
				return err
			}
			*e = Entry{Type: EntryTypeKeyfile, KeyFile: w.KeyFile, VolumeID: w.VolumeID.toVolumeID()}
		case EntryTypePassphrase:
			var w passphraseEntryWire
			if err := json.Unmarshal(body, &w); err != nil {
				return err
			}
			*e = Entry{Type: EntryTypePassphrase, VolumeID: w.VolumeID.toVolumeID()}
		case EntryTypeToken:
			var w tokenEntryWire
			if err := json.Unmarshal(body, &w); err != nil {
				return err
			}
			*e = Entry{Type: EntryTypeToken, Mode: w.EntryType, Slot: w.Slot, VolumeID: w.VolumeID.toVolumeID()}
		default:
			return fmt.Errorf("db: unknown entry variant %q", tag)
		}
	}
	return nil
}

type databaseWire struct {
	Entries []Entry `json:"entries"`
	DbType  Type    `json:"db_type"`
	Version uint16  `json:"version"`
}

// MarshalJSON implements the Database wire shape.
func (d Database) MarshalJSON() ([]byte, error) {
	entries := d.Entries
	if entries == nil {
		entries = []Entry{}
	}
	return json.Marshal(databaseWire{Entries: entries, DbType: d.Type, Version: d.Version})
}

// UnmarshalJSON implements the Database wire shape.
func (d *Database) UnmarshalJSON(data []byte) error {
	var w databaseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	d.Entries = w.Entries
	d.Type = w.DbType
	d.Version = w.Version
	return nil
}
