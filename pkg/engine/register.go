package engine

import (
	"github.com/peroxs/cryptsetup/pkg/db"
	perr "github.com/peroxs/cryptsetup/pkg/errors"
)

// RegisterParams describes a disk whose LUKS header and keyslot already
// exist, to be appended to the database without touching the volume at
// all. Token entries are rejected: the key material for a token entry is
// only ever meaningful alongside the hardware that produced it, which
// registration (unlike enrollment) has no opportunity to verify.
type RegisterParams struct {
	Name  *string
	Entry EntrySource
}

// ErrTokenNotRegisterable is returned when RegisterParams.Entry.Kind is
// db.EntryTypeToken.
type ErrTokenNotRegisterable struct{}

func (ErrTokenNotRegisterable) Error() string {
	return "token entries cannot be registered; enroll them instead"
}

// RegisterDisk reads the header UUID off an already-formatted,
// already-keyed disk and appends a matching entry to the database,
// without performing any volume-adapter mutation.
func (e *Engine) RegisterDisk(database *db.Database, dbPath, path string, params RegisterParams) (db.Entry, error) {
	if params.Entry.Kind == db.EntryTypeToken {
		return db.Entry{}, ErrTokenNotRegisterable{}
	}

	handle, err := e.Open(path)
	if err != nil {
		return db.Entry{}, &perr.VolumeReadError{Path: path, Err: err}
	}

	id, err := handle.UUIDOf()
	if err != nil {
		return db.Entry{}, &perr.VolumeReadError{Path: path, Err: err}
	}

	if database.EntryExists(id) {
		return db.Entry{}, &perr.EntryAlreadyExists{UUID: id.String()}
	}

	volumeID := db.VolumeIDOf(params.Name, id)
	entry := params.Entry.entryFor(volumeID)

	database.Entries = append(database.Entries, entry)
	if err := database.SaveTo(dbPath); err != nil {
		return db.Entry{}, err
	}

	return entry, nil
}
