package engine

import (
	"github.com/google/uuid"

	"github.com/peroxs/cryptsetup/pkg/db"
	perr "github.com/peroxs/cryptsetup/pkg/errors"
	"github.com/peroxs/cryptsetup/pkg/keysource"
	"github.com/peroxs/cryptsetup/pkg/secret"
	"github.com/peroxs/cryptsetup/pkg/volume"
)

// EnrollParams describes a single enrollment batch: one or more disk
// paths enrolled with the same key source and the same container
// parameters.
type EnrollParams struct {
	// Name is attached to the volume only when exactly one path is
	// being enrolled; giving the same name to multiple disks would
	// violate entry-distinctness.
	Name *string

	Entry EntrySource

	// Format, when true, writes a brand new LUKS header on every path.
	// When false, every path MUST already carry a header and an
	// existing key is required to add the new one.
	Format      bool
	ForceFormat bool

	FormatParams volume.FormatParams
	IterationMs  int

	// BackupKey, when set, sources the existing key for an add-keyslot
	// enrollment instead of prompting with a plain passphrase entry.
	BackupKey keysource.KeyInput
}

type diskProbe struct {
	path   string
	handle volume.Handle
	uuid   *uuid.UUID
}

// EnrollDisks probes each path for an existing header, validates the
// batch as a whole, assigns volume identities, then either formats fresh
// containers or adds a keyslot to already-formatted ones, saving the
// database once after every disk has succeeded.
func (e *Engine) EnrollDisks(database *db.Database, dbPath string, paths []string, params EnrollParams) ([]db.Entry, error) {
	probes := make([]diskProbe, 0, len(paths))
	for _, path := range paths {
		handle, err := e.Open(path)
		if err != nil {
			return nil, &perr.VolumeLibrary{Err: err}
		}

		var idPtr *uuid.UUID
		if id, err := handle.UUIDOf(); err == nil {
			idCopy := id
			idPtr = &idCopy
		}
		probes = append(probes, diskProbe{path: path, handle: handle, uuid: idPtr})
	}

	countFormatted := 0
	for _, p := range probes {
		if p.uuid != nil {
			if database.EntryExists(*p.uuid) {
				return nil, &perr.EntryAlreadyExists{UUID: p.uuid.String()}
			}
			if params.Format && !params.ForceFormat {
				return nil, &perr.DeviceAlreadyFormatted{UUID: p.uuid.String()}
			}
			countFormatted++
		}
	}
	if !params.Format && countFormatted != len(probes) {
		return nil, &perr.NotAllDisksAlreadyFormatted{}
	}

	volumeIDs := make([]db.VolumeID, len(probes))
	for i, p := range probes {
		var name *string
		if len(probes) == 1 {
			name = params.Name
		}
		id := uuid.New()
		if p.uuid != nil {
			id = *p.uuid
		}
		volumeIDs[i] = db.VolumeIDOf(name, id)
	}

	if len(dedupeVolumeIDs(volumeIDs)) < len(volumeIDs) {
		return nil, &perr.DiskIdDuplicatesFound{}
	}

	entries := make([]db.Entry, len(probes))
	for i, id := range volumeIDs {
		entries[i] = params.Entry.entryFor(id)
	}

	if params.Format {
		if err := e.formatAll(probes, entries, params); err != nil {
			return nil, err
		}
	} else {
		if err := e.addKeyslotAll(probes, entries, params); err != nil {
			return nil, err
		}
	}

	database.Entries = append(database.Entries, entries...)
	if err := database.SaveTo(dbPath); err != nil {
		return nil, err
	}

	return entries, nil
}

// formatAll sources exactly one new key (from the first entry) and
// formats every disk in the batch with it, propagating any V2 token ID
// the library assigns back onto the entry's volume identity.
func (e *Engine) formatAll(probes []diskProbe, entries []db.Entry, params EnrollParams) error {
	for i, p := range probes {
		if entries[i].Type == db.EntryTypeToken && params.FormatParams.V2 != nil && !p.handle.SupportsTokenAttachment() {
			return &perr.FeatureNotAvailable{Feature: "LUKS2 token attachment on " + p.path}
		}
	}

	newKey, err := keysource.GetKeyFor(entries[0], e.KeySource, e.DBDir, nil, nil, true)
	if err != nil {
		return err
	}
	defer newKey.Destroy()

	for i, p := range probes {
		formatParams := withVolumeIdentity(params.FormatParams, entries[i].VolumeID)

		result, err := p.handle.Format(formatParams, newKey)
		if err != nil {
			return &perr.VolumeLibrary{Err: err}
		}
		if result.TokenID != nil {
			entries[i].VolumeID.LUKS2TokenID = result.TokenID
		}
	}
	return nil
}

// addKeyslotAll sources the existing key once (via params.BackupKey if
// set, else a plain passphrase prompt against the first volume), sources
// one new key, and enrolls that new key into every disk in the batch.
func (e *Engine) addKeyslotAll(probes []diskProbe, entries []db.Entry, params EnrollParams) error {
	prevKey, err := e.promptOldKey(entries[0].VolumeID, params.BackupKey)
	if err != nil {
		return err
	}
	defer prevKey.Destroy()

	newKey, err := keysource.GetKeyFor(entries[0], e.KeySource, e.DBDir, nil, nil, true)
	if err != nil {
		return err
	}
	defer newKey.Destroy()

	for _, p := range probes {
		if _, err := p.handle.AddKeyslot(newKey, prevKey, params.IterationMs); err != nil {
			return &perr.VolumeLibrary{Err: err}
		}
	}
	return nil
}

func (e *Engine) promptOldKey(volumeID db.VolumeID, backupKey keysource.KeyInput) (*secret.Buffer, error) {
	if backupKey != nil {
		id := volumeID.UUID
		return backupKey.GetKey(keysource.Request{Name: volumeID.String(), UUID: &id}, false)
	}

	entry := db.PassphraseEntry(volumeID)
	return keysource.GetKeyFor(entry, e.KeySource, e.DBDir, nil, nil, false)
}

func withVolumeIdentity(params volume.FormatParams, id db.VolumeID) volume.FormatParams {
	uuidCopy := id.UUID
	switch {
	case params.V1 != nil:
		v1 := *params.V1
		v1.UUID = &uuidCopy
		return volume.FormatParams{V1: &v1}
	case params.V2 != nil:
		v2 := *params.V2
		v2.UUID = &uuidCopy
		if v2.SaveLabelInHeader {
			v2.Label = id.Name
		}
		return volume.FormatParams{V2: &v2}
	default:
		return params
	}
}
