package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/peroxs/cryptsetup/pkg/db"
	perr "github.com/peroxs/cryptsetup/pkg/errors"
	"github.com/peroxs/cryptsetup/pkg/keysource"
	"github.com/peroxs/cryptsetup/pkg/secret"
)

// MapperName is the name an activated device appears under in
// /dev/mapper.
type MapperName = string

type openCandidate struct {
	path  string
	uuid  uuid.UUID
	entry db.Entry
}

// resolveReference turns a caller-supplied DiskReference into a device
// path: a UUID string resolves through the registry's by-uuid symlinks,
// a name resolves to its entry's UUID and then the same way, and
// anything else is taken as a raw filesystem path.
func (e *Engine) resolveReference(database *db.Database, ref string) (string, error) {
	if id, err := uuid.Parse(ref); err == nil {
		path, err := e.Registry.DiskUUIDPath(id)
		if err != nil {
			return "", &perr.VolumeNotFound{VolumeID: ref}
		}
		return path, nil
	}

	if entry, ok := database.FindEntryByName(ref); ok {
		path, err := e.Registry.DiskUUIDPath(entry.VolumeID.UUID)
		if err != nil {
			return "", &perr.VolumeNotFound{VolumeID: ref}
		}
		return path, nil
	}

	return ref, nil
}

// OpenDisks resolves each reference to a device and database entry,
// computes the mapper name each would activate under, rejects any name
// already active, then activates every device with the key sourced once
// (from the first entry) when opening more than one disk at a time.
func (e *Engine) OpenDisks(database *db.Database, refs []string, nameOverride *string) ([]MapperName, error) {
	candidates := make([]openCandidate, 0, len(refs))
	uuids := make(map[uuid.UUID]bool)

	for _, ref := range refs {
		path, err := e.resolveReference(database, ref)
		if err != nil {
			return nil, err
		}

		handle, err := e.Open(path)
		if err != nil {
			return nil, &perr.VolumeReadError{Path: path, Err: err}
		}

		id, err := handle.UUIDOf()
		if err != nil {
			return nil, &perr.VolumeReadError{Path: path, Err: err}
		}

		entry, ok := database.FindEntry(id)
		if !ok {
			return nil, &perr.DiskEntryNotFound{UUID: id.String()}
		}

		if uuids[id] {
			return nil, &perr.DiskIdDuplicatesFound{}
		}
		uuids[id] = true

		candidates = append(candidates, openCandidate{path: path, uuid: id, entry: entry})
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = mapperNameFor(c.entry, nameOverride, i, len(candidates))
		if e.Registry.IsDeviceActive(names[i]) {
			return nil, &perr.DeviceAlreadyActivated{Name: names[i]}
		}
	}

	var sharedKey *secret.Buffer
	if len(candidates) > 1 {
		k, err := keysource.GetKeyFor(candidates[0].entry, e.KeySource, e.DBDir, nil, nil, false)
		if err != nil {
			return nil, err
		}
		defer k.Destroy()
		sharedKey = k
	}

	mapperNames := make([]MapperName, len(candidates))
	for i, c := range candidates {
		handle, err := e.Open(c.path)
		if err != nil {
			return nil, &perr.VolumeLibrary{Err: err}
		}

		key := sharedKey
		if key == nil {
			singleKey, kerr := keysource.GetKeyFor(c.entry, e.KeySource, e.DBDir, nameOverride, nil, false)
			if kerr != nil {
				return nil, kerr
			}
			key = singleKey
		}

		_, err = handle.Activate(names[i], key)
		if sharedKey == nil {
			key.Destroy()
		}
		if err != nil {
			return nil, &perr.VolumeLibrary{Err: err}
		}

		mapperNames[i] = names[i]
	}

	return mapperNames, nil
}

func mapperNameFor(entry db.Entry, nameOverride *string, index, total int) string {
	if total == 1 {
		if nameOverride != nil {
			return *nameOverride
		}
		if entry.VolumeID.Name != nil {
			return *entry.VolumeID.Name
		}
		return fmt.Sprintf("uuid_%s", entry.VolumeID.UUID)
	}

	if nameOverride != nil {
		return fmt.Sprintf("%s_%d", *nameOverride, index)
	}
	if entry.VolumeID.Name != nil {
		return *entry.VolumeID.Name
	}
	return fmt.Sprintf("uuid_%s", entry.VolumeID.UUID)
}
