package engine

import "github.com/peroxs/cryptsetup/pkg/db"

// StatusEntry reports one database entry's live state against the device
// registry: whether the backing disk is physically attached, and whether
// it is currently activated under /dev/mapper.
type StatusEntry struct {
	Entry   db.Entry
	Present bool
	Active  bool
}

// Status implements the read-only query behind the original peroxs-tray's
// "active" / "enrolled but inactive" distinction: for every entry in
// database, cross-reference the registry to report presence and
// activation without touching any volume.
func (e *Engine) Status(database *db.Database) []StatusEntry {
	statuses := make([]StatusEntry, len(database.Entries))
	for i, entry := range database.Entries {
		active := false
		if entry.VolumeID.Name != nil {
			active = e.Registry.IsDeviceActive(*entry.VolumeID.Name)
		}

		statuses[i] = StatusEntry{
			Entry:   entry,
			Present: e.Registry.IsVolumePresent(entry.VolumeID.UUID),
			Active:  active,
		}
	}
	return statuses
}
