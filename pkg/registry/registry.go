// Package registry resolves LUKS volumes against the OS's udev-maintained
// device namespace: /dev/disk/by-uuid for UUID-to-path resolution, and
// /dev/mapper for active device-mapper names. Grounded on the original
// tool's device.rs Disks type.
package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	diskByUUIDDir = "/dev/disk/by-uuid"
	devMapperDir  = "/dev/mapper"
	sysClassBlock = "/sys/class/block"

	// uuidStringLength is len("xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx").
	// FAT32/NTFS volumes carry shorter UUIDs and can never be LUKS
	// volumes, so entries of the wrong length are filtered out.
	uuidStringLength = 36
)

// Registry resolves volumes against the live device namespace under the
// given root (normally "/", overridable in tests).
type Registry struct {
	root string
}

// New constructs a Registry rooted at "/".
func New() *Registry {
	return &Registry{root: "/"}
}

// NewRooted constructs a Registry rooted at an arbitrary directory, for
// tests that stage a fake /dev/disk/by-uuid and /dev/mapper layout.
func NewRooted(root string) *Registry {
	return &Registry{root: root}
}

func (r *Registry) path(elem ...string) string {
	return filepath.Join(append([]string{r.root}, elem...)...)
}

// DiskUUIDPath returns the canonical path under /dev/disk/by-uuid for id,
// erroring if no such symlink exists.
func (r *Registry) DiskUUIDPath(id uuid.UUID) (string, error) {
	path := filepath.Join(r.path(diskByUUIDDir), id.String())

	info, err := os.Lstat(path)
	if err != nil {
		return "", fmt.Errorf("disk uuid path %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink == 0 && !info.Mode().IsRegular() {
		return "", fmt.Errorf("disk path %s is not a file or symlink", path)
	}
	return path, nil
}

// AllDiskUUIDs enumerates every UUID visible under /dev/disk/by-uuid,
// excluding entries whose name is not a full-length UUID string.
func (r *Registry) AllDiskUUIDs() ([]uuid.UUID, error) {
	entries, err := os.ReadDir(r.path(diskByUUIDDir))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", diskByUUIDDir, err)
	}

	uuids := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if len(name) != uuidStringLength {
			continue
		}
		id, err := uuid.Parse(name)
		if err != nil {
			continue
		}
		uuids = append(uuids, id)
	}
	return uuids, nil
}

// IsDeviceActive reports whether name is mapped under /dev/mapper.
func (r *Registry) IsDeviceActive(name string) bool {
	info, err := os.Stat(filepath.Join(r.path(devMapperDir), name))
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// IsVolumePresent reports whether id currently resolves to a disk path,
// i.e. the backing device is physically attached.
func (r *Registry) IsVolumePresent(id uuid.UUID) bool {
	_, err := r.DiskUUIDPath(id)
	return err == nil
}

// CryptDevice describes one active device-mapper entry backing a LUKS
// volume: its kernel block device name, its friendly /dev/mapper name,
// and the underlying disk it is layered over.
type CryptDevice struct {
	DMName         string
	MappedName     string
	UnderlyingPath string
	UnderlyingUUID uuid.UUID
}

// ScanActiveCryptDevices enumerates every entry currently mapped under
// /dev/mapper (the "control" node is skipped) and
// cross-references each one, via /sys/class/block/<dm-N>/slaves, back to
// the underlying disk and UUID it is layered over.
func (r *Registry) ScanActiveCryptDevices() ([]CryptDevice, error) {
	entries, err := os.ReadDir(r.path(devMapperDir))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", devMapperDir, err)
	}

	diskUUIDs, err := r.uuidsByDiskName()
	if err != nil {
		return nil, err
	}

	devices := make([]CryptDevice, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "control" {
			continue
		}
		mappedName := entry.Name()

		dmName, err := r.dmNameFor(mappedName)
		if err != nil {
			continue
		}

		underlying, ok := r.underlyingDiskFor(dmName)
		if !ok {
			continue
		}

		devices = append(devices, CryptDevice{
			DMName:         dmName,
			MappedName:     mappedName,
			UnderlyingPath: filepath.Join("/dev", underlying),
			UnderlyingUUID: diskUUIDs[underlying],
		})
	}
	return devices, nil
}

// dmNameFor resolves /dev/mapper/<mappedName>'s target, e.g. "../dm-3",
// to its kernel block device name, e.g. "dm-3".
func (r *Registry) dmNameFor(mappedName string) (string, error) {
	target, err := os.Readlink(filepath.Join(r.path(devMapperDir), mappedName))
	if err != nil {
		return "", fmt.Errorf("readlink %s: %w", mappedName, err)
	}
	return filepath.Base(target), nil
}

// underlyingDiskFor reads /sys/class/block/<dmName>/slaves, which
// device-mapper populates with one entry per backing device. A LUKS
// mapping always has exactly one slave.
func (r *Registry) underlyingDiskFor(dmName string) (string, bool) {
	slaves, err := os.ReadDir(filepath.Join(r.path(sysClassBlock), dmName, "slaves"))
	if err != nil || len(slaves) == 0 {
		return "", false
	}
	return slaves[0].Name(), true
}

// uuidsByDiskName inverts /dev/disk/by-uuid into disk-name -> UUID, by
// resolving each UUID symlink's target.
func (r *Registry) uuidsByDiskName() (map[string]uuid.UUID, error) {
	uuids, err := r.AllDiskUUIDs()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]uuid.UUID, len(uuids))
	for _, id := range uuids {
		target, err := os.Readlink(filepath.Join(r.path(diskByUUIDDir), id.String()))
		if err != nil {
			continue
		}
		byName[filepath.Base(target)] = id
	}
	return byName, nil
}
