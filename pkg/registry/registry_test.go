package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func stageFakeDevRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, diskByUUIDDir), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, devMapperDir), 0755))
	return root
}

func TestAllDiskUUIDsExcludesShortNames(t *testing.T) {
	root := stageFakeDevRoot(t)

	id := uuid.New()
	require.NoError(t, os.WriteFile(filepath.Join(root, diskByUUIDDir, id.String()), nil, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, diskByUUIDDir, "1234-ABCD"), nil, 0600))

	reg := NewRooted(root)
	uuids, err := reg.AllDiskUUIDs()
	require.NoError(t, err)
	require.Len(t, uuids, 1)
	require.Equal(t, id, uuids[0])
}

func TestDiskUUIDPathMissingReturnsError(t *testing.T) {
	root := stageFakeDevRoot(t)
	reg := NewRooted(root)

	_, err := reg.DiskUUIDPath(uuid.New())
	require.Error(t, err)
}

func TestDiskUUIDPathPresent(t *testing.T) {
	root := stageFakeDevRoot(t)
	id := uuid.New()
	path := filepath.Join(root, diskByUUIDDir, id.String())
	require.NoError(t, os.WriteFile(path, nil, 0600))

	reg := NewRooted(root)
	got, err := reg.DiskUUIDPath(id)
	require.NoError(t, err)
	require.Equal(t, path, got)
}

func TestIsDeviceActive(t *testing.T) {
	root := stageFakeDevRoot(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, devMapperDir, "my-disk"), nil, 0600))

	reg := NewRooted(root)
	require.True(t, reg.IsDeviceActive("my-disk"))
	require.False(t, reg.IsDeviceActive("absent-disk"))
}

func TestScanActiveCryptDevicesExcludesControl(t *testing.T) {
	root := stageFakeDevRoot(t)

	id := uuid.New()
	require.NoError(t, os.Symlink(filepath.Join("..", "..", "sda1"), filepath.Join(root, diskByUUIDDir, id.String())))

	require.NoError(t, os.MkdirAll(filepath.Join(root, sysClassBlock, "dm-3", "slaves"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, sysClassBlock, "dm-3", "slaves", "sda1"), nil, 0600))

	require.NoError(t, os.WriteFile(filepath.Join(root, devMapperDir, "control"), nil, 0600))
	require.NoError(t, os.Symlink(filepath.Join("..", "dm-3"), filepath.Join(root, devMapperDir, "my-disk")))

	reg := NewRooted(root)
	devices, err := reg.ScanActiveCryptDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, CryptDevice{
		DMName:         "dm-3",
		MappedName:     "my-disk",
		UnderlyingPath: "/dev/sda1",
		UnderlyingUUID: id,
	}, devices[0])
}

func TestIsVolumePresent(t *testing.T) {
	root := stageFakeDevRoot(t)
	id := uuid.New()
	require.NoError(t, os.WriteFile(filepath.Join(root, diskByUUIDDir, id.String()), nil, 0600))

	reg := NewRooted(root)
	require.True(t, reg.IsVolumePresent(id))
	require.False(t, reg.IsVolumePresent(uuid.New()))
}
