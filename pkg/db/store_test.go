package db

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	perr "github.com/peroxs/cryptsetup/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestOpenAtMissingFileIsDatabaseNotFound(t *testing.T) {
	_, err := OpenAt(filepath.Join(t.TempDir(), "missing-db.json"))

	var notFound *perr.DatabaseNotFound
	require.True(t, errors.As(err, &notFound))
}

func TestSaveToThenOpenAtRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peroxs-db.json")

	database := New(TypeOperation)
	database.Entries = append(database.Entries, PassphraseEntry(NewVolumeID(nil)))
	require.NoError(t, database.SaveTo(path))

	reloaded, err := OpenAt(path)
	require.NoError(t, err)
	require.Equal(t, database.Entries, reloaded.Entries)
}

func TestSaveToLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peroxs-db.json")

	database := New(TypeOperation)
	require.NoError(t, database.SaveTo(path))

	entries, err := filepathGlob(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, path, entries[0])
}

func filepathGlob(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*"))
}

func TestOpenRejectsUnsupportedFutureVersion(t *testing.T) {
	_, err := Open(strings.NewReader(`{"Entries":[],"Type":"Operation","Version":2}`))

	var versionErr *perr.DatabaseVersion
	require.True(t, errors.As(err, &versionErr))
	require.Equal(t, uint16(2), versionErr.Found)
	require.Equal(t, uint16(Version), versionErr.Supported)
}

func TestFindEntryAndFindEntryByName(t *testing.T) {
	name := "backup-disk"
	volumeID := NewVolumeID(&name)
	database := New(TypeOperation)
	database.Entries = append(database.Entries, PassphraseEntry(volumeID))

	found, ok := database.FindEntry(volumeID.UUID)
	require.True(t, ok)
	require.Equal(t, volumeID.UUID, found.VolumeID.UUID)

	found, ok = database.FindEntryByName("backup-disk")
	require.True(t, ok)
	require.Equal(t, volumeID.UUID, found.VolumeID.UUID)

	_, ok = database.FindEntryByName("nonexistent")
	require.False(t, ok)
}
