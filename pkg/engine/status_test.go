package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/peroxs/cryptsetup/pkg/db"
	"github.com/peroxs/cryptsetup/pkg/keysource"
	"github.com/peroxs/cryptsetup/pkg/registry"
	"github.com/peroxs/cryptsetup/pkg/volume"
)

func TestStatusReportsPresentAndActive(t *testing.T) {
	dir := t.TempDir()
	devRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(devRoot, "dev", "disk", "by-uuid"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(devRoot, "dev", "mapper"), 0755))

	present := uuid.New()
	require.NoError(t, os.WriteFile(filepath.Join(devRoot, "dev", "disk", "by-uuid", present.String()), nil, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(devRoot, "dev", "mapper", "vault"), nil, 0600))

	absent := uuid.New()

	name := "vault"
	database := db.New(db.TypeOperation)
	database.Entries = append(database.Entries,
		db.PassphraseEntry(db.VolumeIDOf(&name, present)),
		db.PassphraseEntry(db.VolumeIDOf(nil, absent)),
	)

	e := New(func(string) (volume.Handle, error) { return nil, os.ErrNotExist }, registry.NewRooted(devRoot), keysource.Config{}, dir)

	statuses := e.Status(database)
	require.Len(t, statuses, 2)
	require.True(t, statuses[0].Present)
	require.True(t, statuses[0].Active)
	require.False(t, statuses[1].Present)
	require.False(t, statuses[1].Active)
}
