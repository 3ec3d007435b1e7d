package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/peroxs/cryptsetup/pkg/db"
	perr "github.com/peroxs/cryptsetup/pkg/errors"
	"github.com/peroxs/cryptsetup/pkg/keysource"
	"github.com/peroxs/cryptsetup/pkg/registry"
	"github.com/peroxs/cryptsetup/pkg/secret"
	"github.com/peroxs/cryptsetup/pkg/volume"
)

func setupDbDirWithKeyfile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.txt"), []byte(contents), 0600))
	return dir
}

func mockOpenerFor(handles map[string]volume.Handle) volume.Opener {
	return func(path string) (volume.Handle, error) {
		h, ok := handles[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return h, nil
	}
}

func newTestEngine(t *testing.T, dbDir string, handles map[string]volume.Handle) *Engine {
	t.Helper()
	return New(mockOpenerFor(handles), registry.NewRooted(t.TempDir()), keysource.Config{}, dbDir)
}

func TestEnrollDisksFormatsNewDiskAndPersists(t *testing.T) {
	dbDir := setupDbDirWithKeyfile(t, "my-new-key")
	dbPath := filepath.Join(dbDir, "peroxs-db.json")

	handle := volume.NewMockHandle("/dev/sdx1", nil)
	e := newTestEngine(t, dbDir, map[string]volume.Handle{"/dev/sdx1": handle})

	database := db.New(db.TypeOperation)
	entries, err := e.EnrollDisks(database, dbPath, []string{"/dev/sdx1"}, EnrollParams{
		Entry:        EntrySource{Kind: db.EntryTypeKeyfile, KeyFile: "key.txt"},
		Format:       true,
		FormatParams: volume.FormatParams{V1: &volume.V1Params{Cipher: "aes", CipherMode: "xts-plain64", Hash: "sha256", MKBits: 256}},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, db.EntryTypeKeyfile, entries[0].Type)
	require.Len(t, database.Entries, 1)

	reopened, err := db.OpenAt(dbPath)
	require.NoError(t, err)
	require.Len(t, reopened.Entries, 1)
	require.Equal(t, entries[0].VolumeID.UUID, reopened.Entries[0].VolumeID.UUID)
}

func TestEnrollDisksRejectsAlreadyFormattedWithoutForce(t *testing.T) {
	dbDir := setupDbDirWithKeyfile(t, "key")
	dbPath := filepath.Join(dbDir, "peroxs-db.json")

	existingUUID := uuid.New()
	handle := volume.NewMockHandle("/dev/sdx1", &existingUUID)
	e := newTestEngine(t, dbDir, map[string]volume.Handle{"/dev/sdx1": handle})

	database := db.New(db.TypeOperation)
	_, err := e.EnrollDisks(database, dbPath, []string{"/dev/sdx1"}, EnrollParams{
		Entry:        EntrySource{Kind: db.EntryTypeKeyfile, KeyFile: "key.txt"},
		Format:       true,
		FormatParams: volume.FormatParams{V1: &volume.V1Params{Cipher: "aes", CipherMode: "xts-plain64", Hash: "sha256", MKBits: 256}},
	})

	var formatted *perr.DeviceAlreadyFormatted
	require.ErrorAs(t, err, &formatted)
}

func TestEnrollDisksRejectsEntryAlreadyExists(t *testing.T) {
	dbDir := setupDbDirWithKeyfile(t, "key")
	dbPath := filepath.Join(dbDir, "peroxs-db.json")

	existingUUID := uuid.New()
	handle := volume.NewMockHandle("/dev/sdx1", &existingUUID)
	e := newTestEngine(t, dbDir, map[string]volume.Handle{"/dev/sdx1": handle})

	database := db.New(db.TypeOperation)
	database.Entries = append(database.Entries, db.PassphraseEntry(db.VolumeIDOf(nil, existingUUID)))

	_, err := e.EnrollDisks(database, dbPath, []string{"/dev/sdx1"}, EnrollParams{
		Entry: EntrySource{Kind: db.EntryTypeKeyfile, KeyFile: "key.txt"},
	})

	var exists *perr.EntryAlreadyExists
	require.ErrorAs(t, err, &exists)
}

func TestEnrollDisksAddKeyslotRequiresExistingHeaderOnAllDisks(t *testing.T) {
	dbDir := setupDbDirWithKeyfile(t, "key")
	dbPath := filepath.Join(dbDir, "peroxs-db.json")

	formattedUUID := uuid.New()
	formatted := volume.NewMockHandle("/dev/sdx1", &formattedUUID)
	unformatted := volume.NewMockHandle("/dev/sdx2", nil)

	e := newTestEngine(t, dbDir, map[string]volume.Handle{
		"/dev/sdx1": formatted,
		"/dev/sdx2": unformatted,
	})

	database := db.New(db.TypeOperation)
	_, err := e.EnrollDisks(database, dbPath, []string{"/dev/sdx1", "/dev/sdx2"}, EnrollParams{
		Entry:  EntrySource{Kind: db.EntryTypeKeyfile, KeyFile: "key.txt"},
		Format: false,
	})

	var notAll *perr.NotAllDisksAlreadyFormatted
	require.ErrorAs(t, err, &notAll)
}

func TestEnrollDisksAddKeyslotToExistingContainer(t *testing.T) {
	dbDir := setupDbDirWithKeyfile(t, "new-passphrase")
	dbPath := filepath.Join(dbDir, "peroxs-db.json")

	existingUUID := uuid.New()
	handle := volume.NewMockHandle("/dev/sdx1", &existingUUID)
	oldKey := []byte("old-passphrase")
	_, err := handle.Format(volume.FormatParams{V1: &volume.V1Params{Cipher: "aes", CipherMode: "xts-plain64", Hash: "sha256", MKBits: 256, UUID: &existingUUID}}, secret.New(oldKey))
	require.NoError(t, err)

	e := newTestEngine(t, dbDir, map[string]volume.Handle{"/dev/sdx1": handle})

	database := db.New(db.TypeOperation)
	backup := &fixedKeyInput{key: oldKey}

	entries, err := e.EnrollDisks(database, dbPath, []string{"/dev/sdx1"}, EnrollParams{
		Entry:     EntrySource{Kind: db.EntryTypeKeyfile, KeyFile: "key.txt"},
		Format:    false,
		BackupKey: backup,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestEnrollDisksRejectsTokenEntryWhenHandleCannotAttachTokens(t *testing.T) {
	dbDir := setupDbDirWithKeyfile(t, "unused")
	dbPath := filepath.Join(dbDir, "peroxs-db.json")

	handle := volume.NewMockHandle("/dev/sdx1", nil)
	handle.TokenAttachmentSupported = false
	e := newTestEngine(t, dbDir, map[string]volume.Handle{"/dev/sdx1": handle})

	database := db.New(db.TypeOperation)
	_, err := e.EnrollDisks(database, dbPath, []string{"/dev/sdx1"}, EnrollParams{
		Entry:  EntrySource{Kind: db.EntryTypeToken, TokenSlot: 1, TokenMode: db.TokenModeChallengeResponse},
		Format: true,
		FormatParams: volume.FormatParams{V2: &volume.V2Params{
			Cipher: "aes", CipherMode: "xts-plain64", MKBits: 512,
			PBKDF: volume.PBKDFParams{Algorithm: "argon2id", TimeMs: 100},
		}},
	})

	var notAvailable *perr.FeatureNotAvailable
	require.ErrorAs(t, err, &notAvailable)
}

type fixedKeyInput struct{ key []byte }

func (f *fixedKeyInput) GetKey(req keysource.Request, isNew bool) (*secret.Buffer, error) {
	return secret.New(f.key), nil
}
