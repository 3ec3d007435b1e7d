package keysource

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peroxs/cryptsetup/pkg/db"
	perr "github.com/peroxs/cryptsetup/pkg/errors"
)

func TestKeyfilePromptReadsContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keyfile")
	require.NoError(t, os.WriteFile(path, []byte("correcthorsebatterystaple"), 0600))

	prompt := &KeyfilePrompt{KeyFile: path}
	key, err := prompt.GetKey(Request{Name: "disk"}, false)
	require.NoError(t, err)
	require.Equal(t, "correcthorsebatterystaple", string(key.View()))
}

func TestKeyfilePromptMissingFile(t *testing.T) {
	prompt := &KeyfilePrompt{KeyFile: filepath.Join(t.TempDir(), "missing")}
	_, err := prompt.GetKey(Request{Name: "disk"}, false)

	var kerr *perr.KeyInput
	require.True(t, errors.As(err, &kerr))
	require.Equal(t, perr.KeyInputFileNotFound, kerr.Kind)
}

func TestKeyfilePromptEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	prompt := &KeyfilePrompt{KeyFile: path}
	_, err := prompt.GetKey(Request{Name: "disk"}, false)

	var kerr *perr.KeyInput
	require.True(t, errors.As(err, &kerr))
	require.Equal(t, perr.KeyInputIo, kerr.Kind)
}

func TestForResolvesRelativeKeyfilePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keyfile.key"), []byte("data"), 0600))

	entry := db.KeyfileEntry("keyfile.key", db.NewVolumeID(nil))
	method, err := For(entry, Config{}, dir)
	require.NoError(t, err)

	key, err := method.GetKey(Request{Name: "disk"}, false)
	require.NoError(t, err)
	require.Equal(t, "data", string(key.View()))
}
