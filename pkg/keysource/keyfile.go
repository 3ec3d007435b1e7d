package keysource

import (
	"errors"
	"os"

	perr "github.com/peroxs/cryptsetup/pkg/errors"
	"github.com/peroxs/cryptsetup/pkg/secret"
)

// KeyfilePrompt reads key material verbatim from a file on disk.
type KeyfilePrompt struct {
	// KeyFile is an absolute, already-resolved path.
	KeyFile string
}

// GetKey implements KeyInput.
func (p *KeyfilePrompt) GetKey(req Request, isNew bool) (*secret.Buffer, error) {
	data, err := os.ReadFile(p.KeyFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perr.NewKeyInputError(perr.KeyInputFileNotFound, err)
		}
		return nil, perr.NewKeyInputError(perr.KeyInputIo, err)
	}

	if len(data) == 0 {
		return nil, perr.NewKeyInputError(perr.KeyInputIo, errors.New("zero byte key file at "+p.KeyFile))
	}

	out := secret.New(data)
	for i := range data {
		data[i] = 0
	}
	return out, nil
}
