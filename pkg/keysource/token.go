package keysource

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"

	"github.com/peroxs/cryptsetup/pkg/db"
	perr "github.com/peroxs/cryptsetup/pkg/errors"
	"github.com/peroxs/cryptsetup/pkg/secret"
	"github.com/peroxs/cryptsetup/pkg/token"
)

// scrypt parameters for hybrid mode, equivalent to libsodium's
// crypto_pwhash_scryptsalsa208sha256 "sensitive" preset
// (opslimit=33554432, memlimit=1073741824): N=2^20, r=8, p=1, which
// consumes exactly memlimit bytes (128*r*N) and performs exactly
// opslimit scrypt core operations (4*N*r*p).
const (
	scryptN      = 1 << 20
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = token.ChallengeLength
)

// TokenPrompt reads key material from a hardware token's HMAC-SHA1
// challenge-response slot, in either plain or hybrid mode.
type TokenPrompt struct {
	Device token.Device
	Slot   int
	Mode   db.TokenMode
	// UUID seeds the scrypt salt in hybrid mode.
	UUID uuid.UUID
	// PassphraseInput sources the challenge passphrase (and, in
	// hybrid mode, the accompanying "other" passphrase).
	PassphraseInput KeyInput
}

// GetKey implements KeyInput.
func (p *TokenPrompt) GetKey(req Request, isNew bool) (*secret.Buffer, error) {
	chalReq := req
	chalReq.PromptOverride = overridePrompt(req, isNew, "Challenge for")

	chalKey, err := p.PassphraseInput.GetKey(chalReq, isNew)
	if err != nil {
		return nil, err
	}
	defer chalKey.Destroy()

	switch p.Mode {
	case db.TokenModeChallengeResponse:
		return p.readChallengeResponse(chalKey.View())
	case db.TokenModeHybridChallengeResponse:
		otherReq := req
		otherReq.PromptOverride = overridePrompt(req, isNew, "Other passphrase for")

		otherKey, err := p.PassphraseInput.GetKey(otherReq, isNew)
		if err != nil {
			return nil, err
		}
		defer otherKey.Destroy()

		return p.readHybridChallengeResponse(chalKey.View(), otherKey.View())
	default:
		return nil, perr.NewKeyInputError(perr.KeyInputToken, fmt.Errorf("unknown token mode %q", p.Mode))
	}
}

func overridePrompt(req Request, isNew bool, label string) *string {
	suffix := "new disk " + req.Name
	if !isNew && req.UUID != nil {
		suffix = fmt.Sprintf("disk %s (uuid=%s)", req.Name, req.UUID)
	}
	s := fmt.Sprintf("%s %s:", label, suffix)
	return &s
}

// readChallengeResponse sends challenge to the token directly (plain
// mode) and returns the first ResponseLength bytes of its reply.
func (p *TokenPrompt) readChallengeResponse(challenge []byte) (*secret.Buffer, error) {
	var padded [token.ChallengeLength]byte
	copy(padded[:], challenge)

	response, err := p.Device.ChallengeResponse(p.Slot, padded)
	if err != nil {
		return nil, perr.NewKeyInputError(perr.KeyInputToken, err)
	}

	return secret.New(response[:token.ResponseLength]), nil
}

// readHybridChallengeResponse derives a scrypt-stretched challenge from
// the supplied passphrase and the volume UUID, sends that to the token,
// then folds the token's response and the second passphrase together
// via SHA-256 and HMAC-SHA-512 into the final key.
func (p *TokenPrompt) readHybridChallengeResponse(challenge, otherPassphrase []byte) (*secret.Buffer, error) {
	salt := saltFromUUID(p.UUID)

	derived, err := scrypt.Key(challenge, salt[:], scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, perr.NewKeyInputError(perr.KeyInputToken, err)
	}
	defer zero(derived)

	resp, err := p.readChallengeResponse(derived)
	if err != nil {
		return nil, err
	}
	defer resp.Destroy()

	responseHash := sha256.Sum256(resp.View())

	mac := hmac.New(sha512.New, responseHash[:])
	mac.Write(otherPassphrase)
	finalKey := mac.Sum(nil)

	return secret.New(finalKey), nil
}

func saltFromUUID(id uuid.UUID) [sha256.Size]byte {
	b := id
	return sha256.Sum256(b[:])
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
