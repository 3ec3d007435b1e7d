package keysource

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/peroxs/cryptsetup/pkg/db"
	"github.com/peroxs/cryptsetup/pkg/secret"
	"github.com/peroxs/cryptsetup/pkg/token"
)

// fixedPassphraseInput returns the same fixed bytes regardless of the
// request, modeling a non-interactive passphrase source for tests.
type fixedPassphraseInput struct {
	calls int
	byCall [][]byte
}

func (f *fixedPassphraseInput) GetKey(req Request, isNew bool) (*secret.Buffer, error) {
	b := f.byCall[f.calls]
	f.calls++
	return secret.New(b), nil
}

func TestHybridChallengeResponseKeyDerivation(t *testing.T) {
	id := uuid.MustParse("c01f4eb5-71a0-4ad8-b054-d72d2b2e5389")

	yubiChallenge := [token.ChallengeLength]byte{
		71, 30, 203, 181, 69, 116, 116, 197, 82, 54, 31, 101, 81, 166, 142, 96, 218, 198, 60, 200, 241, 8, 244,
		243, 157, 56, 215, 35, 198, 153, 179, 44, 19, 253, 135, 159, 180, 55, 87, 201, 67, 20, 119, 49, 203,
		158, 73, 186, 141, 25, 223, 232, 103, 90, 93, 4, 159, 156, 81, 6, 212, 26, 242, 78,
	}
	yubiResponse := [token.ChallengeLength]byte{
		220, 239, 146, 171, 222, 13, 140, 7, 244, 155, 110, 202, 199, 189, 151, 152, 114, 106, 233, 82, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
	}

	mockDevice := token.NewMockDevice()
	mockDevice.Expect(2, yubiChallenge, yubiResponse)

	passphrases := &fixedPassphraseInput{byCall: [][]byte{
		[]byte("egotistical giraffe"),
		[]byte("happy dance"),
	}}

	prompt := &TokenPrompt{
		Device:          mockDevice,
		Slot:            2,
		Mode:            db.TokenModeHybridChallengeResponse,
		UUID:            id,
		PassphraseInput: passphrases,
	}

	result, err := prompt.GetKey(Request{Name: "test-disk", UUID: &id}, false)
	require.NoError(t, err)

	expectedKey := []byte{
		226, 239, 138, 225, 242, 69, 238, 111, 116, 184, 69, 119, 126, 11, 228, 13, 14, 64, 93, 208, 190, 68,
		3, 59, 37, 233, 10, 210, 4, 168, 51, 21, 88, 30, 22, 86, 74, 0, 55, 52, 36, 166, 75, 14, 156, 162, 47,
		140, 242, 163, 58, 211, 34, 12, 250, 23, 152, 94, 172, 124, 66, 58, 76, 249,
	}

	require.Equal(t, expectedKey, result.View())
}

func TestPlainChallengeResponseTruncatesToResponseLength(t *testing.T) {
	id := uuid.New()
	var challenge [token.ChallengeLength]byte
	copy(challenge[:], "short-challenge")

	var response [token.ChallengeLength]byte
	for i := 0; i < token.ResponseLength; i++ {
		response[i] = byte(i + 1)
	}

	mockDevice := token.NewMockDevice()
	mockDevice.Expect(1, challenge, response)

	passphrases := &fixedPassphraseInput{byCall: [][]byte{[]byte("short-challenge")}}

	prompt := &TokenPrompt{
		Device:          mockDevice,
		Slot:            1,
		Mode:            db.TokenModeChallengeResponse,
		UUID:            id,
		PassphraseInput: passphrases,
	}

	result, err := prompt.GetKey(Request{Name: "d", UUID: &id}, false)
	require.NoError(t, err)
	require.Len(t, result.View(), token.ResponseLength)
	require.Equal(t, byte(1), result.View()[0])
}
