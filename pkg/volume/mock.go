package volume

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/peroxs/cryptsetup/pkg/secret"
)

// MockHandle is a test double for Handle that never touches a real block
// device, used to exercise the enrollment/open/registration engines without
// libcryptsetup or hardware.
type MockHandle struct {
	path          string
	version       Version
	existingUUID  *uuid.UUID
	formatted     bool
	keyslots      map[int]*secret.Buffer
	nextKeyslot   int
	ActivatedName string
	IterationMs   int
	PBKDF         PBKDFParams

	FormatErr   error
	UUIDOfErr   error
	ActivateErr error

	// TokenAttachmentSupported mirrors a real adapter capable of the
	// libcryptsetup token plugin API. Defaults to true so existing
	// callers keep seeing a TokenID on V2 formats; set false to
	// exercise the no-token-support rejection path.
	TokenAttachmentSupported bool
}

// NewMockHandle constructs a MockHandle. If existingUUID is non-nil, the
// device behaves as though a header is already present at Format time.
func NewMockHandle(path string, existingUUID *uuid.UUID) *MockHandle {
	return &MockHandle{
		path:                     path,
		existingUUID:             existingUUID,
		keyslots:                 make(map[int]*secret.Buffer),
		TokenAttachmentSupported: true,
	}
}

func (m *MockHandle) Path() string     { return m.path }
func (m *MockHandle) Version() Version { return m.version }
func (m *MockHandle) Close() error     { return nil }

func (m *MockHandle) UUIDOf() (uuid.UUID, error) {
	if m.UUIDOfErr != nil {
		return uuid.UUID{}, m.UUIDOfErr
	}
	if m.existingUUID == nil {
		return uuid.UUID{}, fmt.Errorf("%s: no header present", m.path)
	}
	return *m.existingUUID, nil
}

func (m *MockHandle) Format(params FormatParams, key *secret.Buffer) (FormatResult, error) {
	if m.FormatErr != nil {
		return FormatResult{}, m.FormatErr
	}

	m.formatted = true
	m.keyslots = map[int]*secret.Buffer{0: secret.New(key.View())}
	m.nextKeyslot = 1

	switch {
	case params.V1 != nil:
		m.version = V1
		if params.V1.UUID != nil {
			m.existingUUID = params.V1.UUID
		}
		return FormatResult{Version: V1, Keyslot: 0}, nil
	case params.V2 != nil:
		m.version = V2
		if params.V2.UUID != nil {
			m.existingUUID = params.V2.UUID
		}
		if !m.TokenAttachmentSupported {
			return FormatResult{Version: V2, Keyslot: 0}, nil
		}
		tokenID := int32(0)
		return FormatResult{Version: V2, Keyslot: 0, TokenID: &tokenID}, nil
	default:
		return FormatResult{}, fmt.Errorf("format params: exactly one of V1/V2 must be set")
	}
}

func (m *MockHandle) AddKeyslot(newKey, prevKey *secret.Buffer, iterationMs int) (int, error) {
	found := false
	for _, existing := range m.keyslots {
		if existing.Equal(prevKey) {
			found = true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("%s: previous key does not match any keyslot", m.path)
	}

	slot := m.nextKeyslot
	m.keyslots[slot] = secret.New(newKey.View())
	m.nextKeyslot++
	return slot, nil
}

func (m *MockHandle) Activate(mapperName string, key *secret.Buffer) (int, error) {
	if m.ActivateErr != nil {
		return 0, m.ActivateErr
	}
	for slot, existing := range m.keyslots {
		if existing.Equal(key) {
			m.ActivatedName = mapperName
			return slot, nil
		}
	}
	return 0, fmt.Errorf("%s: key does not match any keyslot", m.path)
}

func (m *MockHandle) SetIterationTime(ms int)       { m.IterationMs = ms }
func (m *MockHandle) SetPBKDFParams(p PBKDFParams)  { m.PBKDF = p }
func (m *MockHandle) SupportsTokenAttachment() bool { return m.TokenAttachmentSupported }
