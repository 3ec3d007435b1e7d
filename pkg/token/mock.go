package token

import "fmt"

// MockDevice is a Device double driven by fixed (slot, challenge) ->
// response pairs, used to exercise the challenge-response and hybrid
// derivation pipelines without real hardware.
type MockDevice struct {
	responses map[mockKey][ChallengeLength]byte
}

type mockKey struct {
	slot      int
	challenge [ChallengeLength]byte
}

// NewMockDevice creates an empty mock device.
func NewMockDevice() *MockDevice {
	return &MockDevice{responses: make(map[mockKey][ChallengeLength]byte)}
}

// Expect registers the response the device returns for a given
// (slot, challenge) pair.
func (m *MockDevice) Expect(slot int, challenge, response [ChallengeLength]byte) {
	m.responses[mockKey{slot: slot, challenge: challenge}] = response
}

// ChallengeResponse implements Device.
func (m *MockDevice) ChallengeResponse(slot int, challenge [ChallengeLength]byte) ([ChallengeLength]byte, error) {
	resp, ok := m.responses[mockKey{slot: slot, challenge: challenge}]
	if !ok {
		return resp, fmt.Errorf("mock device: no response configured for slot %d", slot)
	}
	return resp, nil
}

// Close implements Device.
func (m *MockDevice) Close() error { return nil }
