// Package securerandom provides cryptographically secure random generation,
// used by the database store for atomic-write temp file suffixes.
package securerandom

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
)

// ID generates a cryptographically secure random ID of the specified byte
// length. Returns a hex-encoded string (2x the byte length).
func ID(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := crand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// MustID generates a random ID or panics. Use only when failure is
// unrecoverable.
func MustID(byteLen int) string {
	id, err := ID(byteLen)
	if err != nil {
		panic(fmt.Sprintf("securerandom.ID failed: %v", err))
	}
	return id
}

// Bytes generates cryptographically secure random bytes.
func Bytes(byteLen int) ([]byte, error) {
	b := make([]byte, byteLen)
	if _, err := crand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// Fill fills a byte slice with cryptographically secure random bytes.
func Fill(b []byte) error {
	if _, err := crand.Read(b); err != nil {
		return fmt.Errorf("failed to fill random bytes: %w", err)
	}
	return nil
}
