// Package errors defines the structured error taxonomy returned by the
// peroxs database, key-sourcing, volume and registry layers. Every
// exported error is a concrete type so callers can branch on it with
// errors.As instead of matching on message text.
package errors

import (
	"fmt"
)

// DatabaseNotFound means the database file does not exist at the
// configured location.
type DatabaseNotFound struct {
	Path string
}

func (e *DatabaseNotFound) Error() string {
	return fmt.Sprintf("database not found: %s", e.Path)
}

// DatabaseIo wraps an I/O failure reading or writing the database file.
type DatabaseIo struct {
	Path string
	Err  error
}

func (e *DatabaseIo) Error() string {
	return fmt.Sprintf("database io error at %s: %v", e.Path, e.Err)
}

func (e *DatabaseIo) Unwrap() error { return e.Err }

// DatabaseVersion means the database file declares a schema version
// newer than this build understands.
type DatabaseVersion struct {
	Found     uint16
	Supported uint16
}

func (e *DatabaseVersion) Error() string {
	return fmt.Sprintf("database version %d is newer than supported version %d", e.Found, e.Supported)
}

// DatabaseSerialization wraps a JSON encode/decode failure against the
// database file.
type DatabaseSerialization struct {
	Err error
}

func (e *DatabaseSerialization) Error() string {
	return fmt.Sprintf("database serialization error: %v", e.Err)
}

func (e *DatabaseSerialization) Unwrap() error { return e.Err }

// DeviceAlreadyActivated means the mapper name is already an active
// crypt mapping.
type DeviceAlreadyActivated struct {
	Name string
}

func (e *DeviceAlreadyActivated) Error() string {
	return fmt.Sprintf("device already activated: %s", e.Name)
}

// DeviceAlreadyFormatted means a disk already carries a LUKS header
// with the given UUID.
type DeviceAlreadyFormatted struct {
	UUID string
}

func (e *DeviceAlreadyFormatted) Error() string {
	return fmt.Sprintf("device already formatted: %s", e.UUID)
}

// NotAllDisksAlreadyFormatted means an enrollment batch that adds a
// keyslot (no formatting) included at least one disk without a header.
type NotAllDisksAlreadyFormatted struct{}

func (e *NotAllDisksAlreadyFormatted) Error() string {
	return "not all disks in the batch are already formatted"
}

// EntryAlreadyExists means the database already holds an entry for the
// given volume UUID.
type EntryAlreadyExists struct {
	UUID string
}

func (e *EntryAlreadyExists) Error() string {
	return fmt.Sprintf("entry already exists for volume: %s", e.UUID)
}

// DiskEntryNotFound means no database entry matches the given volume
// UUID.
type DiskEntryNotFound struct {
	UUID string
}

func (e *DiskEntryNotFound) Error() string {
	return fmt.Sprintf("no entry found for disk: %s", e.UUID)
}

// DiskIdDuplicatesFound means resolving a batch of disk references
// produced the same volume more than once.
type DiskIdDuplicatesFound struct{}

func (e *DiskIdDuplicatesFound) Error() string {
	return "duplicate disk identifiers found in request"
}

// VolumeLibrary wraps an error surfaced by the underlying LUKS library.
type VolumeLibrary struct {
	Err error
}

func (e *VolumeLibrary) Error() string {
	return fmt.Sprintf("volume library error: %v", e.Err)
}

func (e *VolumeLibrary) Unwrap() error { return e.Err }

// VolumeReadError means the volume header could not be read (e.g. the
// device is not LUKS-formatted).
type VolumeReadError struct {
	Path string
	Err  error
}

func (e *VolumeReadError) Error() string {
	return fmt.Sprintf("failed to read volume at %s: %v", e.Path, e.Err)
}

func (e *VolumeReadError) Unwrap() error { return e.Err }

// VolumeIoError wraps a lower-level I/O failure against the block
// device itself.
type VolumeIoError struct {
	Path string
	Err  error
}

func (e *VolumeIoError) Error() string {
	return fmt.Sprintf("volume io error at %s: %v", e.Path, e.Err)
}

func (e *VolumeIoError) Unwrap() error { return e.Err }

// VolumeNotFound means no disk matching the given volume identifier
// could be located in the registry.
type VolumeNotFound struct {
	VolumeID string
}

func (e *VolumeNotFound) Error() string {
	return fmt.Sprintf("volume not found: %s", e.VolumeID)
}

// FeatureNotAvailable means the requested operation is not supported by
// the active volume library or hardware token backend.
type FeatureNotAvailable struct {
	Feature string
}

func (e *FeatureNotAvailable) Error() string {
	return fmt.Sprintf("feature not available: %s", e.Feature)
}

// KeyInputKind enumerates the ways sourcing a key can fail.
type KeyInputKind int

const (
	KeyInputFileNotFound KeyInputKind = iota
	KeyInputIo
	KeyInputTimedOut
	KeyInputFeatureNotAvailable
	KeyInputToken
	KeyInputPinentry
)

func (k KeyInputKind) String() string {
	switch k {
	case KeyInputFileNotFound:
		return "file not found"
	case KeyInputIo:
		return "io error"
	case KeyInputTimedOut:
		return "timed out"
	case KeyInputFeatureNotAvailable:
		return "feature not available"
	case KeyInputToken:
		return "token error"
	case KeyInputPinentry:
		return "pinentry error"
	default:
		return "unknown"
	}
}

// KeyInput wraps a failure sourcing a key from any of the supported
// backends (terminal, pinentry, keyfile, hardware token).
type KeyInput struct {
	Kind KeyInputKind
	Err  error
}

func (e *KeyInput) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("key input error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("key input error: %s", e.Kind)
}

func (e *KeyInput) Unwrap() error { return e.Err }

// NewKeyInputError constructs a KeyInput error of the given kind,
// optionally wrapping a lower-level cause.
func NewKeyInputError(kind KeyInputKind, cause error) *KeyInput {
	return &KeyInput{Kind: kind, Err: cause}
}
