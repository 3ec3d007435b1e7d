// Package volume defines the capability surface the enrollment, open and
// registration engines need from an on-disk volume format, independent of
// any particular cryptsetup binding. pkg/volume/luks is the only package
// that imports the cgo LUKS library; everything above this package
// programs against Handle.
package volume

import (
	"github.com/google/uuid"

	"github.com/peroxs/cryptsetup/pkg/secret"
)

// Version identifies the on-disk LUKS header version of an opened handle.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

// V1Params configures a new LUKS1 header.
type V1Params struct {
	Cipher       string
	CipherMode   string
	Hash         string
	MKBits       int
	UUID         *uuid.UUID
	IterationMs  int
}

// V2Params configures a new LUKS2 header. SaveLabelInHeader mirrors the
// original tool's save_label_in_header flag: when set, the volume's name
// is written into the LUKS2 header label at format time.
type V2Params struct {
	Cipher            string
	CipherMode        string
	MKBits            int
	UUID              *uuid.UUID
	Label             *string
	SaveLabelInHeader bool
	PBKDF             PBKDFParams
}

// PBKDFParams configures the LUKS2 key-derivation function for new keyslots.
type PBKDFParams struct {
	Algorithm  string // "argon2id", "argon2i" or "pbkdf2"
	Hash       string
	TimeMs     int
	Iterations int
	MemoryKB   int
	Threads    int
}

// FormatParams is the union of V1Params/V2Params passed to Format. Exactly
// one of V1/V2 must be set.
type FormatParams struct {
	V1 *V1Params
	V2 *V2Params
}

// FormatResult reports what Format actually wrote to the header. TokenID is
// only ever set for LUKS2 formats, by handles whose SupportsTokenAttachment
// reports true.
type FormatResult struct {
	Version Version
	Keyslot int
	TokenID *int32
}

// Handle is the capability interface the engines use to operate on an
// opened or about-to-be-formatted volume. A Handle is bound to a single
// backing device path for its lifetime.
type Handle interface {
	// Path returns the backing block device or file path.
	Path() string

	// Version reports the on-disk header version, valid only after the
	// header has been read (e.g. by UUIDOf) or Format has succeeded.
	Version() Version

	// UUIDOf reads the header UUID without requiring a key. Returns an
	// error if the device has no valid LUKS header.
	UUIDOf() (uuid.UUID, error)

	// Format writes a brand-new header and enrolls key into the first
	// keyslot.
	Format(params FormatParams, key *secret.Buffer) (FormatResult, error)

	// AddKeyslot enrolls newKey into a free keyslot, authenticated by
	// prevKey. Returns the new keyslot index.
	AddKeyslot(newKey, prevKey *secret.Buffer, iterationMs int) (int, error)

	// Activate creates an active dm-crypt mapping under mapperName,
	// authenticated by key. Returns the keyslot that unlocked it.
	Activate(mapperName string, key *secret.Buffer) (int, error)

	// SetIterationTime mutates the target iteration time (in
	// milliseconds) used for subsequent AddKeyslot calls on a LUKS1
	// handle.
	SetIterationTime(ms int)

	// SetPBKDFParams mutates the PBKDF used for subsequent AddKeyslot
	// calls on a LUKS2 handle. Calling this on a LUKS1 handle is a no-op.
	SetPBKDFParams(params PBKDFParams)

	// SupportsTokenAttachment reports whether Format can actually create
	// and attach a LUKS2 token object, populating FormatResult.TokenID.
	// Callers enrolling a hardware-token entry against a handle that
	// returns false must reject the combination rather than silently
	// leaving the token identity unset.
	SupportsTokenAttachment() bool

	// Close releases any resources (open file descriptors, cgo handles)
	// held by the implementation.
	Close() error
}

// Opener constructs a Handle bound to path without requiring the header to
// already exist; Format or a subsequent load determines its version.
type Opener func(path string) (Handle, error)
