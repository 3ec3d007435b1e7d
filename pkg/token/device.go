// Package token talks to a USB HID hardware token (YubiKey-compatible)
// in HMAC-SHA1 challenge-response mode.
package token

import (
	"fmt"
	"sync"

	"github.com/sstallion/go-hid"

	perr "github.com/peroxs/cryptsetup/pkg/errors"
)

// ChallengeLength is the HMAC-SHA1 block size the token challenges and
// responses are padded to.
const ChallengeLength = 64

// ResponseLength is the number of meaningful bytes in a challenge
// response; the token pads its reply up to ChallengeLength with zeros.
const ResponseLength = 20

const (
	vendorYubico  = 0x1050
	usageReportID = 0x00
)

// Device performs an HMAC-SHA1 challenge-response exchange against slot
// configuration on a hardware token.
type Device interface {
	// ChallengeResponse sends challenge (padded/truncated to
	// ChallengeLength) to the given slot and returns the token's
	// ChallengeLength-byte reply.
	ChallengeResponse(slot int, challenge [ChallengeLength]byte) ([ChallengeLength]byte, error)
	Close() error
}

var (
	initOnce sync.Once
	initErr  error
)

// Init performs the HID library's one-time setup. Safe to call more than
// once, and safe to call concurrently; only the first call takes effect,
// every caller observes its result.
func Init() error {
	initOnce.Do(func() {
		if err := hid.Init(); err != nil {
			initErr = &perr.FeatureNotAvailable{Feature: fmt.Sprintf("hid: %v", err)}
		}
	})
	return initErr
}

// EnableDebugLogging runs Init and nothing more; this package has no
// separate HID I/O tracing. Idempotent.
func EnableDebugLogging() error {
	return Init()
}

// hidDevice is the default Device backed by a USB HID connection to a
// YubiKey-compatible token.
type hidDevice struct {
	dev *hid.Device
}

// Open finds and opens the first attached token. Slot selection happens
// per-call in ChallengeResponse, matching how the original tool treats
// the token as a single shared device with independently configurable
// slots.
func Open() (Device, error) {
	if err := Init(); err != nil {
		return nil, err
	}

	dev, err := hid.OpenFirst(vendorYubico, 0)
	if err != nil {
		return nil, &perr.FeatureNotAvailable{Feature: fmt.Sprintf("no hardware token found: %v", err)}
	}
	return &hidDevice{dev: dev}, nil
}

// ChallengeResponse implements the vendor HID feature-report framing
// used by YubiKey-compatible tokens for HMAC-SHA1 challenge-response:
// a 64-byte challenge is written as a feature report tagged with the
// target slot, and the 20-byte (zero-padded to 64) response is read
// back the same way.
func (d *hidDevice) ChallengeResponse(slot int, challenge [ChallengeLength]byte) ([ChallengeLength]byte, error) {
	var response [ChallengeLength]byte

	report := make([]byte, ChallengeLength+2)
	report[0] = usageReportID
	report[1] = byte(slot)
	copy(report[2:], challenge[:])

	if _, err := d.dev.SendFeatureReport(report); err != nil {
		return response, &perr.FeatureNotAvailable{Feature: fmt.Sprintf("send challenge: %v", err)}
	}

	reply := make([]byte, ChallengeLength+1)
	reply[0] = usageReportID
	if _, err := d.dev.GetFeatureReport(reply); err != nil {
		return response, &perr.FeatureNotAvailable{Feature: fmt.Sprintf("read response: %v", err)}
	}
	copy(response[:], reply[1:])

	return response, nil
}

func (d *hidDevice) Close() error {
	return d.dev.Close()
}
