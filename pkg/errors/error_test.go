package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDatabaseIoUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := &DatabaseIo{Path: "/var/lib/peroxs/peroxs-db.json", Err: cause}

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to unwrap to cause")
	}
	if err.Error() == "" {
		t.Fatalf("expected non-empty error message")
	}
}

func TestKeyInputErrorAs(t *testing.T) {
	var target *KeyInput
	err := NewKeyInputError(KeyInputTimedOut, nil)

	if !errors.As(error(err), &target) {
		t.Fatalf("expected errors.As to match *KeyInput")
	}
	if target.Kind != KeyInputTimedOut {
		t.Fatalf("expected KeyInputTimedOut, got %v", target.Kind)
	}
}

func TestDeviceAlreadyFormattedMessage(t *testing.T) {
	err := &DeviceAlreadyFormatted{UUID: "c01f4eb5-71a0-4ad8-b054-d72d2b2e5389"}
	want := "device already formatted: c01f4eb5-71a0-4ad8-b054-d72d2b2e5389"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestVolumeLibraryWrapsCause(t *testing.T) {
	cause := fmt.Errorf("cryptsetup: device busy")
	err := &VolumeLibrary{Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be reachable via errors.Is")
	}
}
