// Package secret provides an in-memory container for key material that
// scrubs itself on destruction and is never logged or serialized.
package secret

import (
	"crypto/subtle"
	"runtime"
)

// Buffer holds sensitive byte material (a derived key, a passphrase,
// a challenge response) and zeroes it on Destroy. A finalizer acts as a
// safety net for callers that forget to call Destroy explicitly, but it
// is not a substitute for doing so: finalizers run at an unpredictable
// time, if at all.
type Buffer struct {
	data []byte
}

// New copies b into a new Buffer. The caller retains ownership of b.
func New(b []byte) *Buffer {
	buf := &Buffer{data: make([]byte, len(b))}
	copy(buf.data, b)
	runtime.SetFinalizer(buf, (*Buffer).Destroy)
	return buf
}

// Len returns the number of bytes held.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// View returns the underlying bytes. The returned slice aliases the
// buffer's storage and becomes invalid after Destroy; callers must not
// retain it past the buffer's lifetime.
func (b *Buffer) View() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Equal reports whether two buffers hold the same bytes, compared in
// constant time to avoid leaking length-dependent timing on secret
// material.
func (b *Buffer) Equal(other *Buffer) bool {
	if b == nil || other == nil {
		return b == nil && other == nil
	}
	if len(b.data) != len(other.data) {
		return false
	}
	return subtle.ConstantTimeCompare(b.data, other.data) == 1
}

// Destroy zeroes the underlying storage. It is safe to call more than
// once and safe to call on a nil Buffer.
func (b *Buffer) Destroy() {
	if b == nil {
		return
	}
	for i := range b.data {
		b.data[i] = 0
	}
	b.data = b.data[:0]
	runtime.SetFinalizer(b, nil)
}

// String never reveals the held bytes; it exists so a Buffer can be
// passed to %v/%s formatting (logs, error messages) without leaking
// key material.
func (b *Buffer) String() string {
	if b == nil {
		return "<secret:nil>"
	}
	return "<secret:redacted>"
}
