// Package luks adapts github.com/martinjungblut/go-cryptsetup's cgo
// binding over libcryptsetup to the volume.Handle interface.
package luks

import (
	"fmt"
	"sync"

	cryptsetup "github.com/martinjungblut/go-cryptsetup"
	"github.com/google/uuid"

	"github.com/peroxs/cryptsetup/pkg/secret"
	"github.com/peroxs/cryptsetup/pkg/volume"
)

var debugOnce sync.Once

// EnableDebugLogging turns on libcryptsetup's own verbose logging. Safe to
// call more than once; only the first call takes effect.
func EnableDebugLogging() {
	debugOnce.Do(func() {
		cryptsetup.SetDebugLevel(cryptsetup.CRYPT_LOG_DEBUG)
	})
}

type handle struct {
	path    string
	device  *cryptsetup.Device
	version volume.Version

	iterationMs int
	pbkdf       volume.PBKDFParams
}

// Open binds a Handle to path without requiring a header to already exist.
func Open(path string) (volume.Handle, error) {
	return &handle{path: path}, nil
}

func (h *handle) Path() string { return h.path }

func (h *handle) Version() volume.Version { return h.version }

func (h *handle) Close() error {
	if h.device != nil {
		h.device.Free()
		h.device = nil
	}
	return nil
}

func (h *handle) load() (*cryptsetup.Device, error) {
	if h.device != nil {
		return h.device, nil
	}

	device, err := cryptsetup.Init(h.path)
	if err != nil {
		return nil, fmt.Errorf("init device %s: %w", h.path, err)
	}

	if err := device.Load(cryptsetup.LUKS2{}); err == nil {
		h.version = volume.V2
	} else if err := device.Load(cryptsetup.LUKS1{}); err == nil {
		h.version = volume.V1
	} else {
		device.Free()
		return nil, fmt.Errorf("load header on %s: not a valid LUKS volume", h.path)
	}

	h.device = device
	return device, nil
}

func (h *handle) UUIDOf() (uuid.UUID, error) {
	device, err := h.load()
	if err != nil {
		return uuid.UUID{}, err
	}

	id, err := uuid.Parse(device.GetUUID())
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parse header uuid on %s: %w", h.path, err)
	}
	return id, nil
}

func (h *handle) Format(params volume.FormatParams, key *secret.Buffer) (volume.FormatResult, error) {
	switch {
	case params.V1 != nil:
		return h.formatV1(params.V1, key)
	case params.V2 != nil:
		return h.formatV2(params.V2, key)
	default:
		return volume.FormatResult{}, fmt.Errorf("format params: exactly one of V1/V2 must be set")
	}
}

func (h *handle) formatV1(p *volume.V1Params, key *secret.Buffer) (volume.FormatResult, error) {
	device, err := cryptsetup.Init(h.path)
	if err != nil {
		return volume.FormatResult{}, fmt.Errorf("init device %s: %w", h.path, err)
	}

	genericParams := cryptsetup.GenericParams{
		Cipher:        p.Cipher,
		CipherMode:    p.CipherMode,
		VolumeKeySize: p.MKBits / 8,
	}

	luks1 := cryptsetup.LUKS1{Hash: p.Hash}
	if p.UUID != nil {
		s := p.UUID.String()
		luks1.UUID = s
	}

	if err := device.Format(luks1, genericParams); err != nil {
		device.Free()
		return volume.FormatResult{}, fmt.Errorf("format luks1 on %s: %w", h.path, err)
	}

	if p.IterationMs > 0 {
		device.SetIterationTime(uint64(p.IterationMs))
	}

	keyslot, err := device.KeyslotAddByVolumeKey(cryptsetup.AnyKeyslot, "", string(key.View()))
	if err != nil {
		device.Free()
		return volume.FormatResult{}, fmt.Errorf("add keyslot on %s: %w", h.path, err)
	}

	h.device = device
	h.version = volume.V1
	return volume.FormatResult{Version: volume.V1, Keyslot: keyslot}, nil
}

func (h *handle) formatV2(p *volume.V2Params, key *secret.Buffer) (volume.FormatResult, error) {
	device, err := cryptsetup.Init(h.path)
	if err != nil {
		return volume.FormatResult{}, fmt.Errorf("init device %s: %w", h.path, err)
	}

	genericParams := cryptsetup.GenericParams{
		Cipher:        p.Cipher,
		CipherMode:    p.CipherMode,
		VolumeKeySize: p.MKBits / 8,
	}

	luks2 := cryptsetup.LUKS2{
		PBKDFType: &cryptsetup.PbkdfType{
			Type:            p.PBKDF.Algorithm,
			Hash:            p.PBKDF.Hash,
			TimeMs:          uint32(p.PBKDF.TimeMs),
			Iterations:      uint32(p.PBKDF.Iterations),
			MaxMemoryKb:     uint32(p.PBKDF.MemoryKB),
			ParallelThreads: uint32(p.PBKDF.Threads),
		},
	}
	if p.UUID != nil {
		luks2.UUID = p.UUID.String()
	}
	if p.SaveLabelInHeader && p.Label != nil {
		luks2.Label = *p.Label
	}

	if err := device.Format(luks2, genericParams); err != nil {
		device.Free()
		return volume.FormatResult{}, fmt.Errorf("format luks2 on %s: %w", h.path, err)
	}

	keyslot, err := device.KeyslotAddByVolumeKey(cryptsetup.AnyKeyslot, "", string(key.View()))
	if err != nil {
		device.Free()
		return volume.FormatResult{}, fmt.Errorf("add keyslot on %s: %w", h.path, err)
	}

	h.device = device
	h.version = volume.V2
	h.pbkdf = p.PBKDF

	return volume.FormatResult{Version: volume.V2, Keyslot: keyslot}, nil
}

func (h *handle) AddKeyslot(newKey, prevKey *secret.Buffer, iterationMs int) (int, error) {
	device, err := h.load()
	if err != nil {
		return 0, err
	}

	if h.version == volume.V1 && iterationMs > 0 {
		device.SetIterationTime(uint64(iterationMs))
	}

	keyslot, err := device.KeyslotAddByPassphrase(cryptsetup.AnyKeyslot, string(prevKey.View()), string(newKey.View()))
	if err != nil {
		return 0, fmt.Errorf("add keyslot on %s: %w", h.path, err)
	}
	return keyslot, nil
}

func (h *handle) Activate(mapperName string, key *secret.Buffer) (int, error) {
	device, err := h.load()
	if err != nil {
		return 0, err
	}

	keyslot, err := device.ActivateByPassphrase(mapperName, cryptsetup.AnyKeyslot, string(key.View()), 0)
	if err != nil {
		return 0, fmt.Errorf("activate %s as %s: %w", h.path, mapperName, err)
	}
	return keyslot, nil
}

func (h *handle) SetIterationTime(ms int) {
	h.iterationMs = ms
	if h.device != nil && h.version == volume.V1 {
		h.device.SetIterationTime(uint64(ms))
	}
}

// SetPBKDFParams records params on the handle. AddKeyslot does not pass
// them to libcryptsetup, so they do not change the PBKDF of later
// keyslots.
func (h *handle) SetPBKDFParams(params volume.PBKDFParams) {
	h.pbkdf = params
}

// SupportsTokenAttachment always reports false: go-cryptsetup wraps
// libcryptsetup's device and keyslot calls but does not bind the token
// plugin API (crypt_token_json_set and friends), so this adapter has no
// way to create or attach a LUKS2 token object. Format never returns a
// non-nil FormatResult.TokenID.
func (h *handle) SupportsTokenAttachment() bool {
	return false
}
