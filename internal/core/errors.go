package core

import "errors"

// User-facing failure conditions surfaced synchronously by the HTTP layer.
var (
	ErrDeviceNotFound      = errors.New("device not found")
	ErrDeviceFull          = errors.New("no free fingerprint slots on device")
	ErrEnrollInProgress    = errors.New("enrollment already in progress for device")
	ErrFingerprintNotFound = errors.New("fingerprint not found")
)
