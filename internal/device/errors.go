package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // unknown hardware ID
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when onboarding an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidOwner is returned for an empty or reserved owner ID.
	ErrInvalidOwner = errors.New("device: invalid owner")

	// ErrOwnershipChanged is returned by a conditional owner update when the
	// stored owner is no longer the expected one.
	ErrOwnershipChanged = errors.New("device: ownership changed concurrently")
)
