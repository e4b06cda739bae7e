package device

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validation limits.
const (
	MaxIDLength   = 64
	MaxNameLength = 100
)

// ValidateID checks that id can be used as a single MQTT topic level.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: id exceeds %d characters", ErrInvalidDevice, MaxIDLength)
	}
	if strings.ContainsAny(id, "/+#\x00 ") {
		return fmt.Errorf("%w: id %q contains a reserved character", ErrInvalidDevice, id)
	}
	return nil
}

// ValidateOwnerID checks a user ID before it is stored as an owner.
func ValidateOwnerID(owner string) error {
	if owner == "" {
		return fmt.Errorf("%w: owner id is required", ErrInvalidOwner)
	}
	if owner == Unclaimed {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidOwner, Unclaimed)
	}
	return nil
}

// ValidateDevice checks a device before it is onboarded or updated.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: device is nil", ErrInvalidDevice)
	}
	if err := ValidateID(d.ID); err != nil {
		return err
	}
	if utf8.RuneCountInString(d.Name) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, MaxNameLength)
	}
	if d.OwnerID != "" && d.OwnerID != Unclaimed {
		if err := ValidateOwnerID(d.OwnerID); err != nil {
			return err
		}
	}
	return nil
}
