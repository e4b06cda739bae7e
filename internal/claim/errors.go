package claim

import "errors"

var (
	// ErrOwnershipConflict is returned when the device already has an owner.
	// Nothing is sent to the device.
	ErrOwnershipConflict = errors.New("claim: device already claimed")

	// ErrConfirmationFailed is returned when the device did not confirm the
	// claim. It wraps the bridge error (timeout or publish failure).
	ErrConfirmationFailed = errors.New("claim: device did not confirm")

	// ErrDeclined is wrapped in ErrConfirmationFailed when the device
	// answered with a non-2xx status.
	ErrDeclined = errors.New("claim: device declined")

	// ErrClaimInProgress is returned while another claim or release of the
	// same device is running.
	ErrClaimInProgress = errors.New("claim: operation already in progress for device")

	// ErrNotOwner is returned when releasing a device the user does not own.
	ErrNotOwner = errors.New("claim: user does not own device")
)
