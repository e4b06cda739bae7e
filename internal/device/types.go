package device

import "time"

// Unclaimed is the owner ID of a device nobody has claimed.
const Unclaimed = "unclaimed"

// Device is one physical Edgeberry device known to the fleet.
type Device struct {
	// ID is the hardware ID. It is also the device's topic segment.
	ID string `json:"id"`

	Name            string `json:"name"`
	HardwareVersion string `json:"hardware_version,omitempty"`
	BatchNumber     string `json:"batch_number,omitempty"`

	// OwnerID is a user ID, or Unclaimed.
	OwnerID string `json:"owner_id"`

	// AdminID is the administrator who onboarded the device.
	AdminID string `json:"admin_id,omitempty"`

	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsClaimed reports whether the device has an owner.
func (d *Device) IsClaimed() bool {
	return d.OwnerID != "" && d.OwnerID != Unclaimed
}

// DeepCopy returns an independent copy of the device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	if d.ClaimedAt != nil {
		t := *d.ClaimedAt
		cp.ClaimedAt = &t
	}
	return &cp
}
