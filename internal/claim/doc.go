// Package claim implements device claiming and releasing.
//
// A claim is a single bridge round-trip: the device is asked to run the
// confirmation method and only answers once its owner has pressed the
// button. The owner is written only after that answer arrives.
//
//	Unclaimed ──Claim──▶ PendingConfirmation ──reply──▶ Claimed
//	    ▲                        │                          │
//	    └──── timeout / error ───┘                          │
//	    └──────────────────────── Release ──────────────────┘
//
// Claims and releases of one device are serialised; a concurrent second
// operation fails fast with ErrClaimInProgress.
package claim
