// Package device is the registry of Edgeberry hardware and who owns it.
//
// A device is onboarded by an administrator as unclaimed. The claim
// workflow later moves it to a user once the device has confirmed the
// claim; releasing it returns it to Unclaimed.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	owner, err := registry.GetOwner(ctx, "EB-0001")
//	if owner == device.Unclaimed {
//	    err = registry.SetOwner(ctx, "EB-0001", userID)
//	}
//
// # Ownership writes
//
// SetOwner and ReleaseOwner are conditional updates: they only succeed
// while the stored owner is the expected one and otherwise return
// ErrOwnershipChanged. A stale read can therefore never overwrite an owner.
package device
