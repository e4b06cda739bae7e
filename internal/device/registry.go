package device

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry wraps a Repository with an in-memory cache.
//
// Ownership reads go to the repository so that a claim always decides on
// the stored owner; the cache serves listings. All methods are safe for
// concurrent use.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// RefreshCache reloads all devices. Call on startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice returns a copy of the device, or ErrDeviceNotFound.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(d)
	return d, nil
}

// ListDevices returns every device, sorted by ID.
func (r *Registry) ListDevices(ctx context.Context) ([]Device, error) {
	devices := r.filterCache(func(*Device) bool { return true })
	if devices != nil {
		return devices, nil
	}
	return r.repo.List(ctx)
}

// ListByOwner returns the devices owned by ownerID, sorted by ID.
func (r *Registry) ListByOwner(ctx context.Context, ownerID string) ([]Device, error) {
	if r.GetDeviceCount() > 0 {
		devices := r.filterCache(func(d *Device) bool { return d.OwnerID == ownerID })
		if devices == nil {
			devices = []Device{}
		}
		return devices, nil
	}
	return r.repo.ListByOwner(ctx, ownerID)
}

// GetOwner returns the stored owner ID: a user ID or Unclaimed.
func (r *Registry) GetOwner(ctx context.Context, id string) (string, error) {
	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	r.store(d)
	return d.OwnerID, nil
}

// IsOwner reports whether userID owns the device.
func (r *Registry) IsOwner(ctx context.Context, id, userID string) (bool, error) {
	owner, err := r.GetOwner(ctx, id)
	if err != nil {
		return false, err
	}
	return owner != Unclaimed && owner == userID, nil
}

// IsKnown reports whether the hardware ID has been onboarded.
func (r *Registry) IsKnown(ctx context.Context, id string) (bool, error) {
	_, err := r.GetDevice(ctx, id)
	if errors.Is(err, ErrDeviceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetOwner assigns an unclaimed device to userID. It fails with
// ErrOwnershipChanged if the device was claimed in the meantime.
func (r *Registry) SetOwner(ctx context.Context, id, userID string) error {
	if err := ValidateOwnerID(userID); err != nil {
		return err
	}
	if err := r.repo.CompareAndSetOwner(ctx, id, Unclaimed, userID); err != nil {
		return err
	}
	r.reload(ctx, id)

	r.logger.Info("device owner set", "id", id, "owner", userID)
	return nil
}

// ReleaseOwner returns a device owned by userID to Unclaimed.
func (r *Registry) ReleaseOwner(ctx context.Context, id, userID string) error {
	if err := ValidateOwnerID(userID); err != nil {
		return err
	}
	if err := r.repo.CompareAndSetOwner(ctx, id, userID, Unclaimed); err != nil {
		return err
	}
	r.reload(ctx, id)

	r.logger.Info("device released", "id", id, "previous_owner", userID)
	return nil
}

// Onboard registers new hardware as an unclaimed device.
func (r *Registry) Onboard(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}
	d.OwnerID = Unclaimed
	d.ClaimedAt = nil

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}
	r.store(d)

	r.logger.Info("device onboarded", "id", d.ID, "admin", d.AdminID)
	return nil
}

// RenameDevice changes the display name.
func (r *Registry) RenameDevice(ctx context.Context, id, name string) error {
	candidate := &Device{ID: id, Name: name}
	if err := ValidateDevice(candidate); err != nil {
		return err
	}
	if err := r.repo.UpdateName(ctx, id, name); err != nil {
		return err
	}
	r.reload(ctx, id)
	return nil
}

// DeleteDevice removes a device.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats summarises the cached fleet.
type Stats struct {
	TotalDevices int `json:"total_devices"`
	Claimed      int `json:"claimed"`
	Unclaimed    int `json:"unclaimed"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{TotalDevices: len(r.cache)}
	for _, d := range r.cache {
		if d.IsClaimed() {
			stats.Claimed++
		} else {
			stats.Unclaimed++
		}
	}
	return stats
}

func (r *Registry) store(d *Device) {
	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()
}

// reload refreshes one cache entry after a write. A failed read drops the
// entry so the next lookup goes to the repository.
func (r *Registry) reload(ctx context.Context, id string) {
	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		r.logger.Warn("reloading device after write failed", "id", id, "error", err)
		r.cacheMu.Lock()
		delete(r.cache, id)
		r.cacheMu.Unlock()
		return
	}
	r.store(d)
}

// filterCache returns sorted copies of matching cached devices, or nil if
// the cache is empty.
func (r *Registry) filterCache(keep func(*Device) bool) []Device {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) == 0 {
		return nil
	}
	var out []Device
	for _, d := range r.cache {
		if keep(d) {
			out = append(out, *d.DeepCopy())
		}
	}
	slices.SortFunc(out, func(a, b Device) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
