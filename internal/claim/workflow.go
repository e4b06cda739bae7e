package claim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edgeberry/edgeberry-core/internal/device"
)

// Defaults applied by New.
const (
	DefaultConfirmMethod = "linkToUserAccount"
	DefaultTimeout       = 10 * time.Second
)

// Options configures a Workflow.
type Options struct {
	// ConfirmMethod is the direct method the device answers once its
	// button has been pressed.
	ConfirmMethod string
	Timeout       time.Duration
	Logger        Logger
	Observers     []Observer
}

// Workflow moves devices between users. A claim only changes ownership
// after the device itself has confirmed it.
type Workflow struct {
	invoker   Invoker
	registry  Registry
	method    string
	timeout   time.Duration
	logger    Logger
	observers []Observer

	mu       sync.Mutex
	inflight map[string]Action
}

// New creates a Workflow.
func New(invoker Invoker, registry Registry, opts Options) *Workflow {
	if opts.ConfirmMethod == "" {
		opts.ConfirmMethod = DefaultConfirmMethod
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}
	return &Workflow{
		invoker:   invoker,
		registry:  registry,
		method:    opts.ConfirmMethod,
		timeout:   opts.Timeout,
		logger:    logger,
		observers: opts.Observers,
		inflight:  make(map[string]Action),
	}
}

// Claim transfers an unclaimed device to userID once the device confirms.
//
// The returned Attempt is non-nil whenever the device exists, including on
// ErrOwnershipConflict and ErrConfirmationFailed. Ownership is untouched
// unless the outcome is OutcomeClaimed.
func (w *Workflow) Claim(ctx context.Context, deviceID, userID string) (*Attempt, error) {
	if err := device.ValidateOwnerID(userID); err != nil {
		return nil, err
	}
	done, err := w.begin(deviceID, ActionClaim)
	if err != nil {
		return nil, err
	}
	defer done()

	a := &Attempt{
		Action:    ActionClaim,
		DeviceID:  deviceID,
		UserID:    userID,
		State:     StateUnclaimed,
		StartedAt: time.Now(),
	}

	owner, err := w.registry.GetOwner(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("looking up owner of %s: %w", deviceID, err)
	}
	if owner != device.Unclaimed {
		a.State = StateClaimed
		return w.finish(a, OutcomeUnauthorized, ErrOwnershipConflict)
	}

	a.State = StatePendingConfirmation
	w.logger.Info("awaiting claim confirmation", "device_id", deviceID, "user_id", userID, "timeout", w.timeout)

	resp, err := w.invoker.Invoke(ctx, deviceID, w.method, "", w.timeout)
	if err != nil {
		a.State = StateUnclaimed
		return w.finish(a, OutcomeConfirmationFailed, fmt.Errorf("%w: %w", ErrConfirmationFailed, err))
	}
	if status, ok := resp.Status(); ok && (status < 200 || status > 299) {
		a.State = StateUnclaimed
		return w.finish(a, OutcomeConfirmationFailed,
			fmt.Errorf("%w: %w: status %d", ErrConfirmationFailed, ErrDeclined, status))
	}

	// The device has confirmed; record it even if the caller has gone away.
	if err := w.registry.SetOwner(context.WithoutCancel(ctx), deviceID, userID); err != nil {
		if errors.Is(err, device.ErrOwnershipChanged) {
			a.State = StateClaimed
			return w.finish(a, OutcomeUnauthorized, fmt.Errorf("%w: %w", ErrOwnershipConflict, err))
		}
		w.logger.Error("storing confirmed owner failed", "device_id", deviceID, "user_id", userID, "error", err)
		return nil, fmt.Errorf("storing owner of %s: %w", deviceID, err)
	}

	a.State = StateClaimed
	return w.finish(a, OutcomeClaimed, nil)
}

// Release returns a device owned by userID to unclaimed. No device
// round-trip is needed.
func (w *Workflow) Release(ctx context.Context, deviceID, userID string) (*Attempt, error) {
	if err := device.ValidateOwnerID(userID); err != nil {
		return nil, err
	}
	done, err := w.begin(deviceID, ActionRelease)
	if err != nil {
		return nil, err
	}
	defer done()

	owner, err := w.registry.GetOwner(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("looking up owner of %s: %w", deviceID, err)
	}
	return w.release(ctx, deviceID, userID, owner)
}

// ForceRelease returns a device to unclaimed whoever owns it. Used by
// administrators; actorID is recorded as the user.
func (w *Workflow) ForceRelease(ctx context.Context, deviceID, actorID string) (*Attempt, error) {
	done, err := w.begin(deviceID, ActionRelease)
	if err != nil {
		return nil, err
	}
	defer done()

	owner, err := w.registry.GetOwner(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("looking up owner of %s: %w", deviceID, err)
	}
	if owner == device.Unclaimed {
		a := &Attempt{Action: ActionRelease, DeviceID: deviceID, UserID: actorID, State: StateUnclaimed, StartedAt: time.Now()}
		return w.finish(a, OutcomeReleased, nil)
	}
	a, err := w.release(ctx, deviceID, owner, owner)
	if a != nil {
		a.UserID = actorID
	}
	return a, err
}

func (w *Workflow) release(ctx context.Context, deviceID, userID, owner string) (*Attempt, error) {
	a := &Attempt{
		Action:    ActionRelease,
		DeviceID:  deviceID,
		UserID:    userID,
		State:     StateClaimed,
		StartedAt: time.Now(),
	}
	if owner == device.Unclaimed {
		a.State = StateUnclaimed
	}
	if owner != userID {
		return w.finish(a, OutcomeUnauthorized, ErrNotOwner)
	}

	if err := w.registry.ReleaseOwner(ctx, deviceID, userID); err != nil {
		if errors.Is(err, device.ErrOwnershipChanged) {
			return w.finish(a, OutcomeUnauthorized, fmt.Errorf("%w: %w", ErrNotOwner, err))
		}
		return nil, fmt.Errorf("releasing %s: %w", deviceID, err)
	}

	a.State = StateUnclaimed
	return w.finish(a, OutcomeReleased, nil)
}

// State reports where a device is in the claim lifecycle.
func (w *Workflow) State(ctx context.Context, deviceID string) (State, error) {
	w.mu.Lock()
	action, busy := w.inflight[deviceID]
	w.mu.Unlock()
	if busy && action == ActionClaim {
		return StatePendingConfirmation, nil
	}

	owner, err := w.registry.GetOwner(ctx, deviceID)
	if err != nil {
		return "", err
	}
	if owner == device.Unclaimed {
		return StateUnclaimed, nil
	}
	return StateClaimed, nil
}

// begin marks deviceID busy. The returned func clears the mark.
func (w *Workflow) begin(deviceID string, action Action) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if current, busy := w.inflight[deviceID]; busy {
		return nil, fmt.Errorf("%w: %s (%s)", ErrClaimInProgress, deviceID, current)
	}
	w.inflight[deviceID] = action

	return func() {
		w.mu.Lock()
		delete(w.inflight, deviceID)
		w.mu.Unlock()
	}, nil
}

func (w *Workflow) finish(a *Attempt, outcome Outcome, err error) (*Attempt, error) {
	a.Outcome = outcome
	a.Err = err
	a.Duration = time.Since(a.StartedAt)

	attemptsTotal.WithLabelValues(string(a.Action), string(outcome)).Inc()

	args := []any{
		"action", a.Action,
		"device_id", a.DeviceID,
		"user_id", a.UserID,
		"outcome", outcome,
		"duration", a.Duration,
	}
	if err != nil {
		w.logger.Info("ownership change refused", append(args, "error", err)...)
	} else {
		w.logger.Info("ownership changed", args...)
	}

	for _, obs := range w.observers {
		if obs != nil {
			obs.ClaimFinished(*a)
		}
	}
	return a, err
}
