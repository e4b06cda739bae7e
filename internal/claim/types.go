package claim

import (
	"context"
	"time"

	"github.com/edgeberry/edgeberry-core/internal/bridge"
)

// State is a device's position in the claim lifecycle.
type State string

const (
	StateUnclaimed           State = "unclaimed"
	StatePendingConfirmation State = "pending_confirmation"
	StateClaimed             State = "claimed"
)

// Outcome is the result of one claim or release attempt.
type Outcome string

const (
	OutcomeClaimed            Outcome = "claimed"
	OutcomeReleased           Outcome = "released"
	OutcomeUnauthorized       Outcome = "unauthorized"
	OutcomeConfirmationFailed Outcome = "confirmation_failed"
)

// Action distinguishes claims from releases.
type Action string

const (
	ActionClaim   Action = "claim"
	ActionRelease Action = "release"
)

// Attempt records one claim or release.
type Attempt struct {
	Action    Action        `json:"action"`
	DeviceID  string        `json:"device_id"`
	UserID    string        `json:"user_id"`
	Outcome   Outcome       `json:"outcome"`
	State     State         `json:"state"`
	Err       error         `json:"-"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Invoker sends a direct method and waits for the reply. *bridge.Correlator
// implements it.
type Invoker interface {
	Invoke(ctx context.Context, deviceID, method, body string, timeout time.Duration) (*bridge.Response, error)
}

// Registry is the ownership store. *device.Registry implements it.
type Registry interface {
	GetOwner(ctx context.Context, deviceID string) (string, error)
	SetOwner(ctx context.Context, deviceID, userID string) error
	ReleaseOwner(ctx context.Context, deviceID, userID string) error
}

// Observer is told about every finished attempt. Must not block.
type Observer interface {
	ClaimFinished(a Attempt)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(a Attempt)

// ClaimFinished implements Observer.
func (f ObserverFunc) ClaimFinished(a Attempt) { f(a) }

// Logger is satisfied by logging.Logger.
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
