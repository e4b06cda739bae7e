package claim

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edgeberry/edgeberry-core/internal/bridge"
	"github.com/edgeberry/edgeberry-core/internal/device"
)

// mockInvoker answers Invoke from a function.
type mockInvoker struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context) (*bridge.Response, error)
}

func (m *mockInvoker) Invoke(ctx context.Context, _, _, _ string, _ time.Duration) (*bridge.Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.fn(ctx)
}

// mockRegistry is an in-memory ownership store.
type mockRegistry struct {
	mu     sync.Mutex
	owners map[string]string
	setErr error
}

func (m *mockRegistry) GetOwner(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.owners[id]
	if !ok {
		return "", device.ErrDeviceNotFound
	}
	return owner, nil
}

func (m *mockRegistry) SetOwner(_ context.Context, id, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.owners[id] = user
	return nil
}

func (m *mockRegistry) ReleaseOwner(_ context.Context, id, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[id] = device.Unclaimed
	return nil
}

func reply(status int) *bridge.Response {
	payload, _ := json.Marshal(map[string]any{"requestId": "x", "status": status})
	return &bridge.Response{Payload: payload}
}

func TestClaim_DeclinedStatus(t *testing.T) {
	tests := []struct {
		name    string
		resp    *bridge.Response
		wantErr error
	}{
		{"ok", reply(200), nil},
		{"no status", &bridge.Response{Payload: []byte(`{"requestId":"x"}`)}, nil},
		{"declined", reply(403), ErrDeclined},
		{"device error", reply(500), ErrDeclined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &mockRegistry{owners: map[string]string{"a": device.Unclaimed}}
			inv := &mockInvoker{fn: func(context.Context) (*bridge.Response, error) { return tt.resp, nil }}
			wf := New(inv, reg, Options{})

			_, err := wf.Claim(context.Background(), "a", "user-1")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Claim() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && !errors.Is(err, ErrConfirmationFailed) {
				t.Errorf("declined error %v does not wrap ErrConfirmationFailed", err)
			}

			want := "user-1"
			if tt.wantErr != nil {
				want = device.Unclaimed
			}
			if reg.owners["a"] != want {
				t.Errorf("owner = %q, want %q", reg.owners["a"], want)
			}
		})
	}
}

func TestClaim_InProgress(t *testing.T) {
	reg := &mockRegistry{owners: map[string]string{"a": device.Unclaimed}}
	release := make(chan struct{})
	entered := make(chan struct{})
	inv := &mockInvoker{fn: func(context.Context) (*bridge.Response, error) {
		close(entered)
		<-release
		return reply(200), nil
	}}
	wf := New(inv, reg, Options{})

	errCh := make(chan error, 1)
	go func() {
		_, err := wf.Claim(context.Background(), "a", "user-1")
		errCh <- err
	}()
	<-entered

	if state, _ := wf.State(context.Background(), "a"); state != StatePendingConfirmation {
		t.Errorf("State() during claim = %s, want %s", state, StatePendingConfirmation)
	}
	if _, err := wf.Claim(context.Background(), "a", "user-2"); !errors.Is(err, ErrClaimInProgress) {
		t.Errorf("second Claim() error = %v, want ErrClaimInProgress", err)
	}
	if _, err := wf.Release(context.Background(), "a", "user-1"); !errors.Is(err, ErrClaimInProgress) {
		t.Errorf("Release() during claim error = %v, want ErrClaimInProgress", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("first Claim() error = %v", err)
	}
	if state, _ := wf.State(context.Background(), "a"); state != StateClaimed {
		t.Errorf("State() after claim = %s, want %s", state, StateClaimed)
	}
	if inv.calls != 1 {
		t.Errorf("Invoke calls = %d, want 1", inv.calls)
	}
}

func TestClaim_LostRaceAfterConfirmation(t *testing.T) {
	reg := &mockRegistry{
		owners: map[string]string{"a": device.Unclaimed},
		setErr: device.ErrOwnershipChanged,
	}
	inv := &mockInvoker{fn: func(context.Context) (*bridge.Response, error) { return reply(200), nil }}
	wf := New(inv, reg, Options{})

	attempt, err := wf.Claim(context.Background(), "a", "user-1")
	if !errors.Is(err, ErrOwnershipConflict) {
		t.Fatalf("Claim() error = %v, want ErrOwnershipConflict", err)
	}
	if attempt.Outcome != OutcomeUnauthorized {
		t.Errorf("Outcome = %s, want %s", attempt.Outcome, OutcomeUnauthorized)
	}
}

func TestClaim_StoreFailure(t *testing.T) {
	reg := &mockRegistry{
		owners: map[string]string{"a": device.Unclaimed},
		setErr: errors.New("disk full"),
	}
	inv := &mockInvoker{fn: func(context.Context) (*bridge.Response, error) { return reply(200), nil }}
	wf := New(inv, reg, Options{})

	attempt, err := wf.Claim(context.Background(), "a", "user-1")
	if err == nil || errors.Is(err, ErrConfirmationFailed) {
		t.Fatalf("Claim() error = %v, want storage error", err)
	}
	if attempt != nil {
		t.Errorf("attempt = %+v, want nil", attempt)
	}
}

func TestClaim_StoresOwnerAfterCallerCancel(t *testing.T) {
	reg := &mockRegistry{owners: map[string]string{"a": device.Unclaimed}}
	ctx, cancel := context.WithCancel(context.Background())
	inv := &mockInvoker{fn: func(context.Context) (*bridge.Response, error) {
		cancel()
		return reply(200), nil
	}}
	wf := New(inv, reg, Options{})

	if _, err := wf.Claim(ctx, "a", "user-1"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if reg.owners["a"] != "user-1" {
		t.Errorf("owner = %q, want user-1", reg.owners["a"])
	}
}

func TestNew_Defaults(t *testing.T) {
	wf := New(&mockInvoker{}, &mockRegistry{}, Options{})

	if wf.method != DefaultConfirmMethod {
		t.Errorf("method = %q, want %q", wf.method, DefaultConfirmMethod)
	}
	if wf.timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", wf.timeout)
	}
}
