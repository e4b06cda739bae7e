package telemetry

import (
	"testing"
	"time"

	"github.com/edgeberry/edgeberry-core/internal/bridge"
	"github.com/edgeberry/edgeberry-core/internal/claim"
	"github.com/edgeberry/edgeberry-core/internal/infrastructure/influxdb"
)

type claimEvent struct {
	deviceID, action, result string
	at                       time.Time
}

// mockWriter records writes.
type mockWriter struct {
	commands []influxdb.CommandSample
	claims   []claimEvent
}

func (m *mockWriter) WriteCommandMetric(s influxdb.CommandSample) {
	m.commands = append(m.commands, s)
}

func (m *mockWriter) WriteClaimEvent(deviceID, action, result string, at time.Time) {
	m.claims = append(m.claims, claimEvent{deviceID, action, result, at})
}

func TestSink_CommandCompleted(t *testing.T) {
	tests := []struct {
		name       string
		completed  bridge.Completed
		wantStatus int
	}{
		{
			name: "answered",
			completed: bridge.Completed{
				DeviceID: "EB-0001",
				Method:   "identify",
				Outcome:  bridge.OutcomeSuccess,
				Response: &bridge.Response{Payload: []byte(`{"requestId":"x","status":200}`)},
				Duration: 420 * time.Millisecond,
			},
			wantStatus: 200,
		},
		{
			name: "timed out",
			completed: bridge.Completed{
				DeviceID: "EB-0001",
				Method:   "identify",
				Outcome:  bridge.OutcomeTimeout,
				Duration: 10 * time.Second,
			},
			wantStatus: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &mockWriter{}
			NewSink(w).CommandCompleted(tt.completed)

			if len(w.commands) != 1 {
				t.Fatalf("writes = %d, want 1", len(w.commands))
			}
			got := w.commands[0]
			if got.Status != tt.wantStatus || got.Outcome != string(tt.completed.Outcome) || got.Duration != tt.completed.Duration {
				t.Errorf("sample = %+v", got)
			}
		})
	}
}

func TestSink_ClaimFinished(t *testing.T) {
	w := &mockWriter{}
	started := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	NewSink(w).ClaimFinished(claim.Attempt{
		Action:    claim.ActionClaim,
		DeviceID:  "EB-0001",
		Outcome:   claim.OutcomeConfirmationFailed,
		StartedAt: started,
		Duration:  10 * time.Second,
	})

	if len(w.claims) != 1 {
		t.Fatalf("writes = %d, want 1", len(w.claims))
	}
	got := w.claims[0]
	if got.action != "claim" || got.result != "confirmation_failed" || !got.at.Equal(started.Add(10*time.Second)) {
		t.Errorf("event = %+v", got)
	}
}

func TestSink_NilWriter(t *testing.T) {
	s := NewSink(nil)
	s.CommandCompleted(bridge.Completed{})
	s.ClaimFinished(claim.Attempt{})
}
