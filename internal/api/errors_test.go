package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeberry/edgeberry-core/internal/bridge"
	"github.com/edgeberry/edgeberry-core/internal/claim"
	"github.com/edgeberry/edgeberry-core/internal/device"
)

func TestDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"caller hung up during invoke", fmt.Errorf("bridge: waiting: %w", context.Canceled), StatusClientClosedRequest, ErrCodeClientClosed},
		{"caller hung up during claim", fmt.Errorf("%w: %w", claim.ErrConfirmationFailed, context.Canceled), StatusClientClosedRequest, ErrCodeClientClosed},
		{"confirmation timed out", fmt.Errorf("%w: %w", claim.ErrConfirmationFailed, bridge.ErrTimeout), http.StatusGatewayTimeout, ErrCodeGatewayTimeout},
		{"declined", fmt.Errorf("%w: %w", claim.ErrConfirmationFailed, claim.ErrDeclined), http.StatusBadGateway, ErrCodeDeclined},
		{"publish failed", bridge.ErrPublishFailed, http.StatusBadGateway, ErrCodeBadGateway},
		{"conflict", claim.ErrOwnershipConflict, http.StatusConflict, ErrCodeConflict},
		{"not owner", claim.ErrNotOwner, http.StatusForbidden, ErrCodeForbidden},
		{"invalid request", bridge.ErrInvalidRequest, http.StatusBadRequest, ErrCodeValidation},
		{"unknown device", device.ErrDeviceNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"closed", bridge.ErrClosed, http.StatusServiceUnavailable, ErrCodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := domainError(tt.err)
			if !ok {
				t.Fatalf("domainError(%v) not mapped", tt.err)
			}
			if e.Status != tt.status || e.Code != tt.code {
				t.Errorf("got %d %s, want %d %s", e.Status, e.Code, tt.status, tt.code)
			}
		})
	}

	if _, ok := domainError(errors.New("disk on fire")); ok {
		t.Error("unrecognised error should not be mapped")
	}
}

func TestWriteAttemptError_CarriesOutcome(t *testing.T) {
	w := httptest.NewRecorder()
	attempt := &claim.Attempt{Outcome: claim.OutcomeUnauthorized}

	if !writeAttemptError(w, claim.ErrOwnershipConflict, attempt) {
		t.Fatal("writeAttemptError() = false")
	}
	wantStatus(t, w, http.StatusConflict)
	if e := decode[Error](t, w); e.Outcome != string(claim.OutcomeUnauthorized) {
		t.Errorf("outcome = %q, want unauthorized", e.Outcome)
	}

	w = httptest.NewRecorder()
	writeAttemptError(w, device.ErrDeviceNotFound, nil)
	if e := decode[Error](t, w); e.Outcome != "" {
		t.Errorf("outcome = %q, want omitted without an attempt", e.Outcome)
	}
}
