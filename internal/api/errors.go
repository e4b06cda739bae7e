package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/edgeberry/edgeberry-core/internal/auth"
	"github.com/edgeberry/edgeberry-core/internal/bridge"
	"github.com/edgeberry/edgeberry-core/internal/claim"
	"github.com/edgeberry/edgeberry-core/internal/device"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// Outcome is set on claim and release failures.
	Outcome string `json:"outcome,omitempty"`
}

// StatusClientClosedRequest is logged when the caller hung up before a
// device call finished. Nobody reads the body.
const StatusClientClosedRequest = 499

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeBadGateway     = "device_unreachable"
	ErrCodeGatewayTimeout = "device_timeout"
	ErrCodeDeclined       = "device_declined"
	ErrCodeClientClosed   = "client_closed_request"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps bridge, claim and registry errors onto HTTP statuses.
// Anything unrecognised is logged by the caller and reported as 500.
func writeDomainError(w http.ResponseWriter, err error) bool {
	e, ok := domainError(err)
	if !ok {
		return false
	}
	writeJSON(w, e.Status, e)
	return true
}

func domainError(err error) (*Error, bool) {
	e := func(status int, code, message string) (*Error, bool) {
		return &Error{Status: status, Code: code, Message: message}, true
	}
	switch {
	case errors.Is(err, context.Canceled):
		return e(StatusClientClosedRequest, ErrCodeClientClosed, "request cancelled")
	case errors.Is(err, claim.ErrOwnershipConflict):
		return e(http.StatusConflict, ErrCodeConflict, "device is already claimed")
	case errors.Is(err, claim.ErrClaimInProgress):
		return e(http.StatusConflict, ErrCodeConflict, "another claim or release of this device is in progress")
	case errors.Is(err, claim.ErrNotOwner):
		return e(http.StatusForbidden, ErrCodeForbidden, "you do not own this device")
	case errors.Is(err, claim.ErrDeclined):
		return e(http.StatusBadGateway, ErrCodeDeclined, "device declined the request")
	case errors.Is(err, bridge.ErrTimeout):
		return e(http.StatusGatewayTimeout, ErrCodeGatewayTimeout, "device did not respond in time")
	case errors.Is(err, bridge.ErrPublishFailed):
		return e(http.StatusBadGateway, ErrCodeBadGateway, "command could not be delivered to the broker")
	case errors.Is(err, bridge.ErrClosed):
		return e(http.StatusServiceUnavailable, ErrCodeUnavailable, "command bridge is shutting down")
	case errors.Is(err, bridge.ErrInvalidRequest),
		errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidOwner):
		return e(http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, device.ErrDeviceNotFound):
		return e(http.StatusNotFound, ErrCodeNotFound, "device not found")
	case errors.Is(err, device.ErrDeviceExists):
		return e(http.StatusConflict, ErrCodeConflict, "device already onboarded")
	case errors.Is(err, auth.ErrForbidden):
		return e(http.StatusForbidden, ErrCodeForbidden, "insufficient permissions")
	}
	return nil, false
}

// writeAttemptError is writeDomainError for claim and release, carrying the
// attempt's outcome when there is one.
func writeAttemptError(w http.ResponseWriter, err error, attempt *claim.Attempt) bool {
	e, ok := domainError(err)
	if !ok {
		return false
	}
	if attempt != nil {
		e.Outcome = string(attempt.Outcome)
	}
	writeJSON(w, e.Status, e)
	return true
}
