package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edgeberry/edgeberry-core/internal/auth"
	"github.com/edgeberry/edgeberry-core/internal/device"
)

// maxDirectMethodTimeout caps the caller-supplied wait.
const maxDirectMethodTimeout = 60 * time.Second

// directMethodRequest is the body of POST /things/directmethod.
// Timeout is in seconds; zero selects the bridge default.
type directMethodRequest struct {
	DeviceID   string `json:"deviceId"`
	MethodName string `json:"methodName"`
	MethodBody string `json:"methodBody"`
	Timeout    int    `json:"timeout,omitempty"`
}

// handleDirectMethod sends a named method to a device and returns the
// device's JSON reply verbatim. Only the owner or an admin may call it.
func (s *Server) handleDirectMethod(w http.ResponseWriter, r *http.Request) {
	var req directMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" || req.MethodName == "" {
		writeBadRequest(w, "deviceId and methodName are required")
		return
	}
	if req.Timeout < 0 {
		writeBadRequest(w, "timeout must not be negative")
		return
	}
	timeout := min(time.Duration(req.Timeout)*time.Second, maxDirectMethodTimeout)

	user := userFromContext(r.Context())
	if !s.authorizeDevice(w, r, user, req.DeviceID) {
		return
	}

	resp, err := s.invoker.Invoke(r.Context(), req.DeviceID, req.MethodName, req.MethodBody, timeout)
	if err != nil {
		if !writeDomainError(w, err) {
			s.logger.Error("direct method failed", "device_id", req.DeviceID, "method", req.MethodName, "error", err)
			writeInternalError(w, "direct method failed")
		}
		return
	}

	w.Header().Set("X-Correlation-ID", resp.CorrelationID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(resp.Payload)
}

// authorizeDevice writes 404 or 403 and returns false unless user may
// command the device.
func (s *Server) authorizeDevice(w http.ResponseWriter, r *http.Request, user *auth.User, deviceID string) bool {
	owns, err := s.registry.IsOwner(r.Context(), deviceID, user.ID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return false
		}
		s.logger.Error("checking device owner", "device_id", deviceID, "error", err)
		writeInternalError(w, "failed to check ownership")
		return false
	}
	if !owns && !user.IsAdmin() {
		writeForbidden(w, "you do not own this device")
		return false
	}
	return true
}

// handleListMyThings lists the devices the caller owns.
func (s *Server) handleListMyThings(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	devices, err := s.registry.ListByOwner(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("listing owned devices", "user_id", user.ID, "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetThing returns one device. Users see their own devices and
// whether an unowned one is available; admins see everything.
func (s *Server) handleGetThing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := userFromContext(r.Context())

	d, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if !writeDomainError(w, err) {
			s.logger.Error("getting device", "device_id", id, "error", err)
			writeInternalError(w, "failed to get device")
		}
		return
	}

	state, err := s.claims.State(r.Context(), id)
	if err != nil {
		s.logger.Error("getting claim state", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	if !user.IsAdmin() && d.OwnerID != user.ID {
		// Reveal availability only, not who owns it.
		writeJSON(w, http.StatusOK, map[string]any{
			"id":    d.ID,
			"state": state,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device": d,
		"state":  state,
	})
}

// handleClaim asks the device for a button press and, on confirmation,
// makes the caller its owner.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := userFromContext(r.Context())

	attempt, err := s.claims.Claim(r.Context(), id, user.ID)
	if err != nil {
		if !writeAttemptError(w, err, attempt) {
			s.logger.Error("claim failed", "device_id", id, "user_id", user.ID, "error", err)
			writeInternalError(w, "claim failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// handleRelease gives up the caller's ownership of a device.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := userFromContext(r.Context())

	attempt, err := s.claims.Release(r.Context(), id, user.ID)
	if err != nil {
		if !writeAttemptError(w, err, attempt) {
			s.logger.Error("release failed", "device_id", id, "user_id", user.ID, "error", err)
			writeInternalError(w, "release failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}
