package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/edgeberry/edgeberry-core/internal/audit"
	"github.com/edgeberry/edgeberry-core/internal/device"
)

// onboardRequest registers manufactured hardware so it can be claimed.
type onboardRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	HardwareVersion string `json:"hardware_version"`
	BatchNumber     string `json:"batch_number"`
}

func (s *Server) handleListAllDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	if owner := r.URL.Query().Get("owner"); owner != "" {
		filtered := make([]device.Device, 0, len(devices))
		for _, d := range devices {
			if d.OwnerID == owner {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStats())
}

// handleOnboardDevice adds a hardware ID to the fleet as unclaimed.
func (s *Server) handleOnboardDevice(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	admin := userFromContext(r.Context())
	d := &device.Device{
		ID:              req.ID,
		Name:            req.Name,
		HardwareVersion: req.HardwareVersion,
		BatchNumber:     req.BatchNumber,
		AdminID:         admin.ID,
	}
	if err := s.registry.Onboard(r.Context(), d); err != nil {
		if !writeDomainError(w, err) {
			s.logger.Error("onboarding device", "device_id", req.ID, "error", err)
			writeInternalError(w, "failed to onboard device")
		}
		return
	}

	s.recorder.Record(&audit.Entry{
		Action:     audit.ActionOnboard,
		EntityType: audit.EntityDevice,
		EntityID:   d.ID,
		UserID:     admin.ID,
		Details:    map[string]any{"hardware_version": d.HardwareVersion, "batch_number": d.BatchNumber},
	})
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.DeleteDevice(r.Context(), id); err != nil {
		if !writeDomainError(w, err) {
			s.logger.Error("deleting device", "device_id", id, "error", err)
			writeInternalError(w, "failed to delete device")
		}
		return
	}

	s.recorder.Record(&audit.Entry{
		Action:     audit.ActionDelete,
		EntityType: audit.EntityDevice,
		EntityID:   id,
		UserID:     userFromContext(r.Context()).ID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleForceRelease unclaims a device regardless of its owner.
func (s *Server) handleForceRelease(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	admin := userFromContext(r.Context())

	attempt, err := s.claims.ForceRelease(r.Context(), id, admin.ID)
	if err != nil {
		if !writeAttemptError(w, err, attempt) {
			s.logger.Error("force release failed", "device_id", id, "error", err)
			writeInternalError(w, "release failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// handleListAuditLogs returns paginated audit entries.
//
// Query parameters: action, entity_type, entity_id, user_id, limit
// (default 50, max 200) and offset.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	page, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
