package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edgeberry/edgeberry-core/internal/bridge"
)

// Connection states reported by GET /things/{id}/status.
const (
	connOnline  = "online"
	connOffline = "offline"
	connUnknown = "unknown"
)

// deviceStatus is the retained presence document a device publishes on
// its status topic.
type deviceStatus struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// handleGetShadow returns the device's retained shadow document verbatim.
func (s *Server) handleGetShadow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeDevice(w, r, userFromContext(r.Context()), id) {
		return
	}
	if s.retained == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "broker not configured")
		return
	}

	payload, err := s.retained.FetchRetained(r.Context(), s.topics.Shadow(id))
	if err != nil {
		if errors.Is(err, bridge.ErrNotFound) {
			writeNotFound(w, "device has not reported a shadow")
			return
		}
		s.brokerReadError(w, "reading shadow", id, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(payload)
}

// handleGetStatus reports whether the device is connected, from the
// retained status its client publishes and its Last Will overwrites.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorizeDevice(w, r, userFromContext(r.Context()), id) {
		return
	}
	if s.retained == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "broker not configured")
		return
	}

	st := deviceStatus{Status: connUnknown}
	payload, err := s.retained.FetchRetained(r.Context(), s.topics.Status(id))
	switch {
	case errors.Is(err, bridge.ErrNotFound):
	case err != nil:
		s.brokerReadError(w, "reading status", id, err)
		return
	default:
		if jsonErr := json.Unmarshal(payload, &st); jsonErr != nil ||
			(st.Status != connOnline && st.Status != connOffline) {
			s.logger.Warn("unreadable device status", "device_id", id, "payload", string(payload))
			st = deviceStatus{Status: connUnknown}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deviceId":  id,
		"connected": st.Status == connOnline,
		"status":    st.Status,
		"reason":    st.Reason,
		"since":     st.Timestamp,
	})
}

func (s *Server) brokerReadError(w http.ResponseWriter, msg, deviceID string, err error) {
	if writeDomainError(w, err) {
		return
	}
	s.logger.Error(msg, "device_id", deviceID, "error", err)
	writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "could not read from the broker")
}
