package api

import (
	"net/http"

	"github.com/ayusman/nofacetouch/internal/status"
)

// StatusHandler reports the latest application status.
type StatusHandler struct {
	hub *status.Hub
}

// NewStatusHandler creates a new StatusHandler reading from hub.
func NewStatusHandler(hub *status.Hub) *StatusHandler {
	return &StatusHandler{hub: hub}
}

type statusResponse struct {
	status.Status
	Label string `json:"label"`
}

// Get handles GET /api/status.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	s := h.hub.Current()
	writeJSON(w, http.StatusOK, statusResponse{Status: s, Label: s.Label()})
}
