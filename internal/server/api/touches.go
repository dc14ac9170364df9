package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ayusman/nofacetouch/internal/store"
)

// DefaultTouchLimit caps the history returned when no limit is given.
const DefaultTouchLimit = 100

// TouchHandler handles HTTP requests for the touch history.
type TouchHandler struct {
	store *store.Store
}

// NewTouchHandler creates a new TouchHandler with the given store.
func NewTouchHandler(s *store.Store) *TouchHandler {
	return &TouchHandler{store: s}
}

type touchResponse struct {
	ID             string  `json:"id"`
	StartedAt      string  `json:"started_at"`
	EndedAt        string  `json:"ended_at,omitempty"`
	DurationMs     int64   `json:"duration_ms"`
	PeakConfidence float64 `json:"peak_confidence"`
	Cycles         int     `json:"cycles"`
}

type listTouchesResponse struct {
	Touches []touchResponse `json:"touches"`
	Total   int             `json:"total"`
}

// toResponse converts a store.TouchEvent to a touchResponse.
func toResponse(e *store.TouchEvent) touchResponse {
	resp := touchResponse{
		ID:             e.ID,
		StartedAt:      e.StartedAt.Format(time.RFC3339Nano),
		DurationMs:     e.Duration().Milliseconds(),
		PeakConfidence: e.PeakConfidence,
		Cycles:         e.Cycles,
	}
	if e.EndedAt != nil {
		resp.EndedAt = e.EndedAt.Format(time.RFC3339Nano)
	}
	return resp
}

// List handles GET /api/touches?limit=N and returns the newest events first.
func (h *TouchHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := DefaultTouchLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	repo := h.store.TouchEvents()

	events, err := repo.List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list touches")
		return
	}
	total, err := repo.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count touches")
		return
	}

	response := listTouchesResponse{
		Touches: make([]touchResponse, 0, len(events)),
		Total:   total,
	}
	for _, e := range events {
		response.Touches = append(response.Touches, toResponse(e))
	}

	writeJSON(w, http.StatusOK, response)
}
