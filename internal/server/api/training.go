package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/nofacetouch/internal/classifier"
	"github.com/ayusman/nofacetouch/internal/training"
)

// Trainer accepts training intents from the UI.
type Trainer interface {
	// StartSession begins recording label in the background.
	StartSession(label classifier.Label) error
	// ConfirmReady ends training and starts detection.
	ConfirmReady() error
}

// TrainingHandler handles HTTP requests that drive the training flow.
type TrainingHandler struct {
	trainer Trainer
}

// NewTrainingHandler creates a new TrainingHandler for t.
func NewTrainingHandler(t Trainer) *TrainingHandler {
	return &TrainingHandler{trainer: t}
}

type startSessionRequest struct {
	Label *int `json:"label"`
}

type intentResponse struct {
	Status string `json:"status"`
	Label  string `json:"label,omitempty"`
}

// StartSession handles POST /api/training/sessions.
func (h *TrainingHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Label == nil {
		writeError(w, http.StatusBadRequest, "Label is required")
		return
	}

	label := classifier.Label(*req.Label)
	if !label.Valid() {
		writeError(w, http.StatusBadRequest, "Label must be 0 or 1")
		return
	}

	if err := h.trainer.StartSession(label); err != nil {
		writeIntentError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, intentResponse{Status: "recording", Label: label.String()})
}

// ConfirmReady handles POST /api/training/ready.
func (h *TrainingHandler) ConfirmReady(w http.ResponseWriter, r *http.Request) {
	if err := h.trainer.ConfirmReady(); err != nil {
		writeIntentError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, intentResponse{Status: "detecting"})
}

// writeIntentError reports ignored intents as conflicts.
func writeIntentError(w http.ResponseWriter, err error) {
	if errors.Is(err, training.ErrInvalidTransition) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
