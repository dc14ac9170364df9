package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/nofacetouch/internal/status"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// writeWait bounds a single status write to a client.
const writeWait = 5 * time.Second

// EventsHandler pushes every status change to WebSocket clients as JSON.
// A slow client only skips intermediate updates.
type EventsHandler struct {
	hub *status.Hub
	log logrus.FieldLogger
}

// NewEventsHandler creates a new EventsHandler fed by hub.
func NewEventsHandler(hub *status.Hub, log logrus.FieldLogger) *EventsHandler {
	return &EventsHandler{hub: hub, log: log}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade error")
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	// Reads only detect the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(eventMessage{Status: s, Label: s.Label()}); err != nil {
				return
			}
		}
	}
}

type eventMessage struct {
	status.Status
	Label string `json:"label"`
}
