// Package status carries the core's progress and touch state to presentation layers.
package status

import (
	"sync"
	"time"
)

// Phase is the coarse state of the application.
type Phase string

const (
	PhaseStarting    Phase = "starting"
	PhaseUnavailable Phase = "unavailable"
	PhaseIdle        Phase = "idle"
	PhaseCountdown   Phase = "countdown"
	PhaseRecording   Phase = "recording"
	PhaseReady       Phase = "ready"
	PhaseDetecting   Phase = "detecting"
)

// Status is the tuple emitted to presentation layers on every meaningful change.
type Status struct {
	Phase      Phase     `json:"phase"`
	Step       int       `json:"step"`
	Countdown  int       `json:"countdown,omitempty"`
	Progress   float64   `json:"progress"`
	IsTouching bool      `json:"is_touching"`
	Confidence float64   `json:"confidence,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Label returns the process-visible status label.
func (s Status) Label() string {
	if s.IsTouching {
		return "touching"
	}
	return "not touching"
}

// Publisher accepts status updates.
type Publisher interface {
	Publish(s Status)
}

// Hub keeps the latest Status and fans updates out to subscribers.
// A slow subscriber only ever misses intermediate updates, never the newest one.
type Hub struct {
	mu      sync.RWMutex
	current Status
	subs    map[chan Status]struct{}
}

// NewHub creates a Hub in the starting phase.
func NewHub() *Hub {
	return &Hub{
		current: Status{Phase: PhaseStarting, UpdatedAt: time.Now()},
		subs:    make(map[chan Status]struct{}),
	}
}

// Publish records s as the current status and delivers it to every subscriber.
func (h *Hub) Publish(s Status) {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = s
	for ch := range h.subs {
		deliver(ch, s)
	}
}

// Update applies fn to a copy of the current status and publishes the result.
func (h *Hub) Update(fn func(*Status)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.current
	fn(&s)
	s.UpdatedAt = time.Now()
	h.current = s
	for ch := range h.subs {
		deliver(ch, s)
	}
}

// Current returns the latest status.
func (h *Hub) Current() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Subscribe returns a channel that immediately receives the current status
// and then every later update. Call the returned function to unsubscribe.
func (h *Hub) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	ch <- h.current
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// deliver replaces any undelivered update with s. Callers hold h.mu.
func deliver(ch chan Status, s Status) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
