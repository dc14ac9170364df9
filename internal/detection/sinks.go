package detection

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/nofacetouch/internal/status"
	"github.com/ayusman/nofacetouch/internal/store"
)

// StatusSink publishes the touch label to a status hub every cycle.
type StatusSink struct {
	hub *status.Hub
}

// NewStatusSink creates a sink that updates hub.
func NewStatusSink(hub *status.Hub) *StatusSink {
	return &StatusSink{hub: hub}
}

func (s *StatusSink) Alert(ctx context.Context, o Outcome) {}

func (s *StatusSink) Status(ctx context.Context, o Outcome) {
	s.hub.Update(func(st *status.Status) {
		st.Phase = status.PhaseDetecting
		st.IsTouching = o.State.IsTouching
		st.Confidence = o.Confidence()
		st.Error = ""
	})
}

// Player plays the audible cue.
type Player interface {
	Play()
}

// AlertSink plays a sound on every rising edge.
type AlertSink struct {
	player Player
}

// NewAlertSink creates a sink that plays through p.
func NewAlertSink(p Player) *AlertSink {
	return &AlertSink{player: p}
}

func (s *AlertSink) Alert(ctx context.Context, o Outcome) {
	s.player.Play()
}

func (s *AlertSink) Status(ctx context.Context, o Outcome) {}

// EventRecorder persists touch events. *store.TouchEventRepository implements it.
type EventRecorder interface {
	Start(startedAt time.Time, confidence float64) (*store.TouchEvent, error)
	End(id string, endedAt time.Time, peak float64, cycles int) error
}

// HistorySink opens a touch event on a rising edge and closes it on the
// following falling edge.
type HistorySink struct {
	recorder EventRecorder
	log      logrus.FieldLogger
	now      func() time.Time

	mu     sync.Mutex
	open   *store.TouchEvent
	peak   float64
	cycles int
}

// NewHistorySink creates a sink recording into r.
func NewHistorySink(r EventRecorder, log logrus.FieldLogger) *HistorySink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HistorySink{recorder: r, log: log, now: time.Now}
}

func (s *HistorySink) Alert(ctx context.Context, o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open != nil {
		s.closeLocked()
	}

	e, err := s.recorder.Start(s.now(), o.Confidence())
	if err != nil {
		s.log.WithError(err).Warn("Failed to record touch event")
		return
	}
	s.open = e
	s.peak = o.Confidence()
	s.cycles = 0
}

func (s *HistorySink) Status(ctx context.Context, o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		return
	}

	if o.State.IsTouching {
		s.cycles++
		if c := o.Confidence(); c > s.peak {
			s.peak = c
		}
		return
	}

	if o.Edge == EdgeFalling {
		s.closeLocked()
	}
}

// Flush closes an event left open, e.g. when detection stops mid-touch.
func (s *HistorySink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open != nil {
		s.closeLocked()
	}
}

func (s *HistorySink) closeLocked() {
	if err := s.recorder.End(s.open.ID, s.now(), s.peak, s.cycles); err != nil {
		s.log.WithError(err).WithField("event", s.open.ID).Warn("Failed to close touch event")
	}
	s.open = nil
}
