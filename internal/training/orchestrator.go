// Package training drives the two guided recording sessions that build the
// per-user touch classifier.
package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/nofacetouch/internal/capture"
	"github.com/ayusman/nofacetouch/internal/classifier"
	"github.com/ayusman/nofacetouch/internal/clock"
	"github.com/ayusman/nofacetouch/internal/embedding"
	"github.com/ayusman/nofacetouch/internal/retry"
	"github.com/ayusman/nofacetouch/internal/status"
)

// Training defaults.
const (
	// DefaultTrainingTicks is the number of examples recorded per label.
	DefaultTrainingTicks = 50
	// DefaultTickInterval throttles capture between ticks.
	DefaultTickInterval = 100 * time.Millisecond
	// DefaultCountdownSteps is the number of countdown phases before recording.
	DefaultCountdownSteps = 3
	// DefaultCountdownStep is the length of each countdown phase.
	DefaultCountdownStep = time.Second
	// StepsToReady is the step reached once both labels are recorded.
	StepsToReady = 2
)

// ErrInvalidTransition is returned for intents that do not apply to the current state.
// Callers are expected to ignore it.
var ErrInvalidTransition = errors.New("invalid training state transition")

// Config holds configuration options for the orchestrator.
type Config struct {
	TrainingTicks  int
	TickInterval   time.Duration
	CountdownSteps int
	CountdownStep  time.Duration
	Retry          retry.Config
	Clock          clock.Clock
	Logger         logrus.FieldLogger
	Publisher      status.Publisher
}

// DefaultConfig returns the standard training timings.
func DefaultConfig() Config {
	return Config{
		TrainingTicks:  DefaultTrainingTicks,
		TickInterval:   DefaultTickInterval,
		CountdownSteps: DefaultCountdownSteps,
		CountdownStep:  DefaultCountdownStep,
		Retry:          retry.DefaultConfig(),
	}
}

// Session tracks one recording run for a single label.
type Session struct {
	Label          classifier.Label
	TicksCompleted int
	TicksRequired  int
}

// Progress returns the completed fraction of the session in [0, 1].
func (s Session) Progress() float64 {
	if s.TicksRequired <= 0 {
		return 1
	}
	return float64(s.TicksCompleted) / float64(s.TicksRequired)
}

// State is a snapshot of the orchestrator.
type State struct {
	Phase     status.Phase
	Step      int
	Countdown int
	Session   *Session
	Err       error
}

// Orchestrator is the training state machine:
//
//	Idle --start(label)--> CountingDown --> Recording --> Idle(step+1)
//
// repeated for NotTouching then Touching, and finally Ready once the user
// confirms. The classifier is handed over on ConfirmReady, after which the
// orchestrator no longer holds it.
type Orchestrator struct {
	config    Config
	frames    capture.FrameReader
	extractor embedding.Extractor
	log       logrus.FieldLogger

	mu        sync.Mutex
	clf       *classifier.Classifier
	phase     status.Phase
	step      int
	countdown int
	session   *Session
	lastErr   error
	wg        sync.WaitGroup
}

// New creates an Orchestrator that records into clf.
func New(config Config, frames capture.FrameReader, extractor embedding.Extractor, clf *classifier.Classifier) *Orchestrator {
	def := DefaultConfig()
	if config.TrainingTicks <= 0 {
		config.TrainingTicks = def.TrainingTicks
	}
	if config.TickInterval < 0 {
		config.TickInterval = 0
	}
	if config.CountdownSteps < 0 {
		config.CountdownSteps = 0
	}
	if config.Clock == nil {
		config.Clock = clock.Real{}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if clf == nil {
		clf = classifier.New()
	}

	return &Orchestrator{
		config:    config,
		frames:    frames,
		extractor: extractor,
		log:       config.Logger.WithField("component", "training"),
		clf:       clf,
		phase:     status.PhaseIdle,
	}
}

// Start claims a recording session for label and runs it in the background.
// It returns ErrInvalidTransition, without side effects, when a session is
// already counting down or recording, when the label does not match the
// current step, or after training is confirmed.
func (o *Orchestrator) Start(ctx context.Context, label classifier.Label) error {
	if err := o.begin(label); err != nil {
		return err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(ctx, label)
	}()
	return nil
}

// Record runs a recording session for label and blocks until it ends.
func (o *Orchestrator) Record(ctx context.Context, label classifier.Label) error {
	if err := o.begin(label); err != nil {
		return err
	}
	return o.run(ctx, label)
}

// Wait blocks until every session started with Start has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// ConfirmReady ends training and hands the classifier to the caller.
// It is only valid when both sessions have completed and nothing is running.
func (o *Orchestrator) ConfirmReady() (*classifier.Classifier, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != status.PhaseIdle || o.step < StepsToReady {
		return nil, fmt.Errorf("%w: confirm ready in %s at step %d", ErrInvalidTransition, o.phase, o.step)
	}

	clf := o.clf
	o.clf = nil
	o.phase = status.PhaseReady
	o.publishLocked()

	o.log.WithFields(logrus.Fields{
		"not_touching": clf.ClassCount(classifier.NotTouching),
		"touching":     clf.ClassCount(classifier.Touching),
	}).Info("Training confirmed")

	return clf, nil
}

// State returns a snapshot of the orchestrator.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := State{
		Phase:     o.phase,
		Step:      o.step,
		Countdown: o.countdown,
		Err:       o.lastErr,
	}
	if o.session != nil {
		s := *o.session
		st.Session = &s
	}
	return st
}

// Status returns the orchestrator state as a presentation status.
func (o *Orchestrator) Status() status.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked()
}

func (o *Orchestrator) begin(label classifier.Label) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase != status.PhaseIdle {
		return fmt.Errorf("%w: start %s while %s", ErrInvalidTransition, label, o.phase)
	}
	if !label.Valid() || int(label) != o.step {
		return fmt.Errorf("%w: start %s at step %d", ErrInvalidTransition, label, o.step)
	}

	// A retried session resumes from the examples already recorded for the label
	completed := o.clf.ClassCount(label)
	if completed > o.config.TrainingTicks {
		completed = o.config.TrainingTicks
	}

	o.session = &Session{
		Label:          label,
		TicksCompleted: completed,
		TicksRequired:  o.config.TrainingTicks,
	}
	o.phase = status.PhaseCountdown
	o.countdown = 0
	o.lastErr = nil
	o.publishLocked()

	return nil
}

func (o *Orchestrator) run(ctx context.Context, label classifier.Label) (err error) {
	log := o.log.WithField("label", label.String())
	defer func() { o.finish(log, err) }()

	log.Info("Countdown started")
	if err := o.runCountdown(ctx); err != nil {
		return err
	}

	o.setPhase(status.PhaseRecording)
	log.Info("Recording started")

	for {
		o.mu.Lock()
		tick := o.session.TicksCompleted
		done := tick >= o.session.TicksRequired
		o.mu.Unlock()

		if done {
			return nil
		}

		if err := o.recordTick(ctx, label, tick); err != nil {
			return fmt.Errorf("record %s tick %d: %w", label, tick+1, err)
		}
	}
}

func (o *Orchestrator) runCountdown(ctx context.Context) error {
	for n := o.config.CountdownSteps; n > 0; n-- {
		o.mu.Lock()
		o.countdown = n
		o.publishLocked()
		o.mu.Unlock()

		if err := o.config.Clock.Sleep(ctx, o.config.CountdownStep); err != nil {
			return err
		}
	}

	o.mu.Lock()
	o.countdown = 0
	o.mu.Unlock()
	return nil
}

// recordTick captures one frame, stores its embedding, paces and reports progress.
func (o *Orchestrator) recordTick(ctx context.Context, label classifier.Label, tick int) error {
	var emb classifier.Embedding

	logRetry := func(attempt int, delay time.Duration, err error) {
		o.log.WithFields(logrus.Fields{
			"label":   label.String(),
			"tick":    tick + 1,
			"attempt": attempt + 1,
			"delay":   delay,
		}).WithError(err).Warn("Retrying training tick")
	}

	err := retry.Do(ctx, o.config.Retry, o.config.Clock, logRetry, func(int) error {
		e, err := o.capture(ctx)
		if err != nil {
			return err
		}
		emb = e
		return nil
	})
	if err != nil {
		return err
	}

	if err := o.clf.AddExample(emb, label); err != nil {
		return err
	}

	o.mu.Lock()
	o.session.TicksCompleted++
	o.mu.Unlock()

	if err := o.config.Clock.Sleep(ctx, o.config.TickInterval); err != nil {
		return err
	}

	o.mu.Lock()
	o.publishLocked()
	o.mu.Unlock()

	return nil
}

func (o *Orchestrator) capture(ctx context.Context) (classifier.Embedding, error) {
	frame, err := o.frames.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	defer frame.Close()

	return o.extractor.Extract(ctx, frame)
}

func (o *Orchestrator) finish(log logrus.FieldLogger, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		o.lastErr = err
		log.WithError(err).Warn("Recording aborted, session can be retried")
	} else {
		o.step++
		log.WithField("step", o.step).Info("Recording finished")
	}

	o.phase = status.PhaseIdle
	o.countdown = 0
	o.session = nil
	o.publishLocked()
}

func (o *Orchestrator) setPhase(p status.Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phase = p
	o.publishLocked()
}

func (o *Orchestrator) statusLocked() status.Status {
	s := status.Status{
		Phase:     o.phase,
		Step:      o.step,
		Countdown: o.countdown,
	}
	if o.session != nil {
		s.Progress = o.session.Progress()
	}
	if o.lastErr != nil {
		s.Error = o.lastErr.Error()
	}
	return s
}

func (o *Orchestrator) publishLocked() {
	if o.config.Publisher == nil {
		return
	}
	o.config.Publisher.Publish(o.statusLocked())
}
