// Package detection runs the real-time touch classification loop once training
// is confirmed.
package detection

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/nofacetouch/internal/capture"
	"github.com/ayusman/nofacetouch/internal/classifier"
	"github.com/ayusman/nofacetouch/internal/clock"
	"github.com/ayusman/nofacetouch/internal/embedding"
)

// DefaultThreshold is the touching confidence a prediction must exceed.
const DefaultThreshold = 0.9

// ErrAlreadyRunning is returned by Start when the loop is already running.
var ErrAlreadyRunning = errors.New("detection loop already running")

// Model classifies embeddings. *classifier.Classifier implements it.
type Model interface {
	ClassCount(label classifier.Label) int
	Predict(e classifier.Embedding) (classifier.Result, error)
}

// Outcome is the result of one detection cycle.
type Outcome struct {
	// Skipped is set when the model cannot predict yet.
	Skipped bool
	Result  classifier.Result
	State   TouchState
	Edge    Edge
}

// Confidence returns the touching confidence of the cycle.
func (o Outcome) Confidence() float64 {
	return o.Result.Confidence(classifier.Touching)
}

// Sink receives the side effects of detection cycles.
type Sink interface {
	// Alert is called exactly once per rising edge, before Status.
	Alert(ctx context.Context, o Outcome)
	// Status is called once per completed cycle.
	Status(ctx context.Context, o Outcome)
}

// Config holds configuration options for the detection loop.
type Config struct {
	Threshold float64
	// MinInterval paces cycles. Zero runs them back to back.
	MinInterval time.Duration
	Sinks       []Sink
	Clock       clock.Clock
	Logger      logrus.FieldLogger
}

// DefaultConfig returns the default detection settings.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold}
}

// Loop classifies frames and drives sinks on touch-state edges.
type Loop struct {
	model     Model
	frames    capture.FrameReader
	extractor embedding.Extractor
	config    Config
	log       logrus.FieldLogger

	mu      sync.Mutex
	state   TouchState
	running bool
	cycles  int
	wg      sync.WaitGroup
}

// NewLoop creates a detection loop over a trained model.
func NewLoop(model Model, frames capture.FrameReader, extractor embedding.Extractor, config Config) *Loop {
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	if config.MinInterval < 0 {
		config.MinInterval = 0
	}
	if config.Clock == nil {
		config.Clock = clock.Real{}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	return &Loop{
		model:     model,
		frames:    frames,
		extractor: extractor,
		config:    config,
		log:       config.Logger.WithField("component", "detection"),
	}
}

// Cycle runs one capture, classify and react step.
//
// A model without examples for both labels produces a skipped Outcome and no
// side effects. Capture and extraction failures are returned and leave the
// touch state unchanged.
func (l *Loop) Cycle(ctx context.Context) (Outcome, error) {
	if l.model.ClassCount(classifier.NotTouching) == 0 || l.model.ClassCount(classifier.Touching) == 0 {
		return Outcome{Skipped: true, State: l.State()}, nil
	}

	emb, err := l.embed(ctx)
	if err != nil {
		return Outcome{State: l.State()}, err
	}

	result, err := l.model.Predict(emb)
	if errors.Is(err, classifier.ErrInsufficientExamples) {
		return Outcome{Skipped: true, State: l.State()}, nil
	}
	if err != nil {
		return Outcome{State: l.State()}, fmt.Errorf("predict: %w", err)
	}

	touching := result.Label == classifier.Touching &&
		result.Confidence(classifier.Touching) > l.config.Threshold

	l.mu.Lock()
	edge := l.state.Update(touching)
	out := Outcome{Result: result, State: l.state, Edge: edge}
	l.cycles++
	l.mu.Unlock()

	if edge == EdgeRising {
		l.log.WithField("confidence", out.Confidence()).Info("Face touch detected")
		for _, s := range l.config.Sinks {
			s.Alert(ctx, out)
		}
	}
	for _, s := range l.config.Sinks {
		s.Status(ctx, out)
	}

	return out, nil
}

func (l *Loop) embed(ctx context.Context) (classifier.Embedding, error) {
	frame, err := l.frames.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	defer frame.Close()

	return l.extractor.Extract(ctx, frame)
}

// Run repeats Cycle until ctx is cancelled. Cycle errors are logged and the
// loop continues with the next frame.
func (l *Loop) Run(ctx context.Context) error {
	l.log.WithField("threshold", l.config.Threshold).Info("Detection started")
	defer l.log.Info("Detection stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := l.Cycle(ctx); err != nil && ctx.Err() == nil {
			l.logCycleError(err)
		}

		if l.config.MinInterval > 0 {
			if err := l.config.Clock.Sleep(ctx, l.config.MinInterval); err != nil {
				return err
			}
		} else {
			runtime.Gosched()
		}
	}
}

func (l *Loop) logCycleError(err error) {
	entry := l.log.WithError(err)
	if errors.Is(err, embedding.ErrExtraction) {
		entry.Debug("Skipping frame")
		return
	}
	entry.Warn("Detection cycle failed")
}

// Start runs the loop on a new goroutine. It returns ErrAlreadyRunning if a
// previous Start has not finished.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return ErrAlreadyRunning
	}
	l.running = true

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.Run(ctx)

		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()
	return nil
}

// Wait blocks until a started loop returns.
func (l *Loop) Wait() {
	l.wg.Wait()
}

// Running reports whether the loop goroutine is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// State returns the current touch state.
func (l *Loop) State() TouchState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Cycles returns the number of completed cycles.
func (l *Loop) Cycles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycles
}
