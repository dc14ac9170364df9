// Package app wires the camera, extractor, training orchestrator and
// detection loop into the running application.
package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/nofacetouch/internal/alert"
	"github.com/ayusman/nofacetouch/internal/capture"
	"github.com/ayusman/nofacetouch/internal/classifier"
	"github.com/ayusman/nofacetouch/internal/clock"
	"github.com/ayusman/nofacetouch/internal/config"
	"github.com/ayusman/nofacetouch/internal/detection"
	"github.com/ayusman/nofacetouch/internal/embedding"
	"github.com/ayusman/nofacetouch/internal/status"
	"github.com/ayusman/nofacetouch/internal/store"
	"github.com/ayusman/nofacetouch/internal/training"
)

// ErrNotStarted is returned by intents sent before Start.
var ErrNotStarted = errors.New("app not started")

// Config holds the settings and optional dependency overrides for the app.
// Nil dependencies are built from Settings.
type Config struct {
	Settings  *config.Config
	Camera    capture.Camera
	Extractor embedding.Extractor
	Store     *store.Store
	Player    detection.Player
	Clock     clock.Clock
	Logger    logrus.FieldLogger
}

// App is the main application: training first, then detection.
type App struct {
	settings  *config.Config
	camera    capture.Camera
	extractor embedding.Extractor
	store     *store.Store
	player    detection.Player
	clock     clock.Clock
	hub       *status.Hub
	orch      *training.Orchestrator
	history   *detection.HistorySink
	log       logrus.FieldLogger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	loop     *detection.Loop
	stopOnce sync.Once
}

// New creates a new App. It loads the embedding model and opens the history
// store, but does not touch the camera until Start.
func New(cfg Config) (*App, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	a := &App{
		settings: settings,
		camera:   cfg.Camera,
		store:    cfg.Store,
		player:   cfg.Player,
		clock:    clk,
		hub:      status.NewHub(),
		log:      log,
	}

	if a.camera == nil {
		cam := settings.Camera
		a.camera = capture.NewCameraWithSize(cam.Device, cam.Width, cam.Height)
		if cam.FPS > 0 {
			a.camera.SetFPS(cam.FPS)
		}
	}

	a.extractor = cfg.Extractor
	if a.extractor == nil {
		ext, err := embedding.New(extractorConfig(settings.Embedding))
		if err != nil {
			return nil, fmt.Errorf("failed to create extractor: %w", err)
		}
		a.extractor = ext
		log.WithField("extractor", fmt.Sprintf("%T", ext)).Info("Embedding extractor ready")
	}

	if a.store == nil {
		s, err := store.New(settings.History.Path)
		if err != nil {
			a.extractor.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		a.store = s
	}

	if a.player == nil {
		a.player = alert.NewPlayer(alertConfig(settings.Alert), log)
	}

	a.orch = training.New(a.trainingConfig(), a.camera, a.extractor, newClassifier(settings.Classifier))
	a.history = detection.NewHistorySink(a.store.TouchEvents(), log.WithField("component", "history"))

	return a, nil
}

// Start opens the camera and enters the training phase. A missing camera is
// fatal: the status becomes unavailable and an error wrapping
// capture.ErrDeviceUnavailable is returned.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.ctx != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		a.hub.Publish(status.Status{Phase: status.PhaseUnavailable, Error: err.Error()})
		a.log.WithError(err).Error("Camera unavailable")
		return fmt.Errorf("open camera: %w", err)
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.hub.Publish(a.orch.Status())

	a.log.Info("Camera opened, waiting for training")
	return nil
}

// StartSession begins recording label in the background. Intents that do
// not fit the training state return training.ErrInvalidTransition.
func (a *App) StartSession(label classifier.Label) error {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()

	if ctx == nil {
		return ErrNotStarted
	}
	return a.orch.Start(ctx, label)
}

// ConfirmReady ends training and starts the detection loop.
func (a *App) ConfirmReady() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ctx == nil {
		return ErrNotStarted
	}

	clf, err := a.orch.ConfirmReady()
	if err != nil {
		return err
	}

	a.loop = a.newLoop(clf)
	return a.loop.Start(a.ctx)
}

// Stop halts training or detection and releases resources. Later calls do nothing.
func (a *App) Stop() {
	a.stopOnce.Do(a.stop)
}

func (a *App) stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	a.orch.Wait()

	a.mu.Lock()
	loop := a.loop
	a.mu.Unlock()
	if loop != nil {
		loop.Wait()
	}
	a.history.Flush()
	if n, err := a.store.TouchEvents().CloseOpen(time.Now()); err != nil {
		a.log.WithError(err).Warn("Failed to close open touch events")
	} else if n > 0 {
		a.log.WithField("events", n).Info("Closed open touch events")
	}

	if p, ok := a.player.(*alert.Player); ok {
		p.Wait()
	}

	if err := a.camera.Close(); err != nil {
		a.log.WithError(err).Warn("Error closing camera")
	}
	if err := a.extractor.Close(); err != nil {
		a.log.WithError(err).Warn("Error closing extractor")
	}
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("Error closing history")
	}

	a.log.Info("Stopped")
}

// Hub returns the status hub.
func (a *App) Hub() *status.Hub {
	return a.hub
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Store returns the touch history store.
func (a *App) Store() *store.Store {
	return a.store
}

// Orchestrator returns the training orchestrator.
func (a *App) Orchestrator() *training.Orchestrator {
	return a.orch
}

// Loop returns the detection loop, or nil before ConfirmReady.
func (a *App) Loop() *detection.Loop {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loop
}

func (a *App) trainingConfig() training.Config {
	t := a.settings.Training

	cfg := training.DefaultConfig()
	cfg.TrainingTicks = t.Ticks
	cfg.TickInterval = t.TickInterval
	cfg.CountdownSteps = t.CountdownSteps
	cfg.CountdownStep = t.CountdownStep
	cfg.Retry.MaxRetries = t.TickRetries
	if t.RetryDelay > 0 {
		cfg.Retry.BaseDelay = t.RetryDelay
	}
	cfg.Clock = a.clock
	cfg.Logger = a.log
	cfg.Publisher = a.hub
	return cfg
}

func newClassifier(c config.ClassifierConfig) *classifier.Classifier {
	opts := []classifier.Option{classifier.WithK(c.K)}
	if c.Index == config.IndexHNSW {
		opts = append(opts, classifier.WithIndex(classifier.NewHNSWIndex()))
	}
	return classifier.New(opts...)
}

func extractorConfig(c config.EmbeddingConfig) embedding.Config {
	cfg := embedding.DefaultConfig()
	cfg.Backend = c.Backend
	cfg.DNN.ModelPath = c.ModelPath
	cfg.DNN.ConfigPath = c.ConfigPath
	cfg.DNN.OutputLayer = c.OutputLayer
	if c.InputSize > 0 {
		cfg.DNN.InputSize = c.InputSize
	}
	if len(c.ServiceCommand) > 0 {
		cfg.Service.Command = c.ServiceCommand
	}
	cfg.Service.IdleTimeout = c.ServiceIdle
	cfg.Thumb = embedding.ThumbnailConfig{Width: c.ThumbWidth, Height: c.ThumbHeight}
	return cfg
}

func alertConfig(c config.AlertConfig) alert.Config {
	cfg := alert.DefaultConfig()
	if len(c.Command) > 0 {
		cfg.Command = c.Command
	} else if c.Sound != "" {
		cfg.Command = alert.DefaultCommand(runtime.GOOS, c.Sound)
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	return cfg
}
