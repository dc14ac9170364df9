package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/nofacetouch/internal/app"
	"github.com/ayusman/nofacetouch/internal/classifier"
	"github.com/ayusman/nofacetouch/internal/server"
	"github.com/ayusman/nofacetouch/internal/status"
	"github.com/ayusman/nofacetouch/internal/training"
	"github.com/ayusman/nofacetouch/internal/tray"
)

func runApp(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	console := mustGetBool(cmd, "console")
	useTray := !console && !mustGetBool(cmd, "no-tray")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(app.Config{Settings: cfg, Logger: log})
	if err != nil {
		return err
	}
	defer a.Stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.Enabled {
		srv := server.New(server.Config{
			Addr:      cfg.Server.Addr,
			StaticDir: findWebDir(),
			Hub:       a.Hub(),
			Trainer:   a,
			Store:     a.Store(),
			Camera:    a.Camera(),
			Logger:    log.WithField("component", "server"),
		})
		g.Go(func() error { return srv.Run(gctx) })
	}

	g.Go(func() error {
		logLabels(gctx, a.Hub(), log)
		return nil
	})

	if console {
		g.Go(func() error {
			return runConsole(gctx, a, cmd.InOrStdin(), cmd.OutOrStdout())
		})
	}

	if useTray {
		// systray needs the main goroutine
		t := newTray(a, cfg.Server.Addr, stop, log)
		g.Go(func() error {
			t.Follow(gctx, a.Hub())
			return nil
		})
		go func() {
			<-gctx.Done()
			t.Quit()
		}()
		t.Run()
		stop()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newTray(a *app.App, addr string, quit func(), log logrus.FieldLogger) *tray.Tray {
	t := tray.New()
	t.OnRecord(func(label classifier.Label) {
		if err := a.StartSession(label); err != nil {
			logIntent(log, err, "record")
		}
	})
	t.OnReady(func() {
		if err := a.ConfirmReady(); err != nil {
			logIntent(log, err, "ready")
		}
	})
	t.OnSettings(func() {
		log.Infof("Preview available at http://%s", addr)
	})
	t.OnQuit(quit)
	return t
}

// logIntent logs a rejected tray intent. Out-of-order intents are expected.
func logIntent(log logrus.FieldLogger, err error, intent string) {
	entry := log.WithError(err).WithField("intent", intent)
	if errors.Is(err, training.ErrInvalidTransition) {
		entry.Debug("Ignored intent")
		return
	}
	entry.Warn("Intent failed")
}

// logLabels logs the status label whenever it changes during detection.
func logLabels(ctx context.Context, hub *status.Hub, log logrus.FieldLogger) {
	updates, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			if s.Phase != status.PhaseDetecting {
				continue
			}
			if label := s.Label(); label != last {
				log.WithField("confidence", s.Confidence).Info(label)
				last = label
			}
		}
	}
}

// findWebDir searches for the web UI directory in common locations:
// "web", "../web", "../../web" and ~/.nofacetouch/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".nofacetouch", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
