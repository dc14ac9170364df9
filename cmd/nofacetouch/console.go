package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/ayusman/nofacetouch/internal/app"
	"github.com/ayusman/nofacetouch/internal/classifier"
	"github.com/ayusman/nofacetouch/internal/status"
)

var consoleSteps = []struct {
	label  classifier.Label
	prompt string
}{
	{classifier.NotTouching, "Step 1: look at the screen with your hands away from your face, then press Enter."},
	{classifier.Touching, "Step 2: touch your face in different ways while recording, press Enter to begin."},
}

// runConsole guides training through prompts on in and then starts detection.
// It returns nil when ctx ends or in is closed.
func runConsole(ctx context.Context, a *app.App, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	waitEnter := func() bool {
		select {
		case <-ctx.Done():
			return false
		case _, ok := <-lines:
			return ok
		}
	}

	for _, step := range consoleSteps {
		for {
			fmt.Fprintln(out, step.prompt)
			if !waitEnter() {
				return nil
			}
			if err := a.StartSession(step.label); err != nil {
				fmt.Fprintf(out, "Cannot record: %v\n", err)
				continue
			}

			showProgress(ctx, a, out)

			if err := a.Orchestrator().State().Err; err != nil {
				fmt.Fprintf(out, "Recording stopped: %v. Press Enter to resume.\n", err)
				continue
			}
			break
		}
	}

	fmt.Fprintln(out, "Step 3: press Enter to start watching.")
	if !waitEnter() {
		return nil
	}
	if err := a.ConfirmReady(); err != nil {
		return fmt.Errorf("start detection: %w", err)
	}
	fmt.Fprintln(out, "Watching. Press Ctrl+C to quit.")
	return nil
}

// showProgress renders the running session until the orchestrator is idle again.
func showProgress(ctx context.Context, a *app.App, out io.Writer) {
	done := make(chan struct{})
	go func() {
		a.Orchestrator().Wait()
		close(done)
	}()

	updates, unsubscribe := a.Hub().Subscribe()
	defer unsubscribe()

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Get ready"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			_ = bar.Finish()
			fmt.Fprintln(out)
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			switch s.Phase {
			case status.PhaseCountdown:
				bar.Describe(fmt.Sprintf("Starting in %d", s.Countdown))
			case status.PhaseRecording:
				bar.Describe("Recording")
				_ = bar.Set(int(s.Progress * 100))
			}
		}
	}
}
