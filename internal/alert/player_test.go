package alert

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// writeScript creates an executable shell script in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	path := filepath.Join(t.TempDir(), "play.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestPlayer_Run(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "played")
	script := writeScript(t, `touch "$1"`+"\n")

	p := NewPlayer(Config{Command: []string{script, marker}}, quietLogger())
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := os.Stat(marker); err != nil {
		t.Errorf("sound command did not run: %v", err)
	}
}

func TestPlayer_Run_Failure(t *testing.T) {
	script := writeScript(t, "echo 'no audio device' >&2\nexit 3\n")

	p := NewPlayer(Config{Command: []string{script}}, quietLogger())
	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from failing command")
	}
	if !strings.Contains(err.Error(), "no audio device") {
		t.Errorf("error %q should include stderr", err)
	}
}

func TestPlayer_Run_Timeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5\n")

	p := NewPlayer(Config{Command: []string{script}, Timeout: 100 * time.Millisecond}, quietLogger())

	start := time.Now()
	err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("Run() error = %v, want timeout", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Run() did not honour the timeout")
	}
}

func TestPlayer_Disabled(t *testing.T) {
	p := NewPlayer(Config{}, quietLogger())

	if p.Enabled() {
		t.Error("player without command should be disabled")
	}
	if err := p.Run(context.Background()); !errors.Is(err, ErrNoCommand) {
		t.Errorf("Run() error = %v, want ErrNoCommand", err)
	}

	p.Play()
	p.Wait()
	if p.Plays() != 0 {
		t.Errorf("Plays() = %d, want 0", p.Plays())
	}
}

func TestPlayer_Play_DoesNotOverlap(t *testing.T) {
	dir := t.TempDir()
	gate := filepath.Join(dir, "gate")
	script := writeScript(t, `while [ ! -f "$1" ]; do sleep 0.01; done`+"\n")

	p := NewPlayer(Config{Command: []string{script, gate}}, quietLogger())

	start := time.Now()
	p.Play()
	p.Play()
	p.Play()
	if time.Since(start) > time.Second {
		t.Error("Play() should return immediately")
	}

	if p.Plays() != 1 {
		t.Errorf("Plays() = %d while playing, want 1", p.Plays())
	}

	if err := os.WriteFile(gate, nil, 0644); err != nil {
		t.Fatalf("failed to open gate: %v", err)
	}
	p.Wait()

	// A finished cue can be played again
	p.Play()
	p.Wait()
	if p.Plays() != 2 {
		t.Errorf("Plays() = %d, want 2", p.Plays())
	}
}

func TestDefaultCommand(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{goos: "darwin", want: "afplay"},
		{goos: "linux", want: "paplay"},
		{goos: "windows", want: "powershell"},
		{goos: "plan9", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			cmd := DefaultCommand(tt.goos, "no.mp3")
			got := ""
			if len(cmd) > 0 {
				got = cmd[0]
			}
			if got != tt.want {
				t.Errorf("DefaultCommand(%q) = %v, want program %q", tt.goos, cmd, tt.want)
			}
		})
	}
}
