// Package alert plays the audible warning when a face touch starts.
package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single playback.
const DefaultTimeout = 5 * time.Second

// DefaultSound is the warning clip played on a new touch.
const DefaultSound = "assets/sound/no.mp3"

// ErrNoCommand is returned by Run when no playback command is configured.
var ErrNoCommand = errors.New("no alert command configured")

// Config holds configuration options for the alert player.
type Config struct {
	// Command is the program and arguments that play the sound.
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a playback command for the current platform.
// On platforms without a known player the command is empty and alerts are silent.
func DefaultConfig() Config {
	return Config{
		Command: DefaultCommand(runtime.GOOS, DefaultSound),
		Timeout: DefaultTimeout,
	}
}

// DefaultCommand returns the usual command line that plays sound on goos.
func DefaultCommand(goos, sound string) []string {
	switch goos {
	case "darwin":
		return []string{"afplay", sound}
	case "linux":
		return []string{"paplay", sound}
	case "windows":
		return []string{"powershell", "-c", fmt.Sprintf("(New-Object Media.SoundPlayer '%s').PlaySync()", sound)}
	default:
		return nil
	}
}

// Player runs the playback command. Play never blocks the caller, and a
// cue that is still playing is not restarted.
type Player struct {
	config Config
	log    logrus.FieldLogger

	mu      sync.Mutex
	playing bool
	plays   int
	wg      sync.WaitGroup
}

// NewPlayer creates a Player with the given configuration.
func NewPlayer(config Config, log logrus.FieldLogger) *Player {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Player{
		config: config,
		log:    log.WithField("component", "alert"),
	}
}

// Enabled reports whether a playback command is configured.
func (p *Player) Enabled() bool {
	return len(p.config.Command) > 0
}

// Play starts the cue in the background. It returns immediately.
func (p *Player) Play() {
	if !p.Enabled() {
		return
	}

	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		p.log.Debug("Alert already playing")
		return
	}
	p.playing = true
	p.plays++
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			p.playing = false
			p.mu.Unlock()
		}()

		if err := p.Run(context.Background()); err != nil {
			p.log.WithError(err).Warn("Alert playback failed")
		}
	}()
}

// Run plays the cue and waits for the command to finish or time out.
func (p *Player) Run(ctx context.Context) error {
	if !p.Enabled() {
		return ErrNoCommand
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.config.Command[0], p.config.Command[1:]...)
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("alert playback timeout after %s", p.config.Timeout)
	}

	if err != nil {
		if s := stderr.String(); s != "" {
			return fmt.Errorf("alert playback failed: %w, stderr: %s", err, s)
		}
		return fmt.Errorf("alert playback failed: %w", err)
	}

	return nil
}

// Plays returns how many cues were started by Play.
func (p *Player) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

// Wait blocks until every started cue has finished.
func (p *Player) Wait() {
	p.wg.Wait()
}
