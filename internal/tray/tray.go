// Package tray provides the system tray interface: the touch status label and
// the training intents.
package tray

import (
	"context"
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/nofacetouch/internal/classifier"
	"github.com/ayusman/nofacetouch/internal/status"
)

// Tray represents the system tray application.
type Tray struct {
	onRecord   func(label classifier.Label)
	onReady    func()
	onSettings func()
	onQuit     func()
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuStatus  *systray.MenuItem
	menuRecord0 *systray.MenuItem
	menuRecord1 *systray.MenuItem
	menuReady   *systray.MenuItem
	last        *status.Status
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{}
}

// OnRecord sets the callback function to be called when a record menu item is clicked.
func (t *Tray) OnRecord(fn func(label classifier.Label)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRecord = fn
}

// OnReady sets the callback function to be called when the ready menu item is clicked.
func (t *Tray) OnReady(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReady = fn
}

// OnSettings sets the callback function to be called when the preview menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReadyTray, t.onExit)
}

// Quit stops the tray event loop.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReadyTray is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReadyTray() {
	systray.SetTitle(Title(status.Status{Phase: status.PhaseStarting}))
	systray.SetTooltip("nofacetouch")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem("Status: starting", "Current state")
	t.menuStatus.Disable()
	systray.AddSeparator()

	t.menuRecord0 = systray.AddMenuItem("1. Record not touching", "Record examples without touching your face")
	t.menuRecord1 = systray.AddMenuItem("2. Record touching", "Record examples while touching your face")
	t.menuReady = systray.AddMenuItem("3. Ready", "Finish training and start detection")
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Preview...", "Open the camera preview in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit nofacetouch")

	last := t.last
	t.mu.Unlock()

	if last != nil {
		t.Apply(*last)
	}

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuRecord0.ClickedCh:
				t.handleRecord(classifier.NotTouching)
			case <-t.menuRecord1.ClickedCh:
				t.handleRecord(classifier.Touching)
			case <-t.menuReady.ClickedCh:
				t.handleReady()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

func (t *Tray) handleRecord(label classifier.Label) {
	t.mu.RLock()
	callback := t.onRecord
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(label)
	}
}

func (t *Tray) handleReady() {
	t.mu.RLock()
	callback := t.onReady
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleSettings handles the preview menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Follow applies every status published on hub until ctx is done.
func (t *Tray) Follow(ctx context.Context, hub *status.Hub) {
	updates, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			t.Apply(s)
		}
	}
}

// Apply updates the title and menu items for s.
func (t *Tray) Apply(s status.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.last = &s
	if t.menuStatus == nil {
		// Not running yet, applied in onReadyTray
		return
	}

	systray.SetTitle(Title(s))
	t.menuStatus.SetTitle("Status: " + Describe(s))

	m := Menu(s)
	setEnabled(t.menuRecord0, m.Record0)
	setEnabled(t.menuRecord1, m.Record1)
	setEnabled(t.menuReady, m.Ready)
}

func setEnabled(item *systray.MenuItem, enabled bool) {
	if enabled {
		item.Enable()
	} else {
		item.Disable()
	}
}

// Title returns the tray title for s. During detection it is the status label.
func Title(s status.Status) string {
	switch s.Phase {
	case status.PhaseDetecting:
		return s.Label()
	case status.PhaseCountdown:
		if s.Countdown > 0 {
			return fmt.Sprintf("%d…", s.Countdown)
		}
		return "get ready"
	case status.PhaseRecording:
		return fmt.Sprintf("recording %d%%", int(s.Progress*100))
	case status.PhaseUnavailable:
		return "no camera"
	default:
		return "nofacetouch"
	}
}

// Describe returns a one-line description of s for the status menu item.
func Describe(s status.Status) string {
	switch {
	case s.Error != "" && s.Phase == status.PhaseIdle:
		return fmt.Sprintf("step %d failed: %s", s.Step+1, s.Error)
	case s.Phase == status.PhaseIdle:
		if s.Step >= 2 {
			return "trained, press Ready"
		}
		return fmt.Sprintf("waiting for step %d", s.Step+1)
	case s.Phase == status.PhaseDetecting:
		return fmt.Sprintf("%s (%.0f%%)", s.Label(), s.Confidence*100)
	default:
		return string(s.Phase)
	}
}

// MenuState says which intents the menu offers.
type MenuState struct {
	Record0 bool
	Record1 bool
	Ready   bool
}

// Menu returns the menu state for s.
func Menu(s status.Status) MenuState {
	if s.Phase != status.PhaseIdle {
		return MenuState{}
	}
	return MenuState{
		Record0: s.Step == 0,
		Record1: s.Step == 1,
		Ready:   s.Step >= 2,
	}
}
