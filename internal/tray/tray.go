// Package tray provides a system tray menu showing the state of the active
// drawing session.
package tray

import (
	"context"
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/airboard/internal/session"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool)
	onOpen   func()
	onQuit   func()
	enabled  bool
	status   session.Status
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuMode   *systray.MenuItem
	menuColor  *systray.MenuItem
	menuBrush  *systray.MenuItem
}

// New creates a new Tray with capture enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback called when capture is switched on or off.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback called when the board should be opened in a
// browser.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Airboard")
	systray.SetTooltip("Airboard gesture drawing")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle camera capture")
	systray.AddSeparator()

	t.menuMode = systray.AddMenuItem("", "Drawing mode")
	t.menuMode.Disable()
	t.menuColor = systray.AddMenuItem("", "Brush color")
	t.menuColor.Disable()
	t.menuBrush = systray.AddMenuItem("", "Brush size")
	t.menuBrush.Disable()
	t.refresh()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Board...", "Open the board in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Airboard")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Capture on"
	}
	return "○ Capture off"
}

// statusTitles returns the menu titles for a session status.
func statusTitles(st session.Status) (mode, color, brush string) {
	if st.SessionID == "" {
		return "Mode: no session", "Color: -", "Brush: -"
	}
	mode = "Mode: " + string(st.Mode)
	if st.HandDetected {
		mode += " (hand)"
	}
	return mode, fmt.Sprintf("Color: %s %s", st.Color, st.ColorHex), fmt.Sprintf("Brush: %d", st.BrushSize)
}

// refresh updates the status items. t.mu must be held.
func (t *Tray) refresh() {
	if t.menuMode == nil {
		return
	}
	mode, color, brush := statusTitles(t.status)
	t.menuMode.SetTitle(mode)
	t.menuColor.SetTitle(color)
	t.menuBrush.SetTitle(brush)
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetStatus shows st in the menu.
func (t *Tray) SetStatus(st session.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = st
	t.refresh()
}

// Status returns the status shown in the menu.
func (t *Tray) Status() session.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Follow shows the status of c until it ends, then clears the display if
// no other session took over.
func (t *Tray) Follow(c *session.Coordinator) {
	sub := c.Subscribe()
	go func() {
		defer sub.Close()
		for {
			u, err := sub.Next(context.Background())
			if err != nil {
				t.mu.Lock()
				if t.status.SessionID == c.ID() {
					t.status = session.Status{}
					t.refresh()
				}
				t.mu.Unlock()
				return
			}
			t.SetStatus(u.Snapshot.Status)
		}
	}()
}

// IsEnabled returns whether capture is switched on.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
