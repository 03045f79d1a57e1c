// Package hotkey provides a global push-to-talk hotkey using gohook.
// In hold mode pressing the combo starts listening and releasing it stops;
// in toggle mode each press flips between the two.
package hotkey

import (
	"fmt"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// Mode selects how key presses map to start and stop.
type Mode string

const (
	ModeHold   Mode = "hold"
	ModeToggle Mode = "toggle"
)

// ParseMode validates a mode name. Empty means hold.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeHold, "":
		return ModeHold, nil
	case ModeToggle:
		return ModeToggle, nil
	default:
		return "", fmt.Errorf("hotkey: unknown mode %q (want hold or toggle)", s)
	}
}

// EventType indicates whether listening should start or stop.
type EventType int

const (
	EventStart EventType = iota
	EventStop
)

func (t EventType) String() string {
	if t == EventStart {
		return "start"
	}
	return "stop"
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener watches a global key combo and emits start and stop events.
type Listener struct {
	keys []string
	mode Mode
	ch   chan Event
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	active bool
}

// NewListener creates a Listener for keys, given as lowercase key names such
// as ["ctrl", "shift", "r"].
func NewListener(keys []string, mode Mode) *Listener {
	return &Listener{
		keys: keys,
		mode: mode,
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
}

// Keys returns the combo as "ctrl+shift+r".
func (l *Listener) Keys() string { return strings.Join(l.keys, "+") }

// Events returns the event channel. It is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start registers the combo and blocks until Stop is called.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.press() })
	if l.mode == ModeHold {
		hook.Register(hook.KeyUp, l.keys, func(hook.Event) { l.release() })
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// press handles a key-down of the combo. Auto-repeat while held is ignored.
func (l *Listener) press() {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.mode == ModeToggle && l.active:
		l.active = false
		l.emit(EventStop)
	case !l.active:
		l.active = true
		l.emit(EventStart)
	}
}

// release handles a key-up of the combo in hold mode.
func (l *Listener) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		l.active = false
		l.emit(EventStop)
	}
}

// Reset marks the listener idle, e.g. after the session ended on its own.
func (l *Listener) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = false
}

func (l *Listener) emit(t EventType) {
	select {
	case l.ch <- Event{Type: t}:
	default: // don't block the hook thread
	}
}

// Stop terminates the listener. It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
