// Package permission tracks the user's consent to microphone capture.
package permission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Status is the recorded consent state.
type Status string

const (
	Undetermined Status = "undetermined"
	Granted      Status = "granted"
	Denied       Status = "denied"
)

// Store persists the consent state.
type Store interface {
	Load() (Status, error)
	Save(Status) error
}

// Watcher is a Store that can report changes made outside this process.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// Prompter asks the user for consent.
type Prompter interface {
	Prompt(ctx context.Context) (bool, error)
}

// Manager answers permission queries and notifies listeners of changes.
type Manager struct {
	store    Store
	prompter Prompter
	logger   *slog.Logger

	promptMu sync.Mutex // serializes prompts

	stateMu sync.Mutex // orders saves against reloads
	last    Status

	mu        sync.Mutex
	listeners map[int]func(Status)
	nextID    int
}

// NewManager creates a Manager. A nil prompter denies every request.
func NewManager(store Store, prompter Prompter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if prompter == nil {
		prompter = StaticPrompter(false)
	}
	return &Manager{
		store:     store,
		prompter:  prompter,
		logger:    logger.With("component", "permission"),
		listeners: make(map[int]func(Status)),
	}
}

// Status returns the stored consent state.
func (m *Manager) Status() (Status, error) {
	s, err := m.store.Load()
	if err != nil {
		return Undetermined, fmt.Errorf("loading permission: %w", err)
	}
	return s, nil
}

// Has reports whether consent is granted. It never prompts.
func (m *Manager) Has() bool {
	s, err := m.Status()
	if err != nil {
		m.logger.Warn("permission status unreadable", "error", err)
		return false
	}
	return s == Granted
}

// Request prompts for consent unless it is already granted and records the
// answer.
func (m *Manager) Request(ctx context.Context) (bool, error) {
	m.promptMu.Lock()
	defer m.promptMu.Unlock()

	if m.Has() {
		return true, nil
	}
	ok, err := m.prompter.Prompt(ctx)
	if err != nil {
		return false, fmt.Errorf("prompting for permission: %w", err)
	}
	status := Denied
	if ok {
		status = Granted
	}
	if err := m.set(status); err != nil {
		return false, err
	}
	return ok, nil
}

// Grant records consent without prompting.
func (m *Manager) Grant() error { return m.set(Granted) }

// Revoke withdraws consent. Listeners are notified so active capture can stop.
func (m *Manager) Revoke() error { return m.set(Denied) }

// Listen registers fn to be called after every status change. The returned
// function unregisters it.
func (m *Manager) Listen(fn func(Status)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Watch reloads the consent state whenever the store reports an outside
// change and notifies listeners when it differs from the last known state.
// Stores that cannot watch are ignored.
func (m *Manager) Watch(ctx context.Context) error {
	w, ok := m.store.(Watcher)
	if !ok {
		return nil
	}
	m.stateMu.Lock()
	m.last, _ = m.store.Load()
	m.stateMu.Unlock()

	if err := w.Watch(ctx, m.reload); err != nil {
		return fmt.Errorf("watching permission: %w", err)
	}
	return nil
}

func (m *Manager) reload() {
	m.stateMu.Lock()
	s, err := m.store.Load()
	if err != nil {
		m.stateMu.Unlock()
		m.logger.Warn("reloading permission failed", "error", err)
		return
	}
	prev := m.last
	m.last = s
	m.stateMu.Unlock()

	if prev == s {
		return
	}
	m.logger.Info("permission changed externally", "from", prev, "to", s)
	m.notify(s)
}

func (m *Manager) set(s Status) error {
	m.stateMu.Lock()
	prev, _ := m.store.Load()
	if err := m.store.Save(s); err != nil {
		m.stateMu.Unlock()
		return fmt.Errorf("saving permission: %w", err)
	}
	m.last = s
	m.stateMu.Unlock()

	if prev == s {
		return nil
	}
	m.logger.Info("permission changed", "from", prev, "to", s)
	m.notify(s)
	return nil
}

func (m *Manager) notify(s Status) {
	m.mu.Lock()
	fns := make([]func(Status), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
