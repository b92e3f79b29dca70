package session

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Manager owns the live sessions. Sessions are independent and run in
// parallel; a session that ends for any reason removes itself.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	saver    Saver
	sessions map[string]*Coordinator
	hooks    []func(*Coordinator)
	newID    func() string
	logger   *slog.Logger
}

// NewManager creates a Manager. saver may be nil, in which case Save
// commands fail with ErrSaveUnavailable.
func NewManager(cfg Config, saver Saver) *Manager {
	return &Manager{
		cfg:      cfg,
		saver:    saver,
		sessions: make(map[string]*Coordinator),
		newID:    uuid.NewString,
		logger:   slog.Default().With("component", "session-manager"),
	}
}

// Config returns the settings used for new sessions.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// SetConfig changes the settings of sessions started from now on.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// OnStart registers fn to be called for every new session.
func (m *Manager) OnStart(fn func(*Coordinator)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Start creates and starts a new session.
func (m *Manager) Start(opts StartOptions) *Coordinator {
	m.mu.Lock()
	c := newCoordinator(m.newID(), m.cfg, m.saver, opts)
	c.onExit = m.remove
	m.sessions[c.id] = c
	hooks := slices.Clone(m.hooks)
	m.mu.Unlock()

	c.start()
	m.logger.Info("session created", "session_id", c.id)

	for _, fn := range hooks {
		fn(c)
	}
	return c
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Coordinator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	return c, nil
}

// List returns the live sessions, oldest first.
func (m *Manager) List() []*Coordinator {
	m.mu.RLock()
	out := make([]*Coordinator, 0, len(m.sessions))
	for _, c := range m.sessions {
		out = append(out, c)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Coordinator) int {
		if n := a.createdAt.Compare(b.createdAt); n != 0 {
			return n
		}
		return cmp.Compare(a.id, b.id)
	})
	return out
}

// Stop ends a session and waits for it to finish.
func (m *Manager) Stop(id string) error {
	c, err := m.Get(id)
	if err != nil {
		return err
	}
	c.Stop()
	c.Wait()
	return nil
}

// StopAll ends every session.
func (m *Manager) StopAll() {
	sessions := m.List()
	for _, c := range sessions {
		c.Stop()
	}
	for _, c := range sessions {
		c.Wait()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) remove(c *Coordinator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[c.id] == c {
		delete(m.sessions, c.id)
	}
}
