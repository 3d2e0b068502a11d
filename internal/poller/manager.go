package poller

import (
	"context"
	"sync"

	"github.com/five82/tables/internal/statuslog"
)

// Manager keeps at most one live session. Beginning a new session cancels
// the previous one first.
type Manager struct {
	prober   Prober
	sink     statuslog.Sink
	recorder Recorder
	opts     Options

	mu      sync.Mutex
	current *Session
}

// NewManager returns a manager that builds sessions with the given
// collaborators and options.
func NewManager(prober Prober, sink statuslog.Sink, recorder Recorder, opts Options) *Manager {
	return &Manager{prober: prober, sink: sink, recorder: recorder, opts: opts}
}

// Begin stops the live session, if any, and starts a fresh one.
func (m *Manager) Begin(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Stop()
	}
	session := NewSession(m.prober, m.sink, m.recorder, m.opts)
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	m.current = session
	return session, nil
}

// Current returns the most recently started session or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Active reports whether a session is still polling.
func (m *Manager) Active() bool {
	s := m.Current()
	return s != nil && !s.Phase().Terminal()
}

// Stop cancels the live session and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Stop()
	}
}
