package session

import "sync"

// Factory builds the session for a user, choosing the feed variant and
// wiring dependencies.
type Factory func(userID string) *Session

// Manager holds one session per user for the life of the process.
type Manager struct {
	mu       sync.Mutex
	factory  Factory
	sessions map[string]*Session
}

func NewManager(factory Factory) *Manager {
	return &Manager{
		factory:  factory,
		sessions: make(map[string]*Session),
	}
}

// Get returns the user's session, creating it on first use.
func (m *Manager) Get(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s
	}
	s := m.factory(userID)
	m.sessions[userID] = s
	return s
}

// Shutdown stops every active poller. Called on graceful server shutdown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.poller.Stop()
	}
}
