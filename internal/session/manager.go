package session

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager tracks live sessions by ID. Concurrent games each own an
// independent session; the manager's lock guards only the map, every
// session stays single-threaded.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	logger   *zap.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		logger:   logger,
	}
}

// Add registers a session.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger.Info("session opened",
		zap.String("session", s.ID().String()),
		zap.String("game", s.Game()),
	)
}

// Get retrieves a session by ID.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, exists := m.sessions[id]
	m.mu.RUnlock()
	if !exists {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove closes a session and drops it from the manager. The closed
// session's summary is returned so callers can persist it.
func (m *Manager) Remove(id uuid.UUID) (Summary, error) {
	m.mu.Lock()
	s, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !exists {
		return Summary{}, ErrNotFound
	}

	s.Close()
	m.logger.Info("session closed",
		zap.String("session", id.String()),
		zap.String("game", s.Game()),
		zap.Uint64("steps", s.Summary().Steps),
	)
	return s.Summary(), nil
}

// List returns summaries of all live sessions.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Summary())
	}
	return out
}

// CloseAll closes every session and empties the manager.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
