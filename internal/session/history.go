// Package session keeps per-conversation chat history in memory. History is
// transcript state for the UI and the history endpoint; it is not consulted
// during query resolution and is lost on restart.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Roles recorded on a Turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation transcript. Method and Sources are
// set on assistant turns only.
type Turn struct {
	Role    string    `json:"role"`
	Text    string    `json:"text"`
	Method  string    `json:"method,omitempty"`
	Sources []string  `json:"sources,omitempty"`
	At      time.Time `json:"at"`
}

// History is the ordered transcript of a single session. Safe for concurrent
// use.
type History struct {
	mu    sync.Mutex
	turns []Turn
}

// Append adds a turn to the transcript, stamping it if unset.
func (h *History) Append(turn Turn) {
	if turn.At.IsZero() {
		turn.At = time.Now()
	}
	h.mu.Lock()
	h.turns = append(h.turns, turn)
	h.mu.Unlock()
}

// Turns returns a copy of the transcript in order.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of recorded turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Clear empties the transcript but keeps the session alive.
func (h *History) Clear() {
	h.mu.Lock()
	h.turns = nil
	h.mu.Unlock()
}

// Manager holds the histories of all live sessions, keyed by session ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*History
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*History)}
}

// Open returns the history for the given session ID, creating it on first
// use. An empty ID starts a fresh session under a new UUID. The returned ID
// is always the one the history is stored under.
func (m *Manager) Open(id string) (string, *History) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.RLock()
	h := m.sessions[id]
	m.mu.RUnlock()
	if h != nil {
		return id, h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h = m.sessions[id]; h == nil {
		h = &History{}
		m.sessions[id] = h
	}
	return id, h
}

// Get returns the history for an existing session, or false when the ID is
// unknown.
func (m *Manager) Get(id string) (*History, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.sessions[id]
	return h, ok
}

// Drop removes a session entirely. Dropping an unknown ID is a no-op.
func (m *Manager) Drop(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
