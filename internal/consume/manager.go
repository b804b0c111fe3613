package consume

import "sync"

// SessionManager tracks the cancellation tokens of live sessions. One is
// owned by the host application and shared by every session it starts.
type SessionManager struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

func NewSessionManager() *SessionManager {
	return &SessionManager{tokens: make(map[string]*Token)}
}

func (m *SessionManager) Register(id string, t *Token) {
	m.mu.Lock()
	m.tokens[id] = t
	m.mu.Unlock()
}

// Remove forgets a session that ended on its own.
func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	delete(m.tokens, id)
	m.mu.Unlock()
}

// StopAll drains the registry and cancels every drained token. It does not
// wait for the sessions to exit and returns how many tokens it signalled.
func (m *SessionManager) StopAll() int {
	m.mu.Lock()
	drained := m.tokens
	m.tokens = make(map[string]*Token)
	m.mu.Unlock()

	n := 0
	for _, t := range drained {
		if t.Cancel() {
			n++
		}
	}
	return n
}

func (m *SessionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}
