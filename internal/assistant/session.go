package assistant

import (
	"sort"
	"sync"
	"time"

	"github.com/mofangju/security-agent/internal/llm"
)

// MaxHistory caps the messages kept per session.
const MaxHistory = 20

// Session is one conversation. Its fields are only touched while the
// session lock returned by Acquire is held.
type Session struct {
	ID      string
	History []llm.Message
	Turns   int

	mu      sync.Mutex
	updated time.Time
	inUse   int
}

// Append adds a message and drops the oldest beyond MaxHistory.
func (s *Session) Append(msgs ...llm.Message) {
	s.History = append(s.History, msgs...)
	if over := len(s.History) - MaxHistory; over > 0 {
		s.History = append([]llm.Message(nil), s.History[over:]...)
	}
}

// SessionStore owns every session and serializes access per session.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	max      int
	now      func() time.Time
}

// NewSessionStore keeps idle sessions for ttl and at most max sessions.
func NewSessionStore(ttl time.Duration, max int, now func() time.Time) *SessionStore {
	if ttl < time.Minute {
		ttl = time.Minute
	}
	if max < 1 {
		max = 1
	}
	if now == nil {
		now = time.Now
	}
	return &SessionStore{sessions: make(map[string]*Session), ttl: ttl, max: max, now: now}
}

// Acquire returns the session locked for the caller, creating it if needed.
// The release func must be called exactly once.
func (st *SessionStore) Acquire(id string) (*Session, func()) {
	st.mu.Lock()
	now := st.now()
	sess, ok := st.sessions[id]
	if !ok {
		sess = &Session{ID: id}
		st.sessions[id] = sess
	}
	sess.updated = now
	sess.inUse++
	st.pruneLocked(now)
	st.mu.Unlock()

	sess.mu.Lock()
	return sess, func() {
		sess.mu.Unlock()
		st.mu.Lock()
		sess.inUse--
		st.mu.Unlock()
	}
}

// Len reports the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// pruneLocked drops idle sessions past the TTL, then the oldest idle ones
// over the cap. Sessions in use are never dropped.
func (st *SessionStore) pruneLocked(now time.Time) {
	for id, s := range st.sessions {
		if s.inUse == 0 && now.Sub(s.updated) > st.ttl {
			delete(st.sessions, id)
		}
	}
	if len(st.sessions) <= st.max {
		return
	}
	idle := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		if s.inUse == 0 {
			idle = append(idle, s)
		}
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].updated.Before(idle[j].updated) })
	for _, s := range idle {
		if len(st.sessions) <= st.max {
			break
		}
		delete(st.sessions, s.ID)
	}
}
