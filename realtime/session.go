package realtime

import "sync"

// Session is the per-connection state: the channel and, once an auth
// message succeeded, the user it speaks for.
type Session struct {
	ch Channel

	mu     sync.Mutex
	userID int64
}

func NewSession(ch Channel) *Session {
	return &Session{ch: ch}
}

func (s *Session) Channel() Channel {
	return s.ch
}

// UserID returns the bound user, if any.
func (s *Session) UserID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userID != 0
}

// Bind records the authenticated user and returns the previous one (0 if
// none).
func (s *Session) Bind(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.userID
	s.userID = userID
	return prev
}
