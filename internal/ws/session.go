package ws

import "sync"

// State is the lifecycle position of a socket session.
type State int

const (
	StateConnected State = iota
	StateJoined
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is the server-side state of one connection.
type Session struct {
	conn Conn
	info ConnInfo

	mu     sync.Mutex
	state  State
	userID string
}

// NewSession starts an anonymous session on conn.
func NewSession(conn Conn, info ConnInfo) *Session {
	return &Session{conn: conn, info: info, state: StateConnected}
}

func (s *Session) Conn() Conn     { return s.conn }
func (s *Session) Info() ConnInfo { return s.info }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID is the joined user, empty unless the session is joined.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateJoined {
		return ""
	}
	return s.userID
}

// join moves the session to Joined(userID) and returns the user it was
// joined as before, if any. A disconnected session stays disconnected.
func (s *Session) join(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return "", false
	}
	prev := ""
	if s.state == StateJoined {
		prev = s.userID
	}
	s.state = StateJoined
	s.userID = userID
	return prev, true
}

// end makes the session terminal and returns the user it was joined as.
func (s *Session) end() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID := ""
	if s.state == StateJoined {
		userID = s.userID
	}
	s.state = StateDisconnected
	return userID
}
