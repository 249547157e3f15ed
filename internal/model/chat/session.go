package chat

import "time"

// DefaultSessionName labels a conversation that has not been renamed yet.
const DefaultSessionName = "New chat"

// Session captures a named conversation thread held by the backend.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActiveSession is the conversation currently shown to the user.
// An empty SessionID means no session is selected yet.
type ActiveSession struct {
	SessionID string `json:"session_id,omitempty"`
	Name      string `json:"name"`
	History   []Turn `json:"history"`
}

// EmptyActiveSession returns the unset default.
func EmptyActiveSession() ActiveSession {
	return ActiveSession{Name: DefaultSessionName, History: []Turn{}}
}

// Clone returns a copy that shares no history storage with s.
func (s ActiveSession) Clone() ActiveSession {
	history := make([]Turn, len(s.History))
	copy(history, s.History)
	s.History = history
	return s
}
