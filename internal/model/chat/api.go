package chat

// Wire shapes shared by the HTTP backend and its client.

// SessionList is the body of GET /sessions.
type SessionList struct {
	Sessions []Session `json:"sessions"`
}

// SessionRef is the body of POST /sessions.
type SessionRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SessionDetail is the body of GET /sessions/{id}.
type SessionDetail struct {
	Session SessionRef `json:"session"`
	History []Turn     `json:"history"`
}

// RenameRequest is the body of POST /sessions/{id}/rename.
type RenameRequest struct {
	Name string `json:"name"`
}

// QueryRequest is the body of POST /query. SessionID and SessionName are
// omitted when the client has no session yet, letting the backend create one.
type QueryRequest struct {
	Query          string `json:"query"`
	Backend        string `json:"backend"`
	Model          string `json:"model"`
	SessionID      string `json:"session_id,omitempty"`
	SessionName    string `json:"session_name,omitempty"`
	ReturnContexts bool   `json:"return_contexts"`
}

// QueryResponse is the body returned by POST /query.
type QueryResponse struct {
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
}
