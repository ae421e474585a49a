package feed

import "encoding/json"

// ClientMessage is sent from the browser to the server.
type ClientMessage struct {
	Type string          `json:"type"` // "ping", "snapshot"
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is sent from the server to the browser.
type ServerMessage struct {
	Type      string `json:"type"` // "session", "worklist", "pong", "error"
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// SessionData is sent once, right after the connection is accepted.
type SessionData struct {
	SessionID string `json:"session_id"`
}

// ErrorData describes a rejected client message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
