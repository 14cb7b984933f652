package apperrors

import (
	"encoding/json"
	"time"
)

// Status is the two-state triage lifecycle of a reported error.
// The only legal transition is Open -> Closed; there is no way back.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Error is one diagnostic event reported by a monitored application.
//
// Params and Session hold arbitrary nested JSON exactly as reported; both
// are nil when the reporter omitted them, and stored as NULL rather than
// as empty placeholders. Env is restricted to a flat string-to-string map;
// reporters sending nested or non-string env values are rejected at decode
// time.
type Error struct {
	ID            int64             `json:"id"`
	ApplicationID int64             `json:"application_id"`
	Class         string            `json:"error_class"`
	Message       string            `json:"message"`
	Backtrace     []string          `json:"backtrace"`
	Params        json.RawMessage   `json:"params,omitempty"`
	Session       json.RawMessage   `json:"session,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Status        Status            `json:"status"`
	Notes         string            `json:"notes"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Closed reports whether the error has left the Open state.
func (e *Error) Closed() bool { return e.Status == StatusClosed }
