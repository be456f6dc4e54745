package model

import "time"

// TraceEvent is an append-only breadcrumb written at every checkout
// stage. Never read by business logic, only by operators.
type TraceEvent struct {
	TraceID   string    `json:"trace_id"`
	Stage     string    `json:"stage"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type FailureEvent struct {
	TraceID   string    `json:"trace_id"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}

type Trace struct {
	TraceID  string         `json:"trace_id"`
	Events   []TraceEvent   `json:"events"`
	Failures []FailureEvent `json:"failures,omitempty"`
}
