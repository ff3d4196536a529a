// Package events contains the WebSocket message contracts of the Parcel
// Pulse charge extraction service. The hub broadcasts these shapes verbatim;
// the browser UI decodes them by their type field.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// MessageTypeReportRefresh is pushed whenever a session's derived
	// report view changes (upload, selection update, reset)
	MessageTypeReportRefresh MessageType = "report:refresh"

	// MessageTypeConnection is sent once to a client after it registers
	MessageTypeConnection MessageType = "connection"

	// MessageTypeError carries a server-side error to the page
	MessageTypeError MessageType = "error"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`       // Unique message ID
	Type      MessageType `json:"type"`               // Message type
	Timestamp time.Time   `json:"timestamp"`          // Message timestamp
	TraceID   string      `json:"trace_id,omitempty"` // Request trace ID
}

// WebSocketMessage represents a complete WebSocket message with an
// enveloped payload
type WebSocketMessage struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"` // Message payload
}

// ReportRefresh tells connected pages that a carrier's derived view is
// stale and should be re-fetched. It carries no table data; views are
// always recomputed server-side on the next fetch. Routing fields stay
// at the top level so pages can filter before decoding anything else.
type ReportRefresh struct {
	BaseMessage
	Carrier   string `json:"carrier"`
	SessionID string `json:"session_id"`
}

// ConnectionStatus is the payload of the connection welcome message
type ConnectionStatus struct {
	Status   string `json:"status"` // connected
	Message  string `json:"message"`
	ClientID string `json:"client_id"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	BaseMessage
	Data struct {
		Code    string      `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	} `json:"data"`
}
