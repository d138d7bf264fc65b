// Package events defines all event types used in notilink.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Listener events
	EventTypeListenerStarted EventType = "listener_started"
	EventTypeListenerTimeout EventType = "listener_timeout"
	EventTypeListenerStopped EventType = "listener_stopped"

	// Pairing events
	EventTypePairingWaiting   EventType = "pairing_waiting"
	EventTypePairingSucceeded EventType = "pairing_success"
	EventTypePairingFailed    EventType = "pairing_failed"

	// Link events
	EventTypeLinkConnected    EventType = "link_connected"
	EventTypeLinkAuthorized   EventType = "link_authorized"
	EventTypeLinkRejected     EventType = "link_rejected"
	EventTypeLinkDisconnected EventType = "link_disconnected"

	// Notification events relayed from a linked device
	EventTypeNotification EventType = "notification"

	// Service events
	EventTypeServiceStarted EventType = "service_started"
	EventTypeServiceStopped EventType = "service_stopped"

	// Response events
	EventTypeError EventType = "error"

	// Connection events
	EventTypeHeartbeat EventType = "heartbeat"
)

// Event is the base interface for all events.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// ToJSON serializes the event to JSON.
	ToJSON() ([]byte, error)

	// GetConnectionID returns the link connection ID (may be empty).
	GetConnectionID() string
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType    EventType   `json:"event"`
	EventTime    time.Time   `json:"timestamp"`
	ConnectionID string      `json:"connection_id,omitempty"`
	Payload      interface{} `json:"payload"`
	RequestID    string      `json:"request_id,omitempty"`
}

// SetConnectionID sets the link connection context for an event.
func (e *BaseEvent) SetConnectionID(connectionID string) {
	e.ConnectionID = connectionID
}

// GetConnectionID returns the link connection ID.
func (e *BaseEvent) GetConnectionID() string {
	return e.ConnectionID
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// ToJSON serializes the event to JSON.
func (e *BaseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewEvent creates a new base event with the given type and payload.
func NewEvent(eventType EventType, payload interface{}) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Payload:   payload,
	}
}

// NewEventWithRequestID creates a new event with a request ID for correlation.
func NewEventWithRequestID(eventType EventType, payload interface{}, requestID string) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Payload:   payload,
		RequestID: requestID,
	}
}

// NewEventWithConnection creates a new event carrying a link connection context.
func NewEventWithConnection(eventType EventType, payload interface{}, connectionID string) *BaseEvent {
	return &BaseEvent{
		EventType:    eventType,
		EventTime:    time.Now().UTC(),
		ConnectionID: connectionID,
		Payload:      payload,
	}
}
