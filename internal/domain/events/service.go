package events

import "time"

// ServiceStartedPayload is the payload for service_started events.
type ServiceStartedPayload struct {
	ServiceID string `json:"service_id"`
	Version   string `json:"version"`
	HTTPAddr  string `json:"http_addr,omitempty"`
}

// ServiceStoppedPayload is the payload for service_stopped events.
type ServiceStoppedPayload struct {
	ServiceID string `json:"service_id"`
	Reason    string `json:"reason,omitempty"`
}

// ErrorPayload is the payload for error events.
type ErrorPayload struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HeartbeatPayload is the payload for heartbeat events.
// Heartbeats are sent periodically to allow clients to detect connection issues
// at the application level (beyond WebSocket ping/pong frames).
type HeartbeatPayload struct {
	ServerTime     string `json:"server_time"`
	Sequence       int64  `json:"sequence"`
	ListenerStatus string `json:"listener_status"`
	ActiveLinks    int    `json:"active_links"`
	Uptime         int64  `json:"uptime_seconds"`
}

// NewServiceStartedEvent creates a new service_started event.
func NewServiceStartedEvent(serviceID, version, httpAddr string) *BaseEvent {
	return NewEvent(EventTypeServiceStarted, ServiceStartedPayload{
		ServiceID: serviceID,
		Version:   version,
		HTTPAddr:  httpAddr,
	})
}

// NewServiceStoppedEvent creates a new service_stopped event.
func NewServiceStoppedEvent(serviceID, reason string) *BaseEvent {
	return NewEvent(EventTypeServiceStopped, ServiceStoppedPayload{
		ServiceID: serviceID,
		Reason:    reason,
	})
}

// NewErrorEvent creates a new error event.
func NewErrorEvent(code, message string, requestID string, details map[string]interface{}) *BaseEvent {
	return NewEventWithRequestID(EventTypeError, ErrorPayload{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Details:   details,
	}, requestID)
}

// NewHeartbeatEvent creates a new heartbeat event.
func NewHeartbeatEvent(sequence int64, listenerStatus string, activeLinks int, uptimeSeconds int64) *BaseEvent {
	return NewEvent(EventTypeHeartbeat, HeartbeatPayload{
		ServerTime:     time.Now().UTC().Format(time.RFC3339),
		Sequence:       sequence,
		ListenerStatus: listenerStatus,
		ActiveLinks:    activeLinks,
		Uptime:         uptimeSeconds,
	})
}
