package events

// LinkConnectedPayload is the payload for link_connected events.
type LinkConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
	Endpoint     string `json:"endpoint"`
}

// LinkAuthorizedPayload is the payload for link_authorized events.
// TokenIssued distinguishes a fresh device-approved token from a login with
// a previously issued one.
type LinkAuthorizedPayload struct {
	ConnectionID string `json:"connection_id"`
	Endpoint     string `json:"endpoint"`
	TokenIssued  bool   `json:"token_issued"`
}

// LinkRejectedPayload is the payload for link_rejected events.
type LinkRejectedPayload struct {
	ConnectionID string `json:"connection_id"`
	Endpoint     string `json:"endpoint"`
	Reason       string `json:"reason"`
}

// LinkDisconnectedPayload is the payload for link_disconnected events.
type LinkDisconnectedPayload struct {
	ConnectionID string `json:"connection_id"`
	Reason       string `json:"reason,omitempty"`
}

// Notification is a device notification as carried on the link wire.
type Notification struct {
	ID          string `json:"id"`
	PackageName string `json:"package_name,omitempty"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text,omitempty"`
	Read        bool   `json:"read"`
	PostedAt    int64  `json:"posted_at,omitempty"`
	UpdatedAt   int64  `json:"updated_at,omitempty"`
}

// NotificationPayload is the payload for notification events streamed from a
// linked device. Change is one of "added", "updated" or "removed"; removed
// frames carry only the notification ID.
type NotificationPayload struct {
	Change       string        `json:"event_type"`
	Seq          int64         `json:"seq"`
	Notification *Notification `json:"notification,omitempty"`
	ID           string        `json:"id,omitempty"`
}

// NewLinkConnectedEvent creates a new link_connected event.
func NewLinkConnectedEvent(connectionID, endpoint string) *BaseEvent {
	return NewEventWithConnection(EventTypeLinkConnected, LinkConnectedPayload{
		ConnectionID: connectionID,
		Endpoint:     endpoint,
	}, connectionID)
}

// NewLinkAuthorizedEvent creates a new link_authorized event.
func NewLinkAuthorizedEvent(connectionID, endpoint string, tokenIssued bool) *BaseEvent {
	return NewEventWithConnection(EventTypeLinkAuthorized, LinkAuthorizedPayload{
		ConnectionID: connectionID,
		Endpoint:     endpoint,
		TokenIssued:  tokenIssued,
	}, connectionID)
}

// NewLinkRejectedEvent creates a new link_rejected event.
func NewLinkRejectedEvent(connectionID, endpoint, reason string) *BaseEvent {
	return NewEventWithConnection(EventTypeLinkRejected, LinkRejectedPayload{
		ConnectionID: connectionID,
		Endpoint:     endpoint,
		Reason:       reason,
	}, connectionID)
}

// NewLinkDisconnectedEvent creates a new link_disconnected event.
func NewLinkDisconnectedEvent(connectionID, reason string) *BaseEvent {
	return NewEventWithConnection(EventTypeLinkDisconnected, LinkDisconnectedPayload{
		ConnectionID: connectionID,
		Reason:       reason,
	}, connectionID)
}

// NewNotificationEvent creates a new notification event for a change frame
// received from a linked device.
func NewNotificationEvent(connectionID string, payload NotificationPayload) *BaseEvent {
	return NewEventWithConnection(EventTypeNotification, payload, connectionID)
}
