package events

// ListenerStartedPayload is the payload for listener_started events.
type ListenerStartedPayload struct {
	Port        int `json:"port"`
	TimeoutSecs int `json:"timeout_secs,omitempty"`
}

// PairingWaitingPayload is the payload for pairing_waiting events.
type PairingWaitingPayload struct {
	Port int `json:"port"`
}

// PairingSucceededPayload is the payload for pairing_success events.
// URL and Token are the credentials the device delivered; they are what a
// subsequent link connection authenticates with.
type PairingSucceededPayload struct {
	Port      int    `json:"port"`
	URL       string `json:"url"`
	Token     string `json:"token"`
	Transport string `json:"transport"` // "raw" or "http"
}

// PairingFailedPayload is the payload for pairing_failed events.
type PairingFailedPayload struct {
	Port    int    `json:"port"`
	Reason  string `json:"reason"`
	RawLine string `json:"raw_line,omitempty"`
}

// ListenerTimeoutPayload is the payload for listener_timeout events.
type ListenerTimeoutPayload struct {
	Port        int `json:"port"`
	WaitedSecs  int `json:"waited_secs"`
	TimeoutSecs int `json:"timeout_secs"`
}

// ListenerStoppedPayload is the payload for listener_stopped events.
type ListenerStoppedPayload struct {
	Port   int    `json:"port"`
	Reason string `json:"reason,omitempty"`
}

// NewListenerStartedEvent creates a new listener_started event.
func NewListenerStartedEvent(port, timeoutSecs int) *BaseEvent {
	return NewEvent(EventTypeListenerStarted, ListenerStartedPayload{
		Port:        port,
		TimeoutSecs: timeoutSecs,
	})
}

// NewPairingWaitingEvent creates a new pairing_waiting event.
func NewPairingWaitingEvent(port int) *BaseEvent {
	return NewEvent(EventTypePairingWaiting, PairingWaitingPayload{
		Port: port,
	})
}

// NewPairingSucceededEvent creates a new pairing_success event.
func NewPairingSucceededEvent(port int, url, token, transport string) *BaseEvent {
	return NewEvent(EventTypePairingSucceeded, PairingSucceededPayload{
		Port:      port,
		URL:       url,
		Token:     token,
		Transport: transport,
	})
}

// NewPairingFailedEvent creates a new pairing_failed event.
func NewPairingFailedEvent(port int, reason, rawLine string) *BaseEvent {
	return NewEvent(EventTypePairingFailed, PairingFailedPayload{
		Port:    port,
		Reason:  reason,
		RawLine: rawLine,
	})
}

// NewListenerTimeoutEvent creates a new listener_timeout event.
func NewListenerTimeoutEvent(port, waitedSecs, timeoutSecs int) *BaseEvent {
	return NewEvent(EventTypeListenerTimeout, ListenerTimeoutPayload{
		Port:        port,
		WaitedSecs:  waitedSecs,
		TimeoutSecs: timeoutSecs,
	})
}

// NewListenerStoppedEvent creates a new listener_stopped event.
func NewListenerStoppedEvent(port int, reason string) *BaseEvent {
	return NewEvent(EventTypeListenerStopped, ListenerStoppedPayload{
		Port:   port,
		Reason: reason,
	})
}
