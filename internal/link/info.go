package link

import "time"

// Info describes one registered link.
type Info struct {
	ConnectionID string    `json:"connection_id"`
	Endpoint     string    `json:"endpoint"`
	Streaming    bool      `json:"streaming"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// ConnectOutcome reports how a connect attempt resolved. Token is the
// device token the session authorized with; TokenIssued marks it as freshly
// granted by the device rather than replayed from an earlier session.
type ConnectOutcome struct {
	Link        Info   `json:"link"`
	Token       string `json:"token,omitempty"`
	TokenIssued bool   `json:"token_issued"`
}
