package devicesim

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/brianly1003/notilink/internal/sync"
)

// ApprovalRequest is one desktop waiting for the simulated user to decide.
type ApprovalRequest struct {
	RequestID  string    `json:"request_id"`
	RemoteAddr string    `json:"remote_addr"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type approvalEntry struct {
	req      ApprovalRequest
	decision chan bool
	resolved bool
}

// ApprovalManager tracks token requests awaiting a user decision. In
// auto-approve mode every request resolves approved immediately; otherwise
// Approve/Reject (the simulator's stand-in for the device UI) resolve them.
type ApprovalManager struct {
	autoApprove bool

	mu      sync.Mutex
	pending map[string]*approvalEntry
}

// NewApprovalManager creates an approval manager.
func NewApprovalManager(autoApprove bool) *ApprovalManager {
	return &ApprovalManager{
		autoApprove: autoApprove,
		pending:     make(map[string]*approvalEntry),
	}
}

// AutoApprove reports whether requests resolve without a user decision.
func (m *ApprovalManager) AutoApprove() bool {
	return m.autoApprove
}

// Submit registers a request and returns the channel its decision arrives
// on. The channel delivers exactly one value. In auto-approve mode it is
// already resolved.
func (m *ApprovalManager) Submit(remoteAddr string, ttl time.Duration) (ApprovalRequest, <-chan bool, error) {
	requestID, err := newApprovalID()
	if err != nil {
		return ApprovalRequest{}, nil, err
	}

	now := time.Now()
	entry := &approvalEntry{
		req: ApprovalRequest{
			RequestID:  requestID,
			RemoteAddr: remoteAddr,
			CreatedAt:  now.UTC(),
			ExpiresAt:  now.Add(ttl).UTC(),
		},
		decision: make(chan bool, 1),
	}

	m.mu.Lock()
	m.cleanupExpiredLocked(now)
	m.pending[requestID] = entry
	if m.autoApprove {
		m.resolveLocked(entry, true)
	}
	m.mu.Unlock()

	return entry.req, entry.decision, nil
}

// Approve resolves a pending request as approved.
func (m *ApprovalManager) Approve(requestID string) error {
	return m.decide(requestID, true)
}

// Reject resolves a pending request as rejected.
func (m *ApprovalManager) Reject(requestID string) error {
	return m.decide(requestID, false)
}

func (m *ApprovalManager) decide(requestID string, approved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.pending[requestID]
	if !ok {
		return fmt.Errorf("pending request not found: %s", requestID)
	}
	m.resolveLocked(entry, approved)
	return nil
}

// Pending returns all requests still awaiting a decision.
func (m *ApprovalManager) Pending() []ApprovalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanupExpiredLocked(time.Now())

	out := make([]ApprovalRequest, 0, len(m.pending))
	for _, entry := range m.pending {
		if !entry.resolved {
			out = append(out, entry.req)
		}
	}
	return out
}

// resolveLocked delivers the decision and drops the entry from the pending
// set. Callers hold m.mu.
func (m *ApprovalManager) resolveLocked(entry *approvalEntry, approved bool) {
	if entry.resolved {
		return
	}
	entry.resolved = true
	entry.decision <- approved
	close(entry.decision)
	delete(m.pending, entry.req.RequestID)
}

func (m *ApprovalManager) cleanupExpiredLocked(now time.Time) {
	for _, entry := range m.pending {
		if !entry.req.ExpiresAt.After(now) {
			m.resolveLocked(entry, false)
		}
	}
}

func newApprovalID() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate approval request id: %w", err)
	}
	return "authreq_" + hex.EncodeToString(buf), nil
}
