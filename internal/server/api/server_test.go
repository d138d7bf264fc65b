package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brianly1003/notilink/internal/domain"
	"github.com/brianly1003/notilink/internal/history"
	"github.com/brianly1003/notilink/internal/link"
	"github.com/brianly1003/notilink/internal/pairing"
	"github.com/brianly1003/notilink/internal/testutil"
)

type connectCall struct {
	connectionID string
	endpoint     string
	token        string
}

// mockService is a canned Service implementation for handler tests.
type mockService struct {
	version string
	uptime  int64

	listenerStatus pairing.Status
	startErr       error
	startPort      int
	stopCalled     bool

	result         *pairing.Result
	consumedResult *pairing.Result

	qrPNG []byte
	qrErr error

	links          []link.Info
	connectOutcome link.ConnectOutcome
	connectErr     error
	connectCalls   []connectCall
	disconnectErr  error
	disconnected   []string

	pairingRecords []history.PairingRecord
	linkRecords    []history.LinkRecord
	historyErr     error
	lastLimit      int
}

func (m *mockService) Version() string          { return m.version }
func (m *mockService) GetUptimeSeconds() int64  { return m.uptime }
func (m *mockService) StartListener(port int) (pairing.Status, error) {
	m.startPort = port
	return m.listenerStatus, m.startErr
}
func (m *mockService) StopListener() pairing.Status {
	m.stopCalled = true
	return m.listenerStatus
}
func (m *mockService) ListenerStatus() pairing.Status { return m.listenerStatus }
func (m *mockService) PairingResult() *pairing.Result { return m.result }
func (m *mockService) ConsumePairingResult() *pairing.Result {
	m.consumedResult = m.result
	m.result = nil
	return m.consumedResult
}
func (m *mockService) PairingQRPNG() ([]byte, error) { return m.qrPNG, m.qrErr }
func (m *mockService) ConnectLink(ctx context.Context, connectionID, endpoint, token string) (link.ConnectOutcome, error) {
	m.connectCalls = append(m.connectCalls, connectCall{connectionID, endpoint, token})
	return m.connectOutcome, m.connectErr
}
func (m *mockService) DisconnectLink(connectionID string) error {
	m.disconnected = append(m.disconnected, connectionID)
	return m.disconnectErr
}
func (m *mockService) Links() []link.Info { return m.links }
func (m *mockService) RecentPairings(limit int) ([]history.PairingRecord, error) {
	m.lastLimit = limit
	return m.pairingRecords, m.historyErr
}
func (m *mockService) RecentLinks(limit int) ([]history.LinkRecord, error) {
	m.lastLimit = limit
	return m.linkRecords, m.historyErr
}

// serveAPI routes a request through the server's full router.
func serveAPI(s *Server, method, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func TestServer_HandleHealth(t *testing.T) {
	s := NewServer("127.0.0.1", 18081, &mockService{})

	rec := serveAPI(s, "GET", "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["service"] != "notilink" {
		t.Errorf("expected service notilink, got %v", body["service"])
	}
}

func TestServer_HandleStatus(t *testing.T) {
	svc := &mockService{
		version: "1.2.3",
		uptime:  42,
		listenerStatus: pairing.Status{
			Running:           true,
			WaitingForPairing: true,
			Port:              18080,
		},
		links: []link.Info{{ConnectionID: "dev-1", Endpoint: "10.0.0.5:9000"}},
	}
	s := NewServer("127.0.0.1", 18081, svc)

	rec := serveAPI(s, "GET", "/api/status", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["version"] != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %v", body["version"])
	}
	if body["uptime_seconds"] != float64(42) {
		t.Errorf("expected uptime 42, got %v", body["uptime_seconds"])
	}
	listener, ok := body["listener"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected listener object, got %T", body["listener"])
	}
	if listener["port"] != float64(18080) {
		t.Errorf("expected listener port 18080, got %v", listener["port"])
	}
}

func TestServer_ListenerStart(t *testing.T) {
	svc := &mockService{listenerStatus: pairing.Status{Running: true, Port: 18080}}
	s := NewServer("127.0.0.1", 18081, svc)

	rec := serveAPI(s, "POST", "/api/listener/start", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.startPort != 0 {
		t.Errorf("expected zero port with no body, got %d", svc.startPort)
	}
	body := decodeBody(t, rec)
	if body["running"] != true {
		t.Errorf("expected running true, got %v", body["running"])
	}
}

func TestServer_ListenerStart_PortOverride(t *testing.T) {
	svc := &mockService{listenerStatus: pairing.Status{Running: true, Port: 19000}}
	s := NewServer("127.0.0.1", 18081, svc)

	rec := serveAPI(s, "POST", "/api/listener/start", `{"port":19000}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.startPort != 19000 {
		t.Errorf("expected port override 19000, got %d", svc.startPort)
	}
}

func TestServer_ListenerStart_Error(t *testing.T) {
	svc := &mockService{startErr: errors.New("failed to bind port 18080")}
	s := NewServer("127.0.0.1", 18081, svc)

	rec := serveAPI(s, "POST", "/api/listener/start", "")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] == nil {
		t.Error("expected error message in body")
	}
}

func TestServer_ListenerStart_AlreadyRunning(t *testing.T) {
	svc := &mockService{startErr: domain.ErrListenerRunning}
	s := NewServer("127.0.0.1", 18081, svc)

	rec := serveAPI(s, "POST", "/api/listener/start", "")

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestServer_ListenerStop(t *testing.T) {
	svc := &mockService{}
	s := NewServer("127.0.0.1", 18081, svc)

	rec := serveAPI(s, "POST", "/api/listener/stop", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !svc.stopCalled {
		t.Error("expected StopListener to be called")
	}
}

func TestServer_ListenerStatus_MethodRestricted(t *testing.T) {
	s := NewServer("127.0.0.1", 18081, &mockService{})

	rec := serveAPI(s, "POST", "/api/listener/status", "")

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestServer_PairingResult_Empty(t *testing.T) {
	s := NewServer("127.0.0.1", 18081, &mockService{})

	rec := serveAPI(s, "GET", "/api/pairing/result", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServer_PairingResult_PeekAndConsume(t *testing.T) {
	svc := &mockService{result: &pairing.Result{URL: "10.0.0.5:9000", Token: "tok-1"}}
	s := NewServer("127.0.0.1", 18081, svc)

	rec := serveAPI(s, "GET", "/api/pairing/result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("peek: expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["url"] != "10.0.0.5:9000" || body["token"] != "tok-1" {
		t.Errorf("unexpected peek body: %v", body)
	}

	rec = serveAPI(s, "DELETE", "/api/pairing/result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("consume: expected 200, got %d", rec.Code)
	}

	rec = serveAPI(s, "GET", "/api/pairing/result", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after consume, got %d", rec.Code)
	}
}

func TestServer_PairingQR(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	s := NewServer("127.0.0.1", 18081, &mockService{qrPNG: png})

	rec := serveAPI(s, "GET", "/api/pairing/qr", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	if rec.Body.Len() != len(png) {
		t.Errorf("expected %d bytes, got %d", len(png), rec.Body.Len())
	}
}

func TestServer_StartStop(t *testing.T) {
	port := testutil.FreePort(t)
	s := NewServer("127.0.0.1", port, &mockService{})

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var resp *http.Response
	testutil.WaitFor(t, 2*time.Second, func() bool {
		var err error
		resp, err = http.Get("http://" + s.Addr() + "/health")
		return err == nil
	}, "server never came up")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from live server, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestServer_Stop_WithoutStart(t *testing.T) {
	s := NewServer("127.0.0.1", 18081, &mockService{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop before Start should be a no-op, got %v", err)
	}
}
