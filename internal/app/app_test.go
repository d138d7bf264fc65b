package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/brianly1003/notilink/internal/config"
	"github.com/brianly1003/notilink/internal/devicesim"
	"github.com/brianly1003/notilink/internal/domain"
	"github.com/brianly1003/notilink/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", HTTPPort: testutil.FreePort(t)},
		Listener: config.ListenerConfig{Port: testutil.FreePort(t), TimeoutSecs: 5},
		Link: config.LinkConfig{
			ConnectTimeoutSecs: 2,
			ReadTimeoutSecs:    5,
			WriteTimeoutSecs:   2,
		},
		Logging: config.LoggingConfig{Level: "disabled", Format: "json"},
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(testConfig(t), "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.hub.Start(); err != nil {
		t.Fatalf("hub start: %v", err)
	}
	t.Cleanup(func() {
		a.listenerMu.Lock()
		a.retireListenerLocked(a.listener, "test cleanup")
		a.listenerMu.Unlock()
		_ = a.hub.Stop()
	})
	return a
}

func TestApp_PairingEndToEnd_Raw(t *testing.T) {
	a := newTestApp(t)

	status, err := a.StartListener(0)
	if err != nil {
		t.Fatalf("StartListener: %v", err)
	}
	if !status.Running {
		t.Fatal("listener should report running after start")
	}

	pairer := devicesim.NewPairer("10.0.0.5:9000", "abc123")
	if err := pairer.PairRaw(fmt.Sprintf("127.0.0.1:%d", status.Port)); err != nil {
		t.Fatalf("PairRaw: %v", err)
	}

	testutil.WaitFor(t, 2*time.Second, func() bool {
		return a.PairingResult() != nil
	}, "pairing result never arrived")

	result := a.ConsumePairingResult()
	if result == nil {
		t.Fatal("ConsumePairingResult returned nil")
	}
	if result.URL != "10.0.0.5:9000" || result.Token != "abc123" {
		t.Fatalf("unexpected result: %+v", result)
	}

	// The slot is cleared by consumption and the listener retired by success.
	if a.ConsumePairingResult() != nil {
		t.Fatal("second consume should return nil")
	}
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return !a.ListenerStatus().Running
	}, "listener should stop after a successful pairing")
}

func TestApp_StartListener_FallsBackWhenPortBusy(t *testing.T) {
	a := newTestApp(t)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", a.config().Listener.Port))
	if err != nil {
		t.Fatalf("occupy port: %v", err)
	}
	defer ln.Close()

	status, err := a.StartListener(0)
	if err != nil {
		t.Fatalf("StartListener: %v", err)
	}
	if status.Port == a.config().Listener.Port {
		t.Fatalf("expected fallback away from busy port %d", status.Port)
	}
}

func TestApp_StartListener_RejectsSecondStart(t *testing.T) {
	a := newTestApp(t)

	if _, err := a.StartListener(0); err != nil {
		t.Fatalf("first StartListener: %v", err)
	}
	status, err := a.StartListener(0)
	if !errors.Is(err, domain.ErrListenerRunning) {
		t.Fatalf("second StartListener error = %v, want ErrListenerRunning", err)
	}
	if !status.Running {
		t.Fatal("error should carry the live listener's status")
	}
}

func TestApp_StopListener_NoListener(t *testing.T) {
	a := newTestApp(t)

	status := a.StopListener()
	if status.Running {
		t.Fatal("no listener should read as not running")
	}
	if status.Port != a.config().Listener.Port {
		t.Fatalf("idle status port = %d, want configured %d", status.Port, a.config().Listener.Port)
	}
}

func TestApp_ConnectLink_IssuesTokenAndRegisters(t *testing.T) {
	a := newTestApp(t)

	issuer, err := devicesim.NewTokenIssuer(3600)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	srv := devicesim.NewServer(issuer, devicesim.NewApprovalManager(true))
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("devicesim start: %v", err)
	}
	defer func() { _ = srv.Stop() }()

	outcome, err := a.ConnectLink(context.Background(), "conn-1", srv.Addr(), "")
	if err != nil {
		t.Fatalf("ConnectLink: %v", err)
	}
	if !outcome.TokenIssued || outcome.Token == "" {
		t.Fatalf("expected a freshly issued token, got %+v", outcome)
	}

	links := a.Links()
	if len(links) != 1 || links[0].ConnectionID != "conn-1" {
		t.Fatalf("unexpected links: %+v", links)
	}

	// The issued token must replay through login on a second connection.
	outcome2, err := a.ConnectLink(context.Background(), "conn-2", srv.Addr(), outcome.Token)
	if err != nil {
		t.Fatalf("ConnectLink with token: %v", err)
	}
	if outcome2.TokenIssued {
		t.Fatal("login with an existing token should not issue a new one")
	}

	if err := a.DisconnectLink("conn-1"); err != nil {
		t.Fatalf("DisconnectLink: %v", err)
	}
	if err := a.DisconnectLink("conn-1"); !errors.Is(err, domain.ErrLinkNotFound) {
		t.Fatalf("second disconnect error = %v, want ErrLinkNotFound", err)
	}
	if err := a.DisconnectLink("conn-2"); err != nil {
		t.Fatalf("DisconnectLink conn-2: %v", err)
	}
	if got := a.Links(); len(got) != 0 {
		t.Fatalf("links remain after disconnect: %+v", got)
	}
}

func TestApp_ConnectLink_ReplacesExistingID(t *testing.T) {
	a := newTestApp(t)

	issuer, err := devicesim.NewTokenIssuer(3600)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	srv := devicesim.NewServer(issuer, devicesim.NewApprovalManager(true))
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("devicesim start: %v", err)
	}
	defer func() { _ = srv.Stop() }()

	first, err := a.ConnectLink(context.Background(), "conn-1", srv.Addr(), "")
	if err != nil {
		t.Fatalf("first ConnectLink: %v", err)
	}
	if _, err := a.ConnectLink(context.Background(), "conn-1", srv.Addr(), first.Token); err != nil {
		t.Fatalf("reconnect ConnectLink: %v", err)
	}

	links := a.Links()
	if len(links) != 1 {
		t.Fatalf("reconnect under the same ID should leave one link, got %+v", links)
	}
}

func TestApp_ConnectLink_Validation(t *testing.T) {
	a := newTestApp(t)

	if _, err := a.ConnectLink(context.Background(), "", "127.0.0.1:1", ""); err == nil {
		t.Fatal("empty connection ID should be rejected")
	}
	if _, err := a.ConnectLink(context.Background(), "conn-1", "", ""); err == nil {
		t.Fatal("empty endpoint should be rejected")
	}
}

func TestApp_ConnectLink_DialFailure(t *testing.T) {
	a := newTestApp(t)

	// A free port with nothing listening refuses the dial.
	endpoint := fmt.Sprintf("127.0.0.1:%d", testutil.FreePort(t))
	if _, err := a.ConnectLink(context.Background(), "conn-1", endpoint, ""); err == nil {
		t.Fatal("dial to a closed port should fail")
	}
	if got := a.Links(); len(got) != 0 {
		t.Fatalf("failed connect must not register a link: %+v", got)
	}
}
