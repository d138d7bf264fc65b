package pairing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/brianly1003/notilink/internal/domain"
	"github.com/brianly1003/notilink/internal/domain/events"
	"github.com/brianly1003/notilink/internal/netutil"
	"github.com/brianly1003/notilink/internal/testutil"
)

type awaitOutcome struct {
	result *Result
	err    error
}

// awaitAsync runs AwaitPairing on a worker goroutine the way the service
// coordinator does, delivering the outcome on a channel.
func awaitAsync(l *Listener, timeout time.Duration) <-chan awaitOutcome {
	ch := make(chan awaitOutcome, 1)
	go func() {
		result, err := l.AwaitPairing(timeout)
		ch <- awaitOutcome{result: result, err: err}
	}()
	return ch
}

func dialListener(t *testing.T, l *Listener) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", l.Port()))
	if err != nil {
		t.Fatalf("failed to dial pairing listener: %v", err)
	}
	return conn
}

func TestNewListener_BindsEphemeralPort(t *testing.T) {
	l, err := NewListener(0, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	defer l.Stop()

	if l.Port() == 0 {
		t.Error("expected a concrete port for port 0")
	}

	status := l.Status()
	if !status.Running {
		t.Error("expected Running true after bind")
	}
	if status.WaitingForPairing {
		t.Error("expected WaitingForPairing false before AwaitPairing")
	}
	if status.Port != l.Port() {
		t.Errorf("Status.Port = %d, want %d", status.Port, l.Port())
	}
}

func TestNewListener_BindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to occupy a port: %v", err)
	}
	defer func() { _ = occupied.Close() }()
	port := occupied.Addr().(*net.TCPAddr).Port

	l, err := NewListener(port, nil)
	if err == nil {
		l.Stop()
		t.Fatal("expected bind error on an occupied port")
	}

	var perr *domain.PairingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *domain.PairingError, got %T", err)
	}
	if perr.Op != "bind" {
		t.Errorf("expected op bind, got %s", perr.Op)
	}
}

func TestListener_RawPairing(t *testing.T) {
	mockHub := testutil.NewMockEventHub()
	l, err := NewListener(0, mockHub)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	defer l.Stop()

	outcome := awaitAsync(l, 5*time.Second)

	conn := dialListener(t, l)
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte(`{"url":"10.0.0.5:9000","token":"abc123"}` + "\n")); err != nil {
		t.Fatalf("failed to send pairing payload: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read pairing reply: %v", err)
	}
	want := `{"success":true,"message":"Pairing successful"}` + "\n"
	if reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}

	select {
	case out := <-outcome:
		if out.err != nil {
			t.Fatalf("AwaitPairing() error = %v", out.err)
		}
		if out.result.URL != "10.0.0.5:9000" {
			t.Errorf("result URL = %s, want 10.0.0.5:9000", out.result.URL)
		}
		if out.result.Token != "abc123" {
			t.Errorf("result token = %s, want abc123", out.result.Token)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("AwaitPairing did not return after handshake")
	}

	// Waiting flag must clear once the result is produced.
	testutil.WaitFor(t, time.Second, func() bool {
		return !l.Status().WaitingForPairing
	}, "waiting flag should clear after pairing")

	published := mockHub.PublishedEvents()
	if len(published) < 2 {
		t.Fatalf("expected waiting and success events, got %d", len(published))
	}
	if published[0].Type() != events.EventTypePairingWaiting {
		t.Errorf("first event = %s, want %s", published[0].Type(), events.EventTypePairingWaiting)
	}
	last := published[len(published)-1]
	if last.Type() != events.EventTypePairingSucceeded {
		t.Errorf("last event = %s, want %s", last.Type(), events.EventTypePairingSucceeded)
	}
}

func TestListener_RawPairing_DefaultPort(t *testing.T) {
	if !netutil.IsPortAvailable(18080) {
		t.Skip("port 18080 is busy on this host")
	}

	l, err := NewListener(18080, nil)
	if err != nil {
		t.Fatalf("NewListener(18080) error = %v", err)
	}
	defer l.Stop()

	if l.Port() != 18080 {
		t.Fatalf("Port() = %d, want 18080", l.Port())
	}

	outcome := awaitAsync(l, 5*time.Second)

	conn := dialListener(t, l)
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte(`{"url":"10.0.0.5:9000","token":"abc123"}` + "\n")); err != nil {
		t.Fatalf("failed to send pairing payload: %v", err)
	}

	out := <-outcome
	if out.err != nil {
		t.Fatalf("AwaitPairing() error = %v", out.err)
	}
	if out.result.URL != "10.0.0.5:9000" || out.result.Token != "abc123" {
		t.Errorf("unexpected result: %+v", out.result)
	}
}

func TestListener_HTTPPairing(t *testing.T) {
	l, err := NewListener(0, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	defer l.Stop()

	outcome := awaitAsync(l, 5*time.Second)

	body := `{"url":"192.168.1.50:9000","token":"tok-42"}`
	request := "POST /pair HTTP/1.1\r\n" +
		"Host: 127.0.0.1\r\n" +
		"Content-Type: application/json\r\n" +
		fmt.Sprintf("Content-Length: %d\r\n", len(body)) +
		"\r\n" +
		body

	conn := dialListener(t, l)
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte(request)); err != nil {
		t.Fatalf("failed to send http request: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	response, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("failed to read http response: %v", err)
	}

	respStr := string(response)
	if !strings.HasPrefix(respStr, "HTTP/1.1 200 OK\r\n") {
		t.Errorf("expected 200 status line, got %q", respStr)
	}
	if !strings.Contains(respStr, `{"success":true,"message":"Pairing successful"}`) {
		t.Errorf("response missing success body: %q", respStr)
	}
	if !strings.Contains(respStr, fmt.Sprintf("Content-Length: %d\r\n", len(successReply))) {
		t.Errorf("response missing content length: %q", respStr)
	}

	out := <-outcome
	if out.err != nil {
		t.Fatalf("AwaitPairing() error = %v", out.err)
	}
	if out.result.URL != "192.168.1.50:9000" || out.result.Token != "tok-42" {
		t.Errorf("unexpected result: %+v", out.result)
	}
}

func TestListener_HTTPPairing_BadJSON(t *testing.T) {
	l, err := NewListener(0, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	defer l.Stop()

	outcome := awaitAsync(l, 5*time.Second)

	body := `{not json}`
	request := "POST /pair HTTP/1.1\r\n" +
		fmt.Sprintf("Content-Length: %d\r\n", len(body)) +
		"\r\n" +
		body

	conn := dialListener(t, l)
	if _, err := conn.Write([]byte(request)); err != nil {
		t.Fatalf("failed to send http request: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	response, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("failed to read http response: %v", err)
	}
	_ = conn.Close()

	respStr := string(response)
	if !strings.HasPrefix(respStr, "HTTP/1.1 400 Bad Request\r\n") {
		t.Errorf("expected 400 status line, got %q", respStr)
	}
	if !strings.Contains(respStr, "Content-Length: 0\r\n") {
		t.Errorf("400 response should carry an empty body: %q", respStr)
	}

	out := <-outcome
	if !errors.Is(out.err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", out.err)
	}

	// A failed handshake must not consume the listener. The next await on
	// the same socket pairs normally.
	outcome = awaitAsync(l, 5*time.Second)
	conn = dialListener(t, l)
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte(`{"url":"10.0.0.5:9000","token":"abc123"}` + "\n")); err != nil {
		t.Fatalf("failed to send retry payload: %v", err)
	}

	out = <-outcome
	if out.err != nil {
		t.Fatalf("retry AwaitPairing() error = %v", out.err)
	}
	if out.result.Token != "abc123" {
		t.Errorf("retry result token = %s, want abc123", out.result.Token)
	}
}

func TestListener_HTTPPairing_MissingContentLength(t *testing.T) {
	l, err := NewListener(0, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	defer l.Stop()

	outcome := awaitAsync(l, 5*time.Second)

	// No Content-Length header at all; the body is unreadable.
	request := "POST /pair HTTP/1.1\r\n" +
		"Host: 127.0.0.1\r\n" +
		"Content-Type: application/json\r\n" +
		"\r\n" +
		`{"url":"10.0.0.5:9000","token":"abc123"}`

	conn := dialListener(t, l)
	if _, err := conn.Write([]byte(request)); err != nil {
		t.Fatalf("failed to send http request: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	response, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("failed to read http response: %v", err)
	}
	_ = conn.Close()

	respStr := string(response)
	if !strings.HasPrefix(respStr, "HTTP/1.1 400 Bad Request\r\n") {
		t.Errorf("expected 400 status line, got %q", respStr)
	}
	if !strings.Contains(respStr, "Content-Length: 0\r\n") {
		t.Errorf("400 response should carry an empty body: %q", respStr)
	}

	out := <-outcome
	if !errors.Is(out.err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", out.err)
	}

	if !l.IsRunning() {
		t.Error("listener should still be running after a rejected request")
	}
}

func TestListener_HTTPPairing_LowercaseContentLength(t *testing.T) {
	l, err := NewListener(0, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	defer l.Stop()

	outcome := awaitAsync(l, 5*time.Second)

	// Header names are case-insensitive on the wire.
	body := `{"url":"192.168.1.50:9000","token":"tok-42"}`
	request := "POST /pair HTTP/1.1\r\n" +
		"Host: 127.0.0.1\r\n" +
		fmt.Sprintf("content-length: %d\r\n", len(body)) +
		"\r\n" +
		body

	conn := dialListener(t, l)
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte(request)); err != nil {
		t.Fatalf("failed to send http request: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	response, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("failed to read http response: %v", err)
	}
	if !strings.HasPrefix(string(response), "HTTP/1.1 200 OK\r\n") {
		t.Errorf("expected 200 status line, got %q", string(response))
	}

	out := <-outcome
	if out.err != nil {
		t.Fatalf("AwaitPairing() error = %v", out.err)
	}
	if out.result.URL != "192.168.1.50:9000" || out.result.Token != "tok-42" {
		t.Errorf("unexpected result: %+v", out.result)
	}
}

func TestListener_RawPairing_InvalidJSON(t *testing.T) {
	mockHub := testutil.NewMockEventHub()
	l, err := NewListener(0, mockHub)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	defer l.Stop()

	outcome := awaitAsync(l, 5*time.Second)

	conn := dialListener(t, l)
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("this is not json\n")); err != nil {
		t.Fatalf("failed to send payload: %v", err)
	}

	// No reply is written in raw mode; the connection just closes.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != io.EOF {
		t.Errorf("expected EOF without a reply, got n=%d err=%v", n, err)
	}

	out := <-outcome
	if !errors.Is(out.err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", out.err)
	}

	var perr *domain.PairingError
	if !errors.As(out.err, &perr) {
		t.Fatalf("expected *domain.PairingError, got %T", out.err)
	}
	if perr.RawLine != "this is not json" {
		t.Errorf("RawLine = %q, want the offending line", perr.RawLine)
	}

	published := mockHub.PublishedEvents()
	if len(published) == 0 {
		t.Fatal("expected published events")
	}
	last := published[len(published)-1]
	if last.Type() != events.EventTypePairingFailed {
		t.Errorf("last event = %s, want %s", last.Type(), events.EventTypePairingFailed)
	}
}

func TestListener_RawPairing_MissingFields(t *testing.T) {
	l, err := NewListener(0, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	defer l.Stop()

	outcome := awaitAsync(l, 5*time.Second)

	conn := dialListener(t, l)
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte(`{"url":"10.0.0.5:9000"}` + "\n")); err != nil {
		t.Fatalf("failed to send payload: %v", err)
	}

	out := <-outcome
	if !errors.Is(out.err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for missing token, got %v", out.err)
	}
}

func TestListener_Timeout(t *testing.T) {
	mockHub := testutil.NewMockEventHub()
	l, err := NewListener(0, mockHub)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	defer l.Stop()

	timeout := 200 * time.Millisecond
	start := time.Now()
	result, err := l.AwaitPairing(timeout)
	elapsed := time.Since(start)

	if result != nil {
		t.Errorf("expected nil result on timeout, got %+v", result)
	}
	if !errors.Is(err, domain.ErrPairingTimeout) {
		t.Fatalf("expected ErrPairingTimeout, got %v", err)
	}
	if elapsed < timeout {
		t.Errorf("returned before the deadline: %v < %v", elapsed, timeout)
	}
	if elapsed > timeout+pollInterval+300*time.Millisecond {
		t.Errorf("timeout observed too late: %v", elapsed)
	}

	// Timing out does not consume the listener.
	if !l.IsRunning() {
		t.Error("listener should still be running after a timeout")
	}

	published := mockHub.PublishedEvents()
	if len(published) == 0 {
		t.Fatal("expected published events")
	}
	last := published[len(published)-1]
	if last.Type() != events.EventTypeListenerTimeout {
		t.Errorf("last event = %s, want %s", last.Type(), events.EventTypeListenerTimeout)
	}
}

func TestListener_Stop_UnblocksAwait(t *testing.T) {
	l, err := NewListener(0, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}

	outcome := awaitAsync(l, 10*time.Second)

	testutil.WaitFor(t, time.Second, func() bool {
		return l.Status().WaitingForPairing
	}, "await should enter the accept loop")

	l.Stop()

	select {
	case out := <-outcome:
		if !errors.Is(out.err, domain.ErrListenerStopped) {
			t.Fatalf("expected ErrListenerStopped, got %v", out.err)
		}
	case <-time.After(pollInterval + time.Second):
		t.Fatal("AwaitPairing did not unblock after Stop")
	}

	if l.IsRunning() {
		t.Error("IsRunning() should be false after Stop")
	}
}

func TestListener_Stop_Idempotent(t *testing.T) {
	l, err := NewListener(0, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}

	l.Stop()
	l.Stop()

	if l.IsRunning() {
		t.Error("IsRunning() should be false after Stop")
	}
}

func TestListener_AwaitAfterStop(t *testing.T) {
	l, err := NewListener(0, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	l.Stop()

	_, err = l.AwaitPairing(time.Second)
	if !errors.Is(err, domain.ErrListenerStopped) {
		t.Errorf("expected ErrListenerStopped, got %v", err)
	}
}

func TestListener_AwaitAfterPaired(t *testing.T) {
	l, err := NewListener(0, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	defer l.Stop()

	outcome := awaitAsync(l, 5*time.Second)

	conn := dialListener(t, l)
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte(`{"url":"10.0.0.5:9000","token":"abc123"}` + "\n")); err != nil {
		t.Fatalf("failed to send pairing payload: %v", err)
	}

	out := <-outcome
	if out.err != nil {
		t.Fatalf("AwaitPairing() error = %v", out.err)
	}

	_, err = l.AwaitPairing(time.Second)
	if !errors.Is(err, domain.ErrListenerPaired) {
		t.Errorf("expected ErrListenerPaired, got %v", err)
	}
}

func TestListener_ConcurrentAwaitRejected(t *testing.T) {
	l, err := NewListener(0, nil)
	if err != nil {
		t.Fatalf("NewListener() error = %v", err)
	}
	defer l.Stop()

	outcome := awaitAsync(l, 10*time.Second)

	testutil.WaitFor(t, time.Second, func() bool {
		return l.Status().WaitingForPairing
	}, "first await should be in flight")

	_, err = l.AwaitPairing(time.Second)
	if !errors.Is(err, domain.ErrListenerRunning) {
		t.Errorf("expected ErrListenerRunning for a concurrent await, got %v", err)
	}

	l.Stop()
	<-outcome
}
