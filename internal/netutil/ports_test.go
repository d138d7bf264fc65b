package netutil

import (
	"errors"
	"net"
	"testing"

	"github.com/brianly1003/notilink/internal/domain"
)

func TestIsPortAvailable_BusyAndFree(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to bind test listener: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port

	if IsPortAvailable(port) {
		t.Errorf("IsPortAvailable(%d) = true while the port is held", port)
	}

	_ = l.Close()

	if !IsPortAvailable(port) {
		t.Errorf("IsPortAvailable(%d) = false after the port was released", port)
	}
}

func TestFindAvailablePort_SkipsBusyStart(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to bind test listener: %v", err)
	}
	defer func() { _ = l.Close() }()
	busy := l.Addr().(*net.TCPAddr).Port

	got, err := FindAvailablePort(busy)
	if err != nil {
		t.Fatalf("FindAvailablePort(%d) error = %v", busy, err)
	}
	if got == busy {
		t.Errorf("FindAvailablePort(%d) returned the busy start port", busy)
	}
	if got < busy || got > busy+PortScanSpan {
		t.Errorf("FindAvailablePort(%d) = %d, want within [%d, %d]", busy, got, busy, busy+PortScanSpan)
	}
}

func TestFindAvailablePort_RangeInclusive(t *testing.T) {
	start := 10035
	got, err := FindAvailablePort(start)
	if err != nil {
		t.Fatalf("FindAvailablePort(%d) error = %v", start, err)
	}
	if got < start || got > start+PortScanSpan {
		t.Errorf("FindAvailablePort(%d) = %d, want within [%d, %d]", start, got, start, start+PortScanSpan)
	}
}

func TestFindAvailablePort_NoCandidate(t *testing.T) {
	// Ports above 65535 cannot be bound, so a start past the end of the port
	// space exhausts the whole scan range.
	_, err := FindAvailablePort(65536)
	if !errors.Is(err, domain.ErrNoPortAvailable) {
		t.Errorf("FindAvailablePort(65536) error = %v, want ErrNoPortAvailable", err)
	}
}

func TestLocalIP_ReturnsAnAddress(t *testing.T) {
	ip := LocalIP()
	if ip == "" {
		t.Fatal("LocalIP() returned empty string")
	}
	if net.ParseIP(ip) == nil {
		t.Errorf("LocalIP() = %q, not a valid IP address", ip)
	}
}
