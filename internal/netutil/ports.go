// Package netutil provides local network helpers: port availability probing
// for listener startup and address selection for pairing payloads.
package netutil

import (
	"net"
	"strconv"

	"github.com/brianly1003/notilink/internal/domain"
)

// PortScanSpan is how far beyond the starting port FindAvailablePort scans.
// The range is inclusive on both ends, so 101 candidate ports are probed.
const PortScanSpan = 100

// IsPortAvailable reports whether a TCP port can be bound on the loopback
// interface.
func IsPortAvailable(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// FindAvailablePort returns the first available port in
// [start, start+PortScanSpan], or domain.ErrNoPortAvailable if every
// candidate is taken.
func FindAvailablePort(start int) (int, error) {
	for port := start; port <= start+PortScanSpan; port++ {
		if IsPortAvailable(port) {
			return port, nil
		}
	}
	return 0, domain.ErrNoPortAvailable
}
