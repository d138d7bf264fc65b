// Package pairing implements the inbound pairing listener and the QR code
// payload a device scans to find it.
//
// A Listener owns one TCP socket and accepts exactly one successful pairing
// handshake per instance. The accept loop polls so that Stop and the await
// timeout are observed within a bounded interval:
//
//	┌──────────┐   accept+parse ok    ┌────────┐
//	│Listening │ ───────────────────> │ Paired │ (terminal)
//	└──────────┘                      └────────┘
//	     │  timeout / bad handshake: the await call fails,
//	     │  the socket survives for another AwaitPairing
//	     └─ Stop(): terminal, the socket is released
package pairing

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/domain"
	"github.com/brianly1003/notilink/internal/domain/events"
	"github.com/brianly1003/notilink/internal/domain/ports"
	"github.com/brianly1003/notilink/internal/sync"
)

// pollInterval bounds how long Stop and the await deadline can go unnoticed
// while the loop sits in accept.
const pollInterval = 100 * time.Millisecond

// Status is a point-in-time snapshot of a listener.
type Status struct {
	Running           bool `json:"running"`
	WaitingForPairing bool `json:"waiting_for_pairing"`
	Port              int  `json:"port"`
}

// Listener accepts one pairing handshake on a dedicated TCP socket.
type Listener struct {
	port int
	ln   net.Listener
	hub  ports.EventSink

	mu      sync.Mutex
	waiting bool
	stopped bool
	paired  bool
}

// NewListener binds a TCP socket on all interfaces. Port 0 lets the OS pick;
// Port() reports the port actually bound. Binding failure is returned to the
// caller as-is, there is no retry here.
func NewListener(port int, sink ports.EventSink) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, domain.NewPairingError("bind", err, "")
	}

	bound := ln.Addr().(*net.TCPAddr).Port

	log.Info().Int("port", bound).Msg("pairing listener bound")

	return &Listener{
		port: bound,
		ln:   ln,
		hub:  sink,
	}, nil
}

// Port returns the port the listener is bound to.
func (l *Listener) Port() int {
	return l.port
}

// AwaitPairing runs the accept loop until a handshake result is produced,
// the timeout elapses or Stop is called. It blocks the calling goroutine;
// run it on a worker when the caller must stay responsive.
//
// A failed handshake fails only this call. The socket stays bound and a
// subsequent AwaitPairing reuses it. A successful handshake is terminal:
// further calls return ErrListenerPaired.
func (l *Listener) AwaitPairing(timeout time.Duration) (*Result, error) {
	l.mu.Lock()
	switch {
	case l.stopped:
		l.mu.Unlock()
		return nil, domain.ErrListenerStopped
	case l.paired:
		l.mu.Unlock()
		return nil, domain.ErrListenerPaired
	case l.waiting:
		l.mu.Unlock()
		return nil, domain.ErrListenerRunning
	}
	l.waiting = true
	l.mu.Unlock()

	// Status queries must never observe a stale "waiting" state after this
	// call produced its result, success or failure.
	defer func() {
		l.mu.Lock()
		l.waiting = false
		l.mu.Unlock()
	}()

	log.Info().
		Int("port", l.port).
		Dur("timeout", timeout).
		Msg("waiting for pairing handshake")
	l.publish(events.NewPairingWaitingEvent(l.port))

	start := time.Now()
	deadline := start.Add(timeout)
	tcpLn := l.ln.(*net.TCPListener)

	for {
		if l.isStopped() {
			return nil, domain.ErrListenerStopped
		}
		if time.Now().After(deadline) {
			elapsed := int(time.Since(start).Seconds())
			log.Warn().
				Int("port", l.port).
				Int("waited_secs", elapsed).
				Msg("pairing timed out")
			l.publish(events.NewListenerTimeoutEvent(l.port, elapsed, int(timeout.Seconds())))
			return nil, domain.ErrPairingTimeout
		}

		// Bounded accept: returns a timeout error at the poll boundary so the
		// stop flag and deadline above are re-checked.
		_ = tcpLn.SetDeadline(time.Now().Add(pollInterval))
		conn, err := tcpLn.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, domain.ErrListenerStopped
			}
			log.Warn().Err(err).Int("port", l.port).Msg("accept failed")
			continue
		}

		log.Debug().
			Str("remote_addr", conn.RemoteAddr().String()).
			Msg("pairing connection accepted")

		result, transport, herr := handleConn(conn)
		if herr != nil {
			rawLine := ""
			var perr *domain.PairingError
			if errors.As(herr, &perr) {
				rawLine = perr.RawLine
			}
			log.Warn().Err(herr).Int("port", l.port).Msg("pairing handshake failed")
			l.publish(events.NewPairingFailedEvent(l.port, domain.ErrInvalidPayload.Error(), rawLine))
			return nil, herr
		}

		l.mu.Lock()
		l.paired = true
		l.mu.Unlock()

		result.Transport = transportName(transport)

		log.Info().
			Int("port", l.port).
			Str("url", result.URL).
			Str("transport", result.Transport).
			Msg("pairing successful")
		l.publish(events.NewPairingSucceededEvent(l.port, result.URL, result.Token, result.Transport))

		return result, nil
	}
}

// Stop signals any in-progress AwaitPairing and releases the socket. It is
// idempotent and never blocks waiting for the loop to exit; poll Status until
// WaitingForPairing clears when synchronous shutdown matters.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	if err := l.ln.Close(); err != nil {
		log.Debug().Err(err).Msg("pairing listener close")
	}
	log.Info().Int("port", l.port).Msg("pairing listener stopped")
}

// Status returns a snapshot without touching the network.
func (l *Listener) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Running:           !l.stopped,
		WaitingForPairing: l.waiting,
		Port:              l.port,
	}
}

// IsRunning reports whether the socket is still bound.
func (l *Listener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.stopped
}

func (l *Listener) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

func (l *Listener) publish(event events.Event) {
	if l.hub != nil {
		l.hub.Publish(event)
	}
}
