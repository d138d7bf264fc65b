package app

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/domain"
	"github.com/brianly1003/notilink/internal/domain/events"
	"github.com/brianly1003/notilink/internal/history"
	"github.com/brianly1003/notilink/internal/netutil"
	"github.com/brianly1003/notilink/internal/pairing"
)

// StartListener binds a pairing listener and starts waiting for a device on a
// worker goroutine. A zero port means the configured one; when that port is
// busy the next free port in the scan range is bound instead, and the
// returned status carries the port actually in use.
//
// Starting while a listener is live fails with ErrListenerRunning alongside
// the live listener's status.
func (a *App) StartListener(port int) (pairing.Status, error) {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()

	if a.listener != nil && a.listener.IsRunning() {
		return a.listener.Status(), domain.ErrListenerRunning
	}

	cfg := a.config()
	if port == 0 {
		port = cfg.Listener.Port
	}

	chosen := port
	if !netutil.IsPortAvailable(chosen) {
		free, err := netutil.FindAvailablePort(chosen)
		if err != nil {
			return pairing.Status{}, err
		}
		log.Warn().
			Int("requested_port", chosen).
			Int("port", free).
			Msg("preferred pairing port busy, using next free port")
		chosen = free
	}

	listener, err := pairing.NewListener(chosen, a.hub)
	if err != nil {
		return pairing.Status{}, err
	}
	a.listener = listener

	timeoutSecs := cfg.Listener.TimeoutSecs
	a.hub.Publish(events.NewListenerStartedEvent(listener.Port(), timeoutSecs))

	go a.awaitLoop(listener, time.Duration(timeoutSecs)*time.Second)

	return listener.Status(), nil
}

// StopListener retires the current listener, if any, and returns its final
// status. Safe to call when nothing is running.
func (a *App) StopListener() pairing.Status {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()

	if a.listener == nil {
		return pairing.Status{Port: a.config().Listener.Port}
	}

	a.retireListenerLocked(a.listener, "stopped")
	return a.listener.Status()
}

// ListenerStatus returns the current listener status. With no listener bound
// it reports not-running on the configured port.
func (a *App) ListenerStatus() pairing.Status {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()

	if a.listener == nil {
		return pairing.Status{Port: a.config().Listener.Port}
	}
	return a.listener.Status()
}

// PairingResult peeks at the most recent successful pairing, or nil.
func (a *App) PairingResult() *pairing.Result {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()
	return a.pairingResult
}

// ConsumePairingResult returns the most recent successful pairing and clears
// the slot, or nil when there is none.
func (a *App) ConsumePairingResult() *pairing.Result {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()

	result := a.pairingResult
	a.pairingResult = nil
	return result
}

// retireListenerLocked stops a live listener and announces the release.
// Callers hold listenerMu.
func (a *App) retireListenerLocked(l *pairing.Listener, reason string) {
	if l == nil || !l.IsRunning() {
		return
	}
	l.Stop()
	a.hub.Publish(events.NewListenerStoppedEvent(l.Port(), reason))
}

// awaitLoop drives one pairing window: it re-awaits across failed handshakes
// until a device pairs, the window elapses or the listener is stopped. Runs
// on its own goroutine; the listener survives individual handshake failures,
// so only the terminal outcomes release the socket.
func (a *App) awaitLoop(l *pairing.Listener, window time.Duration) {
	windowStart := time.Now()
	deadline := windowStart.Add(window)

	for {
		result, err := l.AwaitPairing(time.Until(deadline))
		now := time.Now()

		if err == nil {
			a.recordPairing(history.PairingRecord{
				Port:      l.Port(),
				Outcome:   history.PairingOutcomeSuccess,
				Transport: result.Transport,
				PeerURL:   result.URL,
				StartedAt: windowStart,
				EndedAt:   now,
			})

			a.listenerMu.Lock()
			a.pairingResult = result
			a.retireListenerLocked(l, "paired")
			a.listenerMu.Unlock()
			return
		}

		switch {
		case errors.Is(err, domain.ErrPairingTimeout):
			a.recordPairing(history.PairingRecord{
				Port:      l.Port(),
				Outcome:   history.PairingOutcomeTimeout,
				StartedAt: windowStart,
				EndedAt:   now,
			})

			a.listenerMu.Lock()
			a.retireListenerLocked(l, "timeout")
			a.listenerMu.Unlock()
			return

		case errors.Is(err, domain.ErrListenerStopped):
			a.recordPairing(history.PairingRecord{
				Port:      l.Port(),
				Outcome:   history.PairingOutcomeStopped,
				StartedAt: windowStart,
				EndedAt:   now,
			})
			return

		case errors.Is(err, domain.ErrInvalidPayload):
			// One bad handshake; the socket is still bound, keep waiting
			// out the rest of the window.
			a.recordPairing(history.PairingRecord{
				Port:      l.Port(),
				Outcome:   history.PairingOutcomeInvalid,
				Reason:    err.Error(),
				StartedAt: windowStart,
				EndedAt:   now,
			})

		case errors.Is(err, domain.ErrListenerPaired), errors.Is(err, domain.ErrListenerRunning):
			// Another goroutine owns this listener generation; nothing to do.
			log.Warn().Err(err).Int("port", l.Port()).Msg("pairing wait superseded")
			return

		default:
			// Read failures on an accepted connection land here. Like a bad
			// payload they fail the handshake, not the listener.
			a.recordPairing(history.PairingRecord{
				Port:      l.Port(),
				Outcome:   history.PairingOutcomeError,
				Reason:    err.Error(),
				StartedAt: windowStart,
				EndedAt:   now,
			})
		}
	}
}

// recordPairing appends to the journal when one is open.
func (a *App) recordPairing(rec history.PairingRecord) {
	if a.journal == nil {
		return
	}
	_ = a.journal.RecordPairing(rec)
}
