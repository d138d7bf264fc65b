package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/domain"
	"github.com/brianly1003/notilink/internal/domain/events"
	"github.com/brianly1003/notilink/internal/history"
	"github.com/brianly1003/notilink/internal/link"
)

// linkEntry carries the per-session state the registry does not: the stream
// pump and the metadata surfaced by Links.
type linkEntry struct {
	client      *link.Client
	pump        *link.Pump
	endpoint    string
	connectedAt time.Time
}

// ConnectLink dials a device endpoint and authorizes the link: with a token
// it logs in, without one it asks the device to issue one, which usually
// waits on the device's user. On success the link is registered and, when
// event streaming is enabled, its notification pump starts.
//
// Reconnecting under an existing connection ID disconnects the old link
// first.
func (a *App) ConnectLink(ctx context.Context, connectionID, endpoint, token string) (link.ConnectOutcome, error) {
	if connectionID == "" {
		return link.ConnectOutcome{}, fmt.Errorf("connection ID is required")
	}
	if endpoint == "" {
		return link.ConnectOutcome{}, fmt.Errorf("endpoint is required")
	}

	if err := a.DisconnectLink(connectionID); err == nil {
		log.Info().Str("connection_id", connectionID).Msg("replaced existing link")
	}

	cfg := a.config()
	timeouts := link.Timeouts{
		Connect: time.Duration(cfg.Link.ConnectTimeoutSecs) * time.Second,
		Read:    time.Duration(cfg.Link.ReadTimeoutSecs) * time.Second,
		Write:   time.Duration(cfg.Link.WriteTimeoutSecs) * time.Second,
	}

	client, err := link.ConnectContext(ctx, endpoint, connectionID, timeouts)
	if err != nil {
		return link.ConnectOutcome{}, err
	}

	connectedAt := time.Now()
	a.hub.Publish(events.NewLinkConnectedEvent(connectionID, endpoint))

	mode := history.LinkModeReplayed
	tokenIssued := false

	// A caller abandoning the request mid-handshake closes the socket, which
	// unblocks any read waiting on the device.
	authDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = client.Close()
		case <-authDone:
		}
	}()

	var authErr error
	if token == "" {
		mode = history.LinkModeIssued
		tokenIssued = true
		token, authErr = client.RequestToken()
	} else {
		authErr = client.Login(token)
	}
	close(authDone)

	if authErr != nil {
		_ = client.Close()
		a.failLink(connectionID, endpoint, mode, connectedAt, authErr)
		return link.ConnectOutcome{}, authErr
	}

	a.hub.Publish(events.NewLinkAuthorizedEvent(connectionID, endpoint, tokenIssued))
	a.recordLink(history.LinkRecord{
		ConnectionID: connectionID,
		Endpoint:     endpoint,
		Mode:         mode,
		Outcome:      history.LinkOutcomeAuthorized,
		ConnectedAt:  connectedAt,
	})

	entry := &linkEntry{
		client:      client,
		endpoint:    endpoint,
		connectedAt: connectedAt,
	}

	a.linkMu.Lock()
	if displaced := a.registry.Put(client); displaced != nil {
		// A racing connect for the same ID slipped in; our entry wins.
		_ = displaced.Close()
	}
	a.entries[connectionID] = entry
	if cfg.Link.StreamEvents {
		entry.pump = link.NewPump(client, a.hub)
		go entry.pump.Run()
		go a.reapLink(connectionID, client, entry.pump)
	}
	a.linkMu.Unlock()

	return link.ConnectOutcome{
		Link: link.Info{
			ConnectionID: connectionID,
			Endpoint:     endpoint,
			Streaming:    entry.pump != nil,
			ConnectedAt:  connectedAt,
		},
		Token:       token,
		TokenIssued: tokenIssued,
	}, nil
}

// failLink publishes and records an authorization failure. Authorization
// outcomes get a link_rejected event; transport failures read as the link
// dropping.
func (a *App) failLink(connectionID, endpoint, mode string, connectedAt time.Time, err error) {
	reason := err.Error()
	outcome := history.LinkOutcomeError

	switch {
	case errors.Is(err, domain.ErrAuthRejected):
		outcome = history.LinkOutcomeRejected
		a.hub.Publish(events.NewLinkRejectedEvent(connectionID, endpoint, reason))
	case errors.Is(err, domain.ErrLoginFailed):
		outcome = history.LinkOutcomeLoginFailed
		a.hub.Publish(events.NewLinkRejectedEvent(connectionID, endpoint, reason))
	case errors.Is(err, domain.ErrNoToken):
		outcome = history.LinkOutcomeRejected
		a.hub.Publish(events.NewLinkRejectedEvent(connectionID, endpoint, reason))
	default:
		a.hub.Publish(events.NewLinkDisconnectedEvent(connectionID, reason))
	}

	a.recordLink(history.LinkRecord{
		ConnectionID: connectionID,
		Endpoint:     endpoint,
		Mode:         mode,
		Outcome:      outcome,
		Detail:       reason,
		ConnectedAt:  connectedAt,
		EndedAt:      time.Now(),
	})
}

// DisconnectLink closes a registered link. The pump, when one is running,
// announces the disconnect as the stream winds down; bare links are
// announced here.
func (a *App) DisconnectLink(connectionID string) error {
	a.linkMu.Lock()
	entry := a.entries[connectionID]
	client := a.registry.Remove(connectionID)
	delete(a.entries, connectionID)
	a.linkMu.Unlock()

	if entry == nil && client == nil {
		return domain.ErrLinkNotFound
	}

	if entry != nil && entry.pump != nil {
		entry.pump.Stop()
	} else if client != nil {
		_ = client.Close()
		a.hub.Publish(events.NewLinkDisconnectedEvent(connectionID, "disconnected by desktop"))
	}

	a.markLinkClosed(connectionID)

	log.Info().Str("connection_id", connectionID).Msg("link disconnected")
	return nil
}

// Links returns the active links, oldest first.
func (a *App) Links() []link.Info {
	a.linkMu.Lock()
	infos := make([]link.Info, 0, len(a.entries))
	for id, entry := range a.entries {
		infos = append(infos, link.Info{
			ConnectionID: id,
			Endpoint:     entry.endpoint,
			Streaming:    entry.pump != nil,
			ConnectedAt:  entry.connectedAt,
		})
	}
	a.linkMu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ConnectionID < infos[j].ConnectionID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// reapLink clears a link's registration once its pump exits, unless the ID
// was already re-registered to a newer client.
func (a *App) reapLink(connectionID string, client *link.Client, pump *link.Pump) {
	<-pump.Done()

	a.linkMu.Lock()
	entry := a.entries[connectionID]
	if entry == nil || entry.client != client {
		a.linkMu.Unlock()
		return
	}
	delete(a.entries, connectionID)
	a.registry.Remove(connectionID)
	a.linkMu.Unlock()

	a.markLinkClosed(connectionID)
	log.Debug().Str("connection_id", connectionID).Msg("link reaped after stream end")
}

// recordLink appends to the journal when one is open.
func (a *App) recordLink(rec history.LinkRecord) {
	if a.journal == nil {
		return
	}
	_ = a.journal.RecordLink(rec)
}

// markLinkClosed stamps the journal's open session for the connection.
func (a *App) markLinkClosed(connectionID string) {
	if a.journal == nil {
		return
	}
	_ = a.journal.MarkLinkClosed(connectionID, time.Now())
}
