package ws

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/domain/events"
	"github.com/brianly1003/notilink/internal/domain/ports"
	"github.com/brianly1003/notilink/internal/sync"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The server binds loopback unless configured otherwise, so the
		// feed accepts any origin rather than guessing at UI hosts.
		return true
	},
}

// StatusProvider supplies live service state for heartbeat events.
type StatusProvider interface {
	GetListenerStatus() string
	GetActiveLinks() int
	GetUptimeSeconds() int64
}

// Feed owns the set of WebSocket clients and the heartbeat broadcaster. It
// does not listen on its own; the HTTP server mounts HandleWebSocket.
type Feed struct {
	hub            ports.EventHub
	statusProvider StatusProvider

	mu      sync.RWMutex
	clients map[string]*Client
	running bool

	heartbeatDone chan struct{}
	heartbeatSeq  int64
	startTime     time.Time
}

// NewFeed creates a feed that subscribes its clients to hub.
func NewFeed(hub ports.EventHub) *Feed {
	return &Feed{
		hub:           hub,
		clients:       make(map[string]*Client),
		heartbeatDone: make(chan struct{}),
		startTime:     time.Now(),
	}
}

// SetStatusProvider sets the source of heartbeat status fields.
func (f *Feed) SetStatusProvider(provider StatusProvider) {
	f.statusProvider = provider
}

// Start launches the heartbeat broadcaster.
func (f *Feed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.heartbeatLoop()
}

// Stop halts the heartbeat and closes every client.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	clients := f.clients
	f.clients = make(map[string]*Client)
	f.mu.Unlock()

	close(f.heartbeatDone)
	for _, client := range clients {
		client.Close()
	}
}

// HandleWebSocket upgrades the request and attaches the client to the hub.
func (f *Feed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(conn, func(id string) {
		if f.hub != nil {
			f.hub.Unsubscribe(id)
		}
		f.removeClient(id)
	})

	f.mu.Lock()
	f.clients[client.ID()] = client
	f.mu.Unlock()

	if f.hub != nil {
		f.hub.Subscribe(NewClientSubscriber(client))
	}

	log.Info().
		Str("client_id", client.ID()).
		Str("remote_addr", conn.RemoteAddr().String()).
		Msg("feed client connected")

	client.Start()
}

func (f *Feed) removeClient(id string) {
	f.mu.Lock()
	delete(f.clients, id)
	f.mu.Unlock()
	log.Info().Str("client_id", id).Msg("feed client disconnected")
}

// Broadcast sends raw bytes to every connected client.
func (f *Feed) Broadcast(message []byte) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, client := range f.clients {
		client.Send(message)
	}
}

// ClientCount returns the number of connected clients.
func (f *Feed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// heartbeatLoop broadcasts periodic heartbeat events so clients can detect
// a wedged connection above the WebSocket ping/pong layer.
func (f *Feed) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.heartbeatDone:
			return
		case <-ticker.C:
			f.broadcastHeartbeat()
		}
	}
}

func (f *Feed) broadcastHeartbeat() {
	if f.ClientCount() == 0 {
		return
	}

	listenerStatus := "unknown"
	activeLinks := 0
	uptimeSeconds := int64(time.Since(f.startTime).Seconds())
	if f.statusProvider != nil {
		listenerStatus = f.statusProvider.GetListenerStatus()
		activeLinks = f.statusProvider.GetActiveLinks()
		uptimeSeconds = f.statusProvider.GetUptimeSeconds()
	}

	seq := atomic.AddInt64(&f.heartbeatSeq, 1)
	heartbeat := events.NewHeartbeatEvent(seq, listenerStatus, activeLinks, uptimeSeconds)

	data, err := heartbeat.ToJSON()
	if err != nil {
		log.Warn().Err(err).Msg("failed to serialize heartbeat")
		return
	}

	f.Broadcast(data)
	log.Trace().Int64("seq", seq).Msg("heartbeat sent")
}
