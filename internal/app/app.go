// Package app orchestrates all components of notilink: the event hub, the
// pairing listener, outward device links, the history journal and the HTTP
// surface. It implements the coordinator contract the API server and the
// desktop shell call into.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/brianly1003/notilink/internal/config"
	"github.com/brianly1003/notilink/internal/domain/events"
	"github.com/brianly1003/notilink/internal/history"
	"github.com/brianly1003/notilink/internal/hub"
	"github.com/brianly1003/notilink/internal/link"
	"github.com/brianly1003/notilink/internal/netutil"
	"github.com/brianly1003/notilink/internal/pairing"
	"github.com/brianly1003/notilink/internal/server/api"
	"github.com/brianly1003/notilink/internal/server/ws"
	"github.com/brianly1003/notilink/internal/sync"
)

// App is the main application struct that wires all components together.
type App struct {
	version string

	// Core components
	hub        *hub.Hub
	registry   *link.Registry
	journal    *history.Journal
	apiServer  *api.Server
	feed       *ws.Feed
	cfgWatcher *config.Watcher

	// Service info
	serviceID string
	startTime time.Time
	cfgPath   string

	// Lifecycle; mu also guards the config pointer swapped on hot reload.
	mu      sync.RWMutex
	cfg     *config.Config
	running bool

	// Pairing listener state, one generation at a time.
	listenerMu    sync.Mutex
	listener      *pairing.Listener
	pairingResult *pairing.Result

	// Active links: the registry holds the clients, entries the session
	// metadata and pumps. Both are mutated together under linkMu.
	linkMu  sync.Mutex
	entries map[string]*linkEntry
}

// New creates a new App instance.
func New(cfg *config.Config, version string) (*App, error) {
	app := &App{
		cfg:       cfg,
		version:   version,
		hub:       hub.New(),
		registry:  link.NewRegistry(),
		entries:   make(map[string]*linkEntry),
		serviceID: uuid.New().String(),
	}

	return app, nil
}

// SetConfigPath enables hot reload of the given config file while the
// service runs. Call before Start.
func (a *App) SetConfigPath(path string) {
	a.cfgPath = path
}

// Start starts the service and blocks until the context is cancelled.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	a.running = true
	a.startTime = time.Now()
	cfg := a.cfg
	a.mu.Unlock()

	// Start event hub
	if err := a.hub.Start(); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	// Add log subscriber for debugging
	logSub := hub.NewLogSubscriber("internal-logger", func(event events.Event) {
		log.Trace().
			Str("event_type", string(event.Type())).
			Time("timestamp", event.Timestamp()).
			Msg("event broadcast")
	})
	a.hub.Subscribe(logSub)

	// Open the history journal
	if cfg.History.Enabled {
		journal, err := history.Open(cfg.History.Path)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.History.Path).Msg("failed to open history journal, continuing without it")
		} else {
			a.journal = journal
		}
	} else {
		log.Info().Msg("history journal disabled by config")
	}

	// WebSocket event feed
	a.feed = ws.NewFeed(a.hub)
	a.feed.SetStatusProvider(a)
	a.feed.Start()

	// HTTP API server with the feed mounted at /ws
	a.apiServer = api.NewServer(cfg.Server.Host, cfg.Server.HTTPPort, a)
	if cfg.Server.AuthToken != "" {
		a.apiServer.SetAuthToken(cfg.Server.AuthToken)
	}
	a.apiServer.SetWebSocketHandler(a.feed.HandleWebSocket)
	if err := a.apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// Watch the config file when we know where it lives
	if a.cfgPath != "" {
		a.cfgWatcher = config.NewWatcher(a.cfgPath, a.applyConfig)
		if err := a.cfgWatcher.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to start config watcher")
		}
	}

	log.Info().
		Str("service_id", a.serviceID).
		Str("version", a.version).
		Str("api_addr", a.apiServer.Addr()).
		Msg("service started")

	if cfg.Listener.AutoStart {
		if _, err := a.StartListener(0); err != nil {
			log.Warn().Err(err).Msg("failed to auto-start pairing listener")
		}
	}

	a.hub.Publish(events.NewServiceStartedEvent(a.serviceID, a.version, a.apiServer.Addr()))

	a.printConnectionInfo()

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	return a.shutdown()
}

// shutdown performs graceful shutdown of all components.
func (a *App) shutdown() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Info().Msg("shutting down...")

	a.hub.Publish(events.NewServiceStoppedEvent(a.serviceID, "shutdown"))

	// Give events time to be delivered
	time.Sleep(100 * time.Millisecond)

	// Stop config watcher
	if a.cfgWatcher != nil {
		_ = a.cfgWatcher.Stop()
	}

	// Retire the pairing listener
	a.listenerMu.Lock()
	a.retireListenerLocked(a.listener, "shutdown")
	a.listenerMu.Unlock()

	// Disconnect all links
	for _, id := range a.registry.IDs() {
		if err := a.DisconnectLink(id); err != nil {
			log.Debug().Err(err).Str("connection_id", id).Msg("link already gone at shutdown")
		}
	}

	// Stop the event feed
	if a.feed != nil {
		a.feed.Stop()
	}

	// Stop HTTP server
	if a.apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.apiServer.Stop(shutdownCtx)
		cancel()
	}

	// Close the journal
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			log.Error().Err(err).Msg("error closing history journal")
		}
	}

	// Stop hub
	if err := a.hub.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping event hub")
	}

	return nil
}

// applyConfig swaps in a reloaded configuration. Sections read per operation
// (link timeouts, pairing display, listener port for the next start) take
// effect immediately; server binds and the history path need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	old := a.cfg
	a.cfg = cfg
	a.mu.Unlock()

	if old.Logging.Level != cfg.Logging.Level {
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
			log.Info().Str("level", cfg.Logging.Level).Msg("log level changed")
		}
	}

	if old.Server.HTTPPort != cfg.Server.HTTPPort || old.Server.Host != cfg.Server.Host {
		log.Warn().Msg("server bind changed in config; restart to apply")
	}
	if old.History.Path != cfg.History.Path || old.History.Enabled != cfg.History.Enabled {
		log.Warn().Msg("history settings changed in config; restart to apply")
	}

	log.Info().Msg("configuration applied")
}

// config returns the current configuration snapshot.
func (a *App) config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Version returns the service version.
func (a *App) Version() string {
	return a.version
}

// ServiceID returns this service instance's identifier.
func (a *App) ServiceID() string {
	return a.serviceID
}

// Hub returns the event hub.
func (a *App) Hub() *hub.Hub {
	return a.hub
}

// GetUptimeSeconds returns how long the service has been running.
func (a *App) GetUptimeSeconds() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.startTime.IsZero() {
		return 0
	}
	return int64(time.Since(a.startTime).Seconds())
}

// GetListenerStatus reports the pairing listener state for heartbeats.
func (a *App) GetListenerStatus() string {
	status := a.ListenerStatus()
	switch {
	case !status.Running:
		return "stopped"
	case status.WaitingForPairing:
		return "waiting"
	default:
		return "listening"
	}
}

// GetActiveLinks returns the number of registered links for heartbeats.
func (a *App) GetActiveLinks() int {
	return a.registry.Count()
}

// RecentPairings returns the newest pairing attempts from the journal.
func (a *App) RecentPairings(limit int) ([]history.PairingRecord, error) {
	if a.journal == nil {
		return nil, fmt.Errorf("history journal is not available")
	}
	return a.journal.RecentPairings(limit)
}

// RecentLinks returns the newest link sessions from the journal.
func (a *App) RecentLinks(limit int) ([]history.LinkRecord, error) {
	if a.journal == nil {
		return nil, fmt.Errorf("history journal is not available")
	}
	return a.journal.RecentLinks(limit)
}

// hostname names this machine in QR payloads and the banner.
func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "notilink"
	}
	return name
}

// qrGenerator builds a generator for the current pairing endpoint: the bound
// listener port when one is live, the configured port otherwise.
func (a *App) qrGenerator() *pairing.QRGenerator {
	port := a.config().Listener.Port
	a.listenerMu.Lock()
	if a.listener != nil && a.listener.IsRunning() {
		port = a.listener.Port()
	}
	a.listenerMu.Unlock()

	return pairing.NewQRGenerator(netutil.LocalIP(), port, hostname(), a.version)
}

// PairingQRPNG renders the pairing QR code as a PNG.
func (a *App) PairingQRPNG() ([]byte, error) {
	return a.qrGenerator().GeneratePNG(256)
}

// PairingQRDataURL renders the pairing QR code as a base64 data URL for the
// desktop shell.
func (a *App) PairingQRDataURL() (string, error) {
	return a.qrGenerator().GenerateDataURL(256)
}

// printConnectionInfo prints connection information to the console.
func (a *App) printConnectionInfo() {
	cfg := a.config()
	httpURL := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	wsURL := fmt.Sprintf("ws://%s:%d/ws", cfg.Server.Host, cfg.Server.HTTPPort)

	listenerLine := fmt.Sprintf("port %d (stopped)", cfg.Listener.Port)
	status := a.ListenerStatus()
	if status.Running {
		listenerLine = fmt.Sprintf("port %d (waiting for device)", status.Port)
	}

	fmt.Println()
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    notilink ready                          ║")
	fmt.Println("╠════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Host:       %-46s ║\n", truncateString(hostname(), 46))
	fmt.Printf("║  API:        %-46s ║\n", truncateString(httpURL, 46))
	fmt.Printf("║  Events:     %-46s ║\n", truncateString(wsURL, 46))
	fmt.Printf("║  Pairing:    %-46s ║\n", truncateString(listenerLine, 46))
	fmt.Println("╠════════════════════════════════════════════════════════════╣")
	fmt.Println("║  Scan the QR code with the notilink app to pair            ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Println()

	if cfg.Pairing.ShowQRInTerminal {
		a.qrGenerator().PrintToTerminal()
	}
}

// truncateString truncates a string to maxLen characters.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
