package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/brianly1003/notilink/internal/app"
	"github.com/brianly1003/notilink/internal/config"
	"github.com/brianly1003/notilink/internal/domain"
	"github.com/brianly1003/notilink/internal/link"
	"github.com/brianly1003/notilink/internal/netutil"
	"github.com/brianly1003/notilink/internal/pairing"
)

// ConnectionStatus is the service state the frontend polls.
type ConnectionStatus struct {
	ServiceRunning    bool   `json:"service_running"`
	APIPort           int    `json:"api_port"`
	APIAddress        string `json:"api_address"`
	ListenerRunning   bool   `json:"listener_running"`
	ListenerPort      int    `json:"listener_port"`
	WaitingForPairing bool   `json:"waiting_for_pairing"`
	ActiveLinks       int    `json:"active_links"`
}

// PairingOutcome is a pairing result shaped for the frontend: token omitted,
// presence flagged instead.
type PairingOutcome struct {
	URL       string `json:"url"`
	Transport string `json:"transport"`
	HasToken  bool   `json:"has_token"`
}

// DesktopApp wraps the notilink core for the desktop GUI.
type DesktopApp struct {
	ctx        context.Context
	core       *app.App
	config     *config.Config
	cancelFunc context.CancelFunc
}

// NewDesktopApp creates a new desktop application.
func NewDesktopApp() *DesktopApp {
	return &DesktopApp{}
}

// startup is called when the app starts
func (d *DesktopApp) startup(ctx context.Context) {
	d.ctx = ctx

	cfg, err := config.Load("")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = &config.Config{
			Server:   config.ServerConfig{Host: "127.0.0.1", HTTPPort: 18081},
			Listener: config.ListenerConfig{Port: 18080, TimeoutSecs: 300},
			Link: config.LinkConfig{
				ConnectTimeoutSecs: 10,
				ReadTimeoutSecs:    30,
				WriteTimeoutSecs:   10,
				StreamEvents:       true,
			},
			Logging: config.LoggingConfig{Level: "info", Format: "console"},
		}
	}
	// The GUI renders its own QR code; the terminal one would go nowhere.
	cfg.Pairing.ShowQRInTerminal = false
	d.config = cfg

	core, err := app.New(cfg, "1.0.0")
	if err != nil {
		log.Error().Err(err).Msg("Failed to create notilink core")
		runtime.EventsEmit(d.ctx, "core_error", err.Error())
		return
	}
	d.core = core

	coreCtx, cancel := context.WithCancel(context.Background())
	d.cancelFunc = cancel

	go func() {
		if err := d.core.Start(coreCtx); err != nil {
			log.Error().Err(err).Msg("notilink core error")
			runtime.EventsEmit(d.ctx, "core_error", err.Error())
		}
	}()

	log.Info().Msg("Desktop app started with notilink core")
}

// shutdown is called when the app is closing
func (d *DesktopApp) shutdown(ctx context.Context) {
	log.Info().Msg("Shutting down desktop app")
	if d.cancelFunc != nil {
		d.cancelFunc()
	}
	// The core stops when its context is cancelled
}

// domReady is called when the DOM is ready
func (d *DesktopApp) domReady(ctx context.Context) {
	log.Info().Msg("DOM ready")
}

// --- Pairing ---

// StartPairing binds the pairing listener and begins waiting for a device.
// Returns the port actually bound.
func (d *DesktopApp) StartPairing() (int, error) {
	if d.core == nil {
		return 0, fmt.Errorf("core is not running")
	}

	status, err := d.core.StartListener(0)
	if err != nil {
		if errors.Is(err, domain.ErrListenerRunning) {
			return status.Port, nil
		}
		return 0, err
	}

	runtime.EventsEmit(d.ctx, "pairing_started", status.Port)
	return status.Port, nil
}

// StopPairing stops the pairing listener.
func (d *DesktopApp) StopPairing() {
	if d.core == nil {
		return
	}
	d.core.StopListener()
	runtime.EventsEmit(d.ctx, "pairing_stopped", nil)
}

// GetPairingResult returns the latest pairing outcome without consuming it,
// or nil when no device has paired.
func (d *DesktopApp) GetPairingResult() *PairingOutcome {
	if d.core == nil {
		return nil
	}
	return outcomeOf(d.core.PairingResult())
}

// ConnectPairedDevice consumes the pending pairing result and opens a link
// to the device it announced. Returns the link info; the issued token stays
// inside the core.
func (d *DesktopApp) ConnectPairedDevice(connectionID string) (*link.Info, error) {
	if d.core == nil {
		return nil, fmt.Errorf("core is not running")
	}

	result := d.core.ConsumePairingResult()
	if result == nil {
		return nil, fmt.Errorf("no device has paired yet")
	}

	outcome, err := d.core.ConnectLink(d.ctx, connectionID, result.URL, result.Token)
	if err != nil {
		return nil, err
	}

	runtime.EventsEmit(d.ctx, "link_connected", outcome.Link)
	return &outcome.Link, nil
}

// DisconnectDevice closes a link.
func (d *DesktopApp) DisconnectDevice(connectionID string) error {
	if d.core == nil {
		return fmt.Errorf("core is not running")
	}
	if err := d.core.DisconnectLink(connectionID); err != nil {
		return err
	}
	runtime.EventsEmit(d.ctx, "link_disconnected", connectionID)
	return nil
}

// GetLinks returns the active device links.
func (d *DesktopApp) GetLinks() []link.Info {
	if d.core == nil {
		return nil
	}
	return d.core.Links()
}

// --- Connection & Status ---

// GetConnectionStatus returns current connection status
func (d *DesktopApp) GetConnectionStatus() ConnectionStatus {
	status := ConnectionStatus{
		APIPort:    d.config.Server.HTTPPort,
		APIAddress: d.getServerAddress(),
	}

	if d.core != nil {
		status.ServiceRunning = true
		listener := d.core.ListenerStatus()
		status.ListenerRunning = listener.Running
		status.ListenerPort = listener.Port
		status.WaitingForPairing = listener.WaitingForPairing
		status.ActiveLinks = d.core.GetActiveLinks()
	}

	return status
}

// GetQRCodeData returns the pairing QR code as a base64 data URL.
func (d *DesktopApp) GetQRCodeData() (string, error) {
	if d.core == nil {
		return "", fmt.Errorf("core is not running")
	}
	return d.core.PairingQRDataURL()
}

// GetConnectionURLs returns the local API endpoints the frontend may link to.
func (d *DesktopApp) GetConnectionURLs() map[string]string {
	addr := d.getServerAddress()
	return map[string]string{
		"websocket": fmt.Sprintf("ws://%s:%d/ws", addr, d.config.Server.HTTPPort),
		"http":      fmt.Sprintf("http://%s:%d", addr, d.config.Server.HTTPPort),
	}
}

func (d *DesktopApp) getServerAddress() string {
	if d.config.Server.Host == "0.0.0.0" || d.config.Server.Host == "" {
		return netutil.LocalIP()
	}
	return d.config.Server.Host
}

func outcomeOf(result *pairing.Result) *PairingOutcome {
	if result == nil {
		return nil
	}
	return &PairingOutcome{
		URL:       result.URL,
		Transport: result.Transport,
		HasToken:  result.Token != "",
	}
}
