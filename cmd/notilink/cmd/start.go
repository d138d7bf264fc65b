package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brianly1003/notilink/internal/app"
	"github.com/brianly1003/notilink/internal/config"
)

var (
	startHTTPPort     int
	startListenerPort int
	startAutoListen   bool
	startNoQR         bool
)

// startCmd represents the start command.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the notilink service",
	Long: `Start the notilink service: the HTTP control API, the WebSocket
event feed and, with --listen, the pairing listener.

The service runs until interrupted. Pairing and link operations are driven
through the API (or the desktop shell); see 'notilink status' for a quick
look at a running instance.

Example:
  notilink start                  # API only, start pairing on demand
  notilink start --listen         # also start waiting for a device
  notilink start --port 28081     # custom API port`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().IntVar(&startHTTPPort, "port", 0, "HTTP API port (default: 18081)")
	startCmd.Flags().IntVar(&startListenerPort, "listener-port", 0, "preferred pairing listener port (default: 18080)")
	startCmd.Flags().BoolVar(&startAutoListen, "listen", false, "start the pairing listener immediately")
	startCmd.Flags().BoolVar(&startNoQR, "no-qr", false, "do not print the pairing QR code")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with flags
	if startHTTPPort != 0 {
		cfg.Server.HTTPPort = startHTTPPort
	}
	if startListenerPort != 0 {
		cfg.Listener.Port = startListenerPort
	}
	if startAutoListen {
		cfg.Listener.AutoStart = true
	}
	if startNoQR {
		cfg.Pairing.ShowQRInTerminal = false
	}

	// Re-validate after overrides
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg)

	log.Info().
		Str("version", version).
		Int("http_port", cfg.Server.HTTPPort).
		Int("listener_port", cfg.Listener.Port).
		Msg("starting notilink")

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if cfgFile != "" {
		application.SetConfigPath(cfgFile)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	log.Info().Msg("notilink stopped")
	return nil
}
