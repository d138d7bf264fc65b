package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brianly1003/notilink/internal/netutil"
	"github.com/brianly1003/notilink/internal/pairing"
)

var (
	pairPort        int
	pairTimeoutSecs int
	pairJSON        bool
	pairNoQR        bool
)

// pairCmd runs a one-shot pairing session without the full service.
var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Wait for a device to pair with this machine",
	Long: `Bind a pairing listener, display the QR code a device scans to find
it, and wait for one handshake.

On success the device's URL and token are printed; feed them to
'notilink connect' to open the link. The session ends on the first
successful handshake, on timeout, or on Ctrl-C.

Examples:
  notilink pair                  # listen on the configured port
  notilink pair --port 18080     # explicit port
  notilink pair --timeout 60     # give up after a minute
  notilink pair --json           # print the result as JSON`,
	RunE: runPair,
}

func init() {
	pairCmd.Flags().IntVar(&pairPort, "port", 0, "pairing listener port (default: from config)")
	pairCmd.Flags().IntVar(&pairTimeoutSecs, "timeout", 0, "seconds to wait for a handshake (default: from config)")
	pairCmd.Flags().BoolVar(&pairJSON, "json", false, "output the pairing result as JSON")
	pairCmd.Flags().BoolVar(&pairNoQR, "no-qr", false, "do not print the QR code")
}

func runPair(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg)

	port := pairPort
	if port == 0 {
		port = cfg.Listener.Port
	}
	timeout := time.Duration(pairTimeoutSecs) * time.Second
	if pairTimeoutSecs == 0 {
		timeout = time.Duration(cfg.Listener.TimeoutSecs) * time.Second
	}

	if !netutil.IsPortAvailable(port) {
		free, err := netutil.FindAvailablePort(port)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Port %d is busy, using %d\n", port, free)
		port = free
	}

	listener, err := pairing.NewListener(port, nil)
	if err != nil {
		return err
	}
	defer listener.Stop()

	// Ctrl-C stops the listener; AwaitPairing observes it within a poll.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		listener.Stop()
	}()

	if !pairNoQR {
		hostname, _ := os.Hostname()
		gen := pairing.NewQRGenerator(netutil.LocalIP(), listener.Port(), hostname, version)
		gen.PrintToTerminal()
	}
	fmt.Fprintf(os.Stderr, "Waiting for a device on port %d (timeout %s)...\n", listener.Port(), timeout)

	result, err := listener.AwaitPairing(timeout)
	if err != nil {
		return err
	}

	log.Info().Str("url", result.URL).Str("transport", result.Transport).Msg("device paired")

	if pairJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	fmt.Println()
	fmt.Println("Pairing successful!")
	fmt.Printf("  Device URL: %s\n", result.URL)
	fmt.Printf("  Token:      %s\n", result.Token)
	fmt.Printf("  Transport:  %s\n", result.Transport)
	fmt.Println()
	fmt.Printf("Connect with:\n  notilink connect %s --token %s\n", result.URL, result.Token)
	return nil
}
