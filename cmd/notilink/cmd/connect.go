package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/brianly1003/notilink/internal/domain"
	"github.com/brianly1003/notilink/internal/link"
)

var (
	connectToken       string
	connectID          string
	connectTimeoutSecs int
)

// connectCmd opens a one-shot link to a device's auth socket.
var connectCmd = &cobra.Command{
	Use:   "connect <host:port>",
	Short: "Connect to a paired device and obtain a token",
	Long: `Dial a device's auth socket and perform the token handshake.

Without --token, a new token is requested; the device typically asks its
user to approve, so this can wait up to the read timeout. With --token, a
login with the existing token is performed instead.

Examples:
  notilink connect 10.0.0.5:9000
  notilink connect 10.0.0.5:9000 --token ntlk_d_...`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&connectToken, "token", "", "log in with an existing token instead of requesting one")
	connectCmd.Flags().StringVar(&connectID, "id", "", "connection identifier (default: random)")
	connectCmd.Flags().IntVar(&connectTimeoutSecs, "read-timeout", 0, "read timeout in seconds (default: from config)")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg)

	endpoint := args[0]
	connectionID := connectID
	if connectionID == "" {
		connectionID = uuid.New().String()
	}

	timeouts := link.Timeouts{
		Connect: time.Duration(cfg.Link.ConnectTimeoutSecs) * time.Second,
		Read:    time.Duration(cfg.Link.ReadTimeoutSecs) * time.Second,
		Write:   time.Duration(cfg.Link.WriteTimeoutSecs) * time.Second,
	}
	if connectTimeoutSecs != 0 {
		timeouts.Read = time.Duration(connectTimeoutSecs) * time.Second
	}

	client, err := link.ConnectWithTimeouts(endpoint, connectionID, timeouts)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	defer client.Close()

	if connectToken != "" {
		if err := client.Login(connectToken); err != nil {
			return err
		}
		fmt.Printf("Logged in to %s\n", endpoint)
		return nil
	}

	fmt.Printf("Requesting token from %s (the device may ask for approval)...\n", endpoint)
	token, err := client.RequestToken()
	if err != nil {
		if errors.Is(err, domain.ErrAuthRejected) {
			return fmt.Errorf("the device rejected the request: %w", err)
		}
		return err
	}

	fmt.Println()
	fmt.Println("Token issued. Keep it for reconnects:")
	fmt.Printf("  %s\n", token)
	return nil
}
