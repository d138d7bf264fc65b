package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusJSON bool

// serviceStatus mirrors the /api/status response shape.
type serviceStatus struct {
	Service       string `json:"service"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Listener      struct {
		Running           bool `json:"running"`
		WaitingForPairing bool `json:"waiting_for_pairing"`
		Port              int  `json:"port"`
	} `json:"listener"`
	Links []struct {
		ConnectionID string    `json:"connection_id"`
		Endpoint     string    `json:"endpoint"`
		Streaming    bool      `json:"streaming"`
		ConnectedAt  time.Time `json:"connected_at"`
	} `json:"links"`
}

// statusCmd queries a running service over its HTTP API.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running notilink service",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output raw JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/api/status", cfg.Server.Host, cfg.Server.HTTPPort)
	httpClient := &http.Client{Timeout: 2 * time.Second}

	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("no notilink service reachable at %s (is it running?)", url)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned %s", resp.Status)
	}

	if statusJSON {
		_, err = os.Stdout.Write(append(body, '\n'))
		return err
	}

	var status serviceStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("unexpected response from %s: %w", url, err)
	}

	listenerLine := fmt.Sprintf("stopped (port %d)", status.Listener.Port)
	if status.Listener.Running {
		listenerLine = fmt.Sprintf("listening on port %d", status.Listener.Port)
		if status.Listener.WaitingForPairing {
			listenerLine += ", waiting for a device"
		}
	}

	fmt.Printf("notilink %s\n", status.Version)
	fmt.Printf("  Uptime:   %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
	fmt.Printf("  Pairing:  %s\n", listenerLine)
	if len(status.Links) == 0 {
		fmt.Println("  Links:    none")
		return nil
	}
	fmt.Printf("  Links:    %d\n", len(status.Links))
	for _, l := range status.Links {
		streaming := ""
		if l.Streaming {
			streaming = " (streaming)"
		}
		fmt.Printf("    %s -> %s%s, since %s\n",
			l.ConnectionID, l.Endpoint, streaming, l.ConnectedAt.Format(time.RFC3339))
	}
	return nil
}
