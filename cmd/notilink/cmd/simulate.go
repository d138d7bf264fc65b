package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/brianly1003/notilink/internal/devicesim"
	"github.com/brianly1003/notilink/internal/domain/events"
)

var (
	simAddr        string
	simAutoApprove bool
	simPairWith    string
	simPairHTTP    bool
	simTokenExpiry int
)

// simulateCmd runs the device side of both wire protocols for development
// and manual testing against a real desktop instance.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Emulate the companion device for local testing",
	Long: `Run a simulated device: an auth socket server that issues tokens
the way the mobile app does, and optionally the device side of the pairing
handshake against a listening desktop.

Token requests wait for your approval on stdin unless --auto-approve is
set. Once a desktop is linked, stdin lines become simulated notifications
streamed to it.

Examples:
  notilink simulate                            # auth server on an OS port
  notilink simulate --addr :9000               # fixed port
  notilink simulate --pair-with 127.0.0.1:18080   # pair first, then serve
  notilink simulate --pair-with 127.0.0.1:18080 --pair-http`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simAddr, "addr", "127.0.0.1:0", "auth server bind address")
	simulateCmd.Flags().BoolVar(&simAutoApprove, "auto-approve", false, "approve token requests without asking")
	simulateCmd.Flags().StringVar(&simPairWith, "pair-with", "", "desktop pairing endpoint to handshake with on startup")
	simulateCmd.Flags().BoolVar(&simPairHTTP, "pair-http", false, "pair over HTTP POST instead of a raw JSON line")
	simulateCmd.Flags().IntVar(&simTokenExpiry, "token-expiry", 86400, "issued token lifetime in seconds")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	// The simulator is an interactive dev tool; tint gives it readable
	// colored output without dragging the service logger setup along.
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	if verbose {
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
		}))
	}
	slog.SetDefault(logger)

	issuer, err := devicesim.NewTokenIssuer(simTokenExpiry)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}
	approvals := devicesim.NewApprovalManager(simAutoApprove)

	server := devicesim.NewServer(issuer, approvals)
	if err := server.Start(simAddr); err != nil {
		return fmt.Errorf("failed to start device auth server: %w", err)
	}
	defer func() { _ = server.Stop() }()

	slog.Info("device auth server up",
		"addr", server.Addr(),
		"device_id", issuer.DeviceID(),
		"auto_approve", simAutoApprove)

	if simPairWith != "" {
		pairer := devicesim.NewPairer(server.Addr(), uuid.New().String())
		var perr error
		if simPairHTTP {
			perr = pairer.PairHTTP(simPairWith)
		} else {
			perr = pairer.PairRaw(simPairWith)
		}
		if perr != nil {
			return fmt.Errorf("pairing with %s failed: %w", simPairWith, perr)
		}
		slog.Info("paired with desktop", "endpoint", simPairWith, "http", simPairHTTP)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go simulateInput(server, approvals)

	fmt.Fprintln(os.Stderr, "Commands: y/n answer a pending request, any other line posts a notification, Ctrl-C quits.")
	<-stop

	slog.Info("simulator shutting down")
	return nil
}

// simulateInput turns stdin into approval decisions and fake notifications.
func simulateInput(server *devicesim.Server, approvals *devicesim.ApprovalManager) {
	scanner := bufio.NewScanner(os.Stdin)
	seq := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "y" || line == "n" {
			pending := approvals.Pending()
			if len(pending) == 0 {
				fmt.Fprintln(os.Stderr, "no pending token requests")
				continue
			}
			req := pending[0]
			if line == "y" {
				if err := approvals.Approve(req.RequestID); err == nil {
					slog.Info("request approved", "request_id", req.RequestID, "from", req.RemoteAddr)
				}
			} else {
				if err := approvals.Reject(req.RequestID); err == nil {
					slog.Info("request rejected", "request_id", req.RequestID, "from", req.RemoteAddr)
				}
			}
			continue
		}

		seq++
		server.EmitAdded(events.Notification{
			ID:       fmt.Sprintf("sim-%d", seq),
			Title:    "Simulated notification",
			Text:     line,
			PostedAt: time.Now().UnixMilli(),
		})
		slog.Info("notification emitted", "text", line, "linked_desktops", server.AuthorizedCount())
	}
}
