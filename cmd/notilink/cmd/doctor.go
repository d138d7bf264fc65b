package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/brianly1003/notilink/internal/config"
	"github.com/brianly1003/notilink/internal/netutil"
)

var (
	doctorJSON        bool
	doctorStrict      bool
	doctorHTTPTimeout int
)

type doctorStatus string

const (
	doctorStatusOK   doctorStatus = "ok"
	doctorStatusWarn doctorStatus = "warn"
	doctorStatusFail doctorStatus = "fail"
)

type doctorCheck struct {
	ID          string                 `json:"id"`
	Status      doctorStatus           `json:"status"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Remediation string                 `json:"remediation,omitempty"`
}

type doctorSummary struct {
	Total int `json:"total"`
	OK    int `json:"ok"`
	Warn  int `json:"warn"`
	Fail  int `json:"fail"`
}

type doctorReport struct {
	Version     string        `json:"version"`
	GeneratedAt string        `json:"generated_at"`
	Overall     doctorStatus  `json:"overall_status"`
	Summary     doctorSummary `json:"summary"`
	Checks      []doctorCheck `json:"checks"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run local diagnostics with remediation hints",
	Long: `Run read-only diagnostics against the local notilink setup and print
actionable hints: config validity, port availability, a reachability probe
of a running service, and history journal access.

By default the output is human-readable text.
Use --json for machine-readable output.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output machine-readable JSON")
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "return non-zero on warnings")
	doctorCmd.Flags().IntVar(&doctorHTTPTimeout, "http-timeout", 2, "health endpoint timeout in seconds")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	report := collectDoctorReport()

	if doctorJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printDoctorText(report)
	}

	if report.Summary.Fail > 0 {
		return fmt.Errorf("doctor found %d failing check(s)", report.Summary.Fail)
	}
	if doctorStrict && report.Summary.Warn > 0 {
		return fmt.Errorf("doctor strict mode failed with %d warning(s)", report.Summary.Warn)
	}
	return nil
}

func collectDoctorReport() doctorReport {
	checks := make([]doctorCheck, 0, 8)

	cfg, cfgErr := loadConfig()
	checks = append(checks, checkConfig(cfgErr))

	checks = append(checks, checkConfigDir())
	if cfg != nil {
		checks = append(checks, checkListenerPort(cfg))
		checks = append(checks, checkService(cfg))
		checks = append(checks, checkHistoryPath(cfg))
	}

	summary := summarizeDoctorChecks(checks)

	return doctorReport{
		Version:     version,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Overall:     overallStatus(summary),
		Summary:     summary,
		Checks:      checks,
	}
}

func summarizeDoctorChecks(checks []doctorCheck) doctorSummary {
	summary := doctorSummary{Total: len(checks)}
	for _, c := range checks {
		switch c.Status {
		case doctorStatusOK:
			summary.OK++
		case doctorStatusWarn:
			summary.Warn++
		case doctorStatusFail:
			summary.Fail++
		}
	}
	return summary
}

func overallStatus(summary doctorSummary) doctorStatus {
	switch {
	case summary.Fail > 0:
		return doctorStatusFail
	case summary.Warn > 0:
		return doctorStatusWarn
	default:
		return doctorStatusOK
	}
}

func checkConfig(err error) doctorCheck {
	if err != nil {
		return doctorCheck{
			ID:          "config.load",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("configuration failed to load: %v", err),
			Remediation: "fix the reported field or regenerate with 'notilink config init --force'",
		}
	}
	return doctorCheck{
		ID:      "config.load",
		Status:  doctorStatusOK,
		Message: "configuration loads and validates",
	}
}

func checkConfigDir() doctorCheck {
	dir, err := config.GetConfigDir()
	if err != nil {
		return doctorCheck{
			ID:      "config.dir",
			Status:  doctorStatusWarn,
			Message: fmt.Sprintf("cannot resolve home directory: %v", err),
		}
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return doctorCheck{
			ID:          "config.dir",
			Status:      doctorStatusWarn,
			Message:     fmt.Sprintf("%s does not exist", dir),
			Remediation: "run 'notilink config init' to create it",
		}
	}
	return doctorCheck{
		ID:      "config.dir",
		Status:  doctorStatusOK,
		Message: fmt.Sprintf("config directory present at %s", dir),
	}
}

func checkListenerPort(cfg *config.Config) doctorCheck {
	port := cfg.Listener.Port
	if netutil.IsPortAvailable(port) {
		return doctorCheck{
			ID:      "listener.port",
			Status:  doctorStatusOK,
			Message: fmt.Sprintf("pairing port %d is free", port),
		}
	}

	check := doctorCheck{
		ID:      "listener.port",
		Status:  doctorStatusWarn,
		Message: fmt.Sprintf("pairing port %d is in use", port),
		Details: map[string]interface{}{"port": port},
	}
	if free, err := netutil.FindAvailablePort(port); err == nil {
		check.Remediation = fmt.Sprintf("the listener will fall back to %d; stop the other process to use %d", free, port)
	} else {
		check.Status = doctorStatusFail
		check.Remediation = "no free port in the fallback range; free some ports or change listener.port"
	}
	return check
}

func checkService(cfg *config.Config) doctorCheck {
	url := fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.HTTPPort)
	httpClient := &http.Client{Timeout: time.Duration(doctorHTTPTimeout) * time.Second}

	resp, err := httpClient.Get(url)
	if err != nil {
		return doctorCheck{
			ID:          "service.health",
			Status:      doctorStatusWarn,
			Message:     "no running notilink service found",
			Details:     map[string]interface{}{"url": url},
			Remediation: "start one with 'notilink start' (this is fine if you only use one-shot commands)",
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return doctorCheck{
			ID:      "service.health",
			Status:  doctorStatusFail,
			Message: fmt.Sprintf("service at %s returned %s", url, resp.Status),
		}
	}
	return doctorCheck{
		ID:      "service.health",
		Status:  doctorStatusOK,
		Message: fmt.Sprintf("service responding at %s", url),
	}
}

func checkHistoryPath(cfg *config.Config) doctorCheck {
	if !cfg.History.Enabled {
		return doctorCheck{
			ID:      "history.path",
			Status:  doctorStatusOK,
			Message: "history journal disabled",
		}
	}

	dir := filepath.Dir(cfg.History.Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return doctorCheck{
			ID:          "history.path",
			Status:      doctorStatusWarn,
			Message:     fmt.Sprintf("history directory %s does not exist yet", dir),
			Remediation: "it is created on first service start; nothing to do unless that fails",
		}
	}

	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return doctorCheck{
			ID:          "history.path",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("history directory %s is not writable: %v", dir, err),
			Remediation: "fix permissions or point history.path somewhere writable",
		}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return doctorCheck{
		ID:      "history.path",
		Status:  doctorStatusOK,
		Message: fmt.Sprintf("history journal path %s is writable", cfg.History.Path),
	}
}

func printDoctorText(report doctorReport) {
	fmt.Printf("notilink doctor (%s)\n\n", report.Version)
	for _, c := range report.Checks {
		marker := "✓"
		switch c.Status {
		case doctorStatusWarn:
			marker = "!"
		case doctorStatusFail:
			marker = "✗"
		}
		fmt.Printf("  %s %-16s %s\n", marker, c.ID, c.Message)
		if c.Remediation != "" {
			fmt.Printf("      hint: %s\n", c.Remediation)
		}
	}
	fmt.Printf("\n%d checks: %d ok, %d warnings, %d failures\n",
		report.Summary.Total, report.Summary.OK, report.Summary.Warn, report.Summary.Fail)
}
