package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/brianly1003/notilink/internal/config"
)

var (
	configInitLocal bool
	configInitForce bool
)

// configCmd displays or manages configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display and manage configuration",
	Long: `Display and manage notilink configuration.

Without subcommands, shows the current effective configuration as YAML.

Examples:
  notilink config              # Show current config
  notilink config init         # Create config file with defaults
  notilink config path         # Show config file location`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return printConfigYAML(cfg)
	},
}

// configInitCmd creates a config file with defaults.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with default settings",
	Long: `Create a config file with default settings and documentation.

By default, creates ~/.notilink/config.yaml.
Use --local to create ./config.yaml in the current directory.

Examples:
  notilink config init          # Create ~/.notilink/config.yaml
  notilink config init --local  # Create ./config.yaml
  notilink config init --force  # Overwrite existing file`,
	RunE: runConfigInit,
}

// configPathCmd shows config file location.
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file location",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().BoolVar(&configInitLocal, "local", false, "create ./config.yaml instead of ~/.notilink/config.yaml")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")
}

// configSection mirrors Config with yaml tags for human-facing output; viper's
// mapstructure tags do not drive yaml marshalling.
type configView struct {
	Server struct {
		Host      string `yaml:"host"`
		HTTPPort  int    `yaml:"http_port"`
		AuthToken string `yaml:"auth_token,omitempty"`
	} `yaml:"server"`
	Listener struct {
		Port        int  `yaml:"port"`
		TimeoutSecs int  `yaml:"timeout_secs"`
		AutoStart   bool `yaml:"auto_start"`
	} `yaml:"listener"`
	Link struct {
		ConnectTimeoutSecs int  `yaml:"connect_timeout_secs"`
		ReadTimeoutSecs    int  `yaml:"read_timeout_secs"`
		WriteTimeoutSecs   int  `yaml:"write_timeout_secs"`
		StreamEvents       bool `yaml:"stream_events"`
	} `yaml:"link"`
	Pairing struct {
		ShowQRInTerminal bool `yaml:"show_qr_in_terminal"`
	} `yaml:"pairing"`
	History struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"history"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

func viewOf(cfg *config.Config) configView {
	var v configView
	v.Server.Host = cfg.Server.Host
	v.Server.HTTPPort = cfg.Server.HTTPPort
	v.Server.AuthToken = cfg.Server.AuthToken
	v.Listener.Port = cfg.Listener.Port
	v.Listener.TimeoutSecs = cfg.Listener.TimeoutSecs
	v.Listener.AutoStart = cfg.Listener.AutoStart
	v.Link.ConnectTimeoutSecs = cfg.Link.ConnectTimeoutSecs
	v.Link.ReadTimeoutSecs = cfg.Link.ReadTimeoutSecs
	v.Link.WriteTimeoutSecs = cfg.Link.WriteTimeoutSecs
	v.Link.StreamEvents = cfg.Link.StreamEvents
	v.Pairing.ShowQRInTerminal = cfg.Pairing.ShowQRInTerminal
	v.History.Enabled = cfg.History.Enabled
	v.History.Path = cfg.History.Path
	v.Logging.Level = cfg.Logging.Level
	v.Logging.Format = cfg.Logging.Format
	return v
}

func printConfigYAML(cfg *config.Config) error {
	data, err := yaml.Marshal(viewOf(cfg))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	var path string
	if configInitLocal {
		path = "config.yaml"
	} else {
		dir, err := config.EnsureConfigDir()
		if err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("failed to build default config: %w", err)
	}

	data, err := yaml.Marshal(viewOf(cfg))
	if err != nil {
		return err
	}
	header := []byte("# notilink configuration\n# Values shown are the defaults; remove what you do not override.\n\n")
	if err := os.WriteFile(path, append(header, data...), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf("Created %s\n", path)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		fmt.Println(cfgFile)
		return nil
	}

	candidates := []string{"config.yaml"}
	if dir, err := config.GetConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "config.yaml"))
	}
	candidates = append(candidates, "/etc/notilink/config.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("%s (exists)\n", path)
			return nil
		}
	}

	fmt.Println("No config file found; searched:")
	for _, path := range candidates {
		fmt.Printf("  %s\n", path)
	}
	fmt.Println("Run 'notilink config init' to create one.")
	return nil
}
