package cli

import (
	"os"
	"path/filepath"

	"github.com/kilupskalvis/sitedoc/internal/config"
	"github.com/kilupskalvis/sitedoc/internal/remote/server"
	"github.com/spf13/cobra"
)

var (
	serverConfigPath string
	serverListen     string
	serverDataDir    string
	serverLogLevel   string
	serverLogFormat  string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the sitedoc server",
	Long:  "Commands for running the sitedoc HTTP server.",
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sitedoc server",
	Long: `Start the sitedoc HTTP server.

Configuration comes from --config (TOML or YAML), else the current
workspace, else defaults; SITEDOC_* environment variables and the flags
below override it. jwt_secret is required. The admin token enables the
/admin/ endpoints for creating and pruning sites.

Examples:
  sitedoc server start
  sitedoc server start --config /etc/sitedoc/config.yaml
  sitedoc server start --listen 0.0.0.0:8720 --data-dir /var/lib/sitedoc`,
	Args: cobra.NoArgs,
	Run:  runServerStart,
}

func init() {
	serverCmd.AddCommand(serverStartCmd)

	f := serverStartCmd.Flags()
	f.StringVarP(&serverConfigPath, "config", "c", "", "Config file (.toml, .yaml)")
	f.StringVar(&serverListen, "listen", "", "Listen address (host:port)")
	f.StringVar(&serverDataDir, "data-dir", "", "Directory for the document database")
	f.StringVar(&serverLogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	f.StringVar(&serverLogFormat, "log-format", "", "Log format (json|text)")
}

func runServerStart(cmd *cobra.Command, _ []string) {
	cfg, err := loadServerConfig()
	if err != nil {
		exitError("%v", err)
	}
	logger := cfg.Logger(os.Stdout)

	if err := server.Serve(cmd.Context(), cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func loadServerConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case serverConfigPath != "":
		cfg, err = config.Load(serverConfigPath)
	default:
		cfg, err = config.LoadWorkspace()
		if err != nil {
			cfg, err = config.Load("")
		}
	}
	if err != nil {
		return nil, err
	}

	if serverListen != "" {
		cfg.Listen = serverListen
	}
	if serverDataDir != "" {
		if cfg.DataDir, err = filepath.Abs(serverDataDir); err != nil {
			return nil, err
		}
	}
	if serverLogLevel != "" {
		cfg.LogLevel = serverLogLevel
	}
	if serverLogFormat != "" {
		cfg.LogFormat = serverLogFormat
	}
	return cfg, cfg.Validate()
}
