package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lndambition2025-ops/fiscops/internal/config"
)

var version = "dev"

var (
	// Global flags
	configPath string
	dataDir    string
	remoteURL  string
	remoteKey  string
	redisAddr  string
	centerFlag string
	logLevel   string

	cfg    config.Config
	logger *zap.Logger
)

// rootCmd runs the dashboard.
var rootCmd = &cobra.Command{
	Use:   "fiscops",
	Short: "FiscOps - tax collection dashboard",
	Long: `FiscOps tracks the taxpayer portfolio of a tax center: debt and recovery
against the annual objective, daily priorities ranked by decision index,
dossier notes and a one-page report.

Data stays on this workstation unless a remote store URL and key are
configured, in which case it is shared by every agent of the center.

Run without arguments to open the dashboard.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		// The dashboard owns the terminal, so it logs to a file.
		logger, err = config.NewLogger(cfg.Logging, cmd == cmd.Root())
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runDashboard,
}

func init() {
	rootCmd.Version = version

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for local data and logs")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote-url", "", "Remote store URL (or set FISCOPS_REMOTE_URL)")
	rootCmd.PersistentFlags().StringVar(&remoteKey, "remote-key", "", "Remote store API key (or set FISCOPS_REMOTE_KEY)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Keep workstation data in Redis at this address")
	rootCmd.PersistentFlags().StringVar(&centerFlag, "center", "", "Center identifier, remembered for later runs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	reportCmd.Flags().StringP("output", "o", "", "Directory for the PDF (default: export_dir)")
	reportCmd.Flags().Bool("text", false, "Print the report instead of writing a PDF")
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	seedCmd.Flags().Bool("force", false, "Replace a center that already has data")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(seedCmd)
}

// loadConfig layers flags over the environment and the optional file.
func loadConfig() (config.Config, error) {
	c, err := config.Load(configPath)
	if err != nil {
		return c, err
	}
	fileDefault := defaultLogFile(c.DataDir)
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.DataDir, dataDir)
	set(&c.RemoteURL, remoteURL)
	set(&c.RemoteKey, remoteKey)
	set(&c.RedisAddr, redisAddr)
	set(&c.CenterID, centerFlag)
	set(&c.Logging.Level, logLevel)
	if c.Logging.File == fileDefault {
		c.Logging.File = defaultLogFile(c.DataDir)
	}
	return c, c.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
