package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ecrop/internal/common"
)

var (
	// Persistent flags
	configFiles []string
	serverPort  int
	serverHost  string

	// Global state, resolved before any subcommand runs
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "ecrop",
	Short:         "Owner update automation for the eCrop portal",
	Long:          `Fills occupant extents and mobile numbers for Owner rows on the eCrop cultivator page, Khata by Khata, from an uploaded spreadsheet.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().IntVarP(&serverPort, "port", "p", 0, "Server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&serverHost, "host", "", "Server host (overrides config)")

	rootCmd.AddCommand(serveCmd, runCmd, versionCmd)
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig runs the startup sequence: defaults, config files, env, CLI flags,
// then logger and banner
func loadConfig() error {
	if len(configFiles) == 0 {
		if _, err := os.Stat("ecrop.toml"); err == nil {
			configFiles = append(configFiles, "ecrop.toml")
		} else if _, err := os.Stat("deployments/local/ecrop.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/ecrop.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration %v: %w", configFiles, err)
	}
	common.ApplyFlagOverrides(config, serverPort, serverHost)

	logger = common.InitLogger(config)
	common.PrintBanner(config)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("badger_path", config.Storage.Badger.Path).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Str("environment", config.Environment).
		Msg("Resolved configuration")

	return nil
}
