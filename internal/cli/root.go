// Package cli implements the gearbox command line interface.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gearbox",
	Short: "Event-hook automation core for chat bots",
	Long: `Gearbox is the automation and extension core of a chat bot:

  - User-configured event hooks built from a template catalog
  - Condition-gated action pipelines with message templating
  - Plugin registry with dependency, conflict and cycle validation
  - Per-guild settings, command quotas and execution history
  - Self-diagnostics with metrics and a live execution feed
  - Remote extension marketplace client

Run the bot:
  gearbox run

Check a config file:
  gearbox validate --config gearbox.yaml`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./gearbox.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// setupLogging configures zerolog based on verbosity. The run command
// tightens the level again once config is loaded.
func setupLogging() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func applyLogConfig(level, format string) {
	if parsed, err := zerolog.ParseLevel(level); err == nil && !verbose {
		zerolog.SetGlobalLevel(parsed)
	}
	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
