package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/watzon/gearbox/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Println("Configuration is valid")
		fmt.Printf("  data dir:     %s\n", cfg.Data.Dir)
		fmt.Printf("  quota rules:  %d\n", len(cfg.Quota.Rules))
		if cfg.Diagnostics.Enabled {
			fmt.Printf("  admin server: %s\n", cfg.Diagnostics.Addr)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromFile(cfgFile)
	}
	return config.LoadWithDefaults()
}
