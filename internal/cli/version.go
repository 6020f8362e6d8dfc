package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "0.1.0-dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gearbox version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gearbox version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
