package cmd

import (
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display medallion version information",
	Run: func(cmd *cobra.Command, args []string) {
		printf(cmd, "medallion version %s\n", Version)
		printf(cmd, "Built at: %s\n", BuildTime)
		printf(cmd, "Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
