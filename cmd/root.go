package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

var rootCmd = &cobra.Command{
	Use:     "macrolite",
	Short:   "macrolite - serve DuckDB macros as HTTP endpoints",
	Long:    `A single-binary server that discovers macros in a DuckDB database and exposes each one as an HTTP endpoint.`,
	Version: Version,
}

func init() {
	// Set version template to include build info when available
	rootCmd.SetVersionTemplate("macrolite version {{.Version}}\n")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
