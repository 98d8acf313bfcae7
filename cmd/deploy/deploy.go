// Package cmd implements the deploy command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

// Deploy is the root command.
var Deploy = &cobra.Command{
	Use:           "deploy",
	Short:         "Deploy the Diversitus stack",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	Deploy.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}
