package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information, set with
// -ldflags "-X github.com/diversitus/infra/cmd/deploy.Version=v1.0.0".
var (
	Version   = "dev"
	BuildDate = "unknown"
)

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print the deploy tool version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "deploy %s (built %s, %s %s/%s)\n",
			Version, BuildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	Deploy.AddCommand(versionCommand)
}
