package cmd

import (
	"fmt"

	"github.com/diversitus/infra/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var rootCommand = &cobra.Command{
	Use:   "root [dir]",
	Short: "Print the directory containing stack.hcl",
	Long: `Print the directory containing stack.hcl.

The search starts in dir, or the working directory, and continues upwards
until a stack definition is found.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := "."
		if len(args) > 0 {
			start = args[0]
		}
		dir, err := (&config.Loader{}).Root(start)
		if err != nil {
			return err
		}
		if dir == "" {
			return errors.Errorf("no %s found in %s or any parent directory", config.Filename, start)
		}
		fmt.Fprintln(cmd.OutOrStdout(), dir)
		return nil
	},
}

func init() {
	Deploy.AddCommand(rootCommand)
}
