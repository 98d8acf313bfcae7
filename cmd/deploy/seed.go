package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var seedCommand = &cobra.Command{
	Use:   "seed [dir]",
	Short: "Write the seed data to the tables of a deployed stack",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd, args)
		if err != nil {
			return err
		}
		defer e.Close()       // nolint: errcheck
		defer e.logger.Sync() // nolint: errcheck

		ctx := interruptible(context.Background(), os.Stderr)

		d, err := e.deployer(ctx, cmd)
		if err != nil {
			return err
		}
		res, err := d.Seed(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Seeded %d companies, %d jobs (%d new)\n", len(res.Companies), len(res.Jobs), res.New)
		return nil
	},
}

func init() {
	addStateFlag(seedCommand)
	Deploy.AddCommand(seedCommand)
}
