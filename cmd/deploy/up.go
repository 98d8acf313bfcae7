package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/diversitus/infra/stack"
	"github.com/spf13/cobra"
)

var upCommand = &cobra.Command{
	Use:   "up [dir]",
	Short: "Create or update the stack and seed the tables",
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
		res, err := d.Deploy(ctx)
		if res != nil {
			printResult(os.Stdout, res)
		}
		return err
	},
}

func init() {
	addStateFlag(upCommand)
	upCommand.Flags().Bool("dry-run", false, "Reconcile against an in-memory cloud")
	upCommand.Flags().Uint("concurrency", 0, "Maximum number of resources to reconcile concurrently (default 10)")
	Deploy.AddCommand(upCommand)
}

func printResult(w io.Writer, res *stack.Result) {
	rep := res.Report
	fmt.Fprintf(w, "Run %s\n", rep.ID)
	for _, name := range rep.Failed() {
		fmt.Fprintf(w, "  failed      %s: %v\n", name, rep.Failure(name))
	}
	for _, s := range rep.Skipped() {
		fmt.Fprintf(w, "  skipped     %s (depends on %s)\n", s.Resource, s.Failed)
	}
	for _, name := range rep.Incomplete() {
		fmt.Fprintf(w, "  incomplete  %s\n", name)
	}
	fmt.Fprintf(w, "  validated   %d/%d\n", len(rep.Succeeded()), len(rep.Resources))
	if res.Seed != nil {
		fmt.Fprintf(w, "Seeded %d companies, %d jobs (%d new)\n", len(res.Seed.Companies), len(res.Seed.Jobs), res.Seed.New)
	}
	fmt.Fprintln(w, "Outputs")
	if res.Outputs.URL != "" {
		fmt.Fprintf(w, "  url          = %s\n", res.Outputs.URL)
	}
	if len(res.Outputs.NameServers) > 0 {
		fmt.Fprintf(w, "  name_servers = %s\n", strings.Join(res.Outputs.NameServers, ", "))
	}
}
