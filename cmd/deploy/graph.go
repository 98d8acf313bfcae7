package cmd

import (
	"os"

	"github.com/diversitus/infra/resource/graph"
	"github.com/diversitus/infra/stack"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var graphCommand = &cobra.Command{
	Use:   "graph [dir]",
	Short: "Print the resource graph in graphviz dot format",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		st, err := loadStack(dir)
		if err != nil {
			return err
		}
		g, err := (&stack.Deployer{Config: st}).Graph()
		if err != nil {
			return err
		}
		out, err := graph.MarshalDOT(g, st.Project.Name)
		if err != nil {
			return errors.Wrap(err, "marshal graph")
		}
		_, err = os.Stdout.Write(append(out, '\n'))
		return err
	},
}

func init() {
	Deploy.AddCommand(graphCommand)
}
