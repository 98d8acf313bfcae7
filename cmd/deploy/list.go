package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/diversitus/infra/resource"
	"github.com/diversitus/infra/stack"
	"github.com/spf13/cobra"
)

var listCommand = &cobra.Command{
	Use:     "list [dir]",
	Aliases: []string{"ls"},
	Short:   "List resources in dependency order",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		kindName, err := cmd.Flags().GetString("kind")
		if err != nil {
			return err
		}
		var kind resource.Kind
		if kindName != "" {
			kind, err = resource.ParseKind(kindName)
			if err != nil {
				return err
			}
		}

		st, err := loadStack(dir)
		if err != nil {
			return err
		}
		g, err := (&stack.Deployer{Config: st}).Graph()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "KIND\tNAME\tDEPENDS ON\n")
		for _, name := range g.Order() {
			res, _ := g.Resource(name)
			if kind != 0 && res.Kind != kind {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Kind, res.Name, strings.Join(res.DependsOn, ", "))
		}
		return tw.Flush()
	},
}

func init() {
	listCommand.Flags().String("kind", "", "Only list resources of the given kind")
	Deploy.AddCommand(listCommand)
}
