package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/graph"
	"github.com/agentx-labs/capreg/internal/registry"
)

var (
	depsKind string
	depsFlat bool
)

func init() {
	depsCmd.Flags().StringVar(&depsKind, "kind", "", "Follow only one edge kind: cites, depends-on or implements")
	depsCmd.Flags().BoolVar(&depsFlat, "flat", false, "Print keys in dependency order instead of a tree")
	rootCmd.AddCommand(depsCmd)
}

var depsCmd = &cobra.Command{
	Use:   "deps <document>",
	Short: "Show what a document references, recursively",
	Long: `Print the tree of documents reachable from one document.

The document may be given as type:id, as a corpus path, or as a bare id
when that id is unique. Nodes already shown earlier in the tree are
marked with * and not expanded again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var kinds []graph.EdgeKind
		switch k := graph.EdgeKind(depsKind); k {
		case "":
		case graph.Cites, graph.DependsOn, graph.Implements:
			kinds = append(kinds, k)
		default:
			return fmt.Errorf("invalid --kind %q (want cites, depends-on or implements)", depsKind)
		}

		r, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		g, _, err := r.BuildGraph(cmd.Context())
		if err != nil {
			return err
		}
		key, err := r.ResolveKey(g, args[0])
		if err != nil {
			return err
		}
		tree, err := registry.DependencyTree(g, key, kinds...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case depsFlat && jsonOutput:
			return printJSON(out, registry.FlattenTree(tree))
		case depsFlat:
			for _, k := range registry.FlattenTree(tree) {
				fmt.Fprintln(out, k)
			}
		case jsonOutput:
			return printJSON(out, tree)
		default:
			registry.PrintTree(out, tree)
		}
		return nil
	},
}
