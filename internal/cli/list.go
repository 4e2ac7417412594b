package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/registry"
)

var listTypeFilter string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the documents found under the configured roots",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listTypeFilter, "type", "", "Filter by component type (agent, skill, knowledge, ...)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	r, err := openRegistry(cmd)
	if err != nil {
		return err
	}

	var located []registry.Located
	if listTypeFilter != "" {
		t, err := document.ParseType(listTypeFilter)
		if err != nil {
			return err
		}
		paths, err := r.Discover(t)
		if err != nil {
			return err
		}
		for _, p := range paths {
			located = append(located, registry.Located{RelPath: p, Type: t})
		}
	} else {
		located, err = r.DiscoverAll(cmd.Context())
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		if located == nil {
			located = []registry.Located{}
		}
		return printJSON(cmd.OutOrStdout(), located)
	}
	if len(located) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents found.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TYPE\tPATH")
	for _, l := range located {
		fmt.Fprintf(w, "%s\t%s\n", l.Type, l.RelPath)
	}
	return w.Flush()
}
