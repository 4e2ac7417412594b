package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/graph"
	"github.com/agentx-labs/capreg/internal/metrics"
)

var (
	graphFormat string
	graphOut    string
)

func init() {
	graphCmd.Flags().StringVar(&graphFormat, "format", "json", "Output format: json or dot")
	graphCmd.Flags().StringVar(&graphOut, "out", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(graphCmd)
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the reference graph of the corpus",
	Long: `Build the graph of references between documents and export it.

Nodes are documents keyed by type and id; plain files that are linked but
are not documents appear as "file" nodes. Edges are classified as cites,
depends-on or implements. Dangling references are kept as edges without a
target. Use --format dot for Graphviz.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := graph.ParseFormat(graphFormat)
		if err != nil {
			return err
		}
		r, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		g, _, err := r.BuildGraph(cmd.Context())
		if err != nil {
			return err
		}

		if graphOut == "" {
			if err := g.Write(cmd.OutOrStdout(), format); err != nil {
				return err
			}
		} else {
			f, err := os.Create(graphOut)
			if err != nil {
				return fmt.Errorf("creating %s: %w", graphOut, err)
			}
			if err := g.Write(f, format); err != nil {
				f.Close()
				return fmt.Errorf("writing %s: %w", graphOut, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d nodes)\n", graphOut, len(g.Nodes))
		}

		return writeMetrics(r, func(m *metrics.Recorder) { m.ObserveGraph(g.Report()) })
	},
}
