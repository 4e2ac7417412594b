package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/metrics"
	"github.com/agentx-labs/capreg/internal/report"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the integrity of the whole corpus",
	Long: `Validate every document and check every reference between documents.

The check fails on invalid documents, dangling or ambiguous references,
duplicate ids within a type, and dependency cycles. Suggested rewrites of
non-conforming links are printed but do not fail the check.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		in, err := r.CheckIntegrity(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, in); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "checked: %d  passed: %d  failed: %d\n", in.Checked, in.Passed, len(in.Failed))
			report.PrintItems(out, in.Failed)
			in.Graph.Print(out)
		}

		err = writeMetrics(r, func(m *metrics.Recorder) {
			m.ObserveBatch(in.Batch)
			m.ObserveGraph(in.Graph)
		})
		if err != nil {
			return err
		}
		if !in.OK {
			return errChecksFailed
		}
		return nil
	},
}
