package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/config"
	"github.com/agentx-labs/capreg/internal/metrics"
	"github.com/agentx-labs/capreg/internal/report"
)

var (
	validateType string
	validateMode string
	validateAll  bool
)

func init() {
	validateCmd.Flags().StringVar(&validateType, "type", "", "Component type of the given paths (default: inferred)")
	validateCmd.Flags().StringVar(&validateMode, "mode", "", "Validation mode: fast or strict (default from corpus config)")
	validateCmd.Flags().BoolVar(&validateAll, "all", false, "Validate every document in the corpus")
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate [paths...]",
	Short: "Validate documents against their schemas",
	Long: `Validate documents against the schema of their component type.

Without paths (or with --all) every document under the configured roots is
validated. The type of a path is taken from --type, then from the root it
lives under, then from the document's own type field.

Exits with status 1 when any document is invalid, unreadable, or has no
schema.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry(cmd, func(c *config.Corpus) {
			if validateMode != "" {
				c.Mode = validateMode
			}
		})
		if err != nil {
			return err
		}

		var batch report.Batch
		if validateAll || len(args) == 0 {
			batch, err = r.ValidateAll(cmd.Context())
		} else {
			batch, err = r.ValidatePaths(cmd.Context(), args, validateType)
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			err = printJSON(cmd.OutOrStdout(), batch)
		} else {
			batch.Print(cmd.OutOrStdout())
		}
		if err != nil {
			return err
		}
		if err := writeMetrics(r, func(m *metrics.Recorder) { m.ObserveBatch(batch) }); err != nil {
			return err
		}
		if batch.HasFailures() {
			return errChecksFailed
		}
		return nil
	},
}
