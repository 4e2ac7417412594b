package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/branding"
)

var versionShort bool

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Print version number only")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if versionShort {
			fmt.Fprintln(out, buildVersion)
			return nil
		}

		if jsonOutput {
			return printJSON(out, map[string]string{
				"version": buildVersion,
				"commit":  buildCommit,
				"date":    buildDate,
			})
		}

		fmt.Fprintf(out, "%s version %s (commit: %s, built: %s)\n", branding.CLIName(), buildVersion, buildCommit, buildDate)
		return nil
	},
}
