package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/document"
)

func init() {
	schemaCmd.AddCommand(schemaListCmd)
	schemaCmd.AddCommand(schemaShowCmd)
	rootCmd.AddCommand(schemaCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the schemas documents are validated against",
	Long: `Schemas are read from the corpus schema directory (schema_dir in the corpus
config). Types without a schema file there fall back to the built-in
schemas unless builtin_schemas is false.`,
}

// schemaInfo is one row of the schema listing.
type schemaInfo struct {
	Type       string   `json:"type"`
	Title      string   `json:"title"`
	Source     string   `json:"source"`
	Version    string   `json:"version_constraint,omitempty"`
	Required   []string `json:"required"`
	Properties int      `json:"properties"`
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the schema of every component type",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry(cmd)
		if err != nil {
			return err
		}

		var infos []schemaInfo
		for _, t := range document.ValidTypes {
			s, err := r.Schemas().Get(t)
			if err != nil {
				r.Logger().Warn("no schema", "type", t, "error", err)
				continue
			}
			info := schemaInfo{
				Type:       string(t),
				Title:      s.Title,
				Source:     s.Source,
				Required:   s.RequiredFields(),
				Properties: len(s.PropertyNames()),
			}
			if s.VersionConstraint != nil {
				info.Version = s.VersionConstraint.String()
			}
			infos = append(infos, info)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), infos)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TYPE\tVERSION\tREQUIRED\tSOURCE")
		for _, info := range infos {
			version := info.Version
			if version == "" {
				version = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", info.Type, version, len(info.Required), info.Source)
		}
		return w.Flush()
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show <type>",
	Short: "Print the schema of a component type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := document.ParseType(args[0])
		if err != nil {
			return err
		}
		r, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		s, err := r.Schemas().Get(t)
		if err != nil {
			return err
		}
		data, err := s.MarshalIndent()
		if err != nil {
			return fmt.Errorf("encoding %s schema: %w", t, err)
		}
		if !jsonOutput {
			fmt.Fprintf(cmd.OutOrStdout(), "# %s (%s)\n", s.Title, s.Source)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}
