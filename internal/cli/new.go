package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/scaffold"
)

var (
	newGroup       string
	newDescription string
	newForce       bool
)

func init() {
	newCmd.Flags().StringVar(&newGroup, "group", scaffold.DefaultGroup, "Skill pattern directory (skills only)")
	newCmd.Flags().StringVar(&newDescription, "description", "", "Description to fill in")
	newCmd.Flags().BoolVar(&newForce, "force", false, "Overwrite an existing document")
	rootCmd.AddCommand(newCmd)
}

var newCmd = &cobra.Command{
	Use:   "new <type> <name>",
	Short: "Create a new document from its schema",
	Long: `Create a document skeleton at the conventional location for its type,
with every field the type's schema requires already present.

Examples:
  capreg new agent code-reviewer --description "Reviews pull requests"
  capreg new skill lint --group quality
  capreg new knowledge go-style`,
	Args: cobra.ExactArgs(2),
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

		result, err := scaffold.Generate(r.Root(), scaffold.Request{
			Type:        t,
			Name:        args[1],
			Group:       newGroup,
			Description: newDescription,
			Force:       newForce,
		}, s, r.Validator())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, result)
		}
		fmt.Fprintf(out, "Created %s %s at %s\n", t, args[1], result.Path)
		if len(result.Warnings) > 0 {
			fmt.Fprintln(out, "\nFill in before committing:")
			for _, w := range result.Warnings {
				fmt.Fprintf(out, "  %s\n", w)
			}
		}
		return nil
	},
}
