package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/resolver"
)

var resolveFrom string

func init() {
	resolveCmd.Flags().StringVar(&resolveFrom, "from", "", "Document the reference appears in (default: the corpus root)")
	rootCmd.AddCommand(resolveCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <ref>",
	Short: "Resolve a textual reference to a corpus file",
	Long: `Resolve a link the way the integrity check does.

The reference is tried as written relative to --from, then normalized
(case, separators, extensions, canonical directories), then fuzzily. The
result names the confidence of the match; a root-relative link that
resolves prints the relative form it should be rewritten to.

Exits with status 1 when the reference is unresolved or ambiguous.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		res, err := r.Resolver()
		if err != nil {
			return err
		}

		origin := ""
		if resolveFrom != "" {
			rel, ok := r.Rel(resolveFrom)
			if !ok {
				return fmt.Errorf("%s is outside the corpus root %s", resolveFrom, r.Root())
			}
			origin = rel
		}
		ref := res.Resolve(args[0], origin)

		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), ref); err != nil {
				return err
			}
		} else {
			printReference(cmd, ref)
		}
		if ref.Err() != nil {
			return errChecksFailed
		}
		return nil
	},
}

func printReference(cmd *cobra.Command, ref resolver.Reference) {
	out := cmd.OutOrStdout()
	switch ref.Confidence {
	case resolver.Unresolved:
		fmt.Fprintf(out, "%s: unresolved\n", ref.Raw)
	case resolver.External:
		fmt.Fprintf(out, "%s: external\n", ref.Raw)
	case resolver.Ambiguous:
		fmt.Fprintf(out, "%s: ambiguous\n", ref.Raw)
		fmt.Fprintf(out, "  candidates: %s\n", strings.Join(ref.Candidates, ", "))
	default:
		target := ref.Target
		if ref.Fragment != "" {
			target += "#" + ref.Fragment
		}
		fmt.Fprintf(out, "%s -> %s (%s)\n", ref.Raw, target, ref.Confidence)
	}
	if ref.Rewrite != "" {
		fmt.Fprintf(out, "  suggest: %s\n", ref.Rewrite)
	}
}
