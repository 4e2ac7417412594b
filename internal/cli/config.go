package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/branding"
	"github.com/agentx-labs/capreg/internal/config"
)

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configCorpusCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage user settings and show the corpus config",
	Long: `Read and write user settings stored at ~/` + branding.HomeDir() + `/config.yaml, or print the
effective configuration of the current corpus.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a user setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		config.Load()
		key, value := args[0], args[1]
		if err := config.Set(key, value); err != nil {
			return fmt.Errorf("setting config key %q: %w", key, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a user setting, or every setting",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config.Load()
		if len(args) == 1 {
			fmt.Fprintln(cmd.OutOrStdout(), config.Get(args[0]))
			return nil
		}
		keys := config.Keys()
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", k, config.Get(k))
		}
		return nil
	},
}

var configCorpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Print the effective corpus config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCorpus()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, c)
		}
		source := c.File
		if source == "" {
			source = "defaults"
		}
		fmt.Fprintf(out, "root:   %s\nsource: %s\n\n", c.Root, source)
		return printYAML(out, c)
	},
}
