package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/branding"
	"github.com/agentx-labs/capreg/internal/config"
)

var (
	initForce       bool
	initNoGitignore bool
)

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing corpus config")
	initCmd.Flags().BoolVar(&initNoGitignore, "no-gitignore", false, "Do not add the cache directory to .gitignore")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a corpus config with the default roots",
	Long: `Write ` + branding.CorpusFile() + `.yaml to the given directory (default: the current
directory) with every setting at its default value, so the roots per type,
excluded paths and cache settings can be edited in one place. The cache
directory is added to .gitignore.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", dir, err)
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", abs, err)
		}

		c := config.Default(abs)
		path := filepath.Join(abs, branding.CorpusFile()+".yaml")
		if err := c.WriteFile(path, initForce); err != nil {
			if !initForce {
				return fmt.Errorf("%w (use --force to overwrite)", err)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)

		if !initNoGitignore {
			changed, err := config.IgnoreInGit(abs, c.Cache.Dir)
			if err != nil {
				return err
			}
			if changed {
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s to .gitignore\n", c.Cache.Dir)
			}
		}
		return nil
	},
}
