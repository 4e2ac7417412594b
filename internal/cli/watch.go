package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/watcher"
)

var watchDebounce time.Duration

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "Quiet period before a batch of changes is applied (default from corpus config)")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index cache fresh while files change",
	Long: `Watch the corpus root and refresh the index cache as files change.

Changes are collected until the corpus has been quiet for the debounce
period, then the affected sections are invalidated and recomputed. A change
to the corpus config, or to a file no section covers, rebuilds every
section. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		s, err := openCacheSession(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := s.close(); err == nil {
				err = cerr
			}
		}()

		ctx := cmd.Context()
		corpus := s.reg.Corpus()
		logger := s.reg.Logger()

		if err := s.cache.RefreshStale(ctx); err != nil {
			return err
		}

		debounce := watchDebounce
		if debounce <= 0 {
			debounce = time.Duration(corpus.Watch.DebounceMS) * time.Millisecond
		}
		w, err := watcher.New(watcher.Config{
			Root:     corpus.Root,
			Debounce: debounce,
			Skip:     s.reg.Ignored,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		batches, err := w.Start(ctx)
		if err != nil {
			return err
		}
		defer w.Stop()

		var configFiles []string
		if corpus.File != "" {
			if rel, ok := s.reg.Rel(corpus.File); ok {
				configFiles = append(configFiles, rel)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", corpus.Root)
		for b := range batches {
			out, err := watcher.Apply(ctx, s.cache, b, configFiles...)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				logger.Error("refreshing index", "error", err)
				continue
			}
			switch {
			case out.Rebuilt:
				fmt.Fprintf(cmd.OutOrStdout(), "%d changed, rebuilt every section\n", out.Paths)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%d changed, refreshed %s\n", out.Paths, strings.Join(out.Affected, ", "))
			}
			if err := flushMetrics(s.reg, s.metrics, nil); err != nil {
				logger.Warn("writing metrics", "error", err)
			}
		}
		return nil
	},
}
