package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/indexcache"
	"github.com/agentx-labs/capreg/internal/metrics"
	"github.com/agentx-labs/capreg/internal/registry"
)

var invalidateNoRefresh bool

func init() {
	indexInvalidateCmd.Flags().BoolVar(&invalidateNoRefresh, "no-refresh", false, "Only report the affected sections")
	indexCmd.AddCommand(indexGetCmd)
	indexCmd.AddCommand(indexRefreshCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexStatusCmd)
	indexCmd.AddCommand(indexInvalidateCmd)
	indexCmd.AddCommand(indexVerifyCmd)
	rootCmd.AddCommand(indexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and refresh the derived-index cache",
	Long: `The index cache keeps derived artifacts (per-type catalogs, the combined
catalog, the reference graph and the integrity report) in sections. Each
section is recomputed only when a file under one of its trigger paths
changes, and is persisted in the cache directory between runs.`,
}

// cacheSession is an open cache with its registry and metrics recorder.
type cacheSession struct {
	reg     *registry.Registry
	cache   *indexcache.Cache
	metrics *metrics.Recorder
}

func openCacheSession(cmd *cobra.Command) (*cacheSession, error) {
	r, err := openRegistry(cmd)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	logger := r.Logger()
	cache, err := r.OpenCache(func(t indexcache.Transition) {
		m.ObserveTransition(t)
		logger.Debug("section transition", "section", t.Section, "from", t.From, "to", t.To)
	})
	if err != nil {
		return nil, err
	}
	return &cacheSession{reg: r, cache: cache, metrics: m}, nil
}

// close releases the cache and writes metrics when configured.
func (s *cacheSession) close() error {
	err := s.cache.Close()
	if merr := flushMetrics(s.reg, s.metrics, nil); err == nil {
		err = merr
	}
	return err
}

var indexGetCmd = &cobra.Command{
	Use:   "get <section>",
	Short: "Print the payload of a section, recomputing it if stale",
	Args:  cobra.ExactArgs(1),
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

		res, err := s.cache.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, res.Payload, "", "  "); err != nil {
			return fmt.Errorf("formatting %s: %w", res.Section, err)
		}
		buf.WriteByte('\n')
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	},
}

var indexRefreshCmd = &cobra.Command{
	Use:   "refresh [section...]",
	Short: "Recompute stale sections, or the named sections unconditionally",
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

		if len(args) == 0 {
			if err := s.cache.RefreshStale(cmd.Context()); err != nil {
				return err
			}
		}
		for _, name := range args {
			if _, err := s.cache.Refresh(cmd.Context(), name); err != nil {
				return err
			}
		}
		return printStatus(cmd, s.cache.Status())
	},
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute every section",
	Args:  cobra.NoArgs,
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

		if err := s.cache.RebuildAll(cmd.Context()); err != nil {
			return err
		}
		return printStatus(cmd, s.cache.Status())
	},
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every section",
	Args:  cobra.NoArgs,
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
		return printStatus(cmd, s.cache.Status())
	},
}

var indexInvalidateCmd = &cobra.Command{
	Use:   "invalidate <path...>",
	Short: "Mark the sections affected by changed paths stale and recompute them",
	Args:  cobra.MinimumNArgs(1),
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

		affected := make(map[string][]string, len(args))
		for _, p := range args {
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			affected[p] = s.cache.Invalidate(abs)
		}
		if !invalidateNoRefresh {
			if err := s.cache.RefreshStale(cmd.Context()); err != nil {
				return err
			}
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), affected)
		}
		for _, p := range args {
			sections := affected[p]
			if len(sections) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no sections\n", p)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", p, strings.Join(sections, ", "))
		}
		return nil
	},
}

var indexVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare every persisted section with the corpus on disk",
	Long: `Recompute the signature of every section and report the sections whose
persisted payload no longer matches the corpus. Nothing is recomputed.

Exits with status 1 when any section is stale.`,
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

		stale, err := s.cache.Verify()
		if err != nil {
			return err
		}
		if jsonOutput {
			if stale == nil {
				stale = []string{}
			}
			if err := printJSON(cmd.OutOrStdout(), stale); err != nil {
				return err
			}
		} else if len(stale) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "All sections are fresh.")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Stale sections: %s\n", strings.Join(stale, ", "))
		}
		if len(stale) > 0 {
			return errChecksFailed
		}
		return nil
	},
}

func printStatus(cmd *cobra.Command, status []indexcache.Status) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), status)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SECTION\tSTATE\tCOMPUTED\tSIGNATURE\tERROR")
	for _, st := range status {
		computed, sig := "-", "-"
		if !st.ComputedAt.IsZero() {
			computed = st.ComputedAt.Local().Format(time.DateTime)
		}
		if st.Signature != "" {
			sig = st.Signature
			if len(sig) > 12 {
				sig = sig[:12]
			}
		}
		errText := st.Error
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", st.Name, st.State, computed, sig, errText)
	}
	return w.Flush()
}
