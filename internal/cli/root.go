package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/agentx-labs/capreg/internal/branding"
	"github.com/agentx-labs/capreg/internal/config"
	"github.com/agentx-labs/capreg/internal/metrics"
	"github.com/agentx-labs/capreg/internal/registry"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

// Persistent flags shared by every command.
var (
	rootDir     string
	configFile  string
	verbose     bool
	jsonOutput  bool
	metricsFile string
)

// errChecksFailed is returned after a command has already printed why the
// corpus failed. It only sets the exit status.
var errChecksFailed = errors.New("checks failed")

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` validates capability documents (agents, skills, knowledge, workflows,
blueprints, ...) against their schemas, resolves the references between them,
and keeps derived catalogs and the reference graph up to date.

The corpus root is the nearest directory holding a ` + branding.CorpusFile() + `.yaml file, or the
current directory when there is none. Use --root to point elsewhere.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootDir, "root", "", "Corpus root (default: nearest directory with a corpus config)")
	pf.StringVar(&configFile, "config", "", "Corpus config file (default: <root>/"+branding.CorpusFile()+".yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	pf.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics for this run to a textfile")
}

// Execute runs the root command with build info injected via ldflags.
// SIGINT and SIGTERM cancel the command context.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errChecksFailed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// loadCorpus reads the corpus config selected by the persistent flags, with
// the user settings as defaults. Each adjust function may override values from command flags.
func loadCorpus(adjust ...func(*config.Corpus)) (*config.Corpus, error) {
	root := rootDir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		root = config.FindRoot(wd)
	}
	config.Load()
	c, err := config.LoadCorpus(root, configFile, config.UserDefaults())
	if err != nil {
		return nil, err
	}
	for _, fn := range adjust {
		fn(c)
	}
	return c, c.Validate()
}

// openRegistry loads the corpus and opens a registry over it. Logs go to
// the command's stderr.
func openRegistry(cmd *cobra.Command, adjust ...func(*config.Corpus)) (*registry.Registry, error) {
	c, err := loadCorpus(adjust...)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cmd.ErrOrStderr(), c.LogLevel, verbose)
	return registry.New(c, registry.WithLogger(logger))
}

// metricsPath returns the textfile to write, the flag winning over the
// corpus config. "" disables metrics.
func metricsPath(r *registry.Registry) string {
	if metricsFile != "" {
		return metricsFile
	}
	return r.Corpus().MetricsFile
}

// writeMetrics records one run when a metrics textfile is configured.
func writeMetrics(r *registry.Registry, observe func(m *metrics.Recorder)) error {
	return flushMetrics(r, metrics.New(), observe)
}

// flushMetrics writes m after observe has run. observe may be nil.
func flushMetrics(r *registry.Registry, m *metrics.Recorder, observe func(m *metrics.Recorder)) error {
	path := metricsPath(r)
	if path == "" {
		return nil
	}
	if observe != nil {
		observe(m)
	}
	if err := m.WriteFile(path); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// truncate shortens s to n runes for table output.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
