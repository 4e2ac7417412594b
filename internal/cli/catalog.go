package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/catalog"
	"github.com/agentx-labs/capreg/internal/document"
	"github.com/agentx-labs/capreg/internal/metrics"
	"github.com/agentx-labs/capreg/internal/registry"
	"github.com/agentx-labs/capreg/internal/report"
)

var catalogOutDir string

func init() {
	catalogCmd.Flags().StringVar(&catalogOutDir, "out", "", "Write <type>.json files (and combined.json) to this directory")
	rootCmd.AddCommand(catalogCmd)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog [type]",
	Short: "Generate the catalog of one or every component type",
	Long: `Generate the id -> entry catalog of a component type, or of every type.

With --out, one JSON file per type is written to the directory, plus
combined.json when every type is generated. Documents that cannot be
parsed are left out of the catalog and reported as warnings.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry(cmd)
		if err != nil {
			return err
		}

		var cats map[document.ComponentType]*catalog.Catalog
		var batch report.Batch
		if len(args) == 1 {
			t, err := document.ParseType(args[0])
			if err != nil {
				return err
			}
			cat, b, err := r.Catalog(cmd.Context(), t)
			if err != nil {
				return err
			}
			cats, batch = map[document.ComponentType]*catalog.Catalog{t: cat}, b
		} else {
			cats, batch, err = r.Catalogs(cmd.Context())
			if err != nil {
				return err
			}
		}
		for _, it := range batch.Failed() {
			r.Logger().Warn("document left out of catalog", "path", it.Path, "kind", it.Kind)
		}

		if catalogOutDir != "" {
			if err := writeCatalogs(cmd, cats, len(args) == 0); err != nil {
				return err
			}
		} else if err := printCatalogs(cmd, cats, len(args) == 0); err != nil {
			return err
		}

		return writeMetrics(r, func(m *metrics.Recorder) {
			m.ObserveCatalogs(cats)
			m.ObserveBatch(batch)
		})
	},
}

func writeCatalogs(cmd *cobra.Command, cats map[document.ComponentType]*catalog.Catalog, combined bool) error {
	if err := os.MkdirAll(catalogOutDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", catalogOutDir, err)
	}
	write := func(name string, c *catalog.Catalog) error {
		path := filepath.Join(catalogOutDir, name+".json")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		if err := c.WriteJSON(f); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d entries)\n", path, c.Len())
		return nil
	}

	for _, t := range document.ValidTypes {
		if c, ok := cats[t]; ok {
			if err := write(string(t), c); err != nil {
				return err
			}
		}
	}
	if combined {
		return write("combined", catalog.Combined(cats))
	}
	return nil
}

func printCatalogs(cmd *cobra.Command, cats map[document.ComponentType]*catalog.Catalog, combined bool) error {
	c := catalog.Combined(cats)
	if !combined {
		for _, only := range cats {
			c = only
		}
	}
	if jsonOutput {
		return c.WriteJSON(cmd.OutOrStdout())
	}
	return printEntries(cmd, c.Entries)
}

func printEntries(cmd *cobra.Command, entries []catalog.Entry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TYPE\tID\tVERSION\tDESCRIPTION")
	for _, e := range entries {
		version := e.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Type, e.ID, version, truncate(e.Description, 60))
	}
	return w.Flush()
}

// catalogSection names the cache section for an optional type filter.
func catalogSection(typeName string) (string, error) {
	if typeName == "" {
		return registry.CombinedSection, nil
	}
	t, err := document.ParseType(typeName)
	if err != nil {
		return "", err
	}
	return registry.CatalogSection(t), nil
}
