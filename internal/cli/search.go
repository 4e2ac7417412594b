package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentx-labs/capreg/internal/catalog"
)

var (
	searchTypeFilter string
	searchTagFilter  string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the catalog of every component type",
	Long: `Search catalog entries by id, name, description, type and tags.

Every whitespace-separated word of the query must match (case-insensitive
substring). Use --type to restrict to one component type and --tag to keep
entries carrying any of the given tags. Results come from the index cache,
so repeated searches over an unchanged corpus do not re-read documents.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchTypeFilter, "type", "", "Filter by component type (agent, skill, knowledge, ...)")
	searchCmd.Flags().StringVar(&searchTagFilter, "tag", "", "Filter by tags (comma-separated, matches any)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) (err error) {
	query := ""
	if len(args) > 0 {
		query = args[0]
	}
	section, err := catalogSection(searchTypeFilter)
	if err != nil {
		return err
	}

	s, err := openCacheSession(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); err == nil {
			err = cerr
		}
	}()

	res, err := s.cache.Get(cmd.Context(), section)
	if err != nil {
		return err
	}
	var cat catalog.Catalog
	if err := json.Unmarshal(res.Payload, &cat); err != nil {
		return fmt.Errorf("decoding %s: %w", section, err)
	}

	entries := filterEntries(cat.Search(query), parseTags(searchTagFilter))
	if jsonOutput {
		if entries == nil {
			entries = []catalog.Entry{}
		}
		return printJSON(cmd.OutOrStdout(), entries)
	}
	if len(entries) == 0 {
		msg := "No documents found"
		if query != "" {
			msg += fmt.Sprintf(" matching %q", query)
		}
		if searchTypeFilter != "" {
			msg += fmt.Sprintf(" with --type=%s", searchTypeFilter)
		}
		if searchTagFilter != "" {
			msg += fmt.Sprintf(" with --tag=%s", searchTagFilter)
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	}
	return printEntries(cmd, entries)
}

// parseTags splits a comma-separated tag filter into lowercase tags.
func parseTags(filter string) []string {
	var tags []string
	for _, t := range strings.Split(filter, ",") {
		if tag := strings.TrimSpace(t); tag != "" {
			tags = append(tags, strings.ToLower(tag))
		}
	}
	return tags
}

// filterEntries keeps the entries carrying any of tags. No tags keeps all.
func filterEntries(entries []catalog.Entry, tags []string) []catalog.Entry {
	if len(tags) == 0 {
		return entries
	}
	var out []catalog.Entry
	for _, e := range entries {
		if matchesAnyTag(e.Tags, tags) {
			out = append(out, e)
		}
	}
	return out
}

// matchesAnyTag returns true if any of the entry's tags match any of the filter tags.
// Comparison is case-insensitive.
func matchesAnyTag(entryTags []string, filterTags []string) bool {
	for _, ft := range filterTags {
		for _, tt := range entryTags {
			if strings.EqualFold(tt, ft) {
				return true
			}
		}
	}
	return false
}
