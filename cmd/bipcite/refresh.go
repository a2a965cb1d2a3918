package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(refreshCmd)
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Load the catalogue and report its sources",
	Long: `Load every catalogue provider for the document and report how many
entries each contributes after deduplication, plus any load warning.

The personal library is fetched incrementally; its SQLite cache lets the
catalogue work offline.

Example:
  bipcite --doc paper.md refresh --human`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

// SourceCount is the number of catalogue entries from one provider.
type SourceCount struct {
	Provider string `json:"provider"`
	Entries  int    `json:"entries"`
}

// RefreshResponse is the refresh command output.
type RefreshResponse struct {
	Entries int           `json:"entries"`
	Sources []SourceCount `json:"sources"`
	Warning string        `json:"warning,omitempty"`
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := mustOpenSession(ctx)
	defer s.close()
	s.mustRefresh(ctx)

	entries := s.manager.Entries()
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.ProviderKey]++
	}
	resp := RefreshResponse{Entries: len(entries), Sources: []SourceCount{}, Warning: s.manager.Warning()}
	for p, n := range counts {
		resp.Sources = append(resp.Sources, SourceCount{Provider: p, Entries: n})
	}
	sort.Slice(resp.Sources, func(i, j int) bool { return resp.Sources[i].Provider < resp.Sources[j].Provider })

	if humanOutput {
		fmt.Printf("%d entries\n", resp.Entries)
		for _, src := range resp.Sources {
			fmt.Printf("  %-10s %d\n", src.Provider, src.Entries)
		}
		return nil
	}
	return outputJSON(resp)
}
