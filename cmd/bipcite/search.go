package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/bipcite/internal/index"
	"github.com/matsen/bipcite/internal/reference"
)

var (
	searchLimit int
	searchExact bool
)

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", DefaultSearchLimit, "Maximum results to return")
	searchCmd.Flags().BoolVar(&searchExact, "exact", false, "Match the query exactly against ids and names instead of fuzzily")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the document's catalogue",
	Long: `Search the merged catalogue of the document.

Every whitespace-separated term must match one of: id, author family,
given or literal name, title, or issued year. Matches on the id rank
highest, then author names, then title and year. An empty query lists
the catalogue in id order.

With --exact, the query must equal the id (case-sensitive) or another
field (case- and diacritic-insensitive).

Examples:
  bipcite --doc paper.md search "smith phylogen"
  bipcite --doc paper.md search --exact smith2020
  bipcite --doc paper.md search --limit 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

// SearchHit is one ranked catalogue entry.
type SearchHit struct {
	Score float64         `json:"score"`
	Entry reference.Entry `json:"entry"`
}

// SearchResponse is the search command output.
type SearchResponse struct {
	Query   string      `json:"query"`
	Hits    []SearchHit `json:"hits"`
	Warning string      `json:"warning,omitempty"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := mustOpenSession(ctx)
	defer s.close()
	s.mustRefresh(ctx)

	var query string
	if len(args) > 0 {
		query = args[0]
	}

	var results []index.Result
	if searchExact {
		for _, e := range s.manager.SearchExact(query) {
			results = append(results, index.Result{Entry: e})
		}
		if searchLimit > 0 && len(results) > searchLimit {
			results = results[:searchLimit]
		}
	} else {
		results = s.manager.SearchResults(query, searchLimit)
	}

	if humanOutput {
		if len(results) == 0 {
			outputHuman("No matching entries.\n")
			return nil
		}
		fmt.Printf("%d entries\n\n", len(results))
		for i, r := range results {
			printEntryLine(i+1, r.Entry, r.Score)
		}
		return nil
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{Score: r.Score, Entry: r.Entry})
	}
	return outputJSON(SearchResponse{Query: query, Hits: hits, Warning: s.manager.Warning()})
}
