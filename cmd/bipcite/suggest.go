package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/bipcite/internal/citekey"
	"github.com/matsen/bipcite/internal/reference"
)

var (
	suggestAuthors []string
	suggestYear    string
)

func init() {
	suggestCmd.Flags().StringArrayVarP(&suggestAuthors, "author", "a", nil, "Author name, \"Family, Given\" or \"Given Family\" (repeatable)")
	suggestCmd.Flags().StringVar(&suggestYear, "year", "", "Issued date: YYYY, YYYY-MM or YYYY-MM-DD")
	rootCmd.AddCommand(suggestCmd)
}

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest a citation id that is free in the catalogue",
	Long: `Suggest a citation id from the first author's family name and the year.

The id is lowercased with diacritics and punctuation removed. When it is
already taken in the document's catalogue, a letter suffix is added
(smith2020a, smith2020b, ...).

Examples:
  bipcite --doc paper.md suggest -a "Smith, Jane" --year 2020
  bipcite suggest -a "Müller" -a "Lee" --year 2019-04`,
	Args: cobra.NoArgs,
	RunE: runSuggest,
}

// SuggestResponse is the suggest command output.
type SuggestResponse struct {
	ID   string `json:"id"`
	Seed string `json:"seed"`
}

func runSuggest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := mustOpenSession(ctx)
	defer s.close()
	s.mustRefresh(ctx)

	authors := make([]reference.Author, 0, len(suggestAuthors))
	for _, name := range suggestAuthors {
		authors = append(authors, reference.ParseAuthorName(name))
	}
	issued := reference.ParsePartialDate(suggestYear)

	resp := SuggestResponse{
		ID:   citekey.Suggest(s.manager.IDs(), authors, issued),
		Seed: citekey.Seed(authors, issued),
	}
	if humanOutput {
		outputHuman("%s\n", resp.ID)
		return nil
	}
	return outputJSON(resp)
}
