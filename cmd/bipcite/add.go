package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bipcite/internal/clipboard"
	"github.com/matsen/bipcite/internal/completion"
	"github.com/matsen/bipcite/internal/pdf"
	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/provider/doi"
	"github.com/matsen/bipcite/internal/reference"
)

var (
	addTo        string
	addClipboard bool
)

func init() {
	addCmd.Flags().BoolVar(&addClipboard, "clipboard", false, "Read the DOI from the clipboard")
	addCmd.Flags().StringVar(&addTo, "to", "", "Bibliography file to append to (default: the document's first bibliography)")
	addPDFCmd.Flags().StringVar(&addTo, "to", "", "Bibliography file to append to (default: the document's first bibliography)")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(addPDFCmd)
}

var addCmd = &cobra.Command{
	Use:   "add [doi]",
	Short: "Resolve a DOI and append it to a bibliography",
	Long: `Resolve a DOI and append the entry to a bibliography file.

The entry gets an id that is free in the document's catalogue. The format
follows the file extension: .bib (BibTeX), .json (CSL-JSON) or .yaml/.yml
(CSL-YAML). A DOI the catalogue already has is reported, not duplicated.

Without --to, the document's first bibliography is used, then the
configured default_bibliography, then references.bib next to the document.

Examples:
  bipcite --doc paper.md add 10.1126/science.abf4063
  bipcite add doi:10.1126/science.abf4063 --to refs.bib
  bipcite --doc paper.md add --clipboard`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdd,
}

var addPDFCmd = &cobra.Command{
	Use:   "add-pdf <pdf>",
	Short: "Find the DOI in a PDF and append its entry to a bibliography",
	Long: `Extract the DOI from the first pages of a PDF, resolve it and append
the entry to a bibliography file, as 'bipcite add' does.

When no DOI is found, the guessed title is reported so it can be searched
with 'bipcite complete -p crossref'.

Example:
  bipcite --doc paper.md add-pdf ~/Downloads/smith2020.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runAddPDF,
}

// AddResponse is the add and add-pdf output.
type AddResponse struct {
	ID           string `json:"id"`
	Bibliography string `json:"bibliography,omitempty"`
	// Existing is set when the catalogue already had the DOI.
	Existing bool `json:"existing,omitempty"`
	// AddedBibliography is set when the document did not list Bibliography;
	// its front matter needs updating.
	AddedBibliography bool            `json:"added_bibliography,omitempty"`
	Entry             reference.Entry `json:"entry"`
}

func runAdd(cmd *cobra.Command, args []string) error {
	var raw string
	switch {
	case len(args) == 1:
		raw = args[0]
	case addClipboard:
		text, err := clipboard.Read()
		if err != nil {
			exitWithError(ExitError, "reading clipboard: %v", err)
		}
		raw = strings.TrimSpace(text)
	default:
		exitWithError(ExitError, "give a DOI or --clipboard")
	}

	doiStr := reference.StripDOIPrefix(raw)
	if !reference.LooksLikeDOI(doiStr) {
		exitWithError(ExitDataError, "not a DOI: %s", truncateString(raw, SearchTitleMaxLen))
	}
	return addDOI(cmd.Context(), doiStr)
}

func runAddPDF(cmd *cobra.Command, args []string) error {
	path := args[0]
	doiStr, err := pdf.ExtractDOI(path)
	if err != nil {
		exitWithError(ExitDataError, "reading %s: %v", path, err)
	}
	if doiStr == "" {
		if title, _ := pdf.ExtractTitle(path); title != "" {
			exitWithError(ExitNotFound, "no DOI found in %s (title looks like %q)", path, title)
		}
		exitWithError(ExitNotFound, "no DOI found in %s", path)
	}
	return addDOI(cmd.Context(), doiStr)
}

func addDOI(ctx context.Context, doiStr string) error {
	s := mustOpenSession(ctx)
	defer s.close()
	s.mustRefresh(ctx)

	target := completion.Target{Bibliography: addTo}
	if target.Bibliography == "" && len(s.doc.Bibliographies) == 0 {
		target.Bibliography = s.settings.Global.DefaultBibliography
	}

	cand := provider.Candidate{Provider: doi.Key, Remote: true, Entry: reference.Entry{DOI: doiStr}}
	res, err := s.orchestrator.Commit(ctx, s.doc, cand, target)
	if err != nil {
		exitWithError(commitExitCode(err), "adding %s: %v", doiStr, err)
	}

	if humanOutput {
		printCommit(res)
		return nil
	}
	return outputJSON(AddResponse{
		ID:                res.Entry.ID,
		Bibliography:      res.Bibliography,
		Existing:          res.Bibliography == "",
		AddedBibliography: res.AddedBibliography,
		Entry:             res.Entry,
	})
}

func printCommit(res completion.CommitResult) {
	if res.Bibliography == "" {
		fmt.Printf("Using %s\n", res.Entry.ID)
		return
	}
	fmt.Printf("Added %s to %s\n", res.Entry.ID, res.Bibliography)
	if res.AddedBibliography {
		fmt.Printf("The document does not list %s; add it to the front matter bibliography.\n", res.Bibliography)
	}
}
