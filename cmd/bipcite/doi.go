package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/bipcite/internal/citekey"
	"github.com/matsen/bipcite/internal/completion"
	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/reference"
)

var doiFormat string

func init() {
	doiCmd.Flags().StringVar(&doiFormat, "format", "json", "Output format: json, bibtex, csl-json or csl-yaml")
	rootCmd.AddCommand(doiCmd)
}

var doiCmd = &cobra.Command{
	Use:   "doi <doi>",
	Short: "Resolve a DOI to citation metadata",
	Long: `Resolve a DOI through doi.org content negotiation.

The DOI may be bare (10.1234/x), prefixed (doi:10.1234/x) or a doi.org
URL. Resolutions are cached; set BIPCITE_REDIS_ADDR to share the cache
between processes. The output also says whether the document's catalogue
already has the DOI and which id a new entry would get.

Examples:
  bipcite doi 10.1126/science.abf4063
  bipcite --doc paper.md doi https://doi.org/10.1126/science.abf4063 --format bibtex`,
	Args: cobra.ExactArgs(1),
	RunE: runDOI,
}

// DOIResponse is the doi command output.
type DOIResponse struct {
	DOI string `json:"doi"`
	// InCatalogue is the id of the catalogue entry with this DOI, if any.
	InCatalogue string          `json:"in_catalogue,omitempty"`
	SuggestedID string          `json:"suggested_id,omitempty"`
	Cached      bool            `json:"cached,omitempty"`
	Entry       reference.Entry `json:"entry"`
}

func runDOI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := mustOpenSession(ctx)
	defer s.close()

	doiStr := reference.StripDOIPrefix(args[0])
	if !reference.LooksLikeDOI(doiStr) {
		exitWithError(ExitDataError, "not a DOI: %s", args[0])
	}

	s.mustRefresh(ctx)
	resp := DOIResponse{DOI: doiStr}
	if existing, ok := s.manager.FindByDOI(doiStr); ok {
		resp.InCatalogue = existing.ID
	}

	r := s.resolver.FetchCSL(ctx, doiStr, completion.DefaultResolveTimeout)
	if r.Status != provider.StatusOK {
		exitWithError(statusExitCode(r.Status), "%s", r.Message)
	}
	resp.Entry = r.Entry
	resp.Cached = r.Cached
	if resp.InCatalogue == "" {
		resp.SuggestedID = citekey.SuggestFor(s.manager.IDs(), r.Entry)
		resp.Entry.ID = resp.SuggestedID
	} else {
		resp.Entry.ID = resp.InCatalogue
	}

	if doiFormat != "json" {
		return printEntryFormat(resp.Entry, doiFormat)
	}
	if humanOutput {
		printEntryDetail(resp.Entry)
		fmt.Println()
		if resp.InCatalogue != "" {
			fmt.Printf("Already in catalogue as %s\n", resp.InCatalogue)
		} else {
			fmt.Printf("Not in catalogue; would be added as %s\n", resp.SuggestedID)
		}
		return nil
	}
	return outputJSON(resp)
}

// statusExitCode maps a remote status to an exit code.
func statusExitCode(st provider.Status) int {
	switch st {
	case provider.StatusOK:
		return ExitSuccess
	case provider.StatusNotFound:
		return ExitNotFound
	case provider.StatusNoHost:
		return ExitNoHost
	default:
		return ExitError
	}
}
