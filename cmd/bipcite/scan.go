package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/bipcite/internal/citation"
)

var scanUnresolved bool

func init() {
	scanCmd.Flags().BoolVar(&scanUnresolved, "unresolved", false, "Only report cite-ids missing from the catalogue")
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the citations in the document",
	Long: `Scan the --doc document for Pandoc citations ([@id], [see @a, p. 3; @b])
and report each citation span and its cite-ids. Positions are character
offsets into the document text. Each id is checked against the catalogue.

Exits with code 4 when --unresolved is given and some id does not resolve.

Examples:
  bipcite --doc paper.md scan
  bipcite --doc paper.md scan --unresolved --human`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

// ScannedID is one cite-id of a citation.
type ScannedID struct {
	ID       string `json:"id"`
	From     int    `json:"from"`
	To       int    `json:"to"`
	Resolved bool   `json:"resolved"`
}

// ScannedCitation is one citation span.
type ScannedCitation struct {
	From     int         `json:"from"`
	To       int         `json:"to"`
	Text     string      `json:"text"`
	Validity string      `json:"validity"`
	IDs      []ScannedID `json:"ids"`
}

// ScanResponse is the scan command output.
type ScanResponse struct {
	Citations  []ScannedCitation `json:"citations"`
	Unresolved []string          `json:"unresolved,omitempty"`
	Warning    string            `json:"warning,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	if docPath == "" {
		exitWithError(ExitError, "scan needs a document (--doc)")
	}
	ctx := cmd.Context()
	s := mustOpenSession(ctx)
	defer s.close()
	s.mustRefresh(ctx)

	resp := scanCitations(citation.NewEngine(s.text), func(id string) bool {
		_, ok := s.manager.FindByID(id)
		return ok
	})
	resp.Warning = s.manager.Warning()

	if scanUnresolved {
		if humanOutput {
			for _, id := range resp.Unresolved {
				outputHuman("%s\n", id)
			}
		} else {
			outputJSON(resp.Unresolved)
		}
		if len(resp.Unresolved) > 0 {
			s.close()
			os.Exit(ExitNotFound)
		}
		return nil
	}

	if humanOutput {
		for _, c := range resp.Citations {
			fmt.Printf("%d-%d  %s\n", c.From, c.To, c.Text)
			for _, id := range c.IDs {
				mark := "ok"
				if !id.Resolved {
					mark = "missing"
				}
				fmt.Printf("    @%s  %s\n", id.ID, mark)
			}
		}
		fmt.Printf("\n%d citations, %d unresolved ids\n", len(resp.Citations), len(resp.Unresolved))
		return nil
	}
	return outputJSON(resp)
}

// scanCitations reports the marks of eng, checking each id with resolves.
// Unresolved lists each missing id once, in document order.
func scanCitations(eng *citation.Engine, resolves func(id string) bool) ScanResponse {
	text := []rune(eng.Text())
	resp := ScanResponse{Citations: []ScannedCitation{}}
	seen := make(map[string]bool)
	for _, m := range eng.Marks() {
		c := ScannedCitation{
			From:     m.From,
			To:       m.To,
			Text:     string(text[m.From:m.To]),
			Validity: m.Validity.String(),
		}
		for _, r := range m.IDs {
			id := citeID(string(text[r.From:r.To]))
			ok := id != "" && resolves(id)
			c.IDs = append(c.IDs, ScannedID{ID: id, From: r.From, To: r.To, Resolved: ok})
			if !ok && id != "" && !seen[id] {
				seen[id] = true
				resp.Unresolved = append(resp.Unresolved, id)
			}
		}
		resp.Citations = append(resp.Citations, c)
	}
	return resp
}

// citeID strips the "@" or "-@" prefix of a cite-id range.
func citeID(s string) string {
	if len(s) > 0 && s[0] == '-' {
		s = s[1:]
	}
	if len(s) > 0 && s[0] == '@' {
		s = s[1:]
	}
	return s
}
