package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/bipcite/internal/citation"
	"github.com/matsen/bipcite/internal/completion"
	"github.com/matsen/bipcite/internal/document"
	"github.com/matsen/bipcite/internal/provider"
)

var (
	completeAt       int
	completeProvider string
	completeLimit    int
	completeCommit   int
	completeTo       string
	completeWrite    bool
)

func init() {
	completeCmd.Flags().IntVar(&completeAt, "at", -1, "Complete the cite-id under this character offset of --doc")
	completeCmd.Flags().StringVarP(&completeProvider, "provider", "p", "", "Also search a remote provider: crossref, datacite, pubmed or doi")
	completeCmd.Flags().IntVar(&completeLimit, "limit", DefaultSearchLimit, "Maximum local candidates")
	completeCmd.Flags().IntVar(&completeCommit, "commit", 0, "Commit the Nth candidate (1-based) of the final batch")
	completeCmd.Flags().StringVar(&completeTo, "to", "", "Bibliography file that receives a committed remote entry")
	completeCmd.Flags().BoolVar(&completeWrite, "write", false, "With --at and --commit, write the completed citation back to --doc")
	rootCmd.AddCommand(completeCmd)
}

var completeCmd = &cobra.Command{
	Use:   "complete [token]",
	Short: "Complete a cite-id from the catalogue and remote providers",
	Long: `Complete a partial cite-id.

Local candidates are reported first; the catalogue is then refreshed and,
with --provider, the remote service is searched. Remote hits carry a
suggested id that is free in the catalogue. A DOI-shaped token is looked
up by DOI. A token that is already a catalogue id completes to nothing.

With --at, the token is taken from the citation under that character
offset of the --doc document instead of the argument.

With --commit N, the Nth candidate is accepted: a remote entry is resolved
and appended to the bibliography (--to, else the document's first
bibliography, else references.bib next to the document), and with --at
the id replaces the token. --write saves the document, adding a new
bibliography file to its front matter.

Examples:
  bipcite --doc paper.md complete smi
  bipcite --doc paper.md complete "phylogenetic inference" -p crossref
  bipcite --doc paper.md complete --at 120 -p crossref --commit 1 --write`,
	Args: cobra.MaximumNArgs(1),
	RunE: runComplete,
}

// CompleteResponse is the complete command output.
type CompleteResponse struct {
	Token     string                   `json:"token"`
	Immediate completion.Batch         `json:"immediate"`
	Streamed  *completion.Batch        `json:"streamed,omitempty"`
	Committed *completion.CommitResult `json:"committed,omitempty"`
}

func runComplete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := mustOpenSession(ctx)
	defer s.close()

	if completeProvider != "" {
		if _, ok := s.orchestrator.Searcher(completeProvider); !ok {
			exitWithError(ExitError, "unknown provider: %s", completeProvider)
		}
	}

	orch := s.orchestrator
	var eng *citation.Engine
	var target completion.Target
	req := completion.Request{Selected: completeProvider, Limit: completeLimit}

	switch {
	case completeAt >= 0:
		if docPath == "" {
			exitWithError(ExitError, "--at needs a document (--doc)")
		}
		eng = citation.NewEngine(s.text)
		tok, ok := eng.TokenAt(completeAt)
		if !ok {
			exitWithError(ExitDataError, "no cite-id at offset %d", completeAt)
		}
		req.Token = tok.Text
		req.Stale = eng.Stale(tok)
		target.RangeID = tok.RangeID
		orch = s.orchestrate(completion.WithInserter(eng))
	case len(args) == 1:
		req.Token = citeID(strings.TrimSpace(args[0]))
	}
	target.Bibliography = completeTo
	if target.Bibliography == "" && len(s.doc.Bibliographies) == 0 {
		target.Bibliography = s.settings.Global.DefaultBibliography
	}

	resp := CompleteResponse{Token: req.Token}
	err := orch.Complete(ctx, s.doc, req, completion.Callbacks{
		OnImmediate: func(b completion.Batch) { resp.Immediate = b },
		OnStreamed:  func(b completion.Batch) { resp.Streamed = &b },
	})
	if err != nil && !errors.Is(err, completion.ErrStale) {
		exitWithError(ExitError, "completing %q: %v", req.Token, err)
	}

	if completeCommit > 0 {
		final := resp.Immediate
		if resp.Streamed != nil {
			final = *resp.Streamed
		}
		if completeCommit > len(final.Candidates) {
			exitWithError(ExitError, "no candidate %d (have %d)", completeCommit, len(final.Candidates))
		}
		res, err := orch.Commit(ctx, s.doc, final.Candidates[completeCommit-1], target)
		if err != nil {
			exitWithError(commitExitCode(err), "committing: %v", err)
		}
		resp.Committed = &res
		if completeWrite && eng != nil {
			text, err := committedText(eng.Text(), s.doc, res)
			if err != nil {
				exitWithError(ExitDataError, "updating front matter: %v", err)
			}
			if err := writeDocument(docPath, text); err != nil {
				exitWithError(ExitDataError, "writing document: %v", err)
			}
		}
	}

	if humanOutput {
		printCompletion(resp)
		return nil
	}
	return outputJSON(resp)
}

func printCompletion(resp CompleteResponse) {
	final := resp.Immediate
	if resp.Streamed != nil {
		final = *resp.Streamed
	}
	for _, rs := range final.Remote {
		if rs.Status != provider.StatusOK && rs.Message != "" {
			warnHuman(rs.Message)
		}
	}
	if final.Warning != "" {
		warnHuman(final.Warning)
	}
	if len(final.Candidates) == 0 {
		outputHuman("No candidates.\n")
	}
	for i, c := range final.Candidates {
		e := c.Entry
		if c.Remote {
			e.ProviderKey = c.Provider + ", new"
		}
		printEntryLine(i+1, e, c.Score)
	}
	if resp.Committed != nil {
		printCommit(*resp.Committed)
	}
}

// commitExitCode maps a commit error to an exit code.
func commitExitCode(err error) int {
	switch {
	case errors.Is(err, completion.ErrPersist):
		return ExitDataError
	case errors.Is(err, completion.ErrUnresolved), errors.Is(err, citation.ErrRangeGone):
		return ExitNotFound
	default:
		return ExitError
	}
}

// committedText returns the document text to save after a commit. A
// bibliography the document did not list is added to its front matter so
// the inserted id resolves when the document is reopened.
func committedText(text string, doc *document.Context, res completion.CommitResult) (string, error) {
	if !res.AddedBibliography {
		return text, nil
	}
	return document.SetBibliographies(text, doc.Bibliographies)
}

// writeDocument replaces path's content, keeping its permissions.
func writeDocument(path, text string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
