package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/bipcite/internal/clipboard"
	"github.com/matsen/bipcite/internal/export"
	"github.com/matsen/bipcite/internal/reference"
)

var (
	getFormat string
	getCopy   bool
)

func init() {
	getCmd.Flags().BoolVar(&getCopy, "copy", false, "Copy the citation [@id] to the clipboard")
	getCmd.Flags().StringVar(&getFormat, "format", "json", "Output format: json, bibtex, csl-json or csl-yaml")
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a single catalogue entry by id",
	Long: `Get a single entry of the document's catalogue by its citation id.

Examples:
  bipcite --doc paper.md get smith2020
  bipcite --doc paper.md get smith2020 --format bibtex`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s := mustOpenSession(ctx)
	defer s.close()
	s.mustRefresh(ctx)

	id := args[0]
	e, ok := s.manager.FindByID(id)
	if !ok {
		exitWithError(ExitNotFound, "entry not found: %s", id)
	}
	if getCopy {
		if err := clipboard.Copy("[@" + e.ID + "]"); err != nil {
			exitWithError(ExitError, "copying to clipboard: %v", err)
		}
	}

	if humanOutput && getFormat == "json" {
		printEntryDetail(e)
		return nil
	}
	return printEntryFormat(e, getFormat)
}

// printEntryFormat writes e in one of the bibliography formats.
func printEntryFormat(e reference.Entry, format string) error {
	switch format {
	case "json":
		return outputJSON(e)
	case "bibtex":
		fmt.Print(export.ToBibTeX(e))
	case "csl-json":
		out, err := export.ToCSLJSON(e)
		if err != nil {
			return fmt.Errorf("rendering CSL-JSON: %w", err)
		}
		fmt.Println(out)
	case "csl-yaml":
		out, err := export.ToCSLYAML(e)
		if err != nil {
			return fmt.Errorf("rendering CSL-YAML: %w", err)
		}
		fmt.Print(out)
	default:
		exitWithError(ExitError, "unknown format: %s (use json, bibtex, csl-json or csl-yaml)", format)
	}
	return nil
}
