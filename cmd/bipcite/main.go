// Package main provides the bipcite CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	// docPath is the document whose front matter configures the catalogue
	docPath string
	// logMode overrides the configured logger mode
	logMode string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// SilenceErrors is set, so Cobra errors (like missing arguments) are printed here
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bipcite",
	Short: "Citation catalogue and completion CLI",
	Long: `bipcite finds, completes and inserts citations for Markdown documents.

The catalogue merges, in priority order:
  - bibliography files and inline references named in the document front matter
  - the personal library (when configured and enabled)

Remote providers (crossref, datacite, pubmed, doi) are queried only when
completing, and their hits enter a bibliography file only when committed.

All commands output JSON by default for agent integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&docPath, "doc", "", "Document whose front matter configures the catalogue")
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "", "Log mode: prod, dev or nop (default from config)")
	rootCmd.Version = Version
}
