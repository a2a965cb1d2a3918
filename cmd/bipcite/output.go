package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/matsen/bipcite/internal/reference"
)

// Constants for output formatting.
const (
	DefaultSearchLimit = 50 // Default limit for search and complete

	SearchTitleMaxLen = 70 // Used in search result summaries
	DetailTitleMaxLen = 70 // Used in get command detail view

	// Text wrapping widths
	TextWrapWidth       = 60 // Standard text wrap width
	DetailTextWrapWidth = 68 // Wider wrap for detail views
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// warnHuman writes a warning to stderr.
func warnHuman(msg string) {
	fmt.Fprintf(os.Stderr, "warning: %s\n", msg)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is the JSON error output.
type ErrorResponse struct {
	Error string `json:"error"`
}

// printEntryLine prints a one-entry summary used by list-like commands.
func printEntryLine(n int, e reference.Entry, score float64) {
	if score > 0 {
		fmt.Printf("%d. [%.2f] %s", n, score, e.ID)
	} else {
		fmt.Printf("%d. %s", n, e.ID)
	}
	if e.ProviderKey != "" {
		fmt.Printf("  (%s)", e.ProviderKey)
	}
	fmt.Println()
	if e.Title != "" {
		fmt.Printf("   %s\n", truncateString(e.Title, SearchTitleMaxLen))
	}
	byline := formatAuthorsShort(e.Authors, 3)
	if y := e.Issued.YearString(); y != "" {
		byline = strings.TrimSpace(byline + " (" + y + ")")
	}
	if byline != "" {
		fmt.Printf("   %s\n", byline)
	}
	fmt.Println()
}

// printEntryDetail prints every populated field of an entry.
func printEntryDetail(e reference.Entry) {
	fmt.Println(e.ID)
	fmt.Println(strings.Repeat("═", DetailTitleMaxLen))
	fmt.Println()

	fmt.Printf("Title:    %s\n", wrapText(e.Title, TextWrapWidth, "          "))
	fmt.Println()

	if len(e.Authors) > 0 {
		fmt.Printf("Authors:  %s\n", wrapText(formatAuthorsFull(e.Authors), TextWrapWidth, "          "))
		fmt.Println()
	}

	if e.ContainerTitle != "" {
		fmt.Printf("Venue:    %s\n", e.ContainerTitle)
	}
	if !e.Issued.IsZero() {
		fmt.Printf("Date:     %s\n", formatDate(e.Issued))
	}
	if e.Kind != "" {
		fmt.Printf("Type:     %s\n", e.Kind)
	}
	if e.DOI != "" {
		fmt.Printf("DOI:      %s\n", e.DOI)
	}
	if e.URL != "" {
		fmt.Printf("URL:      %s\n", e.URL)
	}
	if e.ProviderKey != "" {
		fmt.Printf("Source:   %s\n", e.ProviderKey)
	}

	if e.Abstract != "" {
		fmt.Println()
		fmt.Println("Abstract:")
		fmt.Printf("  %s\n", wrapText(e.Abstract, DetailTextWrapWidth, "  "))
	}
}

// formatDate formats a partial date as YYYY, YYYY-MM or YYYY-MM-DD.
func formatDate(d reference.PartialDate) string {
	switch {
	case d.Year == 0:
		return d.Raw
	case d.Month == 0:
		return d.YearString()
	case d.Day == 0:
		return fmt.Sprintf("%s-%02d", d.YearString(), d.Month)
	default:
		return fmt.Sprintf("%s-%02d-%02d", d.YearString(), d.Month, d.Day)
	}
}

// truncateString truncates a string to maxLen runes, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// wrapText wraps text to the specified width with indentation on subsequent lines.
func wrapText(text string, width int, indent string) string {
	if len(text) <= width {
		return text
	}

	var lines []string
	words := strings.Fields(text)
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len() == 0 {
			currentLine.WriteString(word)
		} else if currentLine.Len()+1+len(word) <= width {
			currentLine.WriteString(" ")
			currentLine.WriteString(word)
		} else {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
			currentLine.WriteString(word)
		}
	}
	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n"+indent)
}

// formatAuthorShort formats an author as "Family G" (abbreviated given name).
func formatAuthorShort(a reference.Author) string {
	if a.Literal != "" {
		return a.Literal
	}
	if a.Given != "" {
		r := []rune(a.Given)
		return a.Family + " " + string(r[0])
	}
	return a.Family
}

// formatAuthorsFull formats all authors as "Given Family, Given Family, ...".
func formatAuthorsFull(authors []reference.Author) string {
	names := make([]string, len(authors))
	for i, a := range authors {
		names[i] = a.Name()
	}
	return strings.Join(names, ", ")
}

// formatAuthorsShort formats authors with abbreviation and "et al." for more than maxCount.
func formatAuthorsShort(authors []reference.Author, maxCount int) string {
	if len(authors) == 0 {
		return ""
	}

	var names []string
	for i, a := range authors {
		if i >= maxCount {
			names = append(names, "et al.")
			break
		}
		names = append(names, formatAuthorShort(a))
	}
	return strings.Join(names, ", ")
}
