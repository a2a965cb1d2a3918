// Package document extracts the bibliography configuration of a document
// from its YAML front matter.
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/matsen/bipcite/internal/csl"
	"github.com/matsen/bipcite/internal/reference"
)

// ErrNoFrontMatter is returned when a document has no leading YAML block.
var ErrNoFrontMatter = errors.New("no front matter")

// InlineProviderKey is the provider key given to entries declared in the
// front matter "references" block.
const InlineProviderKey = "inline"

// Context is what the catalogue needs to know about the active document.
type Context struct {
	Path        string // Filesystem path of the document ("" if unsaved)
	ResourceDir string // Default directory for new bibliography files

	// Bibliographies are the configured bibliography file paths, as written.
	Bibliographies []string
	// References are entries declared inline in the front matter.
	References []reference.Entry

	Library LibrarySettings
}

// LibrarySettings are per-document personal library options.
type LibrarySettings struct {
	// Enabled overrides the user default when non-nil.
	Enabled *bool
	// Collections restricts the library to these collection names (empty = all).
	Collections []string
}

// frontMatter is the subset of document metadata we read.
type frontMatter struct {
	Bibliography stringList  `yaml:"bibliography"`
	References   []csl.Item  `yaml:"references"`
	Library      *libraryOpt `yaml:"library"`
	Zotero       *libraryOpt `yaml:"zotero"`
}

// stringList accepts a scalar or a sequence of scalars.
type stringList []string

func (s *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if v := strings.TrimSpace(node.Value); v != "" {
			*s = []string{v}
		}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list", node.Line)
	}
}

// libraryOpt accepts `true`/`false`, a single collection name, or a list.
type libraryOpt struct {
	Enabled     bool
	Collections []string
}

func (l *libraryOpt) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!bool" {
		return node.Decode(&l.Enabled)
	}
	var names stringList
	if err := names.UnmarshalYAML(node); err != nil {
		return err
	}
	l.Enabled = true
	l.Collections = names
	return nil
}

// Parse builds a Context for the document at path with the given text.
// A document without front matter yields an empty configuration, not an error.
func Parse(path, text string) (*Context, error) {
	ctx := &Context{Path: path}
	if path != "" {
		ctx.ResourceDir = filepath.Dir(path)
	}

	block, err := ExtractFrontMatter(text)
	if errors.Is(err, ErrNoFrontMatter) {
		return ctx, nil
	}
	if err != nil {
		return nil, err
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, fmt.Errorf("parsing front matter: %w", err)
	}

	ctx.Bibliographies = fm.Bibliography
	for _, it := range fm.References {
		e := it.ToEntry(InlineProviderKey)
		if e.ID == "" {
			continue
		}
		ctx.References = append(ctx.References, e)
	}

	opt := fm.Library
	if opt == nil {
		opt = fm.Zotero
	}
	if opt != nil {
		enabled := opt.Enabled
		ctx.Library.Enabled = &enabled
		ctx.Library.Collections = opt.Collections
	}

	return ctx, nil
}

// ExtractFrontMatter returns the YAML between a leading "---" line and the
// next "---" or "..." line.
func ExtractFrontMatter(text string) (string, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], " \r") != "---" {
		return "", ErrNoFrontMatter
	}
	for i := 1; i < len(lines); i++ {
		l := strings.TrimRight(lines[i], " \r")
		if l == "---" || l == "..." {
			return strings.Join(lines[1:i], "\n"), nil
		}
	}
	return "", fmt.Errorf("%w: unterminated block", ErrNoFrontMatter)
}

// SetBibliographies returns text with its front matter "bibliography"
// field set to paths, adding a front matter block when text has none. The
// rest of the metadata is kept.
func SetBibliographies(text string, paths []string) (string, error) {
	bom := ""
	if strings.HasPrefix(text, "\ufeff") {
		bom, text = "\ufeff", strings.TrimPrefix(text, "\ufeff")
	}
	lines := strings.Split(text, "\n")
	end := -1
	if strings.TrimRight(lines[0], " \r") == "---" {
		for i := 1; i < len(lines); i++ {
			l := strings.TrimRight(lines[i], " \r")
			if l == "---" || l == "..." {
				end = i
				break
			}
		}
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated block", ErrNoFrontMatter)
		}
	}

	var root yaml.Node
	if end > 0 {
		if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &root); err != nil {
			return "", fmt.Errorf("parsing front matter: %w", err)
		}
	}
	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	fields := root.Content[0]
	if fields.Kind != yaml.MappingNode {
		return "", errors.New("front matter is not a mapping")
	}

	value := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, p := range paths {
		value.Content = append(value.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p})
	}
	if len(paths) == 1 {
		value = value.Content[0]
	}
	replaced := false
	for i := 0; i+1 < len(fields.Content); i += 2 {
		if fields.Content[i].Value == "bibliography" {
			fields.Content[i+1] = value
			replaced = true
			break
		}
	}
	if !replaced {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "bibliography"}
		fields.Content = append(fields.Content, key, value)
	}

	var b bytes.Buffer
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return "", fmt.Errorf("writing front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("writing front matter: %w", err)
	}

	body := text
	if end > 0 {
		body = strings.Join(lines[end+1:], "\n")
	}
	return bom + "---\n" + b.String() + "---\n" + body, nil
}

// ResolveBibliography resolves a configured bibliography path against the
// document directory. Absolute and ~ paths are returned unchanged.
func (c *Context) ResolveBibliography(p string) string {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "~") {
		return p
	}
	base := c.ResourceDir
	if c.Path != "" {
		base = filepath.Dir(c.Path)
	}
	return filepath.Join(base, p)
}

// BibliographyPaths returns all configured bibliography paths, resolved.
func (c *Context) BibliographyPaths() []string {
	paths := make([]string, 0, len(c.Bibliographies))
	for _, p := range c.Bibliographies {
		paths = append(paths, c.ResolveBibliography(p))
	}
	return paths
}

// LibraryEnabled reports whether the personal library is on for this
// document, given the user default.
func (c *Context) LibraryEnabled(userDefault bool) bool {
	if c == nil || c.Library.Enabled == nil {
		return userDefault
	}
	return *c.Library.Enabled
}

// Key identifies the document's bibliography configuration. Two contexts
// with the same key resolve to the same local catalogue sources.
func (c *Context) Key() string {
	if c == nil {
		return ""
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00", c.Path)
	for _, p := range c.BibliographyPaths() {
		fmt.Fprintf(h, "bib:%s\x00", p)
	}
	for _, e := range c.References {
		fmt.Fprintf(h, "ref:%s:%s\x00", e.ID, e.DOI)
	}
	if c.Library.Enabled != nil {
		fmt.Fprintf(h, "lib:%t\x00", *c.Library.Enabled)
	}
	for _, name := range c.Library.Collections {
		fmt.Fprintf(h, "col:%s\x00", name)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
