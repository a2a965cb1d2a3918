package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/matsen/bipcite/internal/csl"
	"github.com/matsen/bipcite/internal/importer"
	"github.com/matsen/bipcite/internal/reference"
)

// ErrDuplicate is returned when the target file already holds an entry with
// the same citation key or DOI.
var ErrDuplicate = errors.New("entry already present in bibliography")

// AppendEntry appends one entry to the bibliography file at path, creating
// the file (and its directory) if needed. The format follows the extension.
func AppendEntry(path string, e reference.Entry) error {
	format, err := importer.DetectFormat(path)
	if err != nil {
		return err
	}

	idx, err := IndexFile(path)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", path, err)
	}
	if idx.HasEntry(e.ID, e.DOI) {
		return fmt.Errorf("%w: %s", ErrDuplicate, e.ID)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	switch format {
	case importer.FormatBibTeX:
		return AppendToBibFile(path, ToBibTeX(e))
	case importer.FormatCSLJSON:
		return appendCSLJSON(path, e)
	case importer.FormatCSLYAML:
		return appendCSLYAML(path, e)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// AppendToBibFile appends BibTeX content to a file.
func AppendToBibFile(path, content string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	// Ensure we start on a new line
	_, err = file.WriteString("\n" + content)
	return err
}

func appendCSLJSON(path string, e reference.Entry) error {
	var items []json.RawMessage
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	item, err := json.Marshal(csl.FromEntry(e))
	if err != nil {
		return err
	}
	items = append(items, item)

	out, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(out, '\n'))
}

// appendCSLYAML keeps the existing layout: a "references:" mapping stays a
// mapping, a bare list stays a list. New files get the mapping form.
func appendCSLYAML(path string, e reference.Entry) error {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	var item yaml.Node
	if err := item.Encode(csl.FromEntry(e)); err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	seq, err := referencesSequence(&doc)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	seq.Content = append(seq.Content, &item)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, out)
}

// referencesSequence finds (or creates) the sequence node holding the items.
func referencesSequence(doc *yaml.Node) (*yaml.Node, error) {
	if doc.Kind == 0 || len(doc.Content) == 0 {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		*doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{
			Kind: yaml.MappingNode,
			Tag:  "!!map",
			Content: []*yaml.Node{
				{Kind: yaml.ScalarNode, Tag: "!!str", Value: "references"},
				seq,
			},
		}}}
		return seq, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		return root, nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value == "references" {
				seq := root.Content[i+1]
				if seq.Kind != yaml.SequenceNode {
					return nil, fmt.Errorf("references is not a list")
				}
				return seq, nil
			}
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "references"}, seq)
		return seq, nil
	default:
		return nil, fmt.Errorf("unexpected YAML layout")
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
