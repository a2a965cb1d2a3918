package importer

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/matsen/bipcite/internal/csl"
	"github.com/matsen/bipcite/internal/reference"
)

// ParseCSLJSON parses a CSL-JSON array of items.
func ParseCSLJSON(data []byte, providerKey string) ([]reference.Entry, []error) {
	var items []csl.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, []error{fmt.Errorf("parsing CSL-JSON: %w", err)}
	}
	return itemsToEntries(items, providerKey)
}

// ParseCSLYAML parses CSL-YAML: either a bare list of items or a mapping
// with a "references" key (pandoc's format).
func ParseCSLYAML(data []byte, providerKey string) ([]reference.Entry, []error) {
	var doc struct {
		References []csl.Item `yaml:"references"`
	}
	if err := yaml.Unmarshal(data, &doc); err == nil && len(doc.References) > 0 {
		return itemsToEntries(doc.References, providerKey)
	}

	var items []csl.Item
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, []error{fmt.Errorf("parsing CSL-YAML: %w", err)}
	}
	return itemsToEntries(items, providerKey)
}

func itemsToEntries(items []csl.Item, providerKey string) ([]reference.Entry, []error) {
	var entries []reference.Entry
	var errs []error
	for i, it := range items {
		e := it.ToEntry(providerKey)
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("item %d: missing required field 'id'", i+1))
			continue
		}
		entries = append(entries, e)
	}
	return entries, errs
}
