package export

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/matsen/bipcite/internal/csl"
	"github.com/matsen/bipcite/internal/reference"
)

// ToCSLYAML renders one entry as a CSL-YAML list item.
func ToCSLYAML(e reference.Entry) (string, error) {
	data, err := yaml.Marshal([]csl.Item{csl.FromEntry(e)})
	if err != nil {
		return "", fmt.Errorf("encoding CSL-YAML: %w", err)
	}
	return string(data), nil
}

// ToCSLJSON renders one entry as an indented CSL-JSON object.
func ToCSLJSON(e reference.Entry) (string, error) {
	data, err := json.MarshalIndent(csl.FromEntry(e), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding CSL-JSON: %w", err)
	}
	return string(data), nil
}
