package csl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/matsen/bipcite/internal/reference"
)

// FlexString can unmarshal from either a string or a number value.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexString", string(data))
}

func (f *FlexString) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected scalar", node.Line)
	}
	*f = FlexString(node.Value)
	return nil
}

// MarshalJSON writes purely numeric values as JSON numbers.
func (f FlexString) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(string(f)); err == nil {
		return json.Marshal(n)
	}
	return json.Marshal(string(f))
}

// MarshalYAML writes purely numeric values unquoted.
func (f FlexString) MarshalYAML() (any, error) {
	if n, err := strconv.Atoi(string(f)); err == nil {
		return n, nil
	}
	return string(f), nil
}

// Text is a string that also accepts a list of strings, keeping the first.
// Crossref returns titles and ISSNs as arrays.
type Text string

func (t Text) String() string {
	return strings.TrimSpace(string(t))
}

func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(s)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("cannot unmarshal %s into Text", string(data))
	}
	*t = ""
	if len(list) > 0 {
		*t = Text(list[0])
	}
	return nil
}

func (t *Text) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = Text(node.Value)
		return nil
	case yaml.SequenceNode:
		*t = ""
		if len(node.Content) > 0 {
			*t = Text(node.Content[0].Value)
		}
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list", node.Line)
	}
}

// Date is a CSL date: date-parts, or a raw/literal string.
type Date struct {
	DateParts [][]FlexString `json:"date-parts,omitempty" yaml:"date-parts,omitempty"`
	Raw       string         `json:"raw,omitempty" yaml:"raw,omitempty"`
	Literal   string         `json:"literal,omitempty" yaml:"literal,omitempty"`
}

// Partial converts the CSL date to a reference.PartialDate. Only the first
// date of a range is kept.
func (d Date) Partial() reference.PartialDate {
	if len(d.DateParts) > 0 && len(d.DateParts[0]) > 0 {
		parts := d.DateParts[0]
		var p reference.PartialDate
		p.Year, _ = strconv.Atoi(strings.TrimSpace(string(parts[0])))
		if len(parts) > 1 {
			if m, err := strconv.Atoi(strings.TrimSpace(string(parts[1]))); err == nil && m >= 1 && m <= 12 {
				p.Month = m
			}
		}
		if len(parts) > 2 && p.Month > 0 {
			if day, err := strconv.Atoi(strings.TrimSpace(string(parts[2]))); err == nil && day >= 1 && day <= 31 {
				p.Day = day
			}
		}
		if p.Year > 0 {
			return p
		}
	}

	raw := d.Raw
	if raw == "" {
		raw = d.Literal
	}
	return reference.ParsePartialDate(raw)
}

// FromPartial builds a CSL date from a partial date.
func FromPartial(p reference.PartialDate) *Date {
	if p.Year == 0 {
		return &Date{Raw: p.Raw}
	}
	parts := []FlexString{FlexString(strconv.Itoa(p.Year))}
	if p.Month > 0 {
		parts = append(parts, FlexString(strconv.Itoa(p.Month)))
		if p.Day > 0 {
			parts = append(parts, FlexString(strconv.Itoa(p.Day)))
		}
	}
	return &Date{DateParts: [][]FlexString{parts}}
}
