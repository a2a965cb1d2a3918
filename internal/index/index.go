// Package index implements the weighted fuzzy search over catalogue entries.
package index

import (
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/matsen/bipcite/internal/reference"
)

// Field names a searchable entry field.
type Field string

const (
	FieldID      Field = "id"
	FieldFamily  Field = "family"
	FieldLiteral Field = "literal"
	FieldGiven   Field = "given"
	FieldTitle   Field = "title"
	FieldIssued  Field = "issued"
)

// AllFields lists every indexed field in weight order.
var AllFields = []Field{FieldID, FieldFamily, FieldLiteral, FieldGiven, FieldTitle, FieldIssued}

// Weights are the relative field weights.
var Weights = map[Field]float64{
	FieldID:      10,
	FieldFamily:  6,
	FieldLiteral: 6,
	FieldGiven:   2,
	FieldTitle:   2,
	FieldIssued:  1,
}

const (
	exactBonus  = 1.0
	prefixBonus = 0.5
)

// Options controls a search. Limit <= 0 means no cap. Fields restricts
// which fields are consulted; empty means all.
type Options struct {
	Limit  int
	Exact  bool
	Fields []Field
}

// Result is one ranked hit.
type Result struct {
	Entry reference.Entry
	Score float64
}

type document struct {
	entry  reference.Entry
	values map[Field][]string // raw values
	folded map[Field][]string // lowercased, diacritics removed
}

// Index is rebuilt wholesale whenever the catalogue changes. Readers never
// see a partially built index.
type Index struct {
	mu   sync.RWMutex
	docs []document
}

// New returns an empty index.
func New() *Index {
	return &Index{}
}

// Rebuild replaces the indexed entries.
func (ix *Index) Rebuild(entries []reference.Entry) {
	docs := make([]document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, newDocument(e))
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].entry.ID < docs[j].entry.ID })

	ix.mu.Lock()
	ix.docs = docs
	ix.mu.Unlock()
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

func newDocument(e reference.Entry) document {
	d := document{entry: e, values: map[Field][]string{}, folded: map[Field][]string{}}
	add := func(f Field, v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		d.values[f] = append(d.values[f], v)
		d.folded[f] = append(d.folded[f], Fold(v))
	}
	add(FieldID, e.ID)
	for _, a := range e.Authors {
		add(FieldFamily, a.Family)
		add(FieldLiteral, a.Literal)
		add(FieldGiven, a.Given)
	}
	add(FieldTitle, e.Title)
	add(FieldIssued, e.Issued.YearString())
	if e.Issued.Raw != "" && e.Issued.Raw != e.Issued.YearString() {
		add(FieldIssued, e.Issued.Raw)
	}
	return d
}

// Fold lowercases s and strips diacritics.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Search ranks entries against query. An empty query returns the catalogue
// in id order.
func (ix *Index) Search(query string, opts Options) []Result {
	ix.mu.RLock()
	docs := ix.docs
	ix.mu.RUnlock()

	fields := opts.Fields
	if len(fields) == 0 {
		fields = AllFields
	}

	query = strings.TrimSpace(query)
	var results []Result
	switch {
	case query == "":
		for _, d := range docs {
			results = append(results, Result{Entry: d.entry})
			if opts.Limit > 0 && len(results) == opts.Limit {
				return results
			}
		}
		return results
	case opts.Exact:
		for _, d := range docs {
			if s := exactScore(d, query, fields); s > 0 {
				results = append(results, Result{Entry: d.entry, Score: s})
			}
		}
	default:
		terms := strings.Fields(Fold(query))
		for _, d := range docs {
			if s := fuzzyScore(d, terms, fields); s > 0 {
				results = append(results, Result{Entry: d.entry, Score: s})
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.ID < results[j].Entry.ID
	})
	results = dedupe(results)
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results
}

// exactScore matches the whole query against each field value. Citation
// ids compare case-sensitively, other fields ignore case and diacritics.
func exactScore(d document, query string, fields []Field) float64 {
	var score float64
	folded := Fold(query)
	for _, f := range fields {
		if f == FieldID {
			if d.entry.ID == query {
				score += Weights[f]
			}
			continue
		}
		for _, v := range d.folded[f] {
			if v == folded {
				score += Weights[f]
				break
			}
		}
	}
	return score
}

// fuzzyScore requires every term to match some field. A term's score is
// the best weighted closeness across fields.
func fuzzyScore(d document, terms []string, fields []Field) float64 {
	var total float64
	for _, term := range terms {
		best := 0.0
		for _, f := range fields {
			for _, v := range d.folded[f] {
				if s := Weights[f] * closeness(term, v); s > best {
					best = s
				}
			}
		}
		if best == 0 {
			return 0
		}
		total += best
	}
	return total
}

// closeness is 0 for no match and approaches 1 as the value gets closer to
// the term, with bonuses for exact and prefix matches.
func closeness(term, value string) float64 {
	dist := fuzzy.RankMatchNormalizedFold(term, value)
	if dist < 0 {
		return 0
	}
	n := float64(utf8.RuneCountInString(term))
	c := n / (n + float64(dist))
	switch {
	case value == term:
		c += exactBonus
	case strings.HasPrefix(value, term):
		c += prefixBonus
	}
	return c
}

func dedupe(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, r := range results {
		if seen[r.Entry.ID] {
			continue
		}
		seen[r.Entry.ID] = true
		out = append(out, r)
	}
	return out
}
