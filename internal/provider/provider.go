// Package provider defines the source-provider capability shared by local
// catalogue providers and remote search-only services.
package provider

import (
	"context"

	"github.com/matsen/bipcite/internal/document"
	"github.com/matsen/bipcite/internal/reference"
)

// Provider contributes entries to the aggregate catalogue.
//
// Load refreshes the provider's snapshot for doc. A failed load keeps the
// previous snapshot; Entries always returns the last good one (empty if the
// provider never loaded or is disabled for doc).
type Provider interface {
	Key() string
	Load(ctx context.Context, doc *document.Context) LoadOutcome
	Entries() []reference.Entry
	Collections(doc *document.Context) []reference.Collection
}

// Searcher is a stateless remote service queried during completion only.
// Its results never enter the catalogue until a candidate is committed.
type Searcher interface {
	Key() string
	Search(ctx context.Context, term string) SearchResult
}

// LoadStatus is the outcome class of a provider load.
type LoadStatus string

const (
	LoadUnchanged LoadStatus = "unchanged"
	LoadUpdated   LoadStatus = "updated"
	LoadFailed    LoadStatus = "failed"
)

// LoadOutcome reports what a Load did. Reason is a user-legible message
// for failures.
type LoadOutcome struct {
	Status LoadStatus
	Reason string
	Err    error
}

// Unchanged is the outcome of a load that found nothing new.
func Unchanged() LoadOutcome { return LoadOutcome{Status: LoadUnchanged} }

// Updated is the outcome of a load that replaced the snapshot.
func Updated() LoadOutcome { return LoadOutcome{Status: LoadUpdated} }

// Failed builds a failure outcome from err.
func Failed(reason string, err error) LoadOutcome {
	return LoadOutcome{Status: LoadFailed, Reason: reason, Err: err}
}

// Status classifies a remote response.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotFound Status = "notfound"
	StatusNoHost   Status = "nohost"
	StatusError    Status = "error"
)

// SearchResult is the response of a remote search. Failures are reported
// through Status, never by panicking or returning a bare error.
type SearchResult struct {
	Status  Status
	Items   []Candidate
	Message string
	Err     error
}

// ResultFromError builds a failed SearchResult for provider key.
func ResultFromError(key string, err error) SearchResult {
	status := Classify(err)
	return SearchResult{Status: status, Message: Message(key, status, err), Err: err}
}

// Candidate is one completion candidate. Remote candidates carry whatever
// metadata the service returned; Entry.ID is a suggested key.
type Candidate struct {
	Provider string          `json:"provider"`
	Remote   bool            `json:"remote"`
	Entry    reference.Entry `json:"entry"`
	Score    float64         `json:"score,omitempty"`
}
