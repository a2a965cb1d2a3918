// Package bibliography merges the catalogue providers of one document into
// a single de-duplicated, searchable catalogue.
package bibliography

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matsen/bipcite/internal/document"
	"github.com/matsen/bipcite/internal/index"
	"github.com/matsen/bipcite/internal/logging"
	"github.com/matsen/bipcite/internal/metrics"
	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/reference"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// WithMetrics records refreshes and index rebuilds.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager owns the providers of one open document. Providers are listed in
// priority order: when two describe the same work, the earlier one wins.
type Manager struct {
	providers []provider.Provider
	logger    *zap.Logger
	metrics   *metrics.Metrics
	flight    singleflight.Group

	// The catalogue, its lookup tables and its index change together.
	mu         sync.RWMutex
	index      *index.Index
	entries    []reference.Entry
	byID       map[string]int
	byDOI      map[string]int
	warning    string
	docKey     string
	refreshed  bool
	generation uint64
}

// NewManager creates a Manager over providers in priority order.
func NewManager(providers []provider.Provider, opts ...Option) *Manager {
	m := &Manager{
		providers: providers,
		index:     index.New(),
		logger:    zap.NewNop(),
		byID:      map[string]int{},
		byDOI:     map[string]int{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Refresh loads every provider concurrently and merges the results. A call
// made while another is running waits for it and returns its catalogue.
func (m *Manager) Refresh(ctx context.Context, doc *document.Context) ([]reference.Entry, error) {
	v, err, shared := m.flight.Do("refresh", func() (any, error) {
		return m.refresh(ctx, doc)
	})
	if shared {
		m.logger.Debug("joined in-flight refresh")
	}
	entries, _ := v.([]reference.Entry)
	return entries, err
}

func (m *Manager) refresh(ctx context.Context, doc *document.Context) ([]reference.Entry, error) {
	start := time.Now()
	outcomes := make([]provider.LoadOutcome, len(m.providers))

	// Loads report failure through their outcome, so no goroutine errors
	// and none cancels the others.
	var g errgroup.Group
	for i, p := range m.providers {
		g.Go(func() error {
			outcomes[i] = p.Load(ctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	updated := false
	var warnings []string
	for i, out := range outcomes {
		key := m.providers[i].Key()
		m.metrics.IncProviderLoad(key, string(out.Status))
		switch out.Status {
		case provider.LoadUpdated:
			updated = true
		case provider.LoadFailed:
			m.logger.Warn("provider load failed",
				zap.String("provider", key),
				zap.String("reason", out.Reason),
				zap.Error(out.Err))
		}
		if out.Reason != "" {
			warnings = append(warnings, out.Reason)
		}
	}

	var merged []reference.Entry
	var byID, byDOI map[string]int
	var ix *index.Index
	if updated {
		lists := make([][]reference.Entry, len(m.providers))
		for i, p := range m.providers {
			lists[i] = p.Entries()
		}
		merged, byID, byDOI = Merge(lists...)
		ix = index.New()
		ix.Rebuild(merged)
		m.metrics.IncIndexRebuild()
	}

	m.mu.Lock()
	if updated {
		m.entries, m.byID, m.byDOI, m.index = merged, byID, byDOI, ix
		m.generation++
	}
	m.warning = strings.Join(warnings, "; ")
	m.docKey = doc.Key()
	m.refreshed = true
	entries := m.entries
	m.mu.Unlock()

	m.metrics.ObserveRefresh(time.Since(start))
	m.logger.Debug("catalogue refreshed",
		zap.Bool("rebuilt", updated),
		zap.Int("entries", len(entries)),
		zap.Duration("elapsed", time.Since(start)))

	if err := ctx.Err(); err != nil {
		return entries, err
	}
	return entries, nil
}

// Merge concatenates entry lists in priority order, keeping the first of any
// entries that describe the same work (same DOI, or same id). Entries
// without an id are dropped. It returns the catalogue and its id and DOI
// lookup tables.
func Merge(lists ...[]reference.Entry) ([]reference.Entry, map[string]int, map[string]int) {
	var out []reference.Entry
	byID := map[string]int{}
	byDOI := map[string]int{}
	for _, list := range lists {
		for _, e := range list {
			if e.ID == "" {
				continue
			}
			if _, dup := byID[e.ID]; dup {
				continue
			}
			doi := reference.NormalizeDOI(e.DOI)
			if doi != "" {
				if _, dup := byDOI[doi]; dup {
					continue
				}
				byDOI[doi] = len(out)
			}
			byID[e.ID] = len(out)
			out = append(out, e)
		}
	}
	return out, byID, byDOI
}

// FindByID returns the catalogue entry with id.
func (m *Manager) FindByID(id string) (reference.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return reference.Entry{}, false
	}
	return m.entries[i], true
}

// FindByDOI returns the catalogue entry with doi, compared case-insensitively.
func (m *Manager) FindByDOI(doi string) (reference.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byDOI[reference.NormalizeDOI(doi)]
	if !ok {
		return reference.Entry{}, false
	}
	return m.entries[i], true
}

// Search returns at most limit entries ranked by relevance to query.
func (m *Manager) Search(query string, limit int) []reference.Entry {
	return entriesOf(m.currentIndex().Search(query, index.Options{Limit: limit}))
}

// SearchResults is Search with scores.
func (m *Manager) SearchResults(query string, limit int) []index.Result {
	return m.currentIndex().Search(query, index.Options{Limit: limit})
}

// SearchExact returns the entries whose id is exactly id.
func (m *Manager) SearchExact(id string) []reference.Entry {
	return entriesOf(m.currentIndex().Search(id, index.Options{Exact: true, Fields: []index.Field{index.FieldID}}))
}

// currentIndex returns the index of the published catalogue. A rebuilt
// index replaces it, it is never modified in place.
func (m *Manager) currentIndex() *index.Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index
}

func entriesOf(results []index.Result) []reference.Entry {
	out := make([]reference.Entry, len(results))
	for i, r := range results {
		out[i] = r.Entry
	}
	return out
}

// Entries returns the merged catalogue. Callers must not modify it.
func (m *Manager) Entries() []reference.Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries
}

// IDs returns a fresh set of every catalogue id.
func (m *Manager) IDs() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make(map[string]bool, len(m.byID))
	for id := range m.byID {
		ids[id] = true
	}
	return ids
}

// Warning returns the provider failure messages of the last refresh, or ""
// when it fully succeeded.
func (m *Manager) Warning() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.warning
}

// ProviderCollections is the collection forest of one provider.
type ProviderCollections struct {
	Provider string
	Forest   []*provider.CollectionNode
}

// Collections returns the collection forests of providers that have any,
// in priority order.
func (m *Manager) Collections(doc *document.Context) []ProviderCollections {
	var out []ProviderCollections
	for _, p := range m.providers {
		cols := p.Collections(doc)
		if len(cols) == 0 {
			continue
		}
		out = append(out, ProviderCollections{Provider: p.Key(), Forest: provider.BuildCollectionForest(cols)})
	}
	return out
}

// Provider returns the registered provider with key.
func (m *Manager) Provider(key string) (provider.Provider, bool) {
	for _, p := range m.providers {
		if p.Key() == key {
			return p, true
		}
	}
	return nil, false
}

// Generation counts index rebuilds.
func (m *Manager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// IsCurrent reports whether the catalogue was last refreshed for doc's
// bibliography configuration.
func (m *Manager) IsCurrent(doc *document.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshed && m.docKey == doc.Key()
}
