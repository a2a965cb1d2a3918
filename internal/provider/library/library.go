// Package library provides entries from the user's personal reference
// library, grouped into collections.
package library

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/bipcite/internal/document"
	"github.com/matsen/bipcite/internal/logging"
	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/reference"
	"github.com/matsen/bipcite/internal/storage"
)

// Key identifies the provider.
const Key = "library"

// Cache persists library snapshots between runs. *storage.DB implements it.
type Cache interface {
	SaveSnapshot(library string, snap storage.LibrarySnapshot) error
	LoadSnapshot(library string) (storage.LibrarySnapshot, bool, error)
}

// Option configures a Provider.
type Option func(*Provider)

// WithCache warms the provider from cache and writes every new snapshot back.
func WithCache(c Cache) Option {
	return func(p *Provider) { p.cache = c }
}

// WithDefaultEnabled sets whether documents that say nothing use the library.
func WithDefaultEnabled(enabled bool) Option {
	return func(p *Provider) { p.defaultEnabled = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = logging.OrNop(l) }
}

// Provider is the Personal-Library provider.
type Provider struct {
	source         Source
	cache          Cache
	defaultEnabled bool
	logger         *zap.Logger
	now            func() time.Time

	mu      sync.RWMutex
	snap    storage.LibrarySnapshot
	loaded  bool
	warmed  bool
	enabled bool
	allow   []string
}

// New creates a provider reading from source.
func New(source Source, opts ...Option) *Provider {
	p := &Provider{
		source:         source,
		defaultEnabled: true,
		logger:         zap.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key returns "library".
func (p *Provider) Key() string { return Key }

// Version returns the version token of the held snapshot.
func (p *Provider) Version() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap.Version
}

// Load applies the document's library settings and fetches the library
// unless the source reports the held version is current.
func (p *Provider) Load(ctx context.Context, doc *document.Context) provider.LoadOutcome {
	enabled := doc.LibraryEnabled(p.defaultEnabled)
	var allow []string
	if doc != nil {
		allow = doc.Library.Collections
	}

	p.mu.Lock()
	firstLoad := !p.loaded
	settingsChanged := !firstLoad && (enabled != p.enabled || !slices.Equal(allow, p.allow))
	changed := firstLoad || settingsChanged
	p.enabled = enabled
	p.allow = slices.Clone(allow)
	p.mu.Unlock()

	if !enabled {
		if changed {
			p.mu.Lock()
			p.loaded = true
			p.mu.Unlock()
			return provider.Updated()
		}
		return provider.Unchanged()
	}

	warmed := p.warm()
	changed = changed || warmed

	since := p.Version()
	res, err := p.source.Fetch(ctx, since)
	if err != nil {
		status := provider.Classify(err)
		reason := provider.Message("Library", status, err)
		p.logger.Warn("library load failed",
			zap.String("source", p.source.Name()),
			zap.String("status", string(status)),
			zap.Error(err))
		p.mu.Lock()
		p.loaded = true
		p.mu.Unlock()
		if warmed || settingsChanged {
			// The cached snapshot or new settings still changed what we serve.
			out := provider.Updated()
			out.Reason, out.Err = reason, err
			return out
		}
		return provider.Failed(reason, err)
	}

	if res.NotModified {
		p.mu.Lock()
		p.loaded = true
		p.mu.Unlock()
		if changed {
			return provider.Updated()
		}
		return provider.Unchanged()
	}

	snap := res.Snapshot
	snap.FetchedAt = p.now()
	p.mu.Lock()
	p.snap = snap
	p.loaded = true
	p.mu.Unlock()

	if p.cache != nil {
		if err := p.cache.SaveSnapshot(p.source.Name(), snap); err != nil {
			p.logger.Warn("caching library snapshot", zap.Error(err))
		}
	}
	p.logger.Debug("library loaded",
		zap.String("version", snap.Version),
		zap.Int("entries", len(snap.Entries)),
		zap.Int("collections", len(snap.Collections)))
	return provider.Updated()
}

// warm loads the cached snapshot once, before the first fetch. It reports
// whether a snapshot was installed.
func (p *Provider) warm() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.warmed || p.cache == nil {
		return false
	}
	p.warmed = true
	if p.snap.Version != "" {
		return false
	}
	snap, ok, err := p.cache.LoadSnapshot(p.source.Name())
	if err != nil {
		p.logger.Warn("reading library cache", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	p.snap = snap
	return true
}

// Entries returns the snapshot restricted to the document's allow-list, or
// nothing when the library is disabled for the document.
func (p *Provider) Entries() []reference.Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.enabled {
		return nil
	}
	if len(p.allow) == 0 {
		return p.snap.Entries
	}

	keys := allowedKeys(p.snap.Collections, p.allow)
	var out []reference.Entry
	for _, e := range p.snap.Entries {
		for _, k := range e.Collections {
			if keys[k] {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Collections returns the collections visible to doc.
func (p *Provider) Collections(doc *document.Context) []reference.Collection {
	if !doc.LibraryEnabled(p.defaultEnabled) {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	var allow []string
	if doc != nil {
		allow = doc.Library.Collections
	}
	if len(allow) == 0 {
		return p.snap.Collections
	}
	keys := allowedKeys(p.snap.Collections, allow)
	var out []reference.Collection
	for _, c := range p.snap.Collections {
		if keys[c.Key] {
			out = append(out, c)
		}
	}
	return out
}

// allowedKeys returns the keys of collections named in allow together with
// all their descendants.
func allowedKeys(cols []reference.Collection, allow []string) map[string]bool {
	names := make(map[string]bool, len(allow))
	for _, n := range allow {
		names[n] = true
	}
	children := map[string][]string{}
	var queue []string
	for _, c := range cols {
		children[c.ParentKey] = append(children[c.ParentKey], c.Key)
		if names[c.Name] {
			queue = append(queue, c.Key)
		}
	}
	keys := map[string]bool{}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if keys[k] {
			continue
		}
		keys[k] = true
		queue = append(queue, children[k]...)
	}
	return keys
}
