// Package completion serves citation completions for the token under the
// cursor and commits accepted candidates into the document.
package completion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/bipcite/internal/citekey"
	"github.com/matsen/bipcite/internal/document"
	"github.com/matsen/bipcite/internal/export"
	"github.com/matsen/bipcite/internal/index"
	"github.com/matsen/bipcite/internal/logging"
	"github.com/matsen/bipcite/internal/metrics"
	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/provider/doi"
	"github.com/matsen/bipcite/internal/reference"
)

var (
	// ErrPersist wraps a failure to write the committed entry. The citation
	// is not inserted.
	ErrPersist = errors.New("failed to save entry to bibliography")
	// ErrStale reports a response discarded because its token changed.
	ErrStale = errors.New("completion request is stale")
	// ErrUnresolved reports a persisted entry the catalogue did not pick up.
	ErrUnresolved = errors.New("committed entry not found in catalogue")
	// ErrNoResolver reports a DOI that needs resolving without a resolver.
	ErrNoResolver = errors.New("no DOI resolver configured")
)

const (
	// DefaultLimit caps each candidate batch.
	DefaultLimit = 50
	// DefaultBibliography is created next to the document when it names none.
	DefaultBibliography = "references.bib"
	// DefaultResolveTimeout bounds DOI resolution during commit.
	DefaultResolveTimeout = 10 * time.Second
)

// Catalogue is the aggregated catalogue of one document.
// *bibliography.Manager implements it.
type Catalogue interface {
	Refresh(ctx context.Context, doc *document.Context) ([]reference.Entry, error)
	SearchResults(query string, limit int) []index.Result
	SearchExact(id string) []reference.Entry
	FindByID(id string) (reference.Entry, bool)
	FindByDOI(doi string) (reference.Entry, bool)
	IDs() map[string]bool
	Warning() string
}

// Resolver turns a DOI into an entry. *doi.Provider implements it.
type Resolver interface {
	Cached(ctx context.Context, doi string) (reference.Entry, bool)
	FetchCSL(ctx context.Context, doi string, timeoutHint time.Duration) doi.Result
}

// Persister appends one entry to a bibliography file.
type Persister interface {
	AppendEntry(path string, e reference.Entry) error
}

// FilePersister writes entries with export.AppendEntry.
type FilePersister struct{}

// AppendEntry appends e to the bibliography at path.
func (FilePersister) AppendEntry(path string, e reference.Entry) error {
	return export.AppendEntry(path, e)
}

// Inserter writes a citation id into the document. *citation.Engine
// implements it.
type Inserter interface {
	InsertCitation(rangeID uuid.UUID, id string) error
}

// Request is one completion query.
type Request struct {
	Token string
	// Selected is the key of the remote provider chosen in the picker, if any.
	Selected string
	Limit    int
	// Stale is evaluated when streamed results arrive. When it reports
	// true they are dropped.
	Stale func() bool
}

// RemoteStatus is the outcome of one remote search.
type RemoteStatus struct {
	Provider string          `json:"provider"`
	Status   provider.Status `json:"status"`
	Message  string          `json:"message,omitempty"`
}

// Batch is one set of candidates. A streamed batch replaces the immediate one.
type Batch struct {
	Candidates []provider.Candidate `json:"candidates"`
	Loading    bool                 `json:"loading,omitempty"`
	Remote     []RemoteStatus       `json:"remote,omitempty"`
	Warning    string               `json:"warning,omitempty"`
}

// Callbacks receive the two phases of a completion.
type Callbacks struct {
	OnImmediate func(Batch)
	OnStreamed  func(Batch)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSearchers registers remote search providers.
func WithSearchers(s ...provider.Searcher) Option {
	return func(o *Orchestrator) { o.searchers = append(o.searchers, s...) }
}

// WithResolver sets the DOI resolver.
func WithResolver(r Resolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithPersister sets the bibliography writer. The default is FilePersister.
func WithPersister(p Persister) Option {
	return func(o *Orchestrator) { o.persister = p }
}

// WithInserter sets the document the commit path writes into.
func WithInserter(i Inserter) Option {
	return func(o *Orchestrator) { o.inserter = i }
}

// WithPreviewDelay sets how long PreviewDOI waits before going to the network.
func WithPreviewDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.previewDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logging.OrNop(l) }
}

// WithMetrics records remote searches and commits.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator serves completions for one document.
type Orchestrator struct {
	catalogue    Catalogue
	searchers    []provider.Searcher
	resolver     Resolver
	persister    Persister
	inserter     Inserter
	previewDelay time.Duration
	logger       *zap.Logger
	metrics      *metrics.Metrics

	commitMu sync.Mutex
}

// New creates an orchestrator over catalogue.
func New(catalogue Catalogue, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalogue:    catalogue,
		persister:    FilePersister{},
		previewDelay: 250 * time.Millisecond,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Searcher returns the registered remote provider with key.
func (o *Orchestrator) Searcher(key string) (provider.Searcher, bool) {
	for _, s := range o.searchers {
		if s.Key() == key {
			return s, true
		}
	}
	return nil, false
}

// Complete reports ranked local candidates through OnImmediate, then
// refreshes the catalogue, queries remote providers and reports the
// replacing batch through OnStreamed. It returns ErrStale when the streamed
// batch was dropped. A token that is exactly a catalogue id has nothing to
// complete: OnImmediate gets an empty batch and nothing is streamed.
func (o *Orchestrator) Complete(ctx context.Context, doc *document.Context, req Request, cb Callbacks) error {
	token := strings.TrimSpace(req.Token)
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	isDOI := reference.LooksLikeDOI(token)

	switch {
	case token == "" || isDOI:
		emit(cb.OnImmediate, Batch{Loading: true, Warning: o.catalogue.Warning()})
	case len(o.catalogue.SearchExact(token)) > 0:
		emit(cb.OnImmediate, Batch{})
		return nil
	default:
		emit(cb.OnImmediate, Batch{
			Candidates: o.local(token, limit),
			Loading:    true,
			Warning:    o.catalogue.Warning(),
		})
	}

	if doc != nil {
		if _, err := o.catalogue.Refresh(ctx, doc); err != nil {
			o.logger.Warn("refresh during completion", zap.Error(err))
		}
	}

	var batch Batch
	switch {
	case isDOI:
		if e, ok := o.catalogue.FindByDOI(token); ok {
			batch.Candidates = []provider.Candidate{localCandidate(e, 0)}
		} else {
			batch = o.remote(ctx, token, []provider.Searcher{o.doiSearcher()})
		}
	case token != "" && len(o.catalogue.SearchExact(token)) > 0:
		// The refresh made the token a known id.
	default:
		batch.Candidates = o.local(token, limit)
		if s, ok := o.Searcher(req.Selected); ok && token != "" {
			remote := o.remote(ctx, token, []provider.Searcher{s})
			batch.Candidates = append(batch.Candidates, remote.Candidates...)
			batch.Remote = remote.Remote
		}
	}
	batch.Warning = o.catalogue.Warning()

	if req.Stale != nil && req.Stale() {
		o.logger.Debug("dropping stale completion", zap.String("token", token))
		return ErrStale
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	emit(cb.OnStreamed, batch)
	return nil
}

func emit(fn func(Batch), b Batch) {
	if fn != nil {
		fn(b)
	}
}

func (o *Orchestrator) local(token string, limit int) []provider.Candidate {
	results := o.catalogue.SearchResults(token, limit)
	out := make([]provider.Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, localCandidate(r.Entry, r.Score))
	}
	return out
}

func localCandidate(e reference.Entry, score float64) provider.Candidate {
	return provider.Candidate{Provider: e.ProviderKey, Entry: e, Score: score}
}

// doiSearcher adapts the resolver for DOI tokens.
func (o *Orchestrator) doiSearcher() provider.Searcher {
	if s, ok := o.Searcher(doi.Key); ok {
		return s
	}
	return resolverSearcher{o.resolver}
}

type resolverSearcher struct{ r Resolver }

func (resolverSearcher) Key() string { return doi.Key }

func (s resolverSearcher) Search(ctx context.Context, term string) provider.SearchResult {
	if s.r == nil {
		return provider.SearchResult{Status: provider.StatusError, Message: ErrNoResolver.Error(), Err: ErrNoResolver}
	}
	r := s.r.FetchCSL(ctx, term, 0)
	if r.Status != provider.StatusOK {
		return provider.SearchResult{Status: r.Status, Message: r.Message, Err: r.Err}
	}
	return provider.SearchResult{Status: provider.StatusOK, Items: []provider.Candidate{{Provider: doi.Key, Remote: true, Entry: r.Entry}}}
}

// remote queries searchers concurrently. Hits whose DOI the catalogue
// already holds come back as the local entry; the rest get ids that
// collide neither with the catalogue nor with each other.
func (o *Orchestrator) remote(ctx context.Context, token string, searchers []provider.Searcher) Batch {
	results := make([]provider.SearchResult, len(searchers))
	var g errgroup.Group
	for i, s := range searchers {
		g.Go(func() error {
			start := time.Now()
			results[i] = s.Search(ctx, token)
			o.metrics.ObserveRemoteSearch(s.Key(), string(results[i].Status), time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	var batch Batch
	known := o.catalogue.IDs()
	for i, res := range results {
		key := searchers[i].Key()
		batch.Remote = append(batch.Remote, RemoteStatus{Provider: key, Status: res.Status, Message: res.Message})
		if res.Status != provider.StatusOK {
			o.logger.Debug("remote search failed",
				zap.String("provider", key),
				zap.String("status", string(res.Status)),
				zap.Error(res.Err))
			continue
		}
		for _, c := range res.Items {
			if c.Entry.DOI != "" {
				if e, ok := o.catalogue.FindByDOI(c.Entry.DOI); ok {
					batch.Candidates = append(batch.Candidates, localCandidate(e, c.Score))
					continue
				}
			}
			c.Remote = true
			c.Provider = key
			c.Entry.ID = citekey.SuggestFor(known, c.Entry)
			known[c.Entry.ID] = true
			batch.Candidates = append(batch.Candidates, c)
		}
	}
	return batch
}

// Target says where a committed citation goes.
type Target struct {
	// RangeID is the id range the citation replaces.
	RangeID uuid.UUID
	// Bibliography is the file a remote entry is appended to. Empty means
	// the document's first bibliography, or DefaultBibliography next to
	// the document.
	Bibliography string
}

// CommitResult reports what a commit did.
type CommitResult struct {
	Entry reference.Entry
	// Bibliography is the file written, empty for local candidates.
	Bibliography string
	// AddedBibliography is set when the document did not name Bibliography
	// and it was added to its context; the host must record it in the
	// front matter.
	AddedBibliography bool
}

// Commit accepts a candidate. Local candidates are inserted directly.
// Remote ones are resolved, given a final id, appended to the
// bibliography, and the catalogue is refreshed before the id is inserted,
// so the inserted id always resolves. Nothing is inserted when any step
// fails.
func (o *Orchestrator) Commit(ctx context.Context, doc *document.Context, cand provider.Candidate, target Target) (CommitResult, error) {
	o.commitMu.Lock()
	defer o.commitMu.Unlock()

	if !cand.Remote {
		if err := o.insert(target, cand.Entry.ID); err != nil {
			return CommitResult{}, err
		}
		o.metrics.IncCommit("local", "inserted")
		return CommitResult{Entry: cand.Entry}, nil
	}

	entry, err := o.materialize(ctx, cand.Entry)
	if err != nil {
		o.metrics.IncCommit("remote", "resolve_error")
		return CommitResult{}, err
	}

	if existing, ok := o.catalogue.FindByDOI(entry.DOI); ok && entry.DOI != "" {
		if err := o.insert(target, existing.ID); err != nil {
			return CommitResult{}, err
		}
		o.metrics.IncCommit("remote", "existing")
		return CommitResult{Entry: existing}, nil
	}

	ids := o.catalogue.IDs()
	if cand.Entry.ID != "" && !ids[cand.Entry.ID] {
		entry.ID = cand.Entry.ID
	} else {
		entry.ID = citekey.SuggestFor(ids, entry)
	}

	res := CommitResult{Entry: entry}
	res.Bibliography, res.AddedBibliography = o.bibliographyFor(doc, target)

	err = o.persister.AppendEntry(res.Bibliography, entry)
	switch {
	case errors.Is(err, export.ErrDuplicate):
		o.logger.Info("entry already in bibliography", zap.String("path", res.Bibliography), zap.String("id", entry.ID))
	case err != nil:
		o.metrics.IncCommit("remote", "persist_error")
		o.logger.Error("persisting entry", zap.String("path", res.Bibliography), zap.Error(err))
		if res.AddedBibliography && doc != nil {
			doc.Bibliographies = doc.Bibliographies[:len(doc.Bibliographies)-1]
		}
		return CommitResult{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	if _, err := o.catalogue.Refresh(ctx, doc); err != nil {
		return CommitResult{}, fmt.Errorf("refreshing catalogue: %w", err)
	}

	final, ok := o.catalogue.FindByID(entry.ID)
	if !ok && entry.DOI != "" {
		final, ok = o.catalogue.FindByDOI(entry.DOI)
	}
	if !ok {
		o.metrics.IncCommit("remote", "unresolved")
		return CommitResult{}, fmt.Errorf("%w: %s", ErrUnresolved, entry.ID)
	}
	res.Entry = final

	if err := o.insert(target, final.ID); err != nil {
		return CommitResult{}, err
	}
	o.metrics.IncCommit("remote", "inserted")
	return res, nil
}

// materialize fills in a remote candidate from its DOI when one is known.
func (o *Orchestrator) materialize(ctx context.Context, e reference.Entry) (reference.Entry, error) {
	if e.DOI == "" {
		if e.Title == "" {
			return e, errors.New("candidate has neither DOI nor title")
		}
		return e, nil
	}
	if o.resolver == nil {
		if e.Title == "" {
			return e, ErrNoResolver
		}
		return e, nil
	}
	r := o.resolver.FetchCSL(ctx, e.DOI, DefaultResolveTimeout)
	if r.Status != provider.StatusOK {
		if e.Title != "" {
			// The search hit is good enough to cite.
			o.logger.Warn("doi resolution failed, using search metadata",
				zap.String("doi", e.DOI), zap.String("status", string(r.Status)))
			return e, nil
		}
		return e, fmt.Errorf("resolving %s: %s", e.DOI, r.Message)
	}
	full := r.Entry
	if full.DOI == "" {
		full.DOI = e.DOI
	}
	return full, nil
}

func (o *Orchestrator) bibliographyFor(doc *document.Context, target Target) (string, bool) {
	if target.Bibliography != "" {
		if doc == nil {
			return target.Bibliography, false
		}
		path := doc.ResolveBibliography(target.Bibliography)
		for _, p := range doc.BibliographyPaths() {
			if p == path {
				return path, false
			}
		}
		// The catalogue only sees files the document names.
		doc.Bibliographies = append(doc.Bibliographies, target.Bibliography)
		return path, true
	}
	if doc == nil {
		return DefaultBibliography, false
	}
	if paths := doc.BibliographyPaths(); len(paths) > 0 {
		return paths[0], false
	}
	doc.Bibliographies = append(doc.Bibliographies, DefaultBibliography)
	dir := doc.ResourceDir
	if doc.Path != "" {
		dir = filepath.Dir(doc.Path)
	}
	return filepath.Join(dir, DefaultBibliography), true
}

func (o *Orchestrator) insert(target Target, id string) error {
	if o.inserter == nil || target.RangeID == uuid.Nil {
		return nil
	}
	return o.inserter.InsertCitation(target.RangeID, id)
}

// PreviewDOI resolves doi for an inline preview. A cached entry returns
// at once; otherwise the network call waits out the preview delay first,
// so a cancelled ctx (the user kept typing) costs no request.
func (o *Orchestrator) PreviewDOI(ctx context.Context, doiStr string) doi.Result {
	if o.resolver == nil {
		return doi.Result{Status: provider.StatusError, Message: ErrNoResolver.Error(), Err: ErrNoResolver}
	}
	doiStr = reference.StripDOIPrefix(doiStr)
	if e, ok := o.resolver.Cached(ctx, doiStr); ok {
		return doi.Result{Status: provider.StatusOK, Entry: e, Cached: true}
	}

	timer := time.NewTimer(o.previewDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return doi.Result{Status: provider.StatusError, Message: "preview cancelled", Err: ctx.Err()}
	case <-timer.C:
	}
	return o.resolver.FetchCSL(ctx, doiStr, DefaultResolveTimeout)
}
