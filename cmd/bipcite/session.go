package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/matsen/bipcite/internal/bibliography"
	"github.com/matsen/bipcite/internal/completion"
	"github.com/matsen/bipcite/internal/config"
	"github.com/matsen/bipcite/internal/document"
	"github.com/matsen/bipcite/internal/doicache"
	"github.com/matsen/bipcite/internal/logging"
	"github.com/matsen/bipcite/internal/metrics"
	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/provider/crossref"
	"github.com/matsen/bipcite/internal/provider/datacite"
	"github.com/matsen/bipcite/internal/provider/doi"
	"github.com/matsen/bipcite/internal/provider/library"
	"github.com/matsen/bipcite/internal/provider/local"
	"github.com/matsen/bipcite/internal/provider/pubmed"
	"github.com/matsen/bipcite/internal/provider/remote"
	"github.com/matsen/bipcite/internal/storage"
)

// session is everything one command needs: configuration, the document,
// the catalogue and the completion orchestrator.
type session struct {
	settings *config.Settings
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	doc  *document.Context
	text string

	manager      *bibliography.Manager
	resolver     *doi.Provider
	searchers    []provider.Searcher
	orchestrator *completion.Orchestrator

	db    *storage.DB
	redis *doicache.Redis
}

// mustLoadSettings loads configuration, exits on error.
func mustLoadSettings() *config.Settings {
	settings, err := config.Load()
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return settings
}

// mustLoadDocument reads the --doc document, exits on error. Without --doc
// the catalogue is built for an unsaved document in the working directory.
func mustLoadDocument() (*document.Context, string) {
	if docPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			exitWithError(ExitError, "getting current directory: %v", err)
		}
		return &document.Context{ResourceDir: cwd}, ""
	}

	data, err := os.ReadFile(docPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			exitWithError(ExitConfigError, "document not found: %s", docPath)
		}
		exitWithError(ExitError, "reading document: %v", err)
	}
	doc, err := document.Parse(docPath, string(data))
	if err != nil {
		exitWithError(ExitConfigError, "parsing front matter of %s: %v", docPath, err)
	}
	return doc, string(data)
}

// mustOpenSession wires the catalogue for the current document, exits on
// error. The caller is responsible for calling close().
func mustOpenSession(ctx context.Context) *session {
	settings := mustLoadSettings()

	mode := logMode
	if mode == "" {
		mode = settings.LogMode()
	}
	logger, err := logging.New(mode)
	if err != nil {
		exitWithError(ExitConfigError, "building logger: %v", err)
	}

	s := &session{settings: settings, logger: logger, registry: prometheus.NewRegistry()}
	s.metrics = metrics.New(s.registry)
	s.doc, s.text = mustLoadDocument()

	providers := []provider.Provider{local.New(logger.Named(local.Key))}
	if lib := s.openLibrary(); lib != nil {
		providers = append(providers, lib)
	}
	s.manager = bibliography.NewManager(providers,
		bibliography.WithLogger(logger.Named("catalogue")),
		bibliography.WithMetrics(s.metrics))

	s.resolver = doi.New(s.client(doi.Key, settings.Env.DOIURL), s.openCache(ctx), logger.Named(doi.Key))
	s.searchers = []provider.Searcher{
		crossref.New(s.client(crossref.Key, settings.Env.CrossrefURL),
			crossref.WithMailto(settings.Global.CrossrefMailto),
			crossref.WithLogger(logger.Named(crossref.Key))),
		datacite.New(s.client(datacite.Key, settings.Env.DataCiteURL), logger.Named(datacite.Key)),
		pubmed.New(s.client(pubmed.Key, settings.Env.PubMedURL), settings.Global.PubMedAPIKey, logger.Named(pubmed.Key)),
		s.resolver,
	}

	s.orchestrator = s.orchestrate()
	return s
}

// orchestrate builds a completion orchestrator over the session catalogue.
func (s *session) orchestrate(extra ...completion.Option) *completion.Orchestrator {
	opts := append([]completion.Option{
		completion.WithSearchers(s.searchers...),
		completion.WithResolver(s.resolver),
		completion.WithLogger(s.logger.Named("completion")),
		completion.WithMetrics(s.metrics),
	}, extra...)
	return completion.New(s.manager, opts...)
}

// client builds a rate-limited HTTP client for one remote service.
func (s *session) client(name, baseURL string, opts ...remote.Option) *remote.Client {
	env := s.settings.Env
	opts = append([]remote.Option{
		remote.WithTimeout(env.HTTPTimeout),
		remote.WithRateLimit(env.RateLimit),
		remote.WithLogger(s.logger.Named("http")),
	}, opts...)
	return remote.NewClient(name, baseURL, opts...)
}

// openLibrary returns the personal library provider, or nil when no
// library user is configured. A cache that cannot be opened only costs the
// offline fallback.
func (s *session) openLibrary() *library.Provider {
	user := s.settings.LibraryUser()
	if user == "" {
		return nil
	}
	baseURL := s.settings.LibraryURL()
	if baseURL == "" {
		baseURL = library.DefaultBaseURL
	}
	src := library.NewHTTPSource(s.client(library.Key, baseURL), user, s.settings.LibraryAPIKey())

	opts := []library.Option{
		library.WithDefaultEnabled(s.settings.Global.LibraryEnabledByDefault()),
		library.WithLogger(s.logger.Named(library.Key)),
	}
	if path := config.LibraryCachePath(s.settings.Global); path != "" {
		db, err := storage.OpenDB(path)
		if err != nil {
			s.logger.Warn("library cache unavailable", zap.String("path", path), zap.Error(err))
		} else {
			s.db = db
			opts = append(opts, library.WithCache(db))
		}
	}
	return library.New(src, opts...)
}

// openCache returns the shared Redis DOI cache when one is configured and
// reachable, else an in-process cache.
func (s *session) openCache(ctx context.Context) doicache.Cache {
	if addr := s.settings.RedisAddr(); addr != "" {
		r, err := doicache.Dial(ctx, addr)
		if err == nil {
			s.redis = r
			return r
		}
		s.logger.Warn("redis doi cache unavailable, using memory", zap.String("addr", addr), zap.Error(err))
	}
	return doicache.NewMemory(doicache.DefaultTTL)
}

// mustRefresh loads the catalogue for the session document, exits on error.
// Provider failures are not fatal; they surface as the catalogue warning.
func (s *session) mustRefresh(ctx context.Context) {
	if _, err := s.manager.Refresh(ctx, s.doc); err != nil {
		exitWithError(ExitError, "loading catalogue: %v", err)
	}
	if w := s.manager.Warning(); w != "" && humanOutput {
		warnHuman(w)
	}
}

func (s *session) close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	s.logger.Sync()
}
