// Package metrics provides prometheus instrumentation for the catalogue
// and completion paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Refreshes      prometheus.Counter
	RefreshLatency prometheus.Histogram
	// ProviderLoads counts load outcomes by provider and status
	// (unchanged, updated, failed).
	ProviderLoads  *prometheus.CounterVec
	IndexRebuilds  prometheus.Counter
	RemoteSearches *prometheus.CounterVec
	RemoteLatency  *prometheus.HistogramVec
	Commits        *prometheus.CounterVec
}

// New creates collectors registered on reg. A nil reg leaves them
// unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Refreshes: f.NewCounter(prometheus.CounterOpts{
			Name: "bipcite_refreshes_total",
			Help: "Catalogue refresh fan-outs actually executed",
		}),
		RefreshLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bipcite_refresh_duration_seconds",
			Help:    "Duration of catalogue refreshes including provider loads",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ProviderLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bipcite_provider_loads_total",
			Help: "Provider load outcomes by provider and status",
		}, []string{"provider", "status"}),
		IndexRebuilds: f.NewCounter(prometheus.CounterOpts{
			Name: "bipcite_index_rebuilds_total",
			Help: "Search index rebuilds",
		}),
		RemoteSearches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bipcite_remote_searches_total",
			Help: "Remote provider searches by provider and status",
		}, []string{"provider", "status"}),
		RemoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bipcite_remote_search_duration_seconds",
			Help:    "Remote provider search latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bipcite_commits_total",
			Help: "Candidate commits by source and outcome",
		}, []string{"source", "outcome"}),
	}
}

// ObserveRefresh records one executed refresh.
func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m != nil {
		m.Refreshes.Inc()
		m.RefreshLatency.Observe(d.Seconds())
	}
}

// IncProviderLoad records a provider load outcome.
func (m *Metrics) IncProviderLoad(provider, status string) {
	if m != nil {
		m.ProviderLoads.WithLabelValues(provider, status).Inc()
	}
}

// IncIndexRebuild records a search index rebuild.
func (m *Metrics) IncIndexRebuild() {
	if m != nil {
		m.IndexRebuilds.Inc()
	}
}

// ObserveRemoteSearch records a remote search and its status.
func (m *Metrics) ObserveRemoteSearch(provider, status string, d time.Duration) {
	if m != nil {
		m.RemoteSearches.WithLabelValues(provider, status).Inc()
		m.RemoteLatency.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// IncCommit records a commit outcome ("inserted", "persist_error", ...).
func (m *Metrics) IncCommit(source, outcome string) {
	if m != nil {
		m.Commits.WithLabelValues(source, outcome).Inc()
	}
}
