package bibliography

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/matsen/bipcite/internal/document"
	"github.com/matsen/bipcite/internal/metrics"
	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/reference"
)

// stubProvider reports updated on its first load and whenever its entries
// are replaced, unchanged otherwise.
type stubProvider struct {
	key string

	mu      sync.Mutex
	entries []reference.Entry
	dirty   bool
	fail    error
	loads   atomic.Int32
	gate    chan struct{}
	started chan struct{}
	cols    []reference.Collection
}

func newStub(key string, entries ...reference.Entry) *stubProvider {
	return &stubProvider{key: key, entries: entries, dirty: true}
}

func (s *stubProvider) Key() string { return s.key }

func (s *stubProvider) Load(ctx context.Context, _ *document.Context) provider.LoadOutcome {
	s.loads.Add(1)
	if s.started != nil {
		close(s.started)
		s.started = nil
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return provider.Failed("stub unavailable", s.fail)
	}
	if s.dirty {
		s.dirty = false
		return provider.Updated()
	}
	return provider.Unchanged()
}

func (s *stubProvider) Entries() []reference.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries
}

func (s *stubProvider) Collections(*document.Context) []reference.Collection { return s.cols }

func (s *stubProvider) set(entries ...reference.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.dirty = true
}

type ManagerSuite struct {
	suite.Suite
	a, b *stubProvider
	m    *Manager
	doc  *document.Context
	mt   *metrics.Metrics
}

func (s *ManagerSuite) SetupTest() {
	s.a = newStub("a", reference.Entry{ID: "x", DOI: "10.1/a"})
	s.b = newStub("b", reference.Entry{ID: "x2", DOI: "10.1/A"}, reference.Entry{ID: "y"})
	s.mt = metrics.New(prometheus.NewRegistry())
	s.m = NewManager([]provider.Provider{s.a, s.b}, WithMetrics(s.mt))
	s.doc = &document.Context{Path: "/tmp/paper.qmd"}
}

func (s *ManagerSuite) TestMergePriority() {
	entries, err := s.m.Refresh(context.Background(), s.doc)
	s.Require().NoError(err)
	s.Len(entries, 2)

	x, ok := s.m.FindByID("x")
	s.True(ok)
	s.Equal("x", x.ID)
	_, ok = s.m.FindByID("x2")
	s.False(ok)
	_, ok = s.m.FindByID("y")
	s.True(ok)

	byDOI, ok := s.m.FindByDOI("10.1/A")
	s.True(ok)
	s.Equal("x", byDOI.ID)
}

func (s *ManagerSuite) TestRefreshIdempotent() {
	_, err := s.m.Refresh(context.Background(), s.doc)
	s.Require().NoError(err)
	_, err = s.m.Refresh(context.Background(), s.doc)
	s.Require().NoError(err)

	s.Equal(uint64(1), s.m.Generation())
	s.Equal(float64(1), testutil.ToFloat64(s.mt.IndexRebuilds))
	s.Equal(float64(2), testutil.ToFloat64(s.mt.Refreshes))
	s.Equal(float64(1), testutil.ToFloat64(s.mt.ProviderLoads.WithLabelValues("a", "unchanged")))
}

func (s *ManagerSuite) TestRebuildOnUpdate() {
	_, err := s.m.Refresh(context.Background(), s.doc)
	s.Require().NoError(err)
	s.b.set(reference.Entry{ID: "z", Title: "Zebra"})
	_, err = s.m.Refresh(context.Background(), s.doc)
	s.Require().NoError(err)

	s.Equal(uint64(2), s.m.Generation())
	_, ok := s.m.FindByID("y")
	s.False(ok)
	got := s.m.Search("zebra", 10)
	s.Require().Len(got, 1)
	s.Equal("z", got[0].ID)
}

func (s *ManagerSuite) TestFailureKeepsOthersAndWarns() {
	_, err := s.m.Refresh(context.Background(), s.doc)
	s.Require().NoError(err)

	s.b.mu.Lock()
	s.b.fail = errors.New("boom")
	s.b.mu.Unlock()
	s.a.set(reference.Entry{ID: "x", DOI: "10.1/a"}, reference.Entry{ID: "w"})

	entries, err := s.m.Refresh(context.Background(), s.doc)
	s.Require().NoError(err)
	s.Len(entries, 3, "b's previous snapshot is still merged")
	s.Equal("stub unavailable", s.m.Warning())

	s.b.mu.Lock()
	s.b.fail = nil
	s.b.mu.Unlock()
	_, err = s.m.Refresh(context.Background(), s.doc)
	s.Require().NoError(err)
	s.Empty(s.m.Warning(), "a fully successful refresh clears the warning")
}

func (s *ManagerSuite) TestConcurrentRefreshShares() {
	s.a.gate = make(chan struct{})
	s.a.started = make(chan struct{})
	started := s.a.started

	var wg sync.WaitGroup
	results := make([][]reference.Entry, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = s.m.Refresh(context.Background(), s.doc)
		}()
		if i == 0 {
			<-started
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(s.a.gate)
	wg.Wait()

	s.Equal(int32(1), s.a.loads.Load())
	s.Equal(results[0], results[1])
	s.Len(results[0], 2)
}

func (s *ManagerSuite) TestSearchHitsAreAlwaysResolvable() {
	// The catalogue only grows, so a hit that search returns stays
	// resolvable by id.
	entries := []reference.Entry{{ID: "e0"}}
	s.a.set(entries...)
	_, err := s.m.Refresh(context.Background(), s.doc)
	s.Require().NoError(err)

	done := make(chan struct{})
	var missing atomic.Int32
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for _, e := range s.m.Search("", 0) {
					if _, ok := s.m.FindByID(e.ID); !ok {
						missing.Add(1)
					}
				}
			}
		}()
	}

	for i := 1; i <= 300; i++ {
		entries = append(entries, reference.Entry{ID: fmt.Sprintf("e%d", i)})
		s.a.set(entries...)
		_, err := s.m.Refresh(context.Background(), s.doc)
		s.Require().NoError(err)
	}
	close(done)
	wg.Wait()

	s.Zero(missing.Load())
	_, ok := s.m.FindByID("e300")
	s.True(ok)
}

func (s *ManagerSuite) TestSearchAndExact() {
	_, err := s.m.Refresh(context.Background(), s.doc)
	s.Require().NoError(err)

	s.Len(s.m.SearchExact("x"), 1)
	s.Empty(s.m.SearchExact("x2"))
	s.Len(s.m.Search("", 1), 1)
	s.Equal(map[string]bool{"x": true, "y": true}, s.m.IDs())
}

func (s *ManagerSuite) TestIsCurrent() {
	s.False(s.m.IsCurrent(s.doc))
	_, err := s.m.Refresh(context.Background(), s.doc)
	s.Require().NoError(err)
	s.True(s.m.IsCurrent(s.doc))

	other := &document.Context{Path: "/tmp/other.qmd"}
	s.False(s.m.IsCurrent(other))
}

func (s *ManagerSuite) TestCollectionsAndProvider() {
	s.b.cols = []reference.Collection{{Key: "k2", Name: "Child", ParentKey: "k1"}, {Key: "k1", Name: "Root"}}
	cols := s.m.Collections(s.doc)
	s.Require().Len(cols, 1)
	s.Equal("b", cols[0].Provider)
	s.Require().Len(cols[0].Forest, 1)
	s.Equal("k1", cols[0].Forest[0].Key)

	p, ok := s.m.Provider("a")
	s.True(ok)
	s.Equal("a", p.Key())
	_, ok = s.m.Provider("missing")
	s.False(ok)
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func TestMerge_Uniqueness(t *testing.T) {
	merged, byID, byDOI := Merge(
		[]reference.Entry{{ID: "a"}, {ID: "a", Title: "dup"}, {ID: ""}},
		[]reference.Entry{{ID: "b", DOI: "10.5/X"}, {ID: "c", DOI: "https://doi.org/10.5/x"}},
	)
	require.Len(t, merged, 2)
	assert.Equal(t, "", merged[0].Title)
	assert.Equal(t, 1, byID["b"])
	assert.Len(t, byDOI, 1)
}
