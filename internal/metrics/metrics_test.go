package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRefresh(time.Second)
	m.IncProviderLoad("local", "updated")
	m.IncIndexRebuild()
	m.ObserveRemoteSearch("crossref", "ok", time.Millisecond)
	m.IncCommit("remote", "inserted")
}

func TestRegisteredCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncProviderLoad("local", "updated")
	m.IncProviderLoad("local", "updated")
	m.IncProviderLoad("library", "failed")
	m.IncIndexRebuild()
	m.ObserveRefresh(10 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ProviderLoads.WithLabelValues("local", "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderLoads.WithLabelValues("library", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexRebuilds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestUnregisteredInstancesDoNotCollide(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.IncIndexRebuild()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.IndexRebuilds))
}
