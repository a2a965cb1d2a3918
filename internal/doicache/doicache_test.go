package doicache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/bipcite/internal/reference"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_, ok, err := m.Get(ctx, "10.1/x")
	require.NoError(t, err)
	assert.False(t, ok)

	e := reference.Entry{ID: "x", DOI: "10.1/X"}
	require.NoError(t, m.Put(ctx, "https://doi.org/10.1/X", e))

	got, ok, err := m.Get(ctx, "doi:10.1/x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e, got)

	now = now.Add(2 * time.Hour)
	_, ok, _ = m.Get(ctx, "10.1/x")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMemory_IgnoresEmptyDOI(t *testing.T) {
	m := NewMemory(0)
	require.NoError(t, m.Put(context.Background(), "", reference.Entry{ID: "x"}))
	assert.Equal(t, 0, m.Len())
}

// TestRedis runs against a real server when BIPCITE_TEST_REDIS_ADDR is set.
func TestRedis(t *testing.T) {
	addr := os.Getenv("BIPCITE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BIPCITE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := Dial(ctx, addr, WithTTL(time.Minute))
	require.NoError(t, err)
	defer r.Close()

	e := reference.Entry{ID: "redis2024", DOI: "10.9999/redis-test", Title: "Cached"}
	require.NoError(t, r.Put(ctx, e.DOI, e))

	got, ok, err := r.Get(ctx, "HTTPS://DOI.ORG/10.9999/REDIS-TEST")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e.Title, got.Title)

	_, ok, err = r.Get(ctx, "10.9999/absent")
	require.NoError(t, err)
	assert.False(t, ok)
}
