package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestUsageRatio(t *testing.T) {
	assert.Equal(t, 25.0, Usage{Used: 256, Max: 1024}.Ratio())
	assert.Equal(t, 0.0, Usage{Used: 256}.Ratio())
}

func TestKnownPool(t *testing.T) {
	for _, p := range Pools {
		assert.True(t, KnownPool(p))
	}
	assert.False(t, KnownPool("eden"))
}

func TestRuntimeSource(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := NewRuntimeSource(clocktesting.NewFakePassiveClock(now))
	src.limit = func() int64 { return 1 << 40 }

	for _, pool := range Pools {
		t.Run(pool, func(t *testing.T) {
			u, err := src.Sample(context.Background(), pool)
			require.NoError(t, err)
			assert.Equal(t, pool, u.Pool)
			assert.Equal(t, now, u.Time)
			assert.Equal(t, int64(1<<40), u.Max)
			if pool != PoolMetadata {
				assert.Positive(t, u.Used)
			}
		})
	}

	_, err := src.Sample(context.Background(), "eden")
	assert.ErrorIs(t, err, ErrUnknownPool)
}

func TestSimulatedSource(t *testing.T) {
	src := NewSimulatedSource(SimulatedOptions{Max: 1000, Seed: 42})
	ctx := context.Background()

	u, err := src.Sample(ctx, PoolHeap)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), u.Max)
	assert.InDelta(t, 450, u.Used, 30)

	src.Set(PoolHeap, 317)
	u, err = src.Sample(ctx, PoolHeap)
	require.NoError(t, err)
	assert.Equal(t, int64(317), u.Used)

	src.Release(PoolHeap)
	u, err = src.Sample(ctx, PoolHeap)
	require.NoError(t, err)
	assert.NotEqual(t, int64(317), u.Used)

	boom := errors.New("boom")
	src.Fail(PoolStack, boom)
	_, err = src.Sample(ctx, PoolStack)
	assert.ErrorIs(t, err, boom)

	_, err = src.Sample(ctx, "eden")
	assert.ErrorIs(t, err, ErrUnknownPool)
}

func TestSimulatedSourceDrift(t *testing.T) {
	src := NewSimulatedSource(SimulatedOptions{Max: 1000, Seed: 7, Drift: 0.1})
	ctx := context.Background()

	first, err := src.Sample(ctx, PoolTotal)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = src.Sample(ctx, PoolTotal)
		require.NoError(t, err)
	}
	last, err := src.Sample(ctx, PoolTotal)
	require.NoError(t, err)

	assert.Greater(t, last.Used, first.Used)
}

func fakePrometheus(t *testing.T, values map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query := r.Form.Get("query")

		w.Header().Set("Content-Type", "application/json")
		for metric, value := range values {
			if strings.HasPrefix(query, metric) {
				fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1714564800,%q]}]}}`, value)
				return
			}
		}
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	}))
}

func TestPrometheusSource(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		"go_memstats_heap_alloc_bytes": "536870912",
		"go_gc_gomemlimit_bytes":       "1073741824",
	})
	defer srv.Close()

	src, err := NewPrometheusSource(PrometheusOptions{Address: srv.URL, Selector: `{job="app"}`})
	require.NoError(t, err)

	u, err := src.Sample(context.Background(), PoolHeap)
	require.NoError(t, err)
	assert.Equal(t, int64(512<<20), u.Used)
	assert.Equal(t, int64(1<<30), u.Max)
	assert.Equal(t, 50.0, u.Ratio())

	_, err = src.Sample(context.Background(), PoolStack)
	assert.ErrorContains(t, err, "no data for memory pool 'stack'")
}

func TestPrometheusSourceUnsetLimit(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		"go_memstats_stack_inuse_bytes": "65536",
		"go_gc_gomemlimit_bytes":        "9.223372036854776e+18",
	})
	defer srv.Close()

	src, err := NewPrometheusSource(PrometheusOptions{Address: srv.URL})
	require.NoError(t, err)

	u, err := src.Sample(context.Background(), PoolStack)
	require.NoError(t, err)
	assert.Equal(t, int64(65536), u.Used)
	assert.Zero(t, u.Max)
}
