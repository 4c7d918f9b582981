package limiter

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoMemoryAssistant/pkg/threshold"
)

func mustFrequency(t *testing.T, raw string) *threshold.Frequency {
	t.Helper()
	f, err := threshold.ParseFrequency(raw)
	require.NoError(t, err)
	return &f
}

// attempt reserves a trigger at the given time.
func attempt(t *testing.T, l *Limiter, at time.Time) bool {
	t.Helper()
	ok, err := l.TryTrigger(context.Background(), at)
	require.NoError(t, err)
	return ok
}

func histories(t *testing.T) map[string]func() History {
	t.Helper()
	hs := map[string]func() History{
		"memory": func() History { return NewMemoryHistory() },
		"sqlite": func() History {
			h, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "history.db"), "test")
			require.NoError(t, err)
			return h
		},
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		hs["redis"] = func() History {
			h, err := DialRedis(context.Background(), RedisOptions{Address: addr, Key: "memassist:test:" + uuid.NewString()})
			require.NoError(t, err)
			return h
		}
	}
	return hs
}

func TestOneTriggerPerWindow(t *testing.T) {
	for name, newHistory := range histories(t) {
		t.Run(name, func(t *testing.T) {
			h := newHistory()
			defer h.Close()

			l := New(mustFrequency(t, "1/150ms"), h)
			start := time.Now().Truncate(time.Second)
			at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }

			assert.True(t, attempt(t, l, at(100)))
			assert.False(t, attempt(t, l, at(200)))
			assert.True(t, attempt(t, l, at(251)))
			assert.False(t, attempt(t, l, at(300)))
		})
	}
}

func TestAtMostMaxCountPerWindow(t *testing.T) {
	for name, newHistory := range histories(t) {
		t.Run(name, func(t *testing.T) {
			h := newHistory()
			defer h.Close()

			l := New(mustFrequency(t, "3/s"), h)
			start := time.Now().Truncate(time.Second)

			var accepted []time.Time
			for ms := 0; ms < 5000; ms += 100 {
				at := start.Add(time.Duration(ms) * time.Millisecond)
				if attempt(t, l, at) {
					accepted = append(accepted, at)
				}
			}

			require.NotEmpty(t, accepted)
			for i := range accepted {
				inWindow := 0
				for _, other := range accepted {
					if !other.After(accepted[i]) && other.After(accepted[i].Add(-time.Second)) {
						inWindow++
					}
				}
				assert.LessOrEqual(t, inWindow, 3, "window ending at %s", accepted[i])
			}
			// One in, one out: every full second lets exactly three through.
			assert.Len(t, accepted, 15)
		})
	}
}

func TestNoFrequencyAlwaysAllows(t *testing.T) {
	h := NewMemoryHistory()
	l := New(nil, h)
	now := time.Now()

	for i := 0; i < 10; i++ {
		assert.True(t, attempt(t, l, now))
	}
	assert.Empty(t, h.Times())
	assert.Nil(t, l.Frequency())
}

func TestMemoryHistoryPrunes(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	start := time.Unix(100, 0)

	require.NoError(t, h.Record(ctx, start, time.Second))
	require.NoError(t, h.Record(ctx, start.Add(500*time.Millisecond), time.Second))
	require.NoError(t, h.Record(ctx, start.Add(time.Second), time.Second))

	assert.Equal(t, []time.Time{start.Add(500 * time.Millisecond), start.Add(time.Second)}, h.Times())

	n, err := h.CountSince(ctx, start.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type brokenHistory struct{ MemoryHistory }

func (*brokenHistory) CountSince(context.Context, time.Time) (int, error) {
	return 0, assert.AnError
}

func (*brokenHistory) Reserve(context.Context, time.Time, time.Duration, int) (bool, error) {
	return false, assert.AnError
}

func TestHistoryErrorDenies(t *testing.T) {
	l := New(mustFrequency(t, "1/m"), &brokenHistory{})

	ok, err := l.CanTrigger(context.Background(), time.Now())
	assert.False(t, ok)
	assert.ErrorIs(t, err, assert.AnError)

	ok, err = l.TryTrigger(context.Background(), time.Now())
	assert.False(t, ok)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCanTriggerDoesNotReserve(t *testing.T) {
	h := NewMemoryHistory()
	l := New(mustFrequency(t, "1/m"), h)
	now := time.Now()

	for i := 0; i < 3; i++ {
		ok, err := l.CanTrigger(context.Background(), now)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Empty(t, h.Times())

	assert.True(t, attempt(t, l, now))
	ok, err := l.CanTrigger(context.Background(), now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordTriggerIgnoresBudget(t *testing.T) {
	for name, newHistory := range histories(t) {
		t.Run(name, func(t *testing.T) {
			h := newHistory()
			defer h.Close()
			l := New(mustFrequency(t, "1/m"), h)
			now := time.Now()
			ctx := context.Background()

			require.NoError(t, l.RecordTrigger(ctx, now))
			require.NoError(t, l.RecordTrigger(ctx, now.Add(time.Second)))
			n, err := h.CountSince(ctx, now.Add(-time.Minute))
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			// a full budget refuses a reservation until one trigger ages out
			assert.False(t, attempt(t, l, now.Add(2*time.Second)))
			assert.False(t, attempt(t, l, now.Add(time.Minute)))
			assert.True(t, attempt(t, l, now.Add(time.Minute+time.Second+time.Millisecond)))
		})
	}
}

func TestConcurrentReplicasShareBudget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	now := time.Now()

	const replicas = 4
	limiters := make([]*Limiter, replicas)
	for i := range limiters {
		h, err := OpenSQLite(path, "svc")
		require.NoError(t, err)
		limiters[i] = New(mustFrequency(t, "1/h"), h)
		defer limiters[i].Close()
	}

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for _, l := range limiters {
		wg.Add(1)
		go func(l *Limiter) {
			defer wg.Done()
			ok, err := l.TryTrigger(context.Background(), now)
			assert.NoError(t, err)
			if ok {
				allowed.Add(1)
			}
		}(l)
	}
	wg.Wait()

	assert.Equal(t, int32(1), allowed.Load())
	n, err := limiters[0].history.CountSince(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConcurrentTriggersShareBudget(t *testing.T) {
	for name, newHistory := range histories(t) {
		t.Run(name, func(t *testing.T) {
			h := newHistory()
			defer h.Close()
			l := New(mustFrequency(t, "2/h"), h)
			now := time.Now()

			var wg sync.WaitGroup
			var allowed atomic.Int32
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := l.TryTrigger(context.Background(), now)
					assert.NoError(t, err)
					if ok {
						allowed.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(2), allowed.Load())
		})
	}
}

func TestRedisHistoryBorrowedClientStaysOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	h := NewRedisHistory(rdb, "memassist:triggers")
	require.NoError(t, h.Close())
	assert.Equal(t, "memassist:triggers", h.Key)
}

func TestSQLiteHistorySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()
	now := time.Now()

	h, err := OpenSQLite(path, "svc")
	require.NoError(t, err)
	ok, err := h.Reserve(ctx, now, time.Hour, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h.Close())

	h, err = OpenSQLite(path, "svc")
	require.NoError(t, err)
	defer h.Close()

	n, err := h.CountSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	other, err := OpenSQLite(path, "other")
	require.NoError(t, err)
	defer other.Close()
	n, err = other.CountSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
