package health

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"runtime/metrics"
	"sync"

	"k8s.io/utils/clock"
)

var poolMetrics = map[string][]string{
	PoolHeap:  {"/memory/classes/heap/objects:bytes"},
	PoolStack: {"/memory/classes/heap/stacks:bytes"},
	PoolMetadata: {
		"/memory/classes/metadata/mcache/free:bytes",
		"/memory/classes/metadata/mcache/inuse:bytes",
		"/memory/classes/metadata/mspan/free:bytes",
		"/memory/classes/metadata/mspan/inuse:bytes",
		"/memory/classes/metadata/other:bytes",
	},
}

const (
	totalMetric    = "/memory/classes/total:bytes"
	releasedMetric = "/memory/classes/heap/released:bytes"
)

// RuntimeSource samples the pools of the current process through
// runtime/metrics. All pools share the effective memory limit as maximum.
type RuntimeSource struct {
	clock clock.PassiveClock

	mu      sync.Mutex
	samples []metrics.Sample
	index   map[string]int

	limit func() int64
}

// NewRuntimeSource creates a source reading the current process.
func NewRuntimeSource(clk clock.PassiveClock) *RuntimeSource {
	if clk == nil {
		clk = clock.RealClock{}
	}

	s := &RuntimeSource{clock: clk, index: map[string]int{}, limit: MemoryLimit}
	add := func(name string) {
		if _, ok := s.index[name]; ok {
			return
		}
		s.index[name] = len(s.samples)
		s.samples = append(s.samples, metrics.Sample{Name: name})
	}
	for _, names := range poolMetrics {
		for _, name := range names {
			add(name)
		}
	}
	add(totalMetric)
	add(releasedMetric)
	return s
}

// Sample implements Source.
func (s *RuntimeSource) Sample(_ context.Context, pool string) (Usage, error) {
	if !KnownPool(pool) {
		return Usage{}, fmt.Errorf("%w: %s", ErrUnknownPool, pool)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	metrics.Read(s.samples)

	var used uint64
	if pool == PoolTotal {
		total, err := s.value(totalMetric)
		if err != nil {
			return Usage{}, err
		}
		released, err := s.value(releasedMetric)
		if err != nil {
			return Usage{}, err
		}
		used = total - released
	} else {
		for _, name := range poolMetrics[pool] {
			v, err := s.value(name)
			if err != nil {
				return Usage{}, err
			}
			used += v
		}
	}

	return Usage{
		Pool: pool,
		Used: int64(used),
		Max:  s.limit(),
		Time: s.clock.Now(),
	}, nil
}

func (s *RuntimeSource) value(name string) (uint64, error) {
	sample := s.samples[s.index[name]]
	if sample.Value.Kind() != metrics.KindUint64 {
		return 0, fmt.Errorf("runtime metric %s is not supported by this Go version", name)
	}
	return sample.Value.Uint64(), nil
}

// MemoryLimit returns the effective memory limit of the process: the Go
// soft limit when one is set, else the cgroup or host memory, else 0.
func MemoryLimit() int64 {
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		return limit
	}
	total := systemMemoryLimit()
	if total > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(total)
}
