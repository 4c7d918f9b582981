package health

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// Base load of each simulated pool as a share of the maximum.
var simulatedBase = map[string]float64{
	PoolHeap:     0.45,
	PoolStack:    0.02,
	PoolMetadata: 0.03,
	PoolTotal:    0.60,
}

// SimulatedOptions configures a SimulatedSource.
type SimulatedOptions struct {
	// Max is the maximum of every pool in bytes. Defaults to 1GB.
	Max int64
	// Seed makes the random walk reproducible. Zero picks a random seed.
	Seed int64
	// Drift is added to every pool's load on each sample, e.g. 0.01 makes the
	// usage grow by one percentage point per sample.
	Drift float64

	Clock  clock.PassiveClock
	Logger *zap.Logger
}

type simulatedPool struct {
	load  float64
	fixed *int64
	err   error
}

// SimulatedSource simulates a process whose pools wander around a base load.
type SimulatedSource struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	max    int64
	drift  float64
	pools  map[string]*simulatedPool
	clock  clock.PassiveClock
	logger *zap.Logger
}

// NewSimulatedSource creates a new instance.
func NewSimulatedSource(opts SimulatedOptions) *SimulatedSource {
	if opts.Max <= 0 {
		opts.Max = 1 << 30
	}
	if opts.Seed == 0 {
		opts.Seed = rand.Int63()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	pools := make(map[string]*simulatedPool, len(simulatedBase))
	for name, base := range simulatedBase {
		pools[name] = &simulatedPool{load: base}
	}

	return &SimulatedSource{
		rnd:    rand.New(rand.NewSource(opts.Seed)),
		max:    opts.Max,
		drift:  opts.Drift,
		pools:  pools,
		clock:  opts.Clock,
		logger: opts.Logger.Named("simulated-source"),
	}
}

// Set pins the used bytes of pool until Release is called.
func (s *SimulatedSource) Set(pool string, used int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pools[pool]; ok {
		p.fixed = &used
	}
}

// Release lets pool wander again.
func (s *SimulatedSource) Release(pool string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pools[pool]; ok {
		p.fixed = nil
	}
}

// Fail makes every following sample of pool return err; nil clears it.
func (s *SimulatedSource) Fail(pool string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pools[pool]; ok {
		p.err = err
	}
}

// Sample implements Source by generating synthetic data.
func (s *SimulatedSource) Sample(_ context.Context, pool string) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[pool]
	if !ok {
		return Usage{}, fmt.Errorf("%w: %s", ErrUnknownPool, pool)
	}
	if p.err != nil {
		return Usage{}, p.err
	}

	var used int64
	if p.fixed != nil {
		used = *p.fixed
	} else {
		// +/- 2.5 percentage points of noise around the drifting load
		p.load += s.drift
		load := p.load + (s.rnd.Float64()*0.05 - 0.025)
		if load < 0.001 {
			load = 0.001
		}
		if load > 1 {
			load = 1
		}
		used = int64(load * float64(s.max))
	}

	u := Usage{Pool: pool, Used: used, Max: s.max, Time: s.clock.Now()}
	s.logger.Debug("Sampled memory pool",
		zap.String("pool", pool), zap.Int64("used", u.Used), zap.Float64("ratio", u.Ratio()))
	return u, nil
}
