// Package condition turns memory pool samples into violation decisions.
//
// A violated threshold is a normal result, not an error: Evaluate returns an
// error only when the pool could not be evaluated at all.
package condition

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"GoMemoryAssistant/pkg/health"
	"GoMemoryAssistant/pkg/threshold"
)

// Verdict is the outcome of one evaluation.
type Verdict int

const (
	// Undecided means there was not enough data, or no sample was due.
	Undecided Verdict = iota
	Satisfied
	Violated
)

var verdictNames = []string{
	Undecided: "undecided",
	Satisfied: "satisfied",
	Violated:  "violated",
}

func (v Verdict) String() string {
	return verdictNames[v]
}

// Result describes one evaluation of one pool.
type Result struct {
	Pool    string
	Verdict Verdict
	// Message is the human readable reason; set for Violated and Satisfied.
	Message string
	// Usage is the sample the decision was taken on. Zero when no sample was
	// taken.
	Usage health.Usage
}

// Sampled reports whether the evaluation read the pool.
func (r Result) Sampled() bool {
	return !r.Usage.Time.IsZero()
}

// Evaluator decides whether one pool violates its threshold.
type Evaluator interface {
	Pool() string
	Spec() threshold.Spec
	Evaluate(ctx context.Context) (Result, error)
	// String describes the condition, e.g. for the start-up log.
	String() string
}

// Options carries the collaborators shared by all evaluators.
type Options struct {
	Clock  clock.PassiveClock
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// New builds the evaluator for spec. Disabled specs have no evaluator.
func New(pool string, spec threshold.Spec, source health.Source, opts Options) (Evaluator, error) {
	if source == nil {
		return nil, fmt.Errorf("no sample source for memory pool '%s'", pool)
	}
	opts = opts.withDefaults()
	logger := opts.Logger.Named("condition").With(zap.String("pool", pool))

	switch s := spec.(type) {
	case threshold.Absolute:
		return &absolute{pool: pool, spec: s, source: source}, nil
	case threshold.Percentage:
		return &percentage{pool: pool, spec: s, source: source}, nil
	case threshold.IncreaseOverTimeframe:
		return newIncrease(pool, s, source, opts.Clock, logger), nil
	case nil, threshold.Disabled:
		return nil, fmt.Errorf("memory pool '%s' has no threshold", pool)
	default:
		return nil, fmt.Errorf("memory pool '%s': unsupported threshold kind %s", pool, spec.Kind())
	}
}

func sample(ctx context.Context, source health.Source, pool string) (health.Usage, error) {
	u, err := source.Sample(ctx, pool)
	if err != nil {
		return health.Usage{}, fmt.Errorf("cannot sample memory pool '%s': %w", pool, err)
	}
	return u, nil
}

func ratio(u health.Usage) (float64, error) {
	if u.Max <= 0 {
		return 0, fmt.Errorf("memory pool '%s' has no defined maximum; percentage thresholds cannot be evaluated", u.Pool)
	}
	return u.Ratio(), nil
}
