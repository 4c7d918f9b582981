package condition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"GoMemoryAssistant/pkg/health"
	"GoMemoryAssistant/pkg/threshold"
)

// Measurement is one usage ratio (in percent) taken at Time.
type Measurement struct {
	Time  time.Time
	Ratio float64
}

// increase keeps a short history of measurements and compares the newest
// with the oldest one that is still inside the window.
type increase struct {
	pool   string
	spec   threshold.IncreaseOverTimeframe
	source health.Source
	clock  clock.PassiveClock
	logger *zap.Logger

	timeframe time.Duration
	period    time.Duration // half the time-frame, minimum distance between samples

	mu           sync.Mutex
	measurements []Measurement
}

func newIncrease(pool string, spec threshold.IncreaseOverTimeframe, source health.Source,
	clk clock.PassiveClock, logger *zap.Logger) *increase {
	tf := spec.TimeframeMillis()
	return &increase{
		pool:      pool,
		spec:      spec,
		source:    source,
		clock:     clk,
		logger:    logger,
		timeframe: time.Duration(tf) * time.Millisecond,
		period:    time.Duration(tf/2) * time.Millisecond,
	}
}

func (i *increase) Pool() string         { return i.pool }
func (i *increase) Spec() threshold.Spec { return i.spec }

func (i *increase) Evaluate(ctx context.Context) (Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.clock.Now()

	if n := len(i.measurements); n > 0 {
		if now.Sub(i.measurements[n-1].Time) < i.period {
			return Result{Pool: i.pool, Verdict: Undecided}, nil
		}
		i.prune(now)
	}

	u, err := sample(ctx, i.source, i.pool)
	if err != nil {
		return Result{Pool: i.pool}, err
	}
	r, err := ratio(u)
	if err != nil {
		return Result{Pool: i.pool, Usage: u}, err
	}

	i.measurements = append(i.measurements, Measurement{Time: now, Ratio: r})
	if len(i.measurements) < 2 {
		i.logger.Debug("First measurement for memory pool", zap.Float64("ratio", r))
		return Result{Pool: i.pool, Verdict: Undecided, Usage: u}, nil
	}

	first, last := i.measurements[0], i.measurements[len(i.measurements)-1]
	actual := last.Ratio - first.Ratio
	elapsed := last.Time.Sub(first.Time)
	over := threshold.FormatElapsed(i.spec.Unit.FromMillis(elapsed.Milliseconds())) + i.spec.Unit.String()

	if actual >= i.spec.DeltaPercent && elapsed >= i.timeframe {
		return Result{
			Pool:    i.pool,
			Verdict: Violated,
			Usage:   u,
			Message: fmt.Sprintf("Memory pool '%s' at %s%% usage, increased from %s%% by more than maximum %s%% increase (actual increase: %s%%) over the last %s",
				i.pool, threshold.FormatDecimal(last.Ratio), threshold.FormatDecimal(first.Ratio),
				threshold.FormatDecimal(i.spec.DeltaPercent), threshold.FormatDecimal(actual), over),
		}, nil
	}

	msg := fmt.Sprintf("Memory pool '%s' at %s%% usage, changed from %s%% by less than maximum %s%% increase (actual increase: %s%%) over the last %s",
		i.pool, threshold.FormatDecimal(last.Ratio), threshold.FormatDecimal(first.Ratio),
		threshold.FormatDecimal(i.spec.DeltaPercent), threshold.FormatDecimal(actual), over)
	i.logger.Debug(msg)
	return Result{Pool: i.pool, Verdict: Satisfied, Usage: u, Message: msg}, nil
}

// prune drops measurements older than 2.5 periods, keeping at least one.
// The margin absorbs scheduling jitter.
func (i *increase) prune(now time.Time) {
	oldest := now.Add(-time.Duration(float64(i.period.Milliseconds())*2.5) * time.Millisecond)
	drop := 0
	for drop < len(i.measurements)-1 && i.measurements[drop].Time.Before(oldest) {
		drop++
	}
	if drop > 0 {
		i.measurements = append(i.measurements[:0], i.measurements[drop:]...)
	}
}

// Measurements returns a copy of the retained history, oldest first.
func (i *increase) Measurements() []Measurement {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Measurement(nil), i.measurements...)
}

func (i *increase) String() string {
	return fmt.Sprintf("Memory pool '%s' increased by %s%% or more within %s%s", i.pool,
		threshold.FormatDecimal(i.spec.DeltaPercent), threshold.FormatDecimal(i.spec.Timeframe), i.spec.Unit)
}
