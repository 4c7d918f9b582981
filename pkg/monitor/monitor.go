// Package monitor runs the memory conditions on a fixed delay and fires the
// trigger when any of them is violated and the frequency allows it.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"GoMemoryAssistant/pkg/condition"
	"GoMemoryAssistant/pkg/health"
	"GoMemoryAssistant/pkg/limiter"
	"GoMemoryAssistant/pkg/threshold"
)

// Options configures a Monitor.
type Options struct {
	Conditions    []Condition
	CheckInterval time.Duration

	Source  health.Source
	Limiter *limiter.Limiter
	Trigger Trigger

	Clock    clock.Clock
	Logger   *zap.Logger
	Observer Observer
}

// Monitor manages the background routine that checks the memory conditions.
type Monitor struct {
	opts   Options
	clock  clock.Clock
	logger *zap.Logger

	mu         sync.Mutex
	state      State
	evaluators []condition.Evaluator
	stale      bool
	cancel     context.CancelFunc
	done       chan struct{}
	err        error

	// serializes checks
	checkMu sync.Mutex

	// at most one suppression warning per frequency window
	suppressed *rate.Limiter
}

// New validates the options and builds the evaluators.
func New(opts Options) (*Monitor, error) {
	if opts.Source == nil {
		return nil, errors.New("monitor: no sample source")
	}
	if opts.Trigger == nil {
		return nil, errors.New("monitor: no trigger")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Limiter == nil {
		opts.Limiter = limiter.New(nil, nil)
	}

	m := &Monitor{
		opts:   opts,
		clock:  opts.Clock,
		logger: opts.Logger.Named("monitor"),
		done:   make(chan struct{}),
	}
	close(m.done)

	if f := opts.Limiter.Frequency(); f != nil {
		m.suppressed = rate.NewLimiter(rate.Every(f.Window), 1)
	}

	evaluators, err := m.buildEvaluators()
	if err != nil {
		return nil, err
	}
	m.evaluators = evaluators
	return m, nil
}

func (m *Monitor) buildEvaluators() ([]condition.Evaluator, error) {
	var evaluators []condition.Evaluator
	for _, c := range m.opts.Conditions {
		if c.Spec == nil || c.Spec.Kind() == threshold.KindDisabled {
			continue
		}
		ev, err := condition.New(c.Pool, c.Spec, m.opts.Source, condition.Options{
			Clock:  m.clock,
			Logger: m.opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		evaluators = append(evaluators, ev)
	}
	return evaluators, nil
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed when the scheduling loop has ended, or was never started.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

// Err returns the unrecoverable error that ended the loop, if any.
func (m *Monitor) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Start schedules the checks. Starting a running monitor does nothing, and
// starting one whose previous loop has not ended yet fails with ErrStopping.
// Measurement histories start empty on every start.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Stopping:
		return ErrStopping
	case Starting, Running:
		return nil
	}
	m.state = Starting

	if m.stale {
		evaluators, err := m.buildEvaluators()
		if err != nil {
			m.state = Stopped
			return err
		}
		m.evaluators = evaluators
		m.stale = false
	}
	m.err = nil

	if len(m.evaluators) == 0 {
		m.logger.Warn("No memory conditions have been specified; the heap-dump agent will not perform checks")
		m.state = Stopped
		return nil
	}
	if m.opts.CheckInterval <= 0 {
		m.logger.Error("Memory conditions have been specified, but no check interval has been provided; the heap-dump agent will not perform checks")
		m.state = Stopped
		return nil
	}

	for _, ev := range m.evaluators {
		m.logger.Debug("Memory condition", zap.String("pool", ev.Pool()), zap.Stringer("condition", ev))
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.state = Running

	go m.run(loopCtx, m.done)

	m.logger.Info("Memory monitor started",
		zap.Int("conditions", len(m.evaluators)), zap.Duration("interval", m.opts.CheckInterval))
	return nil
}

// Stop cancels future checks and waits for a running one to finish. When ctx
// ends first the monitor stays Stopping until the check in flight returns.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Stopped {
		m.mu.Unlock()
		return nil
	}
	m.state = Stopping
	if m.cancel != nil {
		m.cancel()
	}
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.logger.Info("Memory monitor stopped")
	return nil
}

// run is a fixed-delay loop: the next delay starts when a check ends.
func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		if m.state == Stopping {
			m.state = Stopped
			m.stale = true
		}
		m.mu.Unlock()
		close(done)
	}()

	timer := m.clock.NewTimer(m.opts.CheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			if ctx.Err() != nil {
				return
			}
		}

		// a check in flight is never cancelled halfway
		report := m.Check(context.WithoutCancel(ctx))
		if report.Fatal != nil {
			m.fail(report.Fatal)
			return
		}
		timer.Reset(m.opts.CheckInterval)
	}
}

func (m *Monitor) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
	m.state = Stopped
	m.stale = true
	m.logger.Error("Memory monitor stopped after an unrecoverable error", zap.Error(err))
}

// Check evaluates every condition once and triggers when needed.
func (m *Monitor) Check(ctx context.Context) Report {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	m.mu.Lock()
	evaluators := m.evaluators
	m.mu.Unlock()

	now := m.clock.Now()
	report := Report{Time: now}

	for _, ev := range evaluators {
		res, err := evaluate(ctx, ev)
		if err != nil {
			if errors.Is(err, health.ErrUnrecoverable) {
				report.Fatal = err
				break
			}
			m.logger.Error("Cannot evaluate memory condition", zap.String("pool", ev.Pool()), zap.Error(err))
			report.Faults = append(report.Faults, Fault{Pool: ev.Pool(), Err: err})
			continue
		}
		report.Results = append(report.Results, res)
		if res.Verdict == condition.Violated {
			report.Reasons = append(report.Reasons, res.Message)
		}
	}

	if report.Fatal == nil && len(report.Reasons) > 0 {
		m.fire(ctx, now, &report)
	}

	if m.opts.Observer != nil {
		m.opts.Observer.ObserveCheck(report)
	}
	return report
}

func (m *Monitor) fire(ctx context.Context, now time.Time, report *Report) {
	reasons := "* " + strings.Join(report.Reasons, "\n* ")

	ok, err := m.opts.Limiter.TryTrigger(ctx, now)
	if err != nil {
		m.logger.Error("Cannot reserve the heap dump in the history; skipping heap dump", zap.Error(err))
		report.Suppressed = true
		report.TriggerErr = err
		return
	}
	if !ok {
		report.Suppressed = true
		m.logger.Debug("Heap dump suppressed:\n" + reasons)
		if m.suppressed != nil && m.suppressed.AllowN(now, 1) {
			f := m.opts.Limiter.Frequency()
			m.logger.Warn(fmt.Sprintf("Heap dump suppressed: maximum frequency of %d per %s reached",
				f.MaxCount, f.Window))
		}
		return
	}

	m.logger.Info("Triggering heap dump because:\n" + reasons)
	report.Triggered = true
	if err := invoke(ctx, m.opts.Trigger, now); err != nil {
		report.TriggerErr = err
		if errors.Is(err, health.ErrUnrecoverable) {
			report.Fatal = err
		}
		m.logger.Error("Heap dump failed", zap.Error(err))
		return
	}
	m.logger.Info("Heap dump completed")
}

func evaluate(ctx context.Context, ev condition.Evaluator) (res condition.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(fmt.Sprintf("memory pool '%s'", ev.Pool()), r)
		}
	}()
	return ev.Evaluate(ctx)
}

func invoke(ctx context.Context, t Trigger, at time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered("heap dump", r)
		}
	}()
	return t.Trigger(ctx, at)
}

// recovered turns a panic value into an error, keeping error values
// reachable through errors.Is.
func recovered(what string, r any) error {
	if e, ok := r.(error); ok {
		return fmt.Errorf("panic in %s: %w", what, e)
	}
	return fmt.Errorf("panic in %s: %v", what, r)
}
