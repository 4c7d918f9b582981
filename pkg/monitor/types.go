package monitor

import (
	"context"
	"errors"
	"time"

	"GoMemoryAssistant/pkg/condition"
	"GoMemoryAssistant/pkg/threshold"
)

// State of the monitor lifecycle.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

var stateNames = []string{
	Stopped:  "stopped",
	Starting: "starting",
	Running:  "running",
	Stopping: "stopping",
}

func (s State) String() string {
	return stateNames[s]
}

// ErrStopping is returned by Start while the previous loop is still ending.
var ErrStopping = errors.New("monitor: still stopping")

// Trigger performs the expensive action, typically a heap dump.
type Trigger interface {
	Trigger(ctx context.Context, at time.Time) error
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, at time.Time) error

func (f TriggerFunc) Trigger(ctx context.Context, at time.Time) error {
	return f(ctx, at)
}

// Observer receives the report of every check.
type Observer interface {
	ObserveCheck(Report)
}

// Condition binds a threshold to a pool.
type Condition struct {
	Pool string
	Spec threshold.Spec
}

// Fault is a pool that could not be evaluated in a check.
type Fault struct {
	Pool string
	Err  error
}

// Report is the outcome of one check.
type Report struct {
	Time    time.Time
	Results []condition.Result
	// Reasons holds the messages of the violated conditions.
	Reasons []string
	Faults  []Fault

	// Triggered is set when the trigger was invoked, even if it failed.
	Triggered  bool
	Suppressed bool
	TriggerErr error

	// Fatal is set when the check hit an unrecoverable error. The scheduler
	// stops after such a check.
	Fatal error
}
