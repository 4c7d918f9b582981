// Package agent wires the configuration, the sample source, the trigger
// history, the heap dump creator and the monitor into one lifecycle.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"GoMemoryAssistant/pkg/config"
	"GoMemoryAssistant/pkg/dump"
	"GoMemoryAssistant/pkg/health"
	"GoMemoryAssistant/pkg/hooks"
	"GoMemoryAssistant/pkg/limiter"
	"GoMemoryAssistant/pkg/monitor"
	"GoMemoryAssistant/pkg/observability"
)

// Options carries the collaborators that are not part of the configuration.
type Options struct {
	Logger *zap.Logger
	Clock  clock.Clock
	// Source replaces the source selected by the configuration.
	Source health.Source
	// Recorder receives every check report. May be nil.
	Recorder *observability.Recorder
	// HostName is used by the %host_name% token. Looked up when empty.
	HostName string
}

// Agent is a configured memory assistant.
type Agent struct {
	cfg     *config.Config
	logger  *zap.Logger
	source  health.Source
	limiter *limiter.Limiter
	hooks   *hooks.Executor
	creator *dump.Creator
	monitor *monitor.Monitor
}

// New builds an agent from cfg. It connects to the trigger history backend,
// so it may block on the network.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Agent, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	logger := opts.Logger

	for _, o := range cfg.Overrides {
		logger.Debug(o)
	}
	if len(cfg.Warnings) > 0 {
		logger.Warn("The provided configurations have the following issues:\n* " + strings.Join(cfg.Warnings, "\n* "))
	}

	a := &Agent{cfg: cfg, logger: logger}

	a.source = opts.Source
	if a.source == nil {
		source, err := newSource(cfg, opts)
		if err != nil {
			return nil, err
		}
		a.source = source
	}

	history, err := newHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.limiter = limiter.New(cfg.MaxFrequency, history)

	a.creator, err = a.newCreator(opts)
	if err != nil {
		_ = a.limiter.Close()
		return nil, err
	}

	var conditions []monitor.Condition
	for _, t := range cfg.Thresholds {
		conditions = append(conditions, monitor.Condition{Pool: t.Pool, Spec: t.Spec})
	}
	monitorOpts := monitor.Options{
		Conditions:    conditions,
		CheckInterval: cfg.CheckInterval,
		Source:        a.source,
		Limiter:       a.limiter,
		Trigger:       a.creator,
		Clock:         opts.Clock,
		Logger:        logger,
	}
	if opts.Recorder != nil {
		monitorOpts.Observer = opts.Recorder
	}
	a.monitor, err = monitor.New(monitorOpts)
	if err != nil {
		_ = a.limiter.Close()
		return nil, err
	}
	return a, nil
}

func newSource(cfg *config.Config, opts Options) (health.Source, error) {
	switch cfg.Source {
	case config.SourceSimulated:
		return health.NewSimulatedSource(health.SimulatedOptions{Clock: opts.Clock, Logger: opts.Logger}), nil
	case config.SourcePrometheus:
		source, err := health.NewPrometheusSource(health.PrometheusOptions{
			Address:  cfg.Prometheus.URL,
			Selector: cfg.Prometheus.Selector,
			Clock:    opts.Clock,
			Logger:   opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create prometheus source: %w", err)
		}
		return source, nil
	default:
		return health.NewRuntimeSource(opts.Clock), nil
	}
}

func newHistory(ctx context.Context, cfg *config.Config) (limiter.History, error) {
	switch cfg.History.Backend {
	case config.HistoryRedis:
		h, err := limiter.DialRedis(ctx, limiter.RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.History.Key,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to the redis trigger history: %w", err)
		}
		return h, nil
	case config.HistorySQLite:
		h, err := limiter.OpenSQLite(cfg.SQLitePath, cfg.History.Key)
		if err != nil {
			return nil, fmt.Errorf("open the sqlite trigger history: %w", err)
		}
		return h, nil
	default:
		return limiter.NewMemoryHistory(), nil
	}
}

func (a *Agent) newCreator(opts Options) (*dump.Creator, error) {
	var writer dump.Writer
	if a.cfg.RemotePprofURL != "" {
		writer = dump.NewRemoteProfileWriter(a.cfg.RemotePprofURL)
	} else {
		w, err := dump.NewWriter(a.cfg.HeapDumpFormat)
		if err != nil {
			return nil, err
		}
		writer = w
	}

	names, err := dump.NewNameFormatter(a.cfg.HeapDumpName, opts.HostName)
	if err != nil {
		return nil, err
	}

	a.hooks = hooks.NewExecutor(a.cfg.Commands, a.logger)
	return dump.NewCreator(dump.CreatorOptions{
		Folder: a.cfg.HeapDumpFolder,
		Names:  names,
		Writer: writer,
		Hooks:  a.hooks,
		Logger: a.logger,
	})
}

// Start starts the monitor. A disabled agent does nothing.
func (a *Agent) Start(ctx context.Context) error {
	if !a.cfg.Enabled {
		a.logger.Info("The memory assistant is disabled")
		return nil
	}
	return a.monitor.Start(ctx)
}

// Stop stops the monitor, runs the shutdown command and releases the trigger
// history.
func (a *Agent) Stop(ctx context.Context) error {
	var errs []error
	if err := a.monitor.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.cfg.Enabled {
		if err := a.hooks.OnShutdown(ctx); err != nil {
			a.logger.Error("Execution of the command on shutdown failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if err := a.limiter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close trigger history: %w", err))
	}
	return errors.Join(errs...)
}

// Check runs one check outside of the schedule.
func (a *Agent) Check(ctx context.Context) monitor.Report {
	return a.monitor.Check(ctx)
}

// Done is closed when the monitor is not running.
func (a *Agent) Done() <-chan struct{} {
	return a.monitor.Done()
}

// Err returns the unrecoverable error that stopped the monitor, if any.
func (a *Agent) Err() error {
	return a.monitor.Err()
}

// State returns the monitor state.
func (a *Agent) State() monitor.State {
	return a.monitor.State()
}

// LastDump returns the path of the last heap dump, or "".
func (a *Agent) LastDump() string {
	return a.creator.Last()
}

// Source returns the sample source in use.
func (a *Agent) Source() health.Source {
	return a.source
}
