package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	clocktesting "k8s.io/utils/clock/testing"

	"GoMemoryAssistant/pkg/config"
	"GoMemoryAssistant/pkg/health"
	"GoMemoryAssistant/pkg/monitor"
	"GoMemoryAssistant/pkg/observability"
)

var epoch = time.Date(2024, 3, 7, 15, 4, 5, 0, time.UTC)

func loadConfig(t *testing.T, values map[string]string) *config.Config {
	t.Helper()
	base := map[string]string{
		"jma.enabled":          "true",
		"jma.heap_dump_folder": t.TempDir(),
		"jma.heap_dump_name":   "dump_%ts%.pprof",
		"jma.check_interval":   "1s",
		"jma.thresholds.heap":  "80%",
		"jma.max_frequency":    "1/1m",
	}
	for k, v := range values {
		base[k] = v
	}
	cfg, err := config.FromValues(base)
	require.NoError(t, err)
	return cfg
}

func simulated(fc *clocktesting.FakeClock) *health.SimulatedSource {
	src := health.NewSimulatedSource(health.SimulatedOptions{Max: 1000, Seed: 1, Clock: fc})
	src.Set(health.PoolHeap, 900)
	return src
}

func TestCheckTriggersHeapDump(t *testing.T) {
	fc := clocktesting.NewFakeClock(epoch)
	cfg := loadConfig(t, nil)
	rec := observability.NewRecorder()

	a, err := New(context.Background(), cfg, Options{Clock: fc, Source: simulated(fc), Recorder: rec})
	require.NoError(t, err)
	defer a.Stop(context.Background())

	rep := a.Check(context.Background())
	require.True(t, rep.Triggered)
	require.NoError(t, rep.TriggerErr)
	assert.Equal(t, []string{"Memory pool 'heap' at 90% usage, configured threshold is 80%"}, rep.Reasons)

	expected := filepath.Join(cfg.HeapDumpFolder, fmt.Sprintf("dump_%d.pprof", epoch.UnixMilli()))
	assert.Equal(t, expected, a.LastDump())
	assert.FileExists(t, expected)

	fc.Step(time.Second)
	rep = a.Check(context.Background())
	assert.False(t, rep.Triggered)
	assert.True(t, rep.Suppressed)

	series, err := testutil.GatherAndCount(rec.Registry(), "memassist_triggers_total", "memassist_suppressed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestScheduledChecks(t *testing.T) {
	fc := clocktesting.NewFakeClock(epoch)
	a, err := New(context.Background(), loadConfig(t, nil), Options{Clock: fc, Source: simulated(fc)})
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, monitor.Running, a.State())

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(time.Second)
	require.Eventually(t, func() bool { return a.LastDump() != "" }, time.Second, time.Millisecond)

	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, monitor.Stopped, a.State())
	assert.NoError(t, a.Err())
}

func TestDisabledAgentDoesNotStart(t *testing.T) {
	fc := clocktesting.NewFakeClock(epoch)
	core, logs := observer.New(zap.InfoLevel)
	cfg := loadConfig(t, map[string]string{"jma.enabled": "false"})

	a, err := New(context.Background(), cfg, Options{Clock: fc, Source: simulated(fc), Logger: zap.New(core)})
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, monitor.Stopped, a.State())
	assert.Equal(t, 1, logs.FilterMessage("The memory assistant is disabled").Len())
	assert.NoError(t, a.Stop(context.Background()))
}

func TestUnrecoverableSourceStopsAgent(t *testing.T) {
	fc := clocktesting.NewFakeClock(epoch)
	src := simulated(fc)
	src.Fail(health.PoolHeap, fmt.Errorf("%w: out of memory", health.ErrUnrecoverable))

	a, err := New(context.Background(), loadConfig(t, nil), Options{Clock: fc, Source: src})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(time.Second)

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("agent did not stop")
	}
	assert.ErrorIs(t, a.Err(), health.ErrUnrecoverable)
	assert.NoError(t, a.Stop(context.Background()))
}

func TestStopRunsShutdownCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	script := filepath.Join(dir, "shutdown.sh")
	require.NoError(t, os.WriteFile(script, []byte("touch '"+marker+"'\n"), 0o755))

	fc := clocktesting.NewFakeClock(epoch)
	cfg := loadConfig(t, map[string]string{"jma.execute.on_shutdown": script})

	a, err := New(context.Background(), cfg, Options{Clock: fc, Source: simulated(fc)})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Stop(context.Background()))

	assert.FileExists(t, marker)
}

func TestSQLiteHistorySurvivesRestart(t *testing.T) {
	fc := clocktesting.NewFakeClock(epoch)
	cfg := loadConfig(t, map[string]string{
		"jma.history.backend": config.HistorySQLite,
		"jma.sqlite.path":     filepath.Join(t.TempDir(), "history.db"),
	})

	first, err := New(context.Background(), cfg, Options{Clock: fc, Source: simulated(fc)})
	require.NoError(t, err)
	assert.True(t, first.Check(context.Background()).Triggered)
	require.NoError(t, first.Stop(context.Background()))

	fc.Step(time.Second)
	second, err := New(context.Background(), cfg, Options{Clock: fc, Source: simulated(fc)})
	require.NoError(t, err)
	defer second.Stop(context.Background())

	rep := second.Check(context.Background())
	assert.False(t, rep.Triggered)
	assert.True(t, rep.Suppressed)
}

func TestNewLogger(t *testing.T) {
	logger, atom, err := NewLogger(config.LevelDebug)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, atom.Level())
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, _, err = NewLogger(config.LevelWarning)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, _, err = NewLogger(config.LevelOff)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}
