package hooks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func script(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("hook scripts need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "hook.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestBeforeDumpReceivesPath(t *testing.T) {
	path := script(t, "echo \"dumping to $1\"\n")
	var out bytes.Buffer

	e := NewExecutor(Config{Before: "'" + path + "'"}, nil)
	e.Output = &out

	require.NoError(t, e.BeforeDump(context.Background(), "/tmp/heap.pprof"))
	assert.Equal(t, "dumping to /tmp/heap.pprof\n", out.String())
}

func TestOnShutdownHasNoArgument(t *testing.T) {
	path := script(t, "echo \"args: $#\"\n")
	var out bytes.Buffer

	e := NewExecutor(Config{OnShutdown: path}, nil)
	e.Output = &out

	require.NoError(t, e.OnShutdown(context.Background()))
	assert.Equal(t, "args: 0\n", out.String())
}

func TestNonZeroExit(t *testing.T) {
	path := script(t, "exit 3\n")

	e := NewExecutor(Config{After: path}, nil)
	e.Output = &bytes.Buffer{}

	err := e.AfterDump(context.Background(), "/tmp/heap.pprof")
	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Equal(t, StageAfter, execErr.Stage)
	assert.EqualError(t, err, "Execution of '"+path+"' after heap dump failed: exit code 3")
}

func TestMissingInterpreter(t *testing.T) {
	e := NewExecutor(Config{Interpreter: filepath.Join(t.TempDir(), "nope"), OnShutdown: "x"}, nil)

	err := e.OnShutdown(context.Background())
	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Error(t, execErr.Err)
	assert.Contains(t, err.Error(), "Execution of 'x' on shutdown failed: ")
}

func TestEmptyCommandsAreSkipped(t *testing.T) {
	e := NewExecutor(Config{Interpreter: "/does/not/exist"}, nil)
	assert.NoError(t, e.BeforeDump(context.Background(), "f"))
	assert.NoError(t, e.AfterDump(context.Background(), "f"))
	assert.NoError(t, e.OnShutdown(context.Background()))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "run.sh", normalize("  'run.sh' "))
	assert.Equal(t, "run.sh", normalize(`"run.sh"`))
	assert.Equal(t, `'run.sh"`, normalize(`'run.sh"`))
	assert.Equal(t, "'", normalize("'"))
}
