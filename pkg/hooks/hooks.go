// Package hooks runs the user commands around heap dumps and on shutdown.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// Stage tells when a command runs.
type Stage int

const (
	StageBefore Stage = iota
	StageAfter
	StageOnShutdown
)

func (s Stage) String() string {
	switch s {
	case StageBefore:
		return "before"
	case StageAfter:
		return "after"
	default:
		return "on shutdown"
	}
}

// DefaultInterpreter is the interpreter used when none is configured.
func DefaultInterpreter() string {
	if runtime.GOOS == "windows" {
		return "cmd.exe"
	}
	return "/bin/sh"
}

// Config holds the commands. Empty commands are skipped.
type Config struct {
	Interpreter string
	Before      string
	After       string
	OnShutdown  string
}

// ExecutionError reports a command that could not run or exited non-zero.
type ExecutionError struct {
	Command  string
	Stage    Stage
	ExitCode int
	Err      error
}

func (e *ExecutionError) Error() string {
	var msg string
	if e.Stage == StageOnShutdown {
		msg = fmt.Sprintf("Execution of '%s' on shutdown failed", e.Command)
	} else {
		msg = fmt.Sprintf("Execution of '%s' %s heap dump failed", e.Command, e.Stage)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: exit code %d", msg, e.ExitCode)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Executor runs the configured commands through the interpreter. The
// before and after commands get the heap dump path as argument.
type Executor struct {
	cfg    Config
	logger *zap.Logger

	// Output receives the output of the commands. Defaults to os.Stdout.
	Output io.Writer
}

// NewExecutor creates an Executor for cfg.
func NewExecutor(cfg Config, logger *zap.Logger) *Executor {
	if strings.TrimSpace(cfg.Interpreter) == "" {
		cfg.Interpreter = DefaultInterpreter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{cfg: cfg, logger: logger.Named("hooks"), Output: os.Stdout}
}

// BeforeDump runs the before command for the heap dump at path.
func (e *Executor) BeforeDump(ctx context.Context, path string) error {
	return e.execute(ctx, e.cfg.Before, StageBefore, path)
}

// AfterDump runs the after command for the heap dump at path.
func (e *Executor) AfterDump(ctx context.Context, path string) error {
	return e.execute(ctx, e.cfg.After, StageAfter, path)
}

// OnShutdown runs the shutdown command.
func (e *Executor) OnShutdown(ctx context.Context) error {
	return e.execute(ctx, e.cfg.OnShutdown, StageOnShutdown, "")
}

func (e *Executor) execute(ctx context.Context, command string, stage Stage, path string) error {
	command = normalize(command)
	if command == "" {
		return nil
	}

	args := []string{command}
	if stage != StageOnShutdown {
		args = append(args, path)
	}

	cmd := exec.CommandContext(ctx, e.cfg.Interpreter, args...)
	cmd.Stdout = e.Output
	cmd.Stderr = e.Output

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExecutionError{Command: command, Stage: stage, ExitCode: exitErr.ExitCode()}
		}
		return &ExecutionError{Command: command, Stage: stage, Err: err}
	}

	if stage == StageOnShutdown {
		e.logger.Debug(fmt.Sprintf("Execution of '%s' on shutdown succeeded with exit code 0", command))
	} else {
		e.logger.Debug(fmt.Sprintf("Execution of '%s' %s heap dump '%s' succeeded with exit code 0", command, stage, path))
	}
	return nil
}

// normalize trims command and strips one pair of surrounding quotes.
func normalize(command string) string {
	command = strings.TrimSpace(command)
	if len(command) >= 2 {
		first, last := command[0], command[len(command)-1]
		if (first == '\'' || first == '"') && first == last {
			command = command[1 : len(command)-1]
		}
	}
	return command
}
