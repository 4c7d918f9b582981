// Package dump creates heap dumps when the monitor fires.
package dump

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GoMemoryAssistant/pkg/health"
)

// Hooks runs the commands around a heap dump.
type Hooks interface {
	BeforeDump(ctx context.Context, path string) error
	AfterDump(ctx context.Context, path string) error
}

// CreatorOptions configures a Creator.
type CreatorOptions struct {
	Folder string
	Names  *NameFormatter
	Writer Writer
	// Hooks may be nil.
	Hooks  Hooks
	Logger *zap.Logger
}

// Creator writes one heap dump per trigger into a folder.
type Creator struct {
	folder string
	names  *NameFormatter
	writer Writer
	hooks  Hooks
	logger *zap.Logger

	mu   sync.Mutex
	last string
}

// NewCreator creates a Creator. The folder must exist.
func NewCreator(opts CreatorOptions) (*Creator, error) {
	if opts.Names == nil {
		return nil, errors.New("dump: no name formatter")
	}
	if opts.Writer == nil {
		return nil, errors.New("dump: no writer")
	}
	folder, err := filepath.Abs(opts.Folder)
	if err != nil {
		return nil, fmt.Errorf("resolve heap dump folder: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Creator{
		folder: folder,
		names:  opts.Names,
		writer: opts.Writer,
		hooks:  opts.Hooks,
		logger: opts.Logger.Named("dump"),
	}, nil
}

// Trigger runs the before command, writes the dump and runs the after
// command. A failing before command cancels the dump; a failing after
// command is only logged.
func (c *Creator) Trigger(ctx context.Context, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(c.folder, c.names.Format(at))

	if c.hooks != nil {
		if err := c.hooks.BeforeDump(ctx, path); err != nil {
			c.logger.Error(fmt.Sprintf("Execution of command before heap dump '%s' failed", path), zap.Error(err))
			return fmt.Errorf("command before heap dump: %w", err)
		}
	}

	if err := c.writer.Write(ctx, path); err != nil {
		c.logger.Error(fmt.Sprintf("An error occurred while dumping the heap to file '%s'", path), zap.Error(err))
		if exhausted(err) {
			return fmt.Errorf("write heap dump %s: %w: %w", path, health.ErrUnrecoverable, err)
		}
		return fmt.Errorf("write heap dump %s: %w", path, err)
	}
	c.last = path
	c.logger.Info("Heap dump " + path + " created")

	if c.hooks != nil {
		if err := c.hooks.AfterDump(ctx, path); err != nil {
			c.logger.Error(fmt.Sprintf("Execution of command after heap dump '%s' failed", path), zap.Error(err))
		}
	}
	return nil
}

// exhausted reports whether the host ran out of disk space or memory, after
// which no later heap dump can succeed either.
func exhausted(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.ENOMEM)
}

// Last returns the path of the last heap dump written, or "".
func (c *Creator) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// ValidateFolder creates folder if needed and checks that files can be
// created in it.
func ValidateFolder(folder string) error {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return fmt.Errorf("the heap dump folder path %s is invalid: %w", folder, err)
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fmt.Errorf("cannot create the '%s' directory and one or more of its parents", abs)
		}
	case err != nil:
		return fmt.Errorf("the heap dump folder path %s is invalid: %w", folder, err)
	case !info.IsDir():
		return fmt.Errorf("the file '%s' is not a directory", abs)
	}

	test := filepath.Join(abs, "test-"+uuid.NewString()+".hprof")
	f, err := create(test)
	if err != nil {
		return fmt.Errorf("cannot create test file '%s'", test)
	}
	_ = f.Close()
	if err := os.Remove(test); err != nil {
		return fmt.Errorf("cannot delete test file '%s'", test)
	}
	return nil
}
