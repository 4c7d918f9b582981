package dump

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"time"
)

// Writer produces a heap dump at path.
type Writer interface {
	Write(ctx context.Context, path string) error
}

// Format values accepted by NewWriter.
const (
	FormatPprof    = "pprof"
	FormatHeapDump = "heapdump"
)

// NewWriter returns the local writer for format.
func NewWriter(format string) (Writer, error) {
	switch format {
	case "", FormatPprof:
		return ProfileWriter{}, nil
	case FormatHeapDump:
		return HeapDumpWriter{}, nil
	}
	return nil, fmt.Errorf("heap dump format '%s' is not supported; valid values are: %s, %s", format, FormatPprof, FormatHeapDump)
}

// create opens a new file at path; existing files are never overwritten.
func create(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
}

// writeFile creates path and fills it with write, removing it on failure.
func writeFile(path string, write func(f *os.File) error) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// ProfileWriter writes a pprof heap profile of the live objects.
type ProfileWriter struct{}

func (ProfileWriter) Write(_ context.Context, path string) error {
	return writeFile(path, func(f *os.File) error {
		runtime.GC()
		return pprof.Lookup("heap").WriteTo(f, 0)
	})
}

// HeapDumpWriter writes a full runtime heap dump. The world is stopped while
// it runs.
type HeapDumpWriter struct{}

func (HeapDumpWriter) Write(_ context.Context, path string) error {
	return writeFile(path, func(f *os.File) error {
		debug.WriteHeapDump(f.Fd())
		return nil
	})
}

// RemoteProfileWriter fetches the heap profile of another process from its
// /debug/pprof/heap endpoint.
type RemoteProfileWriter struct {
	URL    string
	Client *http.Client
}

// NewRemoteProfileWriter creates a writer for url with a 30s timeout.
func NewRemoteProfileWriter(url string) *RemoteProfileWriter {
	return &RemoteProfileWriter{URL: url, Client: &http.Client{Timeout: 30 * time.Second}}
}

func (w *RemoteProfileWriter) Write(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.URL, nil)
	if err != nil {
		return fmt.Errorf("build profile request: %w", err)
	}
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch profile from %s: %w", w.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch profile from %s: unexpected status %s", w.URL, resp.Status)
	}

	return writeFile(path, func(f *os.File) error {
		_, err := io.Copy(f, resp.Body)
		return err
	})
}
