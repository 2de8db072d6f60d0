package distill

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestMain(t *testing.M) {
	code := t.Run()

	os.Exit(code)
}

func fixedNowFunc() time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
}

// testClock is a manually advanced clock for deterministic timestamps.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: fixedNowFunc()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubEngine is a configurable no-op engine used for contract verification.
// It counts invocations and either copies the input, writes fixed bytes,
// fails, or reports success without producing output.
type stubEngine struct {
	fs     afero.Fs
	ext    string        // artifact extension; "txt" when empty
	output []byte        // fixed artifact bytes; nil copies the input
	fail   error         // returned instead of transforming
	silent bool          // report success but write nothing
	delay  time.Duration // simulated engine latency

	mu    sync.Mutex
	calls int
}

func (e *stubEngine) Transform(ctx context.Context, inputPath, outputPath string, opts Options) error {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.fail != nil {
		return e.fail
	}
	if e.silent {
		return nil
	}

	data := e.output
	if data == nil {
		read, err := afero.ReadFile(e.fs, inputPath)
		if err != nil {
			return err
		}
		data = read
	}
	return afero.WriteFile(e.fs, outputPath, data, 0o644)
}

func (e *stubEngine) Extension(opts Options) string {
	if e.ext != "" {
		return e.ext
	}
	return "txt"
}

func (e *stubEngine) OptionsHash(opts Options) (string, error) {
	return DefaultOptionsHash(opts)
}

func (e *stubEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// setupController builds a controller on an in-memory filesystem with a
// stub engine registered under "stub" plus the default engines.
func setupController(t *testing.T, opts ...Option) (*Controller, *MemStore, afero.Fs, *stubEngine) {
	t.Helper()

	fs := afero.NewMemMapFs()
	meta := NewMemStore()
	stub := &stubEngine{fs: fs}

	engines, err := NewEngineRegistry(map[string]Engine{
		EngineText:   NewPassthroughEngine(fs, PassthroughText),
		EngineBinary: NewPassthroughEngine(fs, PassthroughBinary),
		EngineCode:   NewCodeEngine(fs),
		"stub":       stub,
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	defaults := []Option{
		WithFs(fs),
		WithCacheDir("/cache"),
		WithMaxBytes(1_000_000),
		WithLogger(testLogger()),
		WithNowFunc(fixedNowFunc),
	}
	ctrl, err := New(meta, engines, append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}
	return ctrl, meta, fs, stub
}

func createTestFile(t *testing.T, fs afero.Fs, path string, content []byte) {
	t.Helper()

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}
	if err := afero.WriteFile(fs, path, content, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func assertFileExists(t *testing.T, fs afero.Fs, path string) {
	t.Helper()

	exists, err := afero.Exists(fs, path)
	if err != nil {
		t.Fatalf("failed to check %s: %v", path, err)
	}
	if !exists {
		t.Fatalf("expected %s to exist", path)
	}
}

func assertFileAbsent(t *testing.T, fs afero.Fs, path string) {
	t.Helper()

	exists, err := afero.Exists(fs, path)
	if err != nil {
		t.Fatalf("failed to check %s: %v", path, err)
	}
	if exists {
		t.Fatalf("expected %s to be absent", path)
	}
}
