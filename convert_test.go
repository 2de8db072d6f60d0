package distill

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// Converter tests shell out to /bin/sh, so they run against the real
// filesystem under t.TempDir.
func requireSh(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
}

func TestConvertEngineSuccess(t *testing.T) {
	requireSh(t)

	fs := afero.NewOsFs()
	dir := t.TempDir()
	input := filepath.Join(dir, "report.doc")
	output := filepath.Join(dir, "artifact.md")
	if err := os.WriteFile(input, []byte("lowercase body"), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	// sh -c 'script' input outdir stem; the script uppercases the input
	// into the expected <stem>.md location.
	eng := NewConvertEngine(fs, "/bin/sh", []string{
		"-c", `tr a-z A-Z < "$0" > "$1/$2.md"`,
		placeholderInput, placeholderOutDir, placeholderStem,
	})

	if err := eng.Transform(context.Background(), input, output, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("failed to read artifact: %v", err)
	}
	if !bytes.Equal(got, []byte("LOWERCASE BODY")) {
		t.Errorf("expected uppercased content, got %q", got)
	}
}

func TestConvertEngineCapturesStderr(t *testing.T) {
	requireSh(t)

	fs := afero.NewOsFs()
	dir := t.TempDir()
	input := filepath.Join(dir, "broken.doc")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	eng := NewConvertEngine(fs, "/bin/sh", []string{
		"-c", `echo "conversion exploded" >&2; exit 3`,
	})

	err := eng.Transform(context.Background(), input, filepath.Join(dir, "out.md"), nil)
	if err == nil {
		t.Fatal("expected error for failing command")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("expected *EngineError, got %T", err)
	}
	if !strings.Contains(engErr.Stderr, "conversion exploded") {
		t.Errorf("expected captured stderr, got %q", engErr.Stderr)
	}
	if engErr.Timeout {
		t.Error("non-timeout failure should not be marked as timeout")
	}
	if engErr.Retryable() {
		t.Error("non-timeout failure should not be retryable")
	}
}

func TestConvertEngineTimeout(t *testing.T) {
	requireSh(t)

	fs := afero.NewOsFs()
	dir := t.TempDir()
	input := filepath.Join(dir, "slow.doc")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	eng := NewConvertEngine(fs, "/bin/sh",
		[]string{"-c", "sleep 5"},
		WithConvertTimeout(50*time.Millisecond),
	)

	err := eng.Transform(context.Background(), input, filepath.Join(dir, "out.md"), nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("expected *EngineError, got %T", err)
	}
	if !engErr.Timeout {
		t.Error("expected Timeout to be set")
	}
	if !engErr.Retryable() {
		t.Error("timeout failures should be retryable")
	}
}

func TestConvertEngineMissingOutput(t *testing.T) {
	requireSh(t)

	fs := afero.NewOsFs()
	dir := t.TempDir()
	input := filepath.Join(dir, "quiet.doc")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}

	// Exits cleanly without writing the expected artifact.
	eng := NewConvertEngine(fs, "/bin/sh", []string{"-c", "true"})

	err := eng.Transform(context.Background(), input, filepath.Join(dir, "out.md"), nil)
	if err == nil {
		t.Fatal("expected error when command produces no output")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("expected *EngineError, got %T", err)
	}
	if !strings.Contains(engErr.Error(), "no output") {
		t.Errorf("expected missing-output message, got %q", engErr.Error())
	}
}

func TestCaptionEngineDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	eng := NewCaptionEngine(fs, "captioner", []string{placeholderInput, placeholderOutDir})

	if eng.name != EngineCaption {
		t.Errorf("expected name %q, got %q", EngineCaption, eng.name)
	}
	if ext := eng.Extension(nil); ext != "txt" {
		t.Errorf("expected txt extension, got %s", ext)
	}
}

func TestConvertExtensionOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	eng := NewConvertEngine(fs, "pandoc", nil)

	if ext := eng.Extension(nil); ext != "md" {
		t.Errorf("expected default md, got %s", ext)
	}
	if ext := eng.Extension(Options{"extension": "rst"}); ext != "rst" {
		t.Errorf("expected override rst, got %s", ext)
	}
}

func TestStemOf(t *testing.T) {
	cases := map[string]string{
		"/a/b/report.docx": "report",
		"notes.txt":        "notes",
		"/plain":           "plain",
		"archive.tar.gz":   "archive.tar",
	}
	for in, want := range cases {
		if got := stemOf(in); got != want {
			t.Errorf("stemOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTailString(t *testing.T) {
	if got := tailString([]byte("  hello  "), 100); got != "hello" {
		t.Errorf("expected trimmed string, got %q", got)
	}
	if got := tailString([]byte("abcdefgh"), 4); got != "efgh" {
		t.Errorf("expected trailing bytes, got %q", got)
	}
}
