package distill

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Argument placeholders understood by the converter command line.
const (
	placeholderInput  = "{input}"  // absolute path of the source file
	placeholderOutDir = "{outdir}" // scratch directory the command writes into
	placeholderStem   = "{stem}"   // source filename without its extension
)

// defaultConvertTimeout bounds a single converter invocation.
const defaultConvertTimeout = 2 * time.Minute

// maxStderrBytes limits how much captured stderr is carried in an EngineError.
const maxStderrBytes = 4 * 1024

// ConvertEngine shells out to an external command that converts a document
// into a text artifact. The command writes <stem>.<ext> into a scratch
// directory; on success the engine copies that file byte-for-byte into the
// cache location. Timeouts and non-zero exits both become an *EngineError
// with the captured stderr as context.
//
// The subprocess always runs against the real filesystem; the configured
// afero.Fs is only used for the final copy into outputPath.
type ConvertEngine struct {
	fs      afero.Fs
	name    string
	command string
	args    []string
	ext     string
	timeout time.Duration
}

// ConvertOption configures a ConvertEngine.
type ConvertOption func(*ConvertEngine)

// WithConvertTimeout sets the per-invocation deadline. The default is two
// minutes.
func WithConvertTimeout(d time.Duration) ConvertOption {
	return func(e *ConvertEngine) {
		e.timeout = d
	}
}

// WithConvertExtension sets the artifact extension the command is expected to
// produce. The default is "md".
func WithConvertExtension(ext string) ConvertOption {
	return func(e *ConvertEngine) {
		e.ext = ext
	}
}

// NewConvertEngine creates a document-converter engine around an external
// command. Args may reference {input}, {outdir}, and {stem}; a typical
// configuration is:
//
//	NewConvertEngine(fs, "pandoc", []string{"{input}", "-o", "{outdir}/{stem}.md"})
func NewConvertEngine(fs afero.Fs, command string, args []string, opts ...ConvertOption) *ConvertEngine {
	e := &ConvertEngine{
		fs:      fs,
		name:    EngineConvert,
		command: command,
		args:    args,
		ext:     "md",
		timeout: defaultConvertTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewCaptionEngine creates an image-captioner engine. It is the converter
// machinery under a different name and a "txt" artifact extension: the
// command receives the image path and writes <stem>.txt into the scratch
// directory.
func NewCaptionEngine(fs afero.Fs, command string, args []string, opts ...ConvertOption) *ConvertEngine {
	e := NewConvertEngine(fs, command, args, opts...)
	e.name = EngineCaption
	e.ext = "txt"
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transform implements the Engine interface.
func (e *ConvertEngine) Transform(ctx context.Context, inputPath, outputPath string, opts Options) error {
	scratch := filepath.Join(os.TempDir(), "distill-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o700); err != nil {
		return newEngineError(e.name, fmt.Errorf("failed to create scratch dir: %w", err))
	}
	defer os.RemoveAll(scratch)

	stem := stemOf(inputPath)
	argv := make([]string, len(e.args))
	for i, arg := range e.args {
		arg = strings.ReplaceAll(arg, placeholderInput, inputPath)
		arg = strings.ReplaceAll(arg, placeholderOutDir, scratch)
		argv[i] = strings.ReplaceAll(arg, placeholderStem, stem)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.command, argv...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if runErr := cmd.Run(); runErr != nil {
		timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
		return &EngineError{
			Engine:  e.name,
			Stderr:  tailString(stderr.Bytes(), maxStderrBytes),
			Timeout: timedOut,
			Err:     runErr,
		}
	}

	expected := filepath.Join(scratch, stem+"."+e.Extension(opts))
	data, err := os.ReadFile(expected)
	if err != nil {
		return &EngineError{
			Engine: e.name,
			Stderr: tailString(stderr.Bytes(), maxStderrBytes),
			Err:    fmt.Errorf("command produced no output at %s: %w", expected, err),
		}
	}

	if err := afero.WriteFile(e.fs, outputPath, data, 0o644); err != nil {
		_ = e.fs.Remove(outputPath)
		return newEngineError(e.name, fmt.Errorf("failed to write %s: %w", outputPath, err))
	}
	return nil
}

// Extension implements the Engine interface. Options may override the
// configured extension with an "extension" key.
func (e *ConvertEngine) Extension(opts Options) string {
	if ext, ok := opts["extension"].(string); ok && ext != "" {
		return ext
	}
	return e.ext
}

// OptionsHash implements the Engine interface.
func (e *ConvertEngine) OptionsHash(opts Options) (string, error) {
	return DefaultOptionsHash(opts)
}

// stemOf returns the filename without directory or extension.
func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// tailString returns the trailing portion of b as a trimmed string.
func tailString(b []byte, limit int) string {
	if len(b) > limit {
		b = b[len(b)-limit:]
	}
	return strings.TrimSpace(string(b))
}
