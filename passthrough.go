package distill

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/spf13/afero"
)

// PassthroughMode selects how a pass-through engine treats its input.
type PassthroughMode int

const (
	// PassthroughText validates that the source is UTF-8 before copying.
	PassthroughText PassthroughMode = iota
	// PassthroughBinary copies bytes verbatim with no validation.
	PassthroughBinary
)

// PassthroughEngine copies source content into the cache unchanged. The text
// mode rejects sources that are not valid UTF-8 (or contain NUL bytes), so
// downstream consumers can treat every "text" artifact as decodable.
type PassthroughEngine struct {
	fs   afero.Fs
	mode PassthroughMode
}

// NewPassthroughEngine creates a pass-through engine in the given mode.
func NewPassthroughEngine(fs afero.Fs, mode PassthroughMode) *PassthroughEngine {
	return &PassthroughEngine{fs: fs, mode: mode}
}

// Transform implements the Engine interface.
func (e *PassthroughEngine) Transform(ctx context.Context, inputPath, outputPath string, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.mode == PassthroughText {
		data, err := afero.ReadFile(e.fs, inputPath)
		if err != nil {
			return newEngineError(e.name(), fmt.Errorf("failed to read %s: %w", inputPath, err))
		}
		if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
			return newEngineError(e.name(), fmt.Errorf("%w: %s", ErrInvalidEncoding, inputPath))
		}
		if err := afero.WriteFile(e.fs, outputPath, data, 0o644); err != nil {
			_ = e.fs.Remove(outputPath)
			return newEngineError(e.name(), fmt.Errorf("failed to write %s: %w", outputPath, err))
		}
		return nil
	}

	if err := copyFile(e.fs, inputPath, outputPath); err != nil {
		_ = e.fs.Remove(outputPath)
		return newEngineError(e.name(), err)
	}
	return nil
}

// Extension implements the Engine interface.
func (e *PassthroughEngine) Extension(opts Options) string {
	if e.mode == PassthroughText {
		return "txt"
	}
	return "bin"
}

// OptionsHash implements the Engine interface.
func (e *PassthroughEngine) OptionsHash(opts Options) (string, error) {
	return DefaultOptionsHash(opts)
}

func (e *PassthroughEngine) name() string {
	if e.mode == PassthroughText {
		return EngineText
	}
	return EngineBinary
}

// copyFile copies a file from src to dst using the given filesystem.
func copyFile(fs afero.Fs, src, dst string) error {
	srcFile, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer srcFile.Close()

	dstFile, err := fs.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer dstFile.Close()

	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	if _, err := io.CopyBuffer(dstFile, srcFile, buffer); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return nil
}
