package distill

import (
	"bytes"
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"

	"github.com/spf13/afero"
)

// CodeEngine extracts the syntax tree of a Go source file and serializes it
// to a textual form, so the indexing layers downstream can work with
// declarations and positions instead of raw source text.
type CodeEngine struct {
	fs afero.Fs
}

// NewCodeEngine creates a Go source AST extraction engine.
func NewCodeEngine(fs afero.Fs) *CodeEngine {
	return &CodeEngine{fs: fs}
}

// Transform implements the Engine interface.
func (e *CodeEngine) Transform(ctx context.Context, inputPath, outputPath string, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := afero.ReadFile(e.fs, inputPath)
	if err != nil {
		return newEngineError(EngineCode, fmt.Errorf("failed to read %s: %w", inputPath, err))
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, inputPath, src, parser.ParseComments)
	if err != nil {
		return newEngineError(EngineCode, fmt.Errorf("failed to parse %s: %w", inputPath, err))
	}

	var buf bytes.Buffer
	if err := ast.Fprint(&buf, fset, file, ast.NotNilFilter); err != nil {
		return newEngineError(EngineCode, fmt.Errorf("failed to serialize AST of %s: %w", inputPath, err))
	}

	if err := afero.WriteFile(e.fs, outputPath, buf.Bytes(), 0o644); err != nil {
		_ = e.fs.Remove(outputPath)
		return newEngineError(EngineCode, fmt.Errorf("failed to write %s: %w", outputPath, err))
	}
	return nil
}

// Extension implements the Engine interface.
func (e *CodeEngine) Extension(opts Options) string {
	return "ast"
}

// OptionsHash implements the Engine interface.
func (e *CodeEngine) OptionsHash(opts Options) (string, error) {
	return DefaultOptionsHash(opts)
}
