package distill

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const validGoSource = `package sample

import "fmt"

// Greet prints a greeting.
func Greet(name string) {
	fmt.Println("hello", name)
}
`

func TestCodeEngineExtractsAST(t *testing.T) {
	fs := afero.NewMemMapFs()
	eng := NewCodeEngine(fs)
	createTestFile(t, fs, "/src/sample.go", []byte(validGoSource))

	err := eng.Transform(context.Background(), "/src/sample.go", "/cache/out.ast", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := afero.ReadFile(fs, "/cache/out.ast")
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	dump := string(got)
	if !strings.Contains(dump, "*ast.File") {
		t.Errorf("expected dump to contain *ast.File")
	}
	if !strings.Contains(dump, "*ast.FuncDecl") {
		t.Errorf("expected dump to contain *ast.FuncDecl")
	}
	if !strings.Contains(dump, "Greet") {
		t.Errorf("expected dump to mention the Greet declaration")
	}
}

func TestCodeEngineRejectsInvalidSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	eng := NewCodeEngine(fs)
	createTestFile(t, fs, "/src/broken.go", []byte("package sample\n\nfunc {{{\n"))

	err := eng.Transform(context.Background(), "/src/broken.go", "/cache/out.ast", nil)
	if err == nil {
		t.Fatal("expected parse error")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("expected *EngineError, got %T", err)
	}
	if engErr.Engine != EngineCode {
		t.Errorf("expected engine %q, got %q", EngineCode, engErr.Engine)
	}

	assertFileAbsent(t, fs, "/cache/out.ast")
}

func TestCodeEngineMissingInput(t *testing.T) {
	fs := afero.NewMemMapFs()
	eng := NewCodeEngine(fs)

	err := eng.Transform(context.Background(), "/missing.go", "/cache/out.ast", nil)
	if err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestCodeEngineExtension(t *testing.T) {
	fs := afero.NewMemMapFs()
	if ext := NewCodeEngine(fs).Extension(nil); ext != "ast" {
		t.Errorf("expected ast, got %s", ext)
	}
}
