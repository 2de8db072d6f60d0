package distill

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
)

func TestNewEngineRegistry(t *testing.T) {
	fs := afero.NewMemMapFs()

	reg, err := NewEngineRegistry(map[string]Engine{
		EngineText: NewPassthroughEngine(fs, PassthroughText),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eng, err := reg.Lookup(EngineText)
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if eng == nil {
		t.Fatal("expected engine, got nil")
	}
}

func TestNewEngineRegistryRejectsEmptyName(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := NewEngineRegistry(map[string]Engine{
		"": NewPassthroughEngine(fs, PassthroughText),
	})
	if err == nil {
		t.Fatal("expected error for empty engine name")
	}
}

func TestNewEngineRegistryRejectsNilEngine(t *testing.T) {
	_, err := NewEngineRegistry(map[string]Engine{
		EngineText: nil,
	})
	if err == nil {
		t.Fatal("expected error for nil engine")
	}
}

func TestLookupUnknownEngine(t *testing.T) {
	reg, err := NewEngineRegistry(map[string]Engine{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = reg.Lookup("nonsense")
	if !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	fs := afero.NewMemMapFs()

	reg, err := NewEngineRegistry(map[string]Engine{
		"zeta":  NewPassthroughEngine(fs, PassthroughText),
		"alpha": NewPassthroughEngine(fs, PassthroughBinary),
		"mid":   NewCodeEngine(fs),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := reg.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("expected names[%d] = %s, got %s", i, n, names[i])
		}
	}
}

func TestDefaultRegistry(t *testing.T) {
	fs := afero.NewMemMapFs()
	reg := DefaultRegistry(fs)

	for _, name := range []string{EngineText, EngineBinary, EngineCode} {
		if _, err := reg.Lookup(name); err != nil {
			t.Errorf("expected %s engine to be registered: %v", name, err)
		}
	}
}
