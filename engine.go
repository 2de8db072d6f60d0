package distill

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/afero"
)

// Options holds engine-specific parameters. Two option sets with the same
// keys and values are the same configuration no matter how they were built;
// see DefaultOptionsHash.
type Options map[string]any

// Engine is the capability each concrete transform implements. An engine
// converts one source file into one derived text artifact.
//
// Transform must be side-effect-free on failure: a failed call leaves no
// partial file at outputPath.
type Engine interface {
	// Transform reads inputPath and writes the derived artifact to
	// outputPath. Blocking work must honor ctx.
	Transform(ctx context.Context, inputPath, outputPath string, opts Options) error

	// Extension returns the filename suffix (without the dot) for artifacts
	// produced under the given options. Pure, no side effects.
	Extension(opts Options) string

	// OptionsHash returns the 16-hex-character digest of the canonicalized
	// options. Most engines delegate to DefaultOptionsHash.
	OptionsHash(opts Options) (string, error)
}

// Well-known engine names. The selector resolves sources to one of these.
const (
	EngineText    = "text"
	EngineBinary  = "binary"
	EngineCode    = "code"
	EngineConvert = "convert"
	EngineCaption = "caption"
)

// EngineRegistry maps engine names to engine instances. A registry is built
// once at startup and injected into the Controller, so tests can supply
// isolated registries instead of mutating shared global state.
type EngineRegistry struct {
	engines map[string]Engine
}

// NewEngineRegistry builds a registry from named engines. Names are validated
// once here; lookups after construction can only fail with ErrUnknownEngine.
func NewEngineRegistry(engines map[string]Engine) (*EngineRegistry, error) {
	reg := &EngineRegistry{engines: make(map[string]Engine, len(engines))}
	for name, eng := range engines {
		if name == "" {
			return nil, fmt.Errorf("engine with empty name")
		}
		if eng == nil {
			return nil, fmt.Errorf("engine %q is nil", name)
		}
		reg.engines[name] = eng
	}
	return reg, nil
}

// Lookup resolves an engine by name.
func (r *EngineRegistry) Lookup(name string) (Engine, error) {
	eng, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	return eng, nil
}

// Names returns the registered engine names, sorted.
func (r *EngineRegistry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry wires the engines that need no external tooling: the two
// pass-through engines and the Go source extractor. The converter and
// captioner engines shell out to deployment-specific commands; register those
// alongside these with NewConvertEngine / NewCaptionEngine.
func DefaultRegistry(fs afero.Fs) *EngineRegistry {
	reg, err := NewEngineRegistry(map[string]Engine{
		EngineText:   NewPassthroughEngine(fs, PassthroughText),
		EngineBinary: NewPassthroughEngine(fs, PassthroughBinary),
		EngineCode:   NewCodeEngine(fs),
	})
	if err != nil {
		panic(fmt.Sprintf("default registry: %v", err))
	}
	return reg
}
