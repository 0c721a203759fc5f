package guest

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-passing-data/internal/wasm"
)

// Loader handles loading guests from disk.
type Loader struct {
	moduleLoader *wasm.ModuleLoader
	logger       *zap.Logger
}

// NewLoader creates a new guest loader.
func NewLoader(runtime *wasm.Runtime, logger *zap.Logger) *Loader {
	return &Loader{
		moduleLoader: wasm.NewModuleLoader(runtime, logger),
		logger:       logger.With(zap.String("component", "guest-loader")),
	}
}

// Load loads the guest described by dir/guest.yaml.
func (l *Loader) Load(ctx context.Context, dir string) (*Guest, error) {
	l.logger.Debug("Loading guest", zap.String("dir", dir))

	// Parse manifest
	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loading guest",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.String("wasm", manifest.Wasm.File),
	)

	// Compile Wasm module (uses internal caching)
	compiled, err := l.moduleLoader.LoadModuleFromFile(ctx, manifest.WasmPath())
	if err != nil {
		return nil, &GuestLoadError{
			GuestName: manifest.Name,
			Err:       err,
		}
	}

	if err := checkExports(manifest, compiled.Module.ExportedFunctions()); err != nil {
		return nil, err
	}

	g := &Guest{
		Manifest: manifest,
		Compiled: compiled,
		LoadedAt: time.Now(),
	}

	l.logger.Info("Guest loaded successfully",
		zap.String("name", manifest.Name),
		zap.Int64("size_bytes", compiled.SizeBytes),
		zap.Int("imports", len(compiled.Imports)),
	)

	return g, nil
}

// LoadBinary compiles bin as a guest built from l, bypassing the manifest.
func (l *Loader) LoadBinary(ctx context.Context, name string, bin []byte, lay Layout, env wasm.EnvConfig) (*Guest, error) {
	compiled, err := l.moduleLoader.LoadModuleFromMemory(ctx, name, bin)
	if err != nil {
		return nil, &GuestLoadError{GuestName: name, Err: err}
	}

	manifest := NewManifest(name, "0.0.0", "", lay, env)
	if err := checkExports(manifest, compiled.Module.ExportedFunctions()); err != nil {
		return nil, err
	}

	return &Guest{
		Manifest: manifest,
		Compiled: compiled,
		LoadedAt: time.Now(),
	}, nil
}

// checkExports verifies the compiled module exports the functions the
// manifest names.
func checkExports(m *Manifest, fns map[string]api.FunctionDefinition) error {
	for _, name := range []string{m.Exports.BufferOffset, m.Exports.AppendSuffix} {
		if _, ok := fns[name]; !ok {
			return &MissingExportError{GuestName: m.Name, Export: name}
		}
	}
	return nil
}
