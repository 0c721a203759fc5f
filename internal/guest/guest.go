package guest

import (
	"time"

	"github.com/woxQAQ/wasm-passing-data/internal/wasm"
)

// Guest represents a loaded guest with its manifest and compiled Wasm module.
type Guest struct {
	// Manifest is the parsed guest metadata
	Manifest *Manifest

	// Compiled is the compiled Wasm module
	Compiled *wasm.CompiledModule

	// LoadedAt is the timestamp when the guest was loaded
	LoadedAt time.Time
}

// Name returns the guest name.
func (g *Guest) Name() string {
	return g.Manifest.Name
}

// Version returns the guest version.
func (g *Guest) Version() string {
	return g.Manifest.Version
}

// Layout returns the buffer layout the guest was built with.
func (g *Guest) Layout() Layout {
	return g.Manifest.Layout()
}

// InstanceConfig returns the configuration for a new instance of the guest.
func (g *Guest) InstanceConfig() *wasm.InstanceConfig {
	env := g.Manifest.EnvConfig()
	l := g.Layout()
	return &wasm.InstanceConfig{
		ModuleName: g.Compiled.Name,
		Env:        &env,
		Exports:    []string{l.Exports.BufferOffset, l.Exports.AppendSuffix},
	}
}
