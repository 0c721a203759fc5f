package wasm

import (
	"fmt"

	wasmbin "github.com/wippyai/wasm-runtime/wasm"
)

// PageSize is the size of one Wasm linear memory page.
const PageSize = 65536

// EnvConfig describes the import provider a relocatable guest expects: a
// linear memory and an immutable i32 global holding the guest's memory base.
type EnvConfig struct {
	// Import namespace the guest uses, "env" for C toolchains.
	Module string

	// Export name of the shared linear memory.
	MemoryName string

	// Export name of the base-address global.
	MemoryBaseName string

	// Value of the base-address global.
	MemoryBase uint32

	// Memory limits in pages. MaxPages == 0 leaves the memory unbounded.
	MinPages uint32
	MaxPages uint32
}

// DefaultEnvConfig returns the import layout of the strings-wasm-is-cool guest.
func DefaultEnvConfig() EnvConfig {
	return EnvConfig{
		Module:         "env",
		MemoryName:     "memory",
		MemoryBaseName: "__memory_base",
		MemoryBase:     1024,
		MinPages:       256,
		MaxPages:       256,
	}
}

// Validate checks that the configuration describes an instantiable module.
func (c EnvConfig) Validate() error {
	switch {
	case c.Module == "":
		return fmt.Errorf("env module name is empty")
	case c.MemoryName == "" || c.MemoryBaseName == "":
		return fmt.Errorf("env export names must not be empty")
	case c.MemoryName == c.MemoryBaseName:
		return fmt.Errorf("env exports %q collide", c.MemoryName)
	case c.MinPages == 0:
		return fmt.Errorf("env memory needs at least one page")
	case c.MaxPages != 0 && c.MaxPages < c.MinPages:
		return fmt.Errorf("env memory max pages %d below min pages %d", c.MaxPages, c.MinPages)
	case uint64(c.MemoryBase) >= uint64(c.MinPages)*PageSize:
		return fmt.Errorf("memory base %d outside initial memory of %d pages", c.MemoryBase, c.MinPages)
	}
	return nil
}

// BuildEnvModule encodes a module that defines and exports the memory and
// memory-base global described by c.
func BuildEnvModule(c EnvConfig) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	limits := wasmbin.Limits{Min: uint64(c.MinPages)}
	if c.MaxPages > 0 {
		maxPages := uint64(c.MaxPages)
		limits.Max = &maxPages
	}

	// i32.const <base> end
	init := []byte{wasmbin.OpI32Const}
	init = append(init, wasmbin.EncodeLEB128s(int32(c.MemoryBase))...)
	init = append(init, wasmbin.OpEnd)

	mod := &wasmbin.Module{
		Memories: []wasmbin.MemoryType{{Limits: limits}},
		Globals: []wasmbin.Global{{
			Type: wasmbin.GlobalType{ValType: wasmbin.ValI32},
			Init: init,
		}},
		Exports: []wasmbin.Export{
			{Name: c.MemoryName, Kind: wasmbin.KindMemory, Idx: 0},
			{Name: c.MemoryBaseName, Kind: wasmbin.KindGlobal, Idx: 0},
		},
	}
	return mod.Encode(), nil
}
