package wasm

import (
	"fmt"

	wasmbin "github.com/wippyai/wasm-runtime/wasm"
)

// ImportKind is the kind of entity a module imports.
type ImportKind byte

const (
	ImportFunc ImportKind = iota
	ImportTable
	ImportMemory
	ImportGlobal
	ImportTag
)

func (k ImportKind) String() string {
	switch k {
	case ImportFunc:
		return "func"
	case ImportTable:
		return "table"
	case ImportMemory:
		return "memory"
	case ImportGlobal:
		return "global"
	case ImportTag:
		return "tag"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Import is one entry of a module's import section.
type Import struct {
	Module string
	Name   string
	Kind   ImportKind
}

func (i Import) String() string {
	return fmt.Sprintf("%s.%s (%s)", i.Module, i.Name, i.Kind)
}

// InspectImports lists the imports a module declares, globals included.
// wazero only exposes imported functions and memories.
func InspectImports(bin []byte) ([]Import, error) {
	imports, _, err := inspectModule(bin)
	return imports, err
}

// inspectModule lists the imports of bin and reports whether it defines or
// imports a linear memory.
func inspectModule(bin []byte) ([]Import, bool, error) {
	mod, err := wasmbin.ParseModule(bin)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode import section: %w", err)
	}

	hasMemory := len(mod.Memories) > 0
	imports := make([]Import, 0, len(mod.Imports))
	for _, imp := range mod.Imports {
		kind := importKind(imp.Desc.Kind)
		if kind == ImportMemory {
			hasMemory = true
		}
		imports = append(imports, Import{
			Module: imp.Module,
			Name:   imp.Name,
			Kind:   kind,
		})
	}
	return imports, hasMemory, nil
}

// ImportsFrom returns the imports that name the given module namespace.
func ImportsFrom(imports []Import, namespace string) []Import {
	var out []Import
	for _, imp := range imports {
		if imp.Module == namespace {
			out = append(out, imp)
		}
	}
	return out
}

// RewriteImportModule re-encodes bin so that every import from namespace
// `from` resolves against `to` instead. The binary is returned unchanged
// when nothing is imported from `from`.
func RewriteImportModule(bin []byte, from, to string) ([]byte, error) {
	mod, err := wasmbin.ParseModule(bin)
	if err != nil {
		return nil, fmt.Errorf("failed to decode module: %w", err)
	}

	rewritten := 0
	for i := range mod.Imports {
		if mod.Imports[i].Module == from {
			mod.Imports[i].Module = to
			rewritten++
		}
	}
	if rewritten == 0 {
		return bin, nil
	}

	return mod.Encode(), nil
}

func importKind(kind byte) ImportKind {
	switch kind {
	case wasmbin.KindFunc:
		return ImportFunc
	case wasmbin.KindTable:
		return ImportTable
	case wasmbin.KindMemory:
		return ImportMemory
	case wasmbin.KindGlobal:
		return ImportGlobal
	default:
		return ImportTag
	}
}
