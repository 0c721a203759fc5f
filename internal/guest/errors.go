package guest

import (
	"fmt"
)

// ManifestNotFoundError occurs when guest.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when guest.yaml cannot be parsed as valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when guest.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// WasmNotFoundError occurs when the Wasm file referenced in the manifest doesn't exist.
type WasmNotFoundError struct {
	ManifestPath string
	WasmFile     string
}

func (e *WasmNotFoundError) Error() string {
	return fmt.Sprintf("Wasm file '%s' not found (referenced in manifest '%s')",
		e.WasmFile, e.ManifestPath)
}

// GuestLoadError occurs when the guest binary cannot be loaded or compiled.
type GuestLoadError struct {
	GuestName string
	Err       error
}

func (e *GuestLoadError) Error() string {
	return fmt.Sprintf("failed to load guest '%s': %v", e.GuestName, e.Err)
}

func (e *GuestLoadError) Unwrap() error {
	return e.Err
}

// MissingExportError occurs when a compiled guest lacks an export its
// manifest declares.
type MissingExportError struct {
	GuestName string
	Export    string
}

func (e *MissingExportError) Error() string {
	return fmt.Sprintf("guest '%s' does not export function '%s'", e.GuestName, e.Export)
}

// BufferOverflowError occurs when a write would cross the end of the buffer.
type BufferOverflowError struct {
	Capacity uint32
	Offset   uint64
	Length   uint64
}

func (e *BufferOverflowError) Error() string {
	return fmt.Sprintf("%d bytes at offset %d overflow the %d byte buffer",
		e.Length, e.Offset, e.Capacity)
}
