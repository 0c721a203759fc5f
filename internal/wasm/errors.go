package wasm

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStaleView is returned when a memory view is used after a guest call
	// that may have grown (and therefore moved) guest memory.
	ErrStaleView = errors.New("memory view is stale; re-acquire it after guest calls")

	// ErrOutOfBounds is returned when a memory access falls outside guest memory.
	ErrOutOfBounds = errors.New("out of bounds")

	// ErrNoMemory is returned when an instance neither defines nor imports memory.
	ErrNoMemory = errors.New("instance has no linear memory")

	// ErrRuntimeClosed is returned when the runtime has already been shut down.
	ErrRuntimeClosed = errors.New("wasm runtime is closed")

	// ErrInstanceClosed is returned when an instance is used after Close.
	ErrInstanceClosed = errors.New("wasm instance is closed")

	// ErrDuplicateInstance is returned when an instance ID is already tracked.
	ErrDuplicateInstance = errors.New("instance ID already in use")
)

// CompilationError occurs when Wasm module compilation fails
type CompilationError struct {
	ModuleName string
	Err        error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile Wasm module '%s': %v", e.ModuleName, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// ModuleFormatError occurs when a module binary is empty or truncated before
// it ever reaches the compiler.
type ModuleFormatError struct {
	ModuleName string
	Size       int
	Reason     string
}

func (e *ModuleFormatError) Error() string {
	return fmt.Sprintf("invalid Wasm binary '%s' (%d bytes): %s", e.ModuleName, e.Size, e.Reason)
}

// InstantiationError occurs when module instantiation fails
type InstantiationError struct {
	ModuleName string
	InstanceID string
	Err        error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("failed to instantiate module '%s' (instance: %s): %v",
		e.ModuleName, e.InstanceID, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ImportResolutionError occurs when the host cannot build the imports a
// module declares.
type ImportResolutionError struct {
	ModuleName string
	Namespace  string
	Err        error
}

func (e *ImportResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve imports '%s' for module '%s': %v",
		e.Namespace, e.ModuleName, e.Err)
}

func (e *ImportResolutionError) Unwrap() error {
	return e.Err
}

// ModuleNotFoundError occurs when a module is not in cache
type ModuleNotFoundError struct {
	ModuleName string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module '%s' not found in cache", e.ModuleName)
}

// InstanceLimitError occurs when the runtime already tracks the maximum
// number of live instances.
type InstanceLimitError struct {
	Limit int
}

func (e *InstanceLimitError) Error() string {
	return fmt.Sprintf("instance limit reached (%d live instances)", e.Limit)
}

// FunctionNotFoundError occurs when an exported function is missing
type FunctionNotFoundError struct {
	ModuleName   string
	FunctionName string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function '%s' not found in module '%s'",
		e.FunctionName, e.ModuleName)
}

// CallError occurs when an exported function rejects its arguments or traps.
type CallError struct {
	ModuleName   string
	FunctionName string
	Err          error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call to '%s' in module '%s' failed: %v",
		e.FunctionName, e.ModuleName, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// MemoryAccessError occurs when memory operations fail
type MemoryAccessError struct {
	Operation string
	Address   uint32
	Length    uint32
	Err       error
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("memory access failed (op=%s, addr=%d, len=%d): %v",
		e.Operation, e.Address, e.Length, e.Err)
}

func (e *MemoryAccessError) Unwrap() error {
	return e.Err
}

// TimeoutError occurs when Wasm execution times out
type TimeoutError struct {
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Wasm execution timed out after %v", e.Duration)
}
