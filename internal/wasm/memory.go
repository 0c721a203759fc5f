package wasm

import (
	"github.com/tetratelabs/wazero/api"
)

// View provides bounds-checked access to an instance's linear memory.
//
// Guest calls may grow memory and move the backing array, so a View is only
// valid until the next call into the instance. Using it afterwards returns
// ErrStaleView; acquire a new one with Instance.View.
type View struct {
	mem        api.Memory
	inst       *Instance
	generation uint64
}

// View returns a memory view valid until the next guest call.
func (i *Instance) View() (*View, error) {
	if i.closed.Load() {
		return nil, ErrInstanceClosed
	}
	mem := i.memory()
	if mem == nil {
		return nil, ErrNoMemory
	}
	return &View{mem: mem, inst: i, generation: i.generation.Load()}, nil
}

func (v *View) check() error {
	if v.inst.closed.Load() {
		return ErrInstanceClosed
	}
	if v.inst.generation.Load() != v.generation {
		return ErrStaleView
	}
	return nil
}

// Size returns the current size of linear memory in bytes.
func (v *View) Size() (uint32, error) {
	if err := v.check(); err != nil {
		return 0, err
	}
	return v.mem.Size(), nil
}

// Read copies length bytes starting at offset out of guest memory.
func (v *View) Read(offset, length uint32) ([]byte, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	buf, ok := v.mem.Read(offset, length)
	if !ok {
		return nil, &MemoryAccessError{Operation: "read", Address: offset, Length: length, Err: ErrOutOfBounds}
	}
	// Read aliases guest memory.
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// Write copies p into guest memory at offset.
func (v *View) Write(offset uint32, p []byte) error {
	if err := v.check(); err != nil {
		return err
	}
	if !v.mem.Write(offset, p) {
		return &MemoryAccessError{Operation: "write", Address: offset, Length: uint32(len(p)), Err: ErrOutOfBounds}
	}
	return nil
}
