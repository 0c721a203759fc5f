package guest

import (
	"fmt"
	"math"
)

// suffixAlign is the alignment of the buffer that follows the suffix constant.
const suffixAlign = 16

// Imports names the entities a guest imports from its host.
type Imports struct {
	Module     string
	Memory     string
	MemoryBase string
}

// Exports names the functions a guest exports.
type Exports struct {
	BufferOffset string
	AppendSuffix string
}

// Layout describes one build of the buffer guest.
//
// Relative to the imported memory base, the suffix constant occupies
// [0, SuffixSlot) and the buffer occupies [SuffixSlot, SuffixSlot+Capacity).
type Layout struct {
	Capacity uint32
	Suffix   string
	Imports  Imports
	Exports  Exports
}

// DefaultLayout returns the layout of the strings-wasm-is-cool guest.
func DefaultLayout() Layout {
	return Layout{
		Capacity: 1000,
		Suffix:   " Wasm is cool!",
		Imports: Imports{
			Module:     "env",
			Memory:     "memory",
			MemoryBase: "__memory_base",
		},
		Exports: Exports{
			BufferOffset: "get_buffer_offset",
			AppendSuffix: "append_suffix",
		},
	}
}

// SuffixLen is the number of bytes append_suffix writes.
func (l Layout) SuffixLen() uint32 {
	return uint32(len(l.Suffix))
}

// SuffixSlot is the space reserved for the suffix constant ahead of the buffer.
func (l Layout) SuffixSlot() uint32 {
	return (l.SuffixLen() + suffixAlign - 1) / suffixAlign * suffixAlign
}

// MaxOriginalLength is the largest length append_suffix accepts.
func (l Layout) MaxOriginalLength() uint32 {
	return l.Capacity - l.SuffixLen()
}

// Footprint is the number of bytes the guest uses above its memory base.
func (l Layout) Footprint() uint64 {
	return uint64(l.SuffixSlot()) + uint64(l.Capacity)
}

// Validate checks that the layout can be compiled into a guest.
func (l Layout) Validate() error {
	switch {
	case l.Capacity == 0:
		return fmt.Errorf("buffer capacity must be positive")
	case l.Capacity > math.MaxInt32:
		return fmt.Errorf("buffer capacity %d exceeds i32 range", l.Capacity)
	case l.Suffix == "":
		return fmt.Errorf("suffix must not be empty")
	case uint64(len(l.Suffix)) > uint64(l.Capacity):
		return fmt.Errorf("suffix of %d bytes does not fit a %d byte buffer", len(l.Suffix), l.Capacity)
	case l.Imports.Module == "" || l.Imports.Memory == "" || l.Imports.MemoryBase == "":
		return fmt.Errorf("import names must not be empty")
	case l.Imports.Memory == l.Imports.MemoryBase:
		return fmt.Errorf("imports %q collide", l.Imports.Memory)
	case l.Exports.BufferOffset == "" || l.Exports.AppendSuffix == "":
		return fmt.Errorf("export names must not be empty")
	case l.Exports.BufferOffset == l.Exports.AppendSuffix:
		return fmt.Errorf("exports %q collide", l.Exports.BufferOffset)
	}

	for _, name := range []string{
		l.Imports.Module, l.Imports.Memory, l.Imports.MemoryBase,
		l.Exports.BufferOffset, l.Exports.AppendSuffix,
	} {
		if !plainName(name) {
			return fmt.Errorf("name %q must be printable ASCII without quotes or backslashes", name)
		}
	}
	return nil
}

func plainName(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			return false
		}
	}
	return true
}
