package guest

// Buffer is an in-process model of one guest instance's buffer. The host
// replays every exchange on a Buffer to check what the guest produced.
type Buffer struct {
	layout Layout
	data   []byte
}

// NewBuffer returns a zeroed buffer for l.
func NewBuffer(l Layout) *Buffer {
	return &Buffer{
		layout: l,
		data:   make([]byte, l.Capacity),
	}
}

// Offset returns the buffer position relative to the memory base.
func (b *Buffer) Offset() uint32 {
	return b.layout.SuffixSlot()
}

// Capacity returns the buffer size in bytes.
func (b *Buffer) Capacity() uint32 {
	return b.layout.Capacity
}

// Write copies p to the start of the buffer.
func (b *Buffer) Write(p []byte) error {
	if uint64(len(p)) > uint64(len(b.data)) {
		return &BufferOverflowError{Capacity: b.layout.Capacity, Offset: 0, Length: uint64(len(p))}
	}
	copy(b.data, p)
	return nil
}

// AppendSuffix writes the suffix at n and returns the new length.
func (b *Buffer) AppendSuffix(n uint32) (uint32, error) {
	if err := CheckAppend(b.layout, n); err != nil {
		return 0, err
	}
	copy(b.data[n:], b.layout.Suffix)
	return n + b.layout.SuffixLen(), nil
}

// Bytes returns a copy of the first n bytes.
func (b *Buffer) Bytes(n uint32) ([]byte, error) {
	if n > b.layout.Capacity {
		return nil, &BufferOverflowError{Capacity: b.layout.Capacity, Offset: 0, Length: uint64(n)}
	}
	out := make([]byte, n)
	copy(out, b.data[:n])
	return out, nil
}

// CheckAppend reports whether appending the suffix at n stays inside the buffer.
func CheckAppend(l Layout, n uint32) error {
	if n > l.MaxOriginalLength() {
		return &BufferOverflowError{
			Capacity: l.Capacity,
			Offset:   uint64(n),
			Length:   uint64(l.SuffixLen()),
		}
	}
	return nil
}
