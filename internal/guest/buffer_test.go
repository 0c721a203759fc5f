package guest

import (
	"bytes"
	"errors"
	"testing"
)

func TestBufferAppendSuffix(t *testing.T) {
	b := NewBuffer(DefaultLayout())

	if err := b.Write([]byte("Hello there,")); err != nil {
		t.Fatal(err)
	}

	n, err := b.AppendSuffix(12)
	if err != nil {
		t.Fatalf("AppendSuffix failed: %v", err)
	}
	if n != 26 {
		t.Errorf("New length = %d, want 26", n)
	}

	got, err := b.Bytes(n)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "Hello there, Wasm is cool!" {
		t.Errorf("Buffer = %q", got)
	}
}

func TestBufferAppendSuffixEveryLength(t *testing.T) {
	l := DefaultLayout()
	suffix := []byte(l.Suffix)

	for n := uint32(0); n <= l.MaxOriginalLength(); n++ {
		b := NewBuffer(l)
		if err := b.Write(bytes.Repeat([]byte{'a'}, int(n))); err != nil {
			t.Fatal(err)
		}

		got, err := b.AppendSuffix(n)
		if err != nil {
			t.Fatalf("AppendSuffix(%d) failed: %v", n, err)
		}
		if got != n+l.SuffixLen() {
			t.Fatalf("AppendSuffix(%d) = %d, want %d", n, got, n+l.SuffixLen())
		}

		out, err := b.Bytes(got)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out[n:], suffix) {
			t.Fatalf("Suffix at %d = %q", n, out[n:])
		}
	}
}

func TestBufferOverflow(t *testing.T) {
	l := DefaultLayout()
	b := NewBuffer(l)

	_, err := b.AppendSuffix(l.MaxOriginalLength() + 1)
	var overflow *BufferOverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("Expected BufferOverflowError, got %v", err)
	}
	if overflow.Capacity != 1000 || overflow.Offset != 987 {
		t.Errorf("Unexpected overflow: %+v", overflow)
	}

	if err := b.Write(make([]byte, 1001)); !errors.As(err, &overflow) {
		t.Errorf("Write: expected BufferOverflowError, got %v", err)
	}
	if _, err := b.Bytes(1001); !errors.As(err, &overflow) {
		t.Errorf("Bytes: expected BufferOverflowError, got %v", err)
	}

	// The full buffer is still writable.
	if err := b.Write(make([]byte, 1000)); err != nil {
		t.Errorf("Full-size write failed: %v", err)
	}
}

func TestBufferOffset(t *testing.T) {
	b := NewBuffer(DefaultLayout())

	if b.Offset() != 16 {
		t.Errorf("Offset = %d, want 16", b.Offset())
	}
	if b.Capacity() != 1000 {
		t.Errorf("Capacity = %d, want 1000", b.Capacity())
	}
}

func TestBufferInstancesIndependent(t *testing.T) {
	a := NewBuffer(DefaultLayout())
	b := NewBuffer(DefaultLayout())

	if err := a.Write([]byte("first")); err != nil {
		t.Fatal(err)
	}
	if _, err := a.AppendSuffix(5); err != nil {
		t.Fatal(err)
	}

	got, err := b.Bytes(19)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, make([]byte, 19)) {
		t.Errorf("Second buffer changed: %q", got)
	}
}
