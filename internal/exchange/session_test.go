package exchange

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/woxQAQ/wasm-passing-data/internal/guest"
)

func openSession(t *testing.T, d *Driver) *Session {
	t.Helper()
	s, err := d.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestAppendSuffixEveryLength(t *testing.T) {
	d := newTestDriver(t, defaultGuestDir(t))
	s := openSession(t, d)
	ctx := context.Background()
	l := s.Layout()

	for n := uint32(0); n <= l.MaxOriginalLength(); n++ {
		got, err := s.AppendSuffix(ctx, n)
		if err != nil {
			t.Fatalf("AppendSuffix(%d) failed: %v", n, err)
		}
		if got != n+l.SuffixLen() {
			t.Fatalf("AppendSuffix(%d) = %d, want %d", n, got, n+l.SuffixLen())
		}

		out, err := s.Read(ctx, got)
		if err != nil {
			t.Fatal(err)
		}
		if string(out[n:]) != l.Suffix {
			t.Fatalf("Suffix at %d = %q", n, out[n:])
		}
	}
}

func TestAppendSuffixTouchesOnlySuffixRange(t *testing.T) {
	d := newTestDriver(t, defaultGuestDir(t))
	s := openSession(t, d)
	ctx := context.Background()

	fill := bytes.Repeat([]byte{'.'}, 1000)
	if err := s.Write(ctx, fill); err != nil {
		t.Fatal(err)
	}

	if _, err := s.AppendSuffix(ctx, 100); err != nil {
		t.Fatal(err)
	}

	out, err := s.Read(ctx, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out[:100], fill[:100]) {
		t.Errorf("Bytes before the suffix changed: %q", out[:100])
	}
	if string(out[100:114]) != " Wasm is cool!" {
		t.Errorf("Suffix = %q", out[100:114])
	}
	if !bytes.Equal(out[114:], fill[114:]) {
		t.Errorf("Bytes after the suffix changed: %q", out[114:])
	}
	if err := s.Verify(ctx, 1000); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestBufferOffsetIdempotent(t *testing.T) {
	d := newTestDriver(t, defaultGuestDir(t))
	s := openSession(t, d)
	ctx := context.Background()

	first, err := s.BufferOffset(ctx)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		got, err := s.BufferOffset(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != first {
			t.Errorf("Offset = %d, want %d", got, first)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	d := newTestDriver(t, defaultGuestDir(t))
	s := openSession(t, d)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	for _, size := range []int{0, 1, 12, 500, 999, 1000} {
		payload := make([]byte, size)
		rng.Read(payload)

		if err := s.Write(ctx, payload); err != nil {
			t.Fatalf("Write(%d bytes) failed: %v", size, err)
		}
		before := s.inst.Generation()

		got, err := s.Read(ctx, uint32(size))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("Round trip of %d bytes differs", size)
		}

		// No guest call between write and read.
		if s.inst.Generation() != before {
			t.Errorf("Read of %d bytes called into the guest", size)
		}
	}
}

func TestOverflowRejectedBeforeGuestCall(t *testing.T) {
	d := newTestDriver(t, defaultGuestDir(t))
	s := openSession(t, d)
	ctx := context.Background()

	if _, err := s.BufferOffset(ctx); err != nil {
		t.Fatal(err)
	}
	before := s.inst.Generation()

	var overflow *guest.BufferOverflowError

	if _, err := s.AppendSuffix(ctx, 987); !errors.As(err, &overflow) {
		t.Errorf("AppendSuffix(987): expected BufferOverflowError, got %v", err)
	}
	if _, err := s.AppendSuffix(ctx, 0xFFFFFFFF); !errors.As(err, &overflow) {
		t.Errorf("AppendSuffix(-1): expected BufferOverflowError, got %v", err)
	}
	if err := s.Write(ctx, make([]byte, 1001)); !errors.As(err, &overflow) {
		t.Errorf("Write: expected BufferOverflowError, got %v", err)
	}
	if _, err := s.Read(ctx, 1001); !errors.As(err, &overflow) {
		t.Errorf("Read: expected BufferOverflowError, got %v", err)
	}

	if s.inst.Generation() != before {
		t.Error("Rejected operations reached the guest")
	}
}

func TestSessionsIndependent(t *testing.T) {
	d := newTestDriver(t, defaultGuestDir(t))
	a := openSession(t, d)
	b := openSession(t, d)
	ctx := context.Background()

	if a.ID() == b.ID() {
		t.Fatalf("Sessions share instance ID %q", a.ID())
	}

	if err := a.Write(ctx, []byte("Hello there,")); err != nil {
		t.Fatal(err)
	}
	n, err := a.AppendSuffix(ctx, 12)
	if err != nil {
		t.Fatal(err)
	}

	gotB, err := b.Read(ctx, n)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotB, make([]byte, n)) {
		t.Errorf("Second session sees %q", gotB)
	}

	gotA, err := a.Read(ctx, n)
	if err != nil {
		t.Fatal(err)
	}
	if string(gotA) != "Hello there, Wasm is cool!" {
		t.Errorf("First session holds %q", gotA)
	}

	// Both instances report the same offset inside their own memory.
	offA, err := a.BufferOffset(ctx)
	if err != nil {
		t.Fatal(err)
	}
	offB, err := b.BufferOffset(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if offA != offB {
		t.Errorf("Offsets differ: %d and %d", offA, offB)
	}
}

func TestSessionClosed(t *testing.T) {
	d := newTestDriver(t, defaultGuestDir(t))
	ctx := context.Background()

	s, err := d.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}

	var closed *SessionClosedError
	if _, err := s.BufferOffset(ctx); !errors.As(err, &closed) {
		t.Errorf("BufferOffset: expected SessionClosedError, got %v", err)
	}
	if err := s.Write(ctx, []byte("x")); !errors.As(err, &closed) {
		t.Errorf("Write: expected SessionClosedError, got %v", err)
	}
	if _, err := s.AppendSuffix(ctx, 1); !errors.As(err, &closed) {
		t.Errorf("AppendSuffix: expected SessionClosedError, got %v", err)
	}
	if _, err := s.Read(ctx, 1); !errors.As(err, &closed) {
		t.Errorf("Read: expected SessionClosedError, got %v", err)
	}

	if got := d.runtime.InstanceCount(); got != 0 {
		t.Errorf("Closed session left %d tracked instances", got)
	}
}
