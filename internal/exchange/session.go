package exchange

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-passing-data/internal/guest"
	"github.com/woxQAQ/wasm-passing-data/internal/wasm"
)

// Session is one guest instance together with a model of its buffer.
// A Session is not safe for concurrent use.
type Session struct {
	inst   *wasm.Instance
	layout guest.Layout
	model  *guest.Buffer
	logger *zap.Logger

	offset    uint32
	hasOffset bool
	closed    bool
}

func newSession(inst *wasm.Instance, layout guest.Layout, logger *zap.Logger) *Session {
	return &Session{
		inst:   inst,
		layout: layout,
		model:  guest.NewBuffer(layout),
		logger: logger.With(zap.String("instance_id", inst.ID)),
	}
}

// ID returns the instance ID backing the session.
func (s *Session) ID() string {
	return s.inst.ID
}

// Layout returns the buffer layout of the session's guest.
func (s *Session) Layout() guest.Layout {
	return s.layout
}

// BufferOffset asks the guest where its buffer starts. The answer must not
// change over the life of the instance.
func (s *Session) BufferOffset(ctx context.Context) (uint32, error) {
	if s.closed {
		return 0, &SessionClosedError{InstanceID: s.inst.ID}
	}

	offset, err := s.inst.CallI32(ctx, s.layout.Exports.BufferOffset)
	if err != nil {
		return 0, err
	}

	if s.hasOffset {
		if offset != s.offset {
			return 0, &ProtocolError{
				Function: s.layout.Exports.BufferOffset,
				Detail:   fmt.Sprintf("offset moved from %d to %d", s.offset, offset),
			}
		}
		return offset, nil
	}

	view, err := s.inst.View()
	if err != nil {
		return 0, err
	}
	size, err := view.Size()
	if err != nil {
		return 0, err
	}
	if end := uint64(offset) + uint64(s.layout.Capacity); end > uint64(size) {
		return 0, &ProtocolError{
			Function: s.layout.Exports.BufferOffset,
			Detail:   fmt.Sprintf("buffer [%d, %d) ends past memory size %d", offset, end, size),
		}
	}
	s.offset, s.hasOffset = offset, true

	s.logger.Debug("Buffer located", zap.Uint32("offset", offset))
	return offset, nil
}

// bufferOffset returns the cached offset, asking the guest on first use.
func (s *Session) bufferOffset(ctx context.Context) (uint32, error) {
	if s.hasOffset {
		return s.offset, nil
	}
	return s.BufferOffset(ctx)
}

// Write copies p to the start of the guest buffer.
func (s *Session) Write(ctx context.Context, p []byte) error {
	if s.closed {
		return &SessionClosedError{InstanceID: s.inst.ID}
	}
	if uint64(len(p)) > uint64(s.layout.Capacity) {
		return &guest.BufferOverflowError{Capacity: s.layout.Capacity, Length: uint64(len(p))}
	}

	offset, err := s.bufferOffset(ctx)
	if err != nil {
		return err
	}

	// Views do not survive guest calls; take one after the offset call.
	view, err := s.inst.View()
	if err != nil {
		return err
	}
	if err := view.Write(offset, p); err != nil {
		return err
	}
	if err := s.model.Write(p); err != nil {
		return err
	}

	s.logger.Debug("Wrote payload", zap.Int("length", len(p)))
	return nil
}

// AppendSuffix asks the guest to append its suffix after the first n bytes
// and returns the new length.
func (s *Session) AppendSuffix(ctx context.Context, n uint32) (uint32, error) {
	if s.closed {
		return 0, &SessionClosedError{InstanceID: s.inst.ID}
	}
	if err := guest.CheckAppend(s.layout, n); err != nil {
		return 0, err
	}

	got, err := s.inst.CallI32(ctx, s.layout.Exports.AppendSuffix, n)
	if err != nil {
		return 0, err
	}

	want, err := s.model.AppendSuffix(n)
	if err != nil {
		return 0, err
	}
	if got != want {
		return 0, &ProtocolError{
			Function: s.layout.Exports.AppendSuffix,
			Detail:   fmt.Sprintf("returned length %d, want %d", got, want),
		}
	}

	s.logger.Debug("Suffix appended",
		zap.Uint32("original_length", n),
		zap.Uint32("new_length", got),
	)
	return got, nil
}

// Read copies the first n bytes of the guest buffer.
func (s *Session) Read(ctx context.Context, n uint32) ([]byte, error) {
	if s.closed {
		return nil, &SessionClosedError{InstanceID: s.inst.ID}
	}
	if n > s.layout.Capacity {
		return nil, &guest.BufferOverflowError{Capacity: s.layout.Capacity, Length: uint64(n)}
	}

	offset, err := s.bufferOffset(ctx)
	if err != nil {
		return nil, err
	}

	view, err := s.inst.View()
	if err != nil {
		return nil, err
	}
	return view.Read(offset, n)
}

// Verify compares the first n guest bytes with the session's buffer model.
func (s *Session) Verify(ctx context.Context, n uint32) error {
	got, err := s.Read(ctx, n)
	if err != nil {
		return err
	}
	want, err := s.model.Bytes(n)
	if err != nil {
		return err
	}
	if string(got) != string(want) {
		return &ProtocolError{
			Function: s.layout.Exports.AppendSuffix,
			Detail:   fmt.Sprintf("buffer holds %q, want %q", got, want),
		}
	}
	return nil
}

// Close releases the guest instance.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.inst.Close(ctx)
}
