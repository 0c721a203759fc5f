package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-passing-data/internal/config"
	"github.com/woxQAQ/wasm-passing-data/internal/guest"
	"github.com/woxQAQ/wasm-passing-data/internal/wasm"
)

// Driver loads the guest and runs exchanges against fresh instances of it.
type Driver struct {
	cfg         *config.Config
	runtime     *wasm.Runtime
	loader      *guest.Loader
	instanceMgr *wasm.InstanceManager
	logger      *zap.Logger

	mu    sync.Mutex
	guest *guest.Guest
}

// Result describes one completed exchange.
type Result struct {
	InstanceID string
	Offset     uint32
	Original   []byte
	NewLength  uint32
	Final      []byte
	Elapsed    time.Duration
}

// RuntimeConfig translates the wasm section of cfg.
func RuntimeConfig(cfg config.WasmConfig) *wasm.RuntimeConfig {
	return &wasm.RuntimeConfig{
		MemoryPages:  cfg.MemoryPages,
		DebugEnabled: cfg.Debug,
		CacheDir:     cfg.CacheDir,
		MaxInstances: cfg.MaxInstances,
		CallTimeout:  time.Duration(cfg.ExecutionTimeout) * time.Second,
	}
}

func NewDriver(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Driver, error) {
	// Initialize Wasm runtime.
	wasmRuntime, err := wasm.NewRuntime(ctx, logger, RuntimeConfig(cfg.Wasm))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	logger.Info("Exchange driver initialized",
		zap.String("guest_dir", cfg.GuestDir),
		zap.Uint32("wasm_memory_pages", cfg.Wasm.MemoryPages),
		zap.String("wasm_cache_dir", cfg.Wasm.CacheDir),
	)

	return &Driver{
		cfg:         cfg,
		runtime:     wasmRuntime,
		loader:      guest.NewLoader(wasmRuntime, logger),
		instanceMgr: wasm.NewInstanceManager(wasmRuntime, wasm.NewHostFunctions(logger), logger),
		logger:      logger.With(zap.String("component", "exchange-driver")),
	}, nil
}

// Guest loads the configured guest on first use.
func (d *Driver) Guest(ctx context.Context) (*guest.Guest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.guest != nil {
		return d.guest, nil
	}

	g, err := d.loader.Load(ctx, d.cfg.GuestDir)
	if err != nil {
		return nil, err
	}
	d.guest = g
	return g, nil
}

// Open instantiates the guest into a new session. Sessions never share
// linear memory.
func (d *Driver) Open(ctx context.Context) (*Session, error) {
	g, err := d.Guest(ctx)
	if err != nil {
		return nil, err
	}

	inst, err := d.instanceMgr.Instantiate(ctx, g.InstanceConfig())
	if err != nil {
		return nil, err
	}

	return newSession(inst, g.Layout(), d.logger), nil
}

// Run performs one complete exchange: locate the buffer, write message, have
// the guest append its suffix and read the result back.
func (d *Driver) Run(ctx context.Context, message []byte) (res *Result, err error) {
	start := time.Now()

	s, err := d.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := s.Close(ctx); closeErr != nil {
			d.logger.Warn("Failed to release guest instance",
				zap.String("instance_id", s.ID()),
				zap.Error(closeErr),
			)
			err = joinRelease(err, closeErr)
			res = nil
		}
	}()

	offset, err := s.BufferOffset(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.Write(ctx, message); err != nil {
		return nil, err
	}

	newLength, err := s.AppendSuffix(ctx, uint32(len(message)))
	if err != nil {
		return nil, err
	}

	if err := s.Verify(ctx, newLength); err != nil {
		return nil, err
	}

	final, err := s.Read(ctx, newLength)
	if err != nil {
		return nil, err
	}

	res = &Result{
		InstanceID: s.ID(),
		Offset:     offset,
		Original:   append([]byte(nil), message...),
		NewLength:  newLength,
		Final:      final,
		Elapsed:    time.Since(start),
	}

	d.logger.Info("Exchange complete",
		zap.String("instance_id", res.InstanceID),
		zap.Uint32("offset", res.Offset),
		zap.Int("original_length", len(res.Original)),
		zap.Uint32("new_length", res.NewLength),
		zap.ByteString("final", res.Final),
		zap.Duration("elapsed", res.Elapsed),
	)

	return res, nil
}

// joinRelease adds a failed instance release to the exchange error.
func joinRelease(err, closeErr error) error {
	if closeErr == nil {
		return err
	}
	closeErr = fmt.Errorf("failed to release guest instance: %w", closeErr)
	if err == nil {
		return closeErr
	}
	return errors.Join(err, closeErr)
}

// Close gracefully shuts down the driver.
func (d *Driver) Close(ctx context.Context) error {
	d.logger.Info("Shutting down exchange driver")

	// Shutdown Wasm runtime.
	if err := d.runtime.Close(ctx); err != nil {
		d.logger.Error("Failed to shutdown Wasm runtime", zap.Error(err))
		return err
	}

	d.logger.Info("Exchange driver shutdown complete")
	return nil
}
