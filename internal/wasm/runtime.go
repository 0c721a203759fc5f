package wasm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Runtime manages the wazero runtime lifecycle.
// One Runtime is shared by every guest instance in the process.
type Runtime struct {
	// wazero runtime (singleton)
	runtime wazero.Runtime

	// Optional on-disk compilation cache, owned by the runtime.
	cache wazero.CompilationCache

	// Compiled module cache (key: module name/path -> value: compiled module)
	// This avoids recompiling the same Wasm binary multiple times
	modules sync.Map // map[string]*CompiledModule

	// Active module instances (for cleanup on shutdown)
	instances sync.Map // map[string]*Instance
	live      atomic.Int64

	// Configuration
	config *RuntimeConfig

	// Logger
	logger *zap.Logger

	// Shutdown management
	closeOnce sync.Once
	closed    chan struct{}
}

// RuntimeConfig holds runtime configuration.
type RuntimeConfig struct {
	// Memory limits for Wasm modules (in pages, 64KB each)
	// Default: 256 pages = 16MB max memory per module
	MemoryPages uint32

	// Enable debug logging for Wasm execution
	DebugEnabled bool

	// Compilation cache directory (for persistent caching)
	// If empty, uses in-memory caching only
	CacheDir string

	// Maximum number of concurrent instances (0 = unlimited)
	MaxInstances int

	// Upper bound for a single exported function call (0 = no limit).
	CallTimeout time.Duration
}

// CompiledModule wraps a wazero.CompiledModule with metadata.
type CompiledModule struct {
	// wazero compiled module
	Module wazero.CompiledModule

	// Module metadata
	Name      string
	Source    string // File path or identifier
	SizeBytes int64

	// Original binary, kept so imports can be rebound per instance.
	Binary []byte

	// Imports declared by the module.
	Imports []Import

	// Whether the module defines or imports a linear memory.
	HasMemory bool

	// Compilation timestamp
	CompiledAt int64
}

// NewRuntime creates and initializes a new wazero runtime.
// This should be called once during application startup.
func NewRuntime(ctx context.Context, logger *zap.Logger, config *RuntimeConfig) (*Runtime, error) {
	// Validate config
	if config == nil {
		config = DefaultRuntimeConfig()
	}

	rc := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(config.CallTimeout > 0).
		WithDebugInfoEnabled(config.DebugEnabled)
	if config.MemoryPages > 0 {
		rc = rc.WithMemoryLimitPages(config.MemoryPages)
	}

	var cache wazero.CompilationCache
	if config.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(config.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compilation cache %s: %w", config.CacheDir, err)
		}
		cache = c
		rc = rc.WithCompilationCache(cache)
	}

	r := wazero.NewRuntimeWithConfig(ctx, rc)

	runtime := &Runtime{
		runtime: r,
		cache:   cache,
		config:  config,
		logger:  logger.With(zap.String("component", "wasm-runtime")),
		closed:  make(chan struct{}),
	}

	logger.Info("Wasm runtime initialized",
		zap.Uint32("memory_pages", config.MemoryPages),
		zap.Bool("debug_enabled", config.DebugEnabled),
		zap.String("cache_dir", config.CacheDir),
		zap.Int("max_instances", config.MaxInstances),
		zap.Duration("call_timeout", config.CallTimeout),
	)

	return runtime, nil
}

// DefaultRuntimeConfig returns sensible defaults.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		MemoryPages:  256, // 16MB
		DebugEnabled: false,
		CacheDir:     "",
		MaxInstances: 100,
	}
}

// Close gracefully shuts down the runtime.
// Safe to call multiple times (idempotent).
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.logger.Info("Shutting down Wasm runtime")

		// Close all active instances first
		r.instances.Range(func(key, value interface{}) bool {
			if inst, ok := value.(*Instance); ok {
				if closeErr := inst.Close(ctx); closeErr != nil {
					r.logger.Warn("Failed to close instance",
						zap.String("instance_id", key.(string)),
						zap.Error(closeErr),
					)
				}
			}
			return true
		})

		// Close the runtime (closes compiled modules)
		err = r.runtime.Close(ctx)

		if r.cache != nil {
			if cacheErr := r.cache.Close(ctx); cacheErr != nil && err == nil {
				err = cacheErr
			}
		}

		close(r.closed)
		r.logger.Info("Wasm runtime shutdown complete")
	})

	return err
}

// GetCompiledModule retrieves a compiled module from cache.
func (r *Runtime) GetCompiledModule(name string) (*CompiledModule, bool) {
	if val, ok := r.modules.Load(name); ok {
		if mod, ok := val.(*CompiledModule); ok {
			return mod, true
		}
	}
	return nil, false
}

// StoreCompiledModule stores a compiled module in cache.
func (r *Runtime) StoreCompiledModule(module *CompiledModule) {
	r.modules.Store(module.Name, module)
}

// GetInstance retrieves an active instance.
func (r *Runtime) GetInstance(instanceID string) (*Instance, bool) {
	if val, ok := r.instances.Load(instanceID); ok {
		if inst, ok := val.(*Instance); ok {
			return inst, true
		}
	}
	return nil, false
}

// StoreInstance stores an active instance.
func (r *Runtime) StoreInstance(instance *Instance) {
	if _, loaded := r.instances.LoadOrStore(instance.ID, instance); !loaded {
		r.live.Add(1)
	}
}

// DeleteInstance removes an instance from tracking.
func (r *Runtime) DeleteInstance(instanceID string) {
	if _, loaded := r.instances.LoadAndDelete(instanceID); loaded {
		r.live.Add(-1)
	}
}

// InstanceCount returns the number of tracked instances.
func (r *Runtime) InstanceCount() int {
	return int(r.live.Load())
}

// IsClosed returns whether the runtime has been closed.
func (r *Runtime) IsClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}
