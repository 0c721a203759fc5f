package wasm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"
)

// InstanceManager creates and manages module instances.
type InstanceManager struct {
	runtime   *Runtime
	logger    *zap.Logger
	hostFuncs *HostFunctionsImpl

	hostOnce sync.Once
	hostErr  error
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, hostFuncs *HostFunctionsImpl, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime:   runtime,
		hostFuncs: hostFuncs,
		logger:    logger.With(zap.String("component", "wasm-instance")),
	}
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (if empty, one is generated).
	InstanceID string

	// Import provider for relocatable guests. Nil uses DefaultEnvConfig.
	// Only instantiated when the module imports from Env.Module.
	Env *EnvConfig

	// Exported functions to resolve eagerly.
	Exports []string
}

// Instance represents an instantiated Wasm module.
type Instance struct {
	// wazero module instance.
	module api.Module

	// Private import provider and the guest compiled against it, if any.
	env        api.Module
	envMemory  string
	hasMemory  bool
	compiled   wazero.CompiledModule
	runtime    *Runtime
	logger     *zap.Logger
	generation atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once
	closeErr   error

	// Instance metadata.
	ID        string
	Name      string
	Namespace string
	CreatedAt int64

	// Exported functions (cached for performance).
	exports map[string]api.Function
}

// Instantiate creates a new instance from a compiled module.
// Every resource created here is released again if a later step fails.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	if m.runtime.IsClosed() {
		return nil, ErrRuntimeClosed
	}

	// Get compiled module from cache.
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	if limit := m.runtime.config.MaxInstances; limit > 0 && m.runtime.InstanceCount() >= limit {
		return nil, &InstanceLimitError{Limit: limit}
	}

	// Generate instance ID if not provided.
	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = generateInstanceID()
	}

	if _, exists := m.runtime.GetInstance(instanceID); exists {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        ErrDuplicateInstance,
		}
	}

	m.logger.Info("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	inst := &Instance{
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now().Unix(),
		hasMemory: compiled.HasMemory,
		runtime:   m.runtime,
		logger:    m.logger.With(zap.String("instance_id", instanceID)),
	}

	succeeded := false
	defer func() {
		if !succeeded {
			inst.release(ctx)
		}
	}()

	if len(ImportsFrom(compiled.Imports, HostModuleName)) > 0 {
		// Host functions take pointers into guest memory.
		if !compiled.HasMemory {
			return nil, &ImportResolutionError{
				ModuleName: config.ModuleName,
				Namespace:  HostModuleName,
				Err:        ErrNoMemory,
			}
		}
		if err := m.ensureHostModule(ctx); err != nil {
			return nil, &ImportResolutionError{
				ModuleName: config.ModuleName,
				Namespace:  HostModuleName,
				Err:        err,
			}
		}
	}

	guest := compiled.Module
	env := DefaultEnvConfig()
	if config.Env != nil {
		env = *config.Env
	}

	if envImports := ImportsFrom(compiled.Imports, env.Module); len(envImports) > 0 {
		namespace := env.Module + "." + instanceID
		if err := m.instantiateEnv(ctx, inst, namespace, env); err != nil {
			return nil, &ImportResolutionError{
				ModuleName: config.ModuleName,
				Namespace:  env.Module,
				Err:        err,
			}
		}

		// Bind the guest to its private namespace so that instances never
		// share linear memory.
		rebound, err := RewriteImportModule(compiled.Binary, env.Module, namespace)
		if err != nil {
			return nil, &ImportResolutionError{
				ModuleName: config.ModuleName,
				Namespace:  env.Module,
				Err:        err,
			}
		}
		guest, err = m.runtime.runtime.CompileModule(ctx, rebound)
		if err != nil {
			return nil, &CompilationError{ModuleName: config.ModuleName, Err: err}
		}
		inst.compiled = guest

		m.logger.Debug("Bound env imports",
			zap.String("instance_id", instanceID),
			zap.String("namespace", namespace),
			zap.Int("imports", len(envImports)),
			zap.Uint32("memory_base", env.MemoryBase),
		)
	}

	// Reactor-style guests export _initialize; it is skipped when absent.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions("_initialize")

	module, err := m.runtime.runtime.InstantiateModule(ctx, guest, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}
	inst.module = module

	// Cache exported functions.
	inst.exports = m.cacheExportedFunctions(module, config.Exports)

	// Track active instance.
	m.runtime.StoreInstance(inst)
	succeeded = true

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(inst.exports)),
	)

	return inst, nil
}

// instantiateEnv instantiates the import provider under namespace.
func (m *InstanceManager) instantiateEnv(ctx context.Context, inst *Instance, namespace string, env EnvConfig) error {
	bin, err := BuildEnvModule(env)
	if err != nil {
		return err
	}

	mod, err := m.runtime.runtime.InstantiateWithConfig(ctx, bin,
		wazero.NewModuleConfig().WithName(namespace))
	if err != nil {
		return fmt.Errorf("failed to instantiate env provider: %w", err)
	}

	inst.env = mod
	inst.envMemory = env.MemoryName
	inst.Namespace = namespace
	return nil
}

// ensureHostModule instantiates the host function module once per runtime.
func (m *InstanceManager) ensureHostModule(ctx context.Context) error {
	m.hostOnce.Do(func() {
		if m.hostFuncs == nil {
			m.hostErr = fmt.Errorf("no host functions configured")
			return
		}
		builder := m.runtime.runtime.NewHostModuleBuilder(HostModuleName)
		m.hostFuncs.export(builder)
		if _, err := builder.Instantiate(ctx); err != nil {
			m.hostErr = fmt.Errorf("failed to instantiate host module: %w", err)
		}
	})
	return m.hostErr
}

// cacheExportedFunctions caches references to exported functions.
// This improves performance by avoiding repeated lookups.
func (m *InstanceManager) cacheExportedFunctions(module api.Module, names []string) map[string]api.Function {
	exports := make(map[string]api.Function, len(names))
	for _, name := range names {
		if fn := module.ExportedFunction(name); fn != nil {
			exports[name] = fn
		}
	}
	return exports
}

// Function returns the exported function name.
func (i *Instance) Function(name string) (api.Function, error) {
	if i.closed.Load() {
		return nil, ErrInstanceClosed
	}
	if fn, ok := i.exports[name]; ok {
		return fn, nil
	}
	if fn := i.module.ExportedFunction(name); fn != nil {
		return fn, nil
	}
	return nil, &FunctionNotFoundError{ModuleName: i.Name, FunctionName: name}
}

// Call invokes an exported function. Any call may grow guest memory, so
// views acquired before the call become stale.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn, err := i.Function(name)
	if err != nil {
		return nil, err
	}

	if timeout := i.runtime.config.CallTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	i.generation.Add(1)
	results, err := fn.Call(ctx, params...)
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == sys.ExitCodeDeadlineExceeded {
			err = &TimeoutError{Duration: i.runtime.config.CallTimeout}
		}
		return nil, &CallError{ModuleName: i.Name, FunctionName: name, Err: err}
	}
	return results, nil
}

// CallI32 invokes an exported function whose parameters and single result
// are all i32.
func (i *Instance) CallI32(ctx context.Context, name string, args ...uint32) (uint32, error) {
	fn, err := i.Function(name)
	if err != nil {
		return 0, err
	}

	def := fn.Definition()
	if err := checkI32Signature(def, len(args)); err != nil {
		return 0, &CallError{ModuleName: i.Name, FunctionName: name, Err: err}
	}

	params := make([]uint64, len(args))
	for idx, a := range args {
		params[idx] = api.EncodeU32(a)
	}

	results, err := i.Call(ctx, name, params...)
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(results[0]), nil
}

func checkI32Signature(def api.FunctionDefinition, argc int) error {
	params := def.ParamTypes()
	if len(params) != argc {
		return fmt.Errorf("expected %d arguments, got %d", len(params), argc)
	}
	for idx, t := range params {
		if t != api.ValueTypeI32 {
			return fmt.Errorf("parameter %d is %s, not i32", idx, api.ValueTypeName(t))
		}
	}
	results := def.ResultTypes()
	if len(results) != 1 || results[0] != api.ValueTypeI32 {
		return fmt.Errorf("expected a single i32 result, got %d results", len(results))
	}
	return nil
}

// Generation counts the guest calls made so far.
func (i *Instance) Generation() uint64 {
	return i.generation.Load()
}

// memory returns the guest's linear memory, or nil when the module has none.
// wazero reports a missing memory as a typed nil, so the answer recorded at
// load time decides.
func (i *Instance) memory() api.Memory {
	if !i.hasMemory {
		return nil
	}
	if i.module != nil {
		if mem := i.module.Memory(); mem != nil {
			return mem
		}
	}
	if i.env != nil {
		return i.env.ExportedMemory(i.envMemory)
	}
	return nil
}

// Close closes the instance and releases resources.
func (i *Instance) Close(ctx context.Context) error {
	i.closeOnce.Do(func() {
		i.closed.Store(true)
		i.closeErr = i.release(ctx)
		i.runtime.DeleteInstance(i.ID)
	})
	return i.closeErr
}

// release closes the guest before the env provider it imports from.
func (i *Instance) release(ctx context.Context) error {
	var errs []error
	if i.module != nil {
		errs = append(errs, i.module.Close(ctx))
	}
	if i.env != nil {
		errs = append(errs, i.env.Close(ctx))
	}
	if i.compiled != nil {
		errs = append(errs, i.compiled.Close(ctx))
	}
	return errors.Join(errs...)
}

var instanceSeq atomic.Uint64

// generateInstanceID generates a unique instance ID.
func generateInstanceID() string {
	return fmt.Sprintf("inst-%d-%d", time.Now().UnixNano(), instanceSeq.Add(1))
}
