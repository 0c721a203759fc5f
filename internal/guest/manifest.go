package guest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/wasm-passing-data/internal/wasm"
)

// ManifestFile is the manifest name inside a guest directory.
const ManifestFile = "guest.yaml"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML keys.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Manifest represents the guest.yaml structure.
type Manifest struct {
	Name    string        `yaml:"name" validate:"required"`
	Version string        `yaml:"version" validate:"required,semver"`
	Wasm    WasmConfig    `yaml:"wasm"`
	Env     EnvConfig     `yaml:"env"`
	Exports ExportsConfig `yaml:"exports"`
	Buffer  BufferConfig  `yaml:"buffer"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	File string `yaml:"file" validate:"required"`
}

// EnvConfig describes the imports the host provides.
type EnvConfig struct {
	Module           string `yaml:"module" validate:"required"`
	Memory           string `yaml:"memory" validate:"required"`
	MemoryBaseGlobal string `yaml:"memory_base_global" validate:"required,nefield=Memory"`
	MemoryBase       uint32 `yaml:"memory_base"`
	MemoryMinPages   uint32 `yaml:"memory_min_pages" validate:"min=1,max=65536"`
	MemoryMaxPages   uint32 `yaml:"memory_max_pages" validate:"omitempty,gtefield=MemoryMinPages,max=65536"`
}

// ExportsConfig names the guest's exported functions.
type ExportsConfig struct {
	BufferOffset string `yaml:"buffer_offset" validate:"required"`
	AppendSuffix string `yaml:"append_suffix" validate:"required,nefield=BufferOffset"`
}

// BufferConfig describes the guest buffer.
type BufferConfig struct {
	Capacity uint32 `yaml:"capacity" validate:"required,max=2147483647"`
	Suffix   string `yaml:"suffix" validate:"required"`
}

// NewManifest returns a manifest describing a guest built from l that
// expects the imports described by env.
func NewManifest(name, version, wasmFile string, l Layout, env wasm.EnvConfig) *Manifest {
	return &Manifest{
		Name:    name,
		Version: version,
		Wasm:    WasmConfig{File: wasmFile},
		Env: EnvConfig{
			Module:           l.Imports.Module,
			Memory:           l.Imports.Memory,
			MemoryBaseGlobal: l.Imports.MemoryBase,
			MemoryBase:       env.MemoryBase,
			MemoryMinPages:   env.MinPages,
			MemoryMaxPages:   env.MaxPages,
		},
		Exports: ExportsConfig{
			BufferOffset: l.Exports.BufferOffset,
			AppendSuffix: l.Exports.AppendSuffix,
		},
		Buffer: BufferConfig{
			Capacity: l.Capacity,
			Suffix:   l.Suffix,
		},
	}
}

// defaultManifest carries the defaults applied to keys a guest.yaml omits.
func defaultManifest() Manifest {
	return *NewManifest("", "", "", DefaultLayout(), wasm.DefaultEnvConfig())
}

// ParseManifest reads and parses guest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m := defaultManifest()
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	// Validate manifest
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   fieldPath(fe.Namespace()),
				Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
			}
		}
		return &ManifestValidationError{Path: m.Path(), Message: err.Error()}
	}

	// Cross-field rules the tags cannot express.
	if err := m.Layout().Validate(); err != nil {
		return &ManifestValidationError{Path: m.Path(), Field: "buffer", Message: err.Error()}
	}

	env := m.EnvConfig()
	if err := env.Validate(); err != nil {
		return &ManifestValidationError{Path: m.Path(), Field: "env", Message: err.Error()}
	}

	if end := uint64(env.MemoryBase) + m.Layout().Footprint(); end > uint64(env.MinPages)*wasm.PageSize {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "env.memory_base",
			Message: fmt.Sprintf("guest data ends at %d, past the initial memory of %d pages", end, env.MinPages),
		}
	}

	// Validate Wasm file exists
	if _, err := os.Stat(m.WasmPath()); os.IsNotExist(err) {
		return &WasmNotFoundError{
			ManifestPath: m.Path(),
			WasmFile:     m.Wasm.File,
		}
	}

	return nil
}

// Layout returns the guest layout the manifest describes.
func (m *Manifest) Layout() Layout {
	return Layout{
		Capacity: m.Buffer.Capacity,
		Suffix:   m.Buffer.Suffix,
		Imports: Imports{
			Module:     m.Env.Module,
			Memory:     m.Env.Memory,
			MemoryBase: m.Env.MemoryBaseGlobal,
		},
		Exports: Exports{
			BufferOffset: m.Exports.BufferOffset,
			AppendSuffix: m.Exports.AppendSuffix,
		},
	}
}

// EnvConfig returns the import provider configuration for the guest.
func (m *Manifest) EnvConfig() wasm.EnvConfig {
	return wasm.EnvConfig{
		Module:         m.Env.Module,
		MemoryName:     m.Env.Memory,
		MemoryBaseName: m.Env.MemoryBaseGlobal,
		MemoryBase:     m.Env.MemoryBase,
		MinPages:       m.Env.MemoryMinPages,
		MaxPages:       m.Env.MemoryMaxPages,
	}
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}

// WriteManifest writes m to guest.yaml in dir.
func WriteManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	m.dir = dir
	return nil
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
