package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-passing-data/internal/guest"
	"github.com/woxQAQ/wasm-passing-data/internal/wasm"
)

// options are the knobs of one guest build.
type options struct {
	OutDir     string
	Name       string
	Version    string
	Capacity   uint
	Suffix     string
	MemoryBase uint
	WriteWAT   bool
}

func main() {
	var opts options
	defaults := guest.DefaultLayout()
	flag.StringVar(&opts.OutDir, "out", "./guest", "Directory to write the guest into")
	flag.StringVar(&opts.Name, "name", "strings-wasm-is-cool", "Guest name")
	flag.StringVar(&opts.Version, "version", "1.0.0", "Guest version")
	flag.UintVar(&opts.Capacity, "capacity", uint(defaults.Capacity), "Buffer capacity in bytes")
	flag.StringVar(&opts.Suffix, "suffix", defaults.Suffix, "Suffix appended by the guest")
	flag.UintVar(&opts.MemoryBase, "memory-base", uint(wasm.DefaultEnvConfig().MemoryBase), "Value of the imported __memory_base global")
	flag.BoolVar(&opts.WriteWAT, "wat", false, "Also write the text format source")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	m, err := generate(opts)
	if err != nil {
		logger.Fatal("Failed to generate guest", zap.Error(err))
	}

	logger.Info("Guest generated",
		zap.String("dir", opts.OutDir),
		zap.String("name", m.Name),
		zap.String("wasm", m.WasmPath()),
	)
}

// generate compiles the guest and writes it with its manifest to opts.OutDir.
func generate(opts options) (*guest.Manifest, error) {
	if opts.Capacity > 1<<31-1 || opts.MemoryBase > 1<<32-1 {
		return nil, fmt.Errorf("capacity %d or memory base %d out of range", opts.Capacity, opts.MemoryBase)
	}

	layout := guest.DefaultLayout()
	layout.Capacity = uint32(opts.Capacity)
	layout.Suffix = opts.Suffix

	env := wasm.DefaultEnvConfig()
	env.MemoryBase = uint32(opts.MemoryBase)

	bin, err := guest.Compile(layout)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", opts.OutDir, err)
	}

	wasmFile := opts.Name + ".wasm"
	if err := os.WriteFile(filepath.Join(opts.OutDir, wasmFile), bin, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write guest binary: %w", err)
	}

	if opts.WriteWAT {
		src, err := guest.Source(layout)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(opts.OutDir, opts.Name+".wat"), []byte(src), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write guest source: %w", err)
		}
	}

	m := guest.NewManifest(opts.Name, opts.Version, wasmFile, layout, env)
	if err := writeAndCheck(opts.OutDir, m); err != nil {
		return nil, err
	}
	return m, nil
}

// writeAndCheck writes the manifest and parses it back so an unusable
// combination of flags fails here rather than at load time.
func writeAndCheck(dir string, m *guest.Manifest) error {
	if err := guest.WriteManifest(dir, m); err != nil {
		return err
	}
	_, err := guest.ParseManifest(dir)
	return err
}
