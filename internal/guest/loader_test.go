package guest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-passing-data/internal/wasm"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	runtime, err := wasm.NewRuntime(ctx, logger, wasm.DefaultRuntimeConfig())
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(func() { runtime.Close(context.Background()) })

	return NewLoader(runtime, logger)
}

// buildGuestDir compiles l and writes it with its manifest into a temp dir.
func buildGuestDir(t *testing.T, l Layout) string {
	t.Helper()
	dir := t.TempDir()

	bin, err := Compile(l)
	if err != nil {
		t.Fatalf("Failed to compile guest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "guest.wasm"), bin, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteManifest(dir, NewManifest("test-guest", "1.0.0", "guest.wasm", l, wasm.DefaultEnvConfig())); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoader_Load_Valid(t *testing.T) {
	loader := newTestLoader(t)
	dir := buildGuestDir(t, DefaultLayout())

	g, err := loader.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if g.Name() != "test-guest" || g.Version() != "1.0.0" {
		t.Errorf("Guest = %s@%s", g.Name(), g.Version())
	}
	if g.Layout() != DefaultLayout() {
		t.Errorf("Layout = %+v", g.Layout())
	}
	if g.LoadedAt.IsZero() {
		t.Error("LoadedAt not set")
	}
	if len(g.Compiled.Imports) != 2 {
		t.Errorf("Imports = %v", g.Compiled.Imports)
	}

	cfg := g.InstanceConfig()
	if cfg.ModuleName != g.Compiled.Name {
		t.Errorf("ModuleName = %q, want %q", cfg.ModuleName, g.Compiled.Name)
	}
	if want := []string{"get_buffer_offset", "append_suffix"}; !reflect.DeepEqual(cfg.Exports, want) {
		t.Errorf("Exports = %v, want %v", cfg.Exports, want)
	}
	if cfg.Env == nil {
		t.Fatal("Env not set")
	}
	if cfg.Env.MemoryBase != 1024 {
		t.Errorf("MemoryBase = %d, want 1024", cfg.Env.MemoryBase)
	}
}

func TestLoader_Load_ManifestNotFound(t *testing.T) {
	loader := newTestLoader(t)

	_, err := loader.Load(context.Background(), t.TempDir())

	var notFound *ManifestNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("Expected ManifestNotFoundError, got %v", err)
	}
}

func TestLoader_Load_TruncatedWasm(t *testing.T) {
	loader := newTestLoader(t)
	dir := buildGuestDir(t, DefaultLayout())
	if err := os.WriteFile(filepath.Join(dir, "guest.wasm"), []byte{0x00, 0x61}, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := loader.Load(context.Background(), dir)

	var loadErr *GuestLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected GuestLoadError, got %v", err)
	}
	if loadErr.GuestName != "test-guest" {
		t.Errorf("GuestName = %q", loadErr.GuestName)
	}

	var formatErr *wasm.ModuleFormatError
	if !errors.As(err, &formatErr) {
		t.Errorf("Expected ModuleFormatError, got %v", err)
	}
}

func TestLoader_Load_EmptyWasm(t *testing.T) {
	loader := newTestLoader(t)
	dir := buildGuestDir(t, DefaultLayout())
	if err := os.WriteFile(filepath.Join(dir, "guest.wasm"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := loader.Load(context.Background(), dir)

	var formatErr *wasm.ModuleFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("Expected ModuleFormatError, got %v", err)
	}
	if formatErr.Reason != "empty file" {
		t.Errorf("Reason = %q", formatErr.Reason)
	}
}

func TestLoader_Load_MissingExport(t *testing.T) {
	loader := newTestLoader(t)
	dir := buildGuestDir(t, DefaultLayout())

	// Point the manifest at names the binary does not export.
	m, err := ParseManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	m.Exports.AppendSuffix = "addWasmIsCool"
	if err := WriteManifest(dir, m); err != nil {
		t.Fatal(err)
	}

	_, err = loader.Load(context.Background(), dir)

	var missing *MissingExportError
	if !errors.As(err, &missing) {
		t.Fatalf("Expected MissingExportError, got %v", err)
	}
	if missing.Export != "addWasmIsCool" {
		t.Errorf("Export = %q", missing.Export)
	}
}

func TestGuestLoadErrorUnwrap(t *testing.T) {
	err := &GuestLoadError{GuestName: "g", Err: os.ErrNotExist}

	if !errors.Is(err, os.ErrNotExist) {
		t.Error("GuestLoadError should unwrap to its cause")
	}
	if got := err.Error(); got != "failed to load guest 'g': file does not exist" {
		t.Errorf("Error() = %q", got)
	}
}
