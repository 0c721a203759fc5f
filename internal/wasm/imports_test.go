package wasm

import (
	"bytes"
	"testing"
)

func TestInspectImports(t *testing.T) {
	bin := compileWAT(t, relocatableWAT)

	imports, err := InspectImports(bin)
	if err != nil {
		t.Fatalf("InspectImports failed: %v", err)
	}

	want := []Import{
		{Module: "env", Name: "memory", Kind: ImportMemory},
		{Module: "env", Name: "__memory_base", Kind: ImportGlobal},
	}
	if len(imports) != len(want) {
		t.Fatalf("Got %d imports, want %d: %v", len(imports), len(want), imports)
	}
	for i := range want {
		if imports[i] != want[i] {
			t.Errorf("Import %d = %v, want %v", i, imports[i], want[i])
		}
	}

	if s := imports[1].String(); s != "env.__memory_base (global)" {
		t.Errorf("String() = %q", s)
	}
}

func TestInspectImportsInvalid(t *testing.T) {
	if _, err := InspectImports([]byte("garbage")); err == nil {
		t.Error("Expected error for invalid binary")
	}
}

func TestImportsFrom(t *testing.T) {
	imports := []Import{
		{Module: "env", Name: "memory", Kind: ImportMemory},
		{Module: "host", Name: "log_message", Kind: ImportFunc},
	}

	if got := ImportsFrom(imports, "host"); len(got) != 1 || got[0].Name != "log_message" {
		t.Errorf("ImportsFrom(host) = %v", got)
	}
	if got := ImportsFrom(imports, "wasi_snapshot_preview1"); len(got) != 0 {
		t.Errorf("ImportsFrom(wasi) = %v, want none", got)
	}
}

func TestRewriteImportModule(t *testing.T) {
	bin := compileWAT(t, relocatableWAT)

	rewritten, err := RewriteImportModule(bin, "env", "env.inst-1")
	if err != nil {
		t.Fatalf("RewriteImportModule failed: %v", err)
	}

	imports, err := InspectImports(rewritten)
	if err != nil {
		t.Fatal(err)
	}
	if got := ImportsFrom(imports, "env.inst-1"); len(got) != 2 {
		t.Errorf("Rewritten imports = %v", imports)
	}
	if got := ImportsFrom(imports, "env"); len(got) != 0 {
		t.Errorf("Original namespace still imported: %v", got)
	}
}

func TestRewriteImportModuleNoMatch(t *testing.T) {
	bin := compileWAT(t, loggingWAT)

	out, err := RewriteImportModule(bin, "env", "env.inst-1")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, bin) {
		t.Error("Binary without matching imports should be returned unchanged")
	}
}

func TestImportKindString(t *testing.T) {
	tests := map[ImportKind]string{
		ImportFunc:    "func",
		ImportTable:   "table",
		ImportMemory:  "memory",
		ImportGlobal:  "global",
		ImportTag:     "tag",
		ImportKind(9): "kind(9)",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("ImportKind(%d).String() = %q, want %q", byte(kind), got, want)
		}
	}
}
