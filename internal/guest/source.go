package guest

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/wippyai/wasm-runtime/wat"
)

// The guest is position independent: everything it owns lives above the
// memory base its host supplies.
var sourceTemplate = template.Must(template.New("guest").Funcs(template.FuncMap{
	"str":  watString,
	"name": watName,
}).Parse(`(module
  (import {{name .Imports.Module}} {{name .Imports.Memory}} (memory 1))
  (import {{name .Imports.Module}} {{name .Imports.MemoryBase}} (global $memory_base i32))

  (data (global.get $memory_base) {{str .Suffix}})

  (func $buffer (result i32)
    (i32.add (global.get $memory_base) (i32.const {{.SuffixSlot}})))

  (func (export {{name .Exports.BufferOffset}}) (result i32)
    (call $buffer))

  (func (export {{name .Exports.AppendSuffix}}) (param $length i32) (result i32)
    (if (i32.gt_u (local.get $length) (i32.const {{.MaxOriginalLength}}))
      (then (unreachable)))
    (memory.copy
      (i32.add (call $buffer) (local.get $length))
      (global.get $memory_base)
      (i32.const {{.SuffixLen}}))
    (i32.add (local.get $length) (i32.const {{.SuffixLen}}))))
`))

// Source renders the text format of the guest described by l.
func Source(l Layout) (string, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	if err := sourceTemplate.Execute(&b, l); err != nil {
		return "", fmt.Errorf("failed to render guest source: %w", err)
	}
	return b.String(), nil
}

// Compile renders and assembles the guest binary described by l.
func Compile(l Layout) ([]byte, error) {
	src, err := Source(l)
	if err != nil {
		return nil, err
	}

	bin, err := wat.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble guest: %w", err)
	}
	return bin, nil
}

// watName quotes a name that Layout.Validate has checked needs no escapes.
func watName(s string) string {
	return `"` + s + `"`
}

// watString quotes s as a text-format string with every byte hex escaped.
func watString(s string) string {
	var b strings.Builder
	b.Grow(len(s)*3 + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		fmt.Fprintf(&b, `\%02x`, s[i])
	}
	b.WriteByte('"')
	return b.String()
}
