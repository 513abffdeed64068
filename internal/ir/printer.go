package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Print renders a module as `.chakir` text, used by round-trip tests and
// by the CLI to write the obfuscated module back out after the pipeline
// runs. It is not a full inverse of `grammar.Parse` + `FromAST`: the
// grammar does not accept dotted block labels (as CFF and FCI name their
// blocks), function-address global initializers (SE's dispatch pointers),
// or pointer types over arrays or pointers, all of which Print emits.
func Print(m *Module) string {
	var sb strings.Builder
	if m.TargetTriple != "" {
		fmt.Fprintf(&sb, "target %q\n", m.TargetTriple)
	}
	if m.SourceFilename != "" {
		fmt.Fprintf(&sb, "source %q\n", m.SourceFilename)
	}
	if len(m.Globals) > 0 {
		sb.WriteString("\n")
	}
	for _, g := range m.Globals {
		printGlobal(&sb, g)
	}
	for _, f := range m.Functions {
		sb.WriteString("\n")
		printFunction(&sb, f)
	}
	return sb.String()
}

func printGlobal(sb *strings.Builder, g *GlobalVariable) {
	kind := "global"
	if g.Constant {
		kind = "constant"
	}
	switch init := g.Init.(type) {
	case *StringData:
		fmt.Fprintf(sb, "@%s = %s %s c%s\n", g.Name, kind, g.Type.String(), quoteCString(init.Bytes))
	case int64:
		fmt.Fprintf(sb, "@%s = %s %s %d\n", g.Name, kind, g.Type.String(), init)
	case *FuncRef:
		fmt.Fprintf(sb, "@%s = %s %s @%s\n", g.Name, kind, g.Type.String(), init.Fn.Name)
	default:
		fmt.Fprintf(sb, "@%s = %s %s zeroinitializer\n", g.Name, kind, g.Type.String())
	}
}

// quoteCString renders bytes the way LLVM prints a string global's
// initializer: a double-quoted, NUL-terminated, hex-escaped byte string.
func quoteCString(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range b {
		if c >= 0x20 && c < 0x7f && c != '"' && c != '\\' {
			sb.WriteByte(c)
		} else {
			fmt.Fprintf(&sb, "\\%02X", c)
		}
	}
	sb.WriteString("\\00\"")
	return sb.String()
}

func printFunction(sb *strings.Builder, f *Function) {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = fmt.Sprintf("%s %%%s", p.Type.String(), p.Name)
	}
	head := fmt.Sprintf("define %s @%s(%s)", f.ReturnType.String(), f.Name, strings.Join(params, ", "))
	if f.Declaration {
		fmt.Fprintf(sb, "declare %s @%s(%s)\n", f.ReturnType.String(), f.Name, strings.Join(params, ", "))
		return
	}
	fmt.Fprintf(sb, "%s {\n", head)
	for _, b := range f.Blocks {
		fmt.Fprintf(sb, "%s:\n", b.Label)
		for _, inst := range b.Instructions {
			fmt.Fprintf(sb, "  %s\n", inst.String())
		}
		if b.Terminator != nil {
			fmt.Fprintf(sb, "  %s\n", b.Terminator.String())
		}
	}
	sb.WriteString("}\n")
}

// String implements fmt.Stringer for interactive printing (the repl
// package's `print` command, test failure messages).
func (m *Module) String() string { return Print(m) }

// FormatInt renders n the way `.chakir` integer literals are printed.
// Exported so any pass synthesizing a printed constant (error messages,
// future diagnostics) renders it identically to Ref/Print.
func FormatInt(n int64) string { return strconv.FormatInt(n, 10) }
