package codegen

import (
	"fmt"
	"strings"

	"wisp/pkg/ast"
	"wisp/pkg/sema"
)

// sizePadding is added to every measured function size. The measurement
// counts emitted instructions before the final text settles; the padding
// absorbs the few bytes an epilogue or alignment can add.
const sizePadding = 10

// compileFunction lowers one function body to text and measures it.
func (sh *shared) compileFunction(fn *ast.Function, meta *sema.FunctionMeta) (CompiledFunction, error) {
	e := newEmitter(sh, meta)

	if sh.opts.Verbosity >= Normal {
		e.line("; Function: %s", meta.Name)
		if len(meta.Params) > 0 {
			parts := make([]string, len(meta.Params))
			for i, p := range meta.Params {
				parts[i] = fmt.Sprintf("%s: %s (%s)", p.Name, p.Type, p.Location.Operand())
			}
			e.line("; Params: %s", strings.Join(parts, ", "))
		}
		if meta.ReturnType.Kind != sema.TypeVoid {
			e.line("; Returns: %s in %s", meta.ReturnType, returnRegisters(meta.ReturnType))
		}
		if attrs := attrSummary(meta); attrs != "" {
			e.line("; Attributes: %s", attrs)
		}
	}

	e.label(meta.Name)
	if meta.HandlesInterrupt() {
		e.comment("save registers for the interrupted code")
		e.inst("PHA", "")
		e.inst("TXA", "")
		e.inst("PHA", "")
		e.inst("TYA", "")
		e.inst("PHA", "")
	}
	if meta.TailRecursive {
		e.label(meta.Name + "_loop")
	}

	if err := e.genBlock(fn.Body); err != nil {
		return CompiledFunction{}, fmt.Errorf("function %s: %w", meta.Name, err)
	}

	// fall-off-the-end exit, unless every path already returned
	if !e.lastTerm {
		e.epilogue()
	}

	return CompiledFunction{
		Name:     meta.Name,
		Assembly: e.text(),
		Size:     e.byteCount + sizePadding,
	}, nil
}

func attrSummary(meta *sema.FunctionMeta) string {
	var parts []string
	if meta.Org != nil {
		parts = append(parts, fmt.Sprintf("org $%04X", *meta.Org))
	}
	if meta.Section != "" {
		parts = append(parts, fmt.Sprintf("section %s", meta.Section))
	}
	if meta.Interrupt {
		parts = append(parts, "interrupt")
	}
	if meta.NMI {
		parts = append(parts, "nmi")
	}
	if meta.Reset {
		parts = append(parts, "reset")
	}
	if meta.Inline {
		parts = append(parts, "inline")
	}
	return strings.Join(parts, ", ")
}

// staticBytes flattens a static initializer to its data bytes,
// little-endian per element.
func (sh *shared) staticBytes(s *ast.Static, t sema.Type) ([]byte, error) {
	switch t.Kind {
	case sema.TypeArray:
		elem := *t.Elem
		switch init := s.Value.(type) {
		case *ast.ArrayLit:
			var out []byte
			for _, el := range init.Elems {
				b, err := sh.constBytes(el, elem)
				if err != nil {
					return nil, err
				}
				out = append(out, b...)
			}
			return out, nil
		case *ast.ArrayFill:
			one, err := sh.constBytes(init.Value, elem)
			if err != nil {
				return nil, err
			}
			var out []byte
			for i := 0; i < init.Count; i++ {
				out = append(out, one...)
			}
			return out, nil
		}
		return nil, unsupported("static initializer", "%T for %s", s.Value, t)
	default:
		return sh.constBytes(s.Value, t)
	}
}

func (sh *shared) constBytes(x ast.Expr, t sema.Type) ([]byte, error) {
	var v int64
	if c, ok := sh.info.Consts[x.Pos()]; ok && c.Kind != sema.ConstString {
		v = c.AsInt()
	} else if lit, ok := x.(*ast.IntLit); ok {
		v = lit.Value
	} else if lit, ok := x.(*ast.BoolLit); ok {
		if lit.Value {
			v = 1
		}
	} else {
		return nil, unsupported("static initializer", "%T is not constant", x)
	}
	size := sh.info.Registry.SizeOf(t)
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out, nil
}

// emitStatic writes one placed static as labeled data.
func emitStatic(b *strings.Builder, name string, data []byte) {
	fmt.Fprintf(b, "%s:\n", name)
	for i := 0; i < len(data); i += 8 {
		end := i + 8
		if end > len(data) {
			end = len(data)
		}
		parts := make([]string, 0, 8)
		for _, v := range data[i:end] {
			parts = append(parts, fmt.Sprintf("$%02X", v))
		}
		fmt.Fprintf(b, "    .byte %s\n", strings.Join(parts, ", "))
	}
}
