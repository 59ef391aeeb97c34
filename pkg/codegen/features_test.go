package codegen

import (
	"errors"
	"testing"

	"wisp/pkg/ast"
	"wisp/pkg/sema"
)

func TestArgumentStagingExhaustion(t *testing.T) {
	// two nested staged calls need 16 bytes from the 11-byte pool; a
	// silent fallback would hand the inner call the outer call's bytes
	b := newBuild(t)
	leaf := b.function("leaf", sema.U8())
	b.body(leaf, b.ret(b.intLit(99, sema.U8())))

	inner := b.function("inner", sema.U8())
	innerParams := make([]*sema.SymbolInfo, 8)
	for i, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		innerParams[i] = b.param(inner, name, sema.U8())
	}
	b.body(inner, b.ret(b.ref(innerParams[0])))

	outer := b.function("outer", sema.U8())
	outerParams := make([]*sema.SymbolInfo, 8)
	for i, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		outerParams[i] = b.param(outer, name, sema.U8())
	}
	b.body(outer, b.ret(b.ref(outerParams[0])))

	innerArgs := []ast.Expr{b.call("leaf", sema.U8())}
	for v := int64(12); v < 19; v++ {
		innerArgs = append(innerArgs, b.intLit(v, sema.U8()))
	}
	outerArgs := []ast.Expr{}
	for v := int64(1); v < 8; v++ {
		outerArgs = append(outerArgs, b.intLit(v, sema.U8()))
	}
	outerArgs = append(outerArgs, b.call("inner", sema.U8(), innerArgs...))

	main := b.function("main", sema.Void())
	b.body(main, b.exprStmt(b.call("outer", sema.U8(), outerArgs...)))

	_, err := Generate(b.prog, b.info, Options{Verbosity: Normal})
	if err == nil {
		t.Fatal("expected an error when argument staging overflows")
	}
	var exhausted *ZeroPageExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("got %v; want ZeroPageExhaustedError", err)
	}
}

func TestMatchLiteralRangeAndWildcard(t *testing.T) {
	b := newBuild(t)
	out := b.address("OUT", 0xC800, sema.U8())
	main := b.function("main", sema.Void())
	x := b.local(main, "x", sema.U8())
	b.body(main,
		b.decl(x, b.intLit(15, sema.U8())),
		&ast.Match{
			Span:      b.span(),
			Scrutinee: b.ref(x),
			Arms: []ast.MatchArm{
				{Pattern: &ast.LitPattern{Value: 5}, Body: b.block(b.assign(b.ref(out), b.intLit(1, sema.U8())))},
				{Pattern: &ast.RangePattern{Lo: 10, Hi: 20}, Body: b.block(b.assign(b.ref(out), b.intLit(2, sema.U8())))},
				{Pattern: &ast.WildcardPattern{}, Body: b.block(b.assign(b.ref(out), b.intLit(3, sema.U8())))},
			},
		},
	)
	c := runMain(t, b)
	if got := c.Memory[0xC800]; got != 2 {
		t.Errorf("match on 15 took arm %d; want 2 (range 10..=20)", got)
	}
}

func TestMatchBindPattern(t *testing.T) {
	b := newBuild(t)
	out := b.address("OUT", 0xC800, sema.U8())
	main := b.function("main", sema.Void())
	x := b.local(main, "x", sema.U8())
	got := b.local(main, "got", sema.U8())
	b.body(main,
		b.decl(x, b.intLit(42, sema.U8())),
		&ast.Match{
			Span:      b.span(),
			Scrutinee: b.ref(x),
			Arms: []ast.MatchArm{
				{Pattern: &ast.LitPattern{Value: 1}, Body: b.block(b.assign(b.ref(out), b.intLit(1, sema.U8())))},
				{Pattern: &ast.BindPattern{Name: "got"}, Body: b.block(b.assign(b.ref(out), b.ref(got)))},
			},
		},
	)
	c := runMain(t, b)
	if v := c.Memory[0xC800]; v != 42 {
		t.Errorf("bound value = %d; want 42", v)
	}
}

func TestMatchEnumVariantBindings(t *testing.T) {
	b := newBuild(t)
	b.info.Registry.AddEnum("Msg", []sema.EnumVariant{
		{Name: "Ping"},
		{Name: "Move", Payload: []sema.Type{sema.U8(), sema.U16()}},
	})
	out8 := b.address("OUTA", 0xC800, sema.U8())
	out16 := b.address("OUTB", 0xC801, sema.U16())
	main := b.function("main", sema.Void())
	m := b.local(main, "m", sema.EnumOf("Msg"))
	pa := b.local(main, "pa", sema.U8())
	pb := b.local(main, "pb", sema.U16())
	b.body(main,
		b.decl(m, &ast.EnumLit{Span: b.span(), Enum: "Msg", Variant: "Move",
			Args: []ast.Expr{b.intLit(7, sema.U8()), b.intLit(300, sema.U16())}}),
		&ast.Match{
			Span:      b.span(),
			Scrutinee: b.ref(m),
			Arms: []ast.MatchArm{
				{Pattern: &ast.VariantPattern{Enum: "Msg", Variant: "Ping"},
					Body: b.block(b.assign(b.ref(out8), b.intLit(1, sema.U8())))},
				{Pattern: &ast.VariantPattern{Enum: "Msg", Variant: "Move", Bindings: []string{"pa", "pb"}},
					Body: b.block(
						b.assign(b.ref(out8), b.ref(pa)),
						b.assign(b.ref(out16), b.ref(pb)),
					)},
			},
		},
	)
	c := runMain(t, b)
	if v := c.Memory[0xC800]; v != 7 {
		t.Errorf("first payload binding = %d; want 7", v)
	}
	word := uint16(c.Memory[0xC801]) | uint16(c.Memory[0xC802])<<8
	if word != 300 {
		t.Errorf("second payload binding = %d; want 300", word)
	}
}

func TestForEachSumsArray(t *testing.T) {
	b := newBuild(t)
	out := b.address("OUT", 0xC800, sema.U8())
	main := b.function("main", sema.Void())
	arr := b.local(main, "arr", sema.ArrayOf(sema.U8(), 4))
	v := b.local(main, "v", sema.U8())
	acc := b.local(main, "acc", sema.U8())
	b.body(main,
		b.decl(arr, &ast.ArrayLit{Span: b.span(), Elems: []ast.Expr{
			b.intLit(3, sema.U8()), b.intLit(5, sema.U8()),
			b.intLit(7, sema.U8()), b.intLit(11, sema.U8()),
		}}),
		b.decl(acc, b.intLit(0, sema.U8())),
		&ast.ForEach{
			Span: b.span(),
			Var:  "v",
			Iter: b.ref(arr),
			Body: b.block(
				b.assign(b.ref(acc), b.bin(ast.Add, sema.U8(), b.ref(acc), b.ref(v))),
			),
		},
		b.assign(b.ref(out), b.ref(acc)),
	)
	c := runMain(t, b)
	if got := c.Memory[0xC800]; got != 26 {
		t.Errorf("for-each sum = %d; want 26", got)
	}
}

func TestInlineAsmSubstitutesAddresses(t *testing.T) {
	b := newBuild(t)
	_ = b.address("OUT", 0xC800, sema.U8())
	main := b.function("main", sema.Void())
	b.body(main,
		&ast.Asm{Span: b.span(), Lines: []string{
			"LDA #$2A",
			"STA {OUT}",
		}},
	)
	c := runMain(t, b)
	if got := c.Memory[0xC800]; got != 0x2A {
		t.Errorf("asm block stored $%02X; want $2A", got)
	}
}

func TestInlineAsmLabelsStayUnique(t *testing.T) {
	// the same asm label expanded twice must assemble without a duplicate
	// definition, so each expansion needs its own suffix
	b := newBuild(t)
	out := b.address("OUT", 0xC800, sema.U8())
	delay := b.function("delay", sema.Void())
	delay.Inline = true
	b.body(delay,
		&ast.Asm{Span: b.span(), Lines: []string{
			"LDX #$05",
			"wait:",
			"DEX",
			"BNE wait",
		}},
	)
	main := b.function("main", sema.Void())
	b.body(main,
		b.exprStmt(b.call("delay", sema.Void())),
		b.exprStmt(b.call("delay", sema.Void())),
		b.assign(b.ref(out), b.intLit(1, sema.U8())),
	)
	c := runMain(t, b)
	if got := c.Memory[0xC800]; got != 1 {
		t.Errorf("program did not run to completion, OUT=$%02X", got)
	}
}

func TestCastConversions(t *testing.T) {
	b := newBuild(t)
	outA := b.address("OUTA", 0xC800, sema.U8())
	outB := b.address("OUTB", 0xC801, sema.U16())
	outC := b.address("OUTC", 0xC803, sema.I16())
	outD := b.address("OUTD", 0xC805, sema.Bool())
	main := b.function("main", sema.Void())
	w := b.local(main, "w", sema.U16())
	y := b.local(main, "y", sema.U8())
	z := b.local(main, "z", sema.I8())
	n := b.local(main, "n", sema.U8())
	b.body(main,
		b.decl(w, b.intLit(0x1234, sema.U16())),
		b.decl(y, b.intLit(200, sema.U8())),
		b.decl(z, b.intLit(-5, sema.I8())),
		b.decl(n, b.intLit(7, sema.U8())),
		// truncate
		b.assign(b.ref(outA), b.typed(&ast.Cast{Span: b.span(), Value: b.ref(w)}, sema.U8())),
		// zero-extend, then 16-bit arithmetic
		b.assign(b.ref(outB), b.bin(ast.Add, sema.U16(),
			b.typed(&ast.Cast{Span: b.span(), Value: b.ref(y)}, sema.U16()),
			b.intLit(400, sema.U16()))),
		// sign-extend
		b.assign(b.ref(outC), b.typed(&ast.Cast{Span: b.span(), Value: b.ref(z)}, sema.I16())),
		// canonicalize to bool
		b.assign(b.ref(outD), b.typed(&ast.Cast{Span: b.span(), Value: b.ref(n)}, sema.Bool())),
	)
	c := runMain(t, b)
	if got := c.Memory[0xC800]; got != 0x34 {
		t.Errorf("u16 to u8 = $%02X; want $34", got)
	}
	if word := uint16(c.Memory[0xC801]) | uint16(c.Memory[0xC802])<<8; word != 600 {
		t.Errorf("200 as u16 + 400 = %d; want 600", word)
	}
	if lo, hi := c.Memory[0xC803], c.Memory[0xC804]; lo != 0xFB || hi != 0xFF {
		t.Errorf("-5 as i16 = $%02X%02X; want $FFFB", hi, lo)
	}
	if got := c.Memory[0xC805]; got != 1 {
		t.Errorf("7 as bool = %d; want 1", got)
	}
}

func TestUnaryOperators(t *testing.T) {
	b := newBuild(t)
	outA := b.address("OUTA", 0xC800, sema.I8())
	outB := b.address("OUTB", 0xC801, sema.U8())
	outC := b.address("OUTC", 0xC802, sema.Bool())
	outD := b.address("OUTD", 0xC803, sema.U16())
	main := b.function("main", sema.Void())
	x := b.local(main, "x", sema.I8())
	m := b.local(main, "m", sema.U8())
	w := b.local(main, "w", sema.U16())
	b.body(main,
		b.decl(x, b.intLit(5, sema.I8())),
		b.decl(m, b.intLit(0x0F, sema.U8())),
		b.decl(w, b.intLit(300, sema.U16())),
		b.assign(b.ref(outA), b.typed(&ast.Unary{Span: b.span(), Op: ast.Neg, Operand: b.ref(x)}, sema.I8())),
		b.assign(b.ref(outB), b.typed(&ast.Unary{Span: b.span(), Op: ast.BitNot, Operand: b.ref(m)}, sema.U8())),
		b.assign(b.ref(outC), b.typed(&ast.Unary{Span: b.span(), Op: ast.Not, Operand: b.boolLit(false)}, sema.Bool())),
		b.assign(b.ref(outD), b.typed(&ast.Unary{Span: b.span(), Op: ast.Neg, Operand: b.ref(w)}, sema.U16())),
	)
	c := runMain(t, b)
	if got := c.Memory[0xC800]; got != 0xFB {
		t.Errorf("-5 = $%02X; want $FB", got)
	}
	if got := c.Memory[0xC801]; got != 0xF0 {
		t.Errorf("^$0F = $%02X; want $F0", got)
	}
	if got := c.Memory[0xC802]; got != 1 {
		t.Errorf("!false = %d; want 1", got)
	}
	if word := uint16(c.Memory[0xC803]) | uint16(c.Memory[0xC804])<<8; word != 0xFED4 {
		t.Errorf("-300 = $%04X; want $FED4", word)
	}
}

func TestIndexedStoreWithComputedIndex(t *testing.T) {
	// the stored value must survive index evaluation even when the index
	// uses the divide scratch bytes
	b := newBuild(t)
	out := b.address("OUT", 0xC800, sema.U16())
	main := b.function("main", sema.Void())
	arr := b.local(main, "arr", sema.ArrayOf(sema.U16(), 4))
	idx := b.local(main, "idx", sema.U8())
	b.body(main,
		b.decl(arr, &ast.ArrayLit{Span: b.span(), Elems: []ast.Expr{
			b.intLit(0, sema.U16()), b.intLit(0, sema.U16()),
			b.intLit(0, sema.U16()), b.intLit(0, sema.U16()),
		}}),
		b.decl(idx, b.intLit(7, sema.U8())),
		// arr[7/3] = 300: the divide runs after the value is evaluated
		b.assign(
			b.typed(&ast.Index{Span: b.span(), Base: b.ref(arr),
				Index: b.bin(ast.Div, sema.U8(), b.ref(idx), b.intLit(3, sema.U8()))}, sema.U16()),
			b.intLit(300, sema.U16())),
		b.assign(b.ref(out), b.typed(&ast.Index{Span: b.span(), Base: b.ref(arr),
			Index: b.intLit(2, sema.U8())}, sema.U16())),
	)
	c := runMain(t, b)
	if word := uint16(c.Memory[0xC800]) | uint16(c.Memory[0xC801])<<8; word != 300 {
		t.Errorf("arr[7/3] read back %d; want 300", word)
	}
}

func TestFieldAccessThroughReturnedPointer(t *testing.T) {
	b := newBuild(t)
	b.info.Registry.AddStruct("Point", []sema.StructField{
		{Name: "x", Type: sema.U8()},
		{Name: "y", Type: sema.U16()},
	})
	out8 := b.address("OUTA", 0xC800, sema.U8())
	out16 := b.address("OUTB", 0xC801, sema.U16())
	mk := b.function("mk", sema.StructOf("Point"))
	pt := b.local(mk, "pt", sema.StructOf("Point"))
	b.body(mk,
		b.decl(pt, &ast.StructLit{Span: b.span(), Name: "Point", Fields: []ast.FieldInit{
			{Name: "x", Value: b.intLit(9, sema.U8())},
			{Name: "y", Value: b.intLit(500, sema.U16())},
		}}),
		b.ret(b.ref(pt)),
	)
	main := b.function("main", sema.Void())
	b.body(main,
		b.assign(b.ref(out8), b.typed(&ast.Field{Span: b.span(),
			Base: b.call("mk", sema.StructOf("Point")), Name: "x"}, sema.U8())),
		b.assign(b.ref(out16), b.typed(&ast.Field{Span: b.span(),
			Base: b.call("mk", sema.StructOf("Point")), Name: "y"}, sema.U16())),
	)
	c := runMain(t, b)
	if got := c.Memory[0xC800]; got != 9 {
		t.Errorf("field x through pointer = %d; want 9", got)
	}
	if word := uint16(c.Memory[0xC801]) | uint16(c.Memory[0xC802])<<8; word != 500 {
		t.Errorf("field y through pointer = %d; want 500", word)
	}
}
