package codegen

import (
	"strings"
	"testing"

	"wisp/pkg/ast"
	"wisp/pkg/sema"
)

// build assembles a ProgramInfo and matching tree by hand, standing in
// for the analysis pass. Every node gets a distinct span so the
// span-keyed side tables resolve.
type build struct {
	t    *testing.T
	info *sema.ProgramInfo
	prog *ast.Program
	n    int
}

func newBuild(t *testing.T) *build {
	return &build{t: t, info: sema.NewProgramInfo(), prog: &ast.Program{}}
}

func (b *build) span() ast.Span {
	b.n++
	return ast.Span{Start: b.n, End: b.n}
}

func (b *build) typed(x ast.Expr, t sema.Type) ast.Expr {
	b.info.Types[x.Pos()] = t
	return x
}

func (b *build) intLit(v int64, t sema.Type) ast.Expr {
	return b.typed(&ast.IntLit{Span: b.span(), Value: v}, t)
}

func (b *build) boolLit(v bool) ast.Expr {
	return b.typed(&ast.BoolLit{Span: b.span(), Value: v}, sema.Bool())
}

func (b *build) strLit(s string) ast.Expr {
	return b.typed(&ast.StringLit{Span: b.span(), Value: s}, sema.String())
}

func (b *build) ref(sym *sema.SymbolInfo) *ast.VarRef {
	x := &ast.VarRef{Span: b.span(), Name: sym.Name}
	b.info.Symbols[x.Span] = sym
	b.info.Types[x.Span] = sym.Type
	return x
}

func (b *build) bin(op ast.BinOp, result sema.Type, left, right ast.Expr) ast.Expr {
	return b.typed(&ast.Binary{Span: b.span(), Op: op, Left: left, Right: right}, result)
}

func (b *build) call(name string, result sema.Type, args ...ast.Expr) ast.Expr {
	return b.typed(&ast.Call{Span: b.span(), Name: name, Args: args}, result)
}

func (b *build) function(name string, ret sema.Type) *sema.FunctionMeta {
	meta := &sema.FunctionMeta{
		Name:       name,
		ReturnType: ret,
		Locals:     make(map[string]*sema.SymbolInfo),
	}
	b.info.Functions[name] = meta
	return meta
}

func (b *build) param(meta *sema.FunctionMeta, name string, t sema.Type) *sema.SymbolInfo {
	sym := &sema.SymbolInfo{Name: name, Kind: sema.SymParam, Type: t}
	meta.Params = append(meta.Params, sym)
	return sym
}

func (b *build) local(meta *sema.FunctionMeta, name string, t sema.Type) *sema.SymbolInfo {
	sym := &sema.SymbolInfo{Name: name, Kind: sema.SymVar, Type: t}
	meta.Locals[name] = sym
	return sym
}

// body closes a function: the statements become both the tree item the
// backend walks and the meta body inline expansion reads.
func (b *build) body(meta *sema.FunctionMeta, stmts ...ast.Stmt) {
	blk := &ast.Block{Span: b.span(), Stmts: stmts}
	meta.Body = blk
	b.prog.Items = append(b.prog.Items, &ast.Function{Span: b.span(), Name: meta.Name, Body: blk})
}

func (b *build) address(name string, addr uint16, t sema.Type) *sema.SymbolInfo {
	sym := &sema.SymbolInfo{Name: name, Kind: sema.SymAddress, Type: t}
	b.info.Table.Define(sym)
	b.prog.Items = append(b.prog.Items, &ast.AddressDecl{Span: b.span(), Name: name, Addr: addr})
	return sym
}

func (b *build) decl(sym *sema.SymbolInfo, value ast.Expr) ast.Stmt {
	s := &ast.VarDecl{Span: b.span(), Name: sym.Name, Value: value}
	b.info.Symbols[s.Span] = sym
	return s
}

func (b *build) assign(target, value ast.Expr) ast.Stmt {
	return &ast.Assign{Span: b.span(), Target: target, Value: value}
}

func (b *build) ret(value ast.Expr) ast.Stmt {
	return &ast.Return{Span: b.span(), Value: value}
}

func (b *build) exprStmt(x ast.Expr) ast.Stmt {
	return &ast.ExprStmt{Span: b.span(), Expr: x}
}

func (b *build) block(stmts ...ast.Stmt) *ast.Block {
	return &ast.Block{Span: b.span(), Stmts: stmts}
}

func (b *build) generate() string {
	b.t.Helper()
	out, err := Generate(b.prog, b.info, Options{Verbosity: Normal})
	if err != nil {
		b.t.Fatalf("Generate failed: %v", err)
	}
	return out
}

func assertContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func assertNotContains(t *testing.T, out string, rejects ...string) {
	t.Helper()
	for _, r := range rejects {
		if strings.Contains(out, r) {
			t.Errorf("output should not contain %q:\n%s", r, out)
		}
	}
}

func countOccurrences(s, sub string) int { return strings.Count(s, sub) }

func TestGenerateSimpleStore(t *testing.T) {
	b := newBuild(t)
	out := b.address("OUT", 0xC800, sema.U8())
	main := b.function("main", sema.Void())
	b.body(main,
		b.assign(b.ref(out), b.intLit(42, sema.U8())),
	)
	text := b.generate()
	assertContains(t, text,
		"OUT = $C800",
		"* = $9000",
		"main:",
		"    LDA #$2A",
		"    STA $C800",
		"    RTS",
	)
}

func TestRedundantLoadElided(t *testing.T) {
	b := newBuild(t)
	main := b.function("main", sema.Void())
	x := b.local(main, "x", sema.U8())
	y := b.local(main, "y", sema.U8())
	b.body(main,
		b.decl(x, b.intLit(42, sema.U8())),
		b.decl(y, b.intLit(42, sema.U8())),
	)
	text := b.generate()
	// A provably still holds 42 for the second store
	if got := countOccurrences(text, "LDA #$2A"); got != 1 {
		t.Errorf("LDA #$2A appears %d times; want 1:\n%s", got, text)
	}
	if got := countOccurrences(text, "STA $4"); got != 2 {
		t.Errorf("expected two stores, got %d:\n%s", got, text)
	}
}

func TestIncrementBecomesINC(t *testing.T) {
	b := newBuild(t)
	main := b.function("main", sema.Void())
	x := b.local(main, "x", sema.U8())
	b.body(main,
		b.decl(x, b.intLit(5, sema.U8())),
		b.assign(b.ref(x), b.bin(ast.Add, sema.U8(), b.ref(x), b.intLit(1, sema.U8()))),
		b.assign(b.ref(x), b.bin(ast.Sub, sema.U8(), b.ref(x), b.intLit(1, sema.U8()))),
	)
	text := b.generate()
	assertContains(t, text, "    INC $40", "    DEC $40")
	assertNotContains(t, text, "ADC #$01", "SBC #$01")
}

func TestBCDArithmeticWrappedInDecimalMode(t *testing.T) {
	b := newBuild(t)
	main := b.function("main", sema.Void())
	x := b.local(main, "x", sema.B8())
	b.body(main,
		b.decl(x, b.intLit(0x19, sema.B8())),
		b.assign(b.ref(x), b.bin(ast.Add, sema.B8(), b.ref(x), b.intLit(8, sema.B8()))),
	)
	text := b.generate()
	assertContains(t, text, "    SED", "    CLD", "    ADC #$08")
	// decimal mode must close before the store
	sed := strings.Index(text, "SED")
	cld := strings.Index(text, "CLD")
	sta := strings.LastIndex(text, "STA $40")
	if !(sed < cld && cld < sta) {
		t.Errorf("SED/CLD not tight around the arithmetic:\n%s", text)
	}
}

func TestCallPassesArgumentsAndJSR(t *testing.T) {
	b := newBuild(t)
	add := b.function("add", sema.U8())
	pa := b.param(add, "a", sema.U8())
	pb := b.param(add, "b", sema.U8())
	b.body(add,
		b.ret(b.bin(ast.Add, sema.U8(), b.ref(pa), b.ref(pb))),
	)
	main := b.function("main", sema.Void())
	r := b.local(main, "r", sema.U8())
	b.body(main,
		b.decl(r, b.call("add", sema.U8(), b.intLit(2, sema.U8()), b.intLit(3, sema.U8()))),
	)
	text := b.generate()
	// parameter block starts at $80
	assertContains(t, text,
		"    STA $80",
		"    STA $81",
		"    JSR add",
		"add:",
	)
}

func TestInlineFunctionExpandsAtCallSite(t *testing.T) {
	b := newBuild(t)
	twice := b.function("twice", sema.U8())
	p := b.param(twice, "v", sema.U8())
	twice.Inline = true
	b.body(twice,
		b.ret(b.bin(ast.Add, sema.U8(), b.ref(p), b.ref(p))),
	)
	main := b.function("main", sema.Void())
	r := b.local(main, "r", sema.U8())
	b.body(main,
		b.decl(r, b.call("twice", sema.U8(), b.intLit(7, sema.U8()))),
	)
	text := b.generate()
	assertContains(t, text, "; inline twice")
	assertNotContains(t, text, "JSR twice", "twice:")
}

func TestTailRecursionBecomesLoop(t *testing.T) {
	b := newBuild(t)
	count := b.function("count", sema.Void())
	p := b.param(count, "n", sema.U8())
	count.TailRecursive = true
	b.body(count,
		b.ret(b.call("count", sema.Void(), b.bin(ast.Sub, sema.U8(), b.ref(p), b.intLit(1, sema.U8())))),
	)
	text := b.generate()
	assertContains(t, text, "count_loop:", "    JMP count_loop")
	assertNotContains(t, text, "JSR count")
}

func TestInterruptHandlerPrologueAndVectors(t *testing.T) {
	b := newBuild(t)
	irq := b.function("on_irq", sema.Void())
	irq.Interrupt = true
	out := b.address("PORT", 0xC900, sema.U8())
	b.body(irq,
		b.assign(b.ref(out), b.intLit(1, sema.U8())),
	)
	text := b.generate()
	assertContains(t, text,
		"    PHA",
		"    TXA",
		"    TYA",
		"    RTI",
		"* = $FFFA",
		"    .word $0000", // no NMI handler
		"    .word on_irq",
	)
	assertNotContains(t, text, "    RTS")
}

func TestIfElseShape(t *testing.T) {
	b := newBuild(t)
	out := b.address("OUT", 0xC800, sema.U8())
	main := b.function("main", sema.Void())
	x := b.local(main, "x", sema.U8())
	b.body(main,
		b.decl(x, b.intLit(3, sema.U8())),
		&ast.If{
			Span: b.span(),
			Cond: b.bin(ast.Eq, sema.Bool(), b.ref(x), b.intLit(3, sema.U8())),
			Then: b.block(b.assign(b.ref(out), b.intLit(1, sema.U8()))),
			Else: b.block(b.assign(b.ref(out), b.intLit(2, sema.U8()))),
		},
	)
	text := b.generate()
	assertContains(t, text, "    CMP #$03", "    BEQ", "    JMP", "L")
}

func TestForLoopUnrolledWhenSmall(t *testing.T) {
	b := newBuild(t)
	out := b.address("OUT", 0xC800, sema.U8())
	main := b.function("main", sema.Void())
	i := b.local(main, "i", sema.U8())
	b.body(main,
		&ast.For{
			Span: b.span(),
			Var:  "i",
			From: b.intLit(0, sema.U8()),
			To:   b.intLit(3, sema.U8()),
			Body: b.block(b.assign(b.ref(out), b.ref(i))),
		},
	)
	text := b.generate()
	assertContains(t, text, "; unrolled 3 iterations")
	assertNotContains(t, text, "CMP $22")
}

func TestForLoopKeepsLoopShapeWhenLarge(t *testing.T) {
	b := newBuild(t)
	out := b.address("OUT", 0xC800, sema.U8())
	main := b.function("main", sema.Void())
	i := b.local(main, "i", sema.U8())
	b.body(main,
		&ast.For{
			Span: b.span(),
			Var:  "i",
			From: b.intLit(0, sema.U8()),
			To:   b.intLit(100, sema.U8()),
			Body: b.block(b.assign(b.ref(out), b.ref(i))),
		},
	)
	text := b.generate()
	assertContains(t, text, "    CMP $22", "    BCS", "    INC $40")
	assertNotContains(t, text, "unrolled")
}

func TestStringInternedOnce(t *testing.T) {
	b := newBuild(t)
	show := b.function("show", sema.Void())
	b.param(show, "s", sema.String())
	b.body(show)
	main := b.function("main", sema.Void())
	b.body(main,
		b.exprStmt(b.call("show", sema.Void(), b.strLit("hi"))),
		b.exprStmt(b.call("show", sema.Void(), b.strLit("hi"))),
	)
	text := b.generate()
	assertContains(t, text, "    LDA #<str_0", "    LDX #>str_0", "str_0:", "    .byte $02, $00", "$68, $69")
	if got := countOccurrences(text, "str_0:"); got != 1 {
		t.Errorf("string data emitted %d times; want once:\n%s", got, text)
	}
}

func TestSixteenBitArithmetic(t *testing.T) {
	b := newBuild(t)
	main := b.function("main", sema.Void())
	x := b.local(main, "x", sema.U16())
	y := b.local(main, "y", sema.U16())
	b.body(main,
		b.decl(x, b.intLit(0x1234, sema.U16())),
		b.decl(y, b.bin(ast.Add, sema.U16(), b.ref(x), b.intLit(0x0101, sema.U16()))),
	)
	text := b.generate()
	// low byte through A, high byte through Y
	assertContains(t, text, "    LDA #$34", "    LDY #$12", "    ADC #$01", "    TAY")
}

func TestStaticDataEmitted(t *testing.T) {
	b := newBuild(t)
	tbl := &sema.SymbolInfo{Name: "table", Kind: sema.SymStatic, Type: sema.ArrayOf(sema.U8(), 3)}
	b.info.Table.Define(tbl)
	b.prog.Items = append(b.prog.Items, &ast.Static{
		Span: b.span(), Name: "table", Mutable: true,
		Value: &ast.ArrayLit{Span: b.span(), Elems: []ast.Expr{
			b.intLit(1, sema.U8()), b.intLit(2, sema.U8()), b.intLit(3, sema.U8()),
		}},
	})
	main := b.function("main", sema.Void())
	b.body(main)
	text := b.generate()
	assertContains(t, text, "* = $C000", "table:", "    .byte $01, $02, $03")
}

func TestExplicitOrgInListing(t *testing.T) {
	b := newBuild(t)
	main := b.function("main", sema.Void())
	org := uint16(0xA000)
	main.Org = &org
	b.body(main)
	text := b.generate()
	assertContains(t, text, "* = $A000")
}

func TestMultiplyByPowerOfTwoUsesShifts(t *testing.T) {
	b := newBuild(t)
	main := b.function("main", sema.Void())
	x := b.local(main, "x", sema.U8())
	y := b.local(main, "y", sema.U8())
	b.body(main,
		b.decl(x, b.intLit(5, sema.U8())),
		b.decl(y, b.bin(ast.Mul, sema.U8(), b.ref(x), b.intLit(4, sema.U8()))),
	)
	text := b.generate()
	assertContains(t, text, "    ASL A")
	assertNotContains(t, text, "JSR")
}
