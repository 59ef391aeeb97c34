package codegen

import (
	"fmt"

	"wisp/pkg/ast"
	"wisp/pkg/sema"
)

// genExpr evaluates an expression. 8-bit results land in A; 16-bit
// results in A (low) and Y (high); reference results (strings, arrays,
// structs, enums) leave a pointer in A (low) and X (high).
func (e *Emitter) genExpr(x ast.Expr) error {
	if c, ok := e.info.ConstOf(x); ok {
		return e.genConst(x, c)
	}
	switch n := x.(type) {
	case *ast.IntLit:
		return e.genConst(x, sema.IntConst(n.Value))
	case *ast.BoolLit:
		return e.genConst(x, sema.BoolConst(n.Value))
	case *ast.StringLit:
		e.genStringPointer(n.Value)
		return nil
	case *ast.VarRef:
		return e.genVarRef(n)
	case *ast.Binary:
		return e.genBinary(n)
	case *ast.Unary:
		return e.genUnary(n)
	case *ast.Call:
		return e.genCall(n)
	case *ast.Cast:
		return e.genCast(n)
	case *ast.Index:
		return e.genIndex(n)
	case *ast.Field:
		return e.genField(n)
	case *ast.ByteOf:
		return e.genByteOf(n)
	case *ast.LenOf:
		return e.genLenOf(n)
	case *ast.FlagRead:
		return e.genFlagRead(n)
	case *ast.ArrayLit, *ast.ArrayFill, *ast.StructLit, *ast.EnumLit:
		return unsupported("aggregate expression", "aggregates initialize variables, they are not values")
	}
	return unsupported("expression", "%T", x)
}

// genConst materializes a folded constant. The fast path the constant
// folder enables: no sub-expression is evaluated at all.
func (e *Emitter) genConst(x ast.Expr, c sema.ConstValue) error {
	if c.Kind == sema.ConstString {
		e.genStringPointer(c.Str)
		return nil
	}
	v := c.AsInt()
	t := e.info.TypeOf(x)
	e.loadAImm(v & 0xFF)
	if t.Is16Bit() {
		e.loadYImm((v >> 8) & 0xFF)
	}
	return nil
}

// genStringPointer interns the contents and loads the data address.
func (e *Emitter) genStringPointer(s string) {
	label := e.strings.Intern(s)
	e.instf("LDA", "#<%s", label)
	e.instf("LDX", "#>%s", label)
}

func (e *Emitter) genVarRef(n *ast.VarRef) error {
	sym, ok := e.info.SymbolOf(n)
	if !ok {
		return &SymbolNotFoundError{Name: n.Name}
	}
	switch sym.Kind {
	case sema.SymConst:
		if sym.Const == nil {
			return unsupported("constant", "%s has no folded value", n.Name)
		}
		return e.genConst(n, *sym.Const)
	case sema.SymFunction:
		return unsupported("function reference", "%s used as a value", n.Name)
	}
	t := sym.Type
	switch {
	case t.Kind == sema.TypeString:
		// string variables hold a pointer; load its two bytes
		e.loadA(sym.Location)
		e.inst("LDX", locPlus(sym.Location, 1))
	case t.IsByRef():
		// arrays, structs and enums are storage; materialize the address
		e.loadAImm(int64(sym.Location.Addr & 0xFF))
		e.loadXImm(int64(sym.Location.Addr >> 8))
	case t.Is16Bit():
		e.loadA(sym.Location)
		e.inst("LDY", locPlus(sym.Location, 1))
		e.regs.Y = Unknown()
	default:
		e.loadA(sym.Location)
	}
	return nil
}

// locPlus renders the operand for a location offset by n bytes.
func locPlus(loc sema.SymbolLocation, n int) string {
	addr := int(loc.Addr) + n
	if loc.Kind == sema.LocZeroPage && addr <= 0xFF {
		return fmt.Sprintf("$%02X", addr)
	}
	return fmt.Sprintf("$%04X", addr)
}

// staticLoc resolves an lvalue to a fixed location when the whole access
// path is known at compile time: a plain variable, a constant index or a
// struct field chain.
func (e *Emitter) staticLoc(x ast.Expr) (sema.SymbolLocation, sema.Type, bool) {
	switch n := x.(type) {
	case *ast.VarRef:
		sym, ok := e.info.SymbolOf(n)
		if !ok || sym.Location.Kind == sema.LocNone {
			return sema.SymbolLocation{}, sema.Type{}, false
		}
		return sym.Location, sym.Type, true
	case *ast.Index:
		loc, t, ok := e.staticLoc(n.Base)
		if !ok || t.Kind != sema.TypeArray {
			return sema.SymbolLocation{}, sema.Type{}, false
		}
		c, ok := e.info.ConstOf(n.Index)
		if !ok {
			if lit, isLit := n.Index.(*ast.IntLit); isLit {
				c = sema.IntConst(lit.Value)
			} else {
				return sema.SymbolLocation{}, sema.Type{}, false
			}
		}
		elem := *t.Elem
		off := int(c.AsInt()) * e.info.Registry.SizeOf(elem)
		return offsetLoc(loc, off), elem, true
	case *ast.Field:
		loc, t, ok := e.staticLoc(n.Base)
		if !ok || t.Kind != sema.TypeStruct {
			return sema.SymbolLocation{}, sema.Type{}, false
		}
		def, ok := e.info.Registry.Structs[t.Name]
		if !ok {
			return sema.SymbolLocation{}, sema.Type{}, false
		}
		f := def.Field(n.Name)
		if f == nil {
			return sema.SymbolLocation{}, sema.Type{}, false
		}
		return offsetLoc(loc, f.Offset), f.Type, true
	}
	return sema.SymbolLocation{}, sema.Type{}, false
}

func offsetLoc(loc sema.SymbolLocation, off int) sema.SymbolLocation {
	addr := int(loc.Addr) + off
	if loc.Kind == sema.LocZeroPage && addr <= 0xFF {
		return sema.ZeroPage(uint8(addr))
	}
	return sema.Absolute(uint16(addr))
}

// loadScalar loads the value at loc with the given type into the result
// registers.
func (e *Emitter) loadScalar(loc sema.SymbolLocation, t sema.Type) {
	e.loadA(loc)
	if t.Is16Bit() {
		e.inst("LDY", locPlus(loc, 1))
		e.regs.Y = Unknown()
	}
}

// storeScalar stores the result registers to loc.
func (e *Emitter) storeScalar(loc sema.SymbolLocation, t sema.Type) {
	e.storeA(loc)
	switch {
	case t.Kind == sema.TypeString:
		e.inst("STX", locPlus(loc, 1))
	case t.Is16Bit():
		e.inst("STY", locPlus(loc, 1))
	}
}

// setupPointer loads the address of a reference expression into the
// zero-page pointer pair and returns its base. The pointer always goes
// through A/X, so the expression's own pointer production is reused.
func (e *Emitter) setupPointer(base ast.Expr) (uint8, error) {
	if err := e.genExpr(base); err != nil {
		return 0, err
	}
	p := uint8(StringPtr)
	e.instf("STA", "$%02X", p)
	e.instf("STX", "$%02X", p+1)
	return p, nil
}

func (e *Emitter) genIndex(n *ast.Index) error {
	if loc, t, ok := e.staticLoc(n); ok {
		e.loadScalar(loc, t)
		return nil
	}
	baseType := e.info.TypeOf(n.Base)
	if baseType.Kind != sema.TypeArray {
		return unsupported("index", "into %s", baseType)
	}
	elem := *baseType.Elem
	elemSize := e.info.Registry.SizeOf(elem)
	if elem.IsByRef() {
		return unsupported("index", "dynamic index into array of %s", elem)
	}
	if elemSize&(elemSize-1) != 0 {
		return unsupported("index", "element size %d is not scalable by shifts", elemSize)
	}
	p, err := e.setupPointer(n.Base)
	if err != nil {
		return err
	}
	if err := e.genExpr(n.Index); err != nil {
		return err
	}
	for s := elemSize; s > 1; s >>= 1 {
		e.inst("ASL", "A")
	}
	e.inst("TAY", "")
	e.instf("LDA", "($%02X),Y", p)
	if elem.Is16Bit() {
		e.inst("PHA", "")
		e.inst("INY", "")
		e.instf("LDA", "($%02X),Y", p)
		e.inst("TAY", "")
		e.inst("PLA", "")
	}
	e.regs.A = Unknown()
	return nil
}

func (e *Emitter) genField(n *ast.Field) error {
	if loc, t, ok := e.staticLoc(n); ok {
		e.loadScalar(loc, t)
		return nil
	}
	baseType := e.info.TypeOf(n.Base)
	if baseType.Kind != sema.TypeStruct {
		return unsupported("field access", "on %s", baseType)
	}
	def, ok := e.info.Registry.Structs[baseType.Name]
	if !ok {
		return &SymbolNotFoundError{Name: baseType.Name}
	}
	f := def.Field(n.Name)
	if f == nil {
		return &SymbolNotFoundError{Name: baseType.Name + "." + n.Name}
	}
	p, err := e.setupPointer(n.Base)
	if err != nil {
		return err
	}
	e.loadYImm(int64(f.Offset))
	e.instf("LDA", "($%02X),Y", p)
	if f.Type.Is16Bit() {
		e.inst("PHA", "")
		e.inst("INY", "")
		e.instf("LDA", "($%02X),Y", p)
		e.inst("TAY", "")
		e.inst("PLA", "")
	}
	e.regs.A = Unknown()
	return nil
}

func (e *Emitter) genByteOf(n *ast.ByteOf) error {
	if err := e.genExpr(n.Value); err != nil {
		return err
	}
	if n.High {
		e.inst("TYA", "")
	}
	return nil
}

// genLenOf reads the 2-byte length prefix of string data. Array lengths
// fold to constants upstream and never reach here.
func (e *Emitter) genLenOf(n *ast.LenOf) error {
	t := e.info.TypeOf(n.Value)
	if t.Kind != sema.TypeString {
		return unsupported("len", "of %s", t)
	}
	p, err := e.setupPointer(n.Value)
	if err != nil {
		return err
	}
	e.loadYImm(0)
	e.instf("LDA", "($%02X),Y", p)
	e.inst("PHA", "")
	e.inst("INY", "")
	e.instf("LDA", "($%02X),Y", p)
	e.inst("TAY", "")
	e.inst("PLA", "")
	e.regs.A = Unknown()
	return nil
}

// genFlagRead converts a CPU flag to a bool. The branch runs before
// anything can disturb the flag; only the carry read avoids a branch.
func (e *Emitter) genFlagRead(n *ast.FlagRead) error {
	if n.Flag == ast.FlagCarry {
		e.inst("LDA", "#$00")
		e.inst("ADC", "#$00")
		e.regs.A = Unknown()
		return nil
	}
	var miss string
	switch n.Flag {
	case ast.FlagZero:
		miss = "BNE"
	case ast.FlagNegative:
		miss = "BPL"
	case ast.FlagOverflow:
		miss = "BVC"
	default:
		return unsupported("flag read", "%s", n.Flag)
	}
	clear := e.newLabel()
	done := e.newLabel()
	e.inst(miss, clear)
	e.inst("LDA", "#$01")
	e.inst("JMP", done)
	e.label(clear)
	e.inst("LDA", "#$00")
	e.label(done)
	return nil
}
