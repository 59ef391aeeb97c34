package codegen

import (
	"wisp/pkg/ast"
	"wisp/pkg/sema"
)

// simpleOperand returns an addressing-mode operand for expressions that
// need no code of their own: folded constants and located scalars. These
// feed ADC/SBC/AND/ORA/EOR/CMP directly without touching A.
func (e *Emitter) simpleOperand(x ast.Expr) (low, high string, ok bool) {
	if c, found := e.info.ConstOf(x); found && c.Kind != sema.ConstString {
		v := c.AsInt()
		return immOperand(v & 0xFF), immOperand((v >> 8) & 0xFF), true
	}
	switch n := x.(type) {
	case *ast.IntLit:
		return immOperand(n.Value & 0xFF), immOperand((n.Value >> 8) & 0xFF), true
	case *ast.BoolLit:
		v := int64(0)
		if n.Value {
			v = 1
		}
		return immOperand(v), immOperand(0), true
	case *ast.VarRef:
		sym, found := e.info.SymbolOf(n)
		if !found {
			return "", "", false
		}
		if sym.Kind == sema.SymConst && sym.Const != nil && sym.Const.Kind != sema.ConstString {
			v := sym.Const.AsInt()
			return immOperand(v & 0xFF), immOperand((v >> 8) & 0xFF), true
		}
		if sym.Location.Kind == sema.LocNone || sym.Type.IsByRef() {
			return "", "", false
		}
		return sym.Location.Operand(), locPlus(sym.Location, 1), true
	}
	return "", "", false
}

func immOperand(v int64) string {
	return "#$" + hex2(v)
}

func hex2(v int64) string {
	const digits = "0123456789ABCDEF"
	v &= 0xFF
	return string([]byte{digits[v>>4], digits[v&0xF]})
}

func (e *Emitter) genBinary(n *ast.Binary) error {
	switch n.Op {
	case ast.And, ast.Or:
		return e.genShortCircuit(n)
	}
	if n.Op.IsComparison() {
		return e.genComparison(n)
	}
	t := e.info.TypeOf(n)
	if t.Is16Bit() {
		return e.genBinary16(n, t)
	}
	return e.genBinary8(n, t)
}

// genShortCircuit evaluates && and || without running the right side when
// the left side already decides the result.
func (e *Emitter) genShortCircuit(n *ast.Binary) error {
	done := e.newLabel()
	if err := e.genExpr(n.Left); err != nil {
		return err
	}
	e.inst("CMP", "#$00")
	if n.Op == ast.And {
		e.inst("BEQ", done)
	} else {
		e.inst("BNE", done)
	}
	if err := e.genExpr(n.Right); err != nil {
		return err
	}
	e.label(done)
	return nil
}

func (e *Emitter) genBinary8(n *ast.Binary, t sema.Type) error {
	switch n.Op {
	case ast.Mul:
		return e.genMul8(n, t)
	case ast.Div, ast.Mod:
		return e.genDivMod8(n)
	case ast.Shl, ast.Shr:
		return e.genShift8(n)
	}

	op, carry := arithMnemonic(n.Op)
	if op == "" {
		return unsupported("binary operator", "%s on %s", n.Op, t)
	}
	if low, _, ok := e.simpleOperand(n.Right); ok {
		if err := e.genExpr(n.Left); err != nil {
			return err
		}
		if carry != "" {
			e.inst(carry, "")
		}
		// decimal mode only around the arithmetic itself, never around
		// evaluation, which may call subroutines
		if t.IsBCD() {
			e.inst("SED", "")
		}
		e.inst(op, low)
		if t.IsBCD() {
			e.inst("CLD", "")
		}
		e.regs.A = Unknown()
		return nil
	}
	// complex right side: park the left value on the stack while it runs
	if err := e.genExpr(n.Left); err != nil {
		return err
	}
	e.inst("PHA", "")
	if err := e.genExpr(n.Right); err != nil {
		return err
	}
	e.instf("STA", "$%02X", TempReg)
	e.inst("PLA", "")
	if carry != "" {
		e.inst(carry, "")
	}
	if t.IsBCD() {
		e.inst("SED", "")
	}
	e.instf(op, "$%02X", TempReg)
	if t.IsBCD() {
		e.inst("CLD", "")
	}
	e.regs.A = Unknown()
	return nil
}

// arithMnemonic maps an operator to its instruction and the flag setup it
// needs.
func arithMnemonic(op ast.BinOp) (mnemonic, carry string) {
	switch op {
	case ast.Add:
		return "ADC", "CLC"
	case ast.Sub:
		return "SBC", "SEC"
	case ast.BitAnd:
		return "AND", ""
	case ast.BitOr:
		return "ORA", ""
	case ast.BitXor:
		return "EOR", ""
	}
	return "", ""
}

func (e *Emitter) genBinary16(n *ast.Binary, t sema.Type) error {
	switch n.Op {
	case ast.Mul:
		if c, ok := e.constOf(n.Right); ok && isPowerOfTwo(c) {
			return e.genShift16Const(n.Left, trailingZeros(c), true)
		}
		return unsupported("16-bit multiply", "only powers of two reduce to shifts")
	case ast.Div:
		if c, ok := e.constOf(n.Right); ok {
			if c == 256 {
				// high byte is the quotient
				if err := e.genExpr(n.Left); err != nil {
					return err
				}
				e.inst("TYA", "")
				e.loadYImm(0)
				return nil
			}
			if isPowerOfTwo(c) {
				return e.genShift16Const(n.Left, trailingZeros(c), false)
			}
		}
		return unsupported("16-bit divide", "only powers of two reduce to shifts")
	case ast.Mod:
		if c, ok := e.constOf(n.Right); ok && c == 256 {
			// low byte is the remainder
			if err := e.genExpr(n.Left); err != nil {
				return err
			}
			e.loadYImm(0)
			return nil
		}
		return unsupported("16-bit modulo", "only modulo 256 reduces to a byte mask")
	case ast.Shl, ast.Shr:
		if c, ok := e.constOf(n.Right); ok {
			return e.genShift16Const(n.Left, int(c), n.Op == ast.Shl)
		}
		return unsupported("16-bit shift", "shift count must be constant")
	}

	op, carry := arithMnemonic(n.Op)
	if op == "" {
		return unsupported("binary operator", "%s on %s", n.Op, t)
	}
	if low, high, ok := e.simpleOperand(n.Right); ok {
		if err := e.genExpr(n.Left); err != nil {
			return err
		}
		if carry != "" {
			e.inst(carry, "")
		}
		if t.IsBCD() {
			e.inst("SED", "")
		}
		e.inst(op, low)
		e.inst("PHA", "")
		e.inst("TYA", "")
		e.inst(op, high)
		if t.IsBCD() {
			e.inst("CLD", "")
		}
		e.inst("TAY", "")
		e.inst("PLA", "")
		e.regs.A = Unknown()
		e.regs.Y = Unknown()
		return nil
	}
	if err := e.genExpr(n.Left); err != nil {
		return err
	}
	e.inst("PHA", "")
	e.inst("TYA", "")
	e.inst("PHA", "")
	if err := e.genExpr(n.Right); err != nil {
		return err
	}
	e.instf("STA", "$%02X", TempReg)
	e.instf("STY", "$%02X", TempReg+1)
	e.inst("PLA", "")
	e.inst("TAY", "")
	e.inst("PLA", "")
	if carry != "" {
		e.inst(carry, "")
	}
	if t.IsBCD() {
		e.inst("SED", "")
	}
	e.instf(op, "$%02X", TempReg)
	e.inst("PHA", "")
	e.inst("TYA", "")
	e.instf(op, "$%02X", TempReg+1)
	if t.IsBCD() {
		e.inst("CLD", "")
	}
	e.inst("TAY", "")
	e.inst("PLA", "")
	e.regs.A = Unknown()
	e.regs.Y = Unknown()
	return nil
}

func (e *Emitter) constOf(x ast.Expr) (int64, bool) {
	if c, ok := e.info.ConstOf(x); ok && c.Kind != sema.ConstString {
		return c.AsInt(), true
	}
	if lit, ok := x.(*ast.IntLit); ok {
		return lit.Value, true
	}
	return 0, false
}

func isPowerOfTwo(v int64) bool { return v > 0 && v&(v-1) == 0 }

func trailingZeros(v int64) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// genMul8 multiplies two bytes, keeping the low 8 bits. A constant
// power-of-two multiplier reduces to shifts; everything else runs the
// shift-add loop.
func (e *Emitter) genMul8(n *ast.Binary, t sema.Type) error {
	if c, ok := e.constOf(n.Right); ok && isPowerOfTwo(c) {
		if err := e.genExpr(n.Left); err != nil {
			return err
		}
		for i := 0; i < trailingZeros(c); i++ {
			e.inst("ASL", "A")
		}
		return nil
	}
	if err := e.genExpr(n.Left); err != nil {
		return err
	}
	e.instf("STA", "$%02X", MulScratch)
	if err := e.genExpr(n.Right); err != nil {
		return err
	}
	e.instf("STA", "$%02X", DivScratch)
	loop := e.newLabel()
	skip := e.newLabel()
	e.comment("8-bit multiply")
	e.inst("LDA", "#$00")
	e.inst("LDX", "#$08")
	e.label(loop)
	e.instf("LSR", "$%02X", DivScratch)
	e.inst("BCC", skip)
	e.inst("CLC", "")
	e.instf("ADC", "$%02X", MulScratch)
	e.label(skip)
	e.instf("ASL", "$%02X", MulScratch)
	e.inst("DEX", "")
	e.inst("BNE", loop)
	e.regs.InvalidateAll()
	return nil
}

// genDivMod8 divides two bytes by repeated subtraction, leaving the
// quotient or the remainder. Constant power-of-two divisors reduce to
// shifts, constant power-of-two moduli to a mask.
func (e *Emitter) genDivMod8(n *ast.Binary) error {
	if c, ok := e.constOf(n.Right); ok && isPowerOfTwo(c) {
		if err := e.genExpr(n.Left); err != nil {
			return err
		}
		if n.Op == ast.Div {
			for i := 0; i < trailingZeros(c); i++ {
				e.inst("LSR", "A")
			}
		} else {
			e.instf("AND", "#$%02X", c-1)
			e.regs.A = Unknown()
		}
		return nil
	}
	if err := e.genExpr(n.Left); err != nil {
		return err
	}
	e.instf("STA", "$%02X", MulScratch)
	if err := e.genExpr(n.Right); err != nil {
		return err
	}
	e.instf("STA", "$%02X", DivScratch)
	loop := e.newLabel()
	done := e.newLabel()
	e.comment("8-bit divide")
	e.inst("LDX", "#$00")
	e.instf("LDA", "$%02X", MulScratch)
	e.label(loop)
	e.instf("CMP", "$%02X", DivScratch)
	e.inst("BCC", done)
	e.inst("SEC", "")
	e.instf("SBC", "$%02X", DivScratch)
	e.inst("INX", "")
	e.inst("JMP", loop)
	e.label(done)
	if n.Op == ast.Div {
		e.inst("TXA", "")
	}
	e.regs.InvalidateAll()
	return nil
}

// genShift8 shifts A left or right. Constant counts unroll; dynamic
// counts loop on X.
func (e *Emitter) genShift8(n *ast.Binary) error {
	shift := "ASL"
	if n.Op == ast.Shr {
		shift = "LSR"
	}
	if c, ok := e.constOf(n.Right); ok {
		if err := e.genExpr(n.Left); err != nil {
			return err
		}
		for i := int64(0); i < c && i < 8; i++ {
			e.inst(shift, "A")
		}
		if c >= 8 {
			e.inst("LDA", "#$00")
		}
		return nil
	}
	if err := e.genExpr(n.Left); err != nil {
		return err
	}
	e.inst("PHA", "")
	if err := e.genExpr(n.Right); err != nil {
		return err
	}
	e.inst("TAX", "")
	e.inst("PLA", "")
	loop := e.newLabel()
	done := e.newLabel()
	e.label(loop)
	e.inst("CPX", "#$00")
	e.inst("BEQ", done)
	e.inst(shift, "A")
	e.inst("DEX", "")
	e.inst("JMP", loop)
	e.label(done)
	return nil
}

// genShift16Const shifts a 16-bit value through zero-page scratch.
func (e *Emitter) genShift16Const(left ast.Expr, count int, isLeft bool) error {
	if err := e.genExpr(left); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	e.instf("STA", "$%02X", TempReg)
	e.instf("STY", "$%02X", TempReg+1)
	for i := 0; i < count && i < 16; i++ {
		if isLeft {
			e.instf("ASL", "$%02X", TempReg)
			e.instf("ROL", "$%02X", TempReg+1)
		} else {
			e.instf("LSR", "$%02X", TempReg+1)
			e.instf("ROR", "$%02X", TempReg)
		}
	}
	e.instf("LDA", "$%02X", TempReg)
	e.instf("LDY", "$%02X", TempReg+1)
	return nil
}
