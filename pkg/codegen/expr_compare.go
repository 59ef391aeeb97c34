package codegen

import (
	"wisp/pkg/ast"
	"wisp/pkg/sema"
)

// genComparison materializes a comparison as 0 or 1 in A. Conditions in
// if/while compare the result against zero again; the peephole pass folds
// the double test away.
func (e *Emitter) genComparison(n *ast.Binary) error {
	operandType := e.info.TypeOf(n.Left)
	if operandType.Is16Bit() {
		return e.genComparison16(n, operandType)
	}
	if operandType.IsSigned() && n.Op != ast.Eq && n.Op != ast.Ne {
		// equality is bit-pattern equality either way; only ordering
		// needs the signed path
		return e.genComparisonSigned(n)
	}

	low, _, ok := e.simpleOperand(n.Right)
	if !ok {
		// complex right side goes through scratch
		if err := e.genExpr(n.Right); err != nil {
			return err
		}
		e.instf("STA", "$%02X", TempReg)
		low = locPlus(sema.ZeroPage(TempReg), 0)
	}
	if err := e.genExpr(n.Left); err != nil {
		return err
	}
	e.inst("CMP", low)

	trueL := e.newLabel()
	done := e.newLabel()
	switch n.Op {
	case ast.Eq:
		e.inst("BEQ", trueL)
	case ast.Ne:
		e.inst("BNE", trueL)
	case ast.Lt:
		e.inst("BCC", trueL)
	case ast.Ge:
		e.inst("BCS", trueL)
	case ast.Le:
		e.inst("BCC", trueL)
		e.inst("BEQ", trueL)
	case ast.Gt:
		falseL := e.newLabel()
		e.inst("BEQ", falseL)
		e.inst("BCS", trueL)
		e.label(falseL)
	}
	e.inst("LDA", "#$00")
	e.inst("JMP", done)
	e.label(trueL)
	e.inst("LDA", "#$01")
	e.label(done)
	e.regs.A = Unknown()
	return nil
}

// genComparisonSigned compares i8 operands by subtraction and the sign of
// the result. Equality tests reuse the unsigned path: bit patterns decide
// those regardless of sign.
func (e *Emitter) genComparisonSigned(n *ast.Binary) error {
	low, _, ok := e.simpleOperand(n.Right)
	if !ok {
		if err := e.genExpr(n.Right); err != nil {
			return err
		}
		e.instf("STA", "$%02X", TempReg)
		low = locPlus(sema.ZeroPage(TempReg), 0)
	}
	if err := e.genExpr(n.Left); err != nil {
		return err
	}

	// left - right; N tells the order for in-range differences
	op := n.Op
	e.inst("SEC", "")
	e.inst("SBC", low)
	trueL := e.newLabel()
	done := e.newLabel()
	switch op {
	case ast.Lt:
		e.inst("BMI", trueL)
	case ast.Ge:
		e.inst("BPL", trueL)
	case ast.Le:
		e.inst("BMI", trueL)
		e.inst("BEQ", trueL)
	case ast.Gt:
		falseL := e.newLabel()
		e.inst("BEQ", falseL)
		e.inst("BPL", trueL)
		e.label(falseL)
	}
	e.inst("LDA", "#$00")
	e.inst("JMP", done)
	e.label(trueL)
	e.inst("LDA", "#$01")
	e.label(done)
	e.regs.A = Unknown()
	return nil
}

// genComparison16 compares 16-bit operands. The right side must be simple
// or goes through scratch; the left side arrives in A/Y.
func (e *Emitter) genComparison16(n *ast.Binary, t sema.Type) error {
	low, high, ok := e.simpleOperand(n.Right)
	if !ok {
		if err := e.genExpr(n.Right); err != nil {
			return err
		}
		e.instf("STA", "$%02X", MulScratch)
		e.instf("STY", "$%02X", DivScratch)
		low = locPlus(sema.ZeroPage(MulScratch), 0)
		high = locPlus(sema.ZeroPage(DivScratch), 0)
	}
	if err := e.genExpr(n.Left); err != nil {
		return err
	}

	trueL := e.newLabel()
	falseL := e.newLabel()
	done := e.newLabel()
	switch n.Op {
	case ast.Eq:
		e.inst("CMP", low)
		e.inst("BNE", falseL)
		e.inst("CPY", high)
		e.inst("BNE", falseL)
		e.inst("JMP", trueL)
	case ast.Ne:
		e.inst("CMP", low)
		e.inst("BNE", trueL)
		e.inst("CPY", high)
		e.inst("BNE", trueL)
		e.inst("JMP", falseL)
	case ast.Lt, ast.Ge:
		// compare high bytes first, low bytes break the tie
		e.inst("CPY", high)
		e.inst("BCC", pick(n.Op == ast.Lt, trueL, falseL))
		e.inst("BNE", pick(n.Op == ast.Lt, falseL, trueL))
		e.inst("CMP", low)
		e.inst("BCC", pick(n.Op == ast.Lt, trueL, falseL))
		e.inst("JMP", pick(n.Op == ast.Lt, falseL, trueL))
	case ast.Le, ast.Gt:
		// a <= b  is  !(b < a); compare the other way around
		e.inst("CPY", high)
		e.inst("BCC", pick(n.Op == ast.Le, trueL, falseL))
		e.inst("BNE", pick(n.Op == ast.Le, falseL, trueL))
		e.inst("CMP", low)
		e.inst("BCC", pick(n.Op == ast.Le, trueL, falseL))
		e.inst("BEQ", pick(n.Op == ast.Le, trueL, falseL))
		e.inst("JMP", pick(n.Op == ast.Le, falseL, trueL))
	default:
		return unsupported("16-bit comparison", "%s", n.Op)
	}
	e.label(falseL)
	e.inst("LDA", "#$00")
	e.inst("JMP", done)
	e.label(trueL)
	e.inst("LDA", "#$01")
	e.label(done)
	e.regs.A = Unknown()
	return nil
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}
