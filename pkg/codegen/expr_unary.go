package codegen

import (
	"wisp/pkg/ast"
)

func (e *Emitter) genUnary(n *ast.Unary) error {
	t := e.info.TypeOf(n)
	if err := e.genExpr(n.Operand); err != nil {
		return err
	}
	switch n.Op {
	case ast.BitNot:
		e.inst("EOR", "#$FF")
		if t.Is16Bit() {
			e.instf("STA", "$%02X", TempReg)
			e.inst("TYA", "")
			e.inst("EOR", "#$FF")
			e.inst("TAY", "")
			e.instf("LDA", "$%02X", TempReg)
		}
		e.regs.A = Unknown()
		e.regs.Y = Unknown()
	case ast.Neg:
		if t.Is16Bit() {
			// 0 - value, low byte first
			e.instf("STA", "$%02X", TempReg)
			e.instf("STY", "$%02X", TempReg+1)
			e.inst("SEC", "")
			e.inst("LDA", "#$00")
			e.instf("SBC", "$%02X", TempReg)
			e.inst("PHA", "")
			e.inst("LDA", "#$00")
			e.instf("SBC", "$%02X", TempReg+1)
			e.inst("TAY", "")
			e.inst("PLA", "")
		} else {
			// two's complement
			e.inst("EOR", "#$FF")
			e.inst("CLC", "")
			e.inst("ADC", "#$01")
		}
		e.regs.A = Unknown()
		e.regs.Y = Unknown()
	case ast.Not:
		zero := e.newLabel()
		done := e.newLabel()
		e.inst("CMP", "#$00")
		e.inst("BEQ", zero)
		e.inst("LDA", "#$00")
		e.inst("JMP", done)
		e.label(zero)
		e.inst("LDA", "#$01")
		e.label(done)
	default:
		return unsupported("unary operator", "%s", n.Op)
	}
	return nil
}
