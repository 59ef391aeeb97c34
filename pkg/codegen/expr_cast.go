package codegen

import (
	"wisp/pkg/ast"
	"wisp/pkg/sema"
)

// genCast converts between numeric widths and bool. The target type is
// the resolved type of the cast node; the source is the operand's type.
func (e *Emitter) genCast(n *ast.Cast) error {
	from := e.info.TypeOf(n.Value)
	to := e.info.TypeOf(n)
	if err := e.genExpr(n.Value); err != nil {
		return err
	}
	switch {
	case from.Kind == to.Kind:
		return nil
	case to.Kind == sema.TypeBool:
		// canonicalize to 0 or 1
		if from.Is16Bit() {
			e.instf("STY", "$%02X", TempReg)
			e.instf("ORA", "$%02X", TempReg)
		}
		set := e.newLabel()
		e.inst("CMP", "#$00")
		e.inst("BEQ", set)
		e.inst("LDA", "#$01")
		e.label(set)
		e.regs.A = Unknown()
	case from.Is16Bit() && !to.Is16Bit():
		// truncate: the low byte is already in A
	case !from.Is16Bit() && to.Is16Bit():
		if from.IsSigned() {
			e.signExtend()
		} else {
			e.loadYImm(0)
		}
	}
	return nil
}

// signExtend widens A into A/Y, copying bit 7 through the high byte.
func (e *Emitter) signExtend() {
	positive := e.newLabel()
	e.inst("TAX", "")
	e.inst("LDY", "#$00")
	e.inst("AND", "#$80")
	e.inst("BEQ", positive)
	e.inst("LDY", "#$FF")
	e.label(positive)
	e.inst("TXA", "")
	e.regs.A = Unknown()
	e.regs.Y = Unknown()
}
