package peephole

import "strings"

// A rule rewrites the line slice and reports whether it changed anything.
// Rules only ever delete or shrink code, so repeated application reaches a
// fixed point.
type rule func([]Line) ([]Line, bool)

var rules = []rule{
	dropUnreachable,
	dropRedundantLoads,
	dropRedundantStores,
	dropLoadAfterStore,
	dropDeadStores,
	dropNoOps,
	dropCancelingTransfers,
	dropRedundantCompareZero,
	dropKnownZeroIndexLoads,
	dropFlagContradictions,
	dropRepeatedImmediatePairs,
	selfAddToShift,
	jsrRTSToJMP,
	invertBranchOverJMP,
}

func remove(lines []Line, dead map[int]bool) ([]Line, bool) {
	if len(dead) == 0 {
		return lines, false
	}
	out := lines[:0]
	for i, l := range lines {
		if !dead[i] {
			out = append(out, l)
		}
	}
	return out, true
}

// dropRedundantLoads deletes the second of two identical adjacent loads.
func dropRedundantLoads(lines []Line) ([]Line, bool) {
	dead := map[int]bool{}
	for i := range lines {
		m := lines[i].Mnemonic
		if lines[i].Kind != Instruction || (m != "LDA" && m != "LDX" && m != "LDY") {
			continue
		}
		if j := next(lines, i+1); j >= 0 && !dead[i] && lines[j].equalCode(lines[i]) {
			dead[j] = true
		}
	}
	return remove(lines, dead)
}

// dropRedundantStores deletes the second of two identical adjacent stores.
func dropRedundantStores(lines []Line) ([]Line, bool) {
	dead := map[int]bool{}
	for i := range lines {
		m := lines[i].Mnemonic
		if lines[i].Kind != Instruction || (m != "STA" && m != "STX" && m != "STY") {
			continue
		}
		if j := next(lines, i+1); j >= 0 && !dead[i] && lines[j].equalCode(lines[i]) {
			dead[j] = true
		}
	}
	return remove(lines, dead)
}

// dropLoadAfterStore deletes a load from the address the same register was
// just stored to.
func dropLoadAfterStore(lines []Line) ([]Line, bool) {
	pairs := map[string]string{"STA": "LDA", "STX": "LDX", "STY": "LDY"}
	dead := map[int]bool{}
	for i := range lines {
		ld, ok := pairs[lines[i].Mnemonic]
		if !ok || lines[i].Kind != Instruction {
			continue
		}
		j := next(lines, i+1)
		if j >= 0 && lines[j].Mnemonic == ld && lines[j].Operand == lines[i].Operand {
			dead[j] = true
		}
	}
	return remove(lines, dead)
}

// dropDeadStores deletes a store that is overwritten by a second store to
// the same plain address with only an immediate load in between.
func dropDeadStores(lines []Line) ([]Line, bool) {
	dead := map[int]bool{}
	for i := range lines {
		if lines[i].Mnemonic != "STA" || strings.ContainsAny(lines[i].Operand, ",(") {
			continue
		}
		j := next(lines, i+1)
		if j < 0 || lines[j].Mnemonic != "LDA" || !lines[j].isImmediate() {
			continue
		}
		k := next(lines, j+1)
		if k >= 0 && lines[k].Mnemonic == "STA" && lines[k].Operand == lines[i].Operand {
			dead[i] = true
		}
	}
	return remove(lines, dead)
}

// dropNoOps deletes arithmetic that cannot change A.
func dropNoOps(lines []Line) ([]Line, bool) {
	dead := map[int]bool{}
	for i, l := range lines {
		if l.Kind != Instruction {
			continue
		}
		switch {
		case l.Mnemonic == "ORA" && l.Operand == "#$00",
			l.Mnemonic == "AND" && l.Operand == "#$FF",
			l.Mnemonic == "EOR" && l.Operand == "#$00":
			dead[i] = true
		}
	}
	return remove(lines, dead)
}

// dropCancelingTransfers deletes the second of a transfer pair that moves a
// value out and straight back (TAX TXA and the like). The flags after the
// pair equal the flags the first transfer set.
func dropCancelingTransfers(lines []Line) ([]Line, bool) {
	inverse := map[string]string{"TAX": "TXA", "TXA": "TAX", "TAY": "TYA", "TYA": "TAY"}
	dead := map[int]bool{}
	for i := range lines {
		inv, ok := inverse[lines[i].Mnemonic]
		if !ok || lines[i].Kind != Instruction {
			continue
		}
		if j := next(lines, i+1); j >= 0 && !dead[i] && lines[j].Mnemonic == inv {
			dead[j] = true
		}
	}
	return remove(lines, dead)
}

// dropUnreachable deletes instructions that follow an unconditional
// terminator, up to the next label or directive.
func dropUnreachable(lines []Line) ([]Line, bool) {
	dead := map[int]bool{}
	skipping := false
	for i, l := range lines {
		switch {
		case l.Kind == Label || l.Kind == Directive:
			skipping = false
		case skipping && l.Kind == Instruction:
			dead[i] = true
		case l.IsTerminator():
			skipping = true
		}
	}
	return remove(lines, dead)
}

// dropRedundantCompareZero deletes a compare against zero when the flags it
// would produce are already set and the following branch only reads Z or N.
// Branches on carry keep their compare: loads do not touch C.
func dropRedundantCompareZero(lines []Line) ([]Line, bool) {
	setsX := map[string]bool{"LDX": true, "TAX": true, "INX": true, "DEX": true}
	setsY := map[string]bool{"LDY": true, "TAY": true, "INY": true, "DEY": true}
	dead := map[int]bool{}
	for i, l := range lines {
		if l.Kind != Instruction {
			continue
		}
		j := next(lines, i+1)
		if j < 0 || lines[j].Operand != "#$00" {
			continue
		}
		switch lines[j].Mnemonic {
		case "CMP":
			if !l.setsNZFromA() {
				continue
			}
		case "CPX":
			if !setsX[l.Mnemonic] {
				continue
			}
		case "CPY":
			if !setsY[l.Mnemonic] {
				continue
			}
		default:
			continue
		}
		k := next(lines, j+1)
		if k < 0 {
			continue
		}
		switch lines[k].Mnemonic {
		case "BEQ", "BNE", "BMI", "BPL":
			dead[j] = true
		}
	}
	return remove(lines, dead)
}

// dropKnownZeroIndexLoads deletes an LDX/LDY #$00 when the register is
// already known to hold zero on every path reaching it. Labels and
// subroutine calls discard the knowledge.
func dropKnownZeroIndexLoads(lines []Line) ([]Line, bool) {
	dead := map[int]bool{}
	xZero, yZero := false, false
	for i, l := range lines {
		if l.Kind == Label {
			xZero, yZero = false, false
			continue
		}
		if l.Kind != Instruction {
			continue
		}
		switch {
		case l.Mnemonic == "LDX" && l.Operand == "#$00":
			if xZero {
				dead[i] = true
			}
			xZero = true
		case l.Mnemonic == "LDY" && l.Operand == "#$00":
			if yZero {
				dead[i] = true
			}
			yZero = true
		default:
			if l.modifiesX() {
				xZero = false
			}
			if l.modifiesY() {
				yZero = false
			}
			if l.IsTerminator() {
				xZero, yZero = false, false
			}
		}
	}
	return remove(lines, dead)
}

// dropFlagContradictions collapses adjacent set/clear instructions on the
// same flag: the second one decides the state.
func dropFlagContradictions(lines []Line) ([]Line, bool) {
	family := map[string]string{"CLC": "c", "SEC": "c", "CLD": "d", "SED": "d"}
	dead := map[int]bool{}
	for i := range lines {
		f, ok := family[lines[i].Mnemonic]
		if !ok || lines[i].Kind != Instruction || dead[i] {
			continue
		}
		if j := next(lines, i+1); j >= 0 && family[lines[j].Mnemonic] == f {
			dead[i] = true
		}
	}
	return remove(lines, dead)
}

// dropRepeatedImmediatePairs deletes a repeated two-register immediate load
// pair, the shape address materialization emits (LDA #<label, LDX #>label).
func dropRepeatedImmediatePairs(lines []Line) ([]Line, bool) {
	dead := map[int]bool{}
	for i := range lines {
		if !isImmLoad(lines[i]) {
			continue
		}
		j := next(lines, i+1)
		if j < 0 || !isImmLoad(lines[j]) || lines[j].Mnemonic == lines[i].Mnemonic {
			continue
		}
		k := next(lines, j+1)
		if k < 0 || !lines[k].equalCode(lines[i]) {
			continue
		}
		m := next(lines, k+1)
		if m >= 0 && lines[m].equalCode(lines[j]) {
			dead[k] = true
			dead[m] = true
		}
	}
	return remove(lines, dead)
}

func isImmLoad(l Line) bool {
	if l.Kind != Instruction || !l.isImmediate() {
		return false
	}
	return l.Mnemonic == "LDA" || l.Mnemonic == "LDX" || l.Mnemonic == "LDY"
}

// selfAddToShift rewrites adding a value to itself as a left shift.
func selfAddToShift(lines []Line) ([]Line, bool) {
	dead := map[int]bool{}
	for i := range lines {
		if lines[i].Mnemonic != "LDA" {
			continue
		}
		j := next(lines, i+1)
		if j < 0 || lines[j].Mnemonic != "CLC" {
			continue
		}
		k := next(lines, j+1)
		if k < 0 || lines[k].Mnemonic != "ADC" || lines[k].Operand != lines[i].Operand {
			continue
		}
		lines[j] = Line{Kind: Instruction, Mnemonic: "ASL", Operand: "A"}
		dead[k] = true
	}
	return remove(lines, dead)
}

// jsrRTSToJMP rewrites a call in tail position as a jump, letting the
// callee's RTS return to our caller directly.
func jsrRTSToJMP(lines []Line) ([]Line, bool) {
	dead := map[int]bool{}
	for i := range lines {
		if lines[i].Mnemonic != "JSR" {
			continue
		}
		j := next(lines, i+1)
		if j >= 0 && lines[j].Mnemonic == "RTS" {
			lines[i].Mnemonic = "JMP"
			dead[j] = true
		}
	}
	return remove(lines, dead)
}

// Branch inversion over a JMP would shorten the common
//
//	BEQ skip
//	JMP target
//	skip:
//
// shape to a single inverted branch. It stays disabled: the rewrite can
// move a branch target outside the 6502's signed 8-bit displacement and
// produce code the assembler rejects.
const enableBranchInversion = false

func invertBranchOverJMP(lines []Line) ([]Line, bool) {
	if !enableBranchInversion {
		return lines, false
	}
	inverse := map[string]string{
		"BEQ": "BNE", "BNE": "BEQ",
		"BCC": "BCS", "BCS": "BCC",
		"BMI": "BPL", "BPL": "BMI",
		"BVC": "BVS", "BVS": "BVC",
	}
	dead := map[int]bool{}
	for i := range lines {
		inv, ok := inverse[lines[i].Mnemonic]
		if !ok {
			continue
		}
		j := next(lines, i+1)
		if j < 0 || lines[j].Mnemonic != "JMP" {
			continue
		}
		k := next(lines, j+1)
		if k < 0 || lines[k].Kind != Label || lines[k].Name != lines[i].Operand {
			continue
		}
		lines[i].Mnemonic = inv
		lines[i].Operand = lines[j].Operand
		dead[j] = true
	}
	return remove(lines, dead)
}
