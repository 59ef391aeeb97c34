package codegen

import "strings"

// instructionSize returns the assembled byte size of one instruction.
// Sizing only needs the addressing-mode shape, not the opcode: implied and
// accumulator take one byte, immediates, zero-page and branch forms two,
// absolute forms three. Symbolic operands (labels, equates) assemble as
// absolute.
func instructionSize(mnemonic, operand string) int {
	switch mnemonic {
	case "BEQ", "BNE", "BCC", "BCS", "BMI", "BPL", "BVC", "BVS":
		return 2
	case "JMP":
		return 3
	case "JSR":
		return 3
	}
	if operand == "" || operand == "A" {
		return 1
	}
	if strings.HasPrefix(operand, "#") {
		return 2
	}
	if strings.HasPrefix(operand, "(") {
		// ($zp),Y and ($zp,X) are the only emitted indirect forms
		return 2
	}
	base, _, _ := strings.Cut(operand, ",")
	if strings.HasPrefix(base, "$") && len(base) <= 3 {
		return 2
	}
	return 3
}

// directiveSize returns how many output bytes a data directive occupies.
// Origin changes and equates emit nothing.
func directiveSize(text string) int {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, ".byte"):
		return 1 + strings.Count(text, ",")
	case strings.HasPrefix(text, ".word"):
		return 2 * (1 + strings.Count(text, ","))
	}
	return 0
}
