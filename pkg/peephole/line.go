// Package peephole rewrites generated assembly text through a set of
// local simplification rules, repeated until the output stops changing.
// It works on a structural view of the text, never on raw strings, so
// labels, directives and comments survive every rewrite untouched.
package peephole

import (
	"fmt"
	"strings"
)

// Kind discriminates Line.
type Kind int

const (
	Empty Kind = iota
	Comment
	Label
	Directive
	Instruction
)

// Line is one parsed line of assembly output.
type Line struct {
	Kind     Kind
	Raw      string // Comment, Directive: original trimmed text
	Name     string // Label: the label name without the colon
	Mnemonic string // Instruction
	Operand  string // Instruction, may be empty
	Trailing string // Instruction: trailing comment without the ';'
}

// Parse splits assembly text into lines. The emitted dialect is simple:
// labels start in column zero and end with a colon, instructions are
// indented, directives start with '.' or '*' or bind a name with '='.
func Parse(src string) []Line {
	var out []Line
	for _, raw := range strings.Split(src, "\n") {
		out = append(out, parseLine(raw))
	}
	return out
}

func parseLine(raw string) Line {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return Line{Kind: Empty}
	case strings.HasPrefix(trimmed, ";"):
		return Line{Kind: Comment, Raw: raw}
	case strings.HasPrefix(trimmed, ".") || strings.HasPrefix(trimmed, "*"):
		return Line{Kind: Directive, Raw: raw}
	}
	if !strings.HasPrefix(raw, " ") && !strings.HasPrefix(raw, "\t") {
		if name, ok := strings.CutSuffix(trimmed, ":"); ok && !strings.ContainsAny(name, " \t") {
			return Line{Kind: Label, Name: name}
		}
		// NAME = $xxxx equates are declarations, not code.
		return Line{Kind: Directive, Raw: raw}
	}
	code := trimmed
	var trailing string
	if i := strings.Index(code, ";"); i >= 0 {
		trailing = strings.TrimSpace(code[i+1:])
		code = strings.TrimSpace(code[:i])
	}
	mnemonic, operand, _ := strings.Cut(code, " ")
	return Line{
		Kind:     Instruction,
		Mnemonic: strings.ToUpper(mnemonic),
		Operand:  strings.TrimSpace(operand),
		Trailing: trailing,
	}
}

// String renders the line back to text.
func (l Line) String() string {
	switch l.Kind {
	case Empty:
		return ""
	case Comment, Directive:
		return l.Raw
	case Label:
		return l.Name + ":"
	}
	var b strings.Builder
	b.WriteString("    ")
	b.WriteString(l.Mnemonic)
	if l.Operand != "" {
		b.WriteByte(' ')
		b.WriteString(l.Operand)
	}
	if l.Trailing != "" {
		fmt.Fprintf(&b, " ; %s", l.Trailing)
	}
	return b.String()
}

// Render joins lines back into assembly text.
func Render(lines []Line) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.String()
	}
	return strings.Join(parts, "\n")
}

// IsTerminator reports whether control never falls through the instruction.
func (l Line) IsTerminator() bool {
	if l.Kind != Instruction {
		return false
	}
	switch l.Mnemonic {
	case "JMP", "RTS", "RTI":
		return true
	}
	return false
}

// IsBranch reports whether the instruction is a conditional branch.
func (l Line) IsBranch() bool {
	if l.Kind != Instruction {
		return false
	}
	switch l.Mnemonic {
	case "BEQ", "BNE", "BCC", "BCS", "BMI", "BPL", "BVC", "BVS":
		return true
	}
	return false
}

// isImmediate reports whether the operand is an immediate (#...) value.
func (l Line) isImmediate() bool {
	return strings.HasPrefix(l.Operand, "#")
}

// equalCode reports whether two lines are the same instruction, ignoring
// trailing comments.
func (l Line) equalCode(o Line) bool {
	return l.Kind == Instruction && o.Kind == Instruction &&
		l.Mnemonic == o.Mnemonic && l.Operand == o.Operand
}

// modifiesX reports whether the instruction can change X.
func (l Line) modifiesX() bool {
	if l.Kind != Instruction {
		return false
	}
	switch l.Mnemonic {
	case "LDX", "INX", "DEX", "TAX", "TSX", "JSR", "PLP":
		return true
	}
	return false
}

// modifiesY reports whether the instruction can change Y.
func (l Line) modifiesY() bool {
	if l.Kind != Instruction {
		return false
	}
	switch l.Mnemonic {
	case "LDY", "INY", "DEY", "TAY", "JSR", "PLP":
		return true
	}
	return false
}

// setsNZFromA reports whether the instruction leaves the Z and N flags
// reflecting the value now in A.
func (l Line) setsNZFromA() bool {
	if l.Kind != Instruction {
		return false
	}
	switch l.Mnemonic {
	case "LDA", "TXA", "TYA", "PLA", "AND", "ORA", "EOR", "ADC", "SBC":
		return true
	case "ASL", "LSR", "ROL", "ROR":
		return l.Operand == "A" || l.Operand == ""
	}
	return false
}

// next returns the index of the first line at or after i that is neither
// a comment nor empty, or -1.
func next(lines []Line, i int) int {
	for ; i < len(lines); i++ {
		if lines[i].Kind != Comment && lines[i].Kind != Empty {
			return i
		}
	}
	return -1
}
