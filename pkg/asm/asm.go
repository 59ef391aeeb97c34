// Package asm assembles the 6502 dialect the code generator emits into a
// 64 KiB memory image: labels, NAME = $xxxx equates, * = $xxxx origin
// changes, .byte/.word data and the documented MOS 6502 instruction set.
package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MemSize is the full 6502 address space.
const MemSize = 0x10000

type addrMode int

const (
	modeImplied addrMode = iota
	modeAccumulator
	modeImmediate
	modeZeroPage
	modeZeroPageX
	modeZeroPageY
	modeAbsolute
	modeAbsoluteX
	modeAbsoluteY
	modeIndirect
	modeIndexedIndirect // ($zp,X)
	modeIndirectIndexed // ($zp),Y
	modeRelative
)

func modeSize(m addrMode) int {
	switch m {
	case modeImplied, modeAccumulator:
		return 1
	case modeImmediate, modeZeroPage, modeZeroPageX, modeZeroPageY,
		modeIndexedIndirect, modeIndirectIndexed, modeRelative:
		return 2
	}
	return 3
}

// opcodes maps mnemonic and addressing mode to the encoding.
var opcodes = map[string]map[addrMode]byte{
	"ADC": {modeImmediate: 0x69, modeZeroPage: 0x65, modeZeroPageX: 0x75, modeAbsolute: 0x6D, modeAbsoluteX: 0x7D, modeAbsoluteY: 0x79, modeIndexedIndirect: 0x61, modeIndirectIndexed: 0x71},
	"AND": {modeImmediate: 0x29, modeZeroPage: 0x25, modeZeroPageX: 0x35, modeAbsolute: 0x2D, modeAbsoluteX: 0x3D, modeAbsoluteY: 0x39, modeIndexedIndirect: 0x21, modeIndirectIndexed: 0x31},
	"ASL": {modeAccumulator: 0x0A, modeZeroPage: 0x06, modeZeroPageX: 0x16, modeAbsolute: 0x0E, modeAbsoluteX: 0x1E},
	"BCC": {modeRelative: 0x90},
	"BCS": {modeRelative: 0xB0},
	"BEQ": {modeRelative: 0xF0},
	"BIT": {modeZeroPage: 0x24, modeAbsolute: 0x2C},
	"BMI": {modeRelative: 0x30},
	"BNE": {modeRelative: 0xD0},
	"BPL": {modeRelative: 0x10},
	"BRK": {modeImplied: 0x00},
	"BVC": {modeRelative: 0x50},
	"BVS": {modeRelative: 0x70},
	"CLC": {modeImplied: 0x18},
	"CLD": {modeImplied: 0xD8},
	"CLI": {modeImplied: 0x58},
	"CLV": {modeImplied: 0xB8},
	"CMP": {modeImmediate: 0xC9, modeZeroPage: 0xC5, modeZeroPageX: 0xD5, modeAbsolute: 0xCD, modeAbsoluteX: 0xDD, modeAbsoluteY: 0xD9, modeIndexedIndirect: 0xC1, modeIndirectIndexed: 0xD1},
	"CPX": {modeImmediate: 0xE0, modeZeroPage: 0xE4, modeAbsolute: 0xEC},
	"CPY": {modeImmediate: 0xC0, modeZeroPage: 0xC4, modeAbsolute: 0xCC},
	"DEC": {modeZeroPage: 0xC6, modeZeroPageX: 0xD6, modeAbsolute: 0xCE, modeAbsoluteX: 0xDE},
	"DEX": {modeImplied: 0xCA},
	"DEY": {modeImplied: 0x88},
	"EOR": {modeImmediate: 0x49, modeZeroPage: 0x45, modeZeroPageX: 0x55, modeAbsolute: 0x4D, modeAbsoluteX: 0x5D, modeAbsoluteY: 0x59, modeIndexedIndirect: 0x41, modeIndirectIndexed: 0x51},
	"INC": {modeZeroPage: 0xE6, modeZeroPageX: 0xF6, modeAbsolute: 0xEE, modeAbsoluteX: 0xFE},
	"INX": {modeImplied: 0xE8},
	"INY": {modeImplied: 0xC8},
	"JMP": {modeAbsolute: 0x4C, modeIndirect: 0x6C},
	"JSR": {modeAbsolute: 0x20},
	"LDA": {modeImmediate: 0xA9, modeZeroPage: 0xA5, modeZeroPageX: 0xB5, modeAbsolute: 0xAD, modeAbsoluteX: 0xBD, modeAbsoluteY: 0xB9, modeIndexedIndirect: 0xA1, modeIndirectIndexed: 0xB1},
	"LDX": {modeImmediate: 0xA2, modeZeroPage: 0xA6, modeZeroPageY: 0xB6, modeAbsolute: 0xAE, modeAbsoluteY: 0xBE},
	"LDY": {modeImmediate: 0xA0, modeZeroPage: 0xA4, modeZeroPageX: 0xB4, modeAbsolute: 0xAC, modeAbsoluteX: 0xBC},
	"LSR": {modeAccumulator: 0x4A, modeZeroPage: 0x46, modeZeroPageX: 0x56, modeAbsolute: 0x4E, modeAbsoluteX: 0x5E},
	"NOP": {modeImplied: 0xEA},
	"ORA": {modeImmediate: 0x09, modeZeroPage: 0x05, modeZeroPageX: 0x15, modeAbsolute: 0x0D, modeAbsoluteX: 0x1D, modeAbsoluteY: 0x19, modeIndexedIndirect: 0x01, modeIndirectIndexed: 0x11},
	"PHA": {modeImplied: 0x48},
	"PHP": {modeImplied: 0x08},
	"PLA": {modeImplied: 0x68},
	"PLP": {modeImplied: 0x28},
	"ROL": {modeAccumulator: 0x2A, modeZeroPage: 0x26, modeZeroPageX: 0x36, modeAbsolute: 0x2E, modeAbsoluteX: 0x3E},
	"ROR": {modeAccumulator: 0x6A, modeZeroPage: 0x66, modeZeroPageX: 0x76, modeAbsolute: 0x6E, modeAbsoluteX: 0x7E},
	"RTI": {modeImplied: 0x40},
	"RTS": {modeImplied: 0x60},
	"SBC": {modeImmediate: 0xE9, modeZeroPage: 0xE5, modeZeroPageX: 0xF5, modeAbsolute: 0xED, modeAbsoluteX: 0xFD, modeAbsoluteY: 0xF9, modeIndexedIndirect: 0xE1, modeIndirectIndexed: 0xF1},
	"SEC": {modeImplied: 0x38},
	"SED": {modeImplied: 0xF8},
	"SEI": {modeImplied: 0x78},
	"STA": {modeZeroPage: 0x85, modeZeroPageX: 0x95, modeAbsolute: 0x8D, modeAbsoluteX: 0x9D, modeAbsoluteY: 0x99, modeIndexedIndirect: 0x81, modeIndirectIndexed: 0x91},
	"STX": {modeZeroPage: 0x86, modeZeroPageY: 0x96, modeAbsolute: 0x8E},
	"STY": {modeZeroPage: 0x84, modeZeroPageX: 0x94, modeAbsolute: 0x8C},
	"TAX": {modeImplied: 0xAA},
	"TAY": {modeImplied: 0xA8},
	"TSX": {modeImplied: 0xBA},
	"TXA": {modeImplied: 0x8A},
	"TXS": {modeImplied: 0x9A},
	"TYA": {modeImplied: 0x98},
}

type parsedLine struct {
	lineNo   int
	label    string
	mnemonic string
	operand  string
	equName  string
	equValue string
	org      string
}

// Assembler turns assembly text into a memory image over two passes: the
// first records label addresses and equates, the second encodes.
type Assembler struct {
	symbols map[string]uint16
}

func NewAssembler() *Assembler {
	return &Assembler{symbols: make(map[string]uint16)}
}

// Assemble is shorthand for NewAssembler().Assemble.
func Assemble(code string) ([]byte, map[uint16]int, error) {
	return NewAssembler().Assemble(code)
}

// Assemble returns a full 64 KiB image plus a map from instruction
// address back to source line.
func (a *Assembler) Assemble(code string) ([]byte, map[uint16]int, error) {
	lines := strings.Split(code, "\n")
	parsed := make([]parsedLine, 0, len(lines))
	for i, raw := range lines {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, nil, err
		}
		parsed = append(parsed, p)
	}
	if err := a.pass1(parsed); err != nil {
		return nil, nil, err
	}
	return a.pass2(parsed)
}

// Symbol returns a resolved label or equate address.
func (a *Assembler) Symbol(name string) (uint16, bool) {
	v, ok := a.symbols[name]
	return v, ok
}

func (a *Assembler) pass1(lines []parsedLine) error {
	var address uint32
	for _, p := range lines {
		switch {
		case p.equName != "":
			v, err := parseNumber(p.equValue)
			if err != nil {
				return fmt.Errorf("invalid equate value '%s' on line %d", p.equValue, p.lineNo)
			}
			a.symbols[p.equName] = v
			continue
		case p.org != "":
			v, err := parseNumber(p.org)
			if err != nil {
				return fmt.Errorf("invalid origin '%s' on line %d", p.org, p.lineNo)
			}
			address = uint32(v)
			continue
		}
		if p.label != "" {
			if _, exists := a.symbols[p.label]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", p.label, p.lineNo)
			}
			if address > 0xFFFF {
				return fmt.Errorf("label '%s' on line %d points past addressable memory", p.label, p.lineNo)
			}
			a.symbols[p.label] = uint16(address)
		}
		if p.mnemonic == "" {
			continue
		}
		n, err := a.sizeOf(p)
		if err != nil {
			return err
		}
		address += uint32(n)
		if address > MemSize {
			return fmt.Errorf("program too large near line %d", p.lineNo)
		}
	}
	return nil
}

func (a *Assembler) pass2(lines []parsedLine) ([]byte, map[uint16]int, error) {
	mem := make([]byte, MemSize)
	sourceMap := make(map[uint16]int)
	var address uint32
	for _, p := range lines {
		switch {
		case p.equName != "":
			continue
		case p.org != "":
			v, _ := parseNumber(p.org)
			address = uint32(v)
			continue
		}
		if p.mnemonic == "" {
			continue
		}
		sourceMap[uint16(address)] = p.lineNo
		encoded, err := a.encode(p, uint16(address))
		if err != nil {
			return nil, nil, err
		}
		for _, b := range encoded {
			if address >= MemSize {
				return nil, nil, fmt.Errorf("program too large near line %d", p.lineNo)
			}
			mem[address] = b
			address++
		}
	}
	return mem, sourceMap, nil
}

func (a *Assembler) sizeOf(p parsedLine) (int, error) {
	switch p.mnemonic {
	case ".BYTE":
		return 1 + strings.Count(p.operand, ","), nil
	case ".WORD":
		return 2 * (1 + strings.Count(p.operand, ",")), nil
	}
	modes, ok := opcodes[p.mnemonic]
	if !ok {
		return 0, fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
	}
	m, _, err := a.classify(p, false)
	if err != nil {
		return 0, err
	}
	if _, ok := modes[m]; !ok {
		return 0, fmt.Errorf("%s does not support that addressing mode on line %d", p.mnemonic, p.lineNo)
	}
	return modeSize(m), nil
}

func (a *Assembler) encode(p parsedLine, address uint16) ([]byte, error) {
	switch p.mnemonic {
	case ".BYTE":
		var out []byte
		for _, tok := range splitOperands(p.operand) {
			v, err := a.resolve(tok, p.lineNo)
			if err != nil {
				return nil, err
			}
			out = append(out, byte(v))
		}
		return out, nil
	case ".WORD":
		var out []byte
		for _, tok := range splitOperands(p.operand) {
			v, err := a.resolve(tok, p.lineNo)
			if err != nil {
				return nil, err
			}
			out = append(out, byte(v&0xFF), byte(v>>8))
		}
		return out, nil
	}

	m, value, err := a.classify(p, true)
	if err != nil {
		return nil, err
	}
	opcode, ok := opcodes[p.mnemonic][m]
	if !ok {
		return nil, fmt.Errorf("%s does not support that addressing mode on line %d", p.mnemonic, p.lineNo)
	}
	switch modeSize(m) {
	case 1:
		return []byte{opcode}, nil
	case 2:
		if m == modeRelative {
			offset := int(value) - int(address) - 2
			if offset < -128 || offset > 127 {
				return nil, fmt.Errorf("branch target out of range on line %d", p.lineNo)
			}
			return []byte{opcode, byte(offset)}, nil
		}
		return []byte{opcode, byte(value)}, nil
	default:
		return []byte{opcode, byte(value & 0xFF), byte(value >> 8)}, nil
	}
}

// classify determines the addressing mode and, when resolve is set, the
// operand value. Pass 1 calls with resolve false: forward labels are not
// known yet but never affect the mode.
func (a *Assembler) classify(p parsedLine, resolve bool) (addrMode, uint16, error) {
	op := p.operand
	if _, isBranch := opcodes[p.mnemonic][modeRelative]; isBranch {
		var v uint16
		var err error
		if resolve {
			v, err = a.resolve(op, p.lineNo)
		}
		return modeRelative, v, err
	}
	switch {
	case op == "" || strings.EqualFold(op, "A"):
		if _, ok := opcodes[p.mnemonic][modeAccumulator]; ok && op != "" {
			return modeAccumulator, 0, nil
		}
		if op == "" {
			return modeImplied, 0, nil
		}
	case strings.HasPrefix(op, "#"):
		var v uint16
		var err error
		if resolve {
			v, err = a.resolveImmediate(op[1:], p.lineNo)
		}
		return modeImmediate, v, err
	case strings.HasPrefix(op, "("):
		inner := strings.TrimPrefix(op, "(")
		switch {
		case strings.HasSuffix(op, "),Y"):
			inner = strings.TrimSuffix(inner, "),Y")
			v, err := a.resolveIf(resolve, inner, p.lineNo)
			return modeIndirectIndexed, v, err
		case strings.HasSuffix(op, ",X)"):
			inner = strings.TrimSuffix(inner, ",X)")
			v, err := a.resolveIf(resolve, inner, p.lineNo)
			return modeIndexedIndirect, v, err
		case strings.HasSuffix(op, ")"):
			inner = strings.TrimSuffix(inner, ")")
			v, err := a.resolveIf(resolve, inner, p.lineNo)
			return modeIndirect, v, err
		}
		return 0, 0, fmt.Errorf("invalid operand '%s' on line %d", op, p.lineNo)
	}

	base, index, hasIndex := strings.Cut(op, ",")
	zp := isZeroPageOperand(base)
	v, err := a.resolveIf(resolve, base, p.lineNo)
	if err != nil {
		return 0, 0, err
	}
	if hasIndex {
		switch strings.ToUpper(strings.TrimSpace(index)) {
		case "X":
			return pickMode(zp, modeZeroPageX, modeAbsoluteX), v, nil
		case "Y":
			return pickMode(zp, modeZeroPageY, modeAbsoluteY), v, nil
		}
		return 0, 0, fmt.Errorf("invalid index register on line %d", p.lineNo)
	}
	return pickMode(zp, modeZeroPage, modeAbsolute), v, nil
}

func pickMode(zp bool, z, a addrMode) addrMode {
	if zp {
		return z
	}
	return a
}

// isZeroPageOperand matches the emitted convention: two hex digits mean
// zero page, four mean absolute. Symbols always assemble as absolute.
func isZeroPageOperand(tok string) bool {
	return strings.HasPrefix(tok, "$") && len(tok) <= 3
}

func (a *Assembler) resolveIf(resolve bool, tok string, lineNo int) (uint16, error) {
	if !resolve {
		return 0, nil
	}
	return a.resolve(tok, lineNo)
}

// resolveImmediate handles the #<label and #>label byte selectors.
func (a *Assembler) resolveImmediate(tok string, lineNo int) (uint16, error) {
	switch {
	case strings.HasPrefix(tok, "<"):
		v, err := a.resolve(tok[1:], lineNo)
		return v & 0xFF, err
	case strings.HasPrefix(tok, ">"):
		v, err := a.resolve(tok[1:], lineNo)
		return v >> 8, err
	}
	return a.resolve(tok, lineNo)
}

func (a *Assembler) resolve(tok string, lineNo int) (uint16, error) {
	tok = strings.TrimSpace(tok)
	if v, err := parseNumber(tok); err == nil {
		return v, nil
	}
	if addr, ok := a.symbols[tok]; ok {
		return addr, nil
	}
	if isIdentifier(tok) {
		return 0, fmt.Errorf("undefined label '%s' on line %d", tok, lineNo)
	}
	return 0, fmt.Errorf("invalid operand '%s' on line %d", tok, lineNo)
}

func parseNumber(tok string) (uint16, error) {
	tok = strings.TrimSpace(tok)
	var v uint64
	var err error
	switch {
	case strings.HasPrefix(tok, "$"):
		v, err = strconv.ParseUint(tok[1:], 16, 32)
	default:
		v, err = strconv.ParseUint(tok, 0, 32)
	}
	if err != nil {
		return 0, err
	}
	if v > 0xFFFF {
		return 0, fmt.Errorf("value out of range: %s", tok)
	}
	return uint16(v), nil
}

func splitOperands(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}
	line := raw
	if i := strings.Index(line, ";"); i >= 0 {
		line = line[:i]
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return p, nil
	}

	// * = $xxxx origin change
	if strings.HasPrefix(trimmed, "*") {
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "*"))
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "="))
		p.org = rest
		return p, nil
	}

	// labels and equates start in column zero
	if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
		if name, ok := strings.CutSuffix(trimmed, ":"); ok {
			if !isIdentifier(name) {
				return p, fmt.Errorf("invalid label '%s' on line %d", name, lineNo)
			}
			p.label = name
			return p, nil
		}
		if name, value, ok := strings.Cut(trimmed, "="); ok {
			p.equName = strings.TrimSpace(name)
			p.equValue = strings.TrimSpace(value)
			if !isIdentifier(p.equName) {
				return p, fmt.Errorf("invalid equate name '%s' on line %d", p.equName, lineNo)
			}
			return p, nil
		}
		return p, fmt.Errorf("unrecognized line %d: %s", lineNo, trimmed)
	}

	mnemonic, operand, _ := strings.Cut(trimmed, " ")
	p.mnemonic = strings.ToUpper(mnemonic)
	p.operand = strings.TrimSpace(operand)
	return p, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
