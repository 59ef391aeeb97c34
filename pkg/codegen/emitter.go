package codegen

import (
	"fmt"
	"strings"

	"wisp/pkg/config"
	"wisp/pkg/sema"
)

// Verbosity controls how much commentary the emitter writes. It never
// changes the instructions.
type Verbosity int

const (
	Minimal Verbosity = iota
	Normal
	Verbose
)

// Options configures a generation run.
type Options struct {
	Config    *config.MemoryConfig
	Verbosity Verbosity
}

// shared is the generation state that crosses function boundaries: label
// counters stay unique program-wide and strings dedupe program-wide.
type shared struct {
	info    *sema.ProgramInfo
	opts    Options
	strings *StringCollector
	labelID int
	matchID int
}

// loopLabels is one entry of the loop-context stack break and continue
// resolve against.
type loopLabels struct {
	start string // continue target
	end   string // break target
}

// inlineFrame is one active inline expansion.
type inlineFrame struct {
	suffix   string // appended to asm-block labels to keep them unique
	endLabel string // early returns jump here instead of RTS
}

// Emitter compiles one function body. Output, byte counting and register
// tracking are per function; labels and the string pool come from the
// shared state.
type Emitter struct {
	*shared
	out       strings.Builder
	regs      *RegisterState
	temps     *TempAllocator
	loops     []loopLabels
	inlines   []inlineFrame
	fn        *sema.FunctionMeta
	byteCount int
	sawReturn bool
	lastTerm  bool
}

func newEmitter(sh *shared, fn *sema.FunctionMeta) *Emitter {
	return &Emitter{
		shared: sh,
		regs:   NewRegisterState(),
		temps:  NewTempAllocator(),
		fn:     fn,
	}
}

// newLabel returns a fresh program-unique label.
func (e *Emitter) newLabel() string {
	e.labelID++
	return fmt.Sprintf("L%d", e.labelID)
}

func (e *Emitter) text() string { return e.out.String() }

// line appends one raw output line.
func (e *Emitter) line(format string, args ...any) {
	fmt.Fprintf(&e.out, format, args...)
	e.out.WriteByte('\n')
}

// comment writes a standalone comment at Normal verbosity and above.
func (e *Emitter) comment(format string, args ...any) {
	if e.opts.Verbosity >= Normal {
		e.line("    ; "+format, args...)
	}
}

// vcomment writes a standalone comment only at Verbose.
func (e *Emitter) vcomment(format string, args ...any) {
	if e.opts.Verbosity >= Verbose {
		e.line("    ; "+format, args...)
	}
}

// label emits a label definition. Anything can jump here, so every
// register tracking dies.
func (e *Emitter) label(name string) {
	e.line("%s:", name)
	e.regs.InvalidateAll()
	e.lastTerm = false
}

func (e *Emitter) directive(format string, args ...any) {
	e.line("    "+format, args...)
	e.byteCount += directiveSize(fmt.Sprintf(format, args...))
}

// inst emits one instruction, counts its bytes and updates the register
// model. Every mnemonic the model does not understand conservatively
// invalidates what it may touch.
func (e *Emitter) inst(mnemonic, operand string) {
	if operand == "" {
		e.line("    %s", mnemonic)
	} else {
		e.line("    %s %s", mnemonic, operand)
	}
	e.byteCount += instructionSize(mnemonic, operand)
	e.lastTerm = mnemonic == "RTS" || mnemonic == "RTI" || mnemonic == "JMP"
	e.track(mnemonic, operand)
}

// instf is inst with a formatted operand.
func (e *Emitter) instf(mnemonic, format string, args ...any) {
	e.inst(mnemonic, fmt.Sprintf(format, args...))
}

// track is the one place instruction effects feed the register model.
func (e *Emitter) track(mnemonic, operand string) {
	switch mnemonic {
	case "LDA":
		e.regs.A = operandValue(operand)
	case "LDX":
		e.regs.X = operandValue(operand)
	case "LDY":
		e.regs.Y = operandValue(operand)
	case "STA":
		e.storeEffect(operand, &e.regs.A)
	case "STX":
		e.storeEffect(operand, &e.regs.X)
	case "STY":
		e.storeEffect(operand, &e.regs.Y)
	case "TAX":
		e.regs.X = e.regs.A
	case "TAY":
		e.regs.Y = e.regs.A
	case "TXA":
		e.regs.A = e.regs.X
	case "TYA":
		e.regs.A = e.regs.Y
	case "JSR":
		e.regs.InvalidateAll()
	case "ADC", "SBC", "AND", "ORA", "EOR", "PLA":
		e.regs.A = Unknown()
	case "ASL", "LSR", "ROL", "ROR":
		if operand == "A" || operand == "" {
			e.regs.A = Unknown()
		} else if addr, ok := parseAddr(operand); ok {
			e.regs.InvalidateIfReferences(addr)
		} else {
			e.regs.InvalidateMemory()
		}
	case "INX", "DEX":
		e.regs.X = Unknown()
	case "INY", "DEY":
		e.regs.Y = Unknown()
	case "INC", "DEC":
		if addr, ok := parseAddr(operand); ok {
			e.regs.InvalidateIfReferences(addr)
		} else {
			e.regs.InvalidateMemory()
		}
	case "CLC", "SEC", "CLD", "SED", "CMP", "CPX", "CPY", "BIT", "NOP", "PHA", "PHP":
		// flag ops and stack pushes leave A, X, Y untouched
	case "PLP", "RTS", "RTI", "JMP", "BEQ", "BNE", "BCC", "BCS", "BMI", "BPL", "BVC", "BVS", "BRK":
		// control flow: tracking across the edge is handled at labels
	default:
		e.regs.InvalidateAll()
	}
}

// storeEffect updates the model for a store of reg to operand. A plain
// store means reg now provably equals that memory byte; anything indexed
// or indirect writes somewhere the model cannot name.
func (e *Emitter) storeEffect(operand string, reg *RegValue) {
	addr, ok := parseAddr(operand)
	if !ok {
		e.regs.InvalidateMemory()
		return
	}
	e.regs.InvalidateIfReferences(addr)
	if addr <= 0xFF {
		*reg = FromZP(uint8(addr))
	} else {
		*reg = FromAbs(addr)
	}
}

// operandValue interprets a load operand for the register model.
func operandValue(operand string) RegValue {
	if strings.HasPrefix(operand, "#$") {
		var v int64
		if _, err := fmt.Sscanf(operand, "#$%X", &v); err == nil {
			return Imm(v)
		}
		return Unknown()
	}
	if addr, ok := parseAddr(operand); ok {
		if addr <= 0xFF {
			return FromZP(uint8(addr))
		}
		return FromAbs(addr)
	}
	return Unknown()
}

// parseAddr reads a plain $xx or $xxxx operand. Indexed, indirect,
// immediate and symbolic operands return false.
func parseAddr(operand string) (uint16, bool) {
	if !strings.HasPrefix(operand, "$") || strings.ContainsAny(operand, ",()") {
		return 0, false
	}
	var v uint32
	if _, err := fmt.Sscanf(operand, "$%X", &v); err != nil || v > 0xFFFF {
		return 0, false
	}
	return uint16(v), true
}

//  Load helpers. These consult the register model and skip loads the
//  registers already satisfy.

func (e *Emitter) loadAImm(v int64) {
	if e.regs.A.Equal(Imm(v)) {
		return
	}
	e.instf("LDA", "#$%02X", v&0xFF)
}

func (e *Emitter) loadXImm(v int64) {
	if e.regs.X.Equal(Imm(v)) {
		return
	}
	e.instf("LDX", "#$%02X", v&0xFF)
}

func (e *Emitter) loadYImm(v int64) {
	if e.regs.Y.Equal(Imm(v)) {
		return
	}
	e.instf("LDY", "#$%02X", v&0xFF)
}

func (e *Emitter) loadA(loc sema.SymbolLocation) {
	want := FromAbs(loc.Addr)
	if loc.Kind == sema.LocZeroPage {
		want = FromZP(uint8(loc.Addr))
	}
	if e.regs.A.Equal(want) {
		return
	}
	e.inst("LDA", loc.Operand())
}

func (e *Emitter) loadY(loc sema.SymbolLocation) {
	want := FromAbs(loc.Addr)
	if loc.Kind == sema.LocZeroPage {
		want = FromZP(uint8(loc.Addr))
	}
	if e.regs.Y.Equal(want) {
		return
	}
	e.inst("LDY", loc.Operand())
}

func (e *Emitter) storeA(loc sema.SymbolLocation) { e.inst("STA", loc.Operand()) }

//  Loop context

func (e *Emitter) pushLoop(start, end string) {
	e.loops = append(e.loops, loopLabels{start: start, end: end})
}

func (e *Emitter) popLoop() {
	e.loops = e.loops[:len(e.loops)-1]
}

func (e *Emitter) currentLoop() (loopLabels, bool) {
	if len(e.loops) == 0 {
		return loopLabels{}, false
	}
	return e.loops[len(e.loops)-1], true
}

//  Inline expansion context

func (e *Emitter) pushInline(endLabel string) {
	e.labelID++
	e.inlines = append(e.inlines, inlineFrame{
		suffix:   fmt.Sprintf("_i%d", e.labelID),
		endLabel: endLabel,
	})
}

func (e *Emitter) popInline() {
	e.inlines = e.inlines[:len(e.inlines)-1]
}

func (e *Emitter) inlining() bool { return len(e.inlines) > 0 }

func (e *Emitter) currentInline() inlineFrame {
	return e.inlines[len(e.inlines)-1]
}
