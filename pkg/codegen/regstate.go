package codegen

import "fmt"

// RegValueKind discriminates RegValue.
type RegValueKind int

const (
	RegUnknown RegValueKind = iota
	RegImm                  // register holds a known constant
	RegZP                   // register holds the contents of a zero-page byte
	RegAbs                  // register holds the contents of an absolute address
)

// RegValue is what the compiler can prove a register holds at the current
// emission point.
type RegValue struct {
	Kind RegValueKind
	Imm  int64
	Addr uint16
}

func Unknown() RegValue        { return RegValue{Kind: RegUnknown} }
func Imm(v int64) RegValue     { return RegValue{Kind: RegImm, Imm: v & 0xFF} }
func FromZP(a uint8) RegValue  { return RegValue{Kind: RegZP, Addr: uint16(a)} }
func FromAbs(a uint16) RegValue { return RegValue{Kind: RegAbs, Addr: a} }

// Equal reports whether two tracked values are provably the same. Unknown
// never equals anything, itself included.
func (v RegValue) Equal(o RegValue) bool {
	if v.Kind == RegUnknown || o.Kind == RegUnknown {
		return false
	}
	return v == o
}

// References reports whether the tracked value depends on the given
// memory byte.
func (v RegValue) References(addr uint16) bool {
	return (v.Kind == RegZP || v.Kind == RegAbs) && v.Addr == addr
}

func (v RegValue) String() string {
	switch v.Kind {
	case RegImm:
		return fmt.Sprintf("#$%02X", v.Imm)
	case RegZP:
		return fmt.Sprintf("[$%02X]", v.Addr)
	case RegAbs:
		return fmt.Sprintf("[$%04X]", v.Addr)
	}
	return "?"
}

// RegisterState tracks what A, X and Y hold so the emitter can skip loads
// that would be no-ops. The tracking is conservative: any instruction
// whose effect on a register is not modeled, any label (a possible jump
// target) and any subroutine call drop back to unknown.
type RegisterState struct {
	A RegValue
	X RegValue
	Y RegValue
}

func NewRegisterState() *RegisterState {
	return &RegisterState{A: Unknown(), X: Unknown(), Y: Unknown()}
}

// InvalidateAll forgets everything. Called at labels, calls and any point
// where control can merge.
func (s *RegisterState) InvalidateAll() {
	s.A, s.X, s.Y = Unknown(), Unknown(), Unknown()
}

// InvalidateIfReferences forgets any register whose tracked value reads
// the given address. Called when memory is written through a path the
// tracker cannot see (indexed or indirect stores).
func (s *RegisterState) InvalidateIfReferences(addr uint16) {
	if s.A.References(addr) {
		s.A = Unknown()
	}
	if s.X.References(addr) {
		s.X = Unknown()
	}
	if s.Y.References(addr) {
		s.Y = Unknown()
	}
}

// InvalidateMemory forgets every memory-sourced tracking. Called when a
// write lands at an address the tracker cannot resolve at all.
func (s *RegisterState) InvalidateMemory() {
	if s.A.Kind == RegZP || s.A.Kind == RegAbs {
		s.A = Unknown()
	}
	if s.X.Kind == RegZP || s.X.Kind == RegAbs {
		s.X = Unknown()
	}
	if s.Y.Kind == RegZP || s.Y.Kind == RegAbs {
		s.Y = Unknown()
	}
}
