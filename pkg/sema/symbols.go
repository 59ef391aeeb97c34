package sema

import "fmt"

// SymbolKind discriminates what a name refers to.
type SymbolKind int

const (
	SymVar SymbolKind = iota
	SymParam
	SymConst
	SymStatic
	SymFunction
	SymAddress
)

func (k SymbolKind) String() string {
	switch k {
	case SymVar:
		return "variable"
	case SymParam:
		return "parameter"
	case SymConst:
		return "constant"
	case SymStatic:
		return "static"
	case SymFunction:
		return "function"
	case SymAddress:
		return "address"
	}
	return "?"
}

// LocKind discriminates SymbolLocation.
type LocKind int

const (
	LocNone LocKind = iota
	LocZeroPage
	LocAbsolute
)

// SymbolLocation is where a symbol's storage lives. Functions and folded
// constants have no location.
type SymbolLocation struct {
	Kind LocKind
	Addr uint16
}

func ZeroPage(addr uint8) SymbolLocation  { return SymbolLocation{Kind: LocZeroPage, Addr: uint16(addr)} }
func Absolute(addr uint16) SymbolLocation { return SymbolLocation{Kind: LocAbsolute, Addr: addr} }

// Operand renders the location as an assembly operand ($xx or $xxxx).
func (l SymbolLocation) Operand() string {
	if l.Kind == LocZeroPage {
		return fmt.Sprintf("$%02X", l.Addr)
	}
	return fmt.Sprintf("$%04X", l.Addr)
}

// SymbolInfo is everything the backend knows about one resolved name.
type SymbolInfo struct {
	Name     string
	Kind     SymbolKind
	Type     Type
	Location SymbolLocation
	Const    *ConstValue // SymConst only
}

// SymbolTable maps global names (functions, statics, addresses, consts) to
// their symbols. Locals and parameters reach the backend through the
// span-keyed resolution map instead.
type SymbolTable struct {
	symbols map[string]*SymbolInfo
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: make(map[string]*SymbolInfo)}
}

func (t *SymbolTable) Define(sym *SymbolInfo) { t.symbols[sym.Name] = sym }

func (t *SymbolTable) Lookup(name string) (*SymbolInfo, bool) {
	sym, ok := t.symbols[name]
	return sym, ok
}

// ConstKind discriminates ConstValue.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstBool
	ConstString
)

// ConstValue is a folded compile-time constant.
type ConstValue struct {
	Kind ConstKind
	Int  int64
	Bool bool
	Str  string
}

func IntConst(v int64) ConstValue   { return ConstValue{Kind: ConstInt, Int: v} }
func BoolConst(v bool) ConstValue   { return ConstValue{Kind: ConstBool, Bool: v} }
func StrConst(s string) ConstValue  { return ConstValue{Kind: ConstString, Str: s} }

// AsInt returns the numeric value, with bools as 0 or 1.
func (c ConstValue) AsInt() int64 {
	if c.Kind == ConstBool {
		if c.Bool {
			return 1
		}
		return 0
	}
	return c.Int
}
