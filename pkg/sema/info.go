package sema

import "wisp/pkg/ast"

// FunctionMeta is the per-function record the backend plans placement and
// calls from.
type FunctionMeta struct {
	Name       string
	Params     []*SymbolInfo
	ReturnType Type
	Body       *ast.Block

	// Locals maps local variable names to their symbols, for inline
	// assembly {name} substitution.
	Locals map[string]*SymbolInfo

	// Placement. Org takes precedence over Section; with neither the
	// function goes to the configured default section.
	Org     *uint16
	Section string

	// Attributes.
	Inline    bool
	Interrupt bool // IRQ/BRK handler: save registers, return with RTI
	NMI       bool
	Reset     bool

	// TailRecursive marks functions whose only self-calls sit in tail
	// position; the backend turns those calls into parameter updates and
	// a jump back to the function head.
	TailRecursive bool
}

// HandlesInterrupt reports whether the function needs the register
// save/restore prologue and an RTI epilogue.
func (m *FunctionMeta) HandlesInterrupt() bool { return m.Interrupt || m.NMI }

// ParamBytes is the total zero-page bytes the parameter block occupies.
func (m *FunctionMeta) ParamBytes(reg *TypeRegistry) int {
	n := 0
	for _, p := range m.Params {
		n += reg.SizeOf(p.Type)
	}
	return n
}

// ProgramInfo is the analyzed program: the tree plus every side table the
// semantic pass produced. The backend treats all of it as read-only.
type ProgramInfo struct {
	Table    *SymbolTable
	Registry *TypeRegistry

	// Span-keyed resolution results.
	Symbols map[ast.Span]*SymbolInfo // identifier uses -> symbol
	Types   map[ast.Span]Type        // expression -> resolved type
	Consts  map[ast.Span]ConstValue  // expression -> folded value

	Functions map[string]*FunctionMeta

	// Unreachable marks statements the analysis proved can never execute
	// (code after a return, arms after an always-true condition). The
	// backend emits nothing for them.
	Unreachable map[ast.Span]bool
}

func NewProgramInfo() *ProgramInfo {
	return &ProgramInfo{
		Table:       NewSymbolTable(),
		Registry:    NewTypeRegistry(),
		Symbols:     make(map[ast.Span]*SymbolInfo),
		Types:       make(map[ast.Span]Type),
		Consts:      make(map[ast.Span]ConstValue),
		Functions:   make(map[string]*FunctionMeta),
		Unreachable: make(map[ast.Span]bool),
	}
}

// TypeOf returns the resolved type of an expression, or void when the
// analysis recorded none.
func (p *ProgramInfo) TypeOf(e ast.Expr) Type {
	if t, ok := p.Types[e.Pos()]; ok {
		return t
	}
	return Void()
}

// SymbolOf returns the symbol an identifier use resolved to.
func (p *ProgramInfo) SymbolOf(e ast.Expr) (*SymbolInfo, bool) {
	sym, ok := p.Symbols[e.Pos()]
	return sym, ok
}

// ConstOf returns the folded constant value of an expression, if any.
func (p *ProgramInfo) ConstOf(e ast.Expr) (ConstValue, bool) {
	c, ok := p.Consts[e.Pos()]
	return c, ok
}
