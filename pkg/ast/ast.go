// Package ast defines the syntax tree the code generator consumes.
//
// The tree arrives fully analyzed: names are resolved, types are known and
// constants are folded by the semantic pass, which records its results in
// side tables keyed by node span. The backend never walks back into source
// text.
package ast

import "fmt"

// Span identifies a node by its byte range in the original source. It is
// the key the semantic side tables are indexed by, so two distinct nodes
// never share a span.
type Span struct {
	Start int
	End   int
}

func (s Span) String() string { return fmt.Sprintf("%d..%d", s.Start, s.End) }

// Node is implemented by every syntax-tree node.
type Node interface {
	Pos() Span
}

//  Expression nodes

// Expr is implemented by every node that produces a value.
type Expr interface {
	Node
	exprNode()
}

// IntLit is an integer constant.
//
//	let x: u8 = 10;
//	            ^^  IntLit{Value: 10}
type IntLit struct {
	Span  Span
	Value int64
}

// BoolLit is `true` or `false`.
type BoolLit struct {
	Span  Span
	Value bool
}

// StringLit is a string constant "...".
type StringLit struct {
	Span  Span
	Value string
}

// ArrayLit represents [expr, expr, ...].
type ArrayLit struct {
	Span  Span
	Elems []Expr
}

// ArrayFill represents [value; count], an array of count copies of value.
type ArrayFill struct {
	Span  Span
	Value Expr
	Count int
}

// VarRef is a read of a named variable, parameter, constant or function.
type VarRef struct {
	Span Span
	Name string
}

// Binary represents Left Op Right. And/Or short-circuit during code
// generation; every other operator evaluates both sides.
type Binary struct {
	Span  Span
	Op    BinOp
	Left  Expr
	Right Expr
}

// Unary represents Op Operand (-x, !x, ~x).
type Unary struct {
	Span    Span
	Op      UnOp
	Operand Expr
}

// Call represents name(args). Whether it becomes a JSR, an inline
// expansion or a tail-recursive jump is decided by the backend from the
// callee's metadata.
type Call struct {
	Span Span
	Name string
	Args []Expr
}

// Cast represents value as T. The target type is the resolved type of the
// cast node itself; the source type is the resolved type of Value.
type Cast struct {
	Span  Span
	Value Expr
}

// Index represents base[index].
type Index struct {
	Span  Span
	Base  Expr
	Index Expr
}

// Field represents base.name for struct field access.
type Field struct {
	Span Span
	Base Expr
	Name string
}

// StructLit represents Name { field: value, ... }.
type StructLit struct {
	Span   Span
	Name   string
	Fields []FieldInit
}

// FieldInit is one field initializer inside a StructLit.
type FieldInit struct {
	Name  string
	Value Expr
}

// EnumLit represents Enum::Variant or Enum::Variant(args).
type EnumLit struct {
	Span    Span
	Enum    string
	Variant string
	Args    []Expr
}

// ByteOf represents value.low or value.high on a 16-bit operand.
type ByteOf struct {
	Span  Span
	Value Expr
	High  bool
}

// LenOf represents value.len on a string or array operand.
type LenOf struct {
	Span  Span
	Value Expr
}

// FlagRead reads a CPU status flag as a bool, e.g. after a hardware call.
type FlagRead struct {
	Span Span
	Flag Flag
}

func (e *IntLit) exprNode()    {}
func (e *BoolLit) exprNode()   {}
func (e *StringLit) exprNode() {}
func (e *ArrayLit) exprNode()  {}
func (e *ArrayFill) exprNode() {}
func (e *VarRef) exprNode()    {}
func (e *Binary) exprNode()    {}
func (e *Unary) exprNode()     {}
func (e *Call) exprNode()      {}
func (e *Cast) exprNode()      {}
func (e *Index) exprNode()     {}
func (e *Field) exprNode()     {}
func (e *StructLit) exprNode() {}
func (e *EnumLit) exprNode()   {}
func (e *ByteOf) exprNode()    {}
func (e *LenOf) exprNode()     {}
func (e *FlagRead) exprNode()  {}

func (e *IntLit) Pos() Span    { return e.Span }
func (e *BoolLit) Pos() Span   { return e.Span }
func (e *StringLit) Pos() Span { return e.Span }
func (e *ArrayLit) Pos() Span  { return e.Span }
func (e *ArrayFill) Pos() Span { return e.Span }
func (e *VarRef) Pos() Span    { return e.Span }
func (e *Binary) Pos() Span    { return e.Span }
func (e *Unary) Pos() Span     { return e.Span }
func (e *Call) Pos() Span      { return e.Span }
func (e *Cast) Pos() Span      { return e.Span }
func (e *Index) Pos() Span     { return e.Span }
func (e *Field) Pos() Span     { return e.Span }
func (e *StructLit) Pos() Span { return e.Span }
func (e *EnumLit) Pos() Span   { return e.Span }
func (e *ByteOf) Pos() Span    { return e.Span }
func (e *LenOf) Pos() Span     { return e.Span }
func (e *FlagRead) Pos() Span  { return e.Span }

// BinOp enumerates binary operators.
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	BitAnd
	BitOr
	BitXor
	Shl
	Shr
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	And
	Or
)

func (op BinOp) String() string {
	switch op {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	case Mod:
		return "%"
	case BitAnd:
		return "&"
	case BitOr:
		return "|"
	case BitXor:
		return "^"
	case Shl:
		return "<<"
	case Shr:
		return ">>"
	case Eq:
		return "=="
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	case And:
		return "&&"
	case Or:
		return "||"
	}
	return "?"
}

// IsComparison reports whether op produces a bool from two numeric operands.
func (op BinOp) IsComparison() bool {
	switch op {
	case Eq, Ne, Lt, Le, Gt, Ge:
		return true
	}
	return false
}

// UnOp enumerates unary operators.
type UnOp int

const (
	Neg UnOp = iota // -x
	Not             // !x
	BitNot          // ~x
)

func (op UnOp) String() string {
	switch op {
	case Neg:
		return "-"
	case Not:
		return "!"
	case BitNot:
		return "~"
	}
	return "?"
}

// Flag enumerates the readable CPU status flags.
type Flag int

const (
	FlagCarry Flag = iota
	FlagZero
	FlagNegative
	FlagOverflow
)

func (f Flag) String() string {
	switch f {
	case FlagCarry:
		return "carry"
	case FlagZero:
		return "zero"
	case FlagNegative:
		return "negative"
	case FlagOverflow:
		return "overflow"
	}
	return "?"
}

//  Statement nodes

// Stmt is implemented by every statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Block is a brace-delimited statement list.
type Block struct {
	Span  Span
	Stmts []Stmt
}

// VarDecl declares a local variable, optionally with an initializer.
//
//	let x: u8 = 10;
type VarDecl struct {
	Span  Span
	Name  string
	Value Expr // nil when declared without an initializer
}

// Assign stores Value into Target. Target is a VarRef, Index or Field.
type Assign struct {
	Span   Span
	Target Expr
	Value  Expr
}

// ExprStmt evaluates an expression for its side effects (typically a call).
type ExprStmt struct {
	Span Span
	Expr Expr
}

// Return exits the current function, with an optional value.
type Return struct {
	Span  Span
	Value Expr // nil for a bare return
}

// If is a conditional with an optional else arm. Else is a *Block or
// another *If (else-if chain), or nil.
type If struct {
	Span Span
	Cond Expr
	Then *Block
	Else Stmt
}

// While loops while Cond holds.
type While struct {
	Span Span
	Cond Expr
	Body *Block
}

// Loop loops forever; only break leaves it.
type Loop struct {
	Span Span
	Body *Block
}

// For iterates a named counter over a numeric range.
//
//	for i in 0..10 { ... }       Inclusive: false
//	for i in 0..=9 { ... }       Inclusive: true
type For struct {
	Span      Span
	Var       string
	From      Expr
	To        Expr
	Inclusive bool
	Body      *Block
}

// ForEach iterates a named element variable over an array.
type ForEach struct {
	Span Span
	Var  string
	Iter Expr
	Body *Block
}

// Match dispatches on a scrutinee value over ordered arms.
type Match struct {
	Span      Span
	Scrutinee Expr
	Arms      []MatchArm
}

// MatchArm pairs a pattern with its body.
type MatchArm struct {
	Pattern Pattern
	Body    *Block
}

// Break leaves the innermost enclosing loop.
type Break struct {
	Span Span
}

// Continue restarts the innermost enclosing loop.
type Continue struct {
	Span Span
}

// Asm is an inline assembly block. Occurrences of {name} in a line are
// replaced by the address of the local or parameter with that name.
type Asm struct {
	Span  Span
	Lines []string
}

func (s *Block) stmtNode()    {}
func (s *VarDecl) stmtNode()  {}
func (s *Assign) stmtNode()   {}
func (s *ExprStmt) stmtNode() {}
func (s *Return) stmtNode()   {}
func (s *If) stmtNode()       {}
func (s *While) stmtNode()    {}
func (s *Loop) stmtNode()     {}
func (s *For) stmtNode()      {}
func (s *ForEach) stmtNode()  {}
func (s *Match) stmtNode()    {}
func (s *Break) stmtNode()    {}
func (s *Continue) stmtNode() {}
func (s *Asm) stmtNode()      {}

func (s *Block) Pos() Span    { return s.Span }
func (s *VarDecl) Pos() Span  { return s.Span }
func (s *Assign) Pos() Span   { return s.Span }
func (s *ExprStmt) Pos() Span { return s.Span }
func (s *Return) Pos() Span   { return s.Span }
func (s *If) Pos() Span       { return s.Span }
func (s *While) Pos() Span    { return s.Span }
func (s *Loop) Pos() Span     { return s.Span }
func (s *For) Pos() Span      { return s.Span }
func (s *ForEach) Pos() Span  { return s.Span }
func (s *Match) Pos() Span    { return s.Span }
func (s *Break) Pos() Span    { return s.Span }
func (s *Continue) Pos() Span { return s.Span }
func (s *Asm) Pos() Span      { return s.Span }

//  Patterns

// Pattern is one arm pattern of a match statement.
type Pattern interface {
	patternNode()
}

// LitPattern matches an exact constant value.
type LitPattern struct {
	Value int64
}

// RangePattern matches Lo..=Hi inclusive.
type RangePattern struct {
	Lo int64
	Hi int64
}

// WildcardPattern matches anything and binds nothing.
type WildcardPattern struct{}

// BindPattern matches anything and binds the value to Name.
type BindPattern struct {
	Name string
}

// VariantPattern matches an enum variant, binding its payload fields.
type VariantPattern struct {
	Enum     string
	Variant  string
	Bindings []string
}

func (*LitPattern) patternNode()      {}
func (*RangePattern) patternNode()    {}
func (*WildcardPattern) patternNode() {}
func (*BindPattern) patternNode()     {}
func (*VariantPattern) patternNode()  {}

//  Items

// Item is a top-level declaration.
type Item interface {
	Node
	itemNode()
}

// Function is a function definition.
type Function struct {
	Span   Span
	Name   string
	Params []Param
	Body   *Block
	Attrs  []Attr
}

// Param is one function parameter. Its type and zero-page location come
// from the symbol table.
type Param struct {
	Span Span
	Name string
}

// Static is a top-level variable. Mutable statics are emitted as
// initialized data; immutable ones fold away during analysis.
type Static struct {
	Span    Span
	Name    string
	Value   Expr
	Mutable bool
}

// AddressDecl binds a name to a fixed hardware address, emitted as an
// assembler equate.
type AddressDecl struct {
	Span Span
	Name string
	Addr uint16
}

// StructDecl and EnumDecl carry no code; the backend reads their shapes
// from the type registry instead.
type StructDecl struct {
	Span Span
	Name string
}

type EnumDecl struct {
	Span Span
	Name string
}

func (*Function) itemNode()    {}
func (*Static) itemNode()      {}
func (*AddressDecl) itemNode() {}
func (*StructDecl) itemNode()  {}
func (*EnumDecl) itemNode()    {}

func (i *Function) Pos() Span    { return i.Span }
func (i *Static) Pos() Span     { return i.Span }
func (i *AddressDecl) Pos() Span { return i.Span }
func (i *StructDecl) Pos() Span  { return i.Span }
func (i *EnumDecl) Pos() Span    { return i.Span }

// Program is a whole compilation unit.
type Program struct {
	Items []Item
}

// HasAttr reports whether the function carries an attribute of the given kind.
func (f *Function) HasAttr(kind AttrKind) bool {
	for _, a := range f.Attrs {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// Attr is a function attribute.
type Attr struct {
	Kind    AttrKind
	Addr    uint16 // AttrOrg
	Section string // AttrSection
}

// AttrKind enumerates function attributes.
type AttrKind int

const (
	AttrOrg AttrKind = iota
	AttrSection
	AttrInline
	AttrInterrupt
	AttrNMI
	AttrIRQ
	AttrReset
)
