package codegen

import (
	"fmt"
	"strings"

	"wisp/pkg/ast"
	"wisp/pkg/sema"
)

// unrollThreshold is the largest constant iteration count a for loop is
// unrolled for. Beyond it the loop form is smaller.
const unrollThreshold = 8

func (e *Emitter) genBlock(b *ast.Block) error {
	for _, s := range b.Stmts {
		if err := e.genStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) genStmt(s ast.Stmt) error {
	if e.info.Unreachable[s.Pos()] {
		return nil
	}
	switch n := s.(type) {
	case *ast.Block:
		return e.genBlock(n)
	case *ast.VarDecl:
		return e.genVarDecl(n)
	case *ast.Assign:
		return e.genAssign(n)
	case *ast.ExprStmt:
		return e.genExpr(n.Expr)
	case *ast.Return:
		return e.genReturn(n)
	case *ast.If:
		return e.genIf(n)
	case *ast.While:
		return e.genWhile(n)
	case *ast.Loop:
		return e.genLoop(n)
	case *ast.For:
		return e.genFor(n)
	case *ast.ForEach:
		return e.genForEach(n)
	case *ast.Match:
		return e.genMatch(n)
	case *ast.Break:
		loop, ok := e.currentLoop()
		if !ok {
			return unsupported("break", "outside a loop")
		}
		e.inst("JMP", loop.end)
		return nil
	case *ast.Continue:
		loop, ok := e.currentLoop()
		if !ok {
			return unsupported("continue", "outside a loop")
		}
		e.inst("JMP", loop.start)
		return nil
	case *ast.Asm:
		return e.genAsm(n)
	}
	return unsupported("statement", "%T", s)
}

// localSymbol resolves a name in the current function: locals first, then
// parameters, then globals.
func (e *Emitter) localSymbol(name string) (*sema.SymbolInfo, bool) {
	if e.fn != nil {
		if sym, ok := e.fn.Locals[name]; ok {
			return sym, true
		}
		for _, p := range e.fn.Params {
			if p.Name == name {
				return p, true
			}
		}
	}
	return e.info.Table.Lookup(name)
}

func (e *Emitter) genVarDecl(n *ast.VarDecl) error {
	sym, ok := e.info.Symbols[n.Pos()]
	if !ok {
		if sym, ok = e.localSymbol(n.Name); !ok {
			return &SymbolNotFoundError{Name: n.Name}
		}
	}
	if n.Value == nil {
		return nil
	}
	e.comment("let %s", n.Name)
	switch init := n.Value.(type) {
	case *ast.ArrayLit:
		return e.genArrayInit(sym, init.Elems)
	case *ast.ArrayFill:
		return e.genArrayFill(sym, init)
	case *ast.StructLit:
		return e.genStructInit(sym, init)
	case *ast.EnumLit:
		return e.genEnumInit(sym, init)
	}
	if err := e.genExpr(n.Value); err != nil {
		return err
	}
	// widening store: an 8-bit initializer for a 16-bit slot zero-extends
	if sym.Type.Is16Bit() && !e.info.TypeOf(n.Value).Is16Bit() {
		e.loadYImm(0)
	}
	e.storeScalar(sym.Location, sym.Type)
	return nil
}

func (e *Emitter) genArrayInit(sym *sema.SymbolInfo, elems []ast.Expr) error {
	if sym.Type.Kind != sema.TypeArray {
		return unsupported("array initializer", "for %s", sym.Type)
	}
	elem := *sym.Type.Elem
	size := e.info.Registry.SizeOf(elem)
	for i, el := range elems {
		if err := e.genExpr(el); err != nil {
			return err
		}
		e.storeScalar(offsetLoc(sym.Location, i*size), elem)
	}
	return nil
}

// genArrayFill initializes every element to the same value. A constant
// fill with a small array stores element by element; longer arrays loop.
func (e *Emitter) genArrayFill(sym *sema.SymbolInfo, n *ast.ArrayFill) error {
	if sym.Type.Kind != sema.TypeArray {
		return unsupported("array fill", "for %s", sym.Type)
	}
	elem := *sym.Type.Elem
	size := e.info.Registry.SizeOf(elem)
	if err := e.genExpr(n.Value); err != nil {
		return err
	}
	if n.Count <= unrollThreshold || size != 1 {
		for i := 0; i < n.Count; i++ {
			e.storeScalar(offsetLoc(sym.Location, i*size), elem)
		}
		return nil
	}
	loop := e.newLabel()
	e.loadXImm(int64(n.Count - 1))
	e.label(loop)
	if sym.Location.Kind == sema.LocZeroPage {
		e.instf("STA", "$%02X,X", sym.Location.Addr)
	} else {
		e.instf("STA", "$%04X,X", sym.Location.Addr)
	}
	e.inst("DEX", "")
	e.inst("BPL", loop)
	e.regs.InvalidateAll()
	return nil
}

func (e *Emitter) genStructInit(sym *sema.SymbolInfo, n *ast.StructLit) error {
	def, ok := e.info.Registry.Structs[n.Name]
	if !ok {
		return &SymbolNotFoundError{Name: n.Name}
	}
	for _, fi := range n.Fields {
		f := def.Field(fi.Name)
		if f == nil {
			return &SymbolNotFoundError{Name: n.Name + "." + fi.Name}
		}
		if err := e.genExpr(fi.Value); err != nil {
			return err
		}
		e.storeScalar(offsetLoc(sym.Location, f.Offset), f.Type)
	}
	return nil
}

// genEnumInit writes the tag byte and the variant payload.
func (e *Emitter) genEnumInit(sym *sema.SymbolInfo, n *ast.EnumLit) error {
	def, ok := e.info.Registry.Enums[n.Enum]
	if !ok {
		return &SymbolNotFoundError{Name: n.Enum}
	}
	v := def.Variant(n.Variant)
	if v == nil {
		return &SymbolNotFoundError{Name: n.Enum + "::" + n.Variant}
	}
	e.loadAImm(int64(v.Tag))
	e.storeA(sym.Location)
	for i, arg := range n.Args {
		if err := e.genExpr(arg); err != nil {
			return err
		}
		e.storeScalar(offsetLoc(sym.Location, v.Offsets[i]), v.Payload[i])
	}
	return nil
}

func (e *Emitter) genAssign(n *ast.Assign) error {
	if target, ok := n.Target.(*ast.VarRef); ok {
		if done, err := e.genIncDec(target, n.Value); done || err != nil {
			return err
		}
	}
	if loc, t, ok := e.staticLoc(n.Target); ok {
		if err := e.genExpr(n.Value); err != nil {
			return err
		}
		if t.Is16Bit() && !e.info.TypeOf(n.Value).Is16Bit() {
			e.loadYImm(0)
		}
		e.storeScalar(loc, t)
		return nil
	}
	if idx, ok := n.Target.(*ast.Index); ok {
		return e.genIndexAssign(idx, n.Value)
	}
	return unsupported("assignment", "target %T", n.Target)
}

// genIncDec recognizes x = x + 1 and x = x - 1 on stored integers and
// emits INC/DEC instead of a load-modify-store round trip.
func (e *Emitter) genIncDec(target *ast.VarRef, value ast.Expr) (bool, error) {
	bin, ok := value.(*ast.Binary)
	if !ok || (bin.Op != ast.Add && bin.Op != ast.Sub) {
		return false, nil
	}
	left, ok := bin.Left.(*ast.VarRef)
	if !ok || left.Name != target.Name {
		return false, nil
	}
	if c, ok := e.constOf(bin.Right); !ok || c != 1 {
		return false, nil
	}
	sym, ok := e.info.SymbolOf(target)
	if !ok || sym.Location.Kind == sema.LocNone || sym.Type.IsBCD() {
		return false, nil
	}
	op := "INC"
	if bin.Op == ast.Sub {
		op = "DEC"
	}
	if !sym.Type.Is16Bit() {
		e.inst(op, sym.Location.Operand())
		return true, nil
	}
	if bin.Op == ast.Add {
		skip := e.newLabel()
		e.inst("INC", sym.Location.Operand())
		e.inst("BNE", skip)
		e.inst("INC", locPlus(sym.Location, 1))
		e.label(skip)
	} else {
		skip := e.newLabel()
		e.inst("LDA", sym.Location.Operand())
		e.inst("BNE", skip)
		e.inst("DEC", locPlus(sym.Location, 1))
		e.label(skip)
		e.inst("DEC", sym.Location.Operand())
	}
	return true, nil
}

// genIndexAssign stores through a computed element address.
func (e *Emitter) genIndexAssign(idx *ast.Index, value ast.Expr) error {
	baseType := e.info.TypeOf(idx.Base)
	if baseType.Kind != sema.TypeArray {
		return unsupported("index assignment", "into %s", baseType)
	}
	elem := *baseType.Elem
	size := e.info.Registry.SizeOf(elem)
	if size != 1 && size != 2 {
		return unsupported("index assignment", "element size %d", size)
	}
	if err := e.genExpr(value); err != nil {
		return err
	}
	// the value rides the stack: the index expression is free to use any
	// scratch byte, including the divide and multiply temporaries
	e.inst("PHA", "")
	if elem.Is16Bit() {
		e.inst("TYA", "")
		e.inst("PHA", "")
	}
	p, err := e.setupPointer(idx.Base)
	if err != nil {
		return err
	}
	if err := e.genExpr(idx.Index); err != nil {
		return err
	}
	if size == 2 {
		e.inst("ASL", "A")
	}
	e.inst("TAY", "")
	if elem.Is16Bit() {
		e.inst("PLA", "")
		e.inst("INY", "")
		e.instf("STA", "($%02X),Y", p)
		e.inst("DEY", "")
	}
	e.inst("PLA", "")
	e.instf("STA", "($%02X),Y", p)
	e.regs.InvalidateMemory()
	return nil
}

func (e *Emitter) genReturn(n *ast.Return) error {
	// a tail self-call becomes a parameter update and a jump to the head
	if call, ok := tailSelfCall(n, e.fn); ok && !e.inlining() {
		return e.genTailUpdate(call, e.fn)
	}
	if n.Value != nil {
		if err := e.genExpr(n.Value); err != nil {
			return err
		}
	}
	if e.inlining() {
		e.inst("JMP", e.currentInline().endLabel)
		return nil
	}
	e.epilogue()
	return nil
}

func tailSelfCall(n *ast.Return, fn *sema.FunctionMeta) (*ast.Call, bool) {
	if fn == nil || !fn.TailRecursive || n.Value == nil {
		return nil, false
	}
	call, ok := n.Value.(*ast.Call)
	if !ok || call.Name != fn.Name {
		return nil, false
	}
	return call, true
}

// epilogue emits the function exit: interrupt handlers restore what the
// prologue saved and return with RTI.
func (e *Emitter) epilogue() {
	if e.fn != nil && e.fn.HandlesInterrupt() {
		e.inst("PLA", "")
		e.inst("TAY", "")
		e.inst("PLA", "")
		e.inst("TAX", "")
		e.inst("PLA", "")
		e.inst("RTI", "")
		return
	}
	e.inst("RTS", "")
}

func (e *Emitter) genCondBranchToFalse(cond ast.Expr, falseL string) error {
	if err := e.genExpr(cond); err != nil {
		return err
	}
	e.inst("CMP", "#$00")
	e.inst("BEQ", falseL)
	return nil
}

func (e *Emitter) genIf(n *ast.If) error {
	elseL := e.newLabel()
	if err := e.genCondBranchToFalse(n.Cond, elseL); err != nil {
		return err
	}
	if n.Else == nil {
		if err := e.genBlock(n.Then); err != nil {
			return err
		}
		e.label(elseL)
		return nil
	}
	endL := e.newLabel()
	if err := e.genBlock(n.Then); err != nil {
		return err
	}
	e.inst("JMP", endL)
	e.label(elseL)
	if err := e.genStmt(n.Else); err != nil {
		return err
	}
	e.label(endL)
	return nil
}

func (e *Emitter) genWhile(n *ast.While) error {
	start := e.newLabel()
	end := e.newLabel()
	e.pushLoop(start, end)
	defer e.popLoop()
	e.label(start)
	if err := e.genCondBranchToFalse(n.Cond, end); err != nil {
		return err
	}
	if err := e.genBlock(n.Body); err != nil {
		return err
	}
	e.inst("JMP", start)
	e.label(end)
	return nil
}

func (e *Emitter) genLoop(n *ast.Loop) error {
	start := e.newLabel()
	end := e.newLabel()
	e.pushLoop(start, end)
	defer e.popLoop()
	e.label(start)
	if err := e.genBlock(n.Body); err != nil {
		return err
	}
	e.inst("JMP", start)
	e.label(end)
	return nil
}

func (e *Emitter) genFor(n *ast.For) error {
	sym, ok := e.localSymbol(n.Var)
	if !ok {
		return &SymbolNotFoundError{Name: n.Var}
	}
	if from, okF := e.constOf(n.From); okF {
		if to, okT := e.constOf(n.To); okT {
			count := to - from
			if n.Inclusive {
				count++
			}
			if count >= 0 && count <= unrollThreshold && !containsLoopExit(n.Body) {
				return e.genForUnrolled(n, sym, from, count)
			}
		}
	}

	if err := e.genExpr(n.From); err != nil {
		return err
	}
	e.storeA(sym.Location)
	if err := e.genExpr(n.To); err != nil {
		return err
	}
	e.instf("STA", "$%02X", LoopEndTemp)

	start := e.newLabel()
	body := e.newLabel()
	cont := e.newLabel()
	end := e.newLabel()
	e.pushLoop(cont, end)
	defer e.popLoop()
	e.label(start)
	e.loadA(sym.Location)
	e.instf("CMP", "$%02X", LoopEndTemp)
	if n.Inclusive {
		e.inst("BEQ", body)
	}
	e.inst("BCS", end)
	e.label(body)
	if err := e.genBlock(n.Body); err != nil {
		return err
	}
	e.label(cont)
	e.inst("INC", sym.Location.Operand())
	e.inst("JMP", start)
	e.label(end)
	return nil
}

// genForUnrolled expands a small constant-bound loop. Each iteration sees
// the counter as a stored constant.
func (e *Emitter) genForUnrolled(n *ast.For, sym *sema.SymbolInfo, from, count int64) error {
	e.comment("unrolled %d iterations", count)
	for i := int64(0); i < count; i++ {
		e.loadAImm(from + i)
		e.storeA(sym.Location)
		if err := e.genBlock(n.Body); err != nil {
			return err
		}
	}
	return nil
}

// containsLoopExit reports whether the block breaks or continues at its
// own nesting level; such loops keep their loop shape.
func containsLoopExit(b *ast.Block) bool {
	for _, s := range b.Stmts {
		switch n := s.(type) {
		case *ast.Break, *ast.Continue:
			return true
		case *ast.If:
			if containsLoopExit(n.Then) {
				return true
			}
			if inner, ok := n.Else.(*ast.Block); ok && containsLoopExit(inner) {
				return true
			}
			if inner, ok := n.Else.(*ast.If); ok && containsLoopExit(&ast.Block{Stmts: []ast.Stmt{inner}}) {
				return true
			}
		case *ast.Block:
			if containsLoopExit(n) {
				return true
			}
		case *ast.Match:
			for _, arm := range n.Arms {
				if containsLoopExit(arm.Body) {
					return true
				}
			}
		}
	}
	return false
}

func (e *Emitter) genForEach(n *ast.ForEach) error {
	sym, ok := e.localSymbol(n.Var)
	if !ok {
		return &SymbolNotFoundError{Name: n.Var}
	}
	iterType := e.info.TypeOf(n.Iter)
	if iterType.Kind != sema.TypeArray {
		return unsupported("for-each", "over %s", iterType)
	}
	if e.info.Registry.SizeOf(*iterType.Elem) != 1 {
		return unsupported("for-each", "element size %d", e.info.Registry.SizeOf(*iterType.Elem))
	}
	p, err := e.setupPointer(n.Iter)
	if err != nil {
		return err
	}
	start := e.newLabel()
	cont := e.newLabel()
	end := e.newLabel()
	e.pushLoop(cont, end)
	defer e.popLoop()
	e.loadXImm(0)
	e.label(start)
	e.instf("CPX", "#$%02X", iterType.Len)
	e.inst("BEQ", end)
	e.inst("TXA", "")
	e.inst("TAY", "")
	e.instf("LDA", "($%02X),Y", p)
	e.storeA(sym.Location)
	if err := e.genBlock(n.Body); err != nil {
		return err
	}
	e.label(cont)
	e.inst("INX", "")
	e.inst("JMP", start)
	e.label(end)
	return nil
}

func (e *Emitter) genMatch(n *ast.Match) error {
	e.matchID++
	id := e.matchID
	endL := fmt.Sprintf("match_%d_end", id)
	t := e.info.TypeOf(n.Scrutinee)
	if t.Kind == sema.TypeEnum {
		return e.genMatchEnum(n, t, id, endL)
	}

	if err := e.genExpr(n.Scrutinee); err != nil {
		return err
	}
	for i, arm := range n.Arms {
		nextL := fmt.Sprintf("match_%d_arm_%d", id, i+1)
		last := i == len(n.Arms)-1
		switch p := arm.Pattern.(type) {
		case *ast.LitPattern:
			e.instf("CMP", "#$%02X", p.Value&0xFF)
			e.inst("BNE", pick(last, endL, nextL))
		case *ast.RangePattern:
			e.instf("CMP", "#$%02X", p.Lo&0xFF)
			e.inst("BCC", pick(last, endL, nextL))
			if p.Hi < 0xFF {
				e.instf("CMP", "#$%02X", (p.Hi+1)&0xFF)
				e.inst("BCS", pick(last, endL, nextL))
			}
		case *ast.WildcardPattern:
			// always matches
		case *ast.BindPattern:
			sym, ok := e.localSymbol(p.Name)
			if !ok {
				return &SymbolNotFoundError{Name: p.Name}
			}
			e.storeA(sym.Location)
		default:
			return unsupported("match pattern", "%T on %s", arm.Pattern, t)
		}
		if err := e.genBlock(arm.Body); err != nil {
			return err
		}
		if !last {
			e.inst("JMP", endL)
			// a failed test falls through here with the scrutinee
			// still in A: CMP never writes it
			e.label(nextL)
		}
	}
	e.label(endL)
	return nil
}

// genMatchEnum dispatches on the tag byte of an enum value and extracts
// variant payload bindings before each arm body.
func (e *Emitter) genMatchEnum(n *ast.Match, t sema.Type, id int, endL string) error {
	def, ok := e.info.Registry.Enums[t.Name]
	if !ok {
		return &SymbolNotFoundError{Name: t.Name}
	}
	// value pointer into the enum scratch pair, tag into scratch
	if err := e.genExpr(n.Scrutinee); err != nil {
		return err
	}
	e.instf("STA", "$%02X", EnumPtr)
	e.instf("STX", "$%02X", EnumPtr+1)
	e.loadYImm(0)
	e.instf("LDA", "($%02X),Y", EnumPtr)
	e.instf("STA", "$%02X", MulScratch)
	e.regs.InvalidateAll()

	for i, arm := range n.Arms {
		nextL := fmt.Sprintf("match_%d_arm_%d", id, i+1)
		last := i == len(n.Arms)-1
		switch p := arm.Pattern.(type) {
		case *ast.VariantPattern:
			v := def.Variant(p.Variant)
			if v == nil {
				return &SymbolNotFoundError{Name: t.Name + "::" + p.Variant}
			}
			e.instf("LDA", "$%02X", MulScratch)
			e.instf("CMP", "#$%02X", v.Tag)
			e.inst("BNE", pick(last, endL, nextL))
			for bi, name := range p.Bindings {
				sym, ok := e.localSymbol(name)
				if !ok {
					return &SymbolNotFoundError{Name: name}
				}
				e.loadYImm(int64(v.Offsets[bi]))
				e.instf("LDA", "($%02X),Y", EnumPtr)
				e.regs.A = Unknown()
				e.storeA(sym.Location)
				if v.Payload[bi].Is16Bit() {
					e.inst("INY", "")
					e.instf("LDA", "($%02X),Y", EnumPtr)
					e.regs.A = Unknown()
					e.inst("STA", locPlus(sym.Location, 1))
				}
			}
		case *ast.WildcardPattern:
			// always matches
		default:
			return unsupported("match pattern", "%T on %s", arm.Pattern, t)
		}
		if err := e.genBlock(arm.Body); err != nil {
			return err
		}
		if !last {
			e.inst("JMP", endL)
			e.label(nextL)
		}
	}
	e.label(endL)
	return nil
}

// genAsm emits an inline assembly block. {name} substitutes the address
// of a visible symbol; labels defined inside the block get the inline
// suffix so repeated expansions stay unique.
func (e *Emitter) genAsm(n *ast.Asm) error {
	lines := make([]string, len(n.Lines))
	copy(lines, n.Lines)
	for i, line := range lines {
		sub, err := e.substituteAsmVars(line)
		if err != nil {
			return err
		}
		lines[i] = sub
	}
	if e.inlining() {
		lines = suffixAsmLabels(lines, e.currentInline().suffix)
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasSuffix(trimmed, ":") && !strings.HasPrefix(trimmed, ";") {
			e.label(strings.TrimSuffix(trimmed, ":"))
			continue
		}
		e.line("    %s", trimmed)
		if !strings.HasPrefix(trimmed, ";") {
			mnemonic, operand, _ := strings.Cut(trimmed, " ")
			e.byteCount += instructionSize(strings.ToUpper(mnemonic), strings.TrimSpace(operand))
		}
	}
	e.regs.InvalidateAll()
	return nil
}

func (e *Emitter) substituteAsmVars(line string) (string, error) {
	for {
		open := strings.Index(line, "{")
		if open < 0 {
			return line, nil
		}
		close := strings.Index(line[open:], "}")
		if close < 0 {
			return line, nil
		}
		name := line[open+1 : open+close]
		sym, ok := e.localSymbol(name)
		if !ok {
			return "", &SymbolNotFoundError{Name: name}
		}
		line = line[:open] + sym.Location.Operand() + line[open+close+1:]
	}
}

// suffixAsmLabels renames labels defined in the block and every reference
// to them. Labels not defined in the block are outside names and stay.
func suffixAsmLabels(lines []string, suffix string) []string {
	defined := map[string]bool{}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasSuffix(trimmed, ":") && !strings.HasPrefix(trimmed, ";") {
			defined[strings.TrimSuffix(trimmed, ":")] = true
		}
	}
	if len(defined) == 0 {
		return lines
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if name, ok := strings.CutSuffix(trimmed, ":"); ok && defined[name] {
			out[i] = name + suffix + ":"
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) == 2 && defined[fields[1]] {
			out[i] = fields[0] + " " + fields[1] + suffix
			continue
		}
		out[i] = line
	}
	return out
}
