package codegen

import (
	"wisp/pkg/ast"
	"wisp/pkg/sema"
)

const maxInlineDepth = 8

func (e *Emitter) genCall(n *ast.Call) error {
	meta := e.info.Functions[n.Name]
	if meta == nil {
		return &SymbolNotFoundError{Name: n.Name}
	}
	if len(n.Args) != len(meta.Params) {
		return unsupported("call", "%s takes %d arguments, got %d", n.Name, len(meta.Params), len(n.Args))
	}
	if meta.Inline {
		return e.genInlineCall(n, meta)
	}
	if err := e.passArgs(n.Args, meta); err != nil {
		return err
	}
	e.vcomment("call %s", n.Name)
	e.inst("JSR", n.Name)
	if e.opts.Verbosity >= Verbose && meta.ReturnType.Kind != sema.TypeVoid {
		e.vcomment("returns %s in %s", meta.ReturnType, returnRegisters(meta.ReturnType))
	}
	return nil
}

func returnRegisters(t sema.Type) string {
	switch {
	case t.IsByRef():
		return "A/X"
	case t.Is16Bit():
		return "A/Y"
	}
	return "A"
}

// passArgs fills the callee's zero-page parameter block. Simple arguments
// store straight in; anything that could itself call stages through the
// argument pool first, so a nested call cannot clobber values already
// placed in the block.
func (e *Emitter) passArgs(args []ast.Expr, meta *sema.FunctionMeta) error {
	if len(args) == 0 {
		return nil
	}
	direct := true
	for _, a := range args {
		if _, _, ok := e.simpleOperand(a); !ok {
			direct = false
			break
		}
	}
	if direct {
		for i, a := range args {
			p := meta.Params[i]
			if err := e.genExpr(a); err != nil {
				return err
			}
			e.storeScalar(p.Location, p.Type)
		}
		return nil
	}

	total := meta.ParamBytes(e.info.Registry)
	base, err := e.temps.AllocArgs(total)
	if err != nil {
		return err
	}
	off := 0
	for i, a := range args {
		p := meta.Params[i]
		if err := e.genExpr(a); err != nil {
			return err
		}
		e.storeScalar(sema.ZeroPage(base+uint8(off)), p.Type)
		off += e.info.Registry.SizeOf(p.Type)
	}
	// burst copy into the parameter block
	off = 0
	for _, p := range meta.Params {
		size := e.info.Registry.SizeOf(p.Type)
		for b := 0; b < size; b++ {
			e.instf("LDA", "$%02X", base+uint8(off+b))
			e.inst("STA", locPlus(p.Location, b))
		}
		off += size
	}
	e.temps.Release(base, total)
	return nil
}

// genInlineCall expands the callee's body at the call site. Arguments
// land in the callee's parameter slots, early returns jump to a label
// after the expansion, and the function's own labels stay unique because
// every label the body emits comes from the shared counter.
func (e *Emitter) genInlineCall(n *ast.Call, meta *sema.FunctionMeta) error {
	if len(e.inlines) >= maxInlineDepth {
		return unsupported("inline call", "%s expands deeper than %d levels", n.Name, maxInlineDepth)
	}
	for i, a := range n.Args {
		p := meta.Params[i]
		if err := e.genExpr(a); err != nil {
			return err
		}
		e.storeScalar(p.Location, p.Type)
	}
	e.comment("inline %s", n.Name)
	end := e.newLabel()
	e.pushInline(end)
	savedFn := e.fn
	e.fn = meta
	err := e.genBlock(meta.Body)
	e.fn = savedFn
	e.popInline()
	if err != nil {
		return err
	}
	e.label(end)
	return nil
}

// genTailUpdate rewrites a self-call in tail position: stage the new
// argument values, overwrite the parameter block, jump back to the head.
// Staging is not optional here, the old parameter values may feed the new
// ones.
func (e *Emitter) genTailUpdate(n *ast.Call, meta *sema.FunctionMeta) error {
	total := meta.ParamBytes(e.info.Registry)
	base, err := e.temps.AllocArgs(total)
	if err != nil {
		return err
	}
	off := 0
	for i, a := range n.Args {
		p := meta.Params[i]
		if err := e.genExpr(a); err != nil {
			return err
		}
		e.storeScalar(sema.ZeroPage(base+uint8(off)), p.Type)
		off += e.info.Registry.SizeOf(p.Type)
	}
	off = 0
	for _, p := range meta.Params {
		size := e.info.Registry.SizeOf(p.Type)
		for b := 0; b < size; b++ {
			e.instf("LDA", "$%02X", base+uint8(off+b))
			e.inst("STA", locPlus(p.Location, b))
		}
		off += size
	}
	e.temps.Release(base, total)
	e.comment("tail recursion becomes a loop")
	e.inst("JMP", meta.Name+"_loop")
	return nil
}
