package codegen

import (
	"fmt"
	"sort"

	"wisp/pkg/ast"
	"wisp/pkg/sema"
)

// assignStorage gives every parameter and local its zero-page home.
// Address declarations that point into page zero claim their bytes first,
// then each function gets one contiguous parameter block and a slot per
// local. Symbols that already carry a location are left alone.
func assignStorage(info *sema.ProgramInfo, addrs []*ast.AddressDecl) error {
	zp := NewZeroPageAllocator()

	for _, a := range addrs {
		sym, ok := info.Table.Lookup(a.Name)
		if !ok {
			return &SymbolNotFoundError{Name: a.Name}
		}
		if a.Addr < 0x100 {
			size := info.Registry.SizeOf(sym.Type)
			if err := zp.AllocateRange(uint8(a.Addr), size); err != nil {
				return fmt.Errorf("address %s: %w", a.Name, err)
			}
			if sym.Location.Kind == sema.LocNone {
				sym.Location = sema.ZeroPage(uint8(a.Addr))
			}
		} else if sym.Location.Kind == sema.LocNone {
			sym.Location = sema.Absolute(a.Addr)
		}
	}

	// name order keeps the layout stable run to run
	names := make([]string, 0, len(info.Functions))
	for name := range info.Functions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		meta := info.Functions[name]
		if err := assignParams(zp, info.Registry, meta); err != nil {
			return fmt.Errorf("function %s: %w", name, err)
		}
		if err := assignLocals(zp, info.Registry, meta); err != nil {
			return fmt.Errorf("function %s: %w", name, err)
		}
	}
	return nil
}

func assignParams(zp *ZeroPageAllocator, reg *sema.TypeRegistry, meta *sema.FunctionMeta) error {
	unplaced := false
	for _, p := range meta.Params {
		if p.Location.Kind == sema.LocNone {
			unplaced = true
			break
		}
	}
	if !unplaced {
		return nil
	}
	base, err := zp.AllocateParams(meta.ParamBytes(reg))
	if err != nil {
		return err
	}
	off := 0
	for _, p := range meta.Params {
		if p.Location.Kind == sema.LocNone {
			p.Location = sema.ZeroPage(base + uint8(off))
		}
		off += reg.SizeOf(p.Type)
	}
	return nil
}

func assignLocals(zp *ZeroPageAllocator, reg *sema.TypeRegistry, meta *sema.FunctionMeta) error {
	names := make([]string, 0, len(meta.Locals))
	for name := range meta.Locals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sym := meta.Locals[name]
		if sym.Location.Kind != sema.LocNone {
			continue
		}
		addr, err := zp.Allocate(reg.SizeOf(sym.Type))
		if err != nil {
			return fmt.Errorf("local %s: %w", name, err)
		}
		sym.Location = sema.ZeroPage(addr)
	}
	return nil
}
