package codegen

import (
	"fmt"
	"sort"
	"strings"

	"wisp/pkg/ast"
	"wisp/pkg/config"
	"wisp/pkg/peephole"
	"wisp/pkg/sema"
)

// Generate compiles the analyzed program to one assembly listing.
//
// The pipeline runs four passes. Metadata registration checks every
// function has its record and places static data, so references resolve
// during compilation. Compilation lowers each function separately and
// measures it. Allocation assigns load addresses, explicit origins first,
// and reports every placement conflict at once. Emission writes the
// functions in address order, appends data and vectors, and runs the
// peephole pass over the whole listing to a fixed point.
func Generate(prog *ast.Program, info *sema.ProgramInfo, opts Options) (string, error) {
	if opts.Config == nil {
		opts.Config = config.Default6502()
	}
	sh := &shared{info: info, opts: opts, strings: NewStringCollector()}
	alloc := NewAddressAllocator(opts.Config)

	// pass 1: metadata and static data placement
	var fns []*ast.Function
	var statics []*ast.Static
	var addrs []*ast.AddressDecl
	for _, item := range prog.Items {
		switch n := item.(type) {
		case *ast.Function:
			if _, ok := info.Functions[n.Name]; !ok {
				return "", &SymbolNotFoundError{Name: n.Name}
			}
			fns = append(fns, n)
		case *ast.Static:
			if n.Mutable {
				statics = append(statics, n)
			}
		case *ast.AddressDecl:
			addrs = append(addrs, n)
		}
	}

	if err := assignStorage(info, addrs); err != nil {
		return "", err
	}

	dataSection := dataSectionName(opts.Config)
	staticData := make(map[string][]byte)
	staticAddr := make(map[string]uint16)
	for _, s := range statics {
		sym, ok := info.Table.Lookup(s.Name)
		if !ok {
			return "", &SymbolNotFoundError{Name: s.Name}
		}
		data, err := sh.staticBytes(s, sym.Type)
		if err != nil {
			return "", fmt.Errorf("static %s: %w", s.Name, err)
		}
		addr, err := alloc.Sections().Allocate(dataSection, len(data))
		if err != nil {
			return "", fmt.Errorf("static %s: %w", s.Name, err)
		}
		sym.Location = sema.Absolute(addr)
		staticData[s.Name] = data
		staticAddr[s.Name] = addr
	}

	// pass 2: compile everything that gets its own code
	var compiled []CompiledFunction
	byName := make(map[string]CompiledFunction)
	for _, fn := range fns {
		meta := info.Functions[fn.Name]
		if meta.Inline {
			continue // expanded at call sites only
		}
		cf, err := sh.compileFunction(fn, meta)
		if err != nil {
			return "", err
		}
		compiled = append(compiled, cf)
		byName[cf.Name] = cf
	}

	// pass 3: addresses
	placements, err := alloc.Allocate(compiled, info.Functions)
	if err != nil {
		return "", err
	}

	// string data right after the statics
	var stringAddr uint16
	if !sh.strings.Empty() {
		stringAddr, err = alloc.Sections().Allocate(dataSection, sh.strings.Size())
		if err != nil {
			return "", fmt.Errorf("string data: %w", err)
		}
	}

	// pass 4: final listing
	var b strings.Builder
	if len(addrs) > 0 {
		for _, a := range addrs {
			fmt.Fprintf(&b, "%s = $%04X\n", a.Name, a.Addr)
		}
		b.WriteString("\n")
	}
	for _, p := range placements {
		fmt.Fprintf(&b, "* = $%04X\n", p.Addr)
		b.WriteString(byName[p.Name].Assembly)
		b.WriteString("\n")
	}
	if len(statics) > 0 {
		names := make([]string, 0, len(staticAddr))
		for name := range staticAddr {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool { return staticAddr[names[i]] < staticAddr[names[j]] })
		for _, name := range names {
			fmt.Fprintf(&b, "* = $%04X\n", staticAddr[name])
			emitStatic(&b, name, staticData[name])
		}
		b.WriteString("\n")
	}
	if !sh.strings.Empty() {
		se := newEmitter(sh, nil)
		se.line("* = $%04X", stringAddr)
		sh.strings.Emit(se)
		b.WriteString(se.text())
		b.WriteString("\n")
	}
	if vec := vectorTable(info); vec != "" {
		b.WriteString(vec)
	}

	return peephole.Optimize(b.String()), nil
}

// dataSectionName picks where data goes: a DATA section when configured,
// otherwise the default section.
func dataSectionName(cfg *config.MemoryConfig) string {
	if _, ok := cfg.Find("DATA"); ok {
		return "DATA"
	}
	return cfg.Default
}

// vectorTable emits the 6502 hardware vectors when the program defines
// handlers for them.
func vectorTable(info *sema.ProgramInfo) string {
	var nmi, reset, irq string
	for _, m := range info.Functions {
		switch {
		case m.NMI:
			nmi = m.Name
		case m.Reset:
			reset = m.Name
		case m.Interrupt:
			irq = m.Name
		}
	}
	if nmi == "" && reset == "" && irq == "" {
		return ""
	}
	word := func(name string) string {
		if name == "" {
			return "$0000"
		}
		return name
	}
	var b strings.Builder
	b.WriteString("* = $FFFA\n")
	fmt.Fprintf(&b, "    .word %s\n", word(nmi))
	fmt.Fprintf(&b, "    .word %s\n", word(reset))
	fmt.Fprintf(&b, "    .word %s\n", word(irq))
	return b.String()
}
