package codegen

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"wisp/pkg/config"
	"wisp/pkg/sema"
)

// PlacementSource records why a function sits where it sits, for conflict
// diagnostics.
type PlacementSource struct {
	kind    int
	addr    uint16
	section string
}

const (
	srcExplicit = iota
	srcSection
	srcAuto
)

func explicitSource(addr uint16) PlacementSource { return PlacementSource{kind: srcExplicit, addr: addr} }
func sectionSource(name string) PlacementSource  { return PlacementSource{kind: srcSection, section: name} }

func (s PlacementSource) String() string {
	switch s.kind {
	case srcExplicit:
		return fmt.Sprintf("explicit org $%04X", s.addr)
	case srcSection:
		return fmt.Sprintf("section %q", s.section)
	}
	return "auto-allocated"
}

// AddressRange is the bytes one placed function occupies, inclusive.
type AddressRange struct {
	Start    uint16
	End      uint16
	Function string
	Source   PlacementSource
}

func (r AddressRange) overlaps(o AddressRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

func (r AddressRange) String() string {
	return fmt.Sprintf("$%04X-$%04X", r.Start, r.End)
}

// CompiledFunction is a function body after the measurement pass: its
// final text and how many bytes it assembles to.
type CompiledFunction struct {
	Name     string
	Assembly string
	Size     int
}

// Placement is one function's allocated address.
type Placement struct {
	Name   string
	Addr   uint16
	Source PlacementSource
}

// Conflict is one pair of placed functions whose address ranges overlap.
type Conflict struct {
	A AddressRange
	B AddressRange
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s at %s (%s) overlaps %s at %s (%s)",
		c.A.Function, c.A, c.A.Source, c.B.Function, c.B, c.B.Source)
}

// ConflictError carries every overlapping pair found in a placement, not
// just the first: with hand-placed interrupt handlers and org-pinned
// routines, one bad origin usually produces several overlaps and the user
// wants the whole picture at once.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 1 {
		return "placement conflict: " + e.Conflicts[0].String()
	}
	return fmt.Sprintf("%d placement conflicts, first: %s", len(e.Conflicts), e.Conflicts[0])
}

// Diagnostic renders every conflict, one per line.
func (e *ConflictError) Diagnostic() string {
	var b strings.Builder
	fmt.Fprintf(&b, "placement conflicts (%d):\n", len(e.Conflicts))
	for _, c := range e.Conflicts {
		fmt.Fprintf(&b, "  %s\n", c)
	}
	return b.String()
}

// AddressAllocator assigns a load address to every compiled function.
// Explicitly placed functions go first, in ascending address order; the
// rest follow in name order so the output is stable run to run.
type AddressAllocator struct {
	cfg      *config.MemoryConfig
	sections *SectionAllocator
	ranges   []AddressRange
}

func NewAddressAllocator(cfg *config.MemoryConfig) *AddressAllocator {
	return &AddressAllocator{cfg: cfg, sections: NewSectionAllocator(cfg)}
}

// Sections exposes the underlying section allocator, shared with data
// placement.
func (a *AddressAllocator) Sections() *SectionAllocator { return a.sections }

// Allocate places every function and returns the placements in address
// order. All placement problems are collected before returning: section
// overflows are joined, and every overlapping pair lands in one
// ConflictError.
func (a *AddressAllocator) Allocate(funcs []CompiledFunction, meta map[string]*sema.FunctionMeta) ([]Placement, error) {
	ordered := make([]CompiledFunction, len(funcs))
	copy(ordered, funcs)
	orgOf := func(f CompiledFunction) (uint16, bool) {
		if m := meta[f.Name]; m != nil && m.Org != nil {
			return *m.Org, true
		}
		return 0, false
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		ai, aok := orgOf(ordered[i])
		bi, bok := orgOf(ordered[j])
		if aok != bok {
			return aok
		}
		if aok && ai != bi {
			return ai < bi
		}
		return ordered[i].Name < ordered[j].Name
	})

	var errs []error
	var placements []Placement
	for _, f := range ordered {
		m := meta[f.Name]
		var addr uint16
		var src PlacementSource
		if org, ok := orgOf(f); ok {
			addr, src = org, explicitSource(org)
		} else {
			section := a.cfg.Default
			if m != nil && m.Section != "" {
				section = m.Section
			}
			at, err := a.sections.Allocate(section, f.Size)
			if err != nil {
				errs = append(errs, fmt.Errorf("placing %s: %w", f.Name, err))
				continue
			}
			addr, src = at, sectionSource(section)
		}
		end := addr
		if f.Size > 0 {
			if int(addr)+f.Size-1 > 0xFFFF {
				errs = append(errs, &AddressWrapError{Function: f.Name, Addr: addr, Size: f.Size})
				continue
			}
			end = addr + uint16(f.Size) - 1
		}
		a.ranges = append(a.ranges, AddressRange{Start: addr, End: end, Function: f.Name, Source: src})
		placements = append(placements, Placement{Name: f.Name, Addr: addr, Source: src})
	}

	if conflicts := a.checkConflicts(); len(conflicts) > 0 {
		errs = append(errs, &ConflictError{Conflicts: conflicts})
	}
	if len(errs) > 0 {
		return placements, errors.Join(errs...)
	}
	sort.Slice(placements, func(i, j int) bool { return placements[i].Addr < placements[j].Addr })
	return placements, nil
}

// checkConflicts returns every overlapping pair, in placement order.
func (a *AddressAllocator) checkConflicts() []Conflict {
	var out []Conflict
	for i := 0; i < len(a.ranges); i++ {
		for j := i + 1; j < len(a.ranges); j++ {
			if a.ranges[i].overlaps(a.ranges[j]) {
				out = append(out, Conflict{A: a.ranges[i], B: a.ranges[j]})
			}
		}
	}
	return out
}

// Ranges returns every placed range, for reporting.
func (a *AddressAllocator) Ranges() []AddressRange { return a.ranges }
