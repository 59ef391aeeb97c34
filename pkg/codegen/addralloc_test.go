package codegen

import (
	"errors"
	"strings"
	"testing"

	"wisp/pkg/config"
	"wisp/pkg/sema"
)

func testConfig() *config.MemoryConfig {
	return &config.MemoryConfig{
		Sections: []config.Section{
			{Name: "CODE", Start: 0x9000, End: 0x90FF},
			{Name: "DATA", Start: 0xC000, End: 0xC0FF},
		},
		Default: "CODE",
	}
}

func org(addr uint16) *uint16 { return &addr }

func TestAllocatePlainFunctions(t *testing.T) {
	a := NewAddressAllocator(testConfig())
	placements, err := a.Allocate([]CompiledFunction{
		{Name: "main", Size: 16},
		{Name: "helper", Size: 8},
	}, map[string]*sema.FunctionMeta{})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if len(placements) != 2 {
		t.Fatalf("got %d placements; want 2", len(placements))
	}
	// names allocate in sorted order, results come back by address
	if placements[0].Name != "helper" || placements[0].Addr != 0x9000 {
		t.Errorf("first placement %s at $%04X; want helper at $9000", placements[0].Name, placements[0].Addr)
	}
	if placements[1].Name != "main" || placements[1].Addr != 0x9008 {
		t.Errorf("second placement %s at $%04X; want main at $9008", placements[1].Name, placements[1].Addr)
	}
}

func TestExplicitOrgPlacedFirst(t *testing.T) {
	a := NewAddressAllocator(testConfig())
	placements, err := a.Allocate([]CompiledFunction{
		{Name: "aaa", Size: 8},
		{Name: "pinned", Size: 8},
	}, map[string]*sema.FunctionMeta{
		"pinned": {Name: "pinned", Org: org(0x9100)},
	})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	for _, p := range placements {
		if p.Name == "pinned" && p.Addr != 0x9100 {
			t.Errorf("pinned at $%04X; want $9100", p.Addr)
		}
		if p.Name == "aaa" && p.Addr != 0x9000 {
			t.Errorf("aaa at $%04X; want $9000", p.Addr)
		}
	}
}

func TestNamedSectionPlacement(t *testing.T) {
	a := NewAddressAllocator(testConfig())
	placements, err := a.Allocate([]CompiledFunction{
		{Name: "table_init", Size: 8},
	}, map[string]*sema.FunctionMeta{
		"table_init": {Name: "table_init", Section: "DATA"},
	})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if placements[0].Addr != 0xC000 {
		t.Errorf("placed at $%04X; want $C000", placements[0].Addr)
	}
	if got := placements[0].Source.String(); !strings.Contains(got, `section "DATA"`) {
		t.Errorf("source = %q; want section attribution", got)
	}
}

func TestSectionOverflowCollected(t *testing.T) {
	a := NewAddressAllocator(testConfig())
	_, err := a.Allocate([]CompiledFunction{
		{Name: "big", Size: 0x200},
		{Name: "bigger", Size: 0x300},
	}, map[string]*sema.FunctionMeta{})
	if err == nil {
		t.Fatal("expected overflow error")
	}
	var overflow *SectionOverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("got %v; want SectionOverflowError", err)
	}
	// both failures are reported, not just the first
	msg := err.Error()
	if !strings.Contains(msg, "big") || !strings.Contains(msg, "bigger") {
		t.Errorf("error does not mention both functions: %s", msg)
	}
}

func TestPlacementPastTopOfMemoryRejected(t *testing.T) {
	// $FFF0 + $20 bytes runs past $FFFF; a wrapped range would invert and
	// slip past the overlap check against vec
	a := NewAddressAllocator(testConfig())
	_, err := a.Allocate([]CompiledFunction{
		{Name: "top", Size: 0x20},
		{Name: "vec", Size: 4},
	}, map[string]*sema.FunctionMeta{
		"top": {Name: "top", Org: org(0xFFF0)},
		"vec": {Name: "vec", Org: org(0xFFF8)},
	})
	if err == nil {
		t.Fatal("expected an error for a range past $FFFF")
	}
	var wrap *AddressWrapError
	if !errors.As(err, &wrap) {
		t.Fatalf("got %v; want AddressWrapError", err)
	}
	if wrap.Function != "top" || wrap.Addr != 0xFFF0 {
		t.Errorf("wrap reported for %s at $%04X; want top at $FFF0", wrap.Function, wrap.Addr)
	}
}

func TestConflictNearTopOfMemory(t *testing.T) {
	// both ranges fit below $FFFF; their overlap must still be reported
	a := NewAddressAllocator(testConfig())
	_, err := a.Allocate([]CompiledFunction{
		{Name: "top", Size: 0x0C},
		{Name: "vec", Size: 4},
	}, map[string]*sema.FunctionMeta{
		"top": {Name: "top", Org: org(0xFFF0)},
		"vec": {Name: "vec", Org: org(0xFFF8)},
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("got %v; want ConflictError", err)
	}
	if len(conflict.Conflicts) != 1 {
		t.Fatalf("got %d conflicts; want 1", len(conflict.Conflicts))
	}
}

func TestConflictsAreExhaustive(t *testing.T) {
	a := NewAddressAllocator(testConfig())
	_, err := a.Allocate([]CompiledFunction{
		{Name: "one", Size: 32},
		{Name: "two", Size: 32},
		{Name: "three", Size: 32},
	}, map[string]*sema.FunctionMeta{
		"one":   {Name: "one", Org: org(0x9100)},
		"two":   {Name: "two", Org: org(0x9110)},
		"three": {Name: "three", Org: org(0x9118)},
	})
	if err == nil {
		t.Fatal("expected conflict error")
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("got %v; want ConflictError", err)
	}
	// one/two, one/three and two/three all overlap
	if len(conflict.Conflicts) != 3 {
		t.Fatalf("got %d conflicts; want 3: %s", len(conflict.Conflicts), conflict.Diagnostic())
	}
	diag := conflict.Diagnostic()
	for _, want := range []string{"one", "two", "three", "explicit org"} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostic missing %q:\n%s", want, diag)
		}
	}
}

func TestSectionStats(t *testing.T) {
	s := NewSectionAllocator(testConfig())
	if _, err := s.Allocate("CODE", 64); err != nil {
		t.Fatal(err)
	}
	stats := s.Stats()
	if len(stats) != 2 {
		t.Fatalf("got %d stats; want 2", len(stats))
	}
	if stats[0].Used != 64 || stats[0].Total != 256 {
		t.Errorf("CODE stats = %+v; want 64/256", stats[0])
	}
	if got := stats[0].String(); !strings.Contains(got, "64/256 bytes (25.0%)") {
		t.Errorf("stats rendered as %q", got)
	}
	if s.Remaining("CODE") != 192 {
		t.Errorf("Remaining(CODE) = %d; want 192", s.Remaining("CODE"))
	}
}

func TestUnknownSection(t *testing.T) {
	s := NewSectionAllocator(testConfig())
	if _, err := s.Allocate("NOPE", 1); err == nil {
		t.Error("unknown section accepted")
	}
}
