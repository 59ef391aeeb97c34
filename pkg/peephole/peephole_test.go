package peephole

import (
	"strings"
	"testing"
)

func optimizeLines(t *testing.T, src ...string) []string {
	t.Helper()
	out := Optimize(strings.Join(src, "\n"))
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, strings.TrimSpace(l))
		}
	}
	return lines
}

func expect(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d lines %q; want %d lines %q", len(got), got, len(want), want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q; want %q", i, got[i], want[i])
		}
	}
}

func TestParseLineKinds(t *testing.T) {
	tests := []struct {
		src  string
		kind Kind
	}{
		{"", Empty},
		{"; a comment", Comment},
		{"main:", Label},
		{"    .byte $01", Directive},
		{"* = $9000", Directive},
		{"SCREEN = $C000", Directive},
		{"    LDA #$01", Instruction},
	}
	for _, tc := range tests {
		if got := parseLine(tc.src); got.Kind != tc.kind {
			t.Errorf("parseLine(%q).Kind = %v; want %v", tc.src, got.Kind, tc.kind)
		}
	}
}

func TestRenderRoundTrip(t *testing.T) {
	src := "main:\n    LDA #$01 ; init\n    .byte $02\n; note"
	if got := Render(Parse(src)); got != src {
		t.Errorf("round trip changed text:\n%s", got)
	}
}

func TestDropRedundantLoads(t *testing.T) {
	got := optimizeLines(t,
		"    LDA $40",
		"    LDA $40",
		"    STA $41",
	)
	expect(t, got, "LDA $40", "STA $41")
}

func TestDropLoadAfterStore(t *testing.T) {
	got := optimizeLines(t,
		"    STA $40",
		"    LDA $40",
		"    STA $41",
	)
	expect(t, got, "STA $40", "STA $41")
}

func TestLabelBlocksElision(t *testing.T) {
	got := optimizeLines(t,
		"    STA $40",
		"again:",
		"    LDA $40",
		"    STA $41",
	)
	expect(t, got, "STA $40", "again:", "LDA $40", "STA $41")
}

func TestDropDeadStores(t *testing.T) {
	got := optimizeLines(t,
		"    STA $40",
		"    LDA #$05",
		"    STA $40",
	)
	expect(t, got, "LDA #$05", "STA $40")
}

func TestDeadStoreKeptForIndexedOperand(t *testing.T) {
	got := optimizeLines(t,
		"    STA $40,X",
		"    LDA #$05",
		"    STA $40,X",
	)
	expect(t, got, "STA $40,X", "LDA #$05", "STA $40,X")
}

func TestDropNoOps(t *testing.T) {
	got := optimizeLines(t,
		"    ORA #$00",
		"    AND #$FF",
		"    EOR #$00",
		"    STA $40",
	)
	expect(t, got, "STA $40")
}

func TestDropCancelingTransfers(t *testing.T) {
	got := optimizeLines(t,
		"    TAX",
		"    TXA",
		"    STA $40",
	)
	expect(t, got, "TAX", "STA $40")
}

func TestDropUnreachable(t *testing.T) {
	got := optimizeLines(t,
		"    RTS",
		"    LDA #$01",
		"    STA $40",
		"done:",
		"    RTS",
	)
	expect(t, got, "RTS", "done:", "RTS")
}

func TestDropRedundantCompareZero(t *testing.T) {
	got := optimizeLines(t,
		"    LDA $40",
		"    CMP #$00",
		"    BEQ done",
		"done:",
	)
	expect(t, got, "LDA $40", "BEQ done", "done:")
}

func TestCompareKeptBeforeCarryBranch(t *testing.T) {
	got := optimizeLines(t,
		"    LDA $40",
		"    CMP #$00",
		"    BCS done",
		"done:",
	)
	expect(t, got, "LDA $40", "CMP #$00", "BCS done", "done:")
}

func TestDropKnownZeroIndexLoads(t *testing.T) {
	got := optimizeLines(t,
		"    LDY #$00",
		"    STA ($30),Y",
		"    LDY #$00",
		"    STA ($32),Y",
	)
	expect(t, got, "LDY #$00", "STA ($30),Y", "STA ($32),Y")
}

func TestKnownZeroForgottenAfterLabel(t *testing.T) {
	got := optimizeLines(t,
		"    LDY #$00",
		"loop:",
		"    LDY #$00",
		"    STA ($30),Y",
	)
	expect(t, got, "LDY #$00", "loop:", "LDY #$00", "STA ($30),Y")
}

func TestKnownZeroForgottenAfterJSR(t *testing.T) {
	got := optimizeLines(t,
		"    LDX #$00",
		"    JSR helper",
		"    LDX #$00",
		"    STA $40,X",
	)
	expect(t, got, "LDX #$00", "JSR helper", "LDX #$00", "STA $40,X")
}

func TestDropFlagContradictions(t *testing.T) {
	got := optimizeLines(t,
		"    CLC",
		"    SEC",
		"    SBC $40",
	)
	expect(t, got, "SEC", "SBC $40")
}

func TestDropRepeatedImmediatePairs(t *testing.T) {
	got := optimizeLines(t,
		"    LDA #<str_0",
		"    LDX #>str_0",
		"    LDA #<str_0",
		"    LDX #>str_0",
		"    JSR print",
	)
	expect(t, got, "LDA #<str_0", "LDX #>str_0", "JSR print")
}

func TestSelfAddToShift(t *testing.T) {
	got := optimizeLines(t,
		"    LDA $40",
		"    CLC",
		"    ADC $40",
		"    STA $41",
	)
	expect(t, got, "LDA $40", "ASL A", "STA $41")
}

func TestJSRRTSToJMP(t *testing.T) {
	got := optimizeLines(t,
		"    JSR helper",
		"    RTS",
	)
	expect(t, got, "JMP helper")
}

func TestBranchInversionDisabled(t *testing.T) {
	got := optimizeLines(t,
		"    BEQ skip",
		"    JMP target",
		"skip:",
	)
	expect(t, got, "BEQ skip", "JMP target", "skip:")
}

func TestCommentsAndDirectivesSurvive(t *testing.T) {
	src := strings.Join([]string{
		"; Function: main",
		"* = $9000",
		"main:",
		"    LDA #$01 ; the answer",
		"    .byte $02",
	}, "\n")
	out := Optimize(src)
	for _, want := range []string{"; Function: main", "* = $9000", "main:", "; the answer", ".byte $02"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lost %q:\n%s", want, out)
		}
	}
}

func TestFixedPointCascade(t *testing.T) {
	// The dead store only becomes adjacent after the no-op is dropped,
	// so this needs a second pass.
	got := optimizeLines(t,
		"    STA $40",
		"    ORA #$00",
		"    LDA #$07",
		"    STA $40",
	)
	expect(t, got, "LDA #$07", "STA $40")
}

func TestOptimizeIsIdempotent(t *testing.T) {
	// every rule only shrinks, so a second full run must change nothing
	src := strings.Join([]string{
		"main:",
		"    LDA #$05",
		"    ORA #$00",
		"    STA $40",
		"    LDA $40",
		"    CLC",
		"    ADC $40",
		"    STA $41",
		"    JSR helper",
		"    RTS",
		"helper:",
		"    LDA #$01",
		"    RTS",
	}, "\n")
	once := Optimize(src)
	twice := Optimize(once)
	if once != twice {
		t.Errorf("second pass still rewrites:\nfirst:\n%s\nsecond:\n%s", once, twice)
	}
}
