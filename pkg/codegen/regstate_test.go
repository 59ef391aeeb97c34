package codegen

import "testing"

func TestRegValueEqual(t *testing.T) {
	tests := []struct {
		a, b RegValue
		want bool
	}{
		{Imm(5), Imm(5), true},
		{Imm(5), Imm(6), false},
		{FromZP(0x40), FromZP(0x40), true},
		{FromZP(0x40), FromZP(0x41), false},
		{FromZP(0x40), FromAbs(0x40), false},
		{FromAbs(0xC000), FromAbs(0xC000), true},
		{Unknown(), Unknown(), false},
		{Unknown(), Imm(0), false},
	}
	for _, tc := range tests {
		if got := tc.a.Equal(tc.b); got != tc.want {
			t.Errorf("%s.Equal(%s) = %v; want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestImmTruncatesToByte(t *testing.T) {
	if !Imm(0x1FF).Equal(Imm(0xFF)) {
		t.Error("immediates should compare modulo 256")
	}
}

func TestReferences(t *testing.T) {
	if !FromZP(0x40).References(0x40) {
		t.Error("zero-page value should reference its source byte")
	}
	if FromZP(0x40).References(0x41) {
		t.Error("zero-page value references the wrong byte")
	}
	if Imm(5).References(5) {
		t.Error("immediate should not reference memory")
	}
}

func TestInvalidateIfReferences(t *testing.T) {
	s := NewRegisterState()
	s.A = FromZP(0x40)
	s.X = Imm(3)
	s.Y = FromZP(0x41)
	s.InvalidateIfReferences(0x40)
	if s.A.Kind != RegUnknown {
		t.Error("A should be dropped when its source byte was written")
	}
	if !s.X.Equal(Imm(3)) {
		t.Error("immediate tracking should survive a memory write")
	}
	if !s.Y.Equal(FromZP(0x41)) {
		t.Error("unrelated memory tracking should survive")
	}
}

func TestInvalidateMemory(t *testing.T) {
	s := NewRegisterState()
	s.A = FromAbs(0xC000)
	s.X = Imm(7)
	s.InvalidateMemory()
	if s.A.Kind != RegUnknown {
		t.Error("memory-sourced tracking should be dropped")
	}
	if !s.X.Equal(Imm(7)) {
		t.Error("immediate tracking should survive")
	}
}
