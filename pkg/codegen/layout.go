// Package codegen lowers the analyzed program to 6502 assembly text. It
// runs in four passes: register function metadata, compile every function
// body to measure it, allocate addresses, then emit in address order and
// hand the result to the peephole pass.
package codegen

import "fmt"

// Zero-page layout. The 256 bytes of page zero are carved into fixed
// regions; the allocator hands out variable and parameter space from the
// open ranges and refuses everything reserved here.
const (
	systemStart  = 0x00 // monitor / OS workspace
	systemEnd    = 0x1F
	tempStart    = 0x20 // compiler scratch
	tempEnd      = 0x2F
	pointerStart = 0x30 // indirect-addressing pointer pairs
	pointerEnd   = 0x3F
	varStart     = 0x40 // local variables
	varEnd       = 0x7F
	paramStart   = 0x80 // function parameter blocks
	paramEnd     = 0xBF

	// argTempStart..argTempEnd stage outgoing call arguments so that
	// evaluating one argument cannot clobber an already-stored one.
	argTempStart = 0xF4
	argTempEnd   = 0xFE

	// lastZeroPage is never allocated; a pointer to it marks "no value".
	lastZeroPage = 0xFF
)

// TempReg is the primary scratch byte ($20, with $21 as its high half for
// 16-bit intermediates).
const TempReg = tempStart

// LoopEndTemp holds the evaluated upper bound of a counted loop while the
// body runs. It doubles as multiply/divide scratch between loop
// iterations, which is safe: the bound is reloaded fresh each loop.
const LoopEndTemp = tempStart + 2

// MulScratch and DivScratch are the software multiply/divide work bytes.
const (
	MulScratch = 0x22
	DivScratch = 0x23
)

// StringPtr is the pointer pair used to walk string data.
const StringPtr = 0x30

// EnumPtr is the pointer pair used to inspect enum values during match.
const EnumPtr = 0x20

// Region is an inclusive zero-page range.
type Region struct {
	Start uint8
	End   uint8
	What  string
}

func (r Region) contains(addr uint8) bool { return addr >= r.Start && addr <= r.End }

func (r Region) String() string {
	return fmt.Sprintf("$%02X-$%02X (%s)", r.Start, r.End, r.What)
}

// ReservedRegions lists every zero-page range the allocator must skip.
func ReservedRegions() []Region {
	return []Region{
		{systemStart, systemEnd, "system"},
		{tempStart, tempEnd, "compiler scratch"},
		{pointerStart, pointerEnd, "pointer scratch"},
		{argTempStart, argTempEnd, "argument staging"},
		{lastZeroPage, lastZeroPage, "null sentinel"},
	}
}

func isReserved(addr uint8) bool {
	for _, r := range ReservedRegions() {
		if r.contains(addr) {
			return true
		}
	}
	return false
}
