package codegen

// TempAllocator stages outgoing call arguments in the $F4-$FE pool.
// Arguments are evaluated into the pool first and copied into the callee's
// parameter block in one burst afterwards, so evaluating a later argument
// (itself possibly a call) cannot clobber an earlier one. Allocation is
// LIFO: nested calls release their block before the outer call copies.
type TempAllocator struct {
	next int
}

func NewTempAllocator() *TempAllocator {
	return &TempAllocator{next: argTempStart}
}

// AllocArgs claims n bytes of staging space. Exhaustion is an error: any
// fallback address would overlap an outer call's staged bytes, which are
// live in zero page until its burst copy runs.
func (t *TempAllocator) AllocArgs(n int) (uint8, error) {
	if t.next+n-1 > argTempEnd {
		return 0, &ZeroPageExhaustedError{Need: n}
	}
	base := uint8(t.next)
	t.next += n
	return base, nil
}

// Release returns a block claimed by AllocArgs.
func (t *TempAllocator) Release(base uint8, n int) {
	if int(base)+n == t.next {
		t.next = int(base)
	}
}
