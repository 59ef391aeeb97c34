package codegen

import "fmt"

// ZeroPageAllocator hands out zero-page storage for locals and parameter
// blocks. Allocation is a bump scan over the open regions; explicitly
// placed ranges are honored first and everything reserved by the layout is
// off limits, including $FF.
type ZeroPageAllocator struct {
	taken     [256]bool
	nextVar   int
	nextParam int
}

func NewZeroPageAllocator() *ZeroPageAllocator {
	a := &ZeroPageAllocator{nextVar: varStart, nextParam: paramStart}
	for i := 0; i < 256; i++ {
		if isReserved(uint8(i)) {
			a.taken[i] = true
		}
	}
	return a
}

// Allocate returns the start of a free run of size bytes in the variable
// region.
func (a *ZeroPageAllocator) Allocate(size int) (uint8, error) {
	addr, err := a.scan(&a.nextVar, varEnd, size)
	if err != nil {
		return 0, fmt.Errorf("variable space: %w", err)
	}
	return addr, nil
}

// AllocateParams returns the start of a free run of size bytes in the
// parameter region. Each function's parameter block is one contiguous run.
func (a *ZeroPageAllocator) AllocateParams(size int) (uint8, error) {
	addr, err := a.scan(&a.nextParam, paramEnd, size)
	if err != nil {
		return 0, fmt.Errorf("parameter space: %w", err)
	}
	return addr, nil
}

func (a *ZeroPageAllocator) scan(cursor *int, end int, size int) (uint8, error) {
	if size <= 0 {
		return uint8(*cursor), nil
	}
	for start := *cursor; start+size-1 <= end; start++ {
		free := true
		for i := start; i < start+size; i++ {
			if a.taken[i] {
				free = false
				break
			}
		}
		if free {
			for i := start; i < start+size; i++ {
				a.taken[i] = true
			}
			*cursor = start + size
			return uint8(start), nil
		}
	}
	return 0, &ZeroPageExhaustedError{Need: size}
}

// AllocateRange claims an explicit range, for symbols pinned to a fixed
// zero-page address.
func (a *ZeroPageAllocator) AllocateRange(start uint8, count int) error {
	if int(start)+count > 0x100 {
		return fmt.Errorf("zero-page range $%02X+%d runs past the end of the page", start, count)
	}
	for i := int(start); i < int(start)+count; i++ {
		if a.taken[i] {
			return fmt.Errorf("zero-page byte $%02X is already in use", i)
		}
	}
	for i := int(start); i < int(start)+count; i++ {
		a.taken[i] = true
	}
	return nil
}

// InUse reports whether the byte is reserved or allocated.
func (a *ZeroPageAllocator) InUse(addr uint8) bool { return a.taken[addr] }
