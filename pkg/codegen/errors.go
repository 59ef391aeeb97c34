package codegen

import "fmt"

// UnsupportedError reports a construct the backend cannot lower, with
// enough context to point at the offending operation.
type UnsupportedError struct {
	Op     string
	Detail string
}

func (e *UnsupportedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unsupported operation: %s", e.Op)
	}
	return fmt.Sprintf("unsupported operation: %s (%s)", e.Op, e.Detail)
}

func unsupported(op string, format string, args ...any) error {
	return &UnsupportedError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// SymbolNotFoundError reports a name the side tables have no entry for.
// It indicates a hole in the upstream analysis, not a user mistake.
type SymbolNotFoundError struct {
	Name string
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol not found: %s", e.Name)
}

// ZeroPageExhaustedError reports that no free run of the requested size
// remains in the scanned zero-page region.
type ZeroPageExhaustedError struct {
	Need int
}

func (e *ZeroPageExhaustedError) Error() string {
	return fmt.Sprintf("out of zero page: no free run of %d bytes", e.Need)
}

// AddressWrapError reports a placement whose byte range would run past
// the top of the address space. Committing such a range would wrap and
// escape overlap detection.
type AddressWrapError struct {
	Function string
	Addr     uint16
	Size     int
}

func (e *AddressWrapError) Error() string {
	return fmt.Sprintf("function %s at $%04X needs %d bytes and runs past $FFFF",
		e.Function, e.Addr, e.Size)
}

// SectionOverflowError reports an allocation that runs past the end of its
// section.
type SectionOverflowError struct {
	Section string
	Need    int
	At      uint16
	End     uint16
}

func (e *SectionOverflowError) Error() string {
	return fmt.Sprintf("section %q overflow: tried to allocate %d bytes at $%04X, but section ends at $%04X",
		e.Section, e.Need, e.At, e.End)
}
