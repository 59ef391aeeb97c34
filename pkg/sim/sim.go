// Package sim is a small 6502 interpreter used to execute assembled
// output in tests. It models the documented instruction set, the
// processor flags including decimal mode, and the three hardware
// vectors at $FFFA.
package sim

import "fmt"

const (
	// MemSize is the full 6502 address space.
	MemSize = 0x10000

	// VecNMI through VecIRQ are the hardware vector addresses.
	VecNMI   = 0xFFFA
	VecReset = 0xFFFC
	VecIRQ   = 0xFFFE

	stackBase = 0x0100
)

type CPU struct {
	A, X, Y byte
	SP      byte
	PC      uint16

	C, Z, I, D, V, N bool

	Memory [MemSize]byte

	Halted bool
	Steps  int
}

// New returns a CPU with the given memory image loaded.
func New(image []byte) *CPU {
	c := &CPU{SP: 0xFD}
	copy(c.Memory[:], image)
	return c
}

func (c *CPU) Read(addr uint16) byte {
	return c.Memory[addr]
}

func (c *CPU) Write(addr uint16, v byte) {
	c.Memory[addr] = v
}

// Read16 reads a little-endian word.
func (c *CPU) Read16(addr uint16) uint16 {
	return uint16(c.Memory[addr]) | uint16(c.Memory[addr+1])<<8
}

// Call runs the subroutine at addr until it returns to the caller,
// like a JSR from a tiny stub. maxSteps bounds runaway programs.
func (c *CPU) Call(addr uint16, maxSteps int) error {
	const sentinel = 0xFFF0
	c.push16(sentinel - 1)
	c.PC = addr
	c.Halted = false
	for c.PC != sentinel && !c.Halted {
		if c.Steps >= maxSteps {
			return fmt.Errorf("no return after %d steps, PC=$%04X", maxSteps, c.PC)
		}
		c.Step()
	}
	return nil
}

// Reset jumps through the reset vector.
func (c *CPU) Reset() {
	c.SP = 0xFD
	c.I = true
	c.PC = c.Read16(VecReset)
	c.Halted = false
}

// IRQ raises a maskable interrupt. It is ignored while the interrupt
// disable flag is set.
func (c *CPU) IRQ() {
	if c.I {
		return
	}
	c.interrupt(VecIRQ)
}

// NMI raises a non-maskable interrupt.
func (c *CPU) NMI() {
	c.interrupt(VecNMI)
}

func (c *CPU) interrupt(vector uint16) {
	c.push16(c.PC)
	c.push(c.status() &^ flagB)
	c.I = true
	c.PC = c.Read16(vector)
}

const (
	flagC byte = 1 << 0
	flagZ byte = 1 << 1
	flagI byte = 1 << 2
	flagD byte = 1 << 3
	flagB byte = 1 << 4
	flagU byte = 1 << 5
	flagV byte = 1 << 6
	flagN byte = 1 << 7
)

func (c *CPU) status() byte {
	var p byte = flagU | flagB
	if c.C {
		p |= flagC
	}
	if c.Z {
		p |= flagZ
	}
	if c.I {
		p |= flagI
	}
	if c.D {
		p |= flagD
	}
	if c.V {
		p |= flagV
	}
	if c.N {
		p |= flagN
	}
	return p
}

func (c *CPU) setStatus(p byte) {
	c.C = p&flagC != 0
	c.Z = p&flagZ != 0
	c.I = p&flagI != 0
	c.D = p&flagD != 0
	c.V = p&flagV != 0
	c.N = p&flagN != 0
}

func (c *CPU) setNZ(v byte) byte {
	c.Z = v == 0
	c.N = v&0x80 != 0
	return v
}

func (c *CPU) push(v byte) {
	c.Memory[stackBase+uint16(c.SP)] = v
	c.SP--
}

func (c *CPU) pop() byte {
	c.SP++
	return c.Memory[stackBase+uint16(c.SP)]
}

func (c *CPU) push16(v uint16) {
	c.push(byte(v >> 8))
	c.push(byte(v))
}

func (c *CPU) pop16() uint16 {
	lo := uint16(c.pop())
	hi := uint16(c.pop())
	return hi<<8 | lo
}

func (c *CPU) fetch() byte {
	v := c.Memory[c.PC]
	c.PC++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch())
	hi := uint16(c.fetch())
	return hi<<8 | lo
}

// effective-address helpers, one per addressing mode

func (c *CPU) zp() uint16   { return uint16(c.fetch()) }
func (c *CPU) zpx() uint16  { return uint16(c.fetch() + c.X) }
func (c *CPU) zpy() uint16  { return uint16(c.fetch() + c.Y) }
func (c *CPU) abs() uint16  { return c.fetch16() }
func (c *CPU) absx() uint16 { return c.fetch16() + uint16(c.X) }
func (c *CPU) absy() uint16 { return c.fetch16() + uint16(c.Y) }

func (c *CPU) indx() uint16 {
	zp := c.fetch() + c.X
	return uint16(c.Memory[zp]) | uint16(c.Memory[byte(zp+1)])<<8
}

func (c *CPU) indy() uint16 {
	zp := c.fetch()
	base := uint16(c.Memory[zp]) | uint16(c.Memory[byte(zp+1)])<<8
	return base + uint16(c.Y)
}

func (c *CPU) branch(taken bool) {
	offset := int8(c.fetch())
	if taken {
		c.PC = uint16(int(c.PC) + int(offset))
	}
}

// operations

func (c *CPU) adc(v byte) {
	if c.D {
		c.adcDecimal(v)
		return
	}
	carry := uint16(0)
	if c.C {
		carry = 1
	}
	sum := uint16(c.A) + uint16(v) + carry
	result := byte(sum)
	c.C = sum > 0xFF
	c.V = (c.A^v)&0x80 == 0 && (c.A^result)&0x80 != 0
	c.A = c.setNZ(result)
}

func (c *CPU) adcDecimal(v byte) {
	carry := byte(0)
	if c.C {
		carry = 1
	}
	lo := c.A&0x0F + v&0x0F + carry
	hi := uint16(c.A>>4) + uint16(v>>4)
	if lo > 9 {
		lo += 6
		hi++
	}
	if hi > 9 {
		hi += 6
	}
	c.C = hi > 0x0F
	c.A = c.setNZ(byte(hi)<<4 | lo&0x0F)
}

func (c *CPU) sbc(v byte) {
	if c.D {
		c.sbcDecimal(v)
		return
	}
	borrow := uint16(1)
	if c.C {
		borrow = 0
	}
	diff := uint16(c.A) - uint16(v) - borrow
	result := byte(diff)
	c.C = diff < 0x100
	c.V = (c.A^v)&0x80 != 0 && (c.A^result)&0x80 != 0
	c.A = c.setNZ(result)
}

func (c *CPU) sbcDecimal(v byte) {
	borrow := byte(1)
	if c.C {
		borrow = 0
	}
	lo := int(c.A&0x0F) - int(v&0x0F) - int(borrow)
	hi := int(c.A>>4) - int(v>>4)
	if lo < 0 {
		lo += 10
		hi--
	}
	if hi < 0 {
		hi += 10
		c.C = false
	} else {
		c.C = true
	}
	c.A = c.setNZ(byte(hi)<<4 | byte(lo)&0x0F)
}

func (c *CPU) cmp(reg, v byte) {
	c.C = reg >= v
	c.setNZ(reg - v)
}

func (c *CPU) asl(v byte) byte {
	c.C = v&0x80 != 0
	return c.setNZ(v << 1)
}

func (c *CPU) lsr(v byte) byte {
	c.C = v&0x01 != 0
	return c.setNZ(v >> 1)
}

func (c *CPU) rol(v byte) byte {
	carry := byte(0)
	if c.C {
		carry = 1
	}
	c.C = v&0x80 != 0
	return c.setNZ(v<<1 | carry)
}

func (c *CPU) ror(v byte) byte {
	carry := byte(0)
	if c.C {
		carry = 0x80
	}
	c.C = v&0x01 != 0
	return c.setNZ(v>>1 | carry)
}

func (c *CPU) bit(v byte) {
	c.Z = c.A&v == 0
	c.V = v&flagV != 0
	c.N = v&flagN != 0
}

func (c *CPU) rmw(addr uint16, op func(byte) byte) {
	c.Memory[addr] = op(c.Memory[addr])
}

// Step executes a single instruction.
func (c *CPU) Step() {
	if c.Halted {
		return
	}
	c.Steps++

	op := c.fetch()
	switch op {
	case 0x00: // BRK
		c.Halted = true

	case 0xEA: // NOP

	// loads
	case 0xA9:
		c.A = c.setNZ(c.fetch())
	case 0xA5:
		c.A = c.setNZ(c.Memory[c.zp()])
	case 0xB5:
		c.A = c.setNZ(c.Memory[c.zpx()])
	case 0xAD:
		c.A = c.setNZ(c.Memory[c.abs()])
	case 0xBD:
		c.A = c.setNZ(c.Memory[c.absx()])
	case 0xB9:
		c.A = c.setNZ(c.Memory[c.absy()])
	case 0xA1:
		c.A = c.setNZ(c.Memory[c.indx()])
	case 0xB1:
		c.A = c.setNZ(c.Memory[c.indy()])
	case 0xA2:
		c.X = c.setNZ(c.fetch())
	case 0xA6:
		c.X = c.setNZ(c.Memory[c.zp()])
	case 0xB6:
		c.X = c.setNZ(c.Memory[c.zpy()])
	case 0xAE:
		c.X = c.setNZ(c.Memory[c.abs()])
	case 0xBE:
		c.X = c.setNZ(c.Memory[c.absy()])
	case 0xA0:
		c.Y = c.setNZ(c.fetch())
	case 0xA4:
		c.Y = c.setNZ(c.Memory[c.zp()])
	case 0xB4:
		c.Y = c.setNZ(c.Memory[c.zpx()])
	case 0xAC:
		c.Y = c.setNZ(c.Memory[c.abs()])
	case 0xBC:
		c.Y = c.setNZ(c.Memory[c.absx()])

	// stores
	case 0x85:
		c.Memory[c.zp()] = c.A
	case 0x95:
		c.Memory[c.zpx()] = c.A
	case 0x8D:
		c.Memory[c.abs()] = c.A
	case 0x9D:
		c.Memory[c.absx()] = c.A
	case 0x99:
		c.Memory[c.absy()] = c.A
	case 0x81:
		c.Memory[c.indx()] = c.A
	case 0x91:
		c.Memory[c.indy()] = c.A
	case 0x86:
		c.Memory[c.zp()] = c.X
	case 0x96:
		c.Memory[c.zpy()] = c.X
	case 0x8E:
		c.Memory[c.abs()] = c.X
	case 0x84:
		c.Memory[c.zp()] = c.Y
	case 0x94:
		c.Memory[c.zpx()] = c.Y
	case 0x8C:
		c.Memory[c.abs()] = c.Y

	// transfers
	case 0xAA:
		c.X = c.setNZ(c.A)
	case 0xA8:
		c.Y = c.setNZ(c.A)
	case 0x8A:
		c.A = c.setNZ(c.X)
	case 0x98:
		c.A = c.setNZ(c.Y)
	case 0xBA:
		c.X = c.setNZ(c.SP)
	case 0x9A:
		c.SP = c.X

	// stack
	case 0x48:
		c.push(c.A)
	case 0x68:
		c.A = c.setNZ(c.pop())
	case 0x08:
		c.push(c.status())
	case 0x28:
		c.setStatus(c.pop())

	// arithmetic
	case 0x69:
		c.adc(c.fetch())
	case 0x65:
		c.adc(c.Memory[c.zp()])
	case 0x75:
		c.adc(c.Memory[c.zpx()])
	case 0x6D:
		c.adc(c.Memory[c.abs()])
	case 0x7D:
		c.adc(c.Memory[c.absx()])
	case 0x79:
		c.adc(c.Memory[c.absy()])
	case 0x61:
		c.adc(c.Memory[c.indx()])
	case 0x71:
		c.adc(c.Memory[c.indy()])
	case 0xE9:
		c.sbc(c.fetch())
	case 0xE5:
		c.sbc(c.Memory[c.zp()])
	case 0xF5:
		c.sbc(c.Memory[c.zpx()])
	case 0xED:
		c.sbc(c.Memory[c.abs()])
	case 0xFD:
		c.sbc(c.Memory[c.absx()])
	case 0xF9:
		c.sbc(c.Memory[c.absy()])
	case 0xE1:
		c.sbc(c.Memory[c.indx()])
	case 0xF1:
		c.sbc(c.Memory[c.indy()])

	// logic
	case 0x29:
		c.A = c.setNZ(c.A & c.fetch())
	case 0x25:
		c.A = c.setNZ(c.A & c.Memory[c.zp()])
	case 0x35:
		c.A = c.setNZ(c.A & c.Memory[c.zpx()])
	case 0x2D:
		c.A = c.setNZ(c.A & c.Memory[c.abs()])
	case 0x3D:
		c.A = c.setNZ(c.A & c.Memory[c.absx()])
	case 0x39:
		c.A = c.setNZ(c.A & c.Memory[c.absy()])
	case 0x21:
		c.A = c.setNZ(c.A & c.Memory[c.indx()])
	case 0x31:
		c.A = c.setNZ(c.A & c.Memory[c.indy()])
	case 0x09:
		c.A = c.setNZ(c.A | c.fetch())
	case 0x05:
		c.A = c.setNZ(c.A | c.Memory[c.zp()])
	case 0x15:
		c.A = c.setNZ(c.A | c.Memory[c.zpx()])
	case 0x0D:
		c.A = c.setNZ(c.A | c.Memory[c.abs()])
	case 0x1D:
		c.A = c.setNZ(c.A | c.Memory[c.absx()])
	case 0x19:
		c.A = c.setNZ(c.A | c.Memory[c.absy()])
	case 0x01:
		c.A = c.setNZ(c.A | c.Memory[c.indx()])
	case 0x11:
		c.A = c.setNZ(c.A | c.Memory[c.indy()])
	case 0x49:
		c.A = c.setNZ(c.A ^ c.fetch())
	case 0x45:
		c.A = c.setNZ(c.A ^ c.Memory[c.zp()])
	case 0x55:
		c.A = c.setNZ(c.A ^ c.Memory[c.zpx()])
	case 0x4D:
		c.A = c.setNZ(c.A ^ c.Memory[c.abs()])
	case 0x5D:
		c.A = c.setNZ(c.A ^ c.Memory[c.absx()])
	case 0x59:
		c.A = c.setNZ(c.A ^ c.Memory[c.absy()])
	case 0x41:
		c.A = c.setNZ(c.A ^ c.Memory[c.indx()])
	case 0x51:
		c.A = c.setNZ(c.A ^ c.Memory[c.indy()])
	case 0x24:
		c.bit(c.Memory[c.zp()])
	case 0x2C:
		c.bit(c.Memory[c.abs()])

	// shifts and rotates
	case 0x0A:
		c.A = c.asl(c.A)
	case 0x06:
		c.rmw(c.zp(), c.asl)
	case 0x16:
		c.rmw(c.zpx(), c.asl)
	case 0x0E:
		c.rmw(c.abs(), c.asl)
	case 0x1E:
		c.rmw(c.absx(), c.asl)
	case 0x4A:
		c.A = c.lsr(c.A)
	case 0x46:
		c.rmw(c.zp(), c.lsr)
	case 0x56:
		c.rmw(c.zpx(), c.lsr)
	case 0x4E:
		c.rmw(c.abs(), c.lsr)
	case 0x5E:
		c.rmw(c.absx(), c.lsr)
	case 0x2A:
		c.A = c.rol(c.A)
	case 0x26:
		c.rmw(c.zp(), c.rol)
	case 0x36:
		c.rmw(c.zpx(), c.rol)
	case 0x2E:
		c.rmw(c.abs(), c.rol)
	case 0x3E:
		c.rmw(c.absx(), c.rol)
	case 0x6A:
		c.A = c.ror(c.A)
	case 0x66:
		c.rmw(c.zp(), c.ror)
	case 0x76:
		c.rmw(c.zpx(), c.ror)
	case 0x6E:
		c.rmw(c.abs(), c.ror)
	case 0x7E:
		c.rmw(c.absx(), c.ror)

	// increments and decrements
	case 0xE6:
		c.rmw(c.zp(), func(v byte) byte { return c.setNZ(v + 1) })
	case 0xF6:
		c.rmw(c.zpx(), func(v byte) byte { return c.setNZ(v + 1) })
	case 0xEE:
		c.rmw(c.abs(), func(v byte) byte { return c.setNZ(v + 1) })
	case 0xFE:
		c.rmw(c.absx(), func(v byte) byte { return c.setNZ(v + 1) })
	case 0xC6:
		c.rmw(c.zp(), func(v byte) byte { return c.setNZ(v - 1) })
	case 0xD6:
		c.rmw(c.zpx(), func(v byte) byte { return c.setNZ(v - 1) })
	case 0xCE:
		c.rmw(c.abs(), func(v byte) byte { return c.setNZ(v - 1) })
	case 0xDE:
		c.rmw(c.absx(), func(v byte) byte { return c.setNZ(v - 1) })
	case 0xE8:
		c.X = c.setNZ(c.X + 1)
	case 0xC8:
		c.Y = c.setNZ(c.Y + 1)
	case 0xCA:
		c.X = c.setNZ(c.X - 1)
	case 0x88:
		c.Y = c.setNZ(c.Y - 1)

	// compares
	case 0xC9:
		c.cmp(c.A, c.fetch())
	case 0xC5:
		c.cmp(c.A, c.Memory[c.zp()])
	case 0xD5:
		c.cmp(c.A, c.Memory[c.zpx()])
	case 0xCD:
		c.cmp(c.A, c.Memory[c.abs()])
	case 0xDD:
		c.cmp(c.A, c.Memory[c.absx()])
	case 0xD9:
		c.cmp(c.A, c.Memory[c.absy()])
	case 0xC1:
		c.cmp(c.A, c.Memory[c.indx()])
	case 0xD1:
		c.cmp(c.A, c.Memory[c.indy()])
	case 0xE0:
		c.cmp(c.X, c.fetch())
	case 0xE4:
		c.cmp(c.X, c.Memory[c.zp()])
	case 0xEC:
		c.cmp(c.X, c.Memory[c.abs()])
	case 0xC0:
		c.cmp(c.Y, c.fetch())
	case 0xC4:
		c.cmp(c.Y, c.Memory[c.zp()])
	case 0xCC:
		c.cmp(c.Y, c.Memory[c.abs()])

	// branches
	case 0x90:
		c.branch(!c.C)
	case 0xB0:
		c.branch(c.C)
	case 0xF0:
		c.branch(c.Z)
	case 0xD0:
		c.branch(!c.Z)
	case 0x10:
		c.branch(!c.N)
	case 0x30:
		c.branch(c.N)
	case 0x50:
		c.branch(!c.V)
	case 0x70:
		c.branch(c.V)

	// jumps
	case 0x4C:
		c.PC = c.fetch16()
	case 0x6C:
		c.PC = c.Read16(c.fetch16())
	case 0x20:
		target := c.fetch16()
		c.push16(c.PC - 1)
		c.PC = target
	case 0x60:
		c.PC = c.pop16() + 1
	case 0x40:
		c.setStatus(c.pop())
		c.PC = c.pop16()

	// flags
	case 0x18:
		c.C = false
	case 0x38:
		c.C = true
	case 0xD8:
		c.D = false
	case 0xF8:
		c.D = true
	case 0x58:
		c.I = false
	case 0x78:
		c.I = true
	case 0xB8:
		c.V = false

	default:
		// Undocumented opcode, almost always a sign the program
		// ran off into data. Stop instead of corrupting state.
		c.Halted = true
	}
}

// Run steps until halt or the step limit.
func (c *CPU) Run(maxSteps int) error {
	for !c.Halted {
		if c.Steps >= maxSteps {
			return fmt.Errorf("still running after %d steps, PC=$%04X", maxSteps, c.PC)
		}
		c.Step()
	}
	return nil
}
