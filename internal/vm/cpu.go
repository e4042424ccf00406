package vm

// cpu.go implements the CPU & Registers component (C6): the integer and float register files,
// program counter, and floating-point control/status word. Grounded on the teacher's LC3
// struct and RegisterFile array (internal/vm/vm.go, internal/vm/types.go), generalized from a
// single 16-bit register file to RISC-V's 32-entry integer and float files with NaN-boxing and
// an FCSR.

import "fmt"

// NumIntRegs and NumFloatRegs are the sizes of the two register files.
const (
	NumIntRegs   = 32
	NumFloatRegs = 32
)

// RoundingMode is the FCSR rounding-mode field, rm.
type RoundingMode uint8

const (
	RoundNearestEven RoundingMode = iota
	RoundTowardZero
	RoundDown
	RoundUp
	RoundNearestMaxMag
	_
	_
	_
	RoundDynamic RoundingMode = 0x7
)

// FFlags is the FCSR accrued exception flag field: NV, DZ, OF, UF, NX.
type FFlags uint8

const (
	FlagNX FFlags = 1 << iota // inexact
	FlagUF                    // underflow
	FlagOF                    // overflow
	FlagDZ                    // divide by zero
	FlagNV                    // invalid operation
)

// nanBoxTag marks the upper 32 bits of a 64-bit float register holding a single-precision
// value, per the RISC-V NaN-boxing convention.
const nanBoxTag = 0xffffffff00000000

// CPU holds all single-threaded machine state: the integer and float register files, program
// counter, floating-point control/status, machine width, and the executable segment the
// dispatch loop is currently executing within.
type CPU struct {
	IntRegs [NumIntRegs]uint64
	FPRegs  [NumFloatRegs]uint64

	PC Word

	FCSR FFlags
	RM   RoundingMode
	XLen XLen

	// Cycle, Time, and InstRet back the read-only CSR counters (cycle, time, instret).
	Cycle   uint64
	Time    uint64
	InstRet uint64

	seg *Segment
}

// NewCPU creates a CPU with all registers zeroed.
func NewCPU(xlen XLen) *CPU {
	return &CPU{XLen: xlen, RM: RoundNearestEven}
}

// GetInt reads integer register r, always returning zero for r==0 regardless of what was last
// written to it (writes to x0 are dropped by SetInt, but this guards a direct field mutation
// too).
func (c *CPU) GetInt(r Reg) uint64 {
	if r == 0 {
		return 0
	}

	return truncToXLen(c.IntRegs[r], c.XLen)
}

// SetInt writes v to integer register r. Writes to register 0 are silently dropped.
func (c *CPU) SetInt(r Reg, v uint64) {
	if r == 0 {
		return
	}

	c.IntRegs[r] = v
}

// truncToXLen sign-extends the low 32 bits of a raw register value on rv32, and is a no-op on
// rv64.
func truncToXLen(v uint64, xl XLen) uint64 {
	if xl == XLen32 {
		return uint64(int64(int32(uint32(v))))
	}

	return v
}

// GetFloatSingle reads float register r as a single-precision value, unboxing a NaN-boxed
// register or returning the canonical quiet NaN if the upper bits are not a valid box.
func (c *CPU) GetFloatSingle(r Reg) uint32 {
	v := c.FPRegs[r]
	if v&nanBoxTag != nanBoxTag {
		return 0x7fc00000 // canonical single-precision quiet NaN.
	}

	return uint32(v)
}

// GetFloatDouble reads float register r as a double-precision value.
func (c *CPU) GetFloatDouble(r Reg) uint64 {
	return c.FPRegs[r]
}

// SetFloatSingle writes a single-precision value to float register r, NaN-boxing the upper 32
// bits per the RISC-V convention.
func (c *CPU) SetFloatSingle(r Reg, v uint32) {
	c.FPRegs[r] = nanBoxTag | uint64(v)
}

// SetFloatDouble writes a double-precision value to float register r.
func (c *CPU) SetFloatDouble(r Reg, v uint64) {
	c.FPRegs[r] = v
}

// RaiseFlags ORs the given accrued exception flags into FCSR.
func (c *CPU) RaiseFlags(f FFlags) {
	c.FCSR |= f
}

// EffectiveRoundingMode resolves rm: the value 0x7 (dynamic) defers to FCSR's rm field, any
// other value is the static per-instruction rounding mode.
func (c *CPU) EffectiveRoundingMode(rm RoundingMode) RoundingMode {
	if rm == RoundDynamic {
		return c.RM
	}

	return rm
}

func (c *CPU) String() string {
	return fmt.Sprintf("pc=%s xlen=%s", Word(c.PC), c.XLen)
}
