package vm

import (
	"context"
	"testing"

	"github.com/rvsim/rvsim/internal/log"
)

const testCodeBase = Word(0x1000)

// newTestMachine builds a Machine around a hand-assembled instruction stream, bypassing ELF
// loading entirely -- the teacher's own vm_test.go pokes instruction words directly into memory
// rather than building an object file for every test, and this follows the same shortcut.
func newTestMachine(tb testing.TB, xlen XLen, program []uint32) *Machine {
	tb.Helper()

	mem := NewMemory()
	mem.log = log.DefaultLogger()

	size := len(program) * 4
	mem.MapPages(testCodeBase, size, AttrRead|AttrWrite|AttrExec)

	for i, word := range program {
		if err := mem.WriteUint32(testCodeBase+Word(i*4), word); err != nil {
			tb.Fatalf("writing test program: %v", err)
		}
	}

	seg := &Segment{Base: testCodeBase, Size: Word(size)}
	mem.segments = append(mem.segments, seg)

	cpu := NewCPU(xlen)
	cpu.PC = testCodeBase

	m := &Machine{
		cpu:      cpu,
		mem:      mem,
		dec:      NewDecoder(xlen),
		dispatch: DispatchSwitch,
		ceiling:  ^uint64(0),
		log:      log.DefaultLogger(),
	}
	m.installDefaultSyscalls()

	if err := m.dec.Decode(mem, seg); err != nil {
		tb.Fatalf("decoding test program: %v", err)
	}

	return m
}

func (m *Machine) run(tb testing.TB, steps uint64) {
	tb.Helper()

	if err := m.Simulate(context.Background(), steps); err != nil {
		tb.Fatalf("Simulate: %v", err)
	}
}

// --- RV32/64I encoders used across the test files below. ---

func encodeI(opcode uint32, rd, funct3, rs1 uint32, imm int32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeR(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeS(opcode uint32, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>5)<<25 | rs2<<20 | rs1<<15 | funct3<<12 | (u&0x1f)<<7 | opcode
}

func encodeB(funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	b12 := (u >> 12) & 1
	b11 := (u >> 11) & 1
	b10_5 := (u >> 5) & 0x3f
	b4_1 := (u >> 1) & 0xf

	return b12<<31 | b10_5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | b4_1<<8 | b11<<7 | 0x63
}

func encodeJ(rd uint32, imm int32) uint32 {
	u := uint32(imm)
	b20 := (u >> 20) & 1
	b19_12 := (u >> 12) & 0xff
	b11 := (u >> 11) & 1
	b10_1 := (u >> 1) & 0x3ff

	return b20<<31 | b10_1<<21 | b11<<20 | b19_12<<12 | rd<<7 | 0x6f
}

func addi(rd, rs1 uint32, imm int32) uint32 { return encodeI(0x13, rd, 0x0, rs1, imm) }
func slli(rd, rs1 uint32, sh int32) uint32  { return encodeI(0x13, rd, 0x1, rs1, sh) }
func srli(rd, rs1 uint32, sh int32) uint32  { return encodeI(0x13, rd, 0x5, rs1, sh) }
func jalr(rd, rs1 uint32, imm int32) uint32 { return encodeI(0x67, rd, 0x0, rs1, imm) }
func lw(rd, rs1 uint32, imm int32) uint32   { return encodeI(0x03, rd, 0x2, rs1, imm) }
func sw(rs1, rs2 uint32, imm int32) uint32  { return encodeS(0x23, 0x2, rs1, rs2, imm) }
func jal(rd uint32, imm int32) uint32       { return encodeJ(rd, imm) }
func unimp() uint32                         { return 0 } // opcode 0 decodes to bcInvalid.
