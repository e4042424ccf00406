// Package disasm renders a decoded instruction segment as RISC-V assembly text, for the
// -disasm flag of cmd/rvrun. Grounded on the teacher's
// internal/asm package, which maps between LC-3 assembly mnemonics and an operator struct
// (ops.go's per-opcode String methods); adapted from LCASM's text-to-machine-code direction to
// machine-code-to-text, and from a hand-written operand grammar to formatting the already-decoded
// [vm.Slot] the emulator's own decoder produces, since there is no separate text grammar to parse
// on this side. Classification is driven by [vm.Bytecode.String]'s mnemonic rather than the
// unexported bytecode constants, which internal/vm deliberately keeps package-private.
package disasm

import (
	"fmt"
	"strings"

	"github.com/rvsim/rvsim/internal/vm"
)

var (
	noOperandOps = set("ecall", "ebreak", "fence", "invalid", "stop")

	branchOps     = set("beq", "bne", "blt", "bge", "bltu", "bgeu")
	branchZeroOps = set("beqz", "bnez")
	jumpOps       = set("jal", "fast-jal", "fast-call")

	loadOps = set("lb", "lbu", "lh", "lhu", "lw", "lwu", "ld", "flw", "fld")
	storeOps = set("sb", "sh", "sw", "sd", "fsw", "fsd")

	upperImmOps = set("lui", "auipc")

	regImmOps = set(
		"addi", "li", "slti", "sltiu", "xori", "ori", "andi",
		"slli", "srli", "srai", "addiw", "slliw", "srliw", "sraiw",
	)

	fusedMultiplyAddOps = set("fmadd", "fmsub", "fnmsub", "fnmadd")

	regRegOps = set(
		"mv", "add", "sub", "sll", "slt", "sltu", "xor", "srl", "sra", "or", "and",
		"addw", "subw", "sllw", "srlw", "sraw",
		"mul", "mulh", "mulhsu", "mulhu", "mulw",
		"div", "divu", "rem", "remu", "divw", "divuw", "remw", "remuw",
		"add.uw", "zext.h", "sh_add",
		"fadd", "fsub", "fmul", "fdiv", "fsgnj", "fsgnjn", "fsgnjx", "fmin", "fmax",
		"feq", "flt", "fle",
	)

	unaryOps = set("fsqrt", "fclass", "fmv.x.w", "fmv.w.x", "fcvt.w.s", "fcvt.s.w")

	csrOps = set("csrrw", "csrrs", "csrrc")
)

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}

	return m
}

// Line formats one decoded instruction at addr as "<addr>:\t<mnemonic> <operands>", an address
// column followed by the instruction text.
func Line(addr vm.Word, s vm.Slot) string {
	return fmt.Sprintf("%s:\t%s", addr, Format(addr, s))
}

// Format renders one decoded instruction's mnemonic and operands, without the address prefix.
// addr is the instruction's own address, needed to turn a branch/jump's PC-relative Imm into an
// absolute target for display. The fast-jal/fast-call forms carry a segment-relative Imm
// instead; [Segment] rebases those to PC-relative before formatting, while Format itself always
// treats Imm as PC-relative.
func Format(addr vm.Word, s vm.Slot) string {
	mnemonic := s.Op.String()

	operands := operandString(addr, mnemonic, s)
	if operands == "" {
		return mnemonic
	}

	return mnemonic + " " + operands
}

func operandString(addr vm.Word, mnemonic string, s vm.Slot) string {
	switch {
	case noOperandOps[mnemonic]:
		return ""

	case branchOps[mnemonic]:
		target := addr + vm.Word(int64(s.Imm))
		return fmt.Sprintf("%s, %s, %s", s.Rs1.ABI(), s.Rs2.ABI(), target)

	case branchZeroOps[mnemonic]:
		target := addr + vm.Word(int64(s.Imm))
		return fmt.Sprintf("%s, %s", s.Rs1.ABI(), target)

	case jumpOps[mnemonic]:
		target := addr + vm.Word(int64(s.Imm))
		if s.Rd == 0 {
			return target.String()
		}

		return fmt.Sprintf("%s, %s", s.Rd.ABI(), target)

	case mnemonic == "jalr":
		return fmt.Sprintf("%s, %d(%s)", s.Rd.ABI(), s.Imm, s.Rs1.ABI())

	case loadOps[mnemonic]:
		return fmt.Sprintf("%s, %d(%s)", s.Rd.ABI(), s.Imm, s.Rs1.ABI())

	case storeOps[mnemonic]:
		return fmt.Sprintf("%s, %d(%s)", s.Rs2.ABI(), s.Imm, s.Rs1.ABI())

	case upperImmOps[mnemonic]:
		return fmt.Sprintf("%s, %#x", s.Rd.ABI(), uint32(s.Imm)>>12)

	case mnemonic == "li":
		return fmt.Sprintf("%s, %d", s.Rd.ABI(), s.Imm)

	case regImmOps[mnemonic]:
		return fmt.Sprintf("%s, %s, %d", s.Rd.ABI(), s.Rs1.ABI(), s.Imm)

	case fusedMultiplyAddOps[mnemonic]:
		rs3 := vm.Reg(s.Imm)
		return fmt.Sprintf("%s, %s, %s, %s", s.Rd.ABI(), s.Rs1.ABI(), s.Rs2.ABI(), rs3.ABI())

	case mnemonic == "mv":
		return fmt.Sprintf("%s, %s", s.Rd.ABI(), s.Rs1.ABI())

	case regRegOps[mnemonic]:
		return fmt.Sprintf("%s, %s, %s", s.Rd.ABI(), s.Rs1.ABI(), s.Rs2.ABI())

	case unaryOps[mnemonic]:
		return fmt.Sprintf("%s, %s", s.Rd.ABI(), s.Rs1.ABI())

	case csrOps[mnemonic]:
		return fmt.Sprintf("%s, %#x, %s", s.Rd.ABI(), uint32(s.Imm), s.Rs1.ABI())

	default:
		return fmt.Sprintf("rd=%s rs1=%s rs2=%s imm=%d", s.Rd.ABI(), s.Rs1.ABI(), s.Rs2.ABI(), s.Imm)
	}
}

// Segment formats every decoded slot of seg as one line per instruction, in program order.
func Segment(seg *vm.Segment) []string {
	lines := make([]string, 0, len(seg.Slots))

	for i, s := range seg.Slots {
		addr := seg.Base + vm.Word(i*4)

		if op := s.Op.String(); op == "fast-jal" || op == "fast-call" {
			s.Imm = int32(int64(seg.Base) + int64(s.Imm) - int64(addr)) // segment- to PC-relative.
		}

		lines = append(lines, Line(addr, s))
	}

	return lines
}

// Text is a convenience wrapper joining [Segment]'s lines with newlines, for writing a full
// disassembly to a console or file in one call.
func Text(seg *vm.Segment) string {
	return strings.Join(Segment(seg), "\n")
}
