package vm

// ops.go implements the Instruction handlers component (C4): one function per [Bytecode]
// computing the semantic effect of one decoded slot against a [CPU] and [Memory]. Grounded on
// the teacher's per-opcode methods in the (now-removed) internal/vm/ops.go, which dispatched
// through a table of closures keyed by opcode and mutated the LC3 struct directly; generalized
// here from LC-3's ADD/AND/NOT/BR set to RV32/64IMAFDC, and from "opcode decides addressing mode
// inline" to "the decoder pre-resolves addressing into the slot, the handler is pure arithmetic."

import (
	"math"
	"math/bits"
)

// opFunc computes one instruction's effect and returns the address of the next instruction.
// Non-branching handlers return pc+len(slot); branching and system handlers compute their own
// target, matching the dispatch-loop contract in SPEC_FULL.md 4.3.
type opFunc func(m *Machine, s *Slot, pc Word) (Word, error)

var opTable [bytecodeCount]opFunc

func init() {
	opTable[bcInvalid] = opInvalid
	opTable[bcFault] = opFault

	opTable[bcAddI] = opAddI
	opTable[bcLoadI] = opLoadI
	opTable[bcMoveReg] = opMoveReg
	opTable[bcSltI] = opSltI
	opTable[bcSltIU] = opSltIU
	opTable[bcXorI] = opXorI
	opTable[bcOrI] = opOrI
	opTable[bcAndI] = opAndI
	opTable[bcSllI] = opSllI
	opTable[bcSrlI] = opSrlI
	opTable[bcSraI] = opSraI
	opTable[bcAddIW] = opAddIW
	opTable[bcSllIW] = opSllIW
	opTable[bcSrlIW] = opSrlIW
	opTable[bcSraIW] = opSraIW

	opTable[bcLui] = opLui
	opTable[bcAuipc] = opAuipc

	opTable[bcLb] = opLoad(1, true)
	opTable[bcLbu] = opLoad(1, false)
	opTable[bcLh] = opLoad(2, true)
	opTable[bcLhu] = opLoad(2, false)
	opTable[bcLw] = opLoad(4, true)
	opTable[bcLwu] = opLoad(4, false)
	opTable[bcLd] = opLoad(8, true)

	opTable[bcSb] = opStore(1)
	opTable[bcSh] = opStore(2)
	opTable[bcSw] = opStore(4)
	opTable[bcSd] = opStore(8)

	opTable[bcBeq] = opBranch(func(a, b uint64) bool { return a == b })
	opTable[bcBne] = opBranch(func(a, b uint64) bool { return a != b })
	opTable[bcBlt] = opBranch(func(a, b uint64) bool { return int64(a) < int64(b) })
	opTable[bcBge] = opBranch(func(a, b uint64) bool { return int64(a) >= int64(b) })
	opTable[bcBltu] = opBranch(func(a, b uint64) bool { return a < b })
	opTable[bcBgeu] = opBranch(func(a, b uint64) bool { return a >= b })
	opTable[bcBeqZ] = opBranch(func(a, b uint64) bool { return a == 0 })
	opTable[bcBneZ] = opBranch(func(a, b uint64) bool { return a != 0 })

	opTable[bcJal] = opJal
	opTable[bcJalr] = opJalr
	opTable[bcFastJal] = opFastJal
	opTable[bcFastCall] = opFastCall

	opTable[bcAdd] = opReg(func(a, b uint64) uint64 { return a + b })
	opTable[bcSub] = opReg(func(a, b uint64) uint64 { return a - b })
	opTable[bcSll] = opReg(func(a, b uint64) uint64 { return a << (b & 0x3f) })
	opTable[bcSlt] = opReg(func(a, b uint64) uint64 { return boolU64(int64(a) < int64(b)) })
	opTable[bcSltu] = opReg(func(a, b uint64) uint64 { return boolU64(a < b) })
	opTable[bcXor] = opReg(func(a, b uint64) uint64 { return a ^ b })
	opTable[bcSrl] = opReg(func(a, b uint64) uint64 { return a >> (b & 0x3f) })
	opTable[bcSra] = opReg(func(a, b uint64) uint64 { return uint64(int64(a) >> (b & 0x3f)) })
	opTable[bcOr] = opReg(func(a, b uint64) uint64 { return a | b })
	opTable[bcAnd] = opReg(func(a, b uint64) uint64 { return a & b })

	opTable[bcAddW] = opRegW(func(a, b uint32) uint32 { return a + b })
	opTable[bcSubW] = opRegW(func(a, b uint32) uint32 { return a - b })
	opTable[bcSllW] = opRegW(func(a, b uint32) uint32 { return a << (b & 0x1f) })
	opTable[bcSrlW] = opRegW(func(a, b uint32) uint32 { return a >> (b & 0x1f) })
	opTable[bcSraW] = opRegW(func(a, b uint32) uint32 { return uint32(int32(a) >> (b & 0x1f)) })

	opTable[bcMul] = opReg(func(a, b uint64) uint64 { return a * b })
	opTable[bcMulh] = opReg(mulh)
	opTable[bcMulhsu] = opReg(mulhsu)
	opTable[bcMulhu] = opReg(func(a, b uint64) uint64 { hi, _ := bits.Mul64(a, b); return hi })
	opTable[bcMulW] = opRegW(func(a, b uint32) uint32 { return a * b })

	opTable[bcDiv] = opReg(sdiv)
	opTable[bcDivu] = opReg(udiv)
	opTable[bcRem] = opReg(srem)
	opTable[bcRemu] = opReg(urem)
	opTable[bcDivW] = opRegW(sdivw)
	opTable[bcDivuW] = opRegW(udivw)
	opTable[bcRemW] = opRegW(sremw)
	opTable[bcRemuW] = opRegW(uremw)

	opTable[bcAddUW] = opReg(func(a, b uint64) uint64 { return uint64(uint32(a)) + b })
	opTable[bcZextH] = opReg(func(a, _ uint64) uint64 { return uint64(uint16(a)) })
	opTable[bcShAdd] = opShAdd

	opTable[bcFlw] = opFLoad(4)
	opTable[bcFld] = opFLoad(8)
	opTable[bcFsw] = opFStore(4)
	opTable[bcFsd] = opFStore(8)

	opTable[bcFmadd] = opFMA(1, 1)
	opTable[bcFmsub] = opFMA(1, -1)
	opTable[bcFnmsub] = opFMA(-1, 1)
	opTable[bcFnmadd] = opFMA(-1, -1)

	opTable[bcFadd] = opFBin(func(a, b float64) float64 { return a + b })
	opTable[bcFsub] = opFBin(func(a, b float64) float64 { return a - b })
	opTable[bcFmul] = opFBin(func(a, b float64) float64 { return a * b })
	opTable[bcFdiv] = opFBin(func(a, b float64) float64 { return a / b })
	opTable[bcFsqrt] = opFSqrt
	opTable[bcFsgnj] = opFSgn(func(_, b bool) bool { return b })
	opTable[bcFsgnjn] = opFSgn(func(_, b bool) bool { return !b })
	opTable[bcFsgnjx] = opFSgn(func(a, b bool) bool { return a != b })
	opTable[bcFmin] = opFMinMax(true)
	opTable[bcFmax] = opFMinMax(false)
	opTable[bcFeq] = opFCompare(func(a, b float64) bool { return a == b })
	opTable[bcFlt] = opFCompare(func(a, b float64) bool { return a < b })
	opTable[bcFle] = opFCompare(func(a, b float64) bool { return a <= b })
	opTable[bcFclass] = opFClass
	opTable[bcFmvXW] = opFmvXW
	opTable[bcFmvWX] = opFmvWX
	opTable[bcFcvtWS] = opFcvtWS
	opTable[bcFcvtSW] = opFcvtSW

	opTable[bcEcall] = opEcall
	opTable[bcEbreak] = opEbreak
	opTable[bcCsrrw] = opCsrrw
	opTable[bcCsrrs] = opCsrrs
	opTable[bcCsrrc] = opCsrrc
	opTable[bcFence] = opNext
	opTable[bcStop] = opStop
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}

func opNext(m *Machine, s *Slot, pc Word) (Word, error) {
	return pc + Word(s.Len), nil
}

func opInvalid(m *Machine, s *Slot, pc Word) (Word, error) {
	return pc, NewFaultAddr(FaultIllegalOpcode, pc)
}

// opFault raises the FaultKind the decoder stashed in s.Imm when it recognized the encoding but
// could not produce a normal bytecode for it -- a disabled extension or an unbuilt one.
func opFault(m *Machine, s *Slot, pc Word) (Word, error) {
	return pc, NewFaultAddr(FaultKind(s.Imm), pc)
}

// --- ALU-immediate ---

func opAddI(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(s.Rd, m.cpu.GetInt(s.Rs1)+uint64(int64(s.Imm)))
	return opNext(m, s, pc)
}

func opLoadI(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(s.Rd, uint64(int64(s.Imm)))
	return opNext(m, s, pc)
}

func opMoveReg(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(s.Rd, m.cpu.GetInt(s.Rs1))
	return opNext(m, s, pc)
}

func opSltI(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(s.Rd, boolU64(int64(m.cpu.GetInt(s.Rs1)) < int64(s.Imm)))
	return opNext(m, s, pc)
}

func opSltIU(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(s.Rd, boolU64(m.cpu.GetInt(s.Rs1) < uint64(int64(s.Imm))))
	return opNext(m, s, pc)
}

func opXorI(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(s.Rd, m.cpu.GetInt(s.Rs1)^uint64(int64(s.Imm)))
	return opNext(m, s, pc)
}

func opOrI(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(s.Rd, m.cpu.GetInt(s.Rs1)|uint64(int64(s.Imm)))
	return opNext(m, s, pc)
}

func opAndI(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(s.Rd, m.cpu.GetInt(s.Rs1)&uint64(int64(s.Imm)))
	return opNext(m, s, pc)
}

func opSllI(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(s.Rd, m.cpu.GetInt(s.Rs1)<<uint(s.Imm))
	return opNext(m, s, pc)
}

func opSrlI(m *Machine, s *Slot, pc Word) (Word, error) {
	v := m.cpu.GetInt(s.Rs1)
	if m.cpu.XLen == XLen32 {
		v = uint64(uint32(v)) // logical shift of the 32-bit value, not its sign extension.
	}

	m.cpu.SetInt(s.Rd, v>>uint(s.Imm))
	return opNext(m, s, pc)
}

func opSraI(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(s.Rd, uint64(int64(m.cpu.GetInt(s.Rs1))>>uint(s.Imm)))
	return opNext(m, s, pc)
}

func opAddIW(m *Machine, s *Slot, pc Word) (Word, error) {
	v := uint32(m.cpu.GetInt(s.Rs1)) + uint32(s.Imm)
	m.cpu.SetInt(s.Rd, Sext32(v))

	return opNext(m, s, pc)
}

func opSllIW(m *Machine, s *Slot, pc Word) (Word, error) {
	v := uint32(m.cpu.GetInt(s.Rs1)) << uint(s.Imm)
	m.cpu.SetInt(s.Rd, Sext32(v))

	return opNext(m, s, pc)
}

func opSrlIW(m *Machine, s *Slot, pc Word) (Word, error) {
	v := uint32(m.cpu.GetInt(s.Rs1)) >> uint(s.Imm)
	m.cpu.SetInt(s.Rd, Sext32(v))

	return opNext(m, s, pc)
}

func opSraIW(m *Machine, s *Slot, pc Word) (Word, error) {
	v := uint32(int32(uint32(m.cpu.GetInt(s.Rs1))) >> uint(s.Imm))
	m.cpu.SetInt(s.Rd, Sext32(v))

	return opNext(m, s, pc)
}

// --- Upper-immediate ---

func opLui(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(s.Rd, uint64(int64(s.Imm)))
	return opNext(m, s, pc)
}

func opAuipc(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(s.Rd, uint64(pc)+uint64(int64(s.Imm)))
	return opNext(m, s, pc)
}

// --- Load/store ---

func opLoad(width int, signed bool) opFunc {
	return func(m *Machine, s *Slot, pc Word) (Word, error) {
		addr := Word(m.cpu.GetInt(s.Rs1) + uint64(int64(s.Imm)))

		v, err := m.mem.readScalar(addr, width)
		if err != nil {
			return pc, err
		}

		if signed {
			v = Sext(v, uint(width*8))
		}

		m.cpu.SetInt(s.Rd, v)

		return opNext(m, s, pc)
	}
}

func opStore(width int) opFunc {
	return func(m *Machine, s *Slot, pc Word) (Word, error) {
		addr := Word(m.cpu.GetInt(s.Rs1) + uint64(int64(s.Imm)))
		if err := m.mem.writeScalar(addr, m.cpu.GetInt(s.Rs2), width); err != nil {
			return pc, err
		}

		return opNext(m, s, pc)
	}
}

// --- Branch ---

func opBranch(taken func(a, b uint64) bool) opFunc {
	return func(m *Machine, s *Slot, pc Word) (Word, error) {
		if !taken(m.cpu.GetInt(s.Rs1), m.cpu.GetInt(s.Rs2)) {
			return pc + Word(s.Len), nil
		}

		target := pc + Word(int64(s.Imm))
		if target%4 != 0 {
			return pc, NewFaultAddr(FaultMisaligned, target)
		}

		return target, nil
	}
}

// --- Jump ---

func opJal(m *Machine, s *Slot, pc Word) (Word, error) {
	target := pc + Word(int64(s.Imm))
	if target%4 != 0 {
		return pc, NewFaultAddr(FaultMisaligned, target)
	}

	m.cpu.SetInt(s.Rd, uint64(pc+Word(s.Len)))

	return target, nil
}

func opJalr(m *Machine, s *Slot, pc Word) (Word, error) {
	target := Word(m.cpu.GetInt(s.Rs1)+uint64(int64(s.Imm))) &^ 1
	if target%4 != 0 {
		return pc, NewFaultAddr(FaultMisaligned, target)
	}

	ret := pc + Word(s.Len)
	m.cpu.SetInt(s.Rd, uint64(ret))

	return target, nil
}

func opFastJal(m *Machine, s *Slot, pc Word) (Word, error) {
	return m.cpu.seg.Base + Word(s.Imm), nil
}

func opFastCall(m *Machine, s *Slot, pc Word) (Word, error) {
	m.cpu.SetInt(1, uint64(pc+Word(s.Len)))
	return m.cpu.seg.Base + Word(s.Imm), nil
}

// --- OP-register ---

func opReg(f func(a, b uint64) uint64) opFunc {
	return func(m *Machine, s *Slot, pc Word) (Word, error) {
		v := f(m.cpu.GetInt(s.Rs1), m.cpu.GetInt(s.Rs2))
		m.cpu.SetInt(s.Rd, v)

		return opNext(m, s, pc)
	}
}

func opRegW(f func(a, b uint32) uint32) opFunc {
	return func(m *Machine, s *Slot, pc Word) (Word, error) {
		v := f(uint32(m.cpu.GetInt(s.Rs1)), uint32(m.cpu.GetInt(s.Rs2)))
		m.cpu.SetInt(s.Rd, Sext32(v))

		return opNext(m, s, pc)
	}
}

func opShAdd(m *Machine, s *Slot, pc Word) (Word, error) {
	shift := uint(s.Imm)
	v := (m.cpu.GetInt(s.Rs1) << shift) + m.cpu.GetInt(s.Rs2)
	m.cpu.SetInt(s.Rd, v)

	return opNext(m, s, pc)
}

// mulh computes the high 64 bits of the signed 128-bit product a*b, via the standard
// two's-complement correction of the unsigned high word for each negative operand.
func mulh(a, b uint64) uint64 {
	hi, _ := bits.Mul64(a, b)

	if int64(a) < 0 {
		hi -= b
	}

	if int64(b) < 0 {
		hi -= a
	}

	return hi
}

func mulhsu(a, b uint64) uint64 {
	hi, _ := bits.Mul64(a, b)
	hi -= uint64(boolU64(int64(a) < 0)) * b

	return hi
}

func sdiv(a, b uint64) uint64 {
	sa, sb := int64(a), int64(b)

	if sb == 0 {
		return ^uint64(0) // all-ones, i.e. -1.
	}

	if sa == math.MinInt64 && sb == -1 {
		return uint64(sa)
	}

	return uint64(sa / sb)
}

func udiv(a, b uint64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}

	return a / b
}

func srem(a, b uint64) uint64 {
	sa, sb := int64(a), int64(b)

	if sb == 0 {
		return a
	}

	if sa == math.MinInt64 && sb == -1 {
		return 0
	}

	return uint64(sa % sb)
}

func urem(a, b uint64) uint64 {
	if b == 0 {
		return a
	}

	return a % b
}

func sdivw(a, b uint32) uint32 {
	sa, sb := int32(a), int32(b)

	if sb == 0 {
		return ^uint32(0)
	}

	if sa == math.MinInt32 && sb == -1 {
		return uint32(sa)
	}

	return uint32(sa / sb)
}

func udivw(a, b uint32) uint32 {
	if b == 0 {
		return ^uint32(0)
	}

	return a / b
}

func sremw(a, b uint32) uint32 {
	sa, sb := int32(a), int32(b)

	if sb == 0 {
		return a
	}

	if sa == math.MinInt32 && sb == -1 {
		return 0
	}

	return uint32(sa % sb)
}

func uremw(a, b uint32) uint32 {
	if b == 0 {
		return a
	}

	return a % b
}

// --- Float ---

func opFLoad(width int) opFunc {
	return func(m *Machine, s *Slot, pc Word) (Word, error) {
		addr := Word(m.cpu.GetInt(s.Rs1) + uint64(int64(s.Imm)))

		v, err := m.mem.readScalar(addr, width)
		if err != nil {
			return pc, err
		}

		if width == 4 {
			m.cpu.SetFloatSingle(s.Rd, uint32(v))
		} else {
			m.cpu.SetFloatDouble(s.Rd, v)
		}

		return opNext(m, s, pc)
	}
}

func opFStore(width int) opFunc {
	return func(m *Machine, s *Slot, pc Word) (Word, error) {
		addr := Word(m.cpu.GetInt(s.Rs1) + uint64(int64(s.Imm)))

		var v uint64
		if width == 4 {
			v = uint64(m.cpu.GetFloatSingle(s.Rs2))
		} else {
			v = m.cpu.GetFloatDouble(s.Rs2)
		}

		if err := m.mem.writeScalar(addr, v, width); err != nil {
			return pc, err
		}

		return opNext(m, s, pc)
	}
}

func (s *Slot) single(m *Machine) bool { return s.Flags&flagSingle != 0 }

func getF(m *Machine, s *Slot, r Reg) float64 {
	if s.single(m) {
		return float64(math.Float32frombits(m.cpu.GetFloatSingle(r)))
	}

	return math.Float64frombits(m.cpu.GetFloatDouble(r))
}

func setF(m *Machine, s *Slot, r Reg, v float64) {
	if s.single(m) {
		m.cpu.SetFloatSingle(r, math.Float32bits(float32(v)))
	} else {
		m.cpu.SetFloatDouble(r, math.Float64bits(v))
	}
}

func opFBin(f func(a, b float64) float64) opFunc {
	return func(m *Machine, s *Slot, pc Word) (Word, error) {
		v := f(getF(m, s, s.Rs1), getF(m, s, s.Rs2))
		setF(m, s, s.Rd, v)

		if math.IsNaN(v) {
			m.cpu.RaiseFlags(FlagNV)
		}

		return opNext(m, s, pc)
	}
}

func opFSqrt(m *Machine, s *Slot, pc Word) (Word, error) {
	a := getF(m, s, s.Rs1)
	v := math.Sqrt(a)
	setF(m, s, s.Rd, v)

	if a < 0 {
		m.cpu.RaiseFlags(FlagNV)
	}

	return opNext(m, s, pc)
}

// opFMA implements the four fused multiply-add/subtract variants: sign1/sign2 flip the sign of
// the product and addend respectively, matching fmadd/fmsub/fnmsub/fnmadd.
func opFMA(signProduct, signAddend float64) opFunc {
	return func(m *Machine, s *Slot, pc Word) (Word, error) {
		rs3 := Reg(s.Imm)
		v := signProduct*getF(m, s, s.Rs1)*getF(m, s, s.Rs2) + signAddend*getF(m, s, rs3)
		setF(m, s, s.Rd, v)

		return opNext(m, s, pc)
	}
}

func opFSgn(combine func(a, b bool) bool) opFunc {
	return func(m *Machine, s *Slot, pc Word) (Word, error) {
		signA := math.Signbit(getF(m, s, s.Rs1))
		signB := math.Signbit(getF(m, s, s.Rs2))

		mag := math.Abs(getF(m, s, s.Rs1))
		if combine(signA, signB) {
			mag = -mag
		}

		setF(m, s, s.Rd, mag)

		return opNext(m, s, pc)
	}
}

func opFMinMax(min bool) opFunc {
	return func(m *Machine, s *Slot, pc Word) (Word, error) {
		a, b := getF(m, s, s.Rs1), getF(m, s, s.Rs2)

		var v float64

		switch {
		case math.IsNaN(a) && math.IsNaN(b):
			v = math.NaN()
			m.cpu.RaiseFlags(FlagNV)
		case math.IsNaN(a):
			v = b
		case math.IsNaN(b):
			v = a
		case min:
			v = math.Min(a, b)
		default:
			v = math.Max(a, b)
		}

		setF(m, s, s.Rd, v)

		return opNext(m, s, pc)
	}
}

func opFCompare(cmp func(a, b float64) bool) opFunc {
	return func(m *Machine, s *Slot, pc Word) (Word, error) {
		a, b := getF(m, s, s.Rs1), getF(m, s, s.Rs2)

		if math.IsNaN(a) || math.IsNaN(b) {
			m.cpu.RaiseFlags(FlagNV)
			m.cpu.SetInt(s.Rd, 0)

			return opNext(m, s, pc)
		}

		m.cpu.SetInt(s.Rd, boolU64(cmp(a, b)))

		return opNext(m, s, pc)
	}
}

func opFClass(m *Machine, s *Slot, pc Word) (Word, error) {
	a := getF(m, s, s.Rs1)

	var class uint64

	switch {
	case math.IsInf(a, -1):
		class = 1 << 0
	case a < 0 && !isSubnormal(a, s.single(m)):
		class = 1 << 1
	case a < 0 && isSubnormal(a, s.single(m)):
		class = 1 << 2
	case a == 0 && math.Signbit(a):
		class = 1 << 3
	case a == 0:
		class = 1 << 4
	case a > 0 && isSubnormal(a, s.single(m)):
		class = 1 << 5
	case a > 0 && !isSubnormal(a, s.single(m)):
		class = 1 << 6
	case math.IsInf(a, 1):
		class = 1 << 7
	case math.IsNaN(a):
		class = 1 << 9 // treat all NaNs as quiet; signaling-NaN detection needs raw bits.
	}

	m.cpu.SetInt(s.Rd, class)

	return opNext(m, s, pc)
}

func isSubnormal(v float64, single bool) bool {
	av := math.Abs(v)
	if single {
		return av != 0 && av < math.SmallestNonzeroFloat32
	}

	return av != 0 && av < math.SmallestNonzeroFloat64
}

func opFmvXW(m *Machine, s *Slot, pc Word) (Word, error) {
	if s.single(m) {
		m.cpu.SetInt(s.Rd, Sext32(m.cpu.GetFloatSingle(s.Rs1)))
	} else {
		m.cpu.SetInt(s.Rd, m.cpu.GetFloatDouble(s.Rs1))
	}

	return opNext(m, s, pc)
}

func opFmvWX(m *Machine, s *Slot, pc Word) (Word, error) {
	if s.single(m) {
		m.cpu.SetFloatSingle(s.Rd, uint32(m.cpu.GetInt(s.Rs1)))
	} else {
		m.cpu.SetFloatDouble(s.Rd, m.cpu.GetInt(s.Rs1))
	}

	return opNext(m, s, pc)
}

func opFcvtWS(m *Machine, s *Slot, pc Word) (Word, error) {
	v := getF(m, s, s.Rs1)

	signed := s.Imm&1 == 0
	wide := s.Imm&2 != 0

	var out uint64

	switch {
	case signed && !wide:
		out = Sext32(uint32(int32(v)))
	case !signed && !wide:
		out = Sext32(uint32(v))
	case signed && wide:
		out = uint64(int64(v))
	default:
		out = uint64(v)
	}

	m.cpu.SetInt(s.Rd, out)

	return opNext(m, s, pc)
}

func opFcvtSW(m *Machine, s *Slot, pc Word) (Word, error) {
	raw := m.cpu.GetInt(s.Rs1)

	signed := s.Imm&1 == 0
	wide := s.Imm&2 != 0

	var v float64

	switch {
	case signed && !wide:
		v = float64(int32(raw))
	case !signed && !wide:
		v = float64(uint32(raw))
	case signed && wide:
		v = float64(int64(raw))
	default:
		v = float64(raw)
	}

	setF(m, s, s.Rd, v)

	return opNext(m, s, pc)
}

// --- System ---

func opEcall(m *Machine, s *Slot, pc Word) (Word, error) {
	if err := m.doSyscall(); err != nil {
		return pc, err
	}

	return opNext(m, s, pc)
}

func opEbreak(m *Machine, s *Slot, pc Word) (Word, error) {
	if err := m.doBreakpoint(); err != nil {
		return pc, err
	}

	return opNext(m, s, pc)
}

func opCsrrw(m *Machine, s *Slot, pc Word) (Word, error) {
	old, err := m.readCSR(uint16(s.Imm))
	if err != nil {
		return pc, err
	}

	if err := m.writeCSR(uint16(s.Imm), m.cpu.GetInt(s.Rs1)); err != nil {
		return pc, err
	}

	m.cpu.SetInt(s.Rd, old)

	return opNext(m, s, pc)
}

func opCsrrs(m *Machine, s *Slot, pc Word) (Word, error) {
	old, err := m.readCSR(uint16(s.Imm))
	if err != nil {
		return pc, err
	}

	if s.Rs1 != 0 {
		if err := m.writeCSR(uint16(s.Imm), old|m.cpu.GetInt(s.Rs1)); err != nil {
			return pc, err
		}
	}

	m.cpu.SetInt(s.Rd, old)

	return opNext(m, s, pc)
}

func opCsrrc(m *Machine, s *Slot, pc Word) (Word, error) {
	old, err := m.readCSR(uint16(s.Imm))
	if err != nil {
		return pc, err
	}

	if s.Rs1 != 0 {
		if err := m.writeCSR(uint16(s.Imm), old&^m.cpu.GetInt(s.Rs1)); err != nil {
			return pc, err
		}
	}

	m.cpu.SetInt(s.Rd, old)

	return opNext(m, s, pc)
}

func opStop(m *Machine, s *Slot, pc Word) (Word, error) {
	m.stop()
	return pc, nil
}
