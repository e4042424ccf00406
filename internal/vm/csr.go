package vm

// csr.go implements the small set of control/status registers this core exposes through the
// System bytecode group: the floating-point rounding mode and accrued exception flags, and the
// read-only cycle/time/instret counters. Supervisor-mode CSRs are out of scope (SPEC_FULL.md
// Non-goals); an access to any other CSR address is an illegal operation.

const (
	csrFFlags  = 0x001
	csrFRM     = 0x002
	csrFCSR    = 0x003
	csrCycle   = 0xc00
	csrTime    = 0xc01
	csrInstRet = 0xc02
)

func (m *Machine) readCSR(addr uint16) (uint64, error) {
	switch addr {
	case csrFFlags:
		return uint64(m.cpu.FCSR), nil
	case csrFRM:
		return uint64(m.cpu.RM), nil
	case csrFCSR:
		return uint64(m.cpu.RM)<<5 | uint64(m.cpu.FCSR), nil
	case csrCycle:
		return m.cpu.Cycle, nil
	case csrTime:
		return m.cpu.Time, nil
	case csrInstRet:
		return m.cpu.InstRet, nil
	default:
		return 0, NewFault(FaultIllegalOperation)
	}
}

func (m *Machine) writeCSR(addr uint16, v uint64) error {
	switch addr {
	case csrFFlags:
		m.cpu.FCSR = FFlags(v)
	case csrFRM:
		m.cpu.RM = RoundingMode(v & 0x7)
	case csrFCSR:
		m.cpu.FCSR = FFlags(v & 0x1f)
		m.cpu.RM = RoundingMode((v >> 5) & 0x7)
	case csrCycle, csrTime, csrInstRet:
		return NewFault(FaultIllegalOperation) // read-only counters.
	default:
		return NewFault(FaultIllegalOperation)
	}

	return nil
}
