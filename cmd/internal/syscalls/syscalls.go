// Package syscalls installs an illustrative system-call table over a *vm.Machine: just enough
// of the Linux/RISC-V ABI (read, write, exit, exit_group, brk, sched_yield, clone, futex,
// set_tid_address, and an arena-backed mmap stub) to run
// a freestanding guest binary and exercise the thread multiplexer and arena the core package
// implements but does not itself populate a table for. This is demo code, not part of the core
// emulator's public surface -- SPEC_FULL.md draws that boundary explicitly, the same way the
// teacher kept LC-3 device wiring (trap vector table, keyboard/display MMIO) out of internal/vm
// and in the cmd/ tree.
package syscalls

import (
	"fmt"

	"github.com/rvsim/rvsim/cmd/internal/console"
	"github.com/rvsim/rvsim/internal/vm"
)

// Linux/RISC-V syscall numbers for the subset this package backs. See asm-generic/unistd.h;
// RISC-V uses the generic table on both XLen32 and XLen64.
const (
	sysRead           = 63
	sysWrite          = 64
	sysExit           = 93
	sysExitGroup      = 94
	sysSetTidAddress  = 96
	sysFutex          = 98
	sysSchedYield     = 124
	sysClone          = 220
	sysBrk            = 214
	sysMmap           = 222
)

// clone(2) flag bits this package understands; see include/uapi/linux/sched.h.
const (
	cloneChildSetTID   = 0x01000000
	cloneChildClearTID = 0x00200000
)

var errFaultNum int64 = -14 // -EFAULT, returned in a0 when a guest pointer can't be read/written.

// Install wires read/write/exit/exit_group/brk/sched_yield/clone/futex/set_tid_address/mmap
// onto m, with stdin/
// stdout/stderr backed by con. con may be nil, in which case read always returns EOF and write
// is dropped -- useful for running a guest under test with no terminal attached.
func Install(m *vm.Machine, con *console.Console) error {
	handlers := map[int]vm.SyscallFunc{
		sysRead:          read(con),
		sysWrite:         write(con),
		sysExit:          exit,
		sysExitGroup:     exit,
		sysBrk:           brk,
		sysSchedYield:    schedYield,
		sysClone:         clone,
		sysFutex:         futex,
		sysSetTidAddress: setTidAddress,
		sysMmap:          mmapStub,
	}

	for num, fn := range handlers {
		if err := m.InstallSyscallHandler(num, fn); err != nil {
			return fmt.Errorf("installing syscall %d: %w", num, err)
		}
	}

	return nil
}

// read backs read(fd, buf, count); only fd 0 is meaningful, and con nil means EOF.
func read(con *console.Console) vm.SyscallFunc {
	return func(m *vm.Machine) error {
		fd := m.CPU().GetInt(10)
		addr := vm.Word(m.CPU().GetInt(11))
		count := m.CPU().GetInt(12)

		if fd != 0 || con == nil || count == 0 {
			m.CPU().SetInt(10, 0)
			return nil
		}

		buf := make([]byte, count)

		n, err := con.Read(buf)
		if err != nil && n == 0 {
			m.CPU().SetInt(10, 0) // EOF reads as a zero-length return, not a fault.
			return nil
		}

		if err := m.CopyToGuest(addr, buf[:n]); err != nil {
			m.CPU().SetInt(10, uint64(int64(errFaultNum)))
			return nil
		}

		m.CPU().SetInt(10, uint64(n))

		return nil
	}
}

// write backs write(fd, buf, count) for fd 1 and 2; any other fd is silently discarded.
func write(con *console.Console) vm.SyscallFunc {
	return func(m *vm.Machine) error {
		fd := m.CPU().GetInt(10)
		addr := vm.Word(m.CPU().GetInt(11))
		count := m.CPU().GetInt(12)

		buf := make([]byte, count)

		n, err := m.CopyFromGuest(buf, addr)
		if err != nil {
			m.CPU().SetInt(10, uint64(int64(errFaultNum)))
			return nil
		}

		if (fd == 1 || fd == 2) && con != nil {
			if _, err := con.Write(buf[:n]); err != nil {
				m.CPU().SetInt(10, uint64(int64(errFaultNum)))
				return nil
			}
		}

		m.CPU().SetInt(10, uint64(n))

		return nil
	}
}

func exit(m *vm.Machine) error {
	code := int(m.CPU().GetInt(10))
	return m.Exit(code)
}

// brk backs brk(addr): addr==0 queries the break, otherwise grows or shrinks it.
func brk(m *vm.Machine) error {
	addr := vm.Word(m.CPU().GetInt(10))
	newBrk := m.Brk(addr)
	m.CPU().SetInt(10, uint64(newBrk))

	return nil
}

func schedYield(m *vm.Machine) error {
	return m.SchedYield()
}

// clone backs clone(flags, child_stack, parent_tid_ptr, tls, child_tid_ptr), the generic
// (non-CLONE_BACKWARDS) argument order RISC-V uses.
func clone(m *vm.Machine) error {
	flags := m.CPU().GetInt(10)
	stackPtr := vm.Word(m.CPU().GetInt(11))
	tlsPtr := vm.Word(m.CPU().GetInt(13))
	clearTIDAddr := vm.Word(m.CPU().GetInt(14))

	setTID := flags&cloneChildSetTID != 0
	clearTID := flags&cloneChildClearTID != 0

	_, err := m.Clone(stackPtr, tlsPtr, clearTIDAddr, clearTIDAddr, setTID, clearTID)

	return err
}

// futex backs the two futex(2) operations the thread multiplexer needs: FUTEX_WAIT (op 0) and
// FUTEX_WAKE (op 1). Only the low four bits of op are kept, which drops FUTEX_PRIVATE_FLAG (128)
// and FUTEX_CLOCK_REALTIME (256).
func futex(m *vm.Machine) error {
	const (
		futexOpMask = 0xf
		futexWait   = 0
		futexWake   = 1
	)

	addr := vm.Word(m.CPU().GetInt(10))
	op := m.CPU().GetInt(11) & futexOpMask
	val := uint32(m.CPU().GetInt(12))

	switch op {
	case futexWait:
		return m.FutexWait(addr, val)
	case futexWake:
		return m.FutexWake(addr, int(val))
	default:
		m.CPU().SetInt(10, uint64(int64(errFaultNum)))
		return nil
	}
}

// setTidAddress backs set_tid_address(tidptr): this package does not track a guest-visible tid
// distinct from the internal ThreadID, so it always returns 0 (the main thread's id), whichever
// thread calls it, and otherwise no-ops; tidptr is not recorded.
func setTidAddress(m *vm.Machine) error {
	m.CPU().SetInt(10, 0)
	return nil
}

// mmapStub backs just enough of mmap(2) to satisfy a guest's anonymous-mapping allocation
// requests by delegating to the arena: length in a1, everything else (prot/flags/fd/offset)
// ignored, since this package only targets MAP_ANONYMOUS|MAP_PRIVATE callers. Returns the mapped
// address in a0, or -ENOMEM if no arena is attached or it is exhausted.
func mmapStub(m *vm.Machine) error {
	var errNoMem int64 = -12

	length := int(m.CPU().GetInt(11))

	addr := m.Malloc(length)
	if addr == 0 {
		m.CPU().SetInt(10, uint64(int64(errNoMem)))
		return nil
	}

	m.CPU().SetInt(10, uint64(addr))

	return nil
}
