package vm

// machine.go implements the Machine API (C5/C9): it binds CPU, Memory, and Decoder together and
// exposes the embedder-facing surface. Grounded on the teacher's LC3 struct and New constructor
// (internal/vm/vm.go) -- the "one struct owns every component, New assembles it from OptionFn
// values applied in two passes" shape is kept; generalized from the teacher's fixed LC-3 device
// table to a RISC-V syscall table, VMCall's calling-convention marshaling, and the thread
// multiplexer/arena the LC-3 has no equivalent of.

import (
	"context"
	"fmt"
	"io"

	"github.com/rvsim/rvsim/internal/log"
)

const syscallTableSize = 512

// SyscallFunc is a host callback invoked when the guest executes ecall. It reads arguments from
// and writes a return value into the integer register file via m, and may fault.
type SyscallFunc func(m *Machine) error

// Machine composes a CPU and a Memory, owns the system-call table, the instruction ceiling, and
// optional guest-thread multiplexer and arena, and is the embedder-facing type of the package.
type Machine struct {
	cpu *CPU
	mem *Memory
	dec *Decoder

	dispatch DispatchMode

	syscalls [syscallTableSize]SyscallFunc

	stopped bool
	ceiling uint64

	threads *ThreadTable
	arena   *Arena

	symbols   map[string]Word
	entry     Word
	phdrs     []ProgHeader
	phentsize int

	destructors []func()

	log *log.Logger
}

// New creates a Machine from an ELF image, applying opts in the teacher's two-phase pattern:
// every OptionFn runs once during early construction (before the image is loaded) and once
// during late construction (after), so options that need the loaded symbol table and options
// that need to run before any guest code executes both have a hook.
func New(image io.ReaderAt, opts ...OptionFn) (*Machine, error) {
	m := &Machine{
		dispatch: DispatchSwitch,
		ceiling:  ^uint64(0),
		log:      log.DefaultLogger(),
	}

	for _, opt := range opts {
		opt(m, false)
	}

	m.mem = NewMemory()
	m.mem.log = m.log

	result, err := LoadELF(m.mem, image, m.log)
	if err != nil {
		return nil, err
	}

	m.cpu = NewCPU(result.XLen)
	m.cpu.PC = result.Entry
	m.dec = NewDecoder(result.XLen)
	m.symbols = result.Symbols
	m.entry = result.Entry
	m.phdrs = result.Phdrs
	m.phentsize = result.Phentsize

	m.mem.StackBase = m.mem.MapPages(defaultStackTop-defaultStackSize, defaultStackSize, AttrRead|AttrWrite) + Word(defaultStackSize)
	m.cpu.SetInt(2, uint64(m.mem.StackBase)) // sp

	m.installDefaultSyscalls()

	for _, opt := range opts {
		opt(m, true)
	}

	return m, nil
}

const (
	defaultStackSize = 8 * 1024 * 1024
	defaultStackTop  = Word(0x7fff_f000_0000)
)

// Simulate runs the dispatch loop until the stop flag is set, the instruction ceiling is
// reached, or a fault propagates. max, if non-zero, replaces the current ceiling before
// running; a zero max runs until the machine's existing ceiling or stop flag takes effect. The
// ceiling bounds the instructions retired by this one call.
func (m *Machine) Simulate(ctx context.Context, max uint64) error {
	if max != 0 {
		m.ceiling = max
	}

	m.stopped = false

	return runDispatch(ctx, m, m.dispatch)
}

// Stop sets the stop flag; the dispatch loop exits after the current handler returns.
func (m *Machine) Stop() { m.stopped = true }

// Stopped reports whether the stop flag is set.
func (m *Machine) Stopped() bool { return m.stopped }

func (m *Machine) stop() { m.stopped = true }

// InstallSyscallHandler registers fn at the given system-call table index.
func (m *Machine) InstallSyscallHandler(index int, fn SyscallFunc) error {
	if index < 0 || index >= len(m.syscalls) {
		return fmt.Errorf("%w: syscall index %d out of range", ErrMemory, index)
	}

	m.syscalls[index] = fn

	return nil
}

// CopyToGuest writes data into guest memory at dst.
func (m *Machine) CopyToGuest(dst Word, data []byte) error {
	return m.mem.CopyToGuest(dst, data)
}

// CopyFromGuest reads len(dst) bytes of guest memory at src into dst.
func (m *Machine) CopyFromGuest(dst []byte, src Word) (int, error) {
	return m.mem.CopyFromGuest(dst, src)
}

// AddressOf resolves a symbol to its guest address, returning 0 if the symbol is not present in
// the loaded ELF image's symbol table.
func (m *Machine) AddressOf(name string) Word {
	return m.symbols[name]
}

// ProgHeaders returns the loaded image's program-header table and per-entry wire size, for an
// embedder building the guest-visible AT_PHDR/AT_PHENT/AT_PHNUM auxiliary vector entries (see
// internal/bootstrap).
func (m *Machine) ProgHeaders() ([]ProgHeader, int) {
	return m.phdrs, m.phentsize
}

// Entry returns the loaded image's ELF entry point, independent of where PC has since moved.
func (m *Machine) Entry() Word {
	return m.entry
}

// Brk implements the guest's brk(2): see [Memory.Brk].
func (m *Machine) Brk(addr Word) Word {
	return m.mem.Brk(addr)
}

// Malloc allocates size bytes from the arena installed by [WithArena], returning 0 if no arena
// is attached or no chunk large enough is free.
func (m *Machine) Malloc(size int) Word {
	if m.arena == nil {
		return 0
	}

	return m.arena.Malloc(size)
}

// Free returns an arena allocation obtained from Malloc/Realloc to the free list.
func (m *Machine) Free(addr Word) error {
	if m.arena == nil {
		return fmt.Errorf("%w: arena allocator not enabled", ErrFault)
	}

	return m.arena.Free(addr)
}

// Realloc resizes an existing arena allocation, preserving contents up to min(old, new) size.
func (m *Machine) Realloc(addr Word, newSize int) Word {
	if m.arena == nil {
		return 0
	}

	return m.arena.Realloc(addr, newSize)
}

// SegmentAt returns the executable segment containing addr, decoding it on first use if
// necessary, for an embedder that wants to disassemble guest code (see internal/disasm) without
// first running it.
func (m *Machine) SegmentAt(addr Word) (*Segment, error) {
	seg := m.mem.segmentFor(addr)
	if seg == nil {
		return nil, NewFaultAddr(FaultExecProtection, addr)
	}

	if !seg.decoded {
		if err := m.dec.Decode(m.mem, seg); err != nil {
			return nil, err
		}
	}

	return seg, nil
}

// AddDestructorCallback queues fn to run when Close is called, in reverse registration order.
func (m *Machine) AddDestructorCallback(fn func()) {
	m.destructors = append(m.destructors, fn)
}

// Close runs every registered destructor callback in reverse registration order.
func (m *Machine) Close() error {
	for i := len(m.destructors) - 1; i >= 0; i-- {
		m.destructors[i]()
	}

	return nil
}

// CPU returns the machine's register file and program counter, for embedders that need direct
// access (e.g. a debugger front end).
func (m *Machine) CPU() *CPU { return m.cpu }

// Memory returns the machine's paged address space.
func (m *Machine) Memory() *Memory { return m.mem }

func (m *Machine) doSyscall() error {
	num := m.cpu.GetInt(17) // a7: Linux RISC-V syscall-number convention.

	if num >= uint64(len(m.syscalls)) || m.syscalls[num] == nil {
		return fmt.Errorf("%w: unhandled syscall %d", ErrFault, num)
	}

	return m.syscalls[num](m)
}

func (m *Machine) doBreakpoint() error {
	if m.syscalls[0] != nil {
		return m.syscalls[0](m)
	}

	m.stop()

	return nil
}

// stopExitAddr is the canonical PC value VMCall installs into RA: a fixed, never-mapped address
// whose decoded slot is always bcStop, regardless of what (if anything) is mapped there.
const stopExitAddr = Word(0xffff_ffff_ffff_fff0)

var stopSegment = &Segment{
	Base:    stopExitAddr,
	Size:    4,
	Slots:   []Slot{{Op: bcStop, Len: 4, Run: 1}},
	decoded: true,
}

// VMCall resolves symbol via the ELF symbol table, marshals args into the integer calling
// convention (a0..a7), points RA at a distinguished stop address, sets PC to the symbol, and
// runs the dispatch loop until that stop slot executes. It returns the value left in a0.
func (m *Machine) VMCall(ctx context.Context, symbol string, args ...uint64) (uint64, error) {
	addr := m.AddressOf(symbol)
	if addr == 0 {
		return 0, fmt.Errorf("%w: symbol %q not found", ErrFault, symbol)
	}

	if len(args) > 8 {
		return 0, fmt.Errorf("%w: VMCall supports at most 8 integer arguments, got %d", ErrFault, len(args))
	}

	savedRA := m.cpu.GetInt(1)
	savedPC := m.cpu.PC

	for i, a := range args {
		m.cpu.SetInt(Reg(10+i), a) // a0..a7
	}

	m.cpu.SetInt(1, uint64(stopExitAddr))
	m.cpu.PC = addr
	m.cpu.seg = m.mem.segmentFor(addr)

	if m.cpu.seg == nil {
		return 0, NewFaultAddr(FaultExecProtection, addr)
	}

	if !m.cpu.seg.decoded {
		if err := m.dec.Decode(m.mem, m.cpu.seg); err != nil {
			return 0, err
		}
	}

	err := m.Simulate(ctx, 0)

	ret := m.cpu.GetInt(10) // a0

	m.cpu.SetInt(1, savedRA)
	m.cpu.PC = savedPC

	return ret, err
}
