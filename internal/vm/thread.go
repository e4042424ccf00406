package vm

// thread.go implements the guest-thread multiplexer (C8): an in-process cooperative scheduler
// for clone/exit/sched_yield/futex running entirely within the single host thread that calls
// Simulate. Per the spec's anti-cyclic-structure design note, threads are stored in an
// arena+index slotmap owned by the ThreadTable and referenced everywhere by a 32-bit id, never
// by pointer; the suspended and blocked queues hold ids in FIFOs. Grounded structurally on the
// teacher's device-table indirection style (internal/vm/vm.go's devices map keeping every
// component behind a lookup rather than an embedded pointer graph), adapted from "map of
// address to device" to "slice of slot to thread, indexed by id."

import "fmt"

// ThreadID identifies a guest thread. The main thread is always 0.
type ThreadID uint32

// threadState discriminates where a thread sits: running (the current thread), suspended
// (runnable, waiting its turn), or blocked (waiting on a futex address).
type threadState uint8

const (
	threadRunning threadState = iota
	threadSuspended
	threadBlocked
	threadExited
)

// RegSnapshot is a saved continuation: the full integer and float register files plus PC. The
// vector file, if ever added, is deliberately excluded to keep snapshot cost low, per the
// spec's design note.
type RegSnapshot struct {
	IntRegs [NumIntRegs]uint64
	FPRegs  [NumFloatRegs]uint64
	PC      Word
}

// guestThread is one slot in the ThreadTable's arena. live is false for a freed slot available
// for reuse; reuse is guarded by generation so a stale ThreadID cannot alias a new thread.
type guestThread struct {
	live       bool
	generation uint32

	state     threadState
	regs      RegSnapshot
	stackBase Word
	stackSize int
	clearTID  Word // CHILD_CLEARTID address, zero if none.
	blockAddr Word // futex address this thread is blocked on.
}

// ThreadTable is the guest-thread multiplexer: an arena of thread slots, a FIFO of suspended
// (runnable) thread ids, a FIFO-searchable set of blocked thread ids, and the id of the thread
// the dispatch loop is currently driving.
type ThreadTable struct {
	slots   []guestThread
	free    []uint32 // indices of dead slots available for reuse.
	current ThreadID

	suspended []ThreadID
	blocked   []ThreadID

	exitCode int
	mainDone bool
}

// NewThreadTable creates a multiplexer with room preallocated for maxThreads threads and a main
// thread (id 0) already running. maxThreads is not a limit: Clone grows the table past it.
func NewThreadTable(maxThreads int) *ThreadTable {
	t := &ThreadTable{
		slots: make([]guestThread, 1, maxThreads),
	}
	t.slots[0] = guestThread{live: true, state: threadRunning}

	return t
}

func (t *ThreadTable) thread(id ThreadID) *guestThread {
	return &t.slots[id]
}

// Current returns the id of the thread the dispatch loop should be driving.
func (t *ThreadTable) Current() ThreadID { return t.current }

// saveCurrent snapshots cpu's register state into the current thread's slot.
func (t *ThreadTable) saveCurrent(cpu *CPU) {
	th := t.thread(t.current)
	th.regs.IntRegs = cpu.IntRegs
	th.regs.FPRegs = cpu.FPRegs
	th.regs.PC = cpu.PC
}

// activate restores id's saved registers into cpu and makes it current.
func (t *ThreadTable) activate(cpu *CPU, id ThreadID) {
	th := t.thread(id)
	cpu.IntRegs = th.regs.IntRegs
	cpu.FPRegs = th.regs.FPRegs
	cpu.PC = th.regs.PC

	th.state = threadRunning
	t.current = id
}

// dequeueSuspended pops and returns the next suspended thread id, or false if none are waiting.
func (t *ThreadTable) dequeueSuspended() (ThreadID, bool) {
	if len(t.suspended) == 0 {
		return 0, false
	}

	id := t.suspended[0]
	t.suspended = t.suspended[1:]

	return id, true
}

func (t *ThreadTable) allocSlot() ThreadID {
	if len(t.free) > 0 {
		idx := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.slots[idx].generation++
		t.slots[idx].live = true

		return ThreadID(idx)
	}

	t.slots = append(t.slots, guestThread{live: true})

	return ThreadID(len(t.slots) - 1)
}

// Clone implements the guest-visible clone/clone3 semantics of spec.md 4.6: it allocates a new
// thread id, snapshots the parent's registers with a0 set to the new id, and switches the
// current-thread pointer to the child with the given stack pointer and TLS pointer installed.
// setTID/clearTID implement CHILD_SETTID/CHILD_CLEARTID.
func (m *Machine) Clone(stackPtr, tlsPtr Word, setTIDAddr, clearTIDAddr Word, setTID, clearTID bool) (ThreadID, error) {
	t := m.threads
	if t == nil {
		return 0, fmt.Errorf("%w: thread multiplexer not enabled", ErrFault)
	}

	t.saveCurrent(m.cpu)

	childID := t.allocSlot()
	child := t.thread(childID)

	parent := t.thread(t.current)
	child.regs = parent.regs
	child.regs.IntRegs[2] = uint64(stackPtr) // sp
	child.regs.IntRegs[4] = uint64(tlsPtr)   // tp

	if clearTID {
		child.clearTID = clearTIDAddr
	}

	m.cpu.SetInt(10, uint64(childID)) // parent's a0 gets the new tid.
	t.saveCurrent(m.cpu)              // re-snapshot parent now that a0 is set.

	if setTID {
		if err := m.mem.WriteUint32(setTIDAddr, uint32(childID)); err != nil {
			return 0, err
		}
	}

	// The parent is still live but no longer current: per the invariant that every live thread
	// is current, suspended, or blocked, it joins the suspended queue so a later yield/exit
	// hand-off can resume it.
	parent.state = threadSuspended
	t.suspended = append(t.suspended, t.current)

	t.activate(m.cpu, childID)
	m.cpu.SetInt(10, 0) // child's a0 is 0, the fork-like convention.

	return childID, nil
}

// Exit implements exit/exit_group: a main-thread exit stops the machine; a non-main exit clears
// the CHILD_CLEARTID address if set, then hands off to the next suspended thread, or stops the
// machine if none remain.
func (m *Machine) Exit(code int) error {
	t := m.threads
	if t == nil {
		m.stop()
		return nil
	}

	cur := t.thread(t.current)
	cur.state = threadExited
	cur.live = false
	t.free = append(t.free, uint32(t.current))

	if t.current == 0 {
		t.exitCode = code
		t.mainDone = true
		m.stop()

		return nil
	}

	if cur.clearTID != 0 {
		if err := m.mem.WriteUint32(cur.clearTID, 0); err != nil {
			return err
		}
	}

	next, ok := t.dequeueSuspended()
	if !ok {
		m.stop()
		return nil
	}

	t.activate(m.cpu, next)

	return nil
}

// SchedYield implements sched_yield: with nothing else runnable it is a no-op returning 0;
// otherwise the current thread is suspended behind the next runnable thread.
func (m *Machine) SchedYield() error {
	t := m.threads
	if t == nil {
		m.cpu.SetInt(10, 0)
		return nil
	}

	next, ok := t.dequeueSuspended()
	if !ok {
		m.cpu.SetInt(10, 0)
		return nil
	}

	m.cpu.SetInt(10, 0)
	t.saveCurrent(m.cpu)

	cur := t.thread(t.current)
	cur.state = threadSuspended
	t.suspended = append(t.suspended, t.current)

	t.activate(m.cpu, next)

	return nil
}

const errEAGAIN = -11

// FutexWait implements futex-wait(addr, expected): a mismatch returns -EAGAIN without yielding;
// a match blocks the current thread and activates the next suspended thread, raising a deadlock
// fault if none exists.
func (m *Machine) FutexWait(addr Word, expected uint32) error {
	t := m.threads
	if t == nil {
		return fmt.Errorf("%w: thread multiplexer not enabled", ErrFault)
	}

	cur, err := m.mem.ReadUint32(addr)
	if err != nil {
		return err
	}

	if cur != expected {
		eagain := int64(errEAGAIN)
		m.cpu.SetInt(10, uint64(eagain))
		return nil
	}

	next, ok := t.dequeueSuspended()
	if !ok {
		return NewFaultAddr(FaultDeadlock, addr)
	}

	t.saveCurrent(m.cpu)

	blocking := t.thread(t.current)
	blocking.state = threadBlocked
	blocking.blockAddr = addr
	// futex-wait returns 0 on the eventual wake; write it into the blocking thread's own saved
	// snapshot now, since cpu is about to start representing a different thread entirely.
	blocking.regs.IntRegs[10] = 0
	t.blocked = append(t.blocked, t.current)

	t.activate(m.cpu, next)

	return nil
}

// FutexWake implements futex-wake(addr, n): up to n threads blocked on addr move from the
// blocked set to the suspended queue; the count actually moved is returned in a0.
func (m *Machine) FutexWake(addr Word, n int) error {
	t := m.threads
	if t == nil {
		return fmt.Errorf("%w: thread multiplexer not enabled", ErrFault)
	}

	var (
		woken  int
		remain = t.blocked[:0]
	)

	for _, id := range t.blocked {
		th := t.thread(id)

		if woken < n && th.blockAddr == addr {
			th.state = threadSuspended
			t.suspended = append(t.suspended, id)
			woken++

			continue
		}

		remain = append(remain, id)
	}

	t.blocked = remain

	m.cpu.SetInt(10, uint64(woken))

	return nil
}
