package vm

import "testing"

func newThreadMachine(tb testing.TB, maxThreads int) *Machine {
	tb.Helper()

	mem := NewMemory()
	cpu := NewCPU(XLen64)

	return &Machine{
		cpu:     cpu,
		mem:     mem,
		threads: NewThreadTable(maxThreads),
		ceiling: ^uint64(0),
	}
}

// TestFutexHandoff exercises spec scenario 5: thread A blocks in futex-wait on address p with
// memory[p]==0; thread B, already suspended, is dequeued and activated; B stores 1 to p and
// futex-wakes it; A becomes runnable again, resumes with a0==0, and observes memory[p]==1.
func TestFutexHandoff(t *testing.T) {
	m := newThreadMachine(t, 4)

	const futexAddr = Word(0x2000)
	m.mem.MapPages(futexAddr, PageSize, AttrRead|AttrWrite)

	// Seed a second thread (B) directly into the suspended queue, as if it had already been
	// spawned and was simply waiting its turn.
	threadB := m.threads.allocSlot()
	m.threads.thread(threadB).state = threadSuspended
	m.threads.suspended = append(m.threads.suspended, threadB)

	// Poison A's a0 so the test can distinguish "left untouched" from "correctly zeroed".
	m.cpu.SetInt(10, 0xdead)

	if err := m.FutexWait(futexAddr, 0); err != nil {
		t.Fatalf("FutexWait: %v", err)
	}

	if got := m.threads.Current(); got != threadB {
		t.Fatalf("current thread = %d, want %d (B)", got, threadB)
	}

	if got := m.threads.thread(0).state; got != threadBlocked {
		t.Errorf("thread A state = %v, want threadBlocked", got)
	}

	// B runs: stores 1 to the futex address, then wakes one waiter.
	if err := m.mem.WriteUint32(futexAddr, 1); err != nil {
		t.Fatalf("WriteUint32: %v", err)
	}

	if err := m.FutexWake(futexAddr, 1); err != nil {
		t.Fatalf("FutexWake: %v", err)
	}

	if got := m.cpu.GetInt(10); got != 1 {
		t.Errorf("B's a0 (futex_wake return) = %d, want 1", got)
	}

	if got := m.threads.thread(0).state; got != threadSuspended {
		t.Errorf("thread A state after wake = %v, want threadSuspended", got)
	}

	// Hand control back to A the way sched_yield or the dispatch loop would: the suspended
	// queue now holds A, so B yielding should reactivate it.
	if err := m.SchedYield(); err != nil {
		t.Fatalf("SchedYield: %v", err)
	}

	if got := m.threads.Current(); got != 0 {
		t.Fatalf("current thread after yield = %d, want 0 (A)", got)
	}

	if got := m.cpu.GetInt(10); got != 0 {
		t.Errorf("A's a0 on resume = %d, want 0 (futex_wait return value)", got)
	}

	val, err := m.mem.ReadUint32(futexAddr)
	if err != nil {
		t.Fatalf("ReadUint32: %v", err)
	}

	if val != 1 {
		t.Errorf("memory[p] = %d, want 1", val)
	}
}

// TestFutexWaitMismatchReturnsEAGAIN exercises the non-blocking path: a mismatched expected
// value returns -EAGAIN without touching any queue.
func TestFutexWaitMismatchReturnsEAGAIN(t *testing.T) {
	m := newThreadMachine(t, 4)

	const addr = Word(0x3000)
	m.mem.MapPages(addr, PageSize, AttrRead|AttrWrite)

	if err := m.mem.WriteUint32(addr, 7); err != nil {
		t.Fatalf("WriteUint32: %v", err)
	}

	if err := m.FutexWait(addr, 0); err != nil {
		t.Fatalf("FutexWait: %v", err)
	}

	if got := int64(m.cpu.GetInt(10)); got != errEAGAIN {
		t.Errorf("a0 = %d, want %d (-EAGAIN)", got, errEAGAIN)
	}

	if got := m.threads.Current(); got != 0 {
		t.Errorf("current thread changed on a non-blocking wait: %d", got)
	}
}

// TestFutexWaitDeadlock exercises the deadlock fault: blocking with no other runnable thread
// must raise FaultDeadlock rather than hang.
func TestFutexWaitDeadlock(t *testing.T) {
	m := newThreadMachine(t, 4)

	const addr = Word(0x3000)
	m.mem.MapPages(addr, PageSize, AttrRead|AttrWrite)

	err := m.FutexWait(addr, 0)
	if err == nil {
		t.Fatal("expected a deadlock fault, got nil")
	}

	fault, ok := err.(*Fault)
	if !ok || fault.Kind != FaultDeadlock {
		t.Errorf("err = %v, want FaultDeadlock", err)
	}
}

// TestCloneSuspendsParent exercises the invariant that every live thread is current, suspended,
// or blocked: after clone, the parent must be resumable via the suspended queue, not lost.
func TestCloneSuspendsParent(t *testing.T) {
	m := newThreadMachine(t, 4)

	childID, err := m.Clone(0x8000, 0, 0, 0, false, false)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	if got := m.threads.Current(); got != childID {
		t.Fatalf("current thread = %d, want %d (child)", got, childID)
	}

	if got := m.cpu.GetInt(10); got != 0 {
		t.Errorf("child a0 = %d, want 0", got)
	}

	if len(m.threads.suspended) != 1 || m.threads.suspended[0] != 0 {
		t.Fatalf("suspended queue = %v, want [0] (parent)", m.threads.suspended)
	}

	if got := m.threads.thread(0).state; got != threadSuspended {
		t.Errorf("parent state = %v, want threadSuspended", got)
	}
}

// TestExitNonMainHandsOffToSuspended exercises the exit/exit_group hand-off: a non-main thread
// exiting with another thread suspended activates it rather than stopping the machine.
func TestExitNonMainHandsOffToSuspended(t *testing.T) {
	m := newThreadMachine(t, 4)

	childID, err := m.Clone(0x8000, 0, 0, 0, false, false)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	if err := m.Exit(0); err != nil {
		t.Fatalf("Exit: %v", err)
	}

	if m.Stopped() {
		t.Fatal("machine stopped, want hand-off to the suspended parent")
	}

	if got := m.threads.Current(); got != 0 {
		t.Errorf("current thread = %d, want 0 (resumed parent)", got)
	}

	if got := m.threads.thread(childID).live; got {
		t.Errorf("exited child slot still marked live")
	}
}
