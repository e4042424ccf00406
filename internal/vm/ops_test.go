package vm

import (
	"context"
	"testing"
)

// TestArithmeticRoundTrip exercises spec scenario 2: shifting a word's sign bit off and back
// must produce the architecture's maximum positive value, on both 32- and 64-bit machines.
func TestArithmeticRoundTrip(t *testing.T) {
	program := []uint32{
		addi(10, 0, -1), // addi a0, x0, -1
		slli(10, 10, 1), // slli a0, a0, 1
		srli(10, 10, 1), // srli a0, a0, 1
	}

	t.Run("rv32", func(t *testing.T) {
		m := newTestMachine(t, XLen32, program)
		m.run(t, 3)

		if got := m.cpu.GetInt(10); got != 0x7fffffff {
			t.Errorf("a0 = %#x, want 0x7fffffff", got)
		}
	})

	t.Run("rv64", func(t *testing.T) {
		m := newTestMachine(t, XLen64, program)
		m.run(t, 3)

		if got := m.cpu.GetInt(10); got != 0x7fffffffffffffff {
			t.Errorf("a0 = %#x, want 0x7fffffffffffffff", got)
		}
	})
}

// TestBranchAndLink exercises spec scenario 3: a forward jal that skips a run of invalid
// instructions, a delayed write to a0, and a jalr-based return whose link register still
// carries the original call site.
func TestBranchAndLink(t *testing.T) {
	program := []uint32{
		jal(1, 16),      // 0x1000: jal ra, +16
		unimp(),         // 0x1004
		unimp(),         // 0x1008
		unimp(),         // 0x100c
		addi(10, 0, 42), // 0x1010: addi a0, x0, 42
		jalr(0, 1, 0),   // 0x1014: jalr x0, ra, 0 (ret)
	}

	m := newTestMachine(t, XLen64, program)
	m.run(t, 3)

	if got := m.cpu.GetInt(10); got != 42 {
		t.Errorf("a0 = %d, want 42", got)
	}

	if got := m.cpu.GetInt(1); got != uint64(testCodeBase+4) {
		t.Errorf("ra = %#x, want %#x", got, testCodeBase+4)
	}

	if m.cpu.PC != testCodeBase+4 {
		t.Errorf("pc = %s, want %s", m.cpu.PC, testCodeBase+4)
	}
}

// TestDivisionEdgeCases exercises the signed-division rules spec.md 4.4 constrains: division by
// zero yields all-ones, and INT_MIN/-1 yields INT_MIN with a zero remainder, neither trapping.
func TestDivisionEdgeCases(t *testing.T) {
	if got := sdiv(10, 0); int64(got) != -1 {
		t.Errorf("sdiv(10, 0) = %d, want -1", int64(got))
	}

	if got := udiv(10, 0); got != ^uint64(0) {
		t.Errorf("udiv(10, 0) = %#x, want all-ones", got)
	}

	minInt := uint64(1) << 63

	if got := sdiv(minInt, ^uint64(0)); got != minInt {
		t.Errorf("sdiv(MinInt64, -1) = %#x, want %#x", got, minInt)
	}

	if got := srem(minInt, ^uint64(0)); got != 0 {
		t.Errorf("srem(MinInt64, -1) = %d, want 0", int64(got))
	}
}

// TestDestinationRegisterZero exercises the spec.md 4.4 rule that writes to x0 are always
// dropped, even when the source encoding explicitly names it as a destination.
func TestDestinationRegisterZero(t *testing.T) {
	program := []uint32{addi(0, 0, 99)}

	m := newTestMachine(t, XLen64, program)
	m.run(t, 1)

	if got := m.cpu.GetInt(0); got != 0 {
		t.Errorf("x0 = %d, want 0", got)
	}
}

// TestMisalignedBranchFaults exercises the branch-target-alignment rule: a branch whose target
// is not instruction-aligned must fault before the next instruction executes.
func TestMisalignedBranchFaults(t *testing.T) {
	// beq x0, x0, 2 -- always taken, target testCodeBase+2, which is not 4-byte aligned (B-type
	// offsets are always even, so an odd offset cannot be encoded).
	program := []uint32{encodeB(0x0, 0, 0, 2)}

	m := newTestMachine(t, XLen64, program)

	err := m.Simulate(context.Background(), 1)
	if err == nil {
		t.Fatal("expected a misaligned-instruction fault, got nil")
	}

	var fault *Fault
	if !errorsAsFault(err, &fault) || fault.Kind != FaultMisaligned {
		t.Errorf("err = %v, want a FaultMisaligned", err)
	}
}

func errorsAsFault(err error, target **Fault) bool {
	f, ok := err.(*Fault)
	if ok {
		*target = f
	}

	return ok
}
