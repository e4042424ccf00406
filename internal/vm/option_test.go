package vm

import "testing"

// TestWithExtensionsAppliesLate exercises the option itself, independent of ELF loading: it
// must be a no-op during the early pass (m.dec doesn't exist yet at that point in New) and take
// effect during the late pass.
func TestWithExtensionsAppliesLate(t *testing.T) {
	m := &Machine{dec: NewDecoder(XLen64)}

	opt := WithExtensions(ExtNone)

	opt(m, false)
	if got := m.dec.Extensions; got != ExtM|ExtF|ExtD {
		t.Fatalf("Extensions after early pass = %s, want unchanged default", got)
	}

	opt(m, true)
	if got := m.dec.Extensions; got != ExtNone {
		t.Fatalf("Extensions after late pass = %s, want %s", got, ExtNone)
	}
}

// TestWithAlignmentChecksAppliesLate mirrors TestWithExtensionsAppliesLate for the alignment
// option, which similarly touches m.mem, not constructed until after the early pass in New.
func TestWithAlignmentChecksAppliesLate(t *testing.T) {
	m := &Machine{mem: NewMemory()}

	opt := WithAlignmentChecks(true)

	opt(m, false)
	if m.mem.checkAlign {
		t.Fatal("checkAlign set during early pass, want unchanged")
	}

	opt(m, true)
	if !m.mem.checkAlign {
		t.Fatal("checkAlign not set after late pass")
	}
}
