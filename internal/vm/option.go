package vm

// option.go defines the functional-options construction pattern used by [New]. Grounded on the
// teacher's OptionFn (internal/vm/vm.go): each option is a function called twice, once during
// early construction and once during late construction, with a boolean telling it which pass it
// is in -- kept verbatim as a pattern, generalized from "system privileges vs. dropped
// privileges" (not applicable to a user-mode emulator) to "before vs. after the ELF image and
// its symbol table are available."

import "github.com/rvsim/rvsim/internal/log"

// OptionFn modifies a Machine during construction. Every option is invoked twice: once with
// late==false, before the ELF image is loaded, and once with late==true, after. Most options
// only need one pass and check late before acting.
type OptionFn func(m *Machine, late bool)

// WithLogger overrides the machine's logger.
func WithLogger(logger *log.Logger) OptionFn {
	return func(m *Machine, late bool) {
		if !late {
			m.log = logger
		}
	}
}

// WithDispatchMode selects which of the three dispatch-loop strategies Simulate drives.
func WithDispatchMode(mode DispatchMode) OptionFn {
	return func(m *Machine, late bool) {
		if !late {
			m.dispatch = mode
		}
	}
}

// WithCeiling sets the initial instruction-count ceiling, the upper bound Simulate enforces
// when called with max==0.
func WithCeiling(n uint64) OptionFn {
	return func(m *Machine, late bool) {
		if !late {
			m.ceiling = n
		}
	}
}

// WithAlignmentChecks enables or disables misalignment faults on data accesses, off by default
// per spec.md 4.1. Branch and jump target alignment is always checked regardless of this
// option; it governs only the load/store path (ReadBytes/WriteBytes and the scalar accessors
// built on them).
func WithAlignmentChecks(enabled bool) OptionFn {
	return func(m *Machine, late bool) {
		if late {
			m.mem.checkAlign = enabled
		}
	}
}

// WithExtensions sets which optional instruction-set extensions the decoder accepts, replacing
// the default of every extension this build implements (M, F, D). An instruction belonging to a
// cleared extension raises [FaultFeatureDisabled] the first time control reaches it, rather than
// at construction time, matching the lazy, per-segment nature of decoding.
func WithExtensions(ext Extension) OptionFn {
	return func(m *Machine, late bool) {
		if late {
			m.dec.Extensions = ext
		}
	}
}

// WithRewrite enables or disables the decoder's specialization pass. Disabling it is the mode a
// binary-translation backend needs: the decoded slot then always mirrors the source encoding
// one-to-one, and the original bytes are never shadowed by a rewritten form.
func WithRewrite(enabled bool) OptionFn {
	return func(m *Machine, late bool) {
		if late {
			m.dec.Rewrite = enabled
		}
	}
}

// WithThreads enables the cooperative guest-thread multiplexer, with room preallocated for
// maxThreads guest threads (see [NewThreadTable]; the count is not enforced as a limit).
func WithThreads(maxThreads int) OptionFn {
	return func(m *Machine, late bool) {
		if late {
			m.threads = NewThreadTable(maxThreads)
		}
	}
}

// WithArena attaches a first-fit heap allocator over the page range [base, base+size), backing
// guest malloc/free-style syscalls an embedder wires in.
func WithArena(base Word, size int) OptionFn {
	return func(m *Machine, late bool) {
		if late {
			m.mem.MapPages(base, size, AttrRead|AttrWrite)
			m.arena = NewArena(m.mem, base, size)
		}
	}
}
