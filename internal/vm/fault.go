package vm

// fault.go defines the single tagged exception variant that every fault path in the package
// raises, following the teacher's MemoryError/interrupt wrapped-error shape: one exported type,
// a Kind discriminant, an optional datum, usable with errors.Is and errors.As.

import "fmt"

// FaultKind discriminates the kinds of machine exception the core can raise.
type FaultKind uint8

const (
	_ FaultKind = iota

	// FaultIllegalOpcode means the decoded slot does not correspond to a defined instruction.
	FaultIllegalOpcode

	// FaultIllegalOperation means the operation cannot be performed, e.g. an unsupported width.
	FaultIllegalOperation

	// FaultProtection means a read, write, or execute was attempted on a page whose attributes
	// forbid it.
	FaultProtection

	// FaultExecProtection means PC left every known executable segment.
	FaultExecProtection

	// FaultMisaligned means a branch or jump target, or a data access under alignment checking,
	// was not properly aligned.
	FaultMisaligned

	// FaultUnimplemented means the build does not include the extension covering this slot.
	FaultUnimplemented

	// FaultFeatureDisabled means the requested feature was compiled out or not enabled.
	FaultFeatureDisabled

	// FaultOutOfMemory means a decoder cache or page could not be allocated.
	FaultOutOfMemory

	// FaultDeadlock means a guest futex wait would block but no other thread is runnable.
	FaultDeadlock

	// FaultInvalidProgram means ELF loading failed.
	FaultInvalidProgram
)

func (k FaultKind) String() string {
	switch k {
	case FaultIllegalOpcode:
		return "illegal opcode"
	case FaultIllegalOperation:
		return "illegal operation"
	case FaultProtection:
		return "protection fault"
	case FaultExecProtection:
		return "execute-space protection fault"
	case FaultMisaligned:
		return "misaligned instruction"
	case FaultUnimplemented:
		return "unimplemented instruction"
	case FaultFeatureDisabled:
		return "feature disabled"
	case FaultOutOfMemory:
		return "out of memory"
	case FaultDeadlock:
		return "deadlock reached"
	case FaultInvalidProgram:
		return "invalid program"
	default:
		return "machine exception"
	}
}

// Fault is the single exception variant raised by every fault path in the package. It carries a
// Kind discriminant and an optional 64-bit Addr datum, usually the faulting address.
type Fault struct {
	Kind FaultKind
	Addr Word
	// HasAddr distinguishes "no datum" from the zero address, which is itself a valid fault
	// address.
	HasAddr bool
}

func NewFault(kind FaultKind) *Fault {
	return &Fault{Kind: kind}
}

func NewFaultAddr(kind FaultKind, addr Word) *Fault {
	return &Fault{Kind: kind, Addr: addr, HasAddr: true}
}

func (f *Fault) Error() string {
	if f.HasAddr {
		return fmt.Sprintf("%s: %s", f.Kind, f.Addr)
	}

	return f.Kind.String()
}

// Is allows errors.Is(err, &Fault{Kind: k}) to match on kind alone, and errors.Is(err,
// ErrFault) to match any fault.
func (f *Fault) Is(err error) bool {
	if err == ErrFault {
		return true
	}

	other, ok := err.(*Fault)
	if !ok {
		return false
	}

	return other.Kind == f.Kind
}

// ErrFault is a sentinel matching any *Fault through errors.Is.
var ErrFault = &Fault{}
