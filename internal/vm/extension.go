package vm

// extension.go defines the construction-time extension-set gate: which of the optional RISC-V
// extensions (M/A/F/D/C) a [Decoder] accepts. Grounded on the teacher's trap-vector-table
// approach to "features the embedder may or may not have wired in" (internal/vm/traps.go):
// there, an unwired trap vector faults at the point of use rather than at decode time; here, an
// extension bit cleared at construction faults at decode time instead, the natural point for an
// ISA feature rather than a runtime callback.

//go:generate go run golang.org/x/tools/cmd/stringer -type Extension -output extension_string.go

// Extension is a bitmask of optional instruction-set extensions a [Decoder] recognizes. The base
// integer ISA (RV32I/RV64I) and the Zba/Zbb bit-manipulation bytecodes this build specializes
// are always decoded regardless of Extension; only the extensions named here are gated.
type Extension uint8

const (
	// ExtM gates the OP/OP-32 multiply and divide bytecodes (mul, div, rem, and their word
	// forms).
	ExtM Extension = 1 << iota

	// ExtF gates single-precision float load/store/arithmetic bytecodes.
	ExtF

	// ExtD gates double-precision float load/store/arithmetic bytecodes. The RISC-V spec
	// requires ExtF whenever ExtD is set; this decoder does not enforce that dependency, it
	// simply checks each bytecode's own required bit.
	ExtD

	// ExtC gates the compressed (2-byte) instruction stride. Not implemented yet -- every
	// Segment is still decoded on a fixed 4-byte stride regardless of this bit -- so it has
	// no decoder effect today; it is carried so an embedder's option wiring and any future
	// compressed-decode work has a bit to target.
	ExtC

	// ExtA gates the AMO (atomic memory operation) major opcode. No AMO bytecode is
	// implemented yet regardless of this bit -- spec.md scopes the atomic extension "beyond
	// its integration point" -- so AMO instructions always decode to [FaultUnimplemented],
	// whether or not ExtA is set; the bit exists so an embedder can distinguish "recognized,
	// not built" from "recognized, disabled" in its own option wiring.
	ExtA
)

// ExtNone enables no optional extension: IMAFDC's mandatory "I" base plus the Zba/Zbb
// specializations only.
const ExtNone Extension = 0

// ExtAll enables every extension this decoder recognizes.
const ExtAll = ExtM | ExtF | ExtD | ExtC | ExtA

// Has reports whether every bit set in want is also set in e.
func (e Extension) Has(want Extension) bool {
	return e&want == want
}
