// Package bootstrap assembles the guest stack image a RISC-V _start expects: the argc/argv/envp
// vector and the Linux-ABI auxiliary vector, spec.md section 6's "guest stack layout at entry".
// Grounded on the teacher's SystemImage (internal/monitor/image.go), which built a "pre-built
// image, written to the machine before it runs" -- the same shape, adapted from generating LC-3
// trap-handler machine code (not applicable here; VMCall's stop address needs no backing bytes,
// see internal/vm/machine.go) to writing the data vectors a RISC-V entry point reads directly out
// of its own stack frame.
package bootstrap

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/rvsim/rvsim/internal/vm"
)

// Auxiliary vector tags, per spec.md section 6's table.
const (
	atNull     = 0
	atPhdr     = 3
	atPhent    = 4
	atPhnum    = 5
	atPagesz   = 6
	atBase     = 7
	atFlags    = 8
	atEntry    = 9
	atUID      = 11
	atEUID     = 12
	atGID      = 13
	atEGID     = 14
	atPlatform = 15
	atHwcap    = 16
	atClktck   = 17
	atSecure   = 23
	atRandom   = 25
)

const (
	pageSize     = 4096
	clockTicksHz = 100
	randomBytes  = 16
)

// Options configures the stack image [BuildStack] assembles. Entry, Phdrs, and Phentsize are
// carried verbatim from [vm.LoadResult]; Argv and Envp are the guest-visible command line and
// environment.
type Options struct {
	Argv []string
	Envp []string

	Entry     vm.Word
	Phdrs     []vm.ProgHeader
	Phentsize int

	// Platform overrides the AT_PLATFORM string; defaults to "riscv64"/"riscv32" from XLen.
	Platform string

	// Rand supplies the 16 bytes written for AT_RANDOM; defaults to crypto/rand.Reader. An
	// embedder wiring golang.org/x/sys/unix's getrandom(2) directly can supply that instead.
	Rand io.Reader
}

// writer tracks a downward-growing cursor into guest memory below stackTop, used to lay out
// strings and the program-header copy before the fixed-size vector area immediately above them.
type writer struct {
	mem  *vm.Memory
	ptr  vm.Word
	xlen vm.XLen
}

// putBytes writes data ending at the current cursor (i.e. data occupies [ptr-len(data), ptr)) and
// returns its start address, advancing the cursor downward.
func (w *writer) putBytes(data []byte) (vm.Word, error) {
	w.ptr -= vm.Word(len(data))

	if err := w.mem.WriteBytes(w.ptr, data); err != nil {
		return 0, err
	}

	return w.ptr, nil
}

// putString writes s NUL-terminated and returns its address.
func (w *writer) putString(s string) (vm.Word, error) {
	return w.putBytes(append([]byte(s), 0))
}

func wordSize(xlen vm.XLen) vm.Word {
	if xlen == vm.XLen32 {
		return 4
	}

	return 8
}

func alignDown(v, n vm.Word) vm.Word { return v &^ (n - 1) }

// writeWord stores v at addr using the machine's native width.
func writeWord(mem *vm.Memory, xlen vm.XLen, addr vm.Word, v uint64) error {
	if xlen == vm.XLen32 {
		return mem.WriteUint32(addr, uint32(v))
	}

	return mem.WriteUint64(addr, v)
}

// serializePhdrs encodes phdrs in the wire layout of an Elf32_Phdr or Elf64_Phdr array, matching
// entsize, so that guest code walking AT_PHDR/AT_PHENT/AT_PHNUM sees the same bytes it would have
// read directly out of the ELF file.
func serializePhdrs(phdrs []vm.ProgHeader, xlen vm.XLen) []byte {
	entsize := 32
	if xlen == vm.XLen64 {
		entsize = 56
	}

	out := make([]byte, len(phdrs)*entsize)

	for i, p := range phdrs {
		e := out[i*entsize : (i+1)*entsize]

		putU32 := func(off int, v uint32) {
			e[off] = byte(v)
			e[off+1] = byte(v >> 8)
			e[off+2] = byte(v >> 16)
			e[off+3] = byte(v >> 24)
		}

		putU64 := func(off int, v uint64) {
			for b := 0; b < 8; b++ {
				e[off+b] = byte(v >> (8 * b))
			}
		}

		if xlen == vm.XLen32 {
			putU32(0, p.Type)
			putU32(4, uint32(p.Offset))
			putU32(8, uint32(p.Vaddr))
			putU32(12, uint32(p.Paddr))
			putU32(16, uint32(p.Filesz))
			putU32(20, uint32(p.Memsz))
			putU32(24, p.Flags)
			putU32(28, uint32(p.Align))
		} else {
			putU32(0, p.Type)
			putU32(4, p.Flags)
			putU64(8, p.Offset)
			putU64(16, p.Vaddr)
			putU64(24, p.Paddr)
			putU64(32, p.Filesz)
			putU64(40, p.Memsz)
			putU64(48, p.Align)
		}
	}

	return out
}

// BuildStack writes Options' argv/envp strings, a copy of the program-header table, and the
// auxiliary vector below stackTop, then writes the argc/argv/envp/auxv pointer vectors
// immediately above them, 16-byte aligned at the final stack pointer -- the layout a RISC-V
// _start expects on entry. It returns the stack pointer value to install into the integer
// register file's sp (x2); the caller is responsible for that final write (Machine.CPU().SetInt),
// since BuildStack only ever touches guest memory, never CPU state, by the same separation of
// concerns as the rest of this package.
func BuildStack(mem *vm.Memory, stackTop vm.Word, xlen vm.XLen, opts Options) (vm.Word, error) {
	randSrc := opts.Rand
	if randSrc == nil {
		randSrc = rand.Reader
	}

	platform := opts.Platform
	if platform == "" {
		platform = "riscv64"
		if xlen == vm.XLen32 {
			platform = "riscv32"
		}
	}

	w := &writer{mem: mem, ptr: stackTop, xlen: xlen}

	randBuf := make([]byte, randomBytes)
	if _, err := io.ReadFull(randSrc, randBuf); err != nil {
		return 0, fmt.Errorf("reading AT_RANDOM bytes: %w", err)
	}

	randomAddr, err := w.putBytes(randBuf)
	if err != nil {
		return 0, err
	}

	platformAddr, err := w.putString(platform)
	if err != nil {
		return 0, err
	}

	envpAddrs := make([]vm.Word, len(opts.Envp))
	for i := len(opts.Envp) - 1; i >= 0; i-- {
		addr, err := w.putString(opts.Envp[i])
		if err != nil {
			return 0, err
		}

		envpAddrs[i] = addr
	}

	argvAddrs := make([]vm.Word, len(opts.Argv))
	for i := len(opts.Argv) - 1; i >= 0; i-- {
		addr, err := w.putString(opts.Argv[i])
		if err != nil {
			return 0, err
		}

		argvAddrs[i] = addr
	}

	var phdrAddr vm.Word
	if len(opts.Phdrs) > 0 {
		phdrAddr, err = w.putBytes(serializePhdrs(opts.Phdrs, xlen))
		if err != nil {
			return 0, err
		}
	}

	// The vector area (argc, argv[], NULL, envp[], NULL, auxv pairs, NULL pair) is built as a
	// flat list of words, then written starting at the final, 16-byte-aligned stack pointer.
	var vec []uint64

	vec = append(vec, uint64(len(opts.Argv)))
	for _, a := range argvAddrs {
		vec = append(vec, uint64(a))
	}

	vec = append(vec, 0)

	for _, a := range envpAddrs {
		vec = append(vec, uint64(a))
	}

	vec = append(vec, 0)

	auxv := [][2]uint64{
		{atPagesz, pageSize},
		{atClktck, clockTicksHz},
		{atPhent, uint64(opts.Phentsize)},
		{atPhdr, uint64(phdrAddr)},
		{atPhnum, uint64(len(opts.Phdrs))},
		{atBase, 0},
		{atFlags, 0},
		{atEntry, uint64(opts.Entry)},
		{atHwcap, 0},
		{atUID, 0},
		{atEUID, 0},
		{atGID, 0},
		{atEGID, 0},
		{atSecure, 1},
		{atPlatform, uint64(platformAddr)},
		{atRandom, uint64(randomAddr)},
		{atNull, 0},
	}

	for _, pair := range auxv {
		vec = append(vec, pair[0], pair[1])
	}

	ws := wordSize(xlen)
	vecBytes := ws * vm.Word(len(vec))

	sp := alignDown(w.ptr-vecBytes, 16)

	for i, v := range vec {
		if err := writeWord(mem, xlen, sp+vm.Word(i)*ws, v); err != nil {
			return 0, err
		}
	}

	return sp, nil
}
