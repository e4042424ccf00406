package vm

// elf.go loads a RISC-V user-mode executable into a Memory, mapping PT_LOAD segments to pages
// and recording each executable range as a Segment for the decoder. Grounded on
// other_examples' bobuhiro11-gokvm machine.go, which walks debug/elf's Progs table and copies
// PT_LOAD segments into guest memory by physical/file offset; adapted here to RISC-V's paged,
// attribute-tagged address space instead of a flat byte slice, and to use virtual rather than
// physical addresses since user-mode RISC-V has no concept of the latter.
//
// debug/elf is stdlib rather than a pack dependency: no example in the corpus vendors a
// third-party ELF parser, and debug/elf's Progs/Symbols API is exactly what every ELF-reading
// example (gokvm, the riscv hypervisor sources) already uses, so reimplementing it would not be
// idiomatic -- it would just be slower and buggier stdlib-avoidance. See DESIGN.md.

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/rvsim/rvsim/internal/log"
)

// Segment names one contiguous executable range of guest memory and holds its decoded slot
// array. The decoder fills Slots lazily as Decode walks the segment; Memory and Decoder share
// ownership of this type so that an exec-space protection fault can report which segment (if
// any) PC last belonged to.
type Segment struct {
	Base  Word
	Size  Word
	Slots []Slot

	decoded bool
}

func (s *Segment) contains(pc Word) bool {
	return pc >= s.Base && pc < s.Base+s.Size
}

// invalidateSegmentsCovering drops decoded slots for any segment overlapping [addr,
// addr+length), forcing a redecode the next time PC enters it. Called when page attributes
// change underneath already-decoded code (e.g. the guest mprotects a JIT buffer).
func (m *Memory) invalidateSegmentsCovering(addr Word, length int) {
	end := addr + Word(length)

	for _, seg := range m.segments {
		if seg.Base < end && addr < seg.Base+seg.Size {
			seg.Slots = nil
			seg.decoded = false
		}
	}
}

// segmentFor returns the segment containing pc, or nil. The distinguished VMCall stop address
// (see machine.go) is never part of the loaded image but always resolves to stopSegment, a
// single pre-decoded bcStop slot.
func (m *Memory) segmentFor(pc Word) *Segment {
	if pc == stopExitAddr {
		return stopSegment
	}

	for _, seg := range m.segments {
		if seg.contains(pc) {
			return seg
		}
	}

	return nil
}

// ProgHeader is the subset of an ELF program-header entry that the guest-visible PHDR auxv entry
// must reproduce on the guest stack verbatim -- a static-PIE's own init code (or a dynamic
// linker) walks this table directly out of guest memory, not through [debug/elf].
type ProgHeader struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// LoadResult summarizes the outcome of loading an ELF image.
type LoadResult struct {
	Entry   Word
	XLen    XLen
	Symbols map[string]Word

	// Phdrs and Phentsize describe the program-header table for the PHDR/PHENT/PHNUM auxv
	// entries internal/bootstrap writes onto the guest stack; Phentsize is the wire size of one
	// entry for the image's class (32 bytes for ELFCLASS32, 56 for ELFCLASS64), not len(Phdrs).
	Phdrs     []ProgHeader
	Phentsize int
}

// LoadELF reads a RISC-V ELF executable from r and maps its PT_LOAD segments into m, returning
// the entry point, machine width, and a name-to-address symbol table for [Machine.AddressOf].
func LoadELF(m *Memory, r io.ReaderAt, logger *log.Logger) (*LoadResult, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, NewFault(FaultInvalidProgram)
	}
	defer f.Close()

	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("%w: machine %s is not EM_RISCV", ErrFault, f.Machine)
	}

	xlen := XLen32
	if f.Class == elf.ELFCLASS64 {
		xlen = XLen64
	}

	phdrs := make([]ProgHeader, 0, len(f.Progs))
	for _, p := range f.Progs {
		phdrs = append(phdrs, ProgHeader{
			Type:   uint32(p.Type),
			Flags:  uint32(p.Flags),
			Offset: p.Off,
			Vaddr:  p.Vaddr,
			Paddr:  p.Paddr,
			Filesz: p.Filesz,
			Memsz:  p.Memsz,
			Align:  p.Align,
		})
	}

	phentsize := 32
	if xlen == XLen64 {
		phentsize = 56
	}

	var brkStart Word

	for i, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}

		attr := progAttr(p.Flags)

		base := Word(p.Vaddr)
		memsz := int(p.Memsz)
		filesz := int(p.Filesz)

		m.MapPages(base, memsz, attr|AttrWrite)

		buf := make([]byte, filesz)
		if _, err := io.ReadFull(p.Open(), buf); err != nil {
			return nil, fmt.Errorf("reading ELF program header %d at %#x: %w", i, p.Vaddr, err)
		}

		if err := m.WriteBytes(base, buf); err != nil {
			return nil, fmt.Errorf("mapping ELF program header %d at %#x: %w", i, p.Vaddr, err)
		}

		if logger != nil {
			logger.Debug("load segment", "index", i, "vaddr", base, "filesz", p.Filesz, "memsz", p.Memsz, "attr", attr)
		}

		// bss: any page wholly past the file content (no real bytes to preserve) is rebacked by
		// the shared zero page instead of the private zero-filled frame MapPages just gave it, so
		// it stays copy-on-write until the guest actually writes to it. A page straddling the
		// file/bss boundary keeps its private copy since it already holds real file bytes.
		fileEnd := base + Word(filesz)

		zeroStart := pageBase(pageIndex(fileEnd))
		if pageOffset(fileEnd) != 0 {
			zeroStart += PageSize
		}

		if segEnd := base + Word(memsz); zeroStart < segEnd {
			m.MapZeroPages(zeroStart, int(segEnd-zeroStart), attr|AttrWrite)
		}

		if attr&AttrWrite == 0 {
			// Re-apply the final, non-writable attribute now that the file contents are in
			// place; the page was temporarily writable above so WriteBytes could populate it.
			if err := m.SetPageAttr(base, memsz, attr); err != nil {
				return nil, err
			}
		}

		if attr&AttrExec != 0 {
			m.segments = append(m.segments, &Segment{Base: base, Size: Word(memsz)})
		}

		if segEnd := base + Word(memsz); segEnd > brkStart {
			brkStart = segEnd
		}
	}

	// brk starts immediately past the highest PT_LOAD segment, page-aligned up, matching a
	// Linux kernel's initial program break.
	m.brk = pageBase(pageIndex(brkStart))
	if pageOffset(brkStart) != 0 {
		m.brk += PageSize
	}

	syms, err := f.Symbols()
	if err != nil && !isErrNoSymbols(err) {
		return nil, fmt.Errorf("reading ELF symbol table: %w", err)
	}

	symtab := make(map[string]Word, len(syms))
	for _, s := range syms {
		if s.Name != "" {
			symtab[s.Name] = Word(s.Value)
		}
	}

	m.Entry = Word(f.Entry)

	return &LoadResult{
		Entry:     m.Entry,
		XLen:      xlen,
		Symbols:   symtab,
		Phdrs:     phdrs,
		Phentsize: phentsize,
	}, nil
}

func progAttr(flags elf.ProgFlag) Attr {
	var a Attr
	if flags&elf.PF_R != 0 {
		a |= AttrRead
	}

	if flags&elf.PF_W != 0 {
		a |= AttrWrite
	}

	if flags&elf.PF_X != 0 {
		a |= AttrExec
	}

	return a
}

func isErrNoSymbols(err error) bool {
	return err == elf.ErrNoSymbols
}
