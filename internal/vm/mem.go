package vm

// mem.go implements the Memory component (C2): the mapping from page index to Page, per-CPU
// read/write caches, bulk guest transfers, and page attribute management. Grounded on the
// teacher's Memory controller (internal/vm/mem.go) -- its load/store split and its MemoryError
// wrapped-error type -- generalized from a flat MAR/MDR-addressed array to a page map.

import (
	"fmt"

	"github.com/rvsim/rvsim/internal/log"
)

// cacheEntry is the per-CPU single-entry page cache described in spec.md 4.1: a read whose page
// index matches skips the mapping lookup entirely.
type cacheEntry struct {
	valid bool
	index uint64
	page  *page
}

// Memory owns every page of guest-addressable memory, the executable segment registry, and the
// bookkeeping needed to load an ELF image.
type Memory struct {
	pages map[uint64]*page

	// StackBase is the guest address at which the initial stack region was allocated.
	StackBase Word

	// Entry is the ELF entry point, the initial value of PC.
	Entry Word

	// brk is the heap/mmap allocation watermark; [Memory.Brk] moves it up or down, and it may be
	// reset by the embedder (e.g. between fork-like reuse).
	brk Word

	segments []*Segment

	readCache  cacheEntry
	writeCache cacheEntry

	// checkAlign enables misalignment faults on data accesses; off by default per spec.md 4.1.
	checkAlign bool

	log *log.Logger
}

// NewMemory creates an empty memory with no mapped pages.
func NewMemory() *Memory {
	return &Memory{
		pages: make(map[uint64]*page),
		log:   log.DefaultLogger(),
	}
}

func pageIndex(addr Word) uint64 { return uint64(addr) >> PageShift }
func pageOffset(addr Word) int   { return int(addr) & pageOffsetMask }
func pageBase(index uint64) Word { return Word(index << PageShift) }

// invalidateCaches drops both single-entry caches. Called whenever a page's identity might
// change: removal, attribute change, or copy-on-write resolution.
func (m *Memory) invalidateCaches() {
	m.readCache = cacheEntry{}
	m.writeCache = cacheEntry{}
}

// pageForRead returns the page backing addr, applying the read cache. Returns a protection
// fault if the page is missing or unreadable.
func (m *Memory) pageForRead(addr Word) (*page, error) {
	idx := pageIndex(addr)

	if m.readCache.valid && m.readCache.index == idx {
		return m.readCache.page, nil
	}

	p, ok := m.pages[idx]
	if !ok || p.attr&AttrRead == 0 {
		return nil, NewFaultAddr(FaultProtection, addr)
	}

	m.readCache = cacheEntry{valid: true, index: idx, page: p}

	return p, nil
}

// pageForWrite returns a page safe to mutate for addr, resolving copy-on-write first and
// applying the write cache. Returns a protection fault if the page is missing or unwritable.
func (m *Memory) pageForWrite(addr Word) (*page, error) {
	idx := pageIndex(addr)

	if m.writeCache.valid && m.writeCache.index == idx {
		return m.writeCache.page, nil
	}

	p, ok := m.pages[idx]
	if !ok || p.attr&AttrWrite == 0 {
		return nil, NewFaultAddr(FaultProtection, addr)
	}

	if p.cow || p.nonOwning {
		p = p.resolveWrite()
		m.pages[idx] = p
		m.invalidateCaches()
	}

	m.writeCache = cacheEntry{valid: true, index: idx, page: p}

	return p, nil
}

// pageForExec returns the page backing addr for an instruction fetch, without disturbing the
// read/write data caches.
func (m *Memory) pageForExec(addr Word) (*page, error) {
	idx := pageIndex(addr)

	p, ok := m.pages[idx]
	if !ok || p.attr&AttrExec == 0 {
		return nil, NewFaultAddr(FaultExecProtection, addr)
	}

	return p, nil
}

// ReadBytes reads n bytes starting at addr, crossing page boundaries as needed. Fails with a
// protection fault at the first inaccessible page; partial progress is not rolled back.
func (m *Memory) ReadBytes(addr Word, n int) ([]byte, error) {
	out := make([]byte, n)
	if err := m.readInto(addr, out); err != nil {
		return nil, err
	}

	return out, nil
}

func (m *Memory) readInto(addr Word, out []byte) error {
	remaining := out

	for len(remaining) > 0 {
		if m.checkAlign && len(remaining) > 1 && addr%Word(len(remaining)) != 0 {
			return NewFaultAddr(FaultMisaligned, addr)
		}

		p, err := m.pageForRead(addr)
		if err != nil {
			return err
		}

		off := pageOffset(addr)
		n := copy(remaining, p.data[off:])

		if p.trap != nil && p.trap.onRead != nil {
			p.trap.onRead(addr, remaining[:n])
		}

		remaining = remaining[n:]
		addr += Word(n)
	}

	return nil
}

// WriteBytes writes data starting at addr, crossing page boundaries and resolving
// copy-on-write pages as needed. Fails with a protection fault at the first inaccessible page;
// partial progress is not rolled back.
func (m *Memory) WriteBytes(addr Word, data []byte) error {
	remaining := data

	for len(remaining) > 0 {
		if m.checkAlign && len(remaining) > 1 && addr%Word(len(remaining)) != 0 {
			return NewFaultAddr(FaultMisaligned, addr)
		}

		p, err := m.pageForWrite(addr)
		if err != nil {
			return err
		}

		off := pageOffset(addr)
		chunk := remaining

		if p.trap != nil && p.trap.onWrite != nil {
			chunk = p.trap.onWrite(addr, chunk)
		}

		n := copy(p.data[off:], chunk)

		remaining = remaining[n:]
		addr += Word(n)
	}

	return nil
}

// Memset fills len bytes starting at dst with b, respecting page attributes.
func (m *Memory) Memset(dst Word, b byte, length int) error {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = b
	}

	return m.WriteBytes(dst, buf)
}

// CopyToGuest copies data into guest memory at dst.
func (m *Memory) CopyToGuest(dst Word, data []byte) error {
	return m.WriteBytes(dst, data)
}

// CopyFromGuest copies len bytes from guest memory at src into dst, returning the number of
// bytes copied.
func (m *Memory) CopyFromGuest(dst []byte, src Word) (int, error) {
	if err := m.readInto(src, dst); err != nil {
		return 0, err
	}

	return len(dst), nil
}

// readScalar reads an n-byte little-endian unsigned value at addr.
func (m *Memory) readScalar(addr Word, n int) (uint64, error) {
	buf, err := m.ReadBytes(addr, n)
	if err != nil {
		return 0, err
	}

	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}

	return v, nil
}

// writeScalar writes an n-byte little-endian unsigned value to addr.
func (m *Memory) writeScalar(addr Word, v uint64, n int) error {
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = byte(v)
		v >>= 8
	}

	return m.WriteBytes(addr, buf)
}

// ReadUint8/16/32/64 and WriteUint8/16/32/64 implement the read<T>/write<T> contract of
// spec.md 4.1 for the four common widths used by load/store handlers.
func (m *Memory) ReadUint8(addr Word) (uint8, error) {
	v, err := m.readScalar(addr, 1)
	return uint8(v), err
}

func (m *Memory) ReadUint16(addr Word) (uint16, error) {
	v, err := m.readScalar(addr, 2)
	return uint16(v), err
}

func (m *Memory) ReadUint32(addr Word) (uint32, error) {
	v, err := m.readScalar(addr, 4)
	return uint32(v), err
}

func (m *Memory) ReadUint64(addr Word) (uint64, error) {
	return m.readScalar(addr, 8)
}

func (m *Memory) WriteUint8(addr Word, v uint8) error   { return m.writeScalar(addr, uint64(v), 1) }
func (m *Memory) WriteUint16(addr Word, v uint16) error { return m.writeScalar(addr, uint64(v), 2) }
func (m *Memory) WriteUint32(addr Word, v uint32) error { return m.writeScalar(addr, uint64(v), 4) }
func (m *Memory) WriteUint64(addr Word, v uint64) error { return m.writeScalar(addr, v, 8) }

// SetPageAttr applies attr to every page covering [addr, addr+length), materializing pages as
// needed. The non-owning bit of existing pages is preserved.
func (m *Memory) SetPageAttr(addr Word, length int, attr Attr) error {
	start := pageIndex(addr)
	end := pageIndex(addr + Word(length) - 1)

	for idx := start; idx <= end; idx++ {
		p, ok := m.pages[idx]
		if !ok {
			p = newPage(0)
			m.pages[idx] = p
		}

		nonOwning := p.nonOwning
		p.attr = attr
		p.nonOwning = nonOwning
		p.cow = nonOwning && attr&AttrWrite != 0
	}

	m.invalidateCaches()
	m.invalidateSegmentsCovering(addr, length)

	return nil
}

// FreePages removes pages in [addr, addr+length) from the mapping and invalidates the caches.
func (m *Memory) FreePages(addr Word, length int) error {
	start := pageIndex(addr)
	end := pageIndex(addr + Word(length) - 1)

	for idx := start; idx <= end; idx++ {
		delete(m.pages, idx)
	}

	m.invalidateCaches()

	return nil
}

// MapPages materializes length bytes of fresh, zero-filled pages at addr with the given
// attributes, rounding addr down and length up to a page boundary.
func (m *Memory) MapPages(addr Word, length int, attr Attr) Word {
	start := pageBase(pageIndex(addr))
	end := pageBase(pageIndex(addr+Word(length)-1) + 1)

	for a := start; a < end; a += PageSize {
		m.pages[pageIndex(a)] = newPage(attr)
	}

	m.invalidateCaches()

	return start
}

// MapZeroPages materializes length bytes at addr backed by the shared zero page rather than
// private zero-filled frames, rounding addr down and length up to a page boundary. Any page in
// range is copy-on-write from the first write if attr grants AttrWrite, per the shared-zero-page
// design in spec.md 4.1; this is how demand-zero BSS pages are backed so that the common case of
// "never touched again" costs no private memory.
func (m *Memory) MapZeroPages(addr Word, length int, attr Attr) Word {
	start := pageBase(pageIndex(addr))
	end := pageBase(pageIndex(addr+Word(length)-1) + 1)

	for a := start; a < end; a += PageSize {
		m.pages[pageIndex(a)] = newZeroPage(attr)
	}

	m.invalidateCaches()

	return start
}

// Brk implements brk(2): addr==0 queries the current break without changing it; a nonzero addr
// below the current break shrinks it, freeing the pages now past the new break, and a nonzero
// addr above it grows the break, mapping fresh zero-filled pages to cover the new range. The
// break is initialized by LoadELF to page-aligned past the highest PT_LOAD segment.
func (m *Memory) Brk(addr Word) Word {
	if addr == 0 {
		return m.brk
	}

	oldTop := pageBase(pageIndex(m.brk-1) + 1)
	newTop := pageBase(pageIndex(addr-1) + 1)

	switch {
	case newTop > oldTop:
		m.MapPages(oldTop, int(newTop-oldTop), AttrRead|AttrWrite)
	case newTop < oldTop:
		_ = m.FreePages(newTop, int(oldTop-newTop))
	}

	m.brk = addr

	return m.brk
}

// View returns a copy of the bytes backing [addr, addr+length), for debugging and snapshotting.
// It does not apply attribute checks and treats unmapped pages as zero.
func (m *Memory) View(addr Word, length int) []byte {
	out := make([]byte, length)

	for i := 0; i < length; {
		a := addr + Word(i)
		idx := pageIndex(a)
		off := pageOffset(a)
		n := PageSize - off

		if i+n > length {
			n = length - i
		}

		if p, ok := m.pages[idx]; ok {
			copy(out[i:i+n], p.data[off:off+n])
		}

		i += n
	}

	return out
}

// ErrMemory is the sentinel wrapped by memory-controller errors that are not themselves a
// *Fault (e.g. a malformed bulk-transfer request).
var ErrMemory = fmt.Errorf("memory error")
